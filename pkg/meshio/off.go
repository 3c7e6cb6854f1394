package meshio

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/chazu/facet/pkg/mesh"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"go.uber.org/zap"
)

// Option configures a read or write.
type Option func(*options)

type options struct {
	log  *zap.Logger
	name string
	path string
}

// WithLogger routes skipped-face warnings to l. A nil logger is ignored.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithName sets the name given to a mesh read from a stream.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

func buildOptions(opts []Option) options {
	o := options{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// tokens reads whitespace-separated fields.
type tokens struct {
	sc *bufio.Scanner
}

func (t *tokens) next() (string, bool) {
	if !t.sc.Scan() {
		return "", false
	}
	return t.sc.Text(), true
}

func (t *tokens) int() (int, bool) {
	s, ok := t.next()
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}

func (t *tokens) float() (float64, bool) {
	s, ok := t.next()
	if !ok {
		return 0, false
	}
	x, err := strconv.ParseFloat(s, 64)
	return x, err == nil && !math.IsNaN(x) && !math.IsInf(x, 0)
}

// ReadOFF parses an OFF stream: the OFF keyword, vertex, face and edge
// counts (the edge count is ignored), the vertex coordinates, then each face
// as a vertex count followed by 0-based indices. Faces the mesh rejects are
// skipped with a warning. Any other problem fails the whole read.
func ReadOFF(r io.Reader, opts ...Option) (*mesh.Mesh, error) {
	o := buildOptions(opts)
	fail := func(sentinel error, element, format string, args ...any) error {
		return &FormatError{Path: o.path, Element: element, Err: sentinel, Detail: fmt.Sprintf(format, args...)}
	}

	sc := bufio.NewScanner(r)
	sc.Split(bufio.ScanWords)
	tk := &tokens{sc: sc}

	if magic, ok := tk.next(); !ok || magic != "OFF" {
		return nil, fail(ErrHeader, "header", "got %q", magic)
	}
	nv, ok1 := tk.int()
	nf, ok2 := tk.int()
	ne, ok3 := tk.int()
	if !ok1 || !ok2 || !ok3 {
		return nil, fail(ErrCounts, "counts", "could not read vertex, face and edge counts")
	}
	if nv < 0 || nf < 0 || ne < 0 {
		return nil, fail(ErrCounts, "counts", "negative count %d %d %d", nv, nf, ne)
	}

	m := mesh.New(mesh.WithName(o.name), mesh.WithLogger(o.log))
	var ids []mesh.VertexID
	for i := 0; i < nv; i++ {
		var p [3]float64
		for k := range p {
			x, ok := tk.float()
			if !ok {
				return nil, fail(ErrVertex, fmt.Sprintf("vertex %d", i), "could not read coordinate %d", k)
			}
			p[k] = x
		}
		ids = append(ids, m.AddVertex(v3.Vec{X: p[0], Y: p[1], Z: p[2]}))
	}

	skipped := 0
	for i := 0; i < nf; i++ {
		element := fmt.Sprintf("face %d", i)
		n, ok := tk.int()
		if !ok || n < 0 {
			return nil, fail(ErrFace, element, "could not read a valid vertex count")
		}
		// Counts come from the file; grow with the tokens actually present.
		var vs []mesh.VertexID
		for j := 0; j < n; j++ {
			idx, ok := tk.int()
			if !ok {
				return nil, fail(ErrFace, element, "could not read index %d", j)
			}
			if idx < 0 || idx >= len(ids) {
				return nil, fail(ErrIndexRange, element, "index %d not in [0, %d)", idx, len(ids))
			}
			vs = append(vs, ids[idx])
		}
		if _, err := m.AddFace(vs); err != nil {
			skipped++
			o.log.Warn("skipping face", zap.String("mesh", o.name), zap.Int("face", i), zap.Error(err))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("meshio: read: %w", err)
	}

	o.log.Debug("read OFF",
		zap.String("mesh", o.name),
		zap.Int("vertices", m.NumVertices()),
		zap.Int("faces", m.NumFaces()),
		zap.Int("skipped", skipped))
	return m, nil
}

// WriteOFF writes m as OFF. Vertices are numbered in iteration order and the
// edge count field is always 0. Coordinates use the shortest representation
// that parses back to the same float64.
func WriteOFF(w io.Writer, m *mesh.Mesh) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "OFF\n%d %d 0\n", m.NumVertices(), m.NumFaces())

	index := make(map[mesh.VertexID]int, m.NumVertices())
	for i, v := range m.Vertices() {
		p := m.Position(v)
		bw.WriteString(formatFloat(p.X))
		bw.WriteByte(' ')
		bw.WriteString(formatFloat(p.Y))
		bw.WriteByte(' ')
		bw.WriteString(formatFloat(p.Z))
		bw.WriteByte('\n')
		index[v] = i
	}

	for _, f := range m.Faces() {
		vs := m.FaceVertices(f)
		bw.WriteString(strconv.Itoa(len(vs)))
		for _, v := range vs {
			i, ok := index[v]
			if !ok {
				return fmt.Errorf("%w: %s in %s", ErrDanglingVertex, v, f)
			}
			bw.WriteByte(' ')
			bw.WriteString(strconv.Itoa(i))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

func formatFloat(x float64) string {
	return strconv.FormatFloat(x, 'g', -1, 64)
}
