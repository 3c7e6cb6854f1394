// Package tessellate converts between topology meshes and flat triangle
// buffers. Buffer fan-triangulates a mesh for rendering and streaming; Weld
// rebuilds a topology mesh from a triangle soup such as marching cubes
// output.
package tessellate

import (
	"fmt"
	"math"

	"github.com/chazu/facet/pkg/kernel"
	"github.com/chazu/facet/pkg/mesh"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"go.uber.org/zap"
)

// Buffer fan-triangulates every face of m into an indexed triangle buffer.
// Buffer vertices follow m's vertex iteration order and carry the cached
// vertex normals. The mesh is read-only here.
func Buffer(m *mesh.Mesh) *kernel.Mesh {
	out := &kernel.Mesh{
		Vertices: make([]float32, 0, 3*m.NumVertices()),
		Normals:  make([]float32, 0, 3*m.NumVertices()),
		Name:     m.Name(),
	}
	index := make(map[mesh.VertexID]uint32, m.NumVertices())
	for i, v := range m.Vertices() {
		p, n := m.Position(v), m.Normal(v)
		out.Vertices = append(out.Vertices, float32(p.X), float32(p.Y), float32(p.Z))
		out.Normals = append(out.Normals, float32(n.X), float32(n.Y), float32(n.Z))
		index[v] = uint32(i)
	}
	for _, f := range m.Faces() {
		vs := m.FaceVertices(f)
		for i := 1; i+1 < len(vs); i++ {
			out.Indices = append(out.Indices, index[vs[0]], index[vs[i]], index[vs[i+1]])
		}
	}
	return out
}

// Option configures Weld.
type Option func(*options)

type options struct {
	name string
	log  *zap.Logger
}

// WithName names the welded mesh.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithLogger routes weld summaries to l. A nil logger is ignored.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// Report summarizes a weld.
type Report struct {
	InputVertices int
	Vertices      int
	Triangles     int
	SkippedFaces  int
}

// Weld merges buffer vertices that fall in the same tol-sized grid cell and
// builds one face per triangle. Triangles that collapse onto fewer than 3
// distinct vertices are skipped. With tol <= 0 only bit-identical positions
// merge.
func Weld(buf *kernel.Mesh, tol float64, opts ...Option) (*mesh.Mesh, Report, error) {
	o := options{name: buf.Name, log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if len(buf.Vertices)%3 != 0 || len(buf.Indices)%3 != 0 {
		return nil, Report{}, fmt.Errorf("tessellate: buffer lengths %d and %d are not multiples of 3",
			len(buf.Vertices), len(buf.Indices))
	}

	m := mesh.New(mesh.WithName(o.name), mesh.WithLogger(o.log))
	cells := make(map[[3]int64]mesh.VertexID)
	ids := make([]mesh.VertexID, buf.VertexCount())
	for i := range ids {
		p := buf.Vertex(i)
		k := quantize(p, tol)
		id, ok := cells[k]
		if !ok {
			id = m.AddVertex(v3.Vec{X: float64(p[0]), Y: float64(p[1]), Z: float64(p[2])})
			cells[k] = id
		}
		ids[i] = id
	}

	r := Report{InputVertices: buf.VertexCount(), Vertices: m.NumVertices()}
	for t := 0; t < buf.TriangleCount(); t++ {
		tri := buf.Triangle(t)
		var vs [3]mesh.VertexID
		for j, idx := range tri {
			if int(idx) >= len(ids) {
				return nil, Report{}, fmt.Errorf("tessellate: triangle %d index %d out of range", t, idx)
			}
			vs[j] = ids[idx]
		}
		if _, err := m.AddFace(vs[:]); err != nil {
			r.SkippedFaces++
			continue
		}
		r.Triangles++
	}

	o.log.Debug("welded triangle buffer",
		zap.String("mesh", o.name),
		zap.Int("input_vertices", r.InputVertices),
		zap.Int("vertices", r.Vertices),
		zap.Int("triangles", r.Triangles),
		zap.Int("skipped", r.SkippedFaces))
	return m, r, nil
}

func quantize(p [3]float32, tol float64) [3]int64 {
	var k [3]int64
	for i, x := range p {
		if tol <= 0 {
			k[i] = int64(math.Float32bits(x))
			continue
		}
		k[i] = int64(math.Round(float64(x) / tol))
	}
	return k
}

// FromSolid samples s with k and welds the result into a topology mesh.
// tol is relative to the solid's bounding box diagonal.
func FromSolid(k kernel.Kernel, s kernel.Solid, tol float64, opts ...Option) (*mesh.Mesh, Report, error) {
	buf, err := k.ToMesh(s)
	if err != nil {
		return nil, Report{}, fmt.Errorf("tessellate: %w", err)
	}
	lo, hi := s.BoundingBox()
	diag := math.Sqrt((hi[0]-lo[0])*(hi[0]-lo[0]) + (hi[1]-lo[1])*(hi[1]-lo[1]) + (hi[2]-lo[2])*(hi[2]-lo[2]))
	return Weld(buf, tol*diag, opts...)
}
