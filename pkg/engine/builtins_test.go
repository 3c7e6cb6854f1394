package engine

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/chazu/facet/pkg/kernel/sdfx"
	"github.com/chazu/facet/pkg/mesh"
	"github.com/chazu/facet/pkg/meshio"
	"github.com/chazu/facet/pkg/stream"
	v3 "github.com/deadsy/sdfx/vec/v3"
	zygo "github.com/glycerine/zygomys/zygo"
)

// ---------------------------------------------------------------------------
// Preprocessing tests
// ---------------------------------------------------------------------------

func TestPreprocessKeywords(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{
			name:   "simple keyword",
			input:  `(sphere :radius 5)`,
			expect: `(sphere "__kw_radius" 5)`,
		},
		{
			name:   "multiple keywords",
			input:  `(box :x 1 :y 2)`,
			expect: `(box "__kw_x" 1 "__kw_y" 2)`,
		},
		{
			name:   "keyword in string preserved",
			input:  `"thing with :keyword inside"`,
			expect: `"thing with :keyword inside"`,
		},
		{
			name:   "assignment operator preserved",
			input:  `(def x := 10)`,
			expect: `(def x := 10)`,
		},
		{
			name:   "kebab-case identifier",
			input:  `(collapse-short m :max-length 0.1)`,
			expect: `(collapse_short m "__kw_max-length" 0.1)`,
		},
		{
			name:   "minus operator preserved",
			input:  `(- 10 5)`,
			expect: `(- 10 5)`,
		},
		{
			name:   "exponent preserved",
			input:  `(tessellate s :tolerance 1e-6)`,
			expect: `(tessellate s "__kw_tolerance" 1e-6)`,
		},
		{
			name:   "comment converted to // style",
			input:  `;; comment with :keyword`,
			expect: `// comment with :keyword`,
		},
		{
			name:   "single semicolon comment",
			input:  `; simple comment`,
			expect: `// simple comment`,
		},
		{
			name:   "hyphen in keyword preserved",
			input:  `:sigma-c`,
			expect: `"__kw_sigma-c"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := preprocessSource(tt.input)
			if got != tt.expect {
				t.Errorf("preprocessSource(%q) = %q, want %q", tt.input, got, tt.expect)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func tetrahedron(t *testing.T) *mesh.Mesh {
	t.Helper()
	m := mesh.New(mesh.WithName("tetra"))
	for _, p := range []v3.Vec{{}, {X: 1}, {Y: 1}, {Z: 1}} {
		m.AddVertex(p)
	}
	for _, f := range [][]mesh.VertexID{{0, 2, 1}, {0, 1, 3}, {0, 3, 2}, {1, 2, 3}} {
		if _, err := m.AddFace(f); err != nil {
			t.Fatalf("AddFace(%v): %v", f, err)
		}
	}
	return m
}

func newSession(t *testing.T, opts ...Option) *session {
	t.Helper()
	eng := NewEngine(append([]Option{WithKernel(sdfx.New(sdfx.WithCells(16)))}, opts...)...)
	return &session{eng: eng, ctx: t.Context(), log: eng.log}
}

func mustEvaluate(t *testing.T, eng *Engine, source string) *Result {
	t.Helper()
	res, evalErrs, err := eng.Evaluate(source)
	if err != nil {
		t.Fatalf("fatal error: %v", err)
	}
	if len(evalErrs) > 0 {
		t.Fatalf("eval errors: %v", evalErrs)
	}
	return res
}

type recorder struct {
	mu     sync.Mutex
	frames []stream.Frame
}

func (r *recorder) Publish(f stream.Frame) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, f)
	return 1
}

// ---------------------------------------------------------------------------
// Builtin tests
// ---------------------------------------------------------------------------

func TestCountBuiltins(t *testing.T) {
	s := newSession(t)
	arg := []zygo.Sexp{&sexpMesh{m: tetrahedron(t)}}

	tests := []struct {
		name string
		fn   func(*mesh.Mesh) zygo.Sexp
		want int64
	}{
		{"num-vertices", func(m *mesh.Mesh) zygo.Sexp { return integer(m.NumVertices()) }, 4},
		{"num-edges", func(m *mesh.Mesh) zygo.Sexp { return integer(m.NumEdges()) }, 6},
		{"num-faces", func(m *mesh.Mesh) zygo.Sexp { return integer(m.NumFaces()) }, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.measure(tt.fn)(parseArgs(tt.name, arg))
			if err != nil {
				t.Fatalf("error: %v", err)
			}
			n, ok := got.(*zygo.SexpInt)
			if !ok || n.Val != tt.want {
				t.Errorf("got %v, want %d", got, tt.want)
			}
		})
	}

	if _, err := s.measure(nil)(parseArgs("num-faces", nil)); err == nil {
		t.Error("expected error without a mesh argument")
	}
}

func TestKeywordOrPositional(t *testing.T) {
	s := newSession(t)
	for _, args := range [][]zygo.Sexp{
		{&zygo.SexpInt{Val: 2}},
		{&zygo.SexpStr{S: kwPrefix + "radius"}, &zygo.SexpFloat{Val: 2}},
	} {
		got, err := s.sphere(parseArgs("sphere", args))
		if err != nil {
			t.Fatalf("sphere: %v", err)
		}
		sol, ok := got.(*sexpSolid)
		if !ok {
			t.Fatalf("expected solid, got %T", got)
		}
		lo, hi := sol.s.BoundingBox()
		if hi[0]-lo[0] < 3.9 {
			t.Errorf("bounding box %v..%v too small for radius 2", lo, hi)
		}
	}

	if _, err := s.sphere(parseArgs("sphere", nil)); err == nil || !strings.Contains(err.Error(), "missing radius") {
		t.Errorf("expected missing radius error, got %v", err)
	}
	if _, err := s.sphere(parseArgs("sphere", []zygo.Sexp{&zygo.SexpInt{Val: -1}})); err == nil {
		t.Error("expected error for negative radius")
	}
}

func TestNoiseReturnsCopy(t *testing.T) {
	s := newSession(t)
	orig := tetrahedron(t)
	got, err := s.noise(parseArgs("noise", []zygo.Sexp{
		&sexpMesh{m: orig},
		&zygo.SexpStr{S: kwPrefix + "sigma"}, &zygo.SexpFloat{Val: 0.1},
		&zygo.SexpStr{S: kwPrefix + "seed"}, &zygo.SexpInt{Val: 4},
	}))
	if err != nil {
		t.Fatalf("noise: %v", err)
	}
	noisy := got.(*sexpMesh).m
	if noisy == orig {
		t.Fatal("noise should return a new mesh")
	}
	if orig.Position(1) != (v3.Vec{X: 1}) {
		t.Errorf("input mesh was modified: %v", orig.Position(1))
	}
	if noisy.Position(1) == orig.Position(1) {
		t.Error("noisy mesh was not perturbed")
	}
}

func TestCollapseShortBuiltin(t *testing.T) {
	s := newSession(t)
	orig := tetrahedron(t)
	got, err := s.collapseShort(parseArgs("collapse-short", []zygo.Sexp{
		&sexpMesh{m: orig}, &zygo.SexpFloat{Val: 0.01},
	}))
	if err != nil {
		t.Fatalf("collapse-short: %v", err)
	}
	if m := got.(*sexpMesh).m; m.NumVertices() != 4 {
		t.Errorf("no edge is shorter than 0.01, got %d vertices", m.NumVertices())
	}
}

func TestValidateBuiltin(t *testing.T) {
	s := newSession(t)
	got, err := s.validate(parseArgs("validate", []zygo.Sexp{&sexpMesh{m: tetrahedron(t)}}))
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if n := got.(*zygo.SexpInt).Val; n != 0 {
		t.Errorf("tetrahedron has %d findings", n)
	}
}

func TestResolveConfinesPaths(t *testing.T) {
	s := newSession(t, WithBaseDir("/data"))
	if got, err := s.resolve("a/b.off"); err != nil || got != filepath.Join("/data", "a/b.off") {
		t.Errorf("resolve(a/b.off) = %q, %v", got, err)
	}
	for _, p := range []string{"../x.off", "/etc/passwd"} {
		if _, err := s.resolve(p); err == nil {
			t.Errorf("resolve(%q) should fail", p)
		}
	}

	free := newSession(t)
	if got, _ := free.resolve("/tmp/x.off"); got != "/tmp/x.off" {
		t.Errorf("without base dir, got %q", got)
	}
}

// ---------------------------------------------------------------------------
// Pipelines
// ---------------------------------------------------------------------------

func TestPipelineSolid(t *testing.T) {
	pub := &recorder{}
	eng := NewEngine(WithKernel(sdfx.New(sdfx.WithCells(16))), WithPublisher(pub))

	source := `
; a drilled block
(def block (box 4 4 2))
(def hole (cylinder :height 3 :radius 1))
(def part (tessellate (difference block hole) :name "part"))
(emit "part" part)
`
	res := mustEvaluate(t, eng, source)
	if len(res.Meshes) != 1 {
		t.Fatalf("expected 1 emitted mesh, got %d", len(res.Meshes))
	}
	m, ok := res.Lookup("part")
	if !ok {
		t.Fatal("part not emitted")
	}
	if m.Name() != "part" || m.NumFaces() == 0 {
		t.Errorf("unexpected mesh %q with %d faces", m.Name(), m.NumFaces())
	}
	if errs := m.Validate(); len(errs) > 0 {
		t.Errorf("tessellated mesh invalid: %v", errs[0])
	}

	if len(pub.frames) != 1 {
		t.Fatalf("expected 1 published frame, got %d", len(pub.frames))
	}
	if f := pub.frames[0]; f.Name != "part" || f.RunID != res.RunID.String() || len(f.Indices) == 0 {
		t.Errorf("unexpected frame %q run %q with %d indices", f.Name, f.RunID, len(f.Indices))
	}
}

func TestPipelineLoadNoiseSmoothSave(t *testing.T) {
	dir := t.TempDir()
	if err := meshio.Save(filepath.Join(dir, "in.off"), tetrahedron(t)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	eng := NewEngine(WithBaseDir(dir), WithWorkers(2))

	source := `
(def m (load "in.off"))
(def n (noise m :sigma 0.01 :seed 3))
(def s (smooth n :iterations 2))
(save s "out.off")
(emit "noisy" n)
(emit "smoothed" s)
`
	res := mustEvaluate(t, eng, source)
	if len(res.Meshes) != 2 || res.Meshes[0].Name != "noisy" || res.Meshes[1].Name != "smoothed" {
		t.Fatalf("unexpected emissions %+v", res.Meshes)
	}

	if _, err := os.Stat(filepath.Join(dir, "out.off")); err != nil {
		t.Fatalf("out.off not written: %v", err)
	}
	out, err := meshio.Load(filepath.Join(dir, "out.off"))
	if err != nil {
		t.Fatalf("Load(out.off): %v", err)
	}
	if out.NumVertices() != 4 || out.NumFaces() != 4 {
		t.Errorf("out.off has %d vertices and %d faces", out.NumVertices(), out.NumFaces())
	}
}

func TestPipelineErrors(t *testing.T) {
	dir := t.TempDir()
	eng := NewEngine(WithBaseDir(dir))

	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"escaping path", `(load "../secret.off")`, "escapes"},
		{"missing file", `(load "nope.off")`, "load"},
		{"wrong type", `(smooth 5)`, "expected mesh"},
		{"vec3 arity", `(vec3 1 2)`, "exactly 3"},
		{"union arity", `(union (sphere 1))`, "at least 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, evalErrs, err := eng.Evaluate(tt.source)
			if err != nil {
				t.Fatalf("expected eval error, got fatal: %v", err)
			}
			if res != nil {
				t.Fatal("expected nil result")
			}
			if len(evalErrs) == 0 {
				t.Fatal("expected eval errors")
			}
			if !strings.Contains(evalErrs[0].Error(), tt.want) {
				t.Errorf("error %q does not mention %q", evalErrs[0].Error(), tt.want)
			}
		})
	}
}

func TestArithmeticStillWorks(t *testing.T) {
	eng := NewEngine()
	res := mustEvaluate(t, eng, "(def x (* 2 (+ 1 2)))")
	if len(res.Meshes) != 0 {
		t.Errorf("expected no meshes, got %d", len(res.Meshes))
	}
}
