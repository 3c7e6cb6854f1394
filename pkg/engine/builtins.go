package engine

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/chazu/facet/pkg/descriptor"
	"github.com/chazu/facet/pkg/kernel"
	"github.com/chazu/facet/pkg/mesh"
	"github.com/chazu/facet/pkg/meshio"
	"github.com/chazu/facet/pkg/noise"
	"github.com/chazu/facet/pkg/smooth"
	"github.com/chazu/facet/pkg/stream"
	"github.com/chazu/facet/pkg/tessellate"
	v3 "github.com/deadsy/sdfx/vec/v3"
	zygo "github.com/glycerine/zygomys/zygo"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultWeldTolerance is the tessellate weld tolerance relative to the
// bounding box diagonal of the solid.
const DefaultWeldTolerance = 1e-6

// session is the per-evaluation state the builtins close over.
type session struct {
	eng     *Engine
	ctx     context.Context
	runID   uuid.UUID
	log     *zap.Logger
	emitted []Emitted
}

func (s *session) result() *Result {
	return &Result{RunID: s.runID, Meshes: s.emitted}
}

// resolve maps a script path onto the filesystem. With a base directory set,
// only local paths are accepted and they are joined onto it.
func (s *session) resolve(path string) (string, error) {
	if s.eng.baseDir == "" {
		return path, nil
	}
	if !filepath.IsLocal(path) {
		return "", fmt.Errorf("path %q escapes the script directory", path)
	}
	return filepath.Join(s.eng.baseDir, path), nil
}

// ---------------------------------------------------------------------------
// Custom Sexp types for passing Go values through the zygomys environment
// ---------------------------------------------------------------------------

// sexpMesh wraps a topology mesh.
type sexpMesh struct {
	m *mesh.Mesh
}

func (s *sexpMesh) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(mesh %q :vertices %d :edges %d :faces %d)",
		s.m.Name(), s.m.NumVertices(), s.m.NumEdges(), s.m.NumFaces())
}
func (s *sexpMesh) Type() *zygo.RegisteredType { return nil }

// sexpSolid wraps a kernel solid. Solids become meshes through tessellate.
type sexpSolid struct {
	s kernel.Solid
}

func (s *sexpSolid) SexpString(ps *zygo.PrintState) string {
	lo, hi := s.s.BoundingBox()
	return fmt.Sprintf("(solid %.3g..%.3g %.3g..%.3g %.3g..%.3g)", lo[0], hi[0], lo[1], hi[1], lo[2], hi[2])
}
func (s *sexpSolid) Type() *zygo.RegisteredType { return nil }

// sexpVec3 wraps a v3.Vec.
type sexpVec3 struct {
	vec v3.Vec
}

func (v *sexpVec3) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec3 %g %g %g)", v.vec.X, v.vec.Y, v.vec.Z)
}
func (v *sexpVec3) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// kwPrefix is the marker prepended to keyword names by preprocessSource.
const kwPrefix = "__kw_"

// isKW checks if a Sexp is a preprocessed keyword string.
// Returns the keyword name (without prefix) and true if it is.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", false
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], true
	}
	return "", false
}

// kwArgs holds the result of parsing a mixed positional+keyword argument list.
type kwArgs struct {
	fn         string
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments.
// Keywords are identified by the __kw_ prefix added during preprocessing.
func parseArgs(fn string, args []zygo.Sexp) kwArgs {
	result := kwArgs{fn: fn, kw: make(map[string]zygo.Sexp)}
	i := 0
	for i < len(args) {
		name, ok := isKW(args[i])
		if ok {
			if i+1 < len(args) {
				result.kw[name] = args[i+1]
				i += 2
			} else {
				// Keyword at end with no value: treat as flag with nil.
				result.kw[name] = zygo.SexpNull
				i++
			}
		} else {
			result.positional = append(result.positional, args[i])
			i++
		}
	}
	return result
}

// lookup returns keyword key, falling back to positional argument pos.
// A negative pos makes the argument keyword-only.
func (a kwArgs) lookup(key string, pos int) (zygo.Sexp, bool) {
	if v, ok := a.kw[key]; ok {
		return v, true
	}
	if pos >= 0 && pos < len(a.positional) {
		return a.positional[pos], true
	}
	return nil, false
}

func (a kwArgs) float(key string, pos int) (float64, error) {
	v, ok := a.lookup(key, pos)
	if !ok {
		return 0, fmt.Errorf("%s: missing %s", a.fn, key)
	}
	f, err := toFloat64(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %s: %w", a.fn, key, err)
	}
	return f, nil
}

func (a kwArgs) floatOr(key string, pos int, def float64) (float64, error) {
	if _, ok := a.lookup(key, pos); !ok {
		return def, nil
	}
	return a.float(key, pos)
}

func (a kwArgs) intOr(key string, pos int, def int64) (int64, error) {
	v, ok := a.lookup(key, pos)
	if !ok {
		return def, nil
	}
	n, err := toInt(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %s: %w", a.fn, key, err)
	}
	return n, nil
}

func (a kwArgs) str(key string, pos int) (string, error) {
	v, ok := a.lookup(key, pos)
	if !ok {
		return "", fmt.Errorf("%s: missing %s", a.fn, key)
	}
	s, err := toString(v)
	if err != nil {
		return "", fmt.Errorf("%s: %s: %w", a.fn, key, err)
	}
	return s, nil
}

func (a kwArgs) mesh(pos int) (*mesh.Mesh, error) {
	if pos >= len(a.positional) {
		return nil, fmt.Errorf("%s: missing mesh argument", a.fn)
	}
	m, err := toMesh(a.positional[pos])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.fn, err)
	}
	return m, nil
}

func (a kwArgs) solid(pos int) (kernel.Solid, error) {
	if pos >= len(a.positional) {
		return nil, fmt.Errorf("%s: missing solid argument", a.fn)
	}
	s, err := toSolid(a.positional[pos])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.fn, err)
	}
	return s, nil
}

// vec reads a vec3 at pos, or three numbers starting at pos.
func (a kwArgs) vec(pos int) (v3.Vec, error) {
	if pos < len(a.positional) {
		if v, ok := a.positional[pos].(*sexpVec3); ok {
			return v.vec, nil
		}
	}
	if pos+3 > len(a.positional) {
		return v3.Vec{}, fmt.Errorf("%s: expected a vec3 or three numbers", a.fn)
	}
	var xyz [3]float64
	for i := range xyz {
		f, err := toFloat64(a.positional[pos+i])
		if err != nil {
			return v3.Vec{}, fmt.Errorf("%s: %w", a.fn, err)
		}
		xyz[i] = f
	}
	return v3.Vec{X: xyz[0], Y: xyz[1], Z: xyz[2]}, nil
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// toInt extracts an integer; floats are accepted when integral.
func toInt(s zygo.Sexp) (int64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return v.Val, nil
	case *zygo.SexpFloat:
		if v.Val == math.Trunc(v.Val) {
			return int64(v.Val), nil
		}
	}
	return 0, fmt.Errorf("expected integer, got %T (%s)", s, s.SexpString(nil))
}

// toString extracts a string from a Sexp.
func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

func toMesh(s zygo.Sexp) (*mesh.Mesh, error) {
	if m, ok := s.(*sexpMesh); ok {
		return m.m, nil
	}
	return nil, fmt.Errorf("expected mesh, got %T (%s)", s, s.SexpString(nil))
}

func toSolid(s zygo.Sexp) (kernel.Solid, error) {
	if v, ok := s.(*sexpSolid); ok {
		return v.s, nil
	}
	return nil, fmt.Errorf("expected solid, got %T (%s)", s, s.SexpString(nil))
}

func number(x float64) zygo.Sexp { return &zygo.SexpFloat{Val: x} }
func integer(n int) zygo.Sexp    { return &zygo.SexpInt{Val: int64(n)} }

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

type builtin func(a kwArgs) (zygo.Sexp, error)

// registerBuiltins installs the pipeline builtins into a zygomys
// environment. Kebab-case names are registered in their preprocessed
// underscore form.
func registerBuiltins(env *zygo.Zlisp, s *session) {
	add := func(name string, fn builtin) {
		env.AddFunction(name, func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
			if err := s.ctx.Err(); err != nil {
				return zygo.SexpNull, err
			}
			return fn(parseArgs(strings.ReplaceAll(name, "_", "-"), args))
		})
	}

	add("load", s.load)
	add("save", s.save)
	add("vec3", s.vec3)
	add("sphere", s.sphere)
	add("box", s.box)
	add("cylinder", s.cylinder)
	add("union", s.csg(s.eng.kernel.Union))
	add("difference", s.csg(s.eng.kernel.Difference))
	add("intersection", s.csg(s.eng.kernel.Intersection))
	add("translate", s.transform(s.eng.kernel.Translate))
	add("rotate", s.transform(s.eng.kernel.Rotate))
	add("tessellate", s.tessellate)
	add("noise", s.noise)
	add("smooth", s.smooth)
	add("collapse_short", s.collapseShort)
	add("avg_edge", s.measure(func(m *mesh.Mesh) zygo.Sexp { return number(m.AverageEdgeLength()) }))
	add("num_vertices", s.measure(func(m *mesh.Mesh) zygo.Sexp { return integer(m.NumVertices()) }))
	add("num_edges", s.measure(func(m *mesh.Mesh) zygo.Sexp { return integer(m.NumEdges()) }))
	add("num_faces", s.measure(func(m *mesh.Mesh) zygo.Sexp { return integer(m.NumFaces()) }))
	add("volume", s.measure(func(m *mesh.Mesh) zygo.Sexp { return number(descriptor.Volume(m)) }))
	add("validate", s.validate)
	add("emit", s.emit)
}

// (load "bunny.off")
func (s *session) load(a kwArgs) (zygo.Sexp, error) {
	path, err := a.str("path", 0)
	if err != nil {
		return zygo.SexpNull, err
	}
	full, err := s.resolve(path)
	if err != nil {
		return zygo.SexpNull, fmt.Errorf("load: %w", err)
	}
	m, err := meshio.Load(full, meshio.WithLogger(s.log))
	if err != nil {
		return zygo.SexpNull, fmt.Errorf("load: %w", err)
	}
	return &sexpMesh{m: m}, nil
}

// (save mesh "out.off")
func (s *session) save(a kwArgs) (zygo.Sexp, error) {
	m, err := a.mesh(0)
	if err != nil {
		return zygo.SexpNull, err
	}
	path, err := a.str("path", 1)
	if err != nil {
		return zygo.SexpNull, err
	}
	full, err := s.resolve(path)
	if err != nil {
		return zygo.SexpNull, fmt.Errorf("save: %w", err)
	}
	if err := meshio.Save(full, m, meshio.WithLogger(s.log)); err != nil {
		return zygo.SexpNull, fmt.Errorf("save: %w", err)
	}
	s.log.Info("saved mesh", zap.String("mesh", m.Name()), zap.String("path", full))
	return &sexpMesh{m: m}, nil
}

// (vec3 1 2 3)
func (s *session) vec3(a kwArgs) (zygo.Sexp, error) {
	if len(a.positional) != 3 {
		return zygo.SexpNull, fmt.Errorf("vec3 requires exactly 3 arguments, got %d", len(a.positional))
	}
	v, err := a.vec(0)
	if err != nil {
		return zygo.SexpNull, err
	}
	return &sexpVec3{vec: v}, nil
}

// (sphere :radius 5) or (sphere 5)
func (s *session) sphere(a kwArgs) (zygo.Sexp, error) {
	r, err := a.float("radius", 0)
	if err != nil {
		return zygo.SexpNull, err
	}
	return s.solid(s.eng.kernel.Sphere(r))
}

// (box :x 10 :y 20 :z 30) or (box 10 20 30)
func (s *session) box(a kwArgs) (zygo.Sexp, error) {
	var d [3]float64
	for i, key := range []string{"x", "y", "z"} {
		f, err := a.float(key, i)
		if err != nil {
			return zygo.SexpNull, err
		}
		d[i] = f
	}
	return s.solid(s.eng.kernel.Box(d[0], d[1], d[2]))
}

// (cylinder :height 10 :radius 2) or (cylinder 10 2)
func (s *session) cylinder(a kwArgs) (zygo.Sexp, error) {
	h, err := a.float("height", 0)
	if err != nil {
		return zygo.SexpNull, err
	}
	r, err := a.float("radius", 1)
	if err != nil {
		return zygo.SexpNull, err
	}
	return s.solid(s.eng.kernel.Cylinder(h, r))
}

func (s *session) solid(sol kernel.Solid, err error) (zygo.Sexp, error) {
	if err != nil {
		return zygo.SexpNull, err
	}
	return &sexpSolid{s: sol}, nil
}

// (union a b c ...) folds left to right.
func (s *session) csg(op func(a, b kernel.Solid) kernel.Solid) builtin {
	return func(a kwArgs) (zygo.Sexp, error) {
		if len(a.positional) < 2 {
			return zygo.SexpNull, fmt.Errorf("%s requires at least 2 solids, got %d", a.fn, len(a.positional))
		}
		acc, err := a.solid(0)
		if err != nil {
			return zygo.SexpNull, err
		}
		for i := 1; i < len(a.positional); i++ {
			next, err := a.solid(i)
			if err != nil {
				return zygo.SexpNull, err
			}
			acc = op(acc, next)
		}
		return &sexpSolid{s: acc}, nil
	}
}

// (translate solid (vec3 1 2 3)) or (translate solid 1 2 3). Rotation
// angles are in degrees.
func (s *session) transform(op func(sol kernel.Solid, x, y, z float64) kernel.Solid) builtin {
	return func(a kwArgs) (zygo.Sexp, error) {
		sol, err := a.solid(0)
		if err != nil {
			return zygo.SexpNull, err
		}
		v, err := a.vec(1)
		if err != nil {
			return zygo.SexpNull, err
		}
		return &sexpSolid{s: op(sol, v.X, v.Y, v.Z)}, nil
	}
}

// (tessellate solid :tolerance 1e-6 :name "part")
func (s *session) tessellate(a kwArgs) (zygo.Sexp, error) {
	sol, err := a.solid(0)
	if err != nil {
		return zygo.SexpNull, err
	}
	tol, err := a.floatOr("tolerance", -1, DefaultWeldTolerance)
	if err != nil {
		return zygo.SexpNull, err
	}
	opts := []tessellate.Option{tessellate.WithLogger(s.log)}
	if _, ok := a.kw["name"]; ok {
		name, err := a.str("name", -1)
		if err != nil {
			return zygo.SexpNull, err
		}
		opts = append(opts, tessellate.WithName(name))
	}
	m, r, err := tessellate.FromSolid(s.eng.kernel, sol, tol, opts...)
	if err != nil {
		return zygo.SexpNull, err
	}
	if r.SkippedFaces > 0 {
		s.log.Warn("tessellation skipped degenerate triangles", zap.Int("skipped", r.SkippedFaces))
	}
	return &sexpMesh{m: m}, nil
}

// (noise mesh :sigma 0.01 :seed 7) returns a perturbed copy.
func (s *session) noise(a kwArgs) (zygo.Sexp, error) {
	m, err := a.mesh(0)
	if err != nil {
		return zygo.SexpNull, err
	}
	sigma, err := a.float("sigma", 1)
	if err != nil {
		return zygo.SexpNull, err
	}
	seed, err := a.intOr("seed", 2, 0)
	if err != nil {
		return zygo.SexpNull, err
	}
	c := m.Clone()
	if err := noise.Perturb(c, sigma, seed, noise.WithLogger(s.log)); err != nil {
		return zygo.SexpNull, err
	}
	return &sexpMesh{m: c}, nil
}

// (smooth mesh :sigma-c 0.01 :sigma-s 0.05 :iterations 3) returns a smoothed
// copy. Missing sigmas are derived from the average edge length.
func (s *session) smooth(a kwArgs) (zygo.Sexp, error) {
	m, err := a.mesh(0)
	if err != nil {
		return zygo.SexpNull, err
	}
	d := m.AverageEdgeLength()
	sigmaC, err := a.floatOr("sigma-c", -1, d*s.eng.sigmaC)
	if err != nil {
		return zygo.SexpNull, err
	}
	sigmaS, err := a.floatOr("sigma-s", -1, d*s.eng.sigmaS)
	if err != nil {
		return zygo.SexpNull, err
	}
	iterations, err := a.intOr("iterations", -1, 1)
	if err != nil {
		return zygo.SexpNull, err
	}
	out, err := smooth.Smoothed(s.ctx, m, sigmaC, sigmaS, int(iterations),
		smooth.WithWorkers(s.eng.workers), smooth.WithLogger(s.log))
	if err != nil {
		return zygo.SexpNull, err
	}
	return &sexpMesh{m: out}, nil
}

// (collapse-short mesh :max-length 0.1) returns a simplified copy.
func (s *session) collapseShort(a kwArgs) (zygo.Sexp, error) {
	m, err := a.mesh(0)
	if err != nil {
		return zygo.SexpNull, err
	}
	maxLen, err := a.float("max-length", 1)
	if err != nil {
		return zygo.SexpNull, err
	}
	c := m.Clone()
	c.CollapseShort(maxLen)
	return &sexpMesh{m: c}, nil
}

func (s *session) measure(fn func(*mesh.Mesh) zygo.Sexp) builtin {
	return func(a kwArgs) (zygo.Sexp, error) {
		m, err := a.mesh(0)
		if err != nil {
			return zygo.SexpNull, err
		}
		return fn(m), nil
	}
}

// (validate mesh) logs every finding and returns their count.
func (s *session) validate(a kwArgs) (zygo.Sexp, error) {
	m, err := a.mesh(0)
	if err != nil {
		return zygo.SexpNull, err
	}
	findings := m.Validate()
	for _, f := range findings {
		s.log.Warn("mesh validation", zap.String("mesh", m.Name()), zap.Error(f))
	}
	return integer(len(findings)), nil
}

// (emit "name" mesh) records mesh in the result and streams it when a
// publisher is attached.
func (s *session) emit(a kwArgs) (zygo.Sexp, error) {
	name, err := a.str("name", 0)
	if err != nil {
		return zygo.SexpNull, err
	}
	m, err := a.mesh(1)
	if err != nil {
		return zygo.SexpNull, err
	}
	s.emitted = append(s.emitted, Emitted{Name: name, Mesh: m})
	s.log.Info("emitted mesh",
		zap.String("name", name),
		zap.Int("vertices", m.NumVertices()),
		zap.Int("faces", m.NumFaces()))
	if s.eng.publisher != nil {
		s.eng.publisher.Publish(stream.NewFrame(s.runID.String(), name, tessellate.Buffer(m)))
	}
	return &sexpMesh{m: m}, nil
}
