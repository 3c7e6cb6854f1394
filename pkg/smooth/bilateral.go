// Package smooth implements bilateral mesh denoising: every vertex moves
// along its normal by a weighted average of its neighbors' heights above the
// vertex's tangent plane.
package smooth

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chazu/facet/pkg/mesh"
	"github.com/chazu/facet/pkg/search"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"go.uber.org/zap"
)

var (
	// ErrSigma is returned for a non-positive or non-finite sigma.
	ErrSigma = errors.New("smooth: sigmas must be positive and finite")

	// ErrIterations is returned for a negative iteration count.
	ErrIterations = errors.New("smooth: iterations must not be negative")
)

// Default sigma scales relative to the average edge length.
const (
	DefaultSigmaCScale = 1.0 / 20
	DefaultSigmaSScale = 1.0 / 3
)

// Smoother runs Jacobi bilateral passes: every displacement of a pass is
// computed from the positions at the start of that pass.
type Smoother struct {
	sigmaC  float64
	sigmaS  float64
	workers int
	log     *zap.Logger
}

// Option configures a Smoother.
type Option func(*Smoother)

// WithWorkers sets how many goroutines compute displacements. Values below 1
// select runtime.GOMAXPROCS(0).
func WithWorkers(n int) Option {
	return func(s *Smoother) { s.workers = n }
}

// WithLogger routes pass summaries to l. A nil logger is ignored.
func WithLogger(l *zap.Logger) Option {
	return func(s *Smoother) {
		if l != nil {
			s.log = l
		}
	}
}

// New returns a Smoother with closeness sigma sigmaC and similarity sigma
// sigmaS. sigmaC is also the neighbor search radius.
func New(sigmaC, sigmaS float64, opts ...Option) (*Smoother, error) {
	if !validSigma(sigmaC) || !validSigma(sigmaS) {
		return nil, fmt.Errorf("%w: sigma_c=%v sigma_s=%v", ErrSigma, sigmaC, sigmaS)
	}
	s := &Smoother{
		sigmaC: sigmaC,
		sigmaS: sigmaS,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.workers < 1 {
		s.workers = runtime.GOMAXPROCS(0)
	}
	return s, nil
}

func validSigma(x float64) bool {
	return x > 0 && !math.IsInf(x, 0) && !math.IsNaN(x)
}

// DefaultSigmas derives sigmas from the average edge length of m.
func DefaultSigmas(m *mesh.Mesh) (sigmaC, sigmaS float64) {
	d := m.AverageEdgeLength()
	return d * DefaultSigmaCScale, d * DefaultSigmaSScale
}

// Report summarizes smoothing work.
type Report struct {
	Passes          int
	Vertices        int
	Moved           int
	MaxDisplacement float64
	Elapsed         time.Duration
}

// Run applies iterations passes to m in place.
func (s *Smoother) Run(ctx context.Context, m *mesh.Mesh, iterations int) (Report, error) {
	if iterations < 0 {
		return Report{}, fmt.Errorf("%w: %d", ErrIterations, iterations)
	}
	var total Report
	start := time.Now()
	for i := 0; i < iterations; i++ {
		r, err := s.Pass(ctx, m)
		if err != nil {
			return total, err
		}
		total.Passes++
		total.Vertices = r.Vertices
		total.Moved += r.Moved
		total.MaxDisplacement = math.Max(total.MaxDisplacement, r.MaxDisplacement)
	}
	total.Elapsed = time.Since(start)
	s.log.Info("smoothing finished",
		zap.String("mesh", m.Name()),
		zap.Int("passes", total.Passes),
		zap.Int("moved", total.Moved),
		zap.Float64("max_displacement", total.MaxDisplacement),
		zap.Duration("elapsed", total.Elapsed))
	return total, nil
}

// Pass applies one bilateral pass to m in place. Vertex normals are
// refreshed first, except those set externally. Displacements are then
// computed concurrently against a frozen view of the mesh and committed
// together once all of them are known.
func (s *Smoother) Pass(ctx context.Context, m *mesh.Mesh) (Report, error) {
	start := time.Now()
	vs := m.Vertices()
	for _, v := range vs {
		if m.HasPrecomputedNormal(v) {
			continue
		}
		if err := m.UpdateNormal(v); err != nil {
			return Report{}, err
		}
	}

	next := make([]v3.Vec, len(vs))
	var (
		wg       sync.WaitGroup
		done     atomic.Int64
		errOnce  sync.Once
		firstErr error
	)
	workers := min(s.workers, max(len(vs), 1))
	chunk := (len(vs) + workers - 1) / workers
	for w := 0; w < workers; w++ {
		lo, hi := w*chunk, min((w+1)*chunk, len(vs))
		if lo >= hi {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			mk := search.NewMarker(m.VertexCap())
			for i := lo; i < hi; i++ {
				p, err := s.displace(ctx, m, vs[i], mk)
				if err != nil {
					errOnce.Do(func() { firstErr = err })
					return
				}
				next[i] = p
				done.Add(1)
			}
		}()
	}
	wg.Wait()
	if firstErr != nil {
		return Report{}, firstErr
	}

	r := Report{Passes: 1, Vertices: int(done.Load())}
	for i, v := range vs {
		d := next[i].Sub(m.Position(v)).Length()
		if d > 0 {
			r.Moved++
			r.MaxDisplacement = math.Max(r.MaxDisplacement, d)
		}
		if err := m.SetPosition(v, next[i]); err != nil {
			return Report{}, err
		}
	}
	r.Elapsed = time.Since(start)
	s.log.Debug("smoothing pass",
		zap.String("mesh", m.Name()),
		zap.Int("vertices", r.Vertices),
		zap.Int("moved", r.Moved),
		zap.Float64("max_displacement", r.MaxDisplacement))
	return r, nil
}

// displace returns the new position of v. It only reads the mesh.
func (s *Smoother) displace(ctx context.Context, m *mesh.Mesh, v mesh.VertexID, mk *search.Marker) (v3.Vec, error) {
	p := m.Position(v)
	n := m.Normal(v)
	nbrs, err := search.Neighbors(m, v, s.sigmaC, search.WithMarker(mk), search.WithContext(ctx))
	if err != nil {
		return p, err
	}
	twoC := 2 * s.sigmaC * s.sigmaC
	twoS := 2 * s.sigmaS * s.sigmaS
	var sum, normalizer float64
	for _, q := range nbrs {
		d := m.Position(q).Sub(p)
		t := d.Length()
		h := n.Dot(d)
		wc := math.Exp(-t * t / twoC)
		ws := math.Exp(-h * h / twoS)
		sum += wc * ws * h
		normalizer += wc * ws
	}
	if normalizer == 0 {
		return p, nil
	}
	return p.Add(n.MulScalar(sum / normalizer)), nil
}

// Bilateral smooths m in place with a single pass.
func Bilateral(ctx context.Context, m *mesh.Mesh, sigmaC, sigmaS float64, opts ...Option) error {
	s, err := New(sigmaC, sigmaS, opts...)
	if err != nil {
		return err
	}
	_, err = s.Pass(ctx, m)
	return err
}

// Smoothed returns a smoothed copy of m after iterations passes and leaves m
// untouched.
func Smoothed(ctx context.Context, m *mesh.Mesh, sigmaC, sigmaS float64, iterations int, opts ...Option) (*mesh.Mesh, error) {
	s, err := New(sigmaC, sigmaS, opts...)
	if err != nil {
		return nil, err
	}
	c := m.Clone()
	if _, err := s.Run(ctx, c, iterations); err != nil {
		return nil, err
	}
	return c, nil
}
