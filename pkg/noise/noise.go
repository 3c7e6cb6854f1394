// Package noise perturbs mesh vertices with seeded gaussian noise, producing
// the noisy inputs the smoother is evaluated against.
package noise

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/chazu/facet/pkg/mesh"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"go.uber.org/zap"
)

// ErrSigma is returned for a negative or non-finite standard deviation.
var ErrSigma = errors.New("noise: sigma must be finite and non-negative")

// Option configures Perturb.
type Option func(*options)

type options struct {
	normals bool
	log     *zap.Logger
}

// WithNormals also perturbs each vertex normal and stores the result as a
// precomputed normal.
func WithNormals() Option {
	return func(o *options) { o.normals = true }
}

// WithLogger routes the summary line to l. A nil logger is ignored.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// Perturb adds independent N(0, sigma) noise to every coordinate of every
// vertex of m, in vertex iteration order. The same seed on the same mesh
// always gives the same result. Normals of perturbed vertices are recomputed
// unless WithNormals is set.
func Perturb(m *mesh.Mesh, sigma float64, seed int64, opts ...Option) error {
	if sigma < 0 || math.IsNaN(sigma) || math.IsInf(sigma, 0) {
		return fmt.Errorf("%w: got %v", ErrSigma, sigma)
	}
	o := options{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	rng := rand.New(rand.NewSource(seed))
	sample := func() v3.Vec {
		return v3.Vec{X: rng.NormFloat64() * sigma, Y: rng.NormFloat64() * sigma, Z: rng.NormFloat64() * sigma}
	}

	var normals []v3.Vec
	vs := m.Vertices()
	for _, v := range vs {
		if err := m.SetPosition(v, m.Position(v).Add(sample())); err != nil {
			return err
		}
		if o.normals {
			normals = append(normals, m.Normal(v).Add(sample()))
		}
	}
	for i, v := range vs {
		var err error
		if o.normals {
			err = m.SetNormal(v, normals[i])
		} else {
			err = m.UpdateNormal(v)
		}
		if err != nil {
			return err
		}
	}

	o.log.Info("perturbed mesh",
		zap.String("mesh", m.Name()),
		zap.Int("vertices", len(vs)),
		zap.Float64("sigma", sigma),
		zap.Int64("seed", seed),
		zap.Bool("normals", o.normals))
	return nil
}
