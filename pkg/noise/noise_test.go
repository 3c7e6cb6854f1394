package noise_test

import (
	"math"
	"testing"

	"github.com/chazu/facet/pkg/mesh"
	"github.com/chazu/facet/pkg/noise"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func plane(t *testing.T, n int) *mesh.Mesh {
	t.Helper()
	m := mesh.New(mesh.WithName("plane"))
	for j := 0; j <= n; j++ {
		for i := 0; i <= n; i++ {
			m.AddVertex(v3.Vec{X: float64(i), Y: float64(j)})
		}
	}
	at := func(i, j int) mesh.VertexID { return mesh.VertexID(j*(n+1) + i) }
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			_, err := m.AddFace([]mesh.VertexID{at(i, j), at(i+1, j), at(i+1, j+1)})
			require.NoError(t, err)
			_, err = m.AddFace([]mesh.VertexID{at(i, j), at(i+1, j+1), at(i, j+1)})
			require.NoError(t, err)
		}
	}
	return m
}

func positions(m *mesh.Mesh) []v3.Vec {
	var ps []v3.Vec
	for _, v := range m.Vertices() {
		ps = append(ps, m.Position(v))
	}
	return ps
}

func TestPerturbIsDeterministic(t *testing.T) {
	a, b := plane(t, 4), plane(t, 4)
	require.NoError(t, noise.Perturb(a, 0.1, 7))
	require.NoError(t, noise.Perturb(b, 0.1, 7))
	assert.Equal(t, positions(a), positions(b))

	c := plane(t, 4)
	require.NoError(t, noise.Perturb(c, 0.1, 8))
	assert.NotEqual(t, positions(a), positions(c))
}

func TestPerturbSpread(t *testing.T) {
	m := plane(t, 20)
	orig := positions(m)
	const sigma = 0.05
	require.NoError(t, noise.Perturb(m, sigma, 1))

	var sum, sq float64
	var n int
	for i, p := range positions(m) {
		d := p.Sub(orig[i])
		for _, x := range []float64{d.X, d.Y, d.Z} {
			sum += x
			sq += x * x
			n++
		}
	}
	mean := sum / float64(n)
	std := math.Sqrt(sq/float64(n) - mean*mean)
	assert.InDelta(t, 0, mean, 0.01)
	assert.InDelta(t, sigma, std, 0.01)
}

func TestPerturbZeroSigmaKeepsPositions(t *testing.T) {
	m := plane(t, 3)
	orig := positions(m)
	require.NoError(t, noise.Perturb(m, 0, 3))
	assert.Equal(t, orig, positions(m))
}

func TestPerturbRecomputesNormals(t *testing.T) {
	m := plane(t, 3)
	require.NoError(t, noise.Perturb(m, 0.2, 5))
	for _, v := range m.Vertices() {
		got := m.Normal(v)
		require.NoError(t, m.UpdateNormal(v))
		assert.InDelta(t, 0, got.Sub(m.Normal(v)).Length(), 1e-12, "vertex %s", v)
	}
}

func TestPerturbNormals(t *testing.T) {
	m := plane(t, 2)
	require.NoError(t, noise.Perturb(m, 0.1, 2, noise.WithNormals()))
	for _, v := range m.Vertices() {
		assert.True(t, m.HasPrecomputedNormal(v))
	}
}

func TestPerturbRejectsBadSigma(t *testing.T) {
	for _, s := range []float64{-1, math.NaN(), math.Inf(1)} {
		assert.ErrorIs(t, noise.Perturb(plane(t, 1), s, 0), noise.ErrSigma)
	}
}

func TestPerturbLogs(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	require.NoError(t, noise.Perturb(plane(t, 1), 0.1, 0, noise.WithLogger(zap.New(core))))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "perturbed mesh", logs.All()[0].Message)
	assert.Equal(t, int64(4), logs.All()[0].ContextMap()["vertices"])
}
