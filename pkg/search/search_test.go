package search_test

import (
	"context"
	"math"
	"testing"

	"github.com/chazu/facet/pkg/mesh"
	"github.com/chazu/facet/pkg/search"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// strip builds a triangle strip along the x axis with unit spacing: vertex
// 2i is (i, 0, 0) and 2i+1 is (i, 1, 0).
func strip(t *testing.T, cells int) *mesh.Mesh {
	t.Helper()
	m := mesh.New()
	for i := 0; i <= cells; i++ {
		m.AddVertex(v3.Vec{X: float64(i)})
		m.AddVertex(v3.Vec{X: float64(i), Y: 1})
	}
	for i := 0; i < cells; i++ {
		a, b := mesh.VertexID(2*i), mesh.VertexID(2*i+1)
		c, d := mesh.VertexID(2*i+2), mesh.VertexID(2*i+3)
		_, err := m.AddFace([]mesh.VertexID{a, c, d})
		require.NoError(t, err)
		_, err = m.AddFace([]mesh.VertexID{a, d, b})
		require.NoError(t, err)
	}
	return m
}

func maxDistance(m *mesh.Mesh, start mesh.VertexID, vs []mesh.VertexID) float64 {
	var d float64
	for _, v := range vs {
		d = math.Max(d, m.Position(v).Sub(m.Position(start)).Length())
	}
	return d
}

// TestNeighbors_Errors verifies that invalid inputs and options are rejected.
func TestNeighbors_Errors(t *testing.T) {
	m := strip(t, 2)

	_, err := search.Neighbors(nil, 0, 1)
	assert.ErrorIs(t, err, search.ErrMeshNil)

	_, err = search.Neighbors(m, 99, 1)
	assert.ErrorIs(t, err, search.ErrStartVertexNotFound)

	_, err = search.Neighbors(m, 0, -1)
	assert.ErrorIs(t, err, search.ErrRadius)

	_, err = search.Neighbors(m, 0, math.NaN())
	assert.ErrorIs(t, err, search.ErrRadius)

	_, err = search.Neighbors(m, 0, 1, search.WithMaxDepth(-1))
	assert.ErrorIs(t, err, search.ErrOptionViolation)
}

// TestNeighbors_ZeroRadiusReturnsOneRing: the start is always expanded.
func TestNeighbors_ZeroRadiusReturnsOneRing(t *testing.T) {
	m := strip(t, 4)
	got, err := search.Neighbors(m, 4, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, m.Neighbors(4), got)
	assert.NotContains(t, got, mesh.VertexID(4))
}

func TestNeighbors_RadiusBoundsExpansion(t *testing.T) {
	m := strip(t, 10)
	start := mesh.VertexID(0)

	tests := []struct {
		name   string
		radius float64
	}{
		{"small", 0.3},
		{"unit", 1},
		{"wide", 2.2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := search.Neighbors(m, start, tt.radius)
			require.NoError(t, err)
			require.NotEmpty(t, got)

			// Every returned vertex is adjacent to start or to a returned
			// vertex inside the cutoff.
			inside := map[mesh.VertexID]bool{start: true}
			for _, v := range got {
				if m.Position(v).Sub(m.Position(start)).Length() < 2*tt.radius {
					inside[v] = true
				}
			}
			for _, v := range got {
				reached := false
				for _, n := range m.Neighbors(v) {
					if inside[n] {
						reached = true
					}
				}
				assert.True(t, reached, "%s not adjacent to an expanded vertex", v)
			}
			// At most one ring beyond the cutoff; strip rings are at most
			// sqrt(2) apart.
			assert.LessOrEqual(t, maxDistance(m, start, got), 2*tt.radius+math.Sqrt2+1e-9)
		})
	}
}

func TestNeighbors_NoDuplicatesDiscoveryOrder(t *testing.T) {
	m := strip(t, 6)
	got, err := search.Neighbors(m, 6, 10)
	require.NoError(t, err)
	assert.Len(t, got, m.NumVertices()-1)

	seen := map[mesh.VertexID]bool{}
	for _, v := range got {
		assert.False(t, seen[v], "duplicate %s", v)
		seen[v] = true
	}
	// The one ring comes first.
	ring := m.Neighbors(6)
	assert.ElementsMatch(t, ring, got[:len(ring)])
}

func TestNeighbors_MaxDepth(t *testing.T) {
	m := strip(t, 6)
	got, err := search.Neighbors(m, 0, 100, search.WithMaxDepth(1))
	require.NoError(t, err)
	assert.ElementsMatch(t, m.Neighbors(0), got)
}

func TestNeighbors_SharedMarkerAcrossSearches(t *testing.T) {
	m := strip(t, 4)
	mk := search.NewMarker(0)

	first, err := search.Neighbors(m, 0, 1, search.WithMarker(mk))
	require.NoError(t, err)
	second, err := search.Neighbors(m, 0, 1, search.WithMarker(mk))
	require.NoError(t, err)
	assert.Equal(t, first, second, "marks do not leak between searches")

	fresh, err := search.Neighbors(m, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, fresh, first)
}

func TestNeighbors_IsolatedVertex(t *testing.T) {
	m := mesh.New()
	v := m.AddVertex(v3.Vec{})
	got, err := search.Neighbors(m, v, 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestNeighbors_Cancelled(t *testing.T) {
	m := strip(t, 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := search.Neighbors(m, 0, 1, search.WithContext(ctx))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMarker(t *testing.T) {
	mk := search.NewMarker(2)
	assert.False(t, mk.Marked(0))
	mk.Reset(4)
	assert.True(t, mk.Mark(3))
	assert.False(t, mk.Mark(3))
	assert.True(t, mk.Marked(3))
	assert.False(t, mk.Marked(7))
	mk.Reset(4)
	assert.False(t, mk.Marked(3))
}
