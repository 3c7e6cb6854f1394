package mesh

import (
	"testing"

	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/stretchr/testify/require"
)

// --- Shared fixtures ---

func addVertices(m *Mesh, ps ...v3.Vec) []VertexID {
	ids := make([]VertexID, len(ps))
	for i, p := range ps {
		ids[i] = m.AddVertex(p)
	}
	return ids
}

func addFaces(t *testing.T, m *Mesh, faces ...[]VertexID) []FaceID {
	t.Helper()
	ids := make([]FaceID, len(faces))
	for i, vs := range faces {
		f, err := m.AddFace(vs)
		require.NoError(t, err, "face %d %v", i, vs)
		ids[i] = f
	}
	return ids
}

// tetrahedron: 4 vertices, 6 edges, 4 outward-facing triangles.
func tetrahedron(t *testing.T) *Mesh {
	t.Helper()
	m := New(WithName("tetrahedron"))
	addVertices(m,
		v3.Vec{X: 0, Y: 0, Z: 0},
		v3.Vec{X: 1, Y: 0, Z: 0},
		v3.Vec{X: 0, Y: 1, Z: 0},
		v3.Vec{X: 0, Y: 0, Z: 1},
	)
	addFaces(t, m,
		[]VertexID{0, 2, 1},
		[]VertexID{0, 1, 3},
		[]VertexID{0, 3, 2},
		[]VertexID{1, 2, 3},
	)
	return m
}

// cube: unit cube of 6 quads, 8 vertices, 12 edges.
func cube(t *testing.T) *Mesh {
	t.Helper()
	m := New(WithName("cube"))
	addVertices(m,
		v3.Vec{X: 0, Y: 0, Z: 0},
		v3.Vec{X: 1, Y: 0, Z: 0},
		v3.Vec{X: 1, Y: 1, Z: 0},
		v3.Vec{X: 0, Y: 1, Z: 0},
		v3.Vec{X: 0, Y: 0, Z: 1},
		v3.Vec{X: 1, Y: 0, Z: 1},
		v3.Vec{X: 1, Y: 1, Z: 1},
		v3.Vec{X: 0, Y: 1, Z: 1},
	)
	addFaces(t, m,
		[]VertexID{0, 3, 2, 1},
		[]VertexID{4, 5, 6, 7},
		[]VertexID{0, 1, 5, 4},
		[]VertexID{1, 2, 6, 5},
		[]VertexID{2, 3, 7, 6},
		[]VertexID{3, 0, 4, 7},
	)
	return m
}

// octahedron: 6 vertices, 12 edges, 8 triangles; every vertex has degree 4.
func octahedron(t *testing.T) *Mesh {
	t.Helper()
	m := New(WithName("octahedron"))
	addVertices(m,
		v3.Vec{X: 1, Y: 0, Z: 0},
		v3.Vec{X: -1, Y: 0, Z: 0},
		v3.Vec{X: 0, Y: 1, Z: 0},
		v3.Vec{X: 0, Y: -1, Z: 0},
		v3.Vec{X: 0, Y: 0, Z: 1},
		v3.Vec{X: 0, Y: 0, Z: -1},
	)
	addFaces(t, m,
		[]VertexID{0, 2, 4},
		[]VertexID{2, 1, 4},
		[]VertexID{1, 3, 4},
		[]VertexID{3, 0, 4},
		[]VertexID{2, 0, 5},
		[]VertexID{1, 2, 5},
		[]VertexID{3, 1, 5},
		[]VertexID{0, 3, 5},
	)
	return m
}

// grid: n x n cells in the z=0 plane, each split into two triangles.
// Vertex (i, j) has handle j*(n+1)+i.
func grid(t *testing.T, n int) *Mesh {
	t.Helper()
	m := New(WithName("grid"))
	for j := 0; j <= n; j++ {
		for i := 0; i <= n; i++ {
			m.AddVertex(v3.Vec{X: float64(i), Y: float64(j)})
		}
	}
	at := func(i, j int) VertexID { return VertexID(j*(n+1) + i) }
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			addFaces(t, m,
				[]VertexID{at(i, j), at(i+1, j), at(i+1, j+1)},
				[]VertexID{at(i, j), at(i+1, j+1), at(i, j+1)},
			)
		}
	}
	return m
}

func requireValid(t *testing.T, m *Mesh) {
	t.Helper()
	require.Empty(t, m.Validate())
}

type counts struct{ v, e, f int }

func countsOf(m *Mesh) counts {
	return counts{m.NumVertices(), m.NumEdges(), m.NumFaces()}
}
