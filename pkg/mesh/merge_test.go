package mesh

import (
	"testing"

	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// triangleWithDouble builds one triangle plus a second, faceless edge
// parallel to its first edge.
func triangleWithDouble(t *testing.T) (m *Mesh, f FaceID, e, dup EdgeID) {
	t.Helper()
	m = New()
	vs := addVertices(m, v3.Vec{}, v3.Vec{X: 1}, v3.Vec{Y: 1})
	f = addFaces(t, m, vs)[0]
	e = m.EdgeBetween(vs[0], vs[1])
	dup = m.newEdge(vs[1], vs[0])
	return m, f, e, dup
}

func TestMergeEdgesKeepsEdgeWithFaces(t *testing.T) {
	m, f, e, dup := triangleWithDouble(t)

	got, err := m.MergeEdges(e, dup)
	require.NoError(t, err)
	assert.Equal(t, e, got)
	assert.False(t, m.HasEdge(dup))
	assert.Equal(t, []FaceID{f}, m.EdgeFaces(e))
	assert.Equal(t, counts{3, 3, 1}, countsOf(m))
	requireValid(t, m)
}

func TestMergeEdgesTransfersFaces(t *testing.T) {
	m, f, e, dup := triangleWithDouble(t)

	got, err := m.MergeEdges(dup, e)
	require.NoError(t, err)
	assert.Equal(t, dup, got)
	assert.False(t, m.HasEdge(e))
	assert.Equal(t, []FaceID{f}, m.EdgeFaces(dup))
	assert.Contains(t, m.FaceEdges(f), dup)
	assert.NotContains(t, m.FaceEdges(f), e)
	requireValid(t, m)
}

func TestMergeEdgesUnionOfFaces(t *testing.T) {
	m := New()
	vs := addVertices(m, v3.Vec{}, v3.Vec{X: 1}, v3.Vec{Y: 1}, v3.Vec{Y: -1})
	f0 := addFaces(t, m, []VertexID{vs[0], vs[1], vs[2]})[0]
	e := m.EdgeBetween(vs[0], vs[1])

	// Hand-build a second face over a parallel copy of e.
	dup := m.newEdge(vs[1], vs[0])
	f1 := FaceID(len(m.faces))
	m.faces = append(m.faces, &face{
		vertices: []VertexID{vs[1], vs[0], vs[3]},
		edges:    []EdgeID{dup, m.newEdge(vs[0], vs[3]), m.newEdge(vs[3], vs[1])},
	})
	m.numFaces++
	for _, fe := range m.faces[f1].edges {
		m.edges[fe].faces = append(m.edges[fe].faces, f1)
	}
	for _, v := range m.faces[f1].vertices {
		m.attachFace(v, f1, m.FaceNormal(f1))
	}
	requireValid(t, m)

	got, err := m.MergeEdges(e, dup)
	require.NoError(t, err)
	assert.Equal(t, e, got)
	assert.Equal(t, []FaceID{f0, f1}, m.EdgeFaces(e))
	assert.Equal(t, e, m.FaceEdges(f1)[0])
	assert.Equal(t, counts{4, 5, 2}, countsOf(m))
	requireValid(t, m)
}

func TestMergeEdgesBothFaceless(t *testing.T) {
	m := New()
	a, b := m.AddVertex(v3.Vec{}), m.AddVertex(v3.Vec{X: 1})
	e0 := m.newEdge(a, b)
	e1 := m.newEdge(b, a)

	got, err := m.MergeEdges(e0, e1)
	require.NoError(t, err)
	assert.Equal(t, NoEdge, got)
	assert.Equal(t, counts{0, 0, 0}, countsOf(m), "isolated endpoints are pruned")
	requireValid(t, m)
}

func TestMergeEdgesNoOps(t *testing.T) {
	m, _, e, _ := triangleWithDouble(t)
	before := countsOf(m)

	tests := []struct {
		name   string
		e0, e1 EdgeID
		want   EdgeID
	}{
		{"first absent", NoEdge, e, e},
		{"second absent", e, NoEdge, e},
		{"same edge", e, e, e},
		{"both absent", NoEdge, NoEdge, NoEdge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.MergeEdges(tt.e0, tt.e1)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, before, countsOf(m))
		})
	}
}

func TestMergeEdgesErrors(t *testing.T) {
	m, _, e, _ := triangleWithDouble(t)
	other := m.EdgeBetween(1, 2)

	_, err := m.MergeEdges(e, other)
	assert.ErrorIs(t, err, ErrNotCoincident)

	_, err = m.MergeEdges(e, 99)
	assert.ErrorIs(t, err, ErrEdgeNotFound)

	_, err = m.MergeEdges(99, e)
	assert.ErrorIs(t, err, ErrEdgeNotFound)
}
