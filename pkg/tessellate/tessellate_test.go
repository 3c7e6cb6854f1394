package tessellate_test

import (
	"testing"

	"github.com/chazu/facet/pkg/kernel"
	"github.com/chazu/facet/pkg/kernel/sdfx"
	"github.com/chazu/facet/pkg/mesh"
	"github.com/chazu/facet/pkg/tessellate"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// quad returns a unit square as a single 4-sided face.
func quad(t *testing.T) *mesh.Mesh {
	t.Helper()
	m := mesh.New(mesh.WithName("quad"))
	for _, p := range []v3.Vec{{}, {X: 1}, {X: 1, Y: 1}, {Y: 1}} {
		m.AddVertex(p)
	}
	_, err := m.AddFace([]mesh.VertexID{0, 1, 2, 3})
	require.NoError(t, err)
	return m
}

func TestBufferFanTriangulates(t *testing.T) {
	m := quad(t)
	buf := tessellate.Buffer(m)

	assert.Equal(t, "quad", buf.Name)
	assert.Equal(t, 4, buf.VertexCount())
	assert.Equal(t, []uint32{0, 1, 2, 0, 2, 3}, buf.Indices)
	assert.Len(t, buf.Normals, len(buf.Vertices))
	assert.InDelta(t, 1, buf.Normals[2], 1e-6, "cached normal is +Z")
}

func TestBufferSkipsRemovedVertices(t *testing.T) {
	m := quad(t)
	v := m.AddVertex(v3.Vec{X: 2})
	_, err := m.AddFace([]mesh.VertexID{1, v, 2})
	require.NoError(t, err)
	require.NoError(t, m.RemoveVertex(0))

	buf := tessellate.Buffer(m)
	assert.Equal(t, 4, buf.VertexCount())
	assert.Equal(t, []uint32{0, 3, 1}, buf.Indices)
}

func TestWeldSoup(t *testing.T) {
	// Two triangles of a square, each with its own copy of the diagonal.
	buf := &kernel.Mesh{
		Vertices: []float32{
			0, 0, 0, 1, 0, 0, 1, 1, 0,
			0, 0, 0, 1, 1, 0, 0, 1, 0,
		},
		Indices: []uint32{0, 1, 2, 3, 4, 5},
		Name:    "soup",
	}
	m, r, err := tessellate.Weld(buf, 0)
	require.NoError(t, err)

	assert.Equal(t, "soup", m.Name())
	assert.Equal(t, tessellate.Report{InputVertices: 6, Vertices: 4, Triangles: 2}, r)
	assert.Equal(t, 5, m.NumEdges())
	assert.Empty(t, m.Validate())
}

func TestWeldTolerance(t *testing.T) {
	buf := &kernel.Mesh{
		Vertices: []float32{
			0, 0, 0, 1, 0, 0, 1, 1, 0,
			0.0001, 0, 0, 1, 1, 0.0001, 0, 1, 0,
		},
		Indices: []uint32{0, 1, 2, 3, 4, 5},
	}
	exact, _, err := tessellate.Weld(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 6, exact.NumVertices())

	loose, _, err := tessellate.Weld(buf, 0.01, tessellate.WithName("loose"))
	require.NoError(t, err)
	assert.Equal(t, 4, loose.NumVertices())
	assert.Equal(t, "loose", loose.Name())
}

func TestWeldSkipsDegenerateTriangles(t *testing.T) {
	buf := &kernel.Mesh{
		Vertices: []float32{0, 0, 0, 1, 0, 0, 1, 1, 0, 1, 0, 0},
		Indices:  []uint32{0, 1, 2, 0, 1, 3},
	}
	m, r, err := tessellate.Weld(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, r.SkippedFaces)
	assert.Equal(t, 1, m.NumFaces())
}

func TestWeldRejectsMalformedBuffers(t *testing.T) {
	_, _, err := tessellate.Weld(&kernel.Mesh{Vertices: []float32{0, 0}}, 0)
	assert.Error(t, err)

	_, _, err = tessellate.Weld(&kernel.Mesh{Vertices: []float32{0, 0, 0}, Indices: []uint32{0, 0, 7}}, 0)
	assert.Error(t, err)
}

func TestFromSolidSphere(t *testing.T) {
	k := sdfx.New(sdfx.WithCells(16))
	s, err := k.Sphere(1)
	require.NoError(t, err)

	m, r, err := tessellate.FromSolid(k, s, 1e-6, tessellate.WithName("sphere"))
	require.NoError(t, err)
	assert.Equal(t, "sphere", m.Name())
	assert.Less(t, r.Vertices, r.InputVertices, "shared corners are welded")
	assert.Positive(t, m.NumFaces())
	assert.Empty(t, m.Validate())

	// A welded sphere is mostly closed: few edges have a single face.
	boundary := 0
	for _, e := range m.Edges() {
		if m.IsBoundaryEdge(e) {
			boundary++
		}
	}
	assert.Less(t, boundary, m.NumEdges()/10)
}
