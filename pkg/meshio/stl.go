package meshio

import (
	"fmt"

	"github.com/chazu/facet/pkg/mesh"
	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
)

// Triangles fan-triangulates every face of m around its first vertex.
func Triangles(m *mesh.Mesh) []*sdf.Triangle3 {
	var out []*sdf.Triangle3
	for _, f := range m.Faces() {
		vs := m.FaceVertices(f)
		for i := 1; i+1 < len(vs); i++ {
			out = append(out, &sdf.Triangle3{
				m.Position(vs[0]),
				m.Position(vs[i]),
				m.Position(vs[i+1]),
			})
		}
	}
	return out
}

// SaveSTL writes m to path as a binary STL file.
func SaveSTL(path string, m *mesh.Mesh) error {
	if err := render.SaveSTL(path, Triangles(m)); err != nil {
		return fmt.Errorf("meshio: save stl: %w", err)
	}
	return nil
}
