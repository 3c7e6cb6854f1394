package mesh

import (
	"math"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// EdgeLength returns the distance between the endpoints of e.
func (m *Mesh) EdgeLength(e EdgeID) float64 {
	er := m.edge(e)
	if er == nil {
		return 0
	}
	return m.Position(er.ends[1]).Sub(m.Position(er.ends[0])).Length()
}

// AverageEdgeLength returns the mean length over all live edges, or 0 for a
// mesh without edges.
func (m *Mesh) AverageEdgeLength() float64 {
	if m.numEdges == 0 {
		return 0
	}
	var sum float64
	for _, e := range m.Edges() {
		sum += m.EdgeLength(e)
	}
	return sum / float64(m.numEdges)
}

// BoundingBox returns the axis-aligned extent of the live vertices. ok is
// false for an empty mesh.
func (m *Mesh) BoundingBox() (lo, hi v3.Vec, ok bool) {
	lo = v3.Vec{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	hi = v3.Vec{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}
	for _, vr := range m.vertices {
		if vr == nil {
			continue
		}
		ok = true
		lo = v3.Vec{X: math.Min(lo.X, vr.pos.X), Y: math.Min(lo.Y, vr.pos.Y), Z: math.Min(lo.Z, vr.pos.Z)}
		hi = v3.Vec{X: math.Max(hi.X, vr.pos.X), Y: math.Max(hi.Y, vr.pos.Y), Z: math.Max(hi.Z, vr.pos.Z)}
	}
	if !ok {
		return v3.Vec{}, v3.Vec{}, false
	}
	return lo, hi, true
}
