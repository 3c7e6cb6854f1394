package mesh

import (
	"fmt"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// normalEpsilon is the magnitude below which a summed normal is treated as
// zero.
const normalEpsilon = 1e-20

// FaceNormal returns the unit normal of f by Newell's method, which is
// well defined for non-planar and non-convex polygons. Degenerate faces give
// the zero vector.
func (m *Mesh) FaceNormal(f FaceID) v3.Vec {
	fr := m.face(f)
	if fr == nil {
		return v3.Vec{}
	}
	var n v3.Vec
	k := len(fr.vertices)
	for i := 0; i < k; i++ {
		a := m.Position(fr.vertices[i])
		b := m.Position(fr.vertices[(i+1)%k])
		n.X += (a.Y - b.Y) * (a.Z + b.Z)
		n.Y += (a.Z - b.Z) * (a.X + b.X)
		n.Z += (a.X - b.X) * (a.Y + b.Y)
	}
	l := n.Length()
	if l < normalEpsilon {
		return v3.Vec{}
	}
	return n.DivScalar(l)
}

// Normal returns the cached normal of v.
func (m *Mesh) Normal(v VertexID) v3.Vec {
	if vr := m.vert(v); vr != nil {
		return vr.normal
	}
	return v3.Vec{}
}

// NormalFactor returns the length of the unnormalized face-normal sum behind
// the cached normal of v.
func (m *Mesh) NormalFactor(v VertexID) float64 {
	if vr := m.vert(v); vr != nil {
		return vr.normalFactor
	}
	return 0
}

// HasPrecomputedNormal reports whether the normal of v was set externally.
func (m *Mesh) HasPrecomputedNormal(v VertexID) bool {
	vr := m.vert(v)
	return vr != nil && vr.precomputed
}

// SetNormal stores an externally computed normal for v. Incremental updates
// stop for v until UpdateNormal is called.
func (m *Mesh) SetNormal(v VertexID, n v3.Vec) error {
	vr := m.vert(v)
	if vr == nil {
		return fmt.Errorf("%w: %s", ErrVertexNotFound, v)
	}
	vr.normal = n
	vr.precomputed = true
	return nil
}

// UpdateNormal recomputes the normal of v as the normalized, unweighted sum
// of its face normals and clears the precomputed flag.
func (m *Mesh) UpdateNormal(v VertexID) error {
	vr := m.vert(v)
	if vr == nil {
		return fmt.Errorf("%w: %s", ErrVertexNotFound, v)
	}
	var sum v3.Vec
	for _, f := range vr.faces {
		sum = sum.Add(m.FaceNormal(f))
	}
	vr.setNormalSum(sum)
	vr.precomputed = false
	return nil
}

func (vr *vertex) setNormalSum(sum v3.Vec) {
	vr.normalFactor = sum.Length()
	if vr.normalFactor < normalEpsilon {
		vr.normal = v3.Vec{}
		return
	}
	vr.normal = sum.DivScalar(vr.normalFactor)
}

func (vr *vertex) addFaceNormal(n v3.Vec) {
	if vr.precomputed {
		return
	}
	vr.setNormalSum(vr.normal.MulScalar(vr.normalFactor).Add(n))
}

func (vr *vertex) removeFaceNormal(n v3.Vec) {
	if vr.precomputed {
		return
	}
	vr.setNormalSum(vr.normal.MulScalar(vr.normalFactor).Sub(n))
}
