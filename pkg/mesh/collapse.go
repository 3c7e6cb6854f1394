package mesh

import (
	"fmt"
	"slices"

	"go.uber.org/zap"
)

// CollapseEdge contracts e = (u, v) into u and returns u. Faces around e lose
// one corner; those left with fewer than 3 vertices are removed, and any two
// edges at u that end up joining the same pair of vertices are merged.
//
// A self-loop edge yields ErrSelfLoop and leaves the mesh untouched. A face
// whose cycles do not put v next to e yields ErrCycleCorrupt; that means the
// input broke the mesh invariants and the mesh must be re-validated.
//
// If the merges leave u isolated it is pruned and NoVertex is returned with a
// nil error.
func (m *Mesh) CollapseEdge(e EdgeID) (VertexID, error) {
	er := m.edge(e)
	if er == nil {
		return NoVertex, fmt.Errorf("%w: %s", ErrEdgeNotFound, e)
	}
	u, v := er.ends[0], er.ends[1]
	if u == v {
		m.log.Warn("cannot collapse self loop",
			zap.String("mesh", m.name), zap.Stringer("edge", e))
		return NoVertex, fmt.Errorf("%w: %s", ErrSelfLoop, e)
	}

	// Prefer to eliminate a vertex that some face repeats, one copy at a
	// time. The scan covers every face of the mesh, not only those at u.
	if m.repeatedInAnyFace(u) {
		u, v = v, u
	}

	around := slices.Clone(er.faces)
	for _, f := range around {
		if !m.faces[f].cornersTouch(e, v) {
			m.log.Error("collapse found inconsistent face cycle",
				zap.String("mesh", m.name), zap.Stringer("edge", e),
				zap.Stringer("face", f), zap.Stringer("vertex", v))
			return NoVertex, fmt.Errorf("%w: %s in %s", ErrCycleCorrupt, v, f)
		}
	}

	// Every face at u or v changes shape, so the normals of all their
	// vertices are rebuilt once the collapse settles.
	vr, ur := m.vertices[v], m.vertices[u]
	touched := m.faceVertices(ur.faces, vr.faces)

	// Strip e, and v beside it, out of every face around e. Faces elsewhere
	// that touch v still name it until the retargeting below.
	for _, f := range around {
		fr := m.faces[f]
		for {
			i := slices.Index(fr.edges, e)
			if i < 0 {
				break
			}
			if !fr.stripCorner(i, v) {
				m.log.Error("collapse found inconsistent face cycle",
					zap.String("mesh", m.name), zap.Stringer("edge", e),
					zap.Stringer("face", f), zap.Stringer("vertex", v))
				return NoVertex, fmt.Errorf("%w: %s in %s", ErrCycleCorrupt, v, f)
			}
		}
		er.faces = removeAll(er.faces, f)
		if !fr.hasVertex(v) {
			vr.faces = removeAll(vr.faces, f)
		}
	}

	// Retarget every remaining incidence of v to u. This turns e into (u, u);
	// it is deleted right after.
	for _, ve := range vr.edges {
		m.edges[ve].replaceVertex(v, u)
		ur.edges = addUnique(ur.edges, ve)
	}
	vr.edges = nil
	for _, vf := range vr.faces {
		m.faces[vf].replaceVertex(v, u)
		m.attachFace(u, vf, m.FaceNormal(vf))
	}
	vr.faces = nil

	m.unlinkEdge(e)
	m.dropVertex(v)

	for _, f := range around {
		if fr := m.face(f); fr != nil && len(fr.vertices) < 3 {
			if err := m.RemoveFace(f); err != nil {
				return NoVertex, err
			}
		}
	}

	// Shrunk faces and higher-genus regions can leave two edges joining the
	// same pair of vertices.
	for m.vert(u) != nil {
		e0, e1 := m.coincidentPair(u)
		if e0 == NoEdge {
			break
		}
		if _, err := m.MergeEdges(e0, e1); err != nil {
			return NoVertex, err
		}
	}

	m.refreshNormals(touched)

	m.log.Debug("collapsed edge",
		zap.String("mesh", m.name), zap.Stringer("edge", e),
		zap.Stringer("kept", u), zap.Stringer("removed", v))
	if m.vert(u) == nil {
		return NoVertex, nil
	}
	return u, nil
}

// faceVertices returns the distinct vertices of the given face sets.
func (m *Mesh) faceVertices(sets ...[]FaceID) []VertexID {
	var vs []VertexID
	for _, fs := range sets {
		for _, f := range fs {
			for _, w := range m.faces[f].vertices {
				vs = addUnique(vs, w)
			}
		}
	}
	return vs
}

// refreshNormals recomputes the cached normal of every live vertex in vs
// that was not set externally.
func (m *Mesh) refreshNormals(vs []VertexID) {
	for _, w := range vs {
		if wr := m.vert(w); wr != nil && !wr.precomputed {
			_ = m.UpdateNormal(w)
		}
	}
}

// repeatedInAnyFace reports whether some face lists v at least twice.
func (m *Mesh) repeatedInAnyFace(v VertexID) bool {
	for _, fr := range m.faces {
		if fr == nil {
			continue
		}
		seen := false
		for _, w := range fr.vertices {
			if w != v {
				continue
			}
			if seen {
				return true
			}
			seen = true
		}
	}
	return false
}

// coincidentPair returns two edges at v joining the same vertices, the later
// one first, or NoEdge.
func (m *Mesh) coincidentPair(v VertexID) (EdgeID, EdgeID) {
	es := m.vertices[v].edges
	for i := range es {
		for j := 0; j < i; j++ {
			if m.edges[es[i]].coincident(m.edges[es[j]]) {
				return es[i], es[j]
			}
		}
	}
	return NoEdge, NoEdge
}

// cornersTouch reports whether v sits at one end of every slot holding e.
func (f *face) cornersTouch(e EdgeID, v VertexID) bool {
	n := len(f.vertices)
	for i, fe := range f.edges {
		if fe == e && f.vertices[i] != v && f.vertices[(i+1)%n] != v {
			return false
		}
	}
	return true
}

// stripCorner drops slot i (edge i and one copy of v at either end of it) so
// that edge k still joins vertex k and vertex k+1. When v follows the edge,
// the vertex before it takes over v's slot; at the wrap-around this leaves
// that vertex at the front of the cycle.
func (f *face) stripCorner(i int, v VertexID) bool {
	next := (i + 1) % len(f.vertices)
	switch {
	case f.vertices[i] == v:
	case f.vertices[next] == v:
		f.vertices[next] = f.vertices[i]
	default:
		return false
	}
	f.vertices = slices.Delete(f.vertices, i, i+1)
	f.edges = slices.Delete(f.edges, i, i+1)
	return true
}
