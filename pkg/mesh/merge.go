package mesh

import "fmt"

// MergeEdges folds two coincident edges into one. Every face of e1 becomes a
// face of e0 and its edge cycle is rewritten to name e0. The edge that ends
// up carrying faces survives; if neither does, both are removed. Endpoints
// left with no edges and no faces are removed too.
//
// Passing NoEdge for one argument is a no-op that returns the other. The
// surviving edge is returned, or NoEdge when both were discarded.
func (m *Mesh) MergeEdges(e0, e1 EdgeID) (EdgeID, error) {
	if e0 == NoEdge {
		return e1, nil
	}
	if e1 == NoEdge || e0 == e1 {
		return e0, nil
	}
	r0, r1 := m.edge(e0), m.edge(e1)
	if r0 == nil {
		return NoEdge, fmt.Errorf("%w: %s", ErrEdgeNotFound, e0)
	}
	if r1 == nil {
		return NoEdge, fmt.Errorf("%w: %s", ErrEdgeNotFound, e1)
	}
	if !r0.coincident(r1) {
		return NoEdge, fmt.Errorf("%w: %s and %s", ErrNotCoincident, e0, e1)
	}

	for _, f := range r1.faces {
		r0.faces = addUnique(r0.faces, f)
		// A face may reference both edges, so rewrite even when f was
		// already on e0.
		m.faces[f].replaceEdge(e1, e0)
	}
	r1.faces = nil

	discard := []EdgeID{e1}
	if len(r0.faces) == 0 {
		discard = append(discard, e0)
	}
	u, v := r0.ends[0], r0.ends[1]
	for _, e := range discard {
		m.unlinkEdge(e)
	}

	for _, w := range [2]VertexID{u, v} {
		if wr := m.vert(w); wr != nil && len(wr.edges) == 0 && len(wr.faces) == 0 {
			m.dropVertex(w)
		}
	}

	if len(discard) == 2 {
		return NoEdge, nil
	}
	return e0, nil
}
