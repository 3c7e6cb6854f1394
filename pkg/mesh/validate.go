package mesh

import (
	"fmt"
	"slices"
)

// ValidationError describes one broken mesh invariant.
type ValidationError struct {
	Vertex  VertexID // offending vertex, or NoVertex
	Edge    EdgeID   // offending edge, or NoEdge
	Face    FaceID   // offending face, or NoFace
	Message string
}

func (e ValidationError) Error() string {
	var where string
	switch {
	case e.Face != NoFace:
		where = e.Face.String()
	case e.Edge != NoEdge:
		where = e.Edge.String()
	case e.Vertex != NoVertex:
		where = e.Vertex.String()
	default:
		return e.Message
	}
	return fmt.Sprintf("%s: %s", where, e.Message)
}

// Validate audits the incidence lists and returns every broken invariant.
// An empty result means the mesh is consistent. Validate never mutates.
func (m *Mesh) Validate() []ValidationError {
	var errs []ValidationError
	errs = append(errs, m.validateVertices()...)
	errs = append(errs, m.validateEdges()...)
	errs = append(errs, m.validateFaces()...)
	errs = append(errs, m.validateCounts()...)
	return errs
}

func vertexErr(v VertexID, format string, args ...any) ValidationError {
	return ValidationError{Vertex: v, Edge: NoEdge, Face: NoFace, Message: fmt.Sprintf(format, args...)}
}

func edgeErr(e EdgeID, format string, args ...any) ValidationError {
	return ValidationError{Vertex: NoVertex, Edge: e, Face: NoFace, Message: fmt.Sprintf(format, args...)}
}

func faceErr(f FaceID, format string, args ...any) ValidationError {
	return ValidationError{Vertex: NoVertex, Edge: NoEdge, Face: f, Message: fmt.Sprintf(format, args...)}
}

// validateVertices checks that every edge and face a vertex lists is alive
// and lists the vertex back.
func (m *Mesh) validateVertices() []ValidationError {
	var errs []ValidationError
	for i, vr := range m.vertices {
		if vr == nil {
			continue
		}
		v := VertexID(i)
		for _, e := range vr.edges {
			er := m.edge(e)
			switch {
			case er == nil:
				errs = append(errs, vertexErr(v, "lists dead edge %s", e))
			case !er.hasEndpoint(v):
				errs = append(errs, vertexErr(v, "lists %s which does not end at it", e))
			}
		}
		for _, f := range vr.faces {
			fr := m.face(f)
			switch {
			case fr == nil:
				errs = append(errs, vertexErr(v, "lists dead face %s", f))
			case !fr.hasVertex(v):
				errs = append(errs, vertexErr(v, "lists %s which does not contain it", f))
			}
		}
		if dup := firstDuplicate(vr.edges); dup != NoEdge {
			errs = append(errs, vertexErr(v, "lists %s twice", dup))
		}
	}
	return errs
}

// validateEdges checks endpoints and the edge-face back references.
func (m *Mesh) validateEdges() []ValidationError {
	var errs []ValidationError
	for i, er := range m.edges {
		if er == nil {
			continue
		}
		e := EdgeID(i)
		if er.ends[0] == er.ends[1] {
			errs = append(errs, edgeErr(e, "is a self loop at %s", er.ends[0]))
		}
		for _, v := range er.ends {
			vr := m.vert(v)
			switch {
			case vr == nil:
				errs = append(errs, edgeErr(e, "ends at dead vertex %s", v))
			case !slices.Contains(vr.edges, e):
				errs = append(errs, edgeErr(e, "endpoint %s does not list it", v))
			}
		}
		for _, f := range er.faces {
			fr := m.face(f)
			switch {
			case fr == nil:
				errs = append(errs, edgeErr(e, "lists dead face %s", f))
			case !slices.Contains(fr.edges, e):
				errs = append(errs, edgeErr(e, "lists %s which does not contain it", f))
			}
		}
	}
	return errs
}

// validateFaces checks cycle length, cycle alignment and that every vertex
// and edge of a face lists the face.
func (m *Mesh) validateFaces() []ValidationError {
	var errs []ValidationError
	for i, fr := range m.faces {
		if fr == nil {
			continue
		}
		f := FaceID(i)
		n := len(fr.vertices)
		if n != len(fr.edges) {
			errs = append(errs, faceErr(f, "has %d vertices but %d edges", n, len(fr.edges)))
			continue
		}
		if n < 3 {
			errs = append(errs, faceErr(f, "has only %d vertices", n))
		}
		for k, v := range fr.vertices {
			vr := m.vert(v)
			switch {
			case vr == nil:
				errs = append(errs, faceErr(f, "references dead vertex %s", v))
				continue
			case !slices.Contains(vr.faces, f):
				errs = append(errs, faceErr(f, "vertex %s does not list it", v))
			}
			e := fr.edges[k]
			er := m.edge(e)
			if er == nil {
				errs = append(errs, faceErr(f, "references dead edge %s", e))
				continue
			}
			if !slices.Contains(er.faces, f) {
				errs = append(errs, faceErr(f, "edge %s does not list it", e))
			}
			next := fr.vertices[(k+1)%n]
			if !er.hasEndpoint(v) || !er.hasEndpoint(next) {
				errs = append(errs, faceErr(f, "edge %s does not join %s and %s", e, v, next))
			}
		}
	}
	return errs
}

func (m *Mesh) validateCounts() []ValidationError {
	var errs []ValidationError
	if got := len(m.Vertices()); got != m.numVertices {
		errs = append(errs, vertexErr(NoVertex, "vertex count %d, arena holds %d", m.numVertices, got))
	}
	if got := len(m.Edges()); got != m.numEdges {
		errs = append(errs, edgeErr(NoEdge, "edge count %d, arena holds %d", m.numEdges, got))
	}
	if got := len(m.Faces()); got != m.numFaces {
		errs = append(errs, faceErr(NoFace, "face count %d, arena holds %d", m.numFaces, got))
	}
	return errs
}

func firstDuplicate(es []EdgeID) EdgeID {
	for i := range es {
		if slices.Contains(es[:i], es[i]) {
			return es[i]
		}
	}
	return NoEdge
}
