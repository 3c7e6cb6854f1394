package mesh

import (
	"fmt"
	"slices"

	v3 "github.com/deadsy/sdfx/vec/v3"
	"go.uber.org/zap"
)

// Mesh owns every vertex, edge and face. Entities refer to each other only
// through handles.
type Mesh struct {
	name string
	log  *zap.Logger

	// Arena slots; a nil slot is a removed entity. Slots are never reused, so
	// walking a slice in order yields insertion order.
	vertices []*vertex
	edges    []*edge
	faces    []*face

	numVertices int
	numEdges    int
	numFaces    int
}

// Option configures a Mesh at construction.
type Option func(*Mesh)

// WithName sets the display name of the mesh.
func WithName(name string) Option {
	return func(m *Mesh) { m.name = name }
}

// WithLogger routes mesh diagnostics to l. A nil logger is ignored.
func WithLogger(l *zap.Logger) Option {
	return func(m *Mesh) {
		if l != nil {
			m.log = l
		}
	}
}

// New creates an empty mesh.
func New(opts ...Option) *Mesh {
	m := &Mesh{log: zap.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name returns the display name of the mesh.
func (m *Mesh) Name() string { return m.name }

// SetName changes the display name of the mesh.
func (m *Mesh) SetName(name string) { m.name = name }

// Logger returns the logger the mesh reports to.
func (m *Mesh) Logger() *zap.Logger { return m.log }

func (m *Mesh) NumVertices() int { return m.numVertices }
func (m *Mesh) NumEdges() int    { return m.numEdges }
func (m *Mesh) NumFaces() int    { return m.numFaces }

// VertexCap returns one past the largest vertex handle ever issued. It sizes
// handle-indexed side tables.
func (m *Mesh) VertexCap() int { return len(m.vertices) }

func (m *Mesh) vert(v VertexID) *vertex {
	if v < 0 || int(v) >= len(m.vertices) {
		return nil
	}
	return m.vertices[v]
}

func (m *Mesh) edge(e EdgeID) *edge {
	if e < 0 || int(e) >= len(m.edges) {
		return nil
	}
	return m.edges[e]
}

func (m *Mesh) face(f FaceID) *face {
	if f < 0 || int(f) >= len(m.faces) {
		return nil
	}
	return m.faces[f]
}

// HasVertex reports whether v names a live vertex.
func (m *Mesh) HasVertex(v VertexID) bool { return m.vert(v) != nil }

// HasEdge reports whether e names a live edge.
func (m *Mesh) HasEdge(e EdgeID) bool { return m.edge(e) != nil }

// HasFace reports whether f names a live face.
func (m *Mesh) HasFace(f FaceID) bool { return m.face(f) != nil }

// Vertices returns the live vertices in insertion order.
func (m *Mesh) Vertices() []VertexID {
	out := make([]VertexID, 0, m.numVertices)
	for i, v := range m.vertices {
		if v != nil {
			out = append(out, VertexID(i))
		}
	}
	return out
}

// Edges returns the live edges in insertion order.
func (m *Mesh) Edges() []EdgeID {
	out := make([]EdgeID, 0, m.numEdges)
	for i, e := range m.edges {
		if e != nil {
			out = append(out, EdgeID(i))
		}
	}
	return out
}

// Faces returns the live faces in insertion order.
func (m *Mesh) Faces() []FaceID {
	out := make([]FaceID, 0, m.numFaces)
	for i, f := range m.faces {
		if f != nil {
			out = append(out, FaceID(i))
		}
	}
	return out
}

// AddVertex inserts an isolated vertex at p.
func (m *Mesh) AddVertex(p v3.Vec) VertexID {
	id := VertexID(len(m.vertices))
	m.vertices = append(m.vertices, &vertex{pos: p})
	m.numVertices++
	return id
}

// Position returns the position of v, or the zero vector for a dead handle.
func (m *Mesh) Position(v VertexID) v3.Vec {
	if vr := m.vert(v); vr != nil {
		return vr.pos
	}
	return v3.Vec{}
}

// SetPosition moves v to p. Cached normals are left alone.
func (m *Mesh) SetPosition(v VertexID, p v3.Vec) error {
	vr := m.vert(v)
	if vr == nil {
		return fmt.Errorf("%w: %s", ErrVertexNotFound, v)
	}
	vr.pos = p
	return nil
}

// Endpoints returns the two vertices of e.
func (m *Mesh) Endpoints(e EdgeID) (VertexID, VertexID) {
	er := m.edge(e)
	if er == nil {
		return NoVertex, NoVertex
	}
	return er.ends[0], er.ends[1]
}

// EdgeBetween returns an edge joining a and b, or NoEdge. It never returns a
// self loop.
func (m *Mesh) EdgeBetween(a, b VertexID) EdgeID {
	if a == b {
		return NoEdge
	}
	ar := m.vert(a)
	if ar == nil {
		return NoEdge
	}
	for _, e := range ar.edges {
		if m.edges[e].hasEndpoint(b) {
			return e
		}
	}
	return NoEdge
}

// VertexEdges returns the edges incident to v.
func (m *Mesh) VertexEdges(v VertexID) []EdgeID {
	if vr := m.vert(v); vr != nil {
		return slices.Clone(vr.edges)
	}
	return nil
}

// VertexFaces returns the faces incident to v.
func (m *Mesh) VertexFaces(v VertexID) []FaceID {
	if vr := m.vert(v); vr != nil {
		return slices.Clone(vr.faces)
	}
	return nil
}

// Neighbors returns the far endpoint of every edge at v, in edge order.
func (m *Mesh) Neighbors(v VertexID) []VertexID {
	vr := m.vert(v)
	if vr == nil {
		return nil
	}
	out := make([]VertexID, len(vr.edges))
	for i, e := range vr.edges {
		out[i] = m.edges[e].other(v)
	}
	return out
}

// EdgeFaces returns the faces incident to e.
func (m *Mesh) EdgeFaces(e EdgeID) []FaceID {
	if er := m.edge(e); er != nil {
		return slices.Clone(er.faces)
	}
	return nil
}

// FaceVertices returns the vertex cycle of f.
func (m *Mesh) FaceVertices(f FaceID) []VertexID {
	if fr := m.face(f); fr != nil {
		return slices.Clone(fr.vertices)
	}
	return nil
}

// FaceEdges returns the edge cycle of f, parallel to FaceVertices.
func (m *Mesh) FaceEdges(f FaceID) []EdgeID {
	if fr := m.face(f); fr != nil {
		return slices.Clone(fr.edges)
	}
	return nil
}

// IsBoundaryEdge reports whether e has exactly one incident face.
func (m *Mesh) IsBoundaryEdge(e EdgeID) bool {
	er := m.edge(e)
	return er != nil && len(er.faces) == 1
}

// IsBoundary reports whether v is isolated or touches a boundary edge.
func (m *Mesh) IsBoundary(v VertexID) bool {
	vr := m.vert(v)
	if vr == nil {
		return false
	}
	if len(vr.edges) == 0 {
		return true
	}
	for _, e := range vr.edges {
		if len(m.edges[e].faces) == 1 {
			return true
		}
	}
	return false
}

// AddFace creates a face over the ordered vertex cycle vs, reusing any edge
// that already joins a consecutive pair. Faces with fewer than 3 distinct
// vertices, or with a vertex repeated consecutively, are rejected. A vertex
// may otherwise appear more than once.
func (m *Mesh) AddFace(vs []VertexID) (FaceID, error) {
	n := len(vs)
	if n < 3 {
		return NoFace, fmt.Errorf("%w: got %d vertices", ErrFaceTooSmall, n)
	}
	for i, v := range vs {
		if m.vert(v) == nil {
			return NoFace, fmt.Errorf("%w: %s", ErrVertexNotFound, v)
		}
		if vs[(i+1)%n] == v {
			return NoFace, fmt.Errorf("%w: %s at position %d", ErrDegenerateFace, v, i)
		}
	}
	if distinct := len(uniqueVertices(vs)); distinct < 3 {
		return NoFace, fmt.Errorf("%w: got %d distinct vertices", ErrFaceTooSmall, distinct)
	}

	id := FaceID(len(m.faces))
	fr := &face{
		vertices: slices.Clone(vs),
		edges:    make([]EdgeID, n),
	}
	for i := range vs {
		a, b := vs[i], vs[(i+1)%n]
		e := m.EdgeBetween(a, b)
		if e == NoEdge {
			e = m.newEdge(a, b)
		}
		fr.edges[i] = e
		m.edges[e].faces = addUnique(m.edges[e].faces, id)
	}
	m.faces = append(m.faces, fr)
	m.numFaces++

	n3 := m.FaceNormal(id)
	for _, v := range uniqueVertices(vs) {
		m.attachFace(v, id, n3)
	}
	return id, nil
}

func (m *Mesh) newEdge(a, b VertexID) EdgeID {
	id := EdgeID(len(m.edges))
	m.edges = append(m.edges, &edge{ends: [2]VertexID{a, b}})
	m.numEdges++
	m.vertices[a].edges = append(m.vertices[a].edges, id)
	m.vertices[b].edges = append(m.vertices[b].edges, id)
	return id
}

// attachFace adds f to the face set of v and folds its normal into the
// vertex normal.
func (m *Mesh) attachFace(v VertexID, f FaceID, n v3.Vec) {
	vr := m.vertices[v]
	if slices.Contains(vr.faces, f) {
		return
	}
	vr.faces = append(vr.faces, f)
	vr.addFaceNormal(n)
}

// detachFace removes f from the face set of v and takes its normal back out
// of the vertex normal.
func (m *Mesh) detachFace(v VertexID, f FaceID, n v3.Vec) {
	vr := m.vertices[v]
	if !slices.Contains(vr.faces, f) {
		return
	}
	vr.faces = removeAll(vr.faces, f)
	vr.removeFaceNormal(n)
}

// RemoveFace deletes f and unlinks it from its vertices and edges. Edges and
// vertices left without faces stay in the mesh.
func (m *Mesh) RemoveFace(f FaceID) error {
	fr := m.face(f)
	if fr == nil {
		return fmt.Errorf("%w: %s", ErrFaceNotFound, f)
	}
	n := m.FaceNormal(f)
	for _, v := range uniqueVertices(fr.vertices) {
		if m.vert(v) != nil {
			m.detachFace(v, f, n)
		}
	}
	for _, e := range fr.edges {
		if er := m.edge(e); er != nil {
			er.faces = removeAll(er.faces, f)
		}
	}
	m.faces[f] = nil
	m.numFaces--
	return nil
}

// RemoveVertex deletes v together with every face and edge touching it.
// Neighbouring vertices are kept even if they end up isolated.
func (m *Mesh) RemoveVertex(v VertexID) error {
	vr := m.vert(v)
	if vr == nil {
		return fmt.Errorf("%w: %s", ErrVertexNotFound, v)
	}
	for _, f := range slices.Clone(vr.faces) {
		if err := m.RemoveFace(f); err != nil {
			return err
		}
	}
	for _, e := range slices.Clone(vr.edges) {
		m.unlinkEdge(e)
	}
	m.vertices[v] = nil
	m.numVertices--
	return nil
}

// unlinkEdge deletes e and removes it from its endpoints' edge sets. The
// caller guarantees no face still references e.
func (m *Mesh) unlinkEdge(e EdgeID) {
	er := m.edges[e]
	for _, v := range er.ends {
		if vr := m.vert(v); vr != nil {
			vr.edges = removeAll(vr.edges, e)
		}
	}
	m.edges[e] = nil
	m.numEdges--
}

func (m *Mesh) dropVertex(v VertexID) {
	m.vertices[v] = nil
	m.numVertices--
}

// Clone returns a deep copy. Handles are preserved, so IDs valid in m are
// valid in the copy.
func (m *Mesh) Clone() *Mesh {
	c := &Mesh{
		name:        m.name,
		log:         m.log,
		vertices:    make([]*vertex, len(m.vertices)),
		edges:       make([]*edge, len(m.edges)),
		faces:       make([]*face, len(m.faces)),
		numVertices: m.numVertices,
		numEdges:    m.numEdges,
		numFaces:    m.numFaces,
	}
	for i, v := range m.vertices {
		if v == nil {
			continue
		}
		cv := *v
		cv.edges = slices.Clone(v.edges)
		cv.faces = slices.Clone(v.faces)
		c.vertices[i] = &cv
	}
	for i, e := range m.edges {
		if e == nil {
			continue
		}
		ce := *e
		ce.faces = slices.Clone(e.faces)
		c.edges[i] = &ce
	}
	for i, f := range m.faces {
		if f == nil {
			continue
		}
		c.faces[i] = &face{
			vertices: slices.Clone(f.vertices),
			edges:    slices.Clone(f.edges),
		}
	}
	return c
}

// uniqueVertices returns vs without repeats, keeping first occurrences.
func uniqueVertices(vs []VertexID) []VertexID {
	out := make([]VertexID, 0, len(vs))
	for _, v := range vs {
		out = addUnique(out, v)
	}
	return out
}
