package mesh

import (
	"errors"
	"fmt"
	"slices"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Sentinel errors for mesh operations.
var (
	ErrVertexNotFound = errors.New("mesh: vertex not found")
	ErrEdgeNotFound   = errors.New("mesh: edge not found")
	ErrFaceNotFound   = errors.New("mesh: face not found")

	// ErrFaceTooSmall is returned by AddFace for fewer than 3 vertices, or
	// fewer than 3 distinct vertices.
	ErrFaceTooSmall = errors.New("mesh: face needs at least 3 distinct vertices")

	// ErrDegenerateFace is returned by AddFace when two consecutive vertices
	// are the same, which would require a self-loop edge.
	ErrDegenerateFace = errors.New("mesh: face repeats a vertex consecutively")

	// ErrSelfLoop is returned by CollapseEdge for an edge whose endpoints
	// coincide. Nothing is mutated.
	ErrSelfLoop = errors.New("mesh: edge is a self loop")

	// ErrNotCoincident is returned by MergeEdges when the edges do not join
	// the same pair of vertices.
	ErrNotCoincident = errors.New("mesh: edges to merge must have the same endpoints")

	// ErrCycleCorrupt reports a face whose cycles do not place the collapsing
	// vertex next to the collapsing edge. The caller handed in non-manifold
	// or already inconsistent topology; the mesh must be re-validated.
	ErrCycleCorrupt = errors.New("mesh: vertex not found in expected cycle position")
)

// VertexID addresses a vertex of a Mesh.
type VertexID int32

// EdgeID addresses an edge of a Mesh.
type EdgeID int32

// FaceID addresses a face of a Mesh.
type FaceID int32

// Absent handles.
const (
	NoVertex VertexID = -1
	NoEdge   EdgeID   = -1
	NoFace   FaceID   = -1
)

func (id VertexID) String() string { return fmt.Sprintf("v%d", int32(id)) }
func (id EdgeID) String() string   { return fmt.Sprintf("e%d", int32(id)) }
func (id FaceID) String() string   { return fmt.Sprintf("f%d", int32(id)) }

// vertex is the arena record behind a VertexID.
type vertex struct {
	pos v3.Vec

	// normal is cached; normalFactor is the length of the unnormalized sum
	// of face normals, kept so faces can be added and removed incrementally.
	normal       v3.Vec
	normalFactor float64
	precomputed  bool

	edges []EdgeID
	faces []FaceID
}

// edge is the arena record behind an EdgeID.
type edge struct {
	ends  [2]VertexID
	faces []FaceID
}

func (e *edge) hasEndpoint(v VertexID) bool {
	return e.ends[0] == v || e.ends[1] == v
}

func (e *edge) other(v VertexID) VertexID {
	if e.ends[0] == v {
		return e.ends[1]
	}
	return e.ends[0]
}

func (e *edge) coincident(o *edge) bool {
	return (e.ends[0] == o.ends[0] && e.ends[1] == o.ends[1]) ||
		(e.ends[0] == o.ends[1] && e.ends[1] == o.ends[0])
}

func (e *edge) replaceVertex(old, repl VertexID) {
	for i := range e.ends {
		if e.ends[i] == old {
			e.ends[i] = repl
		}
	}
}

// face is the arena record behind a FaceID. edges[i] joins vertices[i] and
// vertices[(i+1)%n].
type face struct {
	vertices []VertexID
	edges    []EdgeID
}

func (f *face) hasVertex(v VertexID) bool {
	return slices.Contains(f.vertices, v)
}

func (f *face) replaceVertex(old, repl VertexID) {
	for i := range f.vertices {
		if f.vertices[i] == old {
			f.vertices[i] = repl
		}
	}
}

func (f *face) replaceEdge(old, repl EdgeID) {
	for i := range f.edges {
		if f.edges[i] == old {
			f.edges[i] = repl
		}
	}
}

// Incidence lists are ordered sets: insertion order is kept, duplicates are
// never stored.

func addUnique[T comparable](s []T, x T) []T {
	if slices.Contains(s, x) {
		return s
	}
	return append(s, x)
}

func removeAll[T comparable](s []T, x T) []T {
	return slices.DeleteFunc(s, func(y T) bool { return y == x })
}
