// Package mesh defines an incidence-based polygon mesh: vertices, edges and
// faces stored in per-kind arenas and addressed by integer handles.
//
// Every vertex lists the edges and faces touching it, every edge lists its
// faces, and every face keeps two parallel cycles (vertices and edges, where
// edge i joins vertex i to vertex i+1). These lists are kept mutually
// consistent after every exported call returns. Structural edits (edge merge,
// edge collapse) may leave the mesh inconsistent only inside the call.
//
// Handles are never reused. A handle to a removed entity is simply dead;
// accessors on dead handles return zero values and mutators return
// ErrVertexNotFound, ErrEdgeNotFound or ErrFaceNotFound.
//
// A Mesh is not safe for concurrent mutation. Concurrent readers are fine as
// long as no goroutine mutates the mesh at the same time.
package mesh
