package search

import (
	"fmt"
	"math"

	"github.com/chazu/facet/pkg/mesh"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// queueItem pairs a vertex with its hop count from the start.
type queueItem struct {
	id    mesh.VertexID
	depth int
}

// walker encapsulates mutable search state.
type walker struct {
	mesh   *mesh.Mesh
	opts   Options
	origin v3.Vec
	cutoff float64
	queue  []queueItem
	found  []mesh.VertexID
}

// Neighbors walks the edges of m outward from start and returns every vertex
// reached, in discovery order, excluding start itself.
//
// A vertex is expanded further only while it lies closer than 2*radius to
// start, but every unvisited neighbor of an expanded vertex is returned. The
// result may therefore reach one ring past 2*radius; weights computed from
// it should taper to near zero at that distance. The start vertex is always
// expanded.
func Neighbors(m *mesh.Mesh, start mesh.VertexID, radius float64, opts ...Option) ([]mesh.VertexID, error) {
	if m == nil {
		return nil, ErrMeshNil
	}
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.err != nil {
		return nil, o.err
	}
	if !m.HasVertex(start) {
		return nil, fmt.Errorf("%w: %s", ErrStartVertexNotFound, start)
	}
	if radius < 0 || math.IsNaN(radius) {
		return nil, fmt.Errorf("%w: got %v", ErrRadius, radius)
	}
	if o.Marker == nil {
		o.Marker = NewMarker(m.VertexCap())
	}
	o.Marker.Reset(m.VertexCap())

	w := &walker{
		mesh:   m,
		opts:   o,
		origin: m.Position(start),
		cutoff: 2 * radius,
	}
	o.Marker.Mark(int(start))
	w.queue = append(w.queue, queueItem{id: start})
	if err := w.loop(); err != nil {
		return nil, err
	}
	return w.found, nil
}

// loop expands queued vertices until none remain or the context ends.
func (w *walker) loop() error {
	for len(w.queue) > 0 {
		select {
		case <-w.opts.Ctx.Done():
			return w.opts.Ctx.Err()
		default:
		}

		item := w.queue[0]
		w.queue = w.queue[1:]
		w.expand(item)
	}
	return nil
}

// expand records every unseen neighbor of item and queues those inside the
// cutoff distance.
func (w *walker) expand(item queueItem) {
	next := item.depth + 1
	for _, nbr := range w.mesh.Neighbors(item.id) {
		if !w.opts.Marker.Mark(int(nbr)) {
			continue
		}
		w.found = append(w.found, nbr)
		if w.opts.MaxDepth > 0 && next >= w.opts.MaxDepth {
			continue
		}
		if w.mesh.Position(nbr).Sub(w.origin).Length() < w.cutoff {
			w.queue = append(w.queue, queueItem{id: nbr, depth: next})
		}
	}
}
