// Package search finds the vertices around a mesh vertex by a breadth-first
// walk over edges, bounded by Euclidean distance from the start.
package search

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Sentinel errors for neighbor search.
var (
	// ErrMeshNil is returned if a nil mesh pointer is passed.
	ErrMeshNil = errors.New("search: mesh is nil")

	// ErrStartVertexNotFound is returned when the start handle is not live.
	ErrStartVertexNotFound = errors.New("search: start vertex not found")

	// ErrRadius is returned for a negative or NaN radius.
	ErrRadius = errors.New("search: radius must be a non-negative number")

	// ErrOptionViolation is returned when an invalid Option is supplied.
	ErrOptionViolation = errors.New("search: invalid option supplied")
)

// Option configures a search via functional arguments.
type Option func(*Options)

// Options holds the parameters of one search.
type Options struct {
	// Ctx allows cancellation of long walks.
	Ctx context.Context

	// Marker records visited vertices. When nil, each search allocates its
	// own.
	Marker *Marker

	// MaxDepth, if > 0, stops expanding beyond this many hops.
	MaxDepth int

	err error
}

// DefaultOptions returns Options with a background context, no shared marker
// and no depth limit.
func DefaultOptions() Options {
	return Options{Ctx: context.Background()}
}

// WithContext sets a custom context for cancellation.
func WithContext(ctx context.Context) Option {
	return func(o *Options) {
		if ctx != nil {
			o.Ctx = ctx
		}
	}
}

// WithMarker reuses mk as the visited set. Callers running many searches
// (one per vertex in a smoothing pass) keep one marker per goroutine.
func WithMarker(mk *Marker) Option {
	return func(o *Options) {
		if mk != nil {
			o.Marker = mk
		}
	}
}

// WithMaxDepth limits expansion to d hops; 0 means no limit.
func WithMaxDepth(d int) Option {
	return func(o *Options) {
		if d < 0 {
			o.err = fmt.Errorf("%w: MaxDepth cannot be negative (%d)", ErrOptionViolation, d)
			return
		}
		o.MaxDepth = d
	}
}

// Marker is a visited set over vertex handles. Starting a new search bumps a
// generation counter instead of clearing the table.
type Marker struct {
	stamp []uint32
	gen   uint32
}

// NewMarker returns a marker sized for handles below n.
func NewMarker(n int) *Marker {
	return &Marker{stamp: make([]uint32, n), gen: 1}
}

// Reset forgets every mark and makes room for handles below n.
func (mk *Marker) Reset(n int) {
	if n > len(mk.stamp) {
		mk.stamp = append(mk.stamp, make([]uint32, n-len(mk.stamp))...)
	}
	mk.gen++
	if mk.gen == math.MaxUint32 {
		clear(mk.stamp)
		mk.gen = 1
	}
}

// Mark records i and reports whether it was unmarked before.
func (mk *Marker) Mark(i int) bool {
	if mk.stamp[i] == mk.gen {
		return false
	}
	mk.stamp[i] = mk.gen
	return true
}

// Marked reports whether i is marked in the current generation.
func (mk *Marker) Marked(i int) bool {
	return i >= 0 && i < len(mk.stamp) && mk.stamp[i] == mk.gen
}
