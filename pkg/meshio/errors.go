// Package meshio reads and writes meshes. OFF files round-trip through the
// mesh.Mesh public API; STL is supported for export.
package meshio

import (
	"errors"
	"fmt"
)

// Sentinel errors for mesh I/O. Parse failures arrive wrapped in a
// *FormatError.
var (
	ErrHeader     = errors.New("meshio: OFF header not found")
	ErrCounts     = errors.New("meshio: invalid element counts")
	ErrVertex     = errors.New("meshio: invalid vertex")
	ErrFace       = errors.New("meshio: invalid face")
	ErrIndexRange = errors.New("meshio: vertex index out of range")

	// ErrUnsupportedFormat is returned for a path whose extension has no
	// codec.
	ErrUnsupportedFormat = errors.New("meshio: unsupported mesh format")

	// ErrDanglingVertex is returned by Write when a face names a vertex the
	// mesh no longer holds.
	ErrDanglingVertex = errors.New("meshio: face references vertex absent from mesh")
)

// FormatError describes where an input file stopped making sense.
type FormatError struct {
	Path    string // file path, empty for streams
	Element string // "header", "counts", "vertex 3", "face 7"
	Err     error  // one of the sentinels above
	Detail  string
}

func (e *FormatError) Error() string {
	where := e.Element
	if e.Path != "" {
		where = e.Path + ": " + where
	}
	if e.Detail == "" {
		return fmt.Sprintf("%v (%s)", e.Err, where)
	}
	return fmt.Sprintf("%v (%s): %s", e.Err, where, e.Detail)
}

func (e *FormatError) Unwrap() error { return e.Err }
