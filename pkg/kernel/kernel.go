// Package kernel defines the solid modeling interface used to generate
// meshes. A Kernel builds implicit solids from primitives and booleans and
// samples them into triangle buffers; the rest of the system only sees the
// Solid handle and the flat Mesh buffer.
package kernel

import "errors"

// ErrInvalidDimension is returned when a primitive is given a non-positive
// size.
var ErrInvalidDimension = errors.New("kernel: dimensions must be positive")

// Solid is an opaque handle to a geometry kernel solid.
// Implementations wrap their internal representation.
type Solid interface {
	// BoundingBox returns the axis-aligned bounding box.
	BoundingBox() (min, max [3]float64)
}

// Kernel is the abstract geometry kernel interface.
type Kernel interface {
	// Primitives, centered on the origin.
	Box(x, y, z float64) (Solid, error)
	Sphere(radius float64) (Solid, error)
	Cylinder(height, radius float64) (Solid, error)

	// Boolean operations
	Union(a, b Solid) Solid
	Difference(a, b Solid) Solid
	Intersection(a, b Solid) Solid

	// Transforms
	Translate(s Solid, x, y, z float64) Solid
	Rotate(s Solid, x, y, z float64) Solid // Euler angles in degrees

	// Mesh output
	ToMesh(s Solid) (*Mesh, error)
}
