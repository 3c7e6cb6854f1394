// Package descriptor computes global shape descriptors of a mesh: enclosed
// volume, volume to bounding box ratio, the D2 shape distribution and edge
// length statistics. Polygonal faces are fan-triangulated.
package descriptor

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/chazu/facet/pkg/mesh"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

var (
	// ErrEmptyMesh is returned when a descriptor needs faces or vertices
	// and the mesh has none.
	ErrEmptyMesh = errors.New("descriptor: mesh has no faces")

	// ErrParameter is returned for a non-positive point or bin count.
	ErrParameter = errors.New("descriptor: invalid parameter")
)

// triangles calls fn for every fan triangle of every face.
func triangles(m *mesh.Mesh, fn func(a, b, c v3.Vec)) {
	for _, f := range m.Faces() {
		vs := m.FaceVertices(f)
		p0 := m.Position(vs[0])
		for i := 1; i+1 < len(vs); i++ {
			fn(p0, m.Position(vs[i]), m.Position(vs[i+1]))
		}
	}
}

// Volume returns the signed volume enclosed by m. It is positive when faces
// wind counter-clockwise seen from outside and exact for closed meshes.
func Volume(m *mesh.Mesh) float64 {
	var vol float64
	triangles(m, func(a, b, c v3.Vec) {
		vol += a.Dot(b.Cross(c))
	})
	return vol / 6
}

// Area returns the total surface area of m.
func Area(m *mesh.Mesh) float64 {
	var area float64
	triangles(m, func(a, b, c v3.Vec) {
		area += triangleArea(a, b, c)
	})
	return area
}

func triangleArea(a, b, c v3.Vec) float64 {
	return b.Sub(a).Cross(c.Sub(a)).Length() / 2
}

// VolumeToBBoxRatio returns |Volume(m)| divided by the volume of the
// axis-aligned bounding box of m.
func VolumeToBBoxRatio(m *mesh.Mesh) (float64, error) {
	lo, hi, ok := m.BoundingBox()
	if !ok || m.NumFaces() == 0 {
		return 0, ErrEmptyMesh
	}
	d := hi.Sub(lo)
	box := d.X * d.Y * d.Z
	if box == 0 {
		return 0, fmt.Errorf("descriptor: bounding box %v is flat", d)
	}
	return math.Abs(Volume(m)) / box, nil
}

// SamplePoints draws n points uniformly by area from the surface of m.
// The same seed on the same mesh yields the same points.
func SamplePoints(m *mesh.Mesh, n int, seed int64) ([]v3.Vec, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: %d points", ErrParameter, n)
	}
	var tris [][3]v3.Vec
	var areas []float64
	triangles(m, func(a, b, c v3.Vec) {
		tris = append(tris, [3]v3.Vec{a, b, c})
		areas = append(areas, triangleArea(a, b, c))
	})
	if len(tris) == 0 {
		return nil, ErrEmptyMesh
	}
	cum := floats.CumSum(make([]float64, len(areas)), areas)
	total := cum[len(cum)-1]
	if total == 0 {
		return nil, fmt.Errorf("%w: zero surface area", ErrEmptyMesh)
	}

	rng := rand.New(rand.NewSource(seed))
	pts := make([]v3.Vec, n)
	for i := range pts {
		k := sort.SearchFloat64s(cum, rng.Float64()*total)
		if k == len(cum) {
			k--
		}
		t := tris[k]
		r1, r2 := math.Sqrt(rng.Float64()), rng.Float64()
		pts[i] = t[0].MulScalar(1 - r1).
			Add(t[1].MulScalar(r1 * (1 - r2))).
			Add(t[2].MulScalar(r1 * r2))
	}
	return pts, nil
}

// D2 returns the D2 shape distribution of m: all pairwise distances between
// distinct points of an area-uniform sample, binned into bins uniform bins
// over [0, bounding box diagonal]. Each unordered pair is counted once and
// the counts are scaled by 2/points, so the histogram sums to points-1.
func D2(m *mesh.Mesh, points, bins int, seed int64) ([]float64, error) {
	if bins <= 0 {
		return nil, fmt.Errorf("%w: %d bins", ErrParameter, bins)
	}
	pts, err := SamplePoints(m, points, seed)
	if err != nil {
		return nil, err
	}
	lo, hi, _ := m.BoundingBox()
	diag := hi.Sub(lo).Length()

	dists := make([]float64, 0, len(pts)*(len(pts)-1)/2)
	for i := range pts {
		for j := i + 1; j < len(pts); j++ {
			dists = append(dists, pts[i].Sub(pts[j]).Length())
		}
	}
	sort.Float64s(dists)

	// Points lie inside the box, so only rounding can push a distance past
	// the diagonal. The top divider must exceed every value.
	top := diag
	if n := len(dists); n > 0 && dists[n-1] > top {
		top = dists[n-1]
	}
	dividers := floats.Span(make([]float64, bins+1), 0, top)
	dividers[bins] = math.Nextafter(top, math.Inf(1))

	hist := stat.Histogram(nil, dividers, dists, nil)
	floats.Scale(2/float64(len(pts)), hist)
	return hist, nil
}

// EdgeStats summarizes the edge lengths of a mesh.
type EdgeStats struct {
	Count  int
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64
}

// EdgeLengths returns length statistics over all edges of m. StdDev is the
// sample standard deviation and is NaN for a single edge.
func EdgeLengths(m *mesh.Mesh) (EdgeStats, error) {
	es := m.Edges()
	if len(es) == 0 {
		return EdgeStats{}, fmt.Errorf("descriptor: mesh has no edges")
	}
	ls := make([]float64, len(es))
	for i, e := range es {
		ls[i] = m.EdgeLength(e)
	}
	mean, std := stat.MeanStdDev(ls, nil)
	return EdgeStats{
		Count:  len(ls),
		Min:    floats.Min(ls),
		Max:    floats.Max(ls),
		Mean:   mean,
		StdDev: std,
	}, nil
}
