package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// InvalidGeometryError is returned when a geometry is not a polygon or
// multipolygon, or when it fails the validity check.
type InvalidGeometryError struct {
	Reason string
}

func (e *InvalidGeometryError) Error() string {
	return "geo: invalid geometry: " + e.Reason
}

func invalid(format string, args ...any) error {
	return &InvalidGeometryError{Reason: fmt.Sprintf(format, args...)}
}

// Polygons returns the polygon parts of g. A Polygon yields itself, a
// MultiPolygon yields its parts in order. Any other type is an error.
func Polygons(g orb.Geometry) ([]orb.Polygon, error) {
	switch v := g.(type) {
	case nil:
		return nil, invalid("nil geometry")
	case orb.Polygon:
		return []orb.Polygon{v}, nil
	case orb.MultiPolygon:
		return []orb.Polygon(v), nil
	default:
		return nil, invalid("unsupported geometry type %s", g.GeoJSONType())
	}
}

// Validate checks that g is a non-empty Polygon or MultiPolygon whose rings
// are closed, finite, have non-zero area and do not self-intersect.
func Validate(g orb.Geometry) error {
	return validate(g, true)
}

// ValidateShape is Validate without the self-intersection test. Clipped
// parts may touch themselves along a cell edge and still be usable.
func ValidateShape(g orb.Geometry) error {
	return validate(g, false)
}

func validate(g orb.Geometry, simple bool) error {
	parts, err := Polygons(g)
	if err != nil {
		return err
	}
	if len(parts) == 0 {
		return invalid("empty multipolygon")
	}
	for i, p := range parts {
		if err := validatePolygon(p, simple); err != nil {
			if len(parts) > 1 {
				return invalid("part %d: %s", i, err.(*InvalidGeometryError).Reason)
			}
			return err
		}
	}
	return nil
}

func validatePolygon(p orb.Polygon, simple bool) error {
	if len(p) == 0 {
		return invalid("empty polygon")
	}
	for i, r := range p {
		if err := validateRing(r, simple); err != nil {
			if i == 0 {
				return invalid("exterior ring: %s", err.(*InvalidGeometryError).Reason)
			}
			return invalid("ring %d: %s", i, err.(*InvalidGeometryError).Reason)
		}
	}
	if Area(p) == 0 {
		return invalid("zero area")
	}
	return nil
}

func validateRing(r orb.Ring, simple bool) error {
	if len(r) < 4 {
		return invalid("ring has %d points, need at least 4", len(r))
	}
	for _, pt := range r {
		if math.IsNaN(pt[0]) || math.IsNaN(pt[1]) || math.IsInf(pt[0], 0) || math.IsInf(pt[1], 0) {
			return invalid("non-finite coordinate")
		}
	}
	if !r.Closed() {
		return invalid("ring is not closed")
	}
	if math.Abs(planar.Area(r)) == 0 {
		return invalid("ring has zero area")
	}
	if simple && selfIntersects(r) {
		return invalid("ring self-intersects")
	}
	return nil
}

// selfIntersects reports whether any two non-adjacent edges of a closed ring
// touch or cross. O(n²); AOI rings are small enough.
func selfIntersects(r orb.Ring) bool {
	n := len(r) - 1 // number of edges
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if j == i+1 || (i == 0 && j == n-1) {
				continue
			}
			if segmentsIntersect(r[i], r[i+1], r[j], r[j+1]) {
				return true
			}
		}
	}
	return false
}

func segmentsIntersect(p1, p2, q1, q2 orb.Point) bool {
	d1 := cross(q1, q2, p1)
	d2 := cross(q1, q2, p2)
	d3 := cross(p1, p2, q1)
	d4 := cross(p1, p2, q2)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	return (d1 == 0 && onSegment(q1, q2, p1)) ||
		(d2 == 0 && onSegment(q1, q2, p2)) ||
		(d3 == 0 && onSegment(p1, p2, q1)) ||
		(d4 == 0 && onSegment(p1, p2, q2))
}

func cross(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

func onSegment(a, b, p orb.Point) bool {
	return math.Min(a[0], b[0]) <= p[0] && p[0] <= math.Max(a[0], b[0]) &&
		math.Min(a[1], b[1]) <= p[1] && p[1] <= math.Max(a[1], b[1])
}

// Area returns the planar area of a Polygon or MultiPolygon, holes removed.
func Area(g orb.Geometry) float64 {
	return math.Abs(planar.Area(g))
}
