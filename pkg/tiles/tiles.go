// Package tiles generates the global slippy-map tile grid used to partition
// an area of interest into trackable work units.
package tiles

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/project"
)

// CRS identifies the coordinate reference system of generated geometries.
type CRS string

const (
	// WGS84 is the native CRS of the grid (lon/lat degrees).
	WGS84 CRS = "EPSG:4326"
	// WebMercator is spherical mercator in meters.
	WebMercator CRS = "EPSG:3857"
)

// MaxZoom is the deepest zoom level Generate accepts.
const MaxZoom = 24

// DefaultBound is the full extent tiles are generated over. Latitudes stop
// at ±85 to stay clear of the mercator poles.
var DefaultBound = orb.Bound{
	Min: orb.Point{-180, -85},
	Max: orb.Point{180, 85},
}

// ErrUnsupportedCRS is returned for a CRS other than WGS84 or WebMercator.
var ErrUnsupportedCRS = errors.New("tiles: unsupported crs")

// InvalidZoomError is returned for a zoom level outside [0, MaxZoom].
type InvalidZoomError struct {
	Zoom int
}

func (e *InvalidZoomError) Error() string {
	return fmt.Sprintf("tiles: invalid zoom %d (must be between 0 and %d)", e.Zoom, MaxZoom)
}

// Tile is one cell of the grid.
type Tile struct {
	ID       string
	Z        int
	X        int
	Y        int
	Geometry orb.Polygon
	CRS      CRS
}

// TileID formats the identifier of a tile as "{z}_{x}_{y}".
func TileID(z, x, y int) string {
	return fmt.Sprintf("%d_%d_%d", z, x, y)
}

// Generate returns every tile at zoom that overlaps bound, each clipped to
// bound, ordered by row (y) then column (x). An empty crs means WGS84.
func Generate(bound orb.Bound, zoom int, crs CRS) ([]Tile, error) {
	if zoom < 0 || zoom > MaxZoom {
		return nil, &InvalidZoomError{Zoom: zoom}
	}
	if crs == "" {
		crs = WGS84
	}
	if crs != WGS84 && crs != WebMercator {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCRS, crs)
	}

	z := maptile.Zoom(zoom)
	minX, maxX := lonToX(bound.Min[0], z), lonToX(bound.Max[0], z)
	// y grows southwards
	minY, maxY := latToY(bound.Max[1], z), latToY(bound.Min[1], z)

	var out []Tile
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			tb := maptile.New(uint32(x), uint32(y), z).Bound()
			cb, ok := intersect(tb, bound)
			if !ok {
				continue
			}
			poly := cb.ToPolygon()
			if crs == WebMercator {
				poly = project.Polygon(poly, project.WGS84.ToMercator)
			}
			out = append(out, Tile{
				ID:       TileID(zoom, x, y),
				Z:        zoom,
				X:        x,
				Y:        y,
				Geometry: poly,
				CRS:      crs,
			})
		}
	}
	return out, nil
}

// Cover grows b to the edges of the tiles at zoom that it touches, limited
// to DefaultBound. Generating over the result yields whole tiles.
func Cover(b orb.Bound, zoom int) (orb.Bound, error) {
	if zoom < 0 || zoom > MaxZoom {
		return orb.Bound{}, &InvalidZoomError{Zoom: zoom}
	}
	z := maptile.Zoom(zoom)
	nw := maptile.New(uint32(lonToX(b.Min[0], z)), uint32(latToY(b.Max[1], z)), z).Bound()
	se := maptile.New(uint32(lonToX(b.Max[0], z)), uint32(latToY(b.Min[1], z)), z).Bound()
	r, ok := intersect(nw.Union(se), DefaultBound)
	if !ok {
		return DefaultBound, nil
	}
	return r, nil
}

// intersect returns the overlap of two bounds. Bounds that only share an
// edge do not overlap.
func intersect(a, b orb.Bound) (orb.Bound, bool) {
	r := orb.Bound{
		Min: orb.Point{math.Max(a.Min[0], b.Min[0]), math.Max(a.Min[1], b.Min[1])},
		Max: orb.Point{math.Min(a.Max[0], b.Max[0]), math.Min(a.Max[1], b.Max[1])},
	}
	if r.Min[0] >= r.Max[0] || r.Min[1] >= r.Max[1] {
		return orb.Bound{}, false
	}
	return r, true
}

func lonToX(lon float64, z maptile.Zoom) int {
	n := 1 << uint(z)
	x := int(math.Floor((lon + 180) / 360 * float64(n)))
	return clampIndex(x, n)
}

func latToY(lat float64, z maptile.Zoom) int {
	n := 1 << uint(z)
	rad := lat * math.Pi / 180
	y := int(math.Floor((1 - math.Log(math.Tan(rad)+1/math.Cos(rad))/math.Pi) / 2 * float64(n)))
	return clampIndex(y, n)
}

func clampIndex(v, n int) int {
	if v < 0 {
		return 0
	}
	if v >= n {
		return n - 1
	}
	return v
}
