package geo

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
)

// minPartRatio drops clip slivers whose area is negligible relative to the
// grid cell that produced them.
const minPartRatio = 1e-12

// Split divides the bounding box of p into an n×n grid and returns the
// non-empty intersections of each cell with p, column by column from the
// south-west corner. A concave polygon yields fewer than n² parts.
// n < 2 returns p unchanged.
func Split(p orb.Polygon, n int) []orb.Polygon {
	if len(p) == 0 {
		return nil
	}
	if n < 2 {
		return []orb.Polygon{p.Clone()}
	}

	b := p.Bound()
	dx := (b.Max[0] - b.Min[0]) / float64(n)
	dy := (b.Max[1] - b.Min[1]) / float64(n)

	var parts []orb.Polygon
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			cell := orb.Bound{
				Min: orb.Point{b.Min[0] + float64(i)*dx, b.Min[1] + float64(j)*dy},
				Max: orb.Point{b.Min[0] + float64(i+1)*dx, b.Min[1] + float64(j+1)*dy},
			}
			// pin the outer edges so rounding never leaves a gap
			if i == n-1 {
				cell.Max[0] = b.Max[0]
			}
			if j == n-1 {
				cell.Max[1] = b.Max[1]
			}

			part := closeRings(clip.Polygon(cell, p.Clone()))
			if len(part) == 0 || len(part[0]) < 4 {
				continue
			}
			if Area(part) <= Area(cell.ToPolygon())*minPartRatio {
				continue
			}
			parts = append(parts, part)
		}
	}
	return parts
}

// SplitGeometry applies Split to every polygon part of g.
func SplitGeometry(g orb.Geometry, n int) ([]orb.Polygon, error) {
	polys, err := Polygons(g)
	if err != nil {
		return nil, err
	}
	var out []orb.Polygon
	for _, p := range polys {
		out = append(out, Split(p, n)...)
	}
	return out, nil
}

// Clip returns the part of p inside b, or nil when the overlap has no area.
func Clip(b orb.Bound, p orb.Polygon) orb.Polygon {
	part := closeRings(clip.Polygon(b, p.Clone()))
	if len(part) == 0 || len(part[0]) < 4 || Area(part) == 0 {
		return nil
	}
	return part
}

// closeRings drops repeated points and closes every ring of p.
func closeRings(p orb.Polygon) orb.Polygon {
	out := p[:0]
	for i, r := range p {
		if len(r) == 0 {
			if i == 0 {
				return nil
			}
			continue
		}
		clean := orb.Ring{r[0]}
		for _, pt := range r[1:] {
			if !pt.Equal(clean[len(clean)-1]) {
				clean = append(clean, pt)
			}
		}
		if !clean.Closed() {
			clean = append(clean, clean[0])
		}
		if len(clean) < 4 {
			if i == 0 {
				return nil
			}
			continue
		}
		out = append(out, clean)
	}
	return out
}
