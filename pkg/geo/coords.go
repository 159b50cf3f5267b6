package geo

import (
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// CoordinateString renders the exterior ring of p as the space separated
// "lat lon lat lon ..." list used by the Overpass poly filter. Coordinates are
// rounded to 6 decimal places and holes are ignored.
func CoordinateString(p orb.Polygon) string {
	if len(p) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, pt := range p[0] {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(strconv.FormatFloat(pt[1], 'f', 6, 64))
		sb.WriteByte(' ')
		sb.WriteString(strconv.FormatFloat(pt[0], 'f', 6, 64))
	}
	return sb.String()
}

// CoordinateStrings checks the shape of g and returns one coordinate string
// per polygon part. Rings that touch themselves are accepted, since clipped
// and split parts of concave areas do.
func CoordinateStrings(g orb.Geometry) ([]string, error) {
	if err := ValidateShape(g); err != nil {
		return nil, err
	}
	parts, _ := Polygons(g)
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = CoordinateString(p)
	}
	return out, nil
}
