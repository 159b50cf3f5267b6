package geo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
)

// ReadAOI loads an area of interest from a GeoJSON or WKT file.
func ReadAOI(path string) (orb.Geometry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("geo: read aoi: %w", err)
	}
	return ParseAOI(data)
}

// ParseAOI decodes an area of interest. JSON input may be a GeoJSON
// geometry, Feature or FeatureCollection; anything else is parsed as WKT.
// Polygon parts from several features are merged into one MultiPolygon.
// The result is validated.
func ParseAOI(data []byte) (orb.Geometry, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, invalid("empty aoi")
	}

	var g orb.Geometry
	var err error
	if data[0] == '{' {
		g, err = parseGeoJSON(data)
	} else {
		g, err = wkt.Unmarshal(string(data))
		if err != nil {
			err = invalid("wkt: %v", err)
		}
	}
	if err != nil {
		return nil, err
	}

	if err := Validate(g); err != nil {
		return nil, err
	}
	return g, nil
}

func parseGeoJSON(data []byte) (orb.Geometry, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, invalid("geojson: %v", err)
	}

	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, invalid("geojson: %v", err)
		}
		geoms := make([]orb.Geometry, 0, len(fc.Features))
		for _, f := range fc.Features {
			geoms = append(geoms, f.Geometry)
		}
		return mergePolygons(geoms)
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, invalid("geojson: %v", err)
		}
		return mergePolygons([]orb.Geometry{f.Geometry})
	default:
		gg, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, invalid("geojson: %v", err)
		}
		return mergePolygons([]orb.Geometry{gg.Geometry()})
	}
}

func mergePolygons(geoms []orb.Geometry) (orb.Geometry, error) {
	var mp orb.MultiPolygon
	for _, g := range geoms {
		parts, err := Polygons(g)
		if err != nil {
			return nil, err
		}
		mp = append(mp, parts...)
	}
	switch len(mp) {
	case 0:
		return nil, invalid("no polygon in aoi")
	case 1:
		return mp[0], nil
	default:
		return mp, nil
	}
}
