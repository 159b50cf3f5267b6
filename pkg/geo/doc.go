// Package geo holds the small amount of geometry handling the acquisition
// pipeline needs on top of github.com/paulmach/orb.
//
// It covers four concerns:
//   - Validation of AOI and unit geometries ([Validate])
//   - The Overpass "poly" coordinate string ([CoordinateString])
//   - Regular n×n subdivision of a polygon ([Split])
//   - Reading an AOI from GeoJSON or WKT ([ReadAOI], [ParseAOI])
//
// Geometries are in lon/lat order (orb.Point{lon, lat}). The Overpass
// coordinate string is emitted in lat/lon order.
package geo
