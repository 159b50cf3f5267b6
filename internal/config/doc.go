// Package config defines configuration structures for the osmutils CLI.
//
// Configuration can be provided via:
//   - Command-line flags
//   - Environment variables (OSMUTILS_ prefix, optionally from a .env file)
//   - YAML configuration file
//
// Flags override the environment, which overrides the file.
//
// # Example
//
//	endpoint: https://overpass-api.de/api
//	timeout: 180s
//	aoi: area.geojson
//	zoom: 5
//	output_dir: output
//	format: geojson
//	filters: [all_roads]
//	max_depth: 4
//	split_factor: 2
//	workers: 2
//	redis: localhost:6379
//	metrics_addr: :9090
package config
