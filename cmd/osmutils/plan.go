package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/vizzTools/osmUtils/internal/config"
	"github.com/vizzTools/osmUtils/pkg/geo"
	"github.com/vizzTools/osmUtils/pkg/manifest"
	"github.com/vizzTools/osmUtils/pkg/tiles"
)

// runPlan partitions an area of interest into tiles and writes one pending
// manifest entry per tile that overlaps it.
func runPlan(args []string) int {
	fs := flag.NewFlagSet("plan", flag.ExitOnError)
	s := newSettings(fs)

	bind(s, fs.StringVar, "aoi", "Area of interest: GeoJSON or WKT file (required)", func(c *config.Config) *string { return &c.AOI })
	bind(s, fs.IntVar, "zoom", "Tile zoom level (0-24)", func(c *config.Config) *int { return &c.Zoom })
	bind(s, fs.StringVar, "crs", "CRS of the -grid output: EPSG:4326 or EPSG:3857", func(c *config.Config) *string { return &c.CRS })
	bind(s, fs.BoolVar, "keep-tile-geometry", "Use whole tiles as entry geometry instead of the clipped area", func(c *config.Config) *bool { return &c.KeepTileGeometry })
	s.outputDir()
	s.manifest()
	noTiles := fs.Bool("no-tiles", false, "One entry per area polygon instead of tiles")
	grid := fs.String("grid", "", "Also write the tile grid as GeoJSON to this file")
	force := fs.Bool("force", false, "Overwrite an existing manifest")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: osmutils plan [options]

Partition an area of interest into map tiles and write the manifest. Every
tile that overlaps the area becomes one pending entry.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}

	cfg, err := s.resolve()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitConfigError
	}
	if cfg.AOI == "" {
		fmt.Fprintln(os.Stderr, "Error: -aoi is required")
		fs.Usage()
		return ExitInvalidArgs
	}

	ctx, cancel := signalContext()
	defer cancel()

	aoi, err := geo.ReadAOI(cfg.AOI)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading area of interest: %v\n", err)
		return ExitInvalidArgs
	}

	var units []tiles.Tile
	if !*noTiles {
		cover, err := tiles.Cover(aoi.Bound(), cfg.Zoom)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return ExitInvalidArgs
		}
		// queries need lat/lon, so entries always use WGS84 tiles
		if units, err = tiles.Generate(cover, cfg.Zoom, tiles.WGS84); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return ExitInvalidArgs
		}
		if units == nil {
			units = []tiles.Tile{}
		}
		if *grid != "" {
			if err := writeGrid(*grid, cover, cfg.Zoom, tiles.CRS(cfg.CRS)); err != nil {
				fmt.Fprintf(os.Stderr, "Error writing grid: %v\n", err)
				return ExitGeneralError
			}
		}
	}

	m, err := manifest.Build(aoi, units, cfg.KeepTileGeometry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building manifest: %v\n", err)
		return ExitInvalidArgs
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening manifest store: %v\n", err)
		return ExitStorageError
	}
	defer closeStore()

	if !*force {
		if exists, err := manifestExists(ctx, store); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return ExitStorageError
		} else if exists {
			fmt.Fprintf(os.Stderr, "Error: a manifest already exists at %s\n", cfg.ManifestLocation())
			fmt.Fprintln(os.Stderr, "Use -force to replace it")
			return ExitInvalidArgs
		}
	}

	if _, err := manifest.Create(ctx, store, m); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing manifest: %v\n", err)
		return ExitStorageError
	}

	fmt.Fprintf(os.Stderr, "[osmutils] Planned %d entries at zoom %d\n", len(m.Entries), cfg.Zoom)
	fmt.Fprintf(os.Stderr, "[osmutils] Manifest: %s\n", cfg.ManifestLocation())
	return ExitSuccess
}

func manifestExists(ctx context.Context, store manifest.Store) (bool, error) {
	_, err := store.Load(ctx)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, manifest.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// writeGrid writes the tiles covering b as a GeoJSON feature collection.
func writeGrid(path string, b orb.Bound, zoom int, crs tiles.CRS) error {
	grid, err := tiles.Generate(b, zoom, crs)
	if err != nil {
		return err
	}
	fc := geojson.NewFeatureCollection()
	for _, t := range grid {
		f := geojson.NewFeature(t.Geometry)
		f.ID = t.ID
		f.Properties["z"] = t.Z
		f.Properties["x"] = t.X
		f.Properties["y"] = t.Y
		f.Properties["crs"] = string(t.CRS)
		fc.Append(f)
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
