package manifest

import (
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"

	"github.com/vizzTools/osmUtils/pkg/geo"
	"github.com/vizzTools/osmUtils/pkg/tiles"
)

func square(minX, minY, maxX, maxY float64) orb.Polygon {
	return orb.Polygon{{
		{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY},
	}}
}

func mustTiles(t *testing.T, zoom int) []tiles.Tile {
	t.Helper()
	ts, err := tiles.Generate(tiles.DefaultBound, zoom, tiles.WGS84)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return ts
}

func TestBuildSingleTile(t *testing.T) {
	aoi := square(1, 1, 2, 2)
	m, err := Build(aoi, mustTiles(t, 3), false)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(m.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(m.Entries))
	}
	e := m.Entries[0]
	if e.ID != "3_4_3" {
		t.Errorf("expected id 3_4_3, got %s", e.ID)
	}
	if e.Status() != StatusPending || e.Uploaded {
		t.Errorf("expected fresh pending entry, got %+v", e)
	}
	if geo.Area(e.Geometry) != 1 {
		t.Errorf("expected AOI-shaped geometry of area 1, got %f", geo.Area(e.Geometry))
	}
}

func TestBuildKeepTileGeometry(t *testing.T) {
	m, err := Build(square(1, 1, 2, 2), mustTiles(t, 3), true)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	b := m.Entries[0].Geometry.Bound()
	if b.Min[0] != 0 || b.Max[0] != 45 {
		t.Errorf("expected tile geometry, got bound %v", b)
	}
}

func TestBuildFullExtent(t *testing.T) {
	m, err := Build(tiles.DefaultBound.ToPolygon(), mustTiles(t, 1), false)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(m.Entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(m.Entries))
	}
	want := []string{"1_0_0", "1_1_0", "1_0_1", "1_1_1"}
	for i, e := range m.Entries {
		if e.ID != want[i] {
			t.Errorf("entry %d: expected %s, got %s", i, want[i], e.ID)
		}
	}
}

func TestBuildDeduplicatesUnits(t *testing.T) {
	// two AOI parts inside the same tile
	aoi := orb.MultiPolygon{square(1, 1, 1.5, 1.5), square(1.6, 1.6, 2, 2)}
	units := mustTiles(t, 3)
	units = append(units, units...)

	m, err := Build(aoi, units, false)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(m.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(m.Entries))
	}
	if _, ok := m.Entries[0].Geometry.(orb.MultiPolygon); !ok {
		t.Errorf("expected multipolygon geometry, got %T", m.Entries[0].Geometry)
	}
}

func TestBuildEdgeTouchIsNotOverlap(t *testing.T) {
	// the AOI shares only the 0° meridian with the western tiles
	m, err := Build(square(0, 1, 1, 2), mustTiles(t, 1), false)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(m.Entries) != 1 || m.Entries[0].ID != "1_1_0" {
		t.Errorf("expected only 1_1_0, got %+v", m.Entries)
	}
}

func TestBuildWithoutUnits(t *testing.T) {
	aoi := orb.MultiPolygon{square(0, 0, 1, 1), square(2, 2, 3, 3)}
	m, err := Build(aoi, nil, false)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(m.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(m.Entries))
	}
	if m.Entries[0].ID != "aoi_0" || m.Entries[1].ID != "aoi_1" {
		t.Errorf("unexpected ids %s, %s", m.Entries[0].ID, m.Entries[1].ID)
	}
}

func TestBuildIdempotent(t *testing.T) {
	aoi := orb.Polygon{{{-30, -20}, {40, -25}, {60, 30}, {-10, 50}, {-30, -20}}}
	units := mustTiles(t, 3)

	a, err := Build(aoi, units, false)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// reversed unit order must not change the result
	reversed := make([]tiles.Tile, len(units))
	for i, u := range units {
		reversed[len(units)-1-i] = u
	}
	b, err := Build(aoi, reversed, false)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if len(a.Entries) != len(b.Entries) {
		t.Fatalf("entry count differs: %d vs %d", len(a.Entries), len(b.Entries))
	}
	for i := range a.Entries {
		ea, eb := a.Entries[i], b.Entries[i]
		if ea.ID != eb.ID || wkt.MarshalString(ea.Geometry) != wkt.MarshalString(eb.Geometry) {
			t.Errorf("entry %d differs: %s vs %s", i, ea.ID, eb.ID)
		}
		if !sameFlags(ea, eb) {
			t.Errorf("entry %d flags differ", i)
		}
	}
	if err := a.Check(); err != nil {
		t.Errorf("Check: %v", err)
	}
}

func TestBuildInvalidAOI(t *testing.T) {
	for name, aoi := range map[string]orb.Geometry{
		"bowtie": orb.Polygon{{{0, 0}, {1, 1}, {1, 0}, {0, 1}, {0, 0}}},
		"point":  orb.Point{0, 0},
	} {
		_, err := Build(aoi, mustTiles(t, 1), false)
		var ige *geo.InvalidGeometryError
		if !errors.As(err, &ige) {
			t.Errorf("%s: expected InvalidGeometryError, got %v", name, err)
		}
	}
}

func TestBuildConcaveAOIEntriesAreQueryable(t *testing.T) {
	// both arms of the U cross into the northern tile
	aoi := orb.Polygon{{
		{1, 10}, {30, 10}, {30, 50}, {20, 50}, {20, 20}, {10, 20}, {10, 50}, {1, 50}, {1, 10},
	}}
	m, err := Build(aoi, mustTiles(t, 3), false)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(m.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(m.Entries))
	}
	for _, e := range m.Entries {
		if _, err := geo.CoordinateStrings(e.Geometry); err != nil {
			t.Errorf("%s: CoordinateStrings: %v", e.ID, err)
		}
	}
}

func TestBuildRejectsProjectedUnits(t *testing.T) {
	units, err := tiles.Generate(tiles.DefaultBound, 1, tiles.WebMercator)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := Build(square(1, 1, 2, 2), units, false); !errors.Is(err, ErrUnitCRS) {
		t.Errorf("expected ErrUnitCRS, got %v", err)
	}
}

func TestCheckDuplicateID(t *testing.T) {
	m := &Manifest{Entries: []Entry{
		{ID: "a", Geometry: square(0, 0, 1, 1)},
		{ID: "a", Geometry: square(1, 1, 2, 2)},
	}}
	if err := m.Check(); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("expected ErrDuplicateID, got %v", err)
	}
}

func TestCounts(t *testing.T) {
	m := &Manifest{Entries: []Entry{
		{ID: "a"},
		{ID: "b", Exported: true, Uploaded: true},
		{ID: "c", Exclude: true},
		{ID: "d", Exported: true},
	}}
	c := m.Counts()
	want := Counts{Total: 4, Pending: 1, Exported: 2, Excluded: 1, Uploaded: 1}
	if c != want {
		t.Errorf("expected %+v, got %+v", want, c)
	}
}
