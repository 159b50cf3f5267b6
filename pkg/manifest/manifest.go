package manifest

import (
	"errors"
	"fmt"
	"sort"

	"github.com/paulmach/orb"

	"github.com/vizzTools/osmUtils/pkg/geo"
	"github.com/vizzTools/osmUtils/pkg/tiles"
)

// Status is the processing state of an entry, derived from its flags.
type Status string

const (
	// StatusPending means the entry has not been resolved yet.
	StatusPending Status = "pending"
	// StatusExported means data was retrieved and written for the entry.
	StatusExported Status = "exported"
	// StatusExcluded means the entry has no data or could not be retrieved.
	StatusExcluded Status = "excluded"
)

// Entry is one unit of work.
type Entry struct {
	ID       string
	Geometry orb.Geometry // orb.Polygon or orb.MultiPolygon
	Exclude  bool
	Exported bool
	Uploaded bool
}

// Status returns the state of the entry.
func (e Entry) Status() Status {
	switch {
	case e.Exclude:
		return StatusExcluded
	case e.Exported:
		return StatusExported
	default:
		return StatusPending
	}
}

// Terminal reports whether the entry must not be fetched again.
func (e Entry) Terminal() bool {
	return e.Exclude || e.Exported
}

// Manifest is the ordered list of work units.
type Manifest struct {
	Entries []Entry
}

// ErrDuplicateID is returned when a manifest holds the same id twice.
var ErrDuplicateID = errors.New("manifest: duplicate entry id")

// ErrUnitCRS is returned by Build for a unit whose geometry is not in WGS84,
// the CRS of the AOI and of every entry.
var ErrUnitCRS = errors.New("manifest: unit crs is not wgs84")

// Check verifies the manifest invariants: unique ids and valid geometries.
func (m *Manifest) Check() error {
	seen := make(map[string]bool, len(m.Entries))
	for _, e := range m.Entries {
		if seen[e.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateID, e.ID)
		}
		seen[e.ID] = true
		if err := geo.ValidateShape(e.Geometry); err != nil {
			return fmt.Errorf("manifest: entry %s: %w", e.ID, err)
		}
	}
	return nil
}

// Counts tallies entries per state.
type Counts struct {
	Total    int
	Pending  int
	Exported int
	Excluded int
	Uploaded int
}

// Counts returns the number of entries in each state.
func (m *Manifest) Counts() Counts {
	c := Counts{Total: len(m.Entries)}
	for _, e := range m.Entries {
		switch e.Status() {
		case StatusPending:
			c.Pending++
		case StatusExported:
			c.Exported++
		case StatusExcluded:
			c.Excluded++
		}
		if e.Uploaded {
			c.Uploaded++
		}
	}
	return c
}

// Build creates a manifest for aoi.
//
// With units == nil every polygon of aoi becomes one entry with id
// "aoi_{index}". Otherwise each unit overlapping aoi with positive area
// becomes one entry keyed by the tile id; keepTileGeometry selects whether
// the entry geometry is the tile polygon or the part of aoi inside the tile.
// Units must be in WGS84.
func Build(aoi orb.Geometry, units []tiles.Tile, keepTileGeometry bool) (*Manifest, error) {
	if err := geo.Validate(aoi); err != nil {
		return nil, err
	}
	parts, _ := geo.Polygons(aoi)

	m := &Manifest{}
	if units == nil {
		for i, p := range parts {
			m.Entries = append(m.Entries, Entry{
				ID:       fmt.Sprintf("aoi_%d", i),
				Geometry: p.Clone(),
			})
		}
		return m, nil
	}

	seen := make(map[string]bool, len(units))
	for _, u := range units {
		if u.CRS != "" && u.CRS != tiles.WGS84 {
			return nil, fmt.Errorf("%w: %s is %s", ErrUnitCRS, u.ID, u.CRS)
		}
		if seen[u.ID] {
			continue
		}
		tb := u.Geometry.Bound()

		var clipped orb.MultiPolygon
		for _, p := range parts {
			if !p.Bound().Intersects(tb) {
				continue
			}
			if c := geo.Clip(tb, p); c != nil {
				clipped = append(clipped, c)
			}
		}
		if len(clipped) == 0 {
			continue
		}
		seen[u.ID] = true

		var g orb.Geometry
		switch {
		case keepTileGeometry:
			g = u.Geometry.Clone()
		case len(clipped) == 1:
			g = clipped[0]
		default:
			g = clipped
		}
		m.Entries = append(m.Entries, Entry{ID: u.ID, Geometry: g})
	}

	// generation order is already stable; sorting by id keeps the result
	// independent of the order units were passed in
	sort.SliceStable(m.Entries, func(i, j int) bool {
		return lessTileID(m.Entries[i].ID, m.Entries[j].ID)
	})
	return m, nil
}

// lessTileID orders "{z}_{x}_{y}" ids by z, then y, then x. Ids that do not
// parse are ordered as strings after the ones that do.
func lessTileID(a, b string) bool {
	var az, ax, ay, bz, bx, by int
	_, errA := fmt.Sscanf(a, "%d_%d_%d", &az, &ax, &ay)
	_, errB := fmt.Sscanf(b, "%d_%d_%d", &bz, &bx, &by)
	switch {
	case errA != nil && errB != nil:
		return a < b
	case errA != nil:
		return false
	case errB != nil:
		return true
	}
	if az != bz {
		return az < bz
	}
	if ay != by {
		return ay < by
	}
	return ax < bx
}
