// Package parse turns Overpass node/way elements into line geometries.
package parse

import (
	"fmt"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"

	"github.com/vizzTools/osmUtils/internal/overpass"
)

// Line is one way resolved to coordinates.
type Line struct {
	WayID    osm.WayID
	Tags     osm.Tags
	Geometry orb.LineString
}

// PartialParseWarning reports a way that could not be resolved. The way is
// left out; the rest of the response is unaffected.
type PartialParseWarning struct {
	WayID  osm.WayID
	NodeID osm.NodeID // the missing node, 0 when not applicable
	Reason string
}

func (w *PartialParseWarning) Error() string {
	if w.NodeID != 0 {
		return fmt.Sprintf("parse: way %d: %s %d", w.WayID, w.Reason, w.NodeID)
	}
	return fmt.Sprintf("parse: way %d: %s", w.WayID, w.Reason)
}

// Lines resolves every way in elements against the nodes in elements.
// Ways are returned in element order with duplicates by id dropped. An
// empty result is not an error.
func Lines(elements []overpass.Element) ([]Line, []*PartialParseWarning) {
	nodes := make(map[osm.NodeID]orb.Point)
	for _, el := range elements {
		if el.Type == overpass.TypeNode {
			nodes[osm.NodeID(el.ID)] = orb.Point{el.Lon, el.Lat}
		}
	}

	var (
		lines    []Line
		warnings []*PartialParseWarning
		seen     = make(map[osm.WayID]bool)
	)
	for _, el := range elements {
		if el.Type != overpass.TypeWay {
			continue
		}
		id := osm.WayID(el.ID)
		if seen[id] {
			continue
		}
		seen[id] = true

		ls, warn := resolve(id, el.Nodes, nodes)
		if warn != nil {
			warnings = append(warnings, warn)
			continue
		}
		lines = append(lines, Line{WayID: id, Tags: tags(el.Tags), Geometry: ls})
	}
	return lines, warnings
}

// Merge concatenates line sets, keeping the first line seen for each way.
// Ways crossing a split boundary come back from both sides.
func Merge(sets ...[]Line) []Line {
	var out []Line
	seen := make(map[osm.WayID]bool)
	for _, set := range sets {
		for _, l := range set {
			if seen[l.WayID] {
				continue
			}
			seen[l.WayID] = true
			out = append(out, l)
		}
	}
	return out
}

func resolve(id osm.WayID, refs []int64, nodes map[osm.NodeID]orb.Point) (orb.LineString, *PartialParseWarning) {
	if len(refs) < 2 {
		return nil, &PartialParseWarning{WayID: id, Reason: fmt.Sprintf("has %d nodes, need at least 2", len(refs))}
	}
	ls := make(orb.LineString, 0, len(refs))
	for _, ref := range refs {
		p, ok := nodes[osm.NodeID(ref)]
		if !ok {
			return nil, &PartialParseWarning{WayID: id, NodeID: osm.NodeID(ref), Reason: "missing node"}
		}
		ls = append(ls, p)
	}
	return ls, nil
}

func tags(m map[string]string) osm.Tags {
	if len(m) == 0 {
		return nil
	}
	out := make(osm.Tags, 0, len(m))
	for k, v := range m {
		out = append(out, osm.Tag{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
