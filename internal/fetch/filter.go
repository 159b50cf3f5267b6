package fetch

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// DefaultInfrastructure selects the elements a query starts from.
const DefaultInfrastructure = `way["highway"]`

// ErrUnknownPreset is returned for a filter name that is not a preset.
var ErrUnknownPreset = errors.New("fetch: unknown filter preset")

var presets = map[string]string{
	"all_roads": `[!"tunnel"]["area"!="yes"]["highway"!~"cycleway|footway|path|pedestrian|steps|track|corridor|` +
		`elevator|escalator|proposed|bridleway|abandoned|platform"]`,
}

// Preset returns the filter registered under name.
func Preset(name string) (string, error) {
	f, ok := presets[name]
	if !ok {
		return "", fmt.Errorf("%w: %q (known: %s)", ErrUnknownPreset, name, strings.Join(PresetNames(), ", "))
	}
	return f, nil
}

// PresetNames lists the registered presets in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ResolveFilters expands preset names. Entries starting with '[' are raw
// Overpass filters and are kept as given; an empty entry means no filter.
func ResolveFilters(specs []string) ([]string, error) {
	out := make([]string, 0, len(specs))
	for _, s := range specs {
		s = strings.TrimSpace(s)
		if s == "" || strings.HasPrefix(s, "[") {
			out = append(out, s)
			continue
		}
		f, err := Preset(s)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}
