package manifest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/paulmach/orb/encoding/wkt"
)

// Header is the column layout of a persisted manifest.
var Header = []string{"id", "geometry", "exclude", "exported", "uploaded"}

// WriteCSV writes m as a CSV table with geometries encoded as WKT.
func WriteCSV(w io.Writer, m *Manifest) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, e := range m.Entries {
		rec := []string{
			e.ID,
			wkt.MarshalString(e.Geometry),
			flag(e.Exclude),
			flag(e.Exported),
			flag(e.Uploaded),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a table written by WriteCSV. Columns are matched by header
// name; the uploaded column may be absent.
func ReadCSV(r io.Reader) (*Manifest, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("manifest: empty table")
		}
		return nil, fmt.Errorf("manifest: read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, name := range Header[:4] {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("manifest: missing column %q", name)
		}
	}

	m := &Manifest{}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("manifest: line %d: %w", line, err)
		}
		field := func(name string) string {
			i, ok := col[name]
			if !ok || i >= len(rec) {
				return ""
			}
			return rec[i]
		}

		g, err := wkt.Unmarshal(field("geometry"))
		if err != nil {
			return nil, fmt.Errorf("manifest: line %d: geometry: %w", line, err)
		}
		e := Entry{ID: field("id"), Geometry: g}
		if e.Exclude, err = parseFlag(field("exclude")); err != nil {
			return nil, fmt.Errorf("manifest: line %d: exclude: %w", line, err)
		}
		if e.Exported, err = parseFlag(field("exported")); err != nil {
			return nil, fmt.Errorf("manifest: line %d: exported: %w", line, err)
		}
		if e.Uploaded, err = parseFlag(field("uploaded")); err != nil {
			return nil, fmt.Errorf("manifest: line %d: uploaded: %w", line, err)
		}
		m.Entries = append(m.Entries, e)
	}
	return m, nil
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func parseFlag(s string) (bool, error) {
	if s == "" {
		return false, nil
	}
	return strconv.ParseBool(s)
}
