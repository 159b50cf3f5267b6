// Package export writes the lines of one work unit as a single artifact in
// a blob bucket, named after the unit id.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"

	"github.com/vizzTools/osmUtils/internal/parse"
)

// Format is an artifact encoding.
type Format string

const (
	// CSV writes way_id,tags,geometry rows; tags as a JSON object, geometry
	// as WKT.
	CSV Format = "csv"
	// GeoJSON writes a FeatureCollection of LineStrings.
	GeoJSON Format = "geojson"
)

// ErrUnknownFormat is returned by ParseFormat.
var ErrUnknownFormat = errors.New("export: unknown format")

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case CSV, GeoJSON:
		return Format(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Ext returns the file extension including the dot.
func (f Format) Ext() string {
	return "." + string(f)
}

func (f Format) contentType() string {
	if f == GeoJSON {
		return "application/geo+json"
	}
	return "text/csv"
}

// Exporter writes artifacts into a bucket.
type Exporter struct {
	bucket *blob.Bucket
	format Format
	runID  string
}

// New creates an exporter. runID is stored as blob metadata on every
// artifact; it may be empty.
func New(bucket *blob.Bucket, format Format, runID string) *Exporter {
	return &Exporter{bucket: bucket, format: format, runID: runID}
}

// Format returns the artifact format.
func (e *Exporter) Format() Format {
	return e.format
}

// Key returns the object name of the artifact for id.
func (e *Exporter) Key(id string) string {
	return id + e.format.Ext()
}

// Export writes lines as the artifact of unit id and returns its key. An
// existing artifact is replaced. On error nothing is committed.
func (e *Exporter) Export(ctx context.Context, id string, lines []parse.Line) (string, error) {
	key := e.Key(id)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts := &blob.WriterOptions{
		ContentType: e.format.contentType(),
		Metadata:    map[string]string{"unit": id, "lines": strconv.Itoa(len(lines))},
	}
	if e.runID != "" {
		opts.Metadata["run_id"] = e.runID
	}
	w, err := e.bucket.NewWriter(ctx, key, opts)
	if err != nil {
		return "", fmt.Errorf("export: create writer %s: %w", key, err)
	}

	switch e.format {
	case GeoJSON:
		err = writeGeoJSON(w, lines)
	default:
		err = writeCSV(w, lines)
	}
	if err != nil {
		// cancelling before Close aborts the write
		cancel()
		w.Close()
		return "", fmt.Errorf("export: encode %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("export: write %s: %w", key, err)
	}
	return key, nil
}

func writeCSV(w io.Writer, lines []parse.Line) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"way_id", "tags", "geometry"}); err != nil {
		return err
	}
	for _, l := range lines {
		tags, err := json.Marshal(l.Tags.Map())
		if err != nil {
			return err
		}
		rec := []string{
			strconv.FormatInt(int64(l.WayID), 10),
			string(tags),
			wkt.MarshalString(l.Geometry),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeGeoJSON(w io.Writer, lines []parse.Line) error {
	fc := geojson.NewFeatureCollection()
	for _, l := range lines {
		f := geojson.NewFeature(l.Geometry)
		f.ID = int64(l.WayID)
		f.Properties["way_id"] = int64(l.WayID)
		for _, t := range l.Tags {
			f.Properties[t.Key] = t.Value
		}
		fc.Append(f)
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// OpenDir opens a local directory as a bucket, creating it if absent.
func OpenDir(dir string) (*blob.Bucket, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("export: create output dir: %w", err)
	}
	b, err := fileblob.OpenBucket(dir, &fileblob.Options{CreateDir: true})
	if err != nil {
		return nil, fmt.Errorf("export: open output dir: %w", err)
	}
	return b, nil
}
