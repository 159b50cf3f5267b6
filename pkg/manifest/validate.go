package manifest

import (
	"context"
	"fmt"
	"io"
	"strings"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// ValidationResult contains the results of checking a manifest against the
// artifacts in an output bucket.
type ValidationResult struct {
	Valid            bool     // true if every exported entry has a non-empty artifact
	Counts           Counts   // entries per state
	MissingArtifacts []string // exported entries with no artifact
	EmptyArtifacts   []string // exported entries whose artifact has size 0
	Orphans          []string // artifacts for entries that are not exported
	Errors           []string // detailed messages
}

// Validate checks that every exported entry of m has an artifact named
// id+ext in artifacts. It reads object attributes only.
//
// Missing or empty artifacts are reported in the result with Valid=false,
// not returned as errors. An error is returned only when the bucket cannot
// be read.
func Validate(ctx context.Context, m *Manifest, artifacts *blob.Bucket, ext string) (*ValidationResult, error) {
	result := &ValidationResult{
		Valid:  true,
		Counts: m.Counts(),
		Errors: make([]string, 0),
	}

	byID := make(map[string]Entry, len(m.Entries))
	for _, e := range m.Entries {
		byID[e.ID] = e
		if !e.Exported {
			continue
		}
		key := e.ID + ext
		attrs, err := artifacts.Attributes(ctx, key)
		if err != nil {
			if gcerrors.Code(err) == gcerrors.NotFound {
				result.Valid = false
				result.MissingArtifacts = append(result.MissingArtifacts, e.ID)
				result.Errors = append(result.Errors, fmt.Sprintf("entry %s: artifact missing: %s", e.ID, key))
				continue
			}
			return nil, fmt.Errorf("manifest: check artifact %s: %w", key, err)
		}
		if attrs.Size == 0 {
			result.Valid = false
			result.EmptyArtifacts = append(result.EmptyArtifacts, e.ID)
			result.Errors = append(result.Errors, fmt.Sprintf("entry %s: artifact is empty: %s", e.ID, key))
		}
	}

	iter := artifacts.List(&blob.ListOptions{})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("manifest: list artifacts: %w", err)
		}
		if obj.IsDir || !strings.HasSuffix(obj.Key, ext) {
			continue
		}
		id := strings.TrimSuffix(obj.Key, ext)
		if e, ok := byID[id]; ok && !e.Exported {
			// a leftover from an interrupted export; the entry is refetched
			result.Orphans = append(result.Orphans, id)
		}
	}

	return result, nil
}
