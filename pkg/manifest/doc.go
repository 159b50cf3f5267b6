// Package manifest tracks the acquisition state of every work unit covering
// an area of interest.
//
// # Building
//
// Use [Build] to intersect an AOI with a tile grid (see package tiles), or to
// turn each AOI polygon into its own unit when tiling is disabled. Building
// is deterministic: the same AOI, units and flag give the same manifest.
//
// # Ledger
//
// A [Ledger] wraps a loaded [Manifest] and a [Store]. Every entry is in one of
// three states:
//
//	PENDING   exclude=0, exported=0
//	EXPORTED  exported=1   (terminal)
//	EXCLUDED  exclude=1    (terminal)
//
// [Ledger.Pending] lists the entries still to process. [Ledger.MarkExported]
// and [Ledger.MarkExcluded] move one entry to a terminal state and persist it
// before returning. A run that is interrupted leaves unfinished entries
// PENDING, so the next run resumes where the previous one stopped.
//
// # Storage
//
// [BlobStore] keeps the manifest as a CSV table in any gocloud.dev/blob
// bucket:
//
//	id,geometry,exclude,exported,uploaded
//	5_16_10,"POLYGON((...))",0,1,0
//
// A SQL implementation lives in internal/sqlstore.
package manifest
