// Package downloader runs the acquisition loop over a manifest ledger.
//
// Every pending entry is fetched, parsed and exported, and its outcome is
// written back to the ledger. Entries that are already exported or
// excluded are skipped, so a run can be repeated until nothing is pending.
//
// # Usage
//
//	summary, err := downloader.Run(ctx, ledger, engine, exporter, downloader.Options{
//	    Workers:  4,
//	    Filters:  filters,
//	    Progress: reporter,
//	})
//
// # Worker Pool
//
// Workers receive entries from a channel. They share one fetch engine and
// therefore one pacer, so adding workers never raises the request rate
// above what the pacer allows.
//
// # Splitting
//
// When a fetch comes back overloaded or malformed the geometry is cut into
// an n×n grid and each cell is fetched on its own, recursively, up to
// MaxDepth. The lines of all cells are merged by way id. A cell that still
// fails at MaxDepth is logged as recursion_bound_exceeded and adds nothing;
// the entry is exported with what the other cells returned, and excluded
// only when no cell returned any line.
//
// # Graceful Shutdown
//
// On SIGINT/SIGTERM:
//   - Stop handing out entries
//   - Abandon in-flight entries; they stay pending
//   - Keep every ledger write that already completed
package downloader
