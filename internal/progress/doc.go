// Package progress reports the progress of a fetch run.
//
// This package prints unit counts and an ETA to stderr at a fixed
// interval, and a final summary when stopped.
//
// # Usage
//
//	reporter := progress.NewReporter(progress.Options{
//	    TotalUnits: len(ledger.Pending()),
//	    Workers:    4,
//	})
//
//	reporter.Start()
//	defer reporter.Stop()
//
//	reporter.UnitStarted()
//	reporter.UnitExported(lines)
//
// # Output Format
//
//	[osmutils] Fetching from: https://overpass-api.de/api
//	[osmutils] Pending units: 1024 | Workers: 4
//	[osmutils] Progress: 45.2% | 401 exported | 62 excluded | 0 failed | 4 in-progress | 557 pending | ETA: 18m 32s
package progress
