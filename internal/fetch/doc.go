// Package fetch queries the Overpass API for one geometry and classifies
// the outcome as Success, Empty, Overload or Malformed.
//
// A geometry with N polygon parts queried with M filters makes N×M
// requests. Each waits on the shared pacer first. Overload is retried on
// the same request a bounded number of times; everything else is returned
// to the caller, which decides whether to split and retry.
//
// # Usage
//
//	filters, _ := fetch.ResolveFilters([]string{"all_roads"})
//	engine := fetch.NewEngine(client, gate, fetch.DefaultOptions(), log)
//	res, err := engine.Fetch(ctx, polygon, filters, 180*time.Second)
//	switch res.Status {
//	case fetch.Success:
//	    lines, _ := parse.Lines(res.Elements)
//	case fetch.Overload, fetch.Malformed:
//	    // split and retry
//	}
package fetch
