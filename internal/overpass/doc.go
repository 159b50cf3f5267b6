// Package overpass is a minimal client for the Overpass API.
//
// It covers the two calls acquisition needs:
//
//	POST {endpoint}/interpreter   form field "data" holds the query
//	GET  {endpoint}/status        plain-text slot status
//
// Connection errors are retried with exponential backoff. Capacity
// rejections (429, 504) are not retried here; they come back as
// ErrRateLimitExceeded so the caller can pace and decide.
//
// # Usage
//
//	client := overpass.NewClient(overpass.DefaultOptions())
//	resp, err := client.Interpreter(ctx, `[out:json];way(1);out;`)
//	if errors.Is(err, overpass.ErrRateLimitExceeded) {
//	    // back off
//	}
package overpass
