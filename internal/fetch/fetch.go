package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/paulmach/orb"

	"github.com/vizzTools/osmUtils/internal/metrics"
	"github.com/vizzTools/osmUtils/internal/overpass"
	"github.com/vizzTools/osmUtils/internal/pacer"
	"github.com/vizzTools/osmUtils/pkg/geo"
)

// Status classifies the outcome of a query.
type Status int

const (
	// Success means the server returned at least one element.
	Success Status = iota
	// Empty means the server answered with an empty element list.
	Empty
	// Overload means the server rejected the query for capacity reasons.
	Overload
	// Malformed covers every other failure: transport errors, timeouts,
	// bodies that are not JSON, missing elements and server remarks.
	Malformed
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case Empty:
		return "empty"
	case Overload:
		return "overload"
	case Malformed:
		return "malformed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// QueryResult is the aggregated outcome of one Fetch.
type QueryResult struct {
	Status   Status
	Elements []overpass.Element // set when Status is Success
	Requests int                // interpreter calls made, retries included
	Err      error              // cause of an Overload or Malformed status
}

// ErrServerRemark wraps the remark of an aborted query.
var ErrServerRemark = errors.New("fetch: server remark")

// Interpreter runs one Overpass query.
type Interpreter interface {
	Interpreter(ctx context.Context, query string) (*overpass.Response, error)
}

// Options configures an Engine.
type Options struct {
	// Infrastructure is prefixed to every filter.
	// Default: way["highway"]
	Infrastructure string

	// OverloadAttempts is the total number of tries of one request while
	// the server reports overload.
	// Default: 3
	OverloadAttempts int
}

// DefaultOptions returns the defaults.
func DefaultOptions() Options {
	return Options{
		Infrastructure:   DefaultInfrastructure,
		OverloadAttempts: 3,
	}
}

// Engine issues queries for geometries.
type Engine struct {
	client Interpreter
	pacer  pacer.Pacer
	opts   Options
	log    *slog.Logger
}

// NewEngine creates an engine. Every request waits on p first.
func NewEngine(client Interpreter, p pacer.Pacer, opts Options, log *slog.Logger) *Engine {
	if opts.Infrastructure == "" {
		opts.Infrastructure = DefaultInfrastructure
	}
	if opts.OverloadAttempts < 1 {
		opts.OverloadAttempts = 1
	}
	if p == nil {
		p = pacer.NewGate(nil, 0)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{client: client, pacer: p, opts: opts, log: log}
}

// Fetch sends one request per (filter, polygon part) pair and aggregates
// the outcomes: any Overload gives Overload, else any Malformed gives
// Malformed, else any Success gives Success with the elements of all
// requests, else Empty.
//
// timeout bounds each request and is also sent as the server-side query
// timeout; 0 disables both. A request that times out is Malformed.
//
// The error is non-nil only when geom is not a valid polygon or
// multipolygon, or when ctx is done.
func (e *Engine) Fetch(ctx context.Context, geom orb.Geometry, filters []string, timeout time.Duration) (*QueryResult, error) {
	coords, err := geo.CoordinateStrings(geom)
	if err != nil {
		return nil, err
	}
	if len(filters) == 0 {
		filters = []string{""}
	}

	agg := &QueryResult{Status: Empty}
	var overload, malformed error
	for _, f := range filters {
		for _, c := range coords {
			q := Query(e.opts.Infrastructure+f, c, timeout)
			res, err := e.request(ctx, q, timeout)
			if err != nil {
				return nil, err
			}
			agg.Requests += res.Requests
			switch res.Status {
			case Success:
				agg.Elements = append(agg.Elements, res.Elements...)
			case Overload:
				if overload == nil {
					overload = res.Err
				}
			case Malformed:
				if malformed == nil {
					malformed = res.Err
				}
			}
		}
	}

	switch {
	case overload != nil:
		agg.Status, agg.Err, agg.Elements = Overload, overload, nil
	case malformed != nil:
		agg.Status, agg.Err, agg.Elements = Malformed, malformed, nil
	case len(agg.Elements) > 0:
		agg.Status = Success
	}
	return agg, nil
}

// request sends one query, retrying while the server reports overload.
func (e *Engine) request(ctx context.Context, query string, timeout time.Duration) (*QueryResult, error) {
	res := &QueryResult{}
	for attempt := 1; attempt <= e.opts.OverloadAttempts; attempt++ {
		if err := e.pacer.Wait(ctx); err != nil {
			return nil, err
		}

		reqCtx, cancel := ctx, context.CancelFunc(func() {})
		if timeout > 0 {
			reqCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		start := time.Now()
		resp, err := e.client.Interpreter(reqCtx, query)
		cancel()
		metrics.RequestDurationMs.Observe(float64(time.Since(start).Milliseconds()))

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		res.Requests++
		res.Status, res.Elements, res.Err = classify(resp, err)
		metrics.RequestsTotal.WithLabelValues(res.Status.String()).Inc()

		if res.Status != Overload {
			break
		}
		e.log.Warn("overpass_overload", "attempt", attempt, "max_attempts", e.opts.OverloadAttempts, "error", res.Err)
	}
	if res.Status == Overload {
		res.Err = fmt.Errorf("after %d attempts: %w", res.Requests, res.Err)
	}
	if res.Status == Malformed {
		e.log.Warn("overpass_malformed", "error", res.Err)
	}
	return res, nil
}

func classify(resp *overpass.Response, err error) (Status, []overpass.Element, error) {
	switch {
	case errors.Is(err, overpass.ErrRateLimitExceeded):
		return Overload, nil, err
	case err != nil:
		return Malformed, nil, err
	case resp.Remark != "":
		return Malformed, nil, fmt.Errorf("%w: %s", ErrServerRemark, resp.Remark)
	case resp.Elements == nil:
		return Malformed, nil, fmt.Errorf("%w: no elements key", overpass.ErrMalformedResponse)
	case len(resp.Elements) == 0:
		return Empty, nil, nil
	default:
		return Success, resp.Elements, nil
	}
}

// Query builds an Overpass QL query for selector inside the polygon given
// as a "lat lon ..." coordinate string, recursing down to child nodes.
func Query(selector, coords string, timeout time.Duration) string {
	settings := "[out:json]"
	if timeout > 0 {
		settings += fmt.Sprintf("[timeout:%d]", int(math.Ceil(timeout.Seconds())))
	}
	return fmt.Sprintf(`%s;(%s(poly:"%s");>;);out;`, settings, selector, coords)
}
