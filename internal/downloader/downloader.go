package downloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"

	"github.com/vizzTools/osmUtils/internal/fetch"
	"github.com/vizzTools/osmUtils/internal/logger"
	"github.com/vizzTools/osmUtils/internal/metrics"
	"github.com/vizzTools/osmUtils/internal/parse"
	"github.com/vizzTools/osmUtils/internal/progress"
	"github.com/vizzTools/osmUtils/pkg/geo"
	"github.com/vizzTools/osmUtils/pkg/manifest"
)

// Defaults applied by Run.
const (
	DefaultMaxDepth    = 4
	DefaultSplitFactor = 2
	DefaultTimeout     = 180 * time.Second
)

// Options configures a run.
type Options struct {
	// Workers is the number of entries processed in parallel.
	// Default: 1
	Workers int

	// Filters are resolved Overpass filters; every entry is queried once
	// per filter and polygon part.
	Filters []string

	// Timeout bounds each request.
	// Default: 180s
	Timeout time.Duration

	// MaxDepth is the number of times a geometry may be split after an
	// overload or malformed response. 0 means the default, a negative
	// value disables splitting.
	// Default: 4
	MaxDepth int

	// SplitFactor is the grid size n of each n×n split.
	// Default: 2
	SplitFactor int

	// SplitConcurrency bounds the split cells of one entry fetched at once.
	// Default: 1
	SplitConcurrency int

	// Progress is an optional progress reporter.
	Progress *progress.Reporter

	// Logger defaults to logger.L().
	Logger *slog.Logger
}

// Fetcher queries one geometry.
type Fetcher interface {
	Fetch(ctx context.Context, geom orb.Geometry, filters []string, timeout time.Duration) (*fetch.QueryResult, error)
}

// Exporter writes the lines of one entry.
type Exporter interface {
	Export(ctx context.Context, id string, lines []parse.Line) (string, error)
}

// Summary counts the outcome of a run.
type Summary struct {
	Exported int // entries marked exported
	Excluded int // entries marked excluded
	Failed   int // entries whose result could not be recorded; still pending
	Skipped  int // entries already resolved before the run
}

// RecursionBoundExceeded is reported when a geometry still fails after
// MaxDepth splits. The cell adds no lines; the entry is excluded only when
// no other cell recovered any.
type RecursionBoundExceeded struct {
	ID    string
	Depth int
	Err   error // last classification error
}

func (e *RecursionBoundExceeded) Error() string {
	return fmt.Sprintf("entry %s: no data after %d splits: %v", e.ID, e.Depth, e.Err)
}

func (e *RecursionBoundExceeded) Unwrap() error { return e.Err }

// Run processes every pending entry of ledger: fetch, split and retry on
// overload or malformed responses, export, and record the outcome.
//
// Per-entry failures never stop the run. The error is non-nil only when
// ctx is done; entries that were in flight stay pending.
func Run(ctx context.Context, ledger *manifest.Ledger, fetcher Fetcher, exporter Exporter, opts Options) (Summary, error) {
	// Apply defaults
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxDepth == 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if opts.MaxDepth < 0 {
		opts.MaxDepth = 0
	}
	if opts.SplitFactor < 2 {
		opts.SplitFactor = DefaultSplitFactor
	}
	if opts.SplitConcurrency <= 0 {
		opts.SplitConcurrency = 1
	}
	if opts.Logger == nil {
		opts.Logger = logger.L()
	}

	r := &runner{fetcher: fetcher, exporter: exporter, ledger: ledger, opts: opts, log: opts.Logger}

	pending := ledger.Pending()
	summary := Summary{Skipped: ledger.Len() - len(pending)}
	r.log.Info("run_started", "pending", len(pending), "skipped", summary.Skipped, "workers", opts.Workers)

	var mu sync.Mutex
	jobs := make(chan manifest.Entry, opts.Workers)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for e := range jobs {
				outcome := r.process(ctx, e)

				mu.Lock()
				switch outcome {
				case metrics.OutcomeExported:
					summary.Exported++
				case metrics.OutcomeExcluded:
					summary.Excluded++
				case metrics.OutcomeFailed:
					summary.Failed++
				}
				mu.Unlock()
			}
		}()
	}

	// Feed jobs to workers
	go func() {
		defer close(jobs)
		for _, e := range pending {
			select {
			case jobs <- e:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()

	r.log.Info("run_finished",
		"exported", summary.Exported,
		"excluded", summary.Excluded,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
	)
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

type runner struct {
	fetcher  Fetcher
	exporter Exporter
	ledger   *manifest.Ledger
	opts     Options
	log      *slog.Logger
}

// process resolves one entry and returns its outcome, or "" when the entry
// was abandoned because ctx is done.
func (r *runner) process(ctx context.Context, e manifest.Entry) string {
	if ctx.Err() != nil {
		return ""
	}
	if r.opts.Progress != nil {
		r.opts.Progress.UnitStarted()
	}
	outcome := r.resolveEntry(ctx, e)
	if r.opts.Progress != nil {
		switch outcome {
		case metrics.OutcomeExcluded:
			r.opts.Progress.UnitExcluded()
		case metrics.OutcomeFailed:
			r.opts.Progress.UnitFailed()
		case "":
			r.opts.Progress.UnitAbandoned()
		}
	}
	if outcome != "" {
		metrics.UnitsTotal.WithLabelValues(outcome).Inc()
	}
	return outcome
}

func (r *runner) resolveEntry(ctx context.Context, e manifest.Entry) string {
	log := r.log.With("id", e.ID)
	start := time.Now()

	lines, bounded, err := r.collect(ctx, e.ID, e.Geometry, 0)
	if ctx.Err() != nil {
		log.Info("unit_abandoned", "error", ctx.Err())
		return ""
	}

	var invalid *geo.InvalidGeometryError
	switch {
	case errors.As(err, &invalid):
		log.Warn("invalid_geometry", "error", err)
		return r.exclude(ctx, log, e.ID, "invalid_geometry")
	case err != nil:
		log.Warn("unit_error", "error", err)
		return r.exclude(ctx, log, e.ID, "error")
	case len(lines) == 0 && len(bounded) > 0:
		return r.exclude(ctx, log, e.ID, "recursion_bound")
	case len(lines) == 0:
		return r.exclude(ctx, log, e.ID, "empty")
	case len(bounded) > 0:
		log.Warn("unit_partial", "lost_cells", len(bounded), "lines", len(lines))
	}

	key, err := r.exporter.Export(ctx, e.ID, lines)
	if err != nil {
		if ctx.Err() != nil {
			return ""
		}
		log.Error("export_failed", "error", err)
		return metrics.OutcomeFailed
	}
	if err := r.ledger.MarkExported(ctx, e.ID); err != nil {
		if ctx.Err() != nil {
			return ""
		}
		log.Error("ledger_write_failed", "error", err)
		return metrics.OutcomeFailed
	}

	metrics.LinesExported.Add(float64(len(lines)))
	if r.opts.Progress != nil {
		r.opts.Progress.UnitExported(len(lines))
	}
	log.Info("unit_exported", "lines", len(lines), "key", key, "duration_ms", time.Since(start).Milliseconds())
	return metrics.OutcomeExported
}

func (r *runner) exclude(ctx context.Context, log *slog.Logger, id, reason string) string {
	if err := r.ledger.MarkExcluded(ctx, id); err != nil {
		if ctx.Err() != nil {
			return ""
		}
		log.Error("ledger_write_failed", "error", err)
		return metrics.OutcomeFailed
	}
	log.Info("unit_excluded", "reason", reason)
	return metrics.OutcomeExcluded
}

// collect fetches geom and returns its lines. On overload or malformed
// responses geom is split and every cell is collected at depth+1; the
// cells' lines are merged by way id. Cells that still fail at MaxDepth add
// no lines and are returned in bounded.
func (r *runner) collect(ctx context.Context, id string, geom orb.Geometry, depth int) ([]parse.Line, []*RecursionBoundExceeded, error) {
	res, err := r.fetcher.Fetch(ctx, geom, r.opts.Filters, r.opts.Timeout)
	if err != nil {
		return nil, nil, err
	}

	switch res.Status {
	case fetch.Success:
		lines, warnings := parse.Lines(res.Elements)
		for _, w := range warnings {
			r.log.Debug("parse_warning", "id", id, "way_id", int64(w.WayID), "node_id", int64(w.NodeID), "reason", w.Reason)
		}
		metrics.ParseWarningsTotal.Add(float64(len(warnings)))
		return lines, nil, nil
	case fetch.Empty:
		return nil, nil, nil
	}

	var parts []orb.Polygon
	if depth < r.opts.MaxDepth {
		if parts, err = geo.SplitGeometry(geom, r.opts.SplitFactor); err != nil {
			return nil, nil, err
		}
	}
	if len(parts) == 0 {
		b := &RecursionBoundExceeded{ID: id, Depth: depth, Err: res.Err}
		r.log.Warn("recursion_bound_exceeded", "id", id, "depth", depth, "status", res.Status.String(), "error", res.Err)
		return nil, []*RecursionBoundExceeded{b}, nil
	}
	metrics.SplitsTotal.Inc()
	r.log.Debug("unit_split", "id", id, "depth", depth+1, "parts", len(parts), "status", res.Status.String(), "error", res.Err)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.SplitConcurrency)
	results := make([][]parse.Line, len(parts))
	failed := make([][]*RecursionBoundExceeded, len(parts))
	for i, p := range parts {
		i, p := i, p
		g.Go(func() error {
			lines, bounded, err := r.collect(gctx, id, p, depth+1)
			if err != nil {
				return err
			}
			results[i], failed[i] = lines, bounded
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	var bounded []*RecursionBoundExceeded
	for _, f := range failed {
		bounded = append(bounded, f...)
	}
	return parse.Merge(results...), bounded, nil
}
