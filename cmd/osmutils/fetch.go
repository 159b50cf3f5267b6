package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vizzTools/osmUtils/internal/config"
	"github.com/vizzTools/osmUtils/internal/downloader"
	"github.com/vizzTools/osmUtils/internal/export"
	"github.com/vizzTools/osmUtils/internal/fetch"
	"github.com/vizzTools/osmUtils/internal/logger"
	"github.com/vizzTools/osmUtils/internal/metrics"
	"github.com/vizzTools/osmUtils/internal/overpass"
	"github.com/vizzTools/osmUtils/internal/pacer"
	"github.com/vizzTools/osmUtils/internal/progress"
	"github.com/vizzTools/osmUtils/pkg/manifest"
)

// runFetch queries Overpass for every pending manifest entry and writes one
// artifact per entry with data. Interrupted runs resume from the manifest.
func runFetch(args []string) int {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	s := newSettings(fs)

	s.endpoint()
	s.outputDir()
	s.manifest()
	s.workers()
	s.filters()
	bind(s, fs.DurationVar, "timeout", "Per-request timeout, also sent as the server query timeout", func(c *config.Config) *time.Duration { return &c.Timeout })
	bind(s, fs.StringVar, "infrastructure", `Element selector every filter is appended to (default way["highway"])`, func(c *config.Config) *string { return &c.Infrastructure })
	bind(s, fs.IntVar, "max-depth", "Maximum number of splits of one geometry (0 = never split)", func(c *config.Config) *int { return &c.MaxDepth })
	bind(s, fs.IntVar, "split-factor", "Grid size n of each n x n split", func(c *config.Config) *int { return &c.SplitFactor })
	bind(s, fs.IntVar, "split-concurrency", "Split cells of one entry fetched at once", func(c *config.Config) *int { return &c.SplitConcurrency })
	bind(s, fs.IntVar, "overload-attempts", "Tries of one request while the server reports overload", func(c *config.Config) *int { return &c.OverloadAttempts })
	bind(s, fs.DurationVar, "pause", "Pause when the status page gives no answer", func(c *config.Config) *time.Duration { return &c.Pause })
	bind(s, fs.DurationVar, "min-spacing", "Minimum time between two requests", func(c *config.Config) *time.Duration { return &c.MinSpacing })
	bind(s, fs.StringVar, "redis", "Redis address for pacing shared between processes", func(c *config.Config) *string { return &c.Redis })
	bind(s, fs.StringVar, "metrics-addr", "Serve Prometheus metrics on this address", func(c *config.Config) *string { return &c.MetricsAddr })
	bind(s, fs.BoolVar, "progress", "Show progress output", func(c *config.Config) *bool { return &c.Progress })
	bind(s, fs.IntVar, "retry-attempts", "Max retry attempts after a connection error", func(c *config.Config) *int { return &c.Retry.Attempts })
	bind(s, fs.DurationVar, "retry-backoff", "Initial retry backoff", func(c *config.Config) *time.Duration { return &c.Retry.Backoff })
	bind(s, fs.DurationVar, "retry-max-backoff", "Max retry backoff", func(c *config.Config) *time.Duration { return &c.Retry.MaxBackoff })

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: osmutils fetch [options]

Query Overpass for every pending manifest entry and export the ways found
as line geometries. Overloaded or failing geometries are split and retried.
Entries that are already exported or excluded are skipped, so an
interrupted run can simply be started again.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}

	cfg, err := s.resolve()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitConfigError
	}
	filters, err := fetch.ResolveFilters(cfg.Filters)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitConfigError
	}
	format, err := export.ParseFormat(cfg.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitConfigError
	}

	ctx, cancel := signalContext()
	defer cancel()

	ledger, closeLedger, err := openLedger(ctx, cfg)
	if err != nil {
		if errors.Is(err, manifest.ErrNotFound) {
			fmt.Fprintf(os.Stderr, "Error: no manifest at %s, run 'osmutils plan' first\n", cfg.ManifestLocation())
			return ExitInvalidArgs
		}
		fmt.Fprintf(os.Stderr, "Error opening manifest: %v\n", err)
		return ExitStorageError
	}
	defer closeLedger()

	bkt, err := openBucket(ctx, cfg.OutputDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening output: %v\n", err)
		return ExitStorageError
	}
	defer bkt.Close()

	log := logger.L()
	runID := uuid.NewString()
	log.Info("fetch_started", "run_id", runID, "endpoint", cfg.Endpoint, "manifest", cfg.ManifestLocation())

	client := overpass.NewClient(overpass.Options{
		Endpoint:            cfg.Endpoint,
		UserAgent:           "osmutils",
		MaxIdleConnsPerHost: cfg.Workers * 2,
		RetryAttempts:       cfg.Retry.Attempts,
		RetryBackoff:        cfg.Retry.Backoff,
		RetryMaxBackoff:     cfg.Retry.MaxBackoff,
	})
	advisor := pacer.NewStatusAdvisor(client, cfg.Pause, log)

	var p pacer.Pacer = pacer.NewGate(advisor, cfg.MinSpacing)
	if cfg.Redis != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis})
		defer rdb.Close()
		p = pacer.NewRedisGate(rdb, pacer.DefaultSlotKey, advisor, cfg.MinSpacing, log)
	}

	engine := fetch.NewEngine(client, p, fetch.Options{
		Infrastructure:   cfg.Infrastructure,
		OverloadAttempts: cfg.OverloadAttempts,
	}, log)
	exporter := export.New(bkt, format, runID)

	if cfg.MetricsAddr != "" {
		stop := serveMetrics(cfg.MetricsAddr)
		defer stop()
	}

	var reporter *progress.Reporter
	if cfg.Progress {
		reporter = progress.NewReporter(progress.Options{
			TotalUnits: len(ledger.Pending()),
			Workers:    cfg.Workers,
			Endpoint:   client.Endpoint(),
		})
		reporter.Start()
	}

	// config uses 0 for "never split"; the downloader reserves 0 for its default
	maxDepth := cfg.MaxDepth
	if maxDepth == 0 {
		maxDepth = -1
	}

	start := time.Now()
	summary, err := downloader.Run(ctx, ledger, engine, exporter, downloader.Options{
		Workers:          cfg.Workers,
		Filters:          filters,
		Timeout:          cfg.Timeout,
		MaxDepth:         maxDepth,
		SplitFactor:      cfg.SplitFactor,
		SplitConcurrency: cfg.SplitConcurrency,
		Progress:         reporter,
		Logger:           log,
	})
	if reporter != nil {
		reporter.Stop()
	}

	if err != nil {
		if ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, "[osmutils] Fetch interrupted, unfinished entries stay pending")
			return ExitIncomplete
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitGeneralError
	}

	fmt.Fprintf(os.Stderr, "[osmutils] Fetch finished in %s: %d exported, %d excluded, %d failed, %d skipped\n",
		formatDuration(time.Since(start)), summary.Exported, summary.Excluded, summary.Failed, summary.Skipped)
	if summary.Failed > 0 {
		fmt.Fprintln(os.Stderr, "[osmutils] Some entries could not be recorded and stay pending; run fetch again")
		return ExitIncomplete
	}
	return ExitSuccess
}

// serveMetrics serves the Prometheus handler on addr until the returned
// function is called.
func serveMetrics(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.L().Warn("metrics_server_failed", "addr", addr, "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}
