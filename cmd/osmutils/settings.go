package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/vizzTools/osmUtils/internal/config"
	"github.com/vizzTools/osmUtils/internal/export"
	"github.com/vizzTools/osmUtils/internal/sqlstore"
	"github.com/vizzTools/osmUtils/pkg/manifest"
)

// settings layers configuration: defaults, then the -config file, then
// OSMUTILS_ variables, then the flags that were given on the command line.
type settings struct {
	fs         *flag.FlagSet
	configPath string
	defaults   config.Config
	apply      map[string]func(*config.Config)
}

func newSettings(fs *flag.FlagSet) *settings {
	s := &settings{
		fs:       fs,
		defaults: config.Default(),
		apply:    make(map[string]func(*config.Config)),
	}
	fs.StringVar(&s.configPath, "config", "", "YAML config file")
	return s
}

// bind registers a flag for one config field. The flag default shown in
// usage is the config default; the value is applied only when set.
func bind[T any](s *settings, define func(*T, string, T, string), name, usage string, field func(*config.Config) *T) {
	p := new(T)
	define(p, name, *field(&s.defaults), usage)
	s.apply[name] = func(c *config.Config) { *field(c) = *p }
}

func (s *settings) endpoint() {
	bind(s, s.fs.StringVar, "endpoint", "Overpass API base URL", func(c *config.Config) *string { return &c.Endpoint })
}

func (s *settings) outputDir() {
	bind(s, s.fs.StringVar, "output-dir", "Artifact directory or bucket URL", func(c *config.Config) *string { return &c.OutputDir })
	bind(s, s.fs.StringVar, "format", "Artifact format: csv or geojson", func(c *config.Config) *string { return &c.Format })
}

func (s *settings) manifest() {
	bind(s, s.fs.StringVar, "manifest", "Manifest location: bucket URL, directory, or postgres:// / sqlite:// DSN (default: output dir)", func(c *config.Config) *string { return &c.Manifest })
}

func (s *settings) workers() {
	bind(s, s.fs.IntVar, "workers", "Number of parallel workers", func(c *config.Config) *int { return &c.Workers })
}

func (s *settings) filters() {
	var list []string
	s.fs.Func("filter", "Overpass filter or preset name (repeatable)", func(v string) error {
		list = append(list, v)
		return nil
	})
	s.apply["filter"] = func(c *config.Config) { c.Filters = list }
}

// resolve builds the final configuration. Call after fs.Parse.
func (s *settings) resolve() (config.Config, error) {
	cfg := config.Default()
	if s.configPath != "" {
		var err error
		if cfg, err = config.LoadFromFile(s.configPath); err != nil {
			return config.Config{}, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, err
	}
	s.fs.Visit(func(f *flag.Flag) {
		if fn, ok := s.apply[f.Name]; ok {
			fn(&cfg)
		}
	})
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\n[osmutils] Received interrupt, shutting down...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

// openBucket opens a bucket URL, or a local directory as a file bucket.
func openBucket(ctx context.Context, loc string) (*blob.Bucket, error) {
	if strings.Contains(loc, "://") {
		return blob.OpenBucket(ctx, loc)
	}
	return export.OpenDir(loc)
}

// openStore opens the manifest store named by cfg.
func openStore(ctx context.Context, cfg config.Config) (manifest.Store, func(), error) {
	loc := cfg.ManifestLocation()
	if sqlstore.IsDSN(loc) {
		s, err := sqlstore.Open(ctx, loc)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	}
	bkt, err := openBucket(ctx, loc)
	if err != nil {
		return nil, nil, err
	}
	return manifest.NewBlobStore(bkt), func() { bkt.Close() }, nil
}

// openLedger opens the persisted manifest named by cfg.
func openLedger(ctx context.Context, cfg config.Config) (*manifest.Ledger, func(), error) {
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	l, err := manifest.Open(ctx, store)
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return l, closeStore, nil
}

func formatDuration(d time.Duration) string {
	return d.Round(time.Second).String()
}
