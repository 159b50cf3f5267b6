package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vizzTools/osmUtils/internal/export"
	"github.com/vizzTools/osmUtils/internal/overpass"
	"github.com/vizzTools/osmUtils/pkg/tiles"
)

// EnvPrefix prefixes every environment variable read by LoadFromEnv.
const EnvPrefix = "OSMUTILS_"

// Config defines configuration for the osmutils CLI.
type Config struct {
	Endpoint         string        `yaml:"endpoint"`
	Timeout          time.Duration `yaml:"timeout"`
	AOI              string        `yaml:"aoi"`
	Zoom             int           `yaml:"zoom"`
	CRS              string        `yaml:"crs"`
	KeepTileGeometry bool          `yaml:"keep_tile_geometry"`
	OutputDir        string        `yaml:"output_dir"`
	Format           string        `yaml:"format"`
	Manifest         string        `yaml:"manifest"`
	Filters          []string      `yaml:"filters"`
	Infrastructure   string        `yaml:"infrastructure"`
	MaxDepth         int           `yaml:"max_depth"`
	SplitFactor      int           `yaml:"split_factor"`
	SplitConcurrency int           `yaml:"split_concurrency"`
	Workers          int           `yaml:"workers"`
	OverloadAttempts int           `yaml:"overload_attempts"`
	Pause            time.Duration `yaml:"pause"`
	MinSpacing       time.Duration `yaml:"min_spacing"`
	Redis            string        `yaml:"redis"`
	MetricsAddr      string        `yaml:"metrics_addr"`
	Progress         bool          `yaml:"progress"`
	Retry            RetryConfig   `yaml:"retry"`
}

// RetryConfig defines retry behavior for connection errors.
type RetryConfig struct {
	Attempts   int           `yaml:"attempts"`
	Backoff    time.Duration `yaml:"backoff"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Endpoint:         overpass.DefaultEndpoint,
		Timeout:          180 * time.Second,
		Zoom:             5,
		CRS:              string(tiles.WGS84),
		OutputDir:        "output",
		Format:           string(export.CSV),
		MaxDepth:         4,
		SplitFactor:      2,
		SplitConcurrency: 1,
		Workers:          1,
		OverloadAttempts: 3,
		Pause:            5 * time.Second,
		Retry: RetryConfig{
			Attempts:   2,
			Backoff:    time.Second,
			MaxBackoff: 10 * time.Second,
		},
	}
}

// yamlConfig is used for YAML unmarshaling with string durations.
type yamlConfig struct {
	Endpoint         string          `yaml:"endpoint"`
	Timeout          string          `yaml:"timeout"`
	AOI              string          `yaml:"aoi"`
	Zoom             *int            `yaml:"zoom"`
	CRS              string          `yaml:"crs"`
	KeepTileGeometry bool            `yaml:"keep_tile_geometry"`
	OutputDir        string          `yaml:"output_dir"`
	Format           string          `yaml:"format"`
	Manifest         string          `yaml:"manifest"`
	Filters          []string        `yaml:"filters"`
	Infrastructure   string          `yaml:"infrastructure"`
	MaxDepth         *int            `yaml:"max_depth"`
	SplitFactor      int             `yaml:"split_factor"`
	SplitConcurrency int             `yaml:"split_concurrency"`
	Workers          int             `yaml:"workers"`
	OverloadAttempts int             `yaml:"overload_attempts"`
	Pause            string          `yaml:"pause"`
	MinSpacing       string          `yaml:"min_spacing"`
	Redis            string          `yaml:"redis"`
	MetricsAddr      string          `yaml:"metrics_addr"`
	Progress         bool            `yaml:"progress"`
	Retry            yamlRetryConfig `yaml:"retry"`
}

type yamlRetryConfig struct {
	Attempts   int    `yaml:"attempts"`
	Backoff    string `yaml:"backoff"`
	MaxBackoff string `yaml:"max_backoff"`
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()

	if yc.Endpoint != "" {
		cfg.Endpoint = yc.Endpoint
	}
	if yc.AOI != "" {
		cfg.AOI = yc.AOI
	}
	// zoom 0 and max_depth 0 are meaningful, so presence decides
	if yc.Zoom != nil {
		cfg.Zoom = *yc.Zoom
	}
	if yc.MaxDepth != nil {
		cfg.MaxDepth = *yc.MaxDepth
	}
	if yc.CRS != "" {
		cfg.CRS = yc.CRS
	}
	cfg.KeepTileGeometry = yc.KeepTileGeometry
	if yc.OutputDir != "" {
		cfg.OutputDir = yc.OutputDir
	}
	if yc.Format != "" {
		cfg.Format = yc.Format
	}
	if yc.Manifest != "" {
		cfg.Manifest = yc.Manifest
	}
	if len(yc.Filters) > 0 {
		cfg.Filters = yc.Filters
	}
	if yc.Infrastructure != "" {
		cfg.Infrastructure = yc.Infrastructure
	}
	if yc.SplitFactor != 0 {
		cfg.SplitFactor = yc.SplitFactor
	}
	if yc.SplitConcurrency != 0 {
		cfg.SplitConcurrency = yc.SplitConcurrency
	}
	if yc.Workers != 0 {
		cfg.Workers = yc.Workers
	}
	if yc.OverloadAttempts != 0 {
		cfg.OverloadAttempts = yc.OverloadAttempts
	}
	if yc.Redis != "" {
		cfg.Redis = yc.Redis
	}
	if yc.MetricsAddr != "" {
		cfg.MetricsAddr = yc.MetricsAddr
	}
	cfg.Progress = yc.Progress
	if yc.Retry.Attempts != 0 {
		cfg.Retry.Attempts = yc.Retry.Attempts
	}

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"timeout", yc.Timeout, &cfg.Timeout},
		{"pause", yc.Pause, &cfg.Pause},
		{"min_spacing", yc.MinSpacing, &cfg.MinSpacing},
		{"retry.backoff", yc.Retry.Backoff, &cfg.Retry.Backoff},
		{"retry.max_backoff", yc.Retry.MaxBackoff, &cfg.Retry.MaxBackoff},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.name, err)
		}
		*d.dst = v
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the OSMUTILS_ prefix. OSMUTILS_FILTERS holds
// filters separated by semicolons.
func (c *Config) LoadFromEnv() error {
	strs := map[string]*string{
		"ENDPOINT":       &c.Endpoint,
		"AOI":            &c.AOI,
		"CRS":            &c.CRS,
		"OUTPUT_DIR":     &c.OutputDir,
		"FORMAT":         &c.Format,
		"MANIFEST":       &c.Manifest,
		"INFRASTRUCTURE": &c.Infrastructure,
		"REDIS":          &c.Redis,
		"METRICS_ADDR":   &c.MetricsAddr,
	}
	for name, dst := range strs {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"ZOOM":              &c.Zoom,
		"MAX_DEPTH":         &c.MaxDepth,
		"SPLIT_FACTOR":      &c.SplitFactor,
		"SPLIT_CONCURRENCY": &c.SplitConcurrency,
		"WORKERS":           &c.Workers,
		"OVERLOAD_ATTEMPTS": &c.OverloadAttempts,
		"RETRY_ATTEMPTS":    &c.Retry.Attempts,
	}
	for name, dst := range ints {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("parse %s%s: %w", EnvPrefix, name, err)
			}
			*dst = n
		}
	}

	durations := map[string]*time.Duration{
		"TIMEOUT":           &c.Timeout,
		"PAUSE":             &c.Pause,
		"MIN_SPACING":       &c.MinSpacing,
		"RETRY_BACKOFF":     &c.Retry.Backoff,
		"RETRY_MAX_BACKOFF": &c.Retry.MaxBackoff,
	}
	for name, dst := range durations {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("parse %s%s: %w", EnvPrefix, name, err)
			}
			*dst = d
		}
	}

	if v := os.Getenv(EnvPrefix + "KEEP_TILE_GEOMETRY"); v != "" {
		c.KeepTileGeometry = v == "true" || v == "1"
	}
	if v := os.Getenv(EnvPrefix + "PROGRESS"); v != "" {
		c.Progress = v == "true" || v == "1"
	}
	if v := os.Getenv(EnvPrefix + "FILTERS"); v != "" {
		c.Filters = strings.Split(v, ";")
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("config: endpoint is required")
	}
	if c.Timeout <= 0 {
		return errors.New("config: timeout must be positive")
	}
	if c.Zoom < 0 || c.Zoom > tiles.MaxZoom {
		return &tiles.InvalidZoomError{Zoom: c.Zoom}
	}
	switch tiles.CRS(c.CRS) {
	case tiles.WGS84, tiles.WebMercator:
	default:
		return fmt.Errorf("config: %w: %q", tiles.ErrUnsupportedCRS, c.CRS)
	}
	if c.OutputDir == "" {
		return errors.New("config: output_dir is required")
	}
	if _, err := export.ParseFormat(c.Format); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.MaxDepth < 0 {
		return errors.New("config: max_depth must not be negative")
	}
	if c.SplitFactor < 2 {
		return errors.New("config: split_factor must be at least 2")
	}
	if c.SplitConcurrency <= 0 {
		return errors.New("config: split_concurrency must be positive")
	}
	if c.Workers <= 0 {
		return errors.New("config: workers must be positive")
	}
	if c.OverloadAttempts <= 0 {
		return errors.New("config: overload_attempts must be positive")
	}
	if c.Pause < 0 || c.MinSpacing < 0 {
		return errors.New("config: pause and min_spacing must not be negative")
	}
	return nil
}

// ManifestLocation returns where the manifest lives: the configured bucket
// URL or DSN, or the output directory when unset.
func (c *Config) ManifestLocation() string {
	if c.Manifest != "" {
		return c.Manifest
	}
	return c.OutputDir
}
