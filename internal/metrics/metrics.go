// Package metrics holds the Prometheus collectors of an acquisition run.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "osmutils_overpass_requests_total",
		Help: "Overpass interpreter requests by classification",
	}, []string{"status"})
	RequestDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "osmutils_overpass_request_duration_ms",
		Help:    "Overpass interpreter request duration in milliseconds",
		Buckets: []float64{100, 500, 1000, 5000, 15000, 30000, 60000, 120000, 180000},
	})
	PauseSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "osmutils_pause_seconds",
		Help:    "Pause applied before each request",
		Buckets: []float64{0, 1, 2, 5, 10, 30, 60},
	})
	UnitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "osmutils_units_total",
		Help: "Work units resolved by outcome",
	}, []string{"outcome"})
	SplitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "osmutils_splits_total",
		Help: "Geometry subdivisions after an overload or malformed response",
	})
	ParseWarningsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "osmutils_parse_warnings_total",
		Help: "Ways skipped because a referenced node was missing",
	})
	LinesExported = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "osmutils_lines_exported_total",
		Help: "Line geometries written to artifacts",
	})
)

// Unit outcomes.
const (
	OutcomeExported = "exported"
	OutcomeExcluded = "excluded"
	OutcomeFailed   = "failed"
)

func init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDurationMs)
	prometheus.MustRegister(PauseSeconds)
	prometheus.MustRegister(UnitsTotal)
	prometheus.MustRegister(SplitsTotal)
	prometheus.MustRegister(ParseWarningsTotal)
	prometheus.MustRegister(LinesExported)
}

// Handler serves the registered metrics.
func Handler() http.Handler { return promhttp.Handler() }
