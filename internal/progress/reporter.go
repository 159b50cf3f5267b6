package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Options configures the progress reporter.
type Options struct {
	// TotalUnits is the number of pending units at the start of the run.
	TotalUnits int

	// Workers is the number of parallel workers.
	Workers int

	// Output is where to write progress output.
	// Default: os.Stderr
	Output io.Writer

	// UpdateInterval is how often to update the progress display.
	// Default: 2s
	UpdateInterval time.Duration

	// Endpoint is the Overpass endpoint (for display).
	Endpoint string
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Exported   int
	Excluded   int
	Failed     int
	InProgress int
	Lines      int64
}

// Done is the number of units resolved one way or another.
func (s Snapshot) Done() int {
	return s.Exported + s.Excluded + s.Failed
}

// Reporter outputs human-readable progress information.
type Reporter struct {
	opts Options

	mu         sync.Mutex
	exported   atomic.Int32
	excluded   atomic.Int32
	failed     atomic.Int32
	inProgress atomic.Int32
	lines      atomic.Int64
	startTime  time.Time
	started    bool
	stopped    bool
	stopCh     chan struct{}
	doneCh     chan struct{}
}

// NewReporter creates a new progress reporter.
func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.UpdateInterval == 0 {
		opts.UpdateInterval = 2 * time.Second
	}

	return &Reporter{
		opts:   opts,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins outputting progress information.
func (r *Reporter) Start() {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.startTime = time.Now()
	r.mu.Unlock()

	fmt.Fprintf(r.opts.Output, "[osmutils] Fetching from: %s\n", r.opts.Endpoint)
	fmt.Fprintf(r.opts.Output, "[osmutils] Pending units: %d | Workers: %d\n", r.opts.TotalUnits, r.opts.Workers)

	go r.updateLoop()
}

// Stop stops the progress reporter and prints the final status.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	started := r.started
	r.mu.Unlock()

	close(r.stopCh)
	if started {
		<-r.doneCh
	}
}

// UnitStarted marks a unit as in progress.
func (r *Reporter) UnitStarted() {
	r.inProgress.Add(1)
}

// UnitExported marks a unit as exported with n lines.
func (r *Reporter) UnitExported(n int) {
	r.lines.Add(int64(n))
	r.exported.Add(1)
	r.inProgress.Add(-1)
}

// UnitExcluded marks a unit as excluded.
func (r *Reporter) UnitExcluded() {
	r.excluded.Add(1)
	r.inProgress.Add(-1)
}

// UnitFailed marks a unit whose result could not be recorded. It stays
// pending.
func (r *Reporter) UnitFailed() {
	r.failed.Add(1)
	r.inProgress.Add(-1)
}

// UnitAbandoned removes a unit from in-progress without counting it,
// e.g. on cancellation.
func (r *Reporter) UnitAbandoned() {
	r.inProgress.Add(-1)
}

// Snapshot returns the current counters.
func (r *Reporter) Snapshot() Snapshot {
	return Snapshot{
		Exported:   int(r.exported.Load()),
		Excluded:   int(r.excluded.Load()),
		Failed:     int(r.failed.Load()),
		InProgress: int(r.inProgress.Load()),
		Lines:      r.lines.Load(),
	}
}

func (r *Reporter) updateLoop() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.opts.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			r.printFinalStatus()
			return
		case <-ticker.C:
			r.printProgress()
		}
	}
}

func (r *Reporter) printProgress() {
	s := r.Snapshot()
	elapsed := time.Since(r.startTime)

	var percent float64
	eta := "calculating..."
	if r.opts.TotalUnits > 0 {
		percent = float64(s.Done()) / float64(r.opts.TotalUnits) * 100
	}
	if d := s.Done(); d > 0 {
		remaining := r.opts.TotalUnits - d
		if remaining < 0 {
			remaining = 0
		}
		eta = formatDuration(elapsed / time.Duration(d) * time.Duration(remaining))
	}

	pending := r.opts.TotalUnits - s.Done() - s.InProgress
	if pending < 0 {
		pending = 0
	}

	fmt.Fprintf(r.opts.Output, "[osmutils] Progress: %.1f%% | %d exported | %d excluded | %d failed | %d in-progress | %d pending | ETA: %s\n",
		percent,
		s.Exported,
		s.Excluded,
		s.Failed,
		s.InProgress,
		pending,
		eta,
	)
}

func (r *Reporter) printFinalStatus() {
	s := r.Snapshot()
	fmt.Fprintf(r.opts.Output, "[osmutils] Done: %d exported | %d excluded | %d failed | %s lines\n",
		s.Exported,
		s.Excluded,
		s.Failed,
		FormatCount(s.Lines),
	)
	fmt.Fprintf(r.opts.Output, "[osmutils] Total time: %s\n", formatDuration(time.Since(r.startTime)))
}

// FormatCount formats a count with k/M suffixes.
func FormatCount(n int64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1e6)
	case n >= 10_000:
		return fmt.Sprintf("%.1fk", float64(n)/1e3)
	default:
		return fmt.Sprintf("%d", n)
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}
