package progress

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer guards a bytes.Buffer written by the update loop.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestFormatCount(t *testing.T) {
	tests := []struct {
		input    int64
		expected string
	}{
		{0, "0"},
		{999, "999"},
		{9999, "9999"},
		{12_345, "12.3k"},
		{2_500_000, "2.5M"},
	}

	for _, tt := range tests {
		if got := FormatCount(tt.input); got != tt.expected {
			t.Errorf("FormatCount(%d) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		input    time.Duration
		expected string
	}{
		{30 * time.Second, "30s"},
		{90 * time.Second, "1m 30s"},
		{2*time.Hour + 3*time.Minute + 4*time.Second, "2h 3m 4s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.input); got != tt.expected {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestReporterUnitTracking(t *testing.T) {
	reporter := NewReporter(Options{TotalUnits: 4, Workers: 2})

	reporter.UnitStarted()
	if s := reporter.Snapshot(); s.InProgress != 1 {
		t.Errorf("expected 1 in-progress, got %d", s.InProgress)
	}

	reporter.UnitExported(12)
	reporter.UnitStarted()
	reporter.UnitExcluded()
	reporter.UnitStarted()
	reporter.UnitFailed()
	reporter.UnitStarted()
	reporter.UnitAbandoned()

	s := reporter.Snapshot()
	if s.InProgress != 0 {
		t.Errorf("expected 0 in-progress, got %d", s.InProgress)
	}
	if s.Exported != 1 || s.Excluded != 1 || s.Failed != 1 {
		t.Errorf("unexpected counts %+v", s)
	}
	if s.Done() != 3 {
		t.Errorf("expected 3 done, got %d", s.Done())
	}
	if s.Lines != 12 {
		t.Errorf("expected 12 lines, got %d", s.Lines)
	}
}

func TestReporterStartStop(t *testing.T) {
	out := &syncBuffer{}
	reporter := NewReporter(Options{
		TotalUnits:     4,
		Workers:        2,
		Output:         out,
		UpdateInterval: 10 * time.Millisecond,
		Endpoint:       "https://overpass.example/api",
	})

	reporter.Start()

	reporter.UnitStarted()
	reporter.UnitExported(3)
	reporter.UnitStarted()
	reporter.UnitExcluded()

	time.Sleep(50 * time.Millisecond)

	reporter.Stop()
	reporter.Stop()

	got := out.String()
	if !strings.Contains(got, "[osmutils] Fetching from: https://overpass.example/api") {
		t.Errorf("missing header in %q", got)
	}
	if !strings.Contains(got, "[osmutils] Progress: 50.0%") {
		t.Errorf("missing progress line in %q", got)
	}
	if !strings.Contains(got, "[osmutils] Done: 1 exported | 1 excluded | 0 failed | 3 lines") {
		t.Errorf("missing final status in %q", got)
	}
}

func TestReporterStopWithoutStart(t *testing.T) {
	out := &syncBuffer{}
	reporter := NewReporter(Options{Output: out})
	reporter.Stop()
	if out.String() != "" {
		t.Errorf("expected no output, got %q", out.String())
	}
}
