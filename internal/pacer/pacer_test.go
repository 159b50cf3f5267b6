package pacer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vizzTools/osmUtils/internal/logger"
)

type fakeStatus struct {
	page string
	err  error
}

func (f fakeStatus) Status(context.Context) (string, error) {
	return f.page, f.err
}

func statusPage(line4 string) string {
	return "Connected as: 123\nCurrent time: 2024-01-01T00:00:00Z\nRate limit: 2\n" + line4 + "\n"
}

func TestStatusAdvisor(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		src  fakeStatus
		want int
	}{
		{"slots available", fakeStatus{page: statusPage("2 slots available now.")}, 0},
		{"slot in future", fakeStatus{page: statusPage("Slot available after: 2024-01-01T00:00:08Z, in 8 seconds.")}, 8},
		{"slot soon", fakeStatus{page: statusPage("Slot available after: 2024-01-01T00:00:03Z, in 3 seconds.")}, 3},
		{"slot in past", fakeStatus{page: statusPage("Slot available after: 2023-12-31T23:59:50Z, in -10 seconds.")}, 1},
		{"currently running", fakeStatus{page: statusPage("Currently running queries (pid, space limit, time limit, start time):")}, 5},
		{"unrecognized", fakeStatus{page: statusPage("Something else")}, 5},
		{"bad slot time", fakeStatus{page: statusPage("Slot available after: soon, in ? seconds.")}, 5},
		{"short page", fakeStatus{page: "Connected as: 1\n"}, 5},
		{"unreachable", fakeStatus{err: errors.New("connection refused")}, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewStatusAdvisor(tt.src, 0, logger.Discard())
			a.now = func() time.Time { return now }
			if got := a.NextPauseSeconds(context.Background()); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestStatusAdvisorSubSecondRoundsUp(t *testing.T) {
	a := NewStatusAdvisor(fakeStatus{page: statusPage("Slot available after: 2024-01-01T00:00:05Z, in 5 seconds.")}, 0, logger.Discard())
	a.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 2, 500_000_000, time.UTC) }
	if got := a.NextPauseSeconds(context.Background()); got != 3 {
		t.Errorf("expected ceil(2.5)=3, got %d", got)
	}
}

func TestStatusAdvisorCustomDefault(t *testing.T) {
	a := NewStatusAdvisor(fakeStatus{err: errors.New("down")}, 12*time.Second, logger.Discard())
	if got := a.NextPauseSeconds(context.Background()); got != 12 {
		t.Errorf("expected 12, got %d", got)
	}
}

func TestFixed(t *testing.T) {
	if got := Fixed(1500 * time.Millisecond).NextPauseSeconds(context.Background()); got != 2 {
		t.Errorf("expected 2, got %d", got)
	}
	if got := Fixed(0).NextPauseSeconds(context.Background()); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
}

// fakeClock records requested sleeps and advances time by them.
type fakeClock struct {
	mu     sync.Mutex
	t      time.Time
	sleeps []time.Duration
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	if d > 0 {
		c.t = c.t.Add(d)
	}
	return ctx.Err()
}

func TestGateAppliesAdvisorAndSpacing(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	g := NewGate(Fixed(0), 2*time.Second)
	g.now = clock.now
	g.sleep = clock.sleep

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := g.Wait(ctx); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}
	want := []time.Duration{0, 2 * time.Second, 2 * time.Second}
	for i, d := range want {
		if clock.sleeps[i] != d {
			t.Errorf("wait %d: expected %v, got %v", i, d, clock.sleeps[i])
		}
	}

	// an advisory pause longer than the spacing wins
	g.advisor = Fixed(7 * time.Second)
	g.Wait(ctx)
	if got := clock.sleeps[len(clock.sleeps)-1]; got != 7*time.Second {
		t.Errorf("expected 7s pause, got %v", got)
	}
}

func TestGateSerializesCallers(t *testing.T) {
	var (
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	g := NewGate(nil, 0)
	g.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		active++
		if active > maxSeen {
			maxSeen = active
		}
		mu.Unlock()
		time.Sleep(time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
		return nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Wait(context.Background())
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Errorf("expected one caller at a time, saw %d", maxSeen)
	}
}

func TestGateCancelled(t *testing.T) {
	g := NewGate(Fixed(time.Hour), 0)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	if err := g.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRedisGateWithoutClient(t *testing.T) {
	g := NewRedisGate(nil, "", Fixed(0), time.Millisecond, logger.Discard())
	if err := g.Wait(context.Background()); err != nil {
		t.Errorf("Wait: %v", err)
	}
	if g.key != DefaultSlotKey {
		t.Errorf("expected default key, got %s", g.key)
	}
}
