package pacer

import (
	"context"
	"sync"
	"time"

	"github.com/vizzTools/osmUtils/internal/metrics"
)

// Pacer is the shared resource every request goes through. Wait blocks
// until the caller may send; it returns an error only when ctx is done.
type Pacer interface {
	Wait(ctx context.Context) error
}

// Gate serializes requests within one process. Callers queue on a mutex;
// the holder asks the advisor for a pause and also keeps at least
// minSpacing between consecutive releases.
type Gate struct {
	advisor    Advisor
	minSpacing time.Duration

	mu   sync.Mutex
	last time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewGate creates a gate. A nil advisor means no advisory pause.
func NewGate(advisor Advisor, minSpacing time.Duration) *Gate {
	if advisor == nil {
		advisor = Fixed(0)
	}
	return &Gate{
		advisor:    advisor,
		minSpacing: minSpacing,
		now:        time.Now,
		sleep:      sleepCtx,
	}
}

// Wait sleeps for the larger of the advised pause and the remaining spacing.
func (g *Gate) Wait(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	pause := time.Duration(g.advisor.NextPauseSeconds(ctx)) * time.Second
	if !g.last.IsZero() {
		if spacing := g.minSpacing - g.now().Sub(g.last); spacing > pause {
			pause = spacing
		}
	}
	metrics.PauseSeconds.Observe(pause.Seconds())

	if err := g.sleep(ctx, pause); err != nil {
		return err
	}
	g.last = g.now()
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
