package pacer

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"
)

// DefaultPause is used when the status page cannot be read or understood.
const DefaultPause = 5 * time.Second

// slotLayout is the timestamp format of a "Slot available after" line; the
// trailing comma is part of the token.
const slotLayout = "2006-01-02T15:04:05Z,"

// Advisor decides how long to wait before the next request.
type Advisor interface {
	// NextPauseSeconds returns a pause ≥ 0. It never fails; problems reading
	// the remote signal fall back to a default.
	NextPauseSeconds(ctx context.Context) int
}

// StatusSource returns the plain-text status page of the remote service.
type StatusSource interface {
	Status(ctx context.Context) (string, error)
}

// StatusAdvisor reads the Overpass status page.
type StatusAdvisor struct {
	src          StatusSource
	defaultPause int
	log          *slog.Logger
	now          func() time.Time
}

// NewStatusAdvisor creates an advisor over src. defaultPause ≤ 0 means
// DefaultPause.
func NewStatusAdvisor(src StatusSource, defaultPause time.Duration, log *slog.Logger) *StatusAdvisor {
	if defaultPause <= 0 {
		defaultPause = DefaultPause
	}
	if log == nil {
		log = slog.Default()
	}
	return &StatusAdvisor{
		src:          src,
		defaultPause: int(math.Ceil(defaultPause.Seconds())),
		log:          log,
		now:          time.Now,
	}
}

// NextPauseSeconds inspects line 4 of the status page:
//
//	"2 slots available now."                          → 0
//	"Slot available after: 2024-01-01T00:00:10Z, in 8 seconds." → seconds until then, at least 1
//	"Currently running queries ..."                   → default
//
// Anything else, including an unreachable endpoint, gives the default.
func (a *StatusAdvisor) NextPauseSeconds(ctx context.Context) int {
	page, err := a.src.Status(ctx)
	if err != nil {
		a.log.Warn("status_unreachable", "error", err, "pause_s", a.defaultPause)
		return a.defaultPause
	}

	lines := strings.Split(page, "\n")
	if len(lines) < 4 {
		a.log.Warn("status_unrecognized", "status", page, "pause_s", a.defaultPause)
		return a.defaultPause
	}
	line := strings.TrimSpace(lines[3])
	tokens := strings.Split(line, " ")

	if _, err := strconv.Atoi(tokens[0]); err == nil {
		return 0
	}

	switch tokens[0] {
	case "Slot":
		if len(tokens) < 4 {
			break
		}
		at, err := time.Parse(slotLayout, tokens[3])
		if err != nil {
			break
		}
		wait := int(math.Ceil(at.Sub(a.now()).Seconds()))
		if wait < 1 {
			wait = 1
		}
		return wait
	case "Currently":
		a.log.Debug("status_busy", "pause_s", a.defaultPause)
		return a.defaultPause
	}

	a.log.Warn("status_unrecognized", "status", line, "pause_s", a.defaultPause)
	return a.defaultPause
}

// Fixed always advises the same pause.
type Fixed time.Duration

func (f Fixed) NextPauseSeconds(context.Context) int {
	if f <= 0 {
		return 0
	}
	return int(math.Ceil(time.Duration(f).Seconds()))
}
