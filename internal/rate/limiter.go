package rate

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrBackendUnavailable reports a limiter backend failure. Callers decide
// whether to fail open or closed.
var ErrBackendUnavailable = errors.New("rate limiter backend unavailable")

// Config holds fixed-window tuning parameters.
type Config struct {
	Max    int
	Window time.Duration
}

// Decision is the outcome of a single check-and-increment.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
}

// Limiter counts a request against an endpoint's window and reports whether
// it is within budget.
type Limiter interface {
	CheckAndIncrement(ctx context.Context, endpoint string) (Decision, error)
}

type window struct {
	count int
	start time.Time
}

// FixedWindow is the in-process limiter. Counters for the same endpoint are
// serialized under one mutex, so concurrent increments never lose updates.
type FixedWindow struct {
	mu      sync.Mutex
	cfg     Config
	now     func() time.Time
	windows map[string]window
}

// NewFixedWindow creates an in-process fixed-window limiter.
func NewFixedWindow(cfg Config) *FixedWindow {
	return &FixedWindow{
		cfg:     cfg,
		now:     time.Now,
		windows: make(map[string]window),
	}
}

// NewFixedWindowAt is NewFixedWindow with an injected clock for tests.
func NewFixedWindowAt(cfg Config, now func() time.Time) *FixedWindow {
	l := NewFixedWindow(cfg)
	l.now = now
	return l
}

// CheckAndIncrement implements [Limiter]. The window entry is replaced as a
// whole value under the lock; a denied request's increment is kept.
func (l *FixedWindow) CheckAndIncrement(_ context.Context, endpoint string) (Decision, error) {
	now := l.now()

	l.mu.Lock()
	w, ok := l.windows[endpoint]
	if !ok || !now.Before(w.start.Add(l.cfg.Window)) {
		w = window{count: 1, start: now}
	} else {
		w = window{count: w.count + 1, start: w.start}
	}
	l.windows[endpoint] = w
	l.mu.Unlock()

	return l.decide(w, now), nil
}

func (l *FixedWindow) decide(w window, now time.Time) Decision {
	d := Decision{
		Allowed: w.count <= l.cfg.Max,
		ResetAt: w.start.Add(l.cfg.Window),
	}
	if remaining := l.cfg.Max - w.count; remaining > 0 {
		d.Remaining = remaining
	}
	if !d.Allowed {
		d.RetryAfter = d.ResetAt.Sub(now)
	}
	return d
}
