// Package refresh deduplicates concurrent token refreshes.
//
// # Single-flight guarantee
//
// At most one refresh is in flight per subject at any instant. Callers that
// arrive while a refresh is running await that refresh and receive the same
// outcome; they never trigger a second provider call. A caller abandoning
// its wait (context cancellation) does not cancel a refresh already shared
// with other waiters — the refresh runs to completion on a detached context.
package refresh

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// Outcome is the shared result all waiters of one refresh receive.
type Outcome struct {
	Subject      string
	AccessToken  string
	RefreshToken string
}

// Func performs the actual refresh against the identity provider.
type Func func(ctx context.Context, subject string) (Outcome, error)

// Coordinator single-flights refreshes per subject.
type Coordinator struct {
	group   singleflight.Group
	refresh Func
	timeout time.Duration
}

// NewCoordinator wraps refresh with per-subject deduplication. timeout
// bounds the detached refresh; zero means no bound.
func NewCoordinator(refresh Func, timeout time.Duration) *Coordinator {
	return &Coordinator{
		refresh: refresh,
		timeout: timeout,
	}
}

// EnsureFresh joins or starts the subject's refresh. All concurrent callers
// resolve with the same Outcome or the same error. ctx cancellation detaches
// only this caller; the underlying refresh continues for the others.
func (c *Coordinator) EnsureFresh(ctx context.Context, subject string) (Outcome, error) {
	ch := c.group.DoChan(subject, func() (interface{}, error) {
		rctx := context.WithoutCancel(ctx)
		cancel := context.CancelFunc(func() {})
		if c.timeout > 0 {
			rctx, cancel = context.WithTimeout(rctx, c.timeout)
		}
		defer cancel()

		return c.refresh(rctx, subject)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Outcome{}, res.Err
		}
		return res.Val.(Outcome), nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}
