package sessionkit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestEnsureFreshSingleFlight(t *testing.T) {
	p := newStubProvider()
	p.refreshDelay = 50 * time.Millisecond
	e := newTestEngine(t, p)

	mustLogin(t, e)

	const callers = 16
	tokens := make([]string, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = e.EnsureFresh(context.Background())
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if tokens[i] != tokens[0] {
			t.Fatalf("caller %d got a different token", i)
		}
	}
	if calls := p.refreshCalls.Load(); calls != 1 {
		t.Fatalf("expected exactly 1 provider refresh, got %d", calls)
	}
}

func TestEnsureFreshFailureForcesLogout(t *testing.T) {
	p := newStubProvider()
	e := newTestEngine(t, p)

	mustLogin(t, e)

	ch, cancel := e.Subscribe(8)
	defer cancel()

	p.refreshErr = errors.New("refresh rejected upstream")
	if _, err := e.EnsureFresh(context.Background()); !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("want ErrAuthenticationFailed, got %v", err)
	}
	if e.IsAuthenticated() {
		t.Fatal("failed refresh must log the session out")
	}

	select {
	case change := <-ch:
		if change.Kind != SessionExpired {
			t.Fatalf("want SessionExpired, got %v", change.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for SessionExpired")
	}

	failures := e.AuditEvents(AuditFilter{Types: []string{EventRefreshFailure}})
	if len(failures) != 1 {
		t.Fatalf("expected 1 token_refresh_failure event, got %d", len(failures))
	}
}

func TestEnsureFreshSharedFailure(t *testing.T) {
	p := newStubProvider()
	p.refreshDelay = 50 * time.Millisecond
	p.refreshErr = errors.New("refresh rejected upstream")
	e := newTestEngine(t, p)

	mustLogin(t, e)

	const callers = 8
	errs := make([]error, callers)

	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.EnsureFresh(context.Background())
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, ErrAuthenticationFailed) {
			t.Fatalf("caller %d: want ErrAuthenticationFailed, got %v", i, err)
		}
	}
	if calls := p.refreshCalls.Load(); calls != 1 {
		t.Fatalf("expected exactly 1 provider refresh, got %d", calls)
	}

	// Every waiter mapping the shared failure must still produce only
	// one forced logout in the audit trail.
	failures := e.AuditEvents(AuditFilter{Types: []string{EventRefreshFailure}})
	if len(failures) != 1 {
		t.Fatalf("expected 1 token_refresh_failure event, got %d", len(failures))
	}
}

func TestEnsureFreshRotatesSessionToken(t *testing.T) {
	p := newStubProvider()
	e := newTestEngine(t, p)

	res := mustLogin(t, e)

	fresh, err := e.EnsureFresh(context.Background())
	if err != nil {
		t.Fatalf("EnsureFresh: %v", err)
	}
	if fresh == res.AccessToken {
		t.Fatal("expected a new access token")
	}

	held, ok := e.AccessToken()
	if !ok || held != fresh {
		t.Fatalf("session token = %q, want %q", held, fresh)
	}
	if _, err := e.Verify(context.Background(), fresh); err != nil {
		t.Fatalf("rotated token should verify: %v", err)
	}

	refreshed := e.AuditEvents(AuditFilter{Types: []string{EventRefreshSuccess}})
	if len(refreshed) != 1 {
		t.Fatalf("expected 1 token_refresh_success event, got %d", len(refreshed))
	}
}

func TestEnsureFreshRequiresSession(t *testing.T) {
	p := newStubProvider()
	e := newTestEngine(t, p)

	if _, err := e.EnsureFresh(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("want ErrNotAuthenticated, got %v", err)
	}
}
