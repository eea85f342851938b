package sessionkit

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// recordingBackend scripts status codes per hit and records what the
// pipeline actually sent.
type recordingBackend struct {
	mu       sync.Mutex
	script   []int
	hits     int
	headers  []http.Header
	bodies   []string
	respHdrs http.Header
}

func newRecordingBackend(script ...int) *recordingBackend {
	return &recordingBackend{script: script, respHdrs: http.Header{}}
}

func (b *recordingBackend) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		b.mu.Lock()
		status := http.StatusOK
		if b.hits < len(b.script) {
			status = b.script[b.hits]
		}
		b.hits++
		b.headers = append(b.headers, r.Header.Clone())
		b.bodies = append(b.bodies, string(body))
		hdrs := b.respHdrs
		b.mu.Unlock()

		for k, vs := range hdrs {
			for _, v := range vs {
				w.Header().Add(k, v)
			}
		}
		w.WriteHeader(status)
	}
}

func (b *recordingBackend) hitCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits
}

func (b *recordingBackend) header(i int) http.Header {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i >= len(b.headers) {
		return http.Header{}
	}
	return b.headers[i]
}

func newRequestEngine(t *testing.T, p *stubProvider, backend *recordingBackend, mutate ...func(*Config)) (*Engine, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)

	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}

	e, err := New().
		WithProvider(p).
		WithConfig(cfg).
		WithHTTPClient(srv.Client()).
		WithoutRemoteConfig().
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e, srv
}

func TestDoStampsBearerAndCSRF(t *testing.T) {
	p := newStubProvider()
	backend := newRecordingBackend()
	e, srv := newRequestEngine(t, p, backend)

	res := mustLogin(t, e)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/items", nil)
	resp, err := e.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()

	hdr := backend.header(0)
	if got := hdr.Get("Authorization"); got != "Bearer "+res.AccessToken {
		t.Fatalf("Authorization = %q", got)
	}
	if got := hdr.Get("X-CSRF-Token"); !strings.HasPrefix(got, "csrf-") {
		t.Fatalf("X-CSRF-Token = %q", got)
	}
}

func TestDoUnauthenticatedOmitsBearer(t *testing.T) {
	p := newStubProvider()
	backend := newRecordingBackend()
	e, srv := newRequestEngine(t, p, backend)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/public", nil)
	resp, err := e.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()

	if got := backend.header(0).Get("Authorization"); got != "" {
		t.Fatalf("unauthenticated request carried Authorization %q", got)
	}
}

func TestDoRefreshesOn401AndRetriesOnce(t *testing.T) {
	p := newStubProvider()
	backend := newRecordingBackend(http.StatusUnauthorized, http.StatusOK)
	e, srv := newRequestEngine(t, p, backend)

	res := mustLogin(t, e)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/items", nil)
	resp, err := e.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()

	if backend.hitCount() != 2 {
		t.Fatalf("expected 2 attempts, got %d", backend.hitCount())
	}
	if p.refreshCalls.Load() != 1 {
		t.Fatalf("expected 1 refresh, got %d", p.refreshCalls.Load())
	}

	second := backend.header(1).Get("Authorization")
	if second == "Bearer "+res.AccessToken {
		t.Fatal("retry reused the stale bearer")
	}
	if !strings.HasPrefix(second, "Bearer ") {
		t.Fatalf("retry Authorization = %q", second)
	}
}

func TestDoGivesUpAfterSecond401(t *testing.T) {
	p := newStubProvider()
	backend := newRecordingBackend(http.StatusUnauthorized, http.StatusUnauthorized)
	e, srv := newRequestEngine(t, p, backend)

	mustLogin(t, e)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/items", nil)
	if _, err := e.Do(context.Background(), req); !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("want ErrAuthenticationFailed, got %v", err)
	}
	if backend.hitCount() != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", backend.hitCount())
	}
}

func TestDoRotatesCSRFAndRetriesOnce(t *testing.T) {
	p := newStubProvider()
	backend := newRecordingBackend(http.StatusForbidden, http.StatusOK)
	backend.respHdrs.Set("X-CSRF-Rejected", "1")
	e, srv := newRequestEngine(t, p, backend)

	mustLogin(t, e)
	primed := p.csrfCalls.Load()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/items", strings.NewReader(`{"n":1}`))
	resp, err := e.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()

	if backend.hitCount() != 2 {
		t.Fatalf("expected 2 attempts, got %d", backend.hitCount())
	}
	if p.csrfCalls.Load() != primed+1 {
		t.Fatalf("expected one rotation, csrf fetches went %d -> %d", primed, p.csrfCalls.Load())
	}

	first := backend.header(0).Get("X-CSRF-Token")
	second := backend.header(1).Get("X-CSRF-Token")
	if first == second {
		t.Fatal("retry did not carry the rotated token")
	}

	rotated := e.AuditEvents(AuditFilter{Types: []string{EventCSRFRotated}})
	if len(rotated) != 1 {
		t.Fatalf("expected 1 csrf_token_rotated event, got %d", len(rotated))
	}
}

func TestDoCSRFMismatchTwiceFails(t *testing.T) {
	p := newStubProvider()
	backend := newRecordingBackend(http.StatusForbidden, http.StatusForbidden)
	backend.respHdrs.Set("X-CSRF-Rejected", "1")
	e, srv := newRequestEngine(t, p, backend)

	mustLogin(t, e)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/items", strings.NewReader("{}"))
	if _, err := e.Do(context.Background(), req); !errors.Is(err, ErrCSRFRejected) {
		t.Fatalf("want ErrCSRFRejected, got %v", err)
	}
	if backend.hitCount() != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", backend.hitCount())
	}
}

func TestDoPermissionDeniedIsNotRetried(t *testing.T) {
	p := newStubProvider()
	backend := newRecordingBackend(http.StatusForbidden)
	e, srv := newRequestEngine(t, p, backend)

	mustLogin(t, e)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/admin", nil)
	if _, err := e.Do(context.Background(), req); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("want ErrPermissionDenied, got %v", err)
	}
	if backend.hitCount() != 1 {
		t.Fatalf("403 without rotation signal must not retry, got %d attempts", backend.hitCount())
	}

	events := e.AuditEvents(AuditFilter{Types: []string{EventPermissionDenied}})
	if len(events) != 1 {
		t.Fatalf("expected 1 permission_denied event, got %d", len(events))
	}
}

func TestDoLocalRateLimit(t *testing.T) {
	p := newStubProvider()
	backend := newRecordingBackend()
	e, srv := newRequestEngine(t, p, backend, func(cfg *Config) {
		cfg.RateLimit.Max = 2
		cfg.RateLimit.Window = time.Minute
	})

	mustLogin(t, e)

	for i := 0; i < 2; i++ {
		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/items", nil)
		resp, err := e.Do(context.Background(), req)
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		resp.Body.Close()
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/items", nil)
	_, err := e.Do(context.Background(), req)

	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("want *RateLimitError, got %v", err)
	}
	if !rl.Local {
		t.Fatal("denial should be local")
	}
	if rl.RetryAfter <= 0 {
		t.Fatalf("RetryAfter = %v", rl.RetryAfter)
	}
	if !errors.Is(err, ErrRateLimited) {
		t.Fatal("RateLimitError must match ErrRateLimited")
	}
	if backend.hitCount() != 2 {
		t.Fatalf("denied request reached the backend, hits = %d", backend.hitCount())
	}

	// A different endpoint keeps its own budget.
	other, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/other", nil)
	resp, err := e.Do(context.Background(), other)
	if err != nil {
		t.Fatalf("other endpoint: %v", err)
	}
	resp.Body.Close()

	denied := e.AuditEvents(AuditFilter{Types: []string{EventRateLimitExceeded}})
	if len(denied) != 1 {
		t.Fatalf("expected 1 rate_limit_exceeded event, got %d", len(denied))
	}
}

func TestDoServerRateLimit(t *testing.T) {
	p := newStubProvider()
	backend := newRecordingBackend(http.StatusTooManyRequests)
	backend.respHdrs.Set("Retry-After", "7")
	e, srv := newRequestEngine(t, p, backend)

	mustLogin(t, e)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/items", nil)
	_, err := e.Do(context.Background(), req)

	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("want *RateLimitError, got %v", err)
	}
	if rl.Local {
		t.Fatal("429 should not be marked local")
	}
	if rl.RetryAfter != 7*time.Second {
		t.Fatalf("RetryAfter = %v", rl.RetryAfter)
	}
	if backend.hitCount() != 1 {
		t.Fatalf("429 must not be retried, got %d attempts", backend.hitCount())
	}
}

func TestDoReplaysBodyOnRetry(t *testing.T) {
	p := newStubProvider()
	backend := newRecordingBackend(http.StatusUnauthorized, http.StatusOK)
	e, srv := newRequestEngine(t, p, backend)

	mustLogin(t, e)

	payload := `{"name":"widget"}`
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/items", bytes.NewReader([]byte(payload)))
	resp, err := e.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()

	backend.mu.Lock()
	bodies := append([]string(nil), backend.bodies...)
	backend.mu.Unlock()

	if len(bodies) != 2 || bodies[0] != payload || bodies[1] != payload {
		t.Fatalf("bodies = %q", bodies)
	}
}

func TestDoNetworkFailure(t *testing.T) {
	p := newStubProvider()
	backend := newRecordingBackend()
	e, srv := newRequestEngine(t, p, backend)

	mustLogin(t, e)
	srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/items", nil)
	if _, err := e.Do(context.Background(), req); !errors.Is(err, ErrNetwork) {
		t.Fatalf("want ErrNetwork, got %v", err)
	}
}

func TestDoRecordsLatency(t *testing.T) {
	p := newStubProvider()
	backend := newRecordingBackend()
	e, srv := newRequestEngine(t, p, backend)

	mustLogin(t, e)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/items", nil)
	resp, err := e.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()

	snap := e.MetricsSnapshot()
	if snap.Counters[MetricRequestSuccess] != 1 {
		t.Fatalf("request success counter = %d", snap.Counters[MetricRequestSuccess])
	}
	var samples uint64
	for _, n := range snap.Histograms[MetricRequestLatency] {
		samples += n
	}
	if samples != 1 {
		t.Fatalf("latency samples = %d", samples)
	}
}
