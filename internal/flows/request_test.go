package flows

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

type pipelineStub struct {
	deps RequestDeps

	dispatched []*http.Request
	responses  []*http.Response
	dispatchEr error

	rateAllowed bool
	retryAfter  time.Duration

	bearer       string
	refreshTo    string
	refreshErr   error
	refreshCalls int

	rotateCalls int
}

func newPipelineStub() *pipelineStub {
	s := &pipelineStub{
		rateAllowed: true,
		bearer:      "access-1",
		refreshTo:   "access-2",
	}
	s.deps = RequestDeps{
		AuthHeader:       "Authorization",
		CSRFSignalHeader: "X-CSRF-Rejected",
		Endpoint: func(r *http.Request) string {
			return r.Method + " " + r.URL.Path
		},
		NewRequestID: func() string { return "req-1" },
		CheckRate: func(context.Context, string) (bool, time.Duration, error) {
			return s.rateAllowed, s.retryAfter, nil
		},
		BearerToken: func(context.Context) (string, error) {
			return s.bearer, nil
		},
		RefreshBearer: func(context.Context) (string, error) {
			s.refreshCalls++
			if s.refreshErr != nil {
				return "", s.refreshErr
			}
			return s.refreshTo, nil
		},
		StampCSRF: func(r *http.Request) {
			r.Header.Set("X-CSRF-Token", "csrf-1")
		},
		OnCSRFMismatch: func(_ context.Context, alreadyRetried bool) (bool, error) {
			s.rotateCalls++
			return !alreadyRetried, nil
		},
		Dispatch: func(r *http.Request) (*http.Response, error) {
			s.dispatched = append(s.dispatched, r)
			if s.dispatchEr != nil {
				return nil, s.dispatchEr
			}
			resp := s.responses[0]
			if len(s.responses) > 1 {
				s.responses = s.responses[1:]
			}
			return resp, nil
		},
		RetryAfterHint: func(resp *http.Response) time.Duration {
			if v := resp.Header.Get("Retry-After"); v == "2" {
				return 2 * time.Second
			}
			return 0
		},
	}
	return s
}

func respWithStatus(code int, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode: code,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader("")),
	}
}

func testRequest(t *testing.T) *http.Request {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, "http://api.test/records", nil)
	if err != nil {
		t.Fatalf("NewRequest error: %v", err)
	}
	return req
}

func TestRunRequestStampsHeadersAndSucceeds(t *testing.T) {
	s := newPipelineStub()
	s.responses = []*http.Response{respWithStatus(http.StatusOK, nil)}

	res := RunRequest(context.Background(), testRequest(t), s.deps)

	if res.Failure != RequestFailureNone {
		t.Fatalf("failure = %v, err = %v", res.Failure, res.Err)
	}
	if res.Response == nil || res.Response.StatusCode != http.StatusOK {
		t.Fatal("expected the dispatched response to be surfaced")
	}
	if res.Endpoint != "GET /records" {
		t.Fatalf("endpoint = %q", res.Endpoint)
	}

	sent := s.dispatched[0]
	if got := sent.Header.Get("Authorization"); got != "Bearer access-1" {
		t.Fatalf("Authorization = %q", got)
	}
	if got := sent.Header.Get("X-CSRF-Token"); got != "csrf-1" {
		t.Fatalf("X-CSRF-Token = %q", got)
	}
}

func TestRunRequestLocalRateDenialSkipsDispatch(t *testing.T) {
	s := newPipelineStub()
	s.rateAllowed = false
	s.retryAfter = 700 * time.Millisecond

	res := RunRequest(context.Background(), testRequest(t), s.deps)

	if res.Failure != RequestFailureRateLimited {
		t.Fatalf("failure = %v", res.Failure)
	}
	if res.RetryAfter != 700*time.Millisecond {
		t.Fatalf("RetryAfter = %v", res.RetryAfter)
	}
	if len(s.dispatched) != 0 {
		t.Fatal("denied request must not reach the network")
	}
}

func TestRunRequestRefreshesOnceOn401(t *testing.T) {
	s := newPipelineStub()
	s.responses = []*http.Response{
		respWithStatus(http.StatusUnauthorized, nil),
		respWithStatus(http.StatusOK, nil),
	}

	res := RunRequest(context.Background(), testRequest(t), s.deps)

	if res.Failure != RequestFailureNone {
		t.Fatalf("failure = %v, err = %v", res.Failure, res.Err)
	}
	if !res.Retried {
		t.Fatal("expected a single retry")
	}
	if s.refreshCalls != 1 {
		t.Fatalf("refresh calls = %d, want 1", s.refreshCalls)
	}
	if got := s.dispatched[1].Header.Get("Authorization"); got != "Bearer access-2" {
		t.Fatalf("retry Authorization = %q", got)
	}
}

func TestRunRequestGivesUpAfterSecond401(t *testing.T) {
	s := newPipelineStub()
	s.responses = []*http.Response{
		respWithStatus(http.StatusUnauthorized, nil),
		respWithStatus(http.StatusUnauthorized, nil),
	}

	res := RunRequest(context.Background(), testRequest(t), s.deps)

	if res.Failure != RequestFailureAuthRequired {
		t.Fatalf("failure = %v", res.Failure)
	}
	if len(s.dispatched) != 2 {
		t.Fatalf("dispatch count = %d, want 2", len(s.dispatched))
	}
	if s.refreshCalls != 1 {
		t.Fatalf("refresh calls = %d, want 1", s.refreshCalls)
	}
}

func TestRunRequestFailedRefreshSurfacesAuthFailure(t *testing.T) {
	s := newPipelineStub()
	s.refreshErr = errors.New("refresh rejected")
	s.responses = []*http.Response{respWithStatus(http.StatusUnauthorized, nil)}

	res := RunRequest(context.Background(), testRequest(t), s.deps)

	if res.Failure != RequestFailureAuthRequired {
		t.Fatalf("failure = %v", res.Failure)
	}
	if !errors.Is(res.Err, s.refreshErr) {
		t.Fatalf("err = %v", res.Err)
	}
}

func TestRunRequestRotatesCSRFAndRetriesOnce(t *testing.T) {
	signal := http.Header{}
	signal.Set("X-CSRF-Rejected", "1")

	s := newPipelineStub()
	s.responses = []*http.Response{
		respWithStatus(http.StatusForbidden, signal),
		respWithStatus(http.StatusOK, nil),
	}

	res := RunRequest(context.Background(), testRequest(t), s.deps)

	if res.Failure != RequestFailureNone {
		t.Fatalf("failure = %v, err = %v", res.Failure, res.Err)
	}
	if s.rotateCalls != 1 {
		t.Fatalf("rotate calls = %d, want 1", s.rotateCalls)
	}
}

func TestRunRequestCSRFMismatchOnRetryGivesUp(t *testing.T) {
	signal := http.Header{}
	signal.Set("X-CSRF-Rejected", "1")

	s := newPipelineStub()
	s.responses = []*http.Response{
		respWithStatus(http.StatusForbidden, signal),
		respWithStatus(http.StatusForbidden, signal),
	}

	res := RunRequest(context.Background(), testRequest(t), s.deps)

	if res.Failure != RequestFailureCSRFRejected {
		t.Fatalf("failure = %v", res.Failure)
	}
	if len(s.dispatched) != 2 {
		t.Fatalf("dispatch count = %d, want 2", len(s.dispatched))
	}
}

func TestRunRequestPermissionDeniedNeverRetries(t *testing.T) {
	s := newPipelineStub()
	s.responses = []*http.Response{respWithStatus(http.StatusForbidden, nil)}

	res := RunRequest(context.Background(), testRequest(t), s.deps)

	if res.Failure != RequestFailurePermissionDenied {
		t.Fatalf("failure = %v", res.Failure)
	}
	if len(s.dispatched) != 1 {
		t.Fatalf("dispatch count = %d, want 1", len(s.dispatched))
	}
}

func TestRunRequestServerRateLimitSurfacesHint(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "2")

	s := newPipelineStub()
	s.responses = []*http.Response{respWithStatus(http.StatusTooManyRequests, h)}

	res := RunRequest(context.Background(), testRequest(t), s.deps)

	if res.Failure != RequestFailureServerRateLimited {
		t.Fatalf("failure = %v", res.Failure)
	}
	if res.RetryAfter != 2*time.Second {
		t.Fatalf("RetryAfter = %v", res.RetryAfter)
	}
	if len(s.dispatched) != 1 {
		t.Fatal("server rate limit must not be retried")
	}
}

func TestRunRequestNetworkFailure(t *testing.T) {
	s := newPipelineStub()
	s.dispatchEr = errors.New("connection refused")

	res := RunRequest(context.Background(), testRequest(t), s.deps)

	if res.Failure != RequestFailureNetwork {
		t.Fatalf("failure = %v", res.Failure)
	}
	if !errors.Is(res.Err, s.dispatchEr) {
		t.Fatalf("err = %v", res.Err)
	}
}

func TestRunRequestReplaysBodyOnRetry(t *testing.T) {
	s := newPipelineStub()
	s.responses = []*http.Response{
		respWithStatus(http.StatusUnauthorized, nil),
		respWithStatus(http.StatusOK, nil),
	}

	req, err := http.NewRequest(http.MethodPost, "http://api.test/records", strings.NewReader(`{"name":"x"}`))
	if err != nil {
		t.Fatalf("NewRequest error: %v", err)
	}

	res := RunRequest(context.Background(), req, s.deps)
	if res.Failure != RequestFailureNone {
		t.Fatalf("failure = %v, err = %v", res.Failure, res.Err)
	}

	for i, sent := range s.dispatched {
		body, _ := io.ReadAll(sent.Body)
		if string(body) != `{"name":"x"}` {
			t.Fatalf("attempt %d body = %q", i, body)
		}
	}
}

func TestRunRequestUnauthenticatedCallOmitsBearer(t *testing.T) {
	s := newPipelineStub()
	s.bearer = ""
	s.responses = []*http.Response{respWithStatus(http.StatusOK, nil)}

	res := RunRequest(context.Background(), testRequest(t), s.deps)
	if res.Failure != RequestFailureNone {
		t.Fatalf("failure = %v", res.Failure)
	}
	if got := s.dispatched[0].Header.Get("Authorization"); got != "" {
		t.Fatalf("Authorization = %q, want empty", got)
	}
}
