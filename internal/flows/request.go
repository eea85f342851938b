package flows

import (
	"context"
	"net/http"
	"time"
)

// RequestFailureKind classifies request pipeline failures for root-level
// mapping.
type RequestFailureKind int

const (
	RequestFailureNone RequestFailureKind = iota
	RequestFailureRateLimited
	RequestFailureAuthRequired
	RequestFailurePermissionDenied
	RequestFailureCSRFRejected
	RequestFailureServerRateLimited
	RequestFailureNetwork
	RequestFailureNotReplayable
)

// RequestResult carries either the response or failure metadata.
type RequestResult struct {
	Failure    RequestFailureKind
	Err        error
	Response   *http.Response
	Endpoint   string
	RequestID  string
	Retried    bool
	RetryAfter time.Duration
}

// RequestDeps captures request pipeline dependencies.
type RequestDeps struct {
	AuthHeader       string
	CSRFSignalHeader string

	Endpoint     func(*http.Request) string
	NewRequestID func() string

	CheckRate func(ctx context.Context, endpoint string) (allowed bool, retryAfter time.Duration, err error)

	// BearerToken returns the current access token, transparently refreshing
	// an expired one. Empty string means the call goes out unauthenticated.
	BearerToken func(ctx context.Context) (string, error)
	// RefreshBearer forces a refresh after the server rejected the token.
	RefreshBearer func(ctx context.Context) (string, error)

	StampCSRF      func(*http.Request)
	OnCSRFMismatch func(ctx context.Context, alreadyRetried bool) (bool, error)

	Dispatch       func(*http.Request) (*http.Response, error)
	RetryAfterHint func(*http.Response) time.Duration
	Warn           func(string, ...any)
}

// RunRequest executes the interceptor pipeline as a bounded-retry state
// machine: attempt, then on a recoverable rejection remediate (refresh or
// CSRF rotation) and retry at most once, then give up. Rate-limit denials
// and permission denials are never retried.
func RunRequest(ctx context.Context, req *http.Request, deps RequestDeps) RequestResult {
	result := RequestResult{
		Endpoint:  deps.Endpoint(req),
		RequestID: deps.NewRequestID(),
	}

	allowed, retryAfter, err := deps.CheckRate(ctx, result.Endpoint)
	if err != nil && deps.Warn != nil {
		// A broken limiter backend fails open; the denial path below only
		// triggers on an actual over-budget decision.
		deps.Warn("rate limiter backend error", "endpoint", result.Endpoint)
	}
	if err == nil && !allowed {
		result.Failure = RequestFailureRateLimited
		result.RetryAfter = retryAfter
		return result
	}

	bearer, err := deps.BearerToken(ctx)
	if err != nil {
		result.Failure = RequestFailureAuthRequired
		result.Err = err
		return result
	}

	for {
		attempt, err := replayableClone(ctx, req)
		if err != nil {
			result.Failure = RequestFailureNotReplayable
			result.Err = err
			return result
		}

		deps.StampCSRF(attempt)
		if bearer != "" {
			attempt.Header.Set(deps.AuthHeader, "Bearer "+bearer)
		}

		resp, err := deps.Dispatch(attempt)
		if err != nil {
			result.Failure = RequestFailureNetwork
			result.Err = err
			return result
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			discard(resp)
			if result.Retried {
				result.Failure = RequestFailureAuthRequired
				return result
			}
			fresh, err := deps.RefreshBearer(ctx)
			if err != nil {
				result.Failure = RequestFailureAuthRequired
				result.Err = err
				return result
			}
			bearer = fresh
			result.Retried = true

		case resp.StatusCode == http.StatusForbidden && resp.Header.Get(deps.CSRFSignalHeader) != "":
			discard(resp)
			retry, err := deps.OnCSRFMismatch(ctx, result.Retried)
			if err != nil || !retry {
				result.Failure = RequestFailureCSRFRejected
				result.Err = err
				return result
			}
			result.Retried = true

		case resp.StatusCode == http.StatusForbidden:
			discard(resp)
			result.Failure = RequestFailurePermissionDenied
			return result

		case resp.StatusCode == http.StatusTooManyRequests:
			result.RetryAfter = deps.RetryAfterHint(resp)
			discard(resp)
			result.Failure = RequestFailureServerRateLimited
			return result

		default:
			result.Response = resp
			return result
		}
	}
}

// replayableClone clones req for one attempt, rewinding the body via GetBody
// so a retry replays the same payload.
func replayableClone(ctx context.Context, req *http.Request) (*http.Request, error) {
	clone := req.Clone(ctx)
	if req.Body == nil || req.Body == http.NoBody {
		return clone, nil
	}
	if req.GetBody == nil {
		return nil, errNotReplayable
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	clone.Body = body
	return clone, nil
}

func discard(resp *http.Response) {
	if resp.Body != nil {
		_ = resp.Body.Close()
	}
}
