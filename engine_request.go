package sessionkit

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/sessionkit/sessionkit/internal/flows"
	"github.com/sessionkit/sessionkit/token"
)

const (
	// EventLimiterDegraded records a rate limiter backend error; the
	// request was allowed through.
	EventLimiterDegraded = "rate_limiter_degraded"
)

// Do sends req through the security pipeline: local rate limiting,
// bearer stamping with transparent refresh, CSRF stamping, and a
// bounded retry on recoverable rejections (at most one retry per
// call). Unauthenticated requests pass through without a bearer.
//
// Failures map to the package sentinels: ErrRateLimited (check
// *RateLimitError for the hint), ErrAuthenticationFailed,
// ErrPermissionDenied, ErrCSRFRejected, and ErrNetwork.
func (e *Engine) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if e.isClosed() {
		return nil, ErrEngineClosed
	}
	if ctx == nil {
		ctx = context.Background()
	}

	deps := flows.RequestDeps{
		AuthHeader:       e.config.Security.BearerHeader,
		CSRFSignalHeader: e.config.CSRF.SignalHeader,
		Endpoint:         endpointKey,
		NewRequestID: func() string {
			if id := requestIDFromContext(ctx); id != "" {
				return id
			}
			return uuid.NewString()
		},
		CheckRate: func(ctx context.Context, endpoint string) (bool, time.Duration, error) {
			decision, err := e.limiter.CheckAndIncrement(ctx, endpoint)
			if err != nil {
				return true, 0, err
			}
			return decision.Allowed, decision.RetryAfter, nil
		},
		BearerToken:   e.bearerToken,
		RefreshBearer: e.EnsureFresh,
		StampCSRF:     e.guard.Stamp,
		OnCSRFMismatch: func(ctx context.Context, alreadyRetried bool) (bool, error) {
			retry, err := e.guard.OnMismatch(ctx, alreadyRetried)
			if err == nil && retry {
				e.metrics.Inc(MetricCSRFRotated)
				e.emitAudit(ctx, EventCSRFRotated, e.CurrentSubject(), "", true, nil, nil)
			}
			return retry, err
		},
		Dispatch:       e.httpClient.Do,
		RetryAfterHint: retryAfterHint,
		Warn: func(msg string, kv ...any) {
			e.emitAudit(ctx, EventLimiterDegraded, "", "", false, nil, map[string]string{"message": msg})
		},
	}

	start := time.Now()
	result := flows.RunRequest(ctx, req, deps)
	e.metrics.Observe(MetricRequestLatency, time.Since(start))

	if result.Retried {
		e.metrics.Inc(MetricRequestRetried)
	}

	subject := e.CurrentSubject()
	detail := map[string]string{"request_id": result.RequestID}

	switch result.Failure {
	case flows.RequestFailureNone:
		e.metrics.Inc(MetricRequestSuccess)
		return result.Response, nil

	case flows.RequestFailureRateLimited:
		e.metrics.Inc(MetricRateLimitHit)
		e.emitAudit(ctx, EventRateLimitExceeded, subject, result.Endpoint, false, ErrRateLimited, detail)
		return nil, &RateLimitError{Endpoint: result.Endpoint, RetryAfter: result.RetryAfter, Local: true}

	case flows.RequestFailureServerRateLimited:
		e.metrics.Inc(MetricServerRateLimited)
		e.emitAudit(ctx, EventServerRateLimited, subject, result.Endpoint, false, ErrRateLimited, detail)
		return nil, &RateLimitError{Endpoint: result.Endpoint, RetryAfter: result.RetryAfter}

	case flows.RequestFailureAuthRequired:
		if result.Err != nil && errors.Is(result.Err, ErrProviderUnavailable) {
			return nil, ErrProviderUnavailable
		}
		return nil, ErrAuthenticationFailed

	case flows.RequestFailurePermissionDenied:
		e.metrics.Inc(MetricPermissionDenied)
		e.emitAudit(ctx, EventPermissionDenied, subject, result.Endpoint, false, ErrPermissionDenied, detail)
		return nil, ErrPermissionDenied

	case flows.RequestFailureCSRFRejected:
		e.metrics.Inc(MetricCSRFRejected)
		e.emitAudit(ctx, EventCSRFRejected, subject, result.Endpoint, false, ErrCSRFRejected, detail)
		return nil, ErrCSRFRejected

	case flows.RequestFailureNetwork:
		e.metrics.Inc(MetricNetworkFailure)
		return nil, errorsJoin(ErrNetwork, result.Err)

	default:
		return nil, result.Err
	}
}

// bearerToken returns the token to stamp on an outbound request. An
// unauthenticated engine returns the empty token rather than an error;
// an expired token is refreshed transparently before the first
// attempt.
func (e *Engine) bearerToken(ctx context.Context) (string, error) {
	sess := e.snapshotSession()
	if !sess.authenticated {
		return "", nil
	}

	if _, err := e.codec.Parse(sess.accessToken); err != nil {
		if errors.Is(err, token.ErrExpired) {
			_ = e.tokens.MarkExpired(ctx, sess.accessToken)
			return e.EnsureFresh(ctx)
		}
		return "", ErrTokenMalformed
	}
	return sess.accessToken, nil
}

// endpointKey buckets requests for rate limiting by method and path;
// query strings do not split the budget.
func endpointKey(req *http.Request) string {
	return req.Method + " " + req.URL.Path
}

// retryAfterHint reads the Retry-After header as delay seconds.
func retryAfterHint(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func errorsJoin(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return errors.Join(sentinel, cause)
}
