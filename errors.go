package sessionkit

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrAuthenticationFailed is returned for any credential or refresh
	// failure. The message is deliberately generic and never reveals
	// whether an identifier exists.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrNotAuthenticated is returned by operations that require an
	// active session when none exists.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrTokenExpired is returned when the session token's lifetime has
	// elapsed.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked is returned when a token has been administratively
	// invalidated. Revocation takes precedence over expiry.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrTokenMalformed is returned when a token cannot be decoded or
	// its signature does not verify.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrPermissionDenied is returned when the backend rejects an
	// authenticated request with 403 and no rotation signal.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrCSRFRejected is returned when a request still fails the
	// anti-forgery check after one token rotation.
	ErrCSRFRejected = errors.New("csrf token rejected")
	// ErrRateLimited is returned when a request is denied by the local
	// limiter or by the backend. Use errors.As with *RateLimitError to
	// read the retry hint.
	ErrRateLimited = errors.New("rate limited")
	// ErrPasswordPolicy is returned when a candidate password violates
	// the configured policy. Use errors.As with *PasswordPolicyError to
	// read the individual violations.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrProviderUnavailable is returned when the identity provider
	// cannot be reached or answers with a transport-level failure.
	ErrProviderUnavailable = errors.New("identity provider unavailable")
	// ErrNetwork is returned when an outbound request fails before any
	// HTTP status is received.
	ErrNetwork = errors.New("network failure")
	// ErrEngineClosed is returned by operations invoked after Close.
	ErrEngineClosed = errors.New("engine closed")
	// ErrAlreadyBuilt is returned when Build is called twice on the
	// same Builder.
	ErrAlreadyBuilt = errors.New("builder already consumed")
	// ErrProviderRequired is returned by Build when no identity
	// provider was supplied.
	ErrProviderRequired = errors.New("identity provider required")
)

// RateLimitError carries the retry hint attached to a rate-limit
// rejection. Local means the engine's own limiter denied the request
// before it left the process; otherwise the backend answered 429.
type RateLimitError struct {
	Endpoint   string
	RetryAfter time.Duration
	Local      bool
}

func (e *RateLimitError) Error() string {
	origin := "server"
	if e.Local {
		origin = "local"
	}
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (%s) on %s: retry after %s", origin, e.Endpoint, e.RetryAfter)
	}
	return fmt.Sprintf("rate limited (%s) on %s", origin, e.Endpoint)
}

// Is reports true for ErrRateLimited so callers can branch without
// unwrapping the struct.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// PasswordPolicyError lists every policy violation found in a candidate
// password. The candidate itself is never stored on the error.
type PasswordPolicyError struct {
	Violations []string
}

func (e *PasswordPolicyError) Error() string {
	if len(e.Violations) == 0 {
		return ErrPasswordPolicy.Error()
	}
	return fmt.Sprintf("password policy violation: %s", strings.Join(e.Violations, ", "))
}

// Is reports true for ErrPasswordPolicy.
func (e *PasswordPolicyError) Is(target error) bool {
	return target == ErrPasswordPolicy
}
