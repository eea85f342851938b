// Package sessionkit is a client-side session-security core: it owns the
// lifecycle of an authenticated session against an identity provider and
// guards every outbound request with bearer stamping, anti-forgery tokens,
// local rate limiting, and a bounded retry on recoverable rejections.
//
// The package is designed for concurrent callers: Engine methods are safe
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// sessionkit is the public surface. It exposes [Engine], [Builder],
// [Config], and value types (LoginResult, Claims, MetricsSnapshot, etc.).
// All internal coordination — request orchestration, token bookkeeping,
// rate limiting, CSRF rotation, audit recording — lives under internal/
// and is never exported. The password and token sub-packages are reusable
// on their own.
//
// # What this package must NOT do
//
//   - Expose refresh tokens anywhere in its public API; they enter through
//     [IdentityProvider] grants and never leave the token store.
//   - Log or persist plaintext passwords, in audit events or otherwise.
//   - Block an engine operation on a slow audit sink.
//
// # Failure posture
//
// Credential-class failures are indistinguishable from the outside:
// unknown identifier and wrong password both surface as
// ErrAuthenticationFailed. A failed transparent refresh logs the session
// out rather than leaving a half-authenticated engine behind. A broken
// rate limiter backend fails open and is recorded in the audit trail.
package sessionkit
