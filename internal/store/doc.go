// Package store tracks the set of currently-valid access tokens and the
// subject-to-refresh-token mapping.
//
// # Revocation semantics
//
// An access token absent from the active set is revoked regardless of its
// embedded expiry; explicit logout works independently of token lifetimes.
// Revoke discards both the access token and the subject's refresh token.
// MarkExpired removes only the access token, keeping the refresh token so a
// refresh can still proceed.
//
// # What this package must NOT do
//
//   - Decode or validate token claims (package token owns that).
//   - Log token values. The Redis backend keys entries by SHA-256
//     fingerprint so raw tokens never appear in the keyspace.
package store
