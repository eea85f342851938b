// Package httpidp is the HTTP implementation of
// [sessionkit.IdentityProvider] for JSON auth backends.
//
// Error mapping follows the provider contract: transport failures and
// 5xx responses map to sessionkit.ErrProviderUnavailable, credential
// rejections (401, 403) map to sessionkit.ErrAuthenticationFailed, and
// other 4xx responses surface as plain errors.
//
// # What this package must NOT do
//
//   - Retry requests; the engine owns retry policy.
//   - Cache tokens or configuration.
package httpidp
