// Package rate implements fixed-window request counting keyed by endpoint
// identity.
//
// # Window semantics
//
// A window starts at the first request for an endpoint and is reset lazily:
// a request arriving after windowStart+window replaces the counter with
// {count:1, start:now} before the limit comparison. The increment that
// trips the limit is kept, so a denied request still counts toward the
// window's accounting. Two backends share these semantics: an in-process
// map and Redis (INCR + conditional EXPIRE on first hit, key prefix "rl:").
//
// # What this package must NOT do
//
//   - Decide which endpoints are limited (the Engine keys every outbound call).
//   - Emit audit events or metrics (the Engine observes decisions).
//   - Be imported outside the sessionkit module.
package rate
