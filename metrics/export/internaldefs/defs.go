package internaldefs

import (
	sessionkit "github.com/sessionkit/sessionkit"
)

// CounterDef names one exported counter.
type CounterDef struct {
	ID   sessionkit.MetricID
	Name string
	Help string
}

// HistogramDef names one exported histogram.
type HistogramDef struct {
	ID   sessionkit.MetricID
	Name string
	Help string
}

// CounterDefs is the stable counter catalogue shared by every exporter.
var CounterDefs = []CounterDef{
	{ID: sessionkit.MetricLoginSuccess, Name: "sessionkit_login_success_total", Help: "Successful login attempts."},
	{ID: sessionkit.MetricLoginFailure, Name: "sessionkit_login_failure_total", Help: "Failed login attempts."},
	{ID: sessionkit.MetricRegisterSuccess, Name: "sessionkit_register_success_total", Help: "Successful account registrations."},
	{ID: sessionkit.MetricRegisterFailure, Name: "sessionkit_register_failure_total", Help: "Failed account registrations."},
	{ID: sessionkit.MetricPasswordPolicyRejected, Name: "sessionkit_password_policy_rejected_total", Help: "Passwords rejected by the local policy."},
	{ID: sessionkit.MetricLogout, Name: "sessionkit_logout_total", Help: "Explicit logout operations."},
	{ID: sessionkit.MetricRefreshSuccess, Name: "sessionkit_refresh_success_total", Help: "Successful token refreshes."},
	{ID: sessionkit.MetricRefreshFailure, Name: "sessionkit_refresh_failure_total", Help: "Refreshes that forced a logout."},
	{ID: sessionkit.MetricSessionResumed, Name: "sessionkit_session_resumed_total", Help: "Sessions restored from persisted state."},
	{ID: sessionkit.MetricVerifyExpired, Name: "sessionkit_verify_expired_total", Help: "Verifications that found an expired token."},
	{ID: sessionkit.MetricVerifyRevoked, Name: "sessionkit_verify_revoked_total", Help: "Verifications that found a revoked token."},
	{ID: sessionkit.MetricVerifyMalformed, Name: "sessionkit_verify_malformed_total", Help: "Verifications that failed to decode a token."},
	{ID: sessionkit.MetricRateLimitHit, Name: "sessionkit_rate_limit_hit_total", Help: "Requests denied by the local limiter."},
	{ID: sessionkit.MetricServerRateLimited, Name: "sessionkit_server_rate_limited_total", Help: "Requests rejected upstream with 429."},
	{ID: sessionkit.MetricCSRFRotated, Name: "sessionkit_csrf_rotated_total", Help: "Anti-forgery token rotations."},
	{ID: sessionkit.MetricCSRFRejected, Name: "sessionkit_csrf_rejected_total", Help: "Requests failed after anti-forgery rotation."},
	{ID: sessionkit.MetricPermissionDenied, Name: "sessionkit_permission_denied_total", Help: "Hard 403 responses."},
	{ID: sessionkit.MetricRequestSuccess, Name: "sessionkit_request_success_total", Help: "Pipeline requests completed without failure."},
	{ID: sessionkit.MetricRequestRetried, Name: "sessionkit_request_retried_total", Help: "Pipeline requests that needed a second attempt."},
	{ID: sessionkit.MetricNetworkFailure, Name: "sessionkit_network_failure_total", Help: "Requests that failed in transport."},
}

// HistogramDefs is the stable histogram catalogue shared by every
// exporter.
var HistogramDefs = []HistogramDef{
	{ID: sessionkit.MetricRequestLatency, Name: "sessionkit_request_latency_seconds", Help: "End-to-end outbound request latency."},
}

// HistogramBounds are the upper bounds of the latency buckets in
// seconds, exposition spelling.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix spells the same bounds as instrument name
// suffixes.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw snapshot slice to the fixed
// bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to cumulative counts.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
