package sessionkit

import (
	"sync/atomic"
	"time"
)

// MetricID identifies a single counter or histogram.
type MetricID uint16

const (
	// MetricLoginSuccess counts established sessions.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts rejected authentication attempts.
	MetricLoginFailure
	// MetricRegisterSuccess counts successful account creations.
	MetricRegisterSuccess
	// MetricRegisterFailure counts rejected account creations.
	MetricRegisterFailure
	// MetricPasswordPolicyRejected counts passwords rejected locally.
	MetricPasswordPolicyRejected
	// MetricLogout counts explicit logouts.
	MetricLogout
	// MetricRefreshSuccess counts transparent token refreshes.
	MetricRefreshSuccess
	// MetricRefreshFailure counts refreshes that forced a logout.
	MetricRefreshFailure
	// MetricSessionResumed counts sessions restored from persisted
	// state.
	MetricSessionResumed
	// MetricVerifyExpired counts token verifications that found an
	// expired token.
	MetricVerifyExpired
	// MetricVerifyRevoked counts token verifications that found a
	// revoked token.
	MetricVerifyRevoked
	// MetricVerifyMalformed counts token verifications that failed to
	// decode.
	MetricVerifyMalformed
	// MetricRateLimitHit counts requests denied by the local limiter.
	MetricRateLimitHit
	// MetricServerRateLimited counts 429 responses from the backend.
	MetricServerRateLimited
	// MetricCSRFRotated counts anti-forgery token rotations.
	MetricCSRFRotated
	// MetricCSRFRejected counts requests that failed the anti-forgery
	// check after rotation.
	MetricCSRFRejected
	// MetricPermissionDenied counts hard 403 responses.
	MetricPermissionDenied
	// MetricRequestSuccess counts requests that completed with a
	// non-failure status.
	MetricRequestSuccess
	// MetricRequestRetried counts requests that needed a second
	// attempt.
	MetricRequestRetried
	// MetricNetworkFailure counts requests that died in transport.
	MetricNetworkFailure
	// MetricRequestLatency is the end-to-end latency histogram for
	// outbound requests, retries included.
	MetricRequestLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

// paddedCounter keeps each counter on its own cache line so hot
// counters do not false-share.
type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is the engine's lock-free counter set. All methods are safe
// for concurrent use and are no-ops on a nil receiver.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters and
// histogram buckets.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns a collector honoring cfg's toggles.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are being collected.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the latency histogram is being
// collected.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc bumps a counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records a latency sample into the request histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricRequestLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value reads a single counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter and histogram bucket.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricRequestLatency].buckets[i])
		}
		s.Histograms[MetricRequestLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
