package trustcore

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter or latency histogram.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginRequire2FA
	MetricLoginFailure
	MetricLoginBlocked
	MetricLoginAlreadyLogged
	MetricAccountLocked
	MetricAccountUnblocked
	MetricTFASuccess
	MetricTFAFailure
	MetricTFAAttemptsExceeded
	MetricLogout
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricAuthorizeAllowed
	MetricAuthorizeUnauthorized
	MetricAuthorizeForbidden
	MetricDeviceMismatch
	MetricSessionRevoked
	MetricPasswordChangeSuccess
	MetricPasswordChangeFailure
	MetricTOTPEnrolled
	MetricTOTPDisabled
	// MetricAuthorizeLatency and MetricLoginLatency are histograms.
	MetricAuthorizeLatency
	MetricLoginLatency
	metricIDCount
)

// latencyBounds are the inclusive upper bounds of the first seven buckets;
// the eighth takes everything slower.
var latencyBounds = [...]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

const latencyBucketCount = len(latencyBounds) + 1

// latencyMetrics lists the histogram IDs; the index is the histogram slot.
var latencyMetrics = [...]MetricID{MetricAuthorizeLatency, MetricLoginLatency}

const cacheLineSize = 64

// counter occupies a full cache line so hot counters updated from different
// cores do not contend.
type counter struct {
	n atomic.Uint64
	_ [cacheLineSize - 8]byte
}

type latencyHistogram [latencyBucketCount]atomic.Uint64

// Metrics holds the engine counters. A nil *Metrics is a valid no-op.
type Metrics struct {
	enabled   bool
	latencies bool
	counters  [metricIDCount]counter
	hists     [len(latencyMetrics)]latencyHistogram
}

// MetricsSnapshot is a point-in-time copy. Histograms hold per-bucket, not
// cumulative, counts.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:   cfg.Enabled,
		latencies: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.latencies
}

func (m *Metrics) Inc(id MetricID) {
	if !m.Enabled() || id >= metricIDCount {
		return
	}
	m.counters[id].n.Add(1)
}

// Observe records d when id is a histogram metric; other IDs are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if !m.LatencyEnabled() {
		return
	}
	slot, ok := latencySlot(id)
	if !ok {
		return
	}
	m.hists[slot][latencyBucket(d)].Add(1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.counters[id].n.Load()
}

// Snapshot returns empty maps when metrics are disabled.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
	if !m.Enabled() {
		return s
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if _, isHist := latencySlot(id); !isHist {
			s.Counters[id] = m.counters[id].n.Load()
		}
	}
	if m.latencies {
		for slot, id := range latencyMetrics {
			buckets := make([]uint64, latencyBucketCount)
			for i := range buckets {
				buckets[i] = m.hists[slot][i].Load()
			}
			s.Histograms[id] = buckets
		}
	}
	return s
}

func latencySlot(id MetricID) (int, bool) {
	for slot, hid := range latencyMetrics {
		if hid == id {
			return slot, true
		}
	}
	return 0, false
}

func latencyBucket(d time.Duration) int {
	for i, bound := range latencyBounds {
		if d <= bound {
			return i
		}
	}
	return len(latencyBounds)
}
