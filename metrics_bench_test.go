package trustcore

import (
	"sync/atomic"
	"testing"
	"time"
)

func BenchmarkMetricsInc(b *testing.B) {
	for _, enabled := range []bool{true, false} {
		m := NewMetrics(MetricsConfig{Enabled: enabled})
		name := "disabled"
		if enabled {
			name = "enabled"
		}

		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				m.Inc(MetricAuthorizeAllowed)
			}
		})
		b.Run(name+"/parallel", func(b *testing.B) {
			b.ReportAllocs()
			b.RunParallel(func(pb *testing.PB) {
				for pb.Next() {
					m.Inc(MetricAuthorizeAllowed)
				}
			})
		})
	}
}

func BenchmarkMetricsObserveAuthorizeLatency(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	d := 3 * time.Millisecond
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m.Observe(MetricAuthorizeLatency, d)
		}
	})
}

// packedCounters shares cache lines between counters and is the baseline
// the padded layout of Metrics is measured against.
type packedCounters struct {
	counters [metricIDCount]uint64
}

func (m *packedCounters) Inc(id MetricID) {
	atomic.AddUint64(&m.counters[id], 1)
}

// requestPathMetrics are the counters touched on every authenticated request
// and login.
var requestPathMetrics = [...]MetricID{
	MetricAuthorizeAllowed,
	MetricAuthorizeUnauthorized,
	MetricAuthorizeForbidden,
	MetricLoginSuccess,
	MetricLoginFailure,
	MetricRefreshSuccess,
	MetricTFASuccess,
	MetricLogout,
}

func BenchmarkMetricsIncMixedParallel(b *testing.B) {
	impls := []struct {
		name string
		inc  func(MetricID)
	}{
		{"padded", NewMetrics(MetricsConfig{Enabled: true}).Inc},
		{"packed", (&packedCounters{}).Inc},
	}

	for _, impl := range impls {
		b.Run(impl.name, func(b *testing.B) {
			b.ReportAllocs()
			b.RunParallel(func(pb *testing.PB) {
				idx := 0
				for pb.Next() {
					impl.inc(requestPathMetrics[idx])
					idx = (idx + 1) % len(requestPathMetrics)
				}
			})
		})
	}
}

func BenchmarkMetricsSnapshot(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	for _, id := range requestPathMetrics {
		m.Inc(id)
	}
	m.Observe(MetricAuthorizeLatency, time.Millisecond)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = m.Snapshot()
	}
}
