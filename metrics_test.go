package trustcore

import (
	"sync"
	"testing"
	"time"
)

func TestMetricsToggle(t *testing.T) {
	off := NewMetrics(MetricsConfig{Enabled: false, EnableLatencyHistograms: true})
	off.Inc(MetricLoginSuccess)
	off.Observe(MetricAuthorizeLatency, time.Millisecond)
	if off.Value(MetricLoginSuccess) != 0 || off.LatencyEnabled() {
		t.Fatal("disabled metrics must not count")
	}
	if snap := off.Snapshot(); len(snap.Counters) != 0 || len(snap.Histograms) != 0 {
		t.Fatalf("disabled snapshot not empty: %+v", snap)
	}

	var nilMetrics *Metrics
	nilMetrics.Inc(MetricLogout)
	nilMetrics.Observe(MetricLoginLatency, time.Second)
	if nilMetrics.Value(MetricLogout) != 0 {
		t.Fatal("nil metrics must read zero")
	}

	on := NewMetrics(MetricsConfig{Enabled: true})
	for i := 0; i < 3; i++ {
		on.Inc(MetricLoginSuccess)
	}
	on.Inc(metricIDCount)
	if got := on.Value(MetricLoginSuccess); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
	if snap := on.Snapshot(); len(snap.Histograms) != 0 {
		t.Fatal("histograms must stay off without EnableLatencyHistograms")
	}
}

func TestMetricsConcurrentIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const workers, perWorker = 32, 4000
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				m.Inc(MetricAuthorizeAllowed)
			}
		}()
	}
	wg.Wait()

	if got := m.Value(MetricAuthorizeAllowed); got != workers*perWorker {
		t.Fatalf("expected %d, got %d", workers*perWorker, got)
	}
}

func TestLatencyBuckets(t *testing.T) {
	tests := []struct {
		d      time.Duration
		bucket int
	}{
		{0, 0},
		{5 * time.Millisecond, 0},
		{5*time.Millisecond + time.Microsecond, 1},
		{25 * time.Millisecond, 2},
		{100 * time.Millisecond, 4},
		{500 * time.Millisecond, 6},
		{501 * time.Millisecond, 7},
		{time.Minute, 7},
	}
	for _, tc := range tests {
		if got := latencyBucket(tc.d); got != tc.bucket {
			t.Errorf("latencyBucket(%v) = %d, want %d", tc.d, got, tc.bucket)
		}
	}
}

func TestHistogramsAreSeparate(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	m.Observe(MetricAuthorizeLatency, 2*time.Millisecond)
	m.Observe(MetricLoginLatency, 300*time.Millisecond)
	m.Observe(MetricLoginLatency, 300*time.Millisecond)
	m.Observe(MetricLogout, time.Millisecond)

	snap := m.Snapshot()
	if len(snap.Histograms) != 2 {
		t.Fatalf("expected 2 histograms, got %d", len(snap.Histograms))
	}
	if got := snap.Histograms[MetricAuthorizeLatency]; len(got) != latencyBucketCount || got[0] != 1 {
		t.Fatalf("authorize histogram %v", got)
	}
	if got := snap.Histograms[MetricLoginLatency]; got[6] != 2 || got[0] != 0 {
		t.Fatalf("login histogram %v", got)
	}
	if _, ok := snap.Counters[MetricLoginLatency]; ok {
		t.Fatal("histogram IDs must not appear as counters")
	}
	if _, ok := snap.Histograms[MetricLogout]; ok {
		t.Fatal("counter IDs must not get a histogram")
	}
}

func TestAuthorizeWithMetricsAvoidsDirectoryCalls(t *testing.T) {
	h := newTestEngine(t, nil)
	h.seedUser(t, "alice", "Secr3t!", false)

	res, err := h.engine.Login(h.ctx(), Identifier{Username: "alice"}, "Secr3t!")
	if err != nil || res.Status != StatusLoginSuccess {
		t.Fatalf("login failed: %+v, %v", res, err)
	}

	h.dir.resetCalls()
	if _, err := h.engine.Authorize(h.ctx(), res.Token, AuthenticationRequired()); err != nil {
		t.Fatalf("authorize failed: %v", err)
	}
	if calls := h.dir.totalCalls(); calls != 0 {
		t.Fatalf("expected authorize to avoid directory calls, got %d", calls)
	}

	snap := h.engine.MetricsSnapshot()
	if snap.Counters[MetricAuthorizeAllowed] != 1 {
		t.Fatalf("expected one allowed authorization, got %d", snap.Counters[MetricAuthorizeAllowed])
	}
	for _, id := range []MetricID{MetricAuthorizeLatency, MetricLoginLatency} {
		var observed uint64
		for _, v := range snap.Histograms[id] {
			observed += v
		}
		if observed != 1 {
			t.Fatalf("metric %d: expected one latency observation, got %d", id, observed)
		}
	}
}
