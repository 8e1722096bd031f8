package trustcore

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/RedBox-TN/Backend-sub000/internal/audit"
	"github.com/RedBox-TN/Backend-sub000/password"
	"github.com/RedBox-TN/Backend-sub000/session"
	"github.com/RedBox-TN/Backend-sub000/totp"
)

// Engine runs the authentication flows and authorizes requests. Build it
// with [New]; it is safe for concurrent use.
type Engine struct {
	config     Config
	directory  Directory
	sessions   *session.Store
	hasher     *password.Argon2
	totp       *totp.Provider
	tfaLimiter *tfaLimiter
	audit      *audit.Dispatcher
	metrics    *Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// Close flushes pending audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
	_ = e.logger.Sync()
}

// AuditDropped is the number of audit events dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AuditFailed is the number of audit events whose sink panicked.
func (e *Engine) AuditFailed() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Failed()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return e.config
}

// Ping checks the session backend.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	if e == nil || e.sessions == nil {
		return 0, ErrEngineNotReady
	}
	return e.sessions.Ping(ctx)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}
