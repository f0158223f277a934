package authsync

import (
	"context"
	"sync"
	"time"

	"github.com/eventdash/authsync/identity"
	internalaudit "github.com/eventdash/authsync/internal/audit"
	"github.com/eventdash/authsync/internal/schedule"
	"github.com/eventdash/authsync/redirect"
	"github.com/eventdash/authsync/roles"
	"go.uber.org/zap"
)

// Engine is the application-lifetime coordinator. It is created by
// Builder.Build and shared by every mounted View.
type Engine struct {
	config    Config
	provider  identity.Provider
	resolver  *roles.Resolver
	decisions *redirect.DecisionState
	sched     schedule.Scheduler
	log       *zap.Logger
	metrics   *Metrics
	audit     *internalaudit.Dispatcher

	mu     sync.Mutex
	closed bool
	views  map[string]*View
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// Resolver exposes the shared role resolver, e.g. to invalidate a user after
// an administrator changed their roles.
func (e *Engine) Resolver() *roles.Resolver {
	return e.resolver
}

// RedirectState exposes the process-wide redirect decision state.
func (e *Engine) RedirectState() *redirect.DecisionState {
	return e.decisions
}

// Close unmounts every view and flushes the audit dispatcher. Later calls are
// no-ops.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	views := make([]*View, 0, len(e.views))
	for _, v := range e.views {
		views = append(views, v)
	}
	e.mu.Unlock()

	for _, v := range views {
		v.Close()
	}
	e.audit.Close()
}

// AuditDropped returns the number of audit events dropped for backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the current metrics.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) emitAudit(ev AuditEvent) {
	if e == nil || e.audit == nil {
		return
	}
	e.audit.Emit(context.Background(), ev)
}

func (e *Engine) register(v *View) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	e.views[v.id] = v
	return nil
}

func (e *Engine) unregister(v *View) {
	e.mu.Lock()
	delete(e.views, v.id)
	e.mu.Unlock()
}

// Views returns the number of mounted views.
func (e *Engine) Views() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.views)
}

var roleSignalMetrics = [...]MetricID{
	roles.SignalCacheHit:       MetricRoleCacheHit,
	roles.SignalFetchSuccess:   MetricRoleFetchSuccess,
	roles.SignalFetchFailure:   MetricRoleFetchFailure,
	roles.SignalTransientRetry: MetricRoleTransientRetry,
	roles.SignalRefreshRetry:   MetricRoleRefreshRetry,
	roles.SignalFailClosed:     MetricRoleFailClosed,
}

func (e *Engine) onRoleSignal(sig roles.Signal, userID string) {
	if int(sig) < len(roleSignalMetrics) {
		e.metricInc(roleSignalMetrics[sig])
	}
	if sig == roles.SignalFailClosed {
		e.emitAudit(AuditEvent{
			EventType: AuditRoleFailClosed,
			UserID:    userID,
			Success:   false,
			Error:     "role resolution failed",
		})
	}
}

func (e *Engine) onRoleLatency(d time.Duration) {
	e.metrics.Observe(MetricRoleFetchLatency, d)
}
