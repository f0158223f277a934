package authsync

import internalmetrics "github.com/eventdash/authsync/internal/metrics"

// MetricID identifies a counter or histogram in the in-process metrics system.
type MetricID = internalmetrics.MetricID

const (
	MetricEventReceived            = internalmetrics.MetricEventReceived
	MetricEventApplied             = internalmetrics.MetricEventApplied
	MetricEventDuplicate           = internalmetrics.MetricEventDuplicate
	MetricEventSuperseded          = internalmetrics.MetricEventSuperseded
	MetricSignedOutApplied         = internalmetrics.MetricSignedOutApplied
	MetricInitialApplied           = internalmetrics.MetricInitialApplied
	MetricInitialIgnored           = internalmetrics.MetricInitialIgnored
	MetricInitialFailed            = internalmetrics.MetricInitialFailed
	MetricForceClear               = internalmetrics.MetricForceClear
	MetricRoleCacheHit             = internalmetrics.MetricRoleCacheHit
	MetricRoleFetchSuccess         = internalmetrics.MetricRoleFetchSuccess
	MetricRoleFetchFailure         = internalmetrics.MetricRoleFetchFailure
	MetricRoleTransientRetry       = internalmetrics.MetricRoleTransientRetry
	MetricRoleRefreshRetry         = internalmetrics.MetricRoleRefreshRetry
	MetricRoleFailClosed           = internalmetrics.MetricRoleFailClosed
	MetricRedirectRequested        = internalmetrics.MetricRedirectRequested
	MetricRedirectNavigated        = internalmetrics.MetricRedirectNavigated
	MetricRedirectAlreadyPlaced    = internalmetrics.MetricRedirectAlreadyPlaced
	MetricRedirectCooldownDeferred = internalmetrics.MetricRedirectCooldownDeferred
	MetricRedirectBreakerTripped   = internalmetrics.MetricRedirectBreakerTripped
	MetricRedirectEntryCancelled   = internalmetrics.MetricRedirectEntryCancelled
	MetricGateRender               = internalmetrics.MetricGateRender
	MetricGateLoading              = internalmetrics.MetricGateLoading
	MetricGateRedirectLogin        = internalmetrics.MetricGateRedirectLogin
	MetricGateRedirectRoot         = internalmetrics.MetricGateRedirectRoot
	// MetricRoleFetchLatency is the only histogram.
	MetricRoleFetchLatency = internalmetrics.MetricRoleFetchLatency
)

// Metrics holds atomic counters and the optional role fetch histogram.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a Metrics instance. When Enabled is false every
// operation is a no-op.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:       cfg.Enabled,
		EnableLatency: cfg.EnableLatencyHistograms,
	})
}
