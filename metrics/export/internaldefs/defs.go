package internaldefs

import (
	"github.com/eventdash/authsync"
)

// CounterDef names one authsync counter.
type CounterDef struct {
	ID   authsync.MetricID
	Name string
	Help string
}

// HistogramDef names one authsync histogram.
type HistogramDef struct {
	ID   authsync.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in MetricID order.
var CounterDefs = []CounterDef{
	{ID: authsync.MetricEventReceived, Name: "authsync_identity_events_received_total", Help: "Identity events received from the provider."},
	{ID: authsync.MetricEventApplied, Name: "authsync_identity_events_applied_total", Help: "Identity events applied after the debounce."},
	{ID: authsync.MetricEventDuplicate, Name: "authsync_identity_events_duplicate_total", Help: "Identity events dropped inside the event cooldown."},
	{ID: authsync.MetricEventSuperseded, Name: "authsync_identity_events_superseded_total", Help: "Pending identity events replaced by a later one."},
	{ID: authsync.MetricSignedOutApplied, Name: "authsync_signed_out_applied_total", Help: "Sign-out events applied."},
	{ID: authsync.MetricInitialApplied, Name: "authsync_initial_session_applied_total", Help: "Initial session queries that changed user presence."},
	{ID: authsync.MetricInitialIgnored, Name: "authsync_initial_session_ignored_total", Help: "Initial session queries discarded."},
	{ID: authsync.MetricInitialFailed, Name: "authsync_initial_session_failed_total", Help: "Initial session queries that failed."},
	{ID: authsync.MetricForceClear, Name: "authsync_force_clear_total", Help: "Local session force clears."},
	{ID: authsync.MetricRoleCacheHit, Name: "authsync_role_cache_hit_total", Help: "Role lookups served from cache."},
	{ID: authsync.MetricRoleFetchSuccess, Name: "authsync_role_fetch_success_total", Help: "Successful role store queries."},
	{ID: authsync.MetricRoleFetchFailure, Name: "authsync_role_fetch_failure_total", Help: "Failed role store queries."},
	{ID: authsync.MetricRoleTransientRetry, Name: "authsync_role_transient_retry_total", Help: "Role queries retried after a transient failure."},
	{ID: authsync.MetricRoleRefreshRetry, Name: "authsync_role_refresh_retry_total", Help: "Session refreshes triggered by a failed role query."},
	{ID: authsync.MetricRoleFailClosed, Name: "authsync_role_fail_closed_total", Help: "Role resolutions that fell back to the empty set."},
	{ID: authsync.MetricRedirectRequested, Name: "authsync_redirect_requested_total", Help: "Redirect requests."},
	{ID: authsync.MetricRedirectNavigated, Name: "authsync_redirect_navigated_total", Help: "Replace navigations performed by the coordinator."},
	{ID: authsync.MetricRedirectAlreadyPlaced, Name: "authsync_redirect_already_placed_total", Help: "Redirect requests resolved without navigating."},
	{ID: authsync.MetricRedirectCooldownDeferred, Name: "authsync_redirect_cooldown_deferred_total", Help: "Redirect evaluations deferred by the cooldown."},
	{ID: authsync.MetricRedirectBreakerTripped, Name: "authsync_redirect_breaker_tripped_total", Help: "Redirect circuit breaker trips."},
	{ID: authsync.MetricRedirectEntryCancelled, Name: "authsync_redirect_entry_cancelled_total", Help: "Redirect requests cancelled on the entry route."},
	{ID: authsync.MetricGateRender, Name: "authsync_gate_render_total", Help: "Gate decisions to render."},
	{ID: authsync.MetricGateLoading, Name: "authsync_gate_loading_total", Help: "Gate decisions to show the loading placeholder."},
	{ID: authsync.MetricGateRedirectLogin, Name: "authsync_gate_redirect_login_total", Help: "Gate redirects to the entry route."},
	{ID: authsync.MetricGateRedirectRoot, Name: "authsync_gate_redirect_root_total", Help: "Gate redirects to the application root."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: authsync.MetricRoleFetchLatency, Name: "authsync_role_fetch_latency_seconds", Help: "Role resolution latency, retries included."},
}

// AuditDroppedName is the counter for audit events dropped by backpressure.
const AuditDroppedName = "authsync_audit_dropped_total"

// HistogramBounds are the upper bounds of the eight latency buckets in seconds.
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

// HistogramBoundValues mirrors HistogramBounds without the +Inf bucket.
var HistogramBoundValues = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// NormalizeBuckets copies raw into a fixed eight-bucket array, padding with zeros.
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
