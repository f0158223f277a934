package authsync

import (
	"context"
	"errors"
	"sync"

	"github.com/eventdash/authsync/gate"
	"github.com/eventdash/authsync/identity"
	"github.com/eventdash/authsync/redirect"
	"github.com/eventdash/authsync/roles"
	"github.com/eventdash/authsync/session"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Navigator performs replace navigation on behalf of a View.
type Navigator = redirect.Navigator

// NavigatorFunc adapts a function into a Navigator.
type NavigatorFunc = redirect.NavigatorFunc

// View is one mount of the engine: a session store, the role binding of its
// user and a redirect coordinator, all fed from the same location.
//
// A View never surfaces runtime errors. Role failures show up as an empty
// role set, and redirect loops end at the circuit breaker.
type View struct {
	id      string
	engine  *Engine
	store   *session.Store
	binding *roles.Binding
	coord   *redirect.Coordinator
	nav     Navigator
	routes  redirect.RouteTable
	log     *zap.Logger

	mu       sync.Mutex
	location string
	gates    map[uint64]*gateEntry
	nextGate uint64
	closed   bool
	unsubs   []func()
	syncing  bool
	dirty    bool
	idle     chan struct{}
	// changed is closed and replaced whenever the session was handed to the
	// binding or the role snapshot moved.
	changed chan struct{}
}

type gateEntry struct {
	gate  *gate.Gate
	last  gate.Decision
	acted string
}

// Mount creates a View for one application mount. nav receives every replace
// navigation; it may call SetLocation synchronously but must not call Close
// or ForceClear from inside Replace.
//
// ctx bounds the initial session query only.
func (e *Engine) Mount(ctx context.Context, nav Navigator, location string) (*View, error) {
	if nav == nil {
		return nil, ErrNavigatorRequired
	}
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil, ErrEngineClosed
	}

	id := uuid.NewString()
	v := &View{
		id:       id,
		engine:   e,
		nav:      nav,
		routes:   e.config.Routes(),
		log:      e.log.With(zap.String("mount_id", id)),
		location: location,
		gates:    make(map[uint64]*gateEntry),
		changed:  make(chan struct{}),
	}

	store, err := session.New(e.provider, e.config.sessionConfig(), session.Options{
		Scheduler: e.sched,
		Logger:    v.log.Named("session"),
		OnSignal:  v.onSessionSignal,
	})
	if err != nil {
		return nil, err
	}
	v.store = store
	v.binding = roles.NewBinding(e.resolver, v.log.Named("roles"))

	coord, err := redirect.NewCoordinator(e.decisions, redirect.NavigatorFunc(v.replace), e.config.redirectConfig(), redirect.Options{
		Scheduler: e.sched,
		Logger:    v.log.Named("redirect"),
		OnSignal:  v.onRedirectSignal,
	})
	if err != nil {
		v.binding.Close()
		store.Close()
		return nil, err
	}
	v.coord = coord

	if err := e.register(v); err != nil {
		v.teardown()
		return nil, err
	}

	v.unsubs = append(v.unsubs,
		store.Subscribe(v.onSession),
		v.binding.Subscribe(func(roles.Snapshot) {
			v.sync()
			v.broadcast()
		}),
	)
	if err := store.Start(ctx); err != nil {
		e.unregister(v)
		v.teardown()
		return nil, err
	}
	v.sync()

	v.log.Debug("view mounted", zap.String("location", location))
	return v, nil
}

// ID returns the mount id used to correlate logs and audit events.
func (v *View) ID() string {
	return v.id
}

// Session returns the current {session, user, initialized, loading} snapshot.
func (v *View) Session() session.State {
	return v.store.Snapshot()
}

// Roles returns the current {roles, isLoading} snapshot.
func (v *View) Roles() roles.Snapshot {
	return v.binding.Snapshot()
}

// Location returns the last location reported by the host or navigated to.
func (v *View) Location() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.location
}

// SetLocation reports a location change and re-evaluates every gate and a
// pending redirect.
func (v *View) SetLocation(location string) {
	v.mu.Lock()
	if v.closed || v.location == location {
		v.mu.Unlock()
		return
	}
	v.location = location
	v.mu.Unlock()

	v.sync()
}

// ForceClear nulls the local session without contacting the provider.
func (v *View) ForceClear() {
	v.store.ForceClear()
}

// RequestRedirect asks the coordinator to send the user to the landing route
// of their highest-priority role.
func (v *View) RequestRedirect() {
	v.coord.RequestRedirect()
}

// RedirectPending reports whether a redirect request is outstanding.
func (v *View) RedirectPending() bool {
	return v.coord.Pending()
}

// Tripped reports whether the redirect circuit breaker has halted navigation.
func (v *View) Tripped() bool {
	return v.coord.Tripped()
}

// RefetchRoles drops the cached roles of the current user and loads them
// again. The current roles stay visible meanwhile.
func (v *View) RefetchRoles() {
	if uid := v.binding.Snapshot().UserID; uid != "" {
		v.engine.resolver.Invalidate(uid)
	}
	v.binding.Refetch()
}

// SignOut asks the provider to end the session. The local state follows the
// resulting SIGNED_OUT event.
func (v *View) SignOut(ctx context.Context) error {
	return v.engine.provider.SignOut(ctx)
}

// Gate registers an access gate for a view restricted to allowed roles. The
// gate follows this View until release is called. When the engine is
// configured with NavigateOnRedirect, redirect decisions are navigated by
// the View; onChange still observes every decision.
func (v *View) Gate(onChange func(gate.Decision), allowed ...string) (g *gate.Gate, release func()) {
	g = gate.New(v.routes, allowed, onChange)

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		g.Close()
		return g, func() {}
	}
	v.nextGate++
	id := v.nextGate
	v.gates[id] = &gateEntry{gate: g, last: g.Decision()}
	v.mu.Unlock()

	v.sync()

	var once sync.Once
	return g, func() {
		once.Do(func() {
			v.mu.Lock()
			delete(v.gates, id)
			v.mu.Unlock()
			g.Close()
		})
	}
}

// WaitReady blocks until the initial session query resolved, roles for the
// current user are loaded and the resulting state has reached every gate.
func (v *View) WaitReady(ctx context.Context) error {
	if err := v.store.WaitInitialized(ctx); err != nil {
		if errors.Is(err, session.ErrClosed) {
			return ErrEngineClosed
		}
		return err
	}
	for {
		v.mu.Lock()
		if v.closed {
			v.mu.Unlock()
			return ErrEngineClosed
		}
		changed := v.changed
		v.mu.Unlock()

		if err := v.binding.Wait(ctx); err != nil {
			return err
		}
		st := v.store.Snapshot()
		snap := v.binding.Snapshot()
		if snap.UserID == st.UserID() && !snap.IsLoading {
			break
		}
		// The store is initialized but has not handed the user to the
		// binding yet.
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	// Either runs a pass here or folds into the pass already running.
	v.sync()

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrEngineClosed
	}
	if !v.syncing {
		v.mu.Unlock()
		return nil
	}
	idle := v.idle
	v.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close tears the View down. Timers are cancelled, in-flight role fetches
// are discarded and the redirect single-flight flag is released if this
// View held it. Later calls are no-ops.
func (v *View) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	unsubs := v.unsubs
	v.unsubs = nil
	gates := make([]*gate.Gate, 0, len(v.gates))
	for _, ge := range v.gates {
		gates = append(gates, ge.gate)
	}
	v.gates = make(map[uint64]*gateEntry)
	v.mu.Unlock()
	v.broadcast()

	for _, unsub := range unsubs {
		unsub()
	}
	for _, g := range gates {
		g.Close()
	}
	v.teardown()
	v.engine.unregister(v)
	v.log.Debug("view unmounted")
}

func (v *View) teardown() {
	v.coord.Close()
	v.binding.Close()
	v.store.Close()
}

func (v *View) onSession(st session.State) {
	v.binding.Track(st.UserID())
	v.sync()
	v.broadcast()
}

// broadcast wakes every WaitReady caller blocked on the current channel.
func (v *View) broadcast() {
	v.mu.Lock()
	close(v.changed)
	v.changed = make(chan struct{})
	v.mu.Unlock()
}

// sync pushes the latest session, role and location snapshots into the
// coordinator and every gate. Calls made while a sync is running, including
// re-entrant ones from a navigator, are folded into that run.
func (v *View) sync() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.dirty = true
	if v.syncing {
		v.mu.Unlock()
		return
	}
	v.syncing = true
	v.idle = make(chan struct{})
	for v.dirty && !v.closed {
		v.dirty = false
		location := v.location
		entries := make([]*gateEntry, 0, len(v.gates))
		for _, ge := range v.gates {
			entries = append(entries, ge)
		}
		v.mu.Unlock()

		v.apply(location, entries)

		v.mu.Lock()
	}
	v.syncing = false
	close(v.idle)
	v.mu.Unlock()
}

func (v *View) apply(location string, entries []*gateEntry) {
	st := v.store.Snapshot()
	snap := v.binding.Snapshot()

	v.coord.Update(redirect.Inputs{
		UserID:       st.UserID(),
		Roles:        snap.Roles,
		RolesLoading: snap.IsLoading || snap.UserID != st.UserID(),
		Location:     location,
	})

	navigate := v.engine.config.Gate.NavigateOnRedirect
	for _, ge := range entries {
		d := ge.gate.Sync(st, snap, location)
		if d == ge.last {
			continue
		}
		ge.last = d
		v.countDecision(d)
		if d.Kind != gate.Redirect {
			ge.acted = ""
			continue
		}
		if !navigate || redirect.SamePath(d.To, location) || ge.acted == d.To {
			continue
		}
		ge.acted = d.To
		v.log.Info("gate redirect",
			zap.String("from", location),
			zap.String("to", d.To),
		)
		v.engine.emitAudit(AuditEvent{
			EventType: AuditGateRedirect,
			MountID:   v.id,
			UserID:    st.UserID(),
			Location:  location,
			Target:    d.To,
			Success:   true,
		})
		v.replace(d.To)
	}
}

func (v *View) countDecision(d gate.Decision) {
	switch {
	case d.Kind == gate.Render:
		v.engine.metricInc(MetricGateRender)
	case d.Kind == gate.Loading:
		v.engine.metricInc(MetricGateLoading)
	case d.Reason == gate.ReasonUnauthenticated:
		v.engine.metricInc(MetricGateRedirectLogin)
	case d.Reason == gate.ReasonForbidden:
		v.engine.metricInc(MetricGateRedirectRoot)
	}
}

// replace forwards a navigation to the host and records the new location.
func (v *View) replace(path string) {
	v.mu.Lock()
	closed := v.closed
	v.mu.Unlock()
	if closed {
		return
	}
	v.nav.Replace(path)
	v.SetLocation(path)
}

var sessionSignalMetrics = [...]MetricID{
	session.SignalEventReceived:   MetricEventReceived,
	session.SignalEventDuplicate:  MetricEventDuplicate,
	session.SignalEventSuperseded: MetricEventSuperseded,
	session.SignalEventApplied:    MetricEventApplied,
	session.SignalSignedOut:       MetricSignedOutApplied,
	session.SignalInitialApplied:  MetricInitialApplied,
	session.SignalInitialIgnored:  MetricInitialIgnored,
	session.SignalInitialFailed:   MetricInitialFailed,
	session.SignalForceClear:      MetricForceClear,
}

func (v *View) onSessionSignal(sig session.Signal, kind identity.EventKind) {
	if int(sig) < len(sessionSignalMetrics) {
		v.engine.metricInc(sessionSignalMetrics[sig])
	}
	switch sig {
	case session.SignalSignedOut:
		v.engine.emitAudit(AuditEvent{
			EventType: AuditSignedOut,
			MountID:   v.id,
			Location:  v.Location(),
			Success:   true,
			Metadata:  map[string]string{"event": string(kind)},
		})
	case session.SignalForceClear:
		v.engine.emitAudit(AuditEvent{
			EventType: AuditForceClear,
			MountID:   v.id,
			Location:  v.Location(),
			Success:   true,
		})
	}
}

var redirectSignalMetrics = [...]MetricID{
	redirect.SignalRequested:        MetricRedirectRequested,
	redirect.SignalNavigated:        MetricRedirectNavigated,
	redirect.SignalAlreadyPlaced:    MetricRedirectAlreadyPlaced,
	redirect.SignalCooldownDeferred: MetricRedirectCooldownDeferred,
	redirect.SignalBreakerTripped:   MetricRedirectBreakerTripped,
	redirect.SignalEntryCancelled:   MetricRedirectEntryCancelled,
}

func (v *View) onRedirectSignal(sig redirect.Signal, target string) {
	if int(sig) < len(redirectSignalMetrics) {
		v.engine.metricInc(redirectSignalMetrics[sig])
	}
	switch sig {
	case redirect.SignalNavigated:
		v.engine.emitAudit(AuditEvent{
			EventType: AuditNavigated,
			MountID:   v.id,
			UserID:    v.store.Snapshot().UserID(),
			Target:    target,
			Success:   true,
		})
	case redirect.SignalBreakerTripped:
		v.engine.emitAudit(AuditEvent{
			EventType: AuditBreakerTripped,
			MountID:   v.id,
			UserID:    v.store.Snapshot().UserID(),
			Location:  v.Location(),
			Success:   false,
			Error:     "too many redirect attempts",
		})
	}
}
