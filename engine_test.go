package authsync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/eventdash/authsync/gate"
	"github.com/eventdash/authsync/identity"
	"github.com/eventdash/authsync/identity/memory"
	"github.com/eventdash/authsync/internal/schedule"
	"github.com/eventdash/authsync/roles"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type hostNav struct {
	mu    sync.Mutex
	paths []string
}

func (n *hostNav) Replace(path string) {
	n.mu.Lock()
	n.paths = append(n.paths, path)
	n.mu.Unlock()
}

func (n *hostNav) Paths() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.paths...)
}

type roleTable struct {
	mu    sync.Mutex
	roles map[string][]string
	err   error
	calls int
	// hold, when set, blocks lookups until it is closed.
	hold chan struct{}
}

func (r *roleTable) Roles(ctx context.Context, userID string) ([]string, error) {
	r.mu.Lock()
	hold := r.hold
	r.mu.Unlock()
	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return r.roles[userID], nil
}

type engineTest struct {
	sched    *schedule.Manual
	provider *memory.Provider
	roles    *roleTable
	sink     *ChannelSink
	engine   *Engine
}

func newEngineTest(t *testing.T, mutate func(*Config)) *engineTest {
	t.Helper()
	et := &engineTest{
		sched:    schedule.NewManual(epoch),
		provider: memory.New(),
		roles:    &roleTable{roles: map[string][]string{}},
		sink:     NewChannelSink(64),
	}
	cfg := DefaultConfig()
	cfg.Audit.Enabled = true
	cfg.Roles.InitialBackoff = time.Millisecond
	cfg.Roles.MaxBackoff = 2 * time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}
	engine, err := New().
		WithConfig(cfg).
		WithProvider(et.provider).
		WithRoleSource(et.roles).
		WithAuditSink(et.sink).
		WithScheduler(et.sched).
		WithMetricsEnabled(true).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	et.engine = engine
	t.Cleanup(engine.Close)
	return et
}

func (et *engineTest) signIn(userID string, roleNames ...string) {
	et.roles.mu.Lock()
	et.roles.roles[userID] = roleNames
	et.roles.mu.Unlock()
	et.provider.SetSession(memory.NewSession(userID, userID+"@example.com", epoch, time.Hour))
}

func (et *engineTest) mount(t *testing.T, nav Navigator, location string) *View {
	t.Helper()
	v, err := et.engine.Mount(context.Background(), nav, location)
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	waitReady(t, v)
	return v
}

func waitReady(t *testing.T, v *View) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := v.WaitReady(ctx); err != nil {
		t.Fatalf("wait ready: %v", err)
	}
}

func (et *engineTest) awaitAudit(t *testing.T, eventType string) AuditEvent {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-et.sink.Events():
			if ev.EventType == eventType {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for audit event %s", eventType)
		}
	}
}

func TestRedirectToHighestRoleOnce(t *testing.T) {
	et := newEngineTest(t, nil)
	et.signIn("u1", "host")
	nav := &hostNav{}
	v := et.mount(t, nav, "/")

	if !v.Roles().Roles.Has(roles.Host) {
		t.Fatalf("expected host role, got %v", v.Roles().Roles)
	}

	v.RequestRedirect()
	et.sched.Advance(299 * time.Millisecond)
	if len(nav.Paths()) != 0 {
		t.Fatalf("navigated before settle delay: %v", nav.Paths())
	}
	et.sched.Advance(time.Millisecond)
	if paths := nav.Paths(); len(paths) != 1 || paths[0] != "/host" {
		t.Fatalf("expected one navigation to /host, got %v", paths)
	}
	if v.Location() != "/host" {
		t.Fatalf("expected view location /host, got %q", v.Location())
	}

	v.RequestRedirect()
	et.sched.Advance(5 * time.Second)
	if len(nav.Paths()) != 1 {
		t.Fatalf("expected no further navigation, got %v", nav.Paths())
	}

	snap := et.engine.MetricsSnapshot()
	if snap.Counters[MetricRedirectNavigated] != 1 || snap.Counters[MetricRedirectAlreadyPlaced] != 1 {
		t.Fatalf("unexpected redirect counters %v", snap.Counters)
	}
	if snap.Counters[MetricInitialApplied] != 1 {
		t.Fatalf("expected initial session applied, got %v", snap.Counters)
	}

	ev := et.awaitAudit(t, AuditNavigated)
	if ev.Target != "/host" || ev.MountID != v.ID() || ev.UserID != "u1" {
		t.Fatalf("unexpected navigation audit %+v", ev)
	}
}

func TestAlreadyPlacedDoesNotNavigate(t *testing.T) {
	et := newEngineTest(t, nil)
	et.signIn("u1", "merchant", "customer")
	nav := &hostNav{}
	v := et.mount(t, nav, "/merchant")

	v.RequestRedirect()
	et.sched.Advance(time.Second)
	if len(nav.Paths()) != 0 {
		t.Fatalf("expected no navigation, got %v", nav.Paths())
	}
	if v.RedirectPending() {
		t.Fatal("expected pending flag cleared")
	}
}

func TestRoleFailureFailsClosedToRoot(t *testing.T) {
	et := newEngineTest(t, nil)
	et.signIn("u1", "host")
	et.roles.err = errors.New("permission denied for table user_roles")
	nav := &hostNav{}
	v := et.mount(t, nav, "/dashboard")

	if !v.Roles().Roles.Empty() {
		t.Fatalf("expected empty role set, got %v", v.Roles().Roles)
	}
	if et.provider.RefreshCalls() != 1 {
		t.Fatalf("expected one session refresh, got %d", et.provider.RefreshCalls())
	}

	v.RequestRedirect()
	et.sched.Advance(300 * time.Millisecond)
	if paths := nav.Paths(); len(paths) != 1 || paths[0] != "/" {
		t.Fatalf("expected navigation to /, got %v", paths)
	}

	snap := et.engine.MetricsSnapshot()
	if snap.Counters[MetricRoleFailClosed] != 1 || snap.Counters[MetricRoleRefreshRetry] != 1 {
		t.Fatalf("unexpected role counters %v", snap.Counters)
	}
	if ev := et.awaitAudit(t, AuditRoleFailClosed); ev.UserID != "u1" {
		t.Fatalf("unexpected fail-closed audit %+v", ev)
	}
}

func TestSignOutWinsOverSlowInitialQuery(t *testing.T) {
	et := newEngineTest(t, nil)
	et.signIn("u1", "host")
	release := et.provider.HoldCurrentSession()

	v, err := et.engine.Mount(context.Background(), &hostNav{}, "/host")
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	if !v.Session().Loading {
		t.Fatal("expected loading before the initial query resolves")
	}

	et.provider.Emit(identity.EventSignedOut, nil)
	et.sched.Advance(50 * time.Millisecond)
	release()
	waitReady(t, v)

	et.sched.Advance(200 * time.Millisecond)
	st := v.Session()
	if st.HasUser() || st.Session != nil {
		t.Fatalf("expected signed-out state, got user %v", st.User)
	}
	if !st.Initialized {
		t.Fatal("expected initialized")
	}
	snap := et.engine.MetricsSnapshot()
	if snap.Counters[MetricInitialIgnored] != 1 || snap.Counters[MetricSignedOutApplied] != 1 {
		t.Fatalf("unexpected session counters %v", snap.Counters)
	}
}

func TestGateRedirectsToLoginWithReturnLocation(t *testing.T) {
	et := newEngineTest(t, nil)
	nav := &hostNav{}
	v := et.mount(t, nav, "/host/events?tab=upcoming")

	var mu sync.Mutex
	var seen []gate.Decision
	g, release := v.Gate(func(d gate.Decision) {
		mu.Lock()
		seen = append(seen, d)
		mu.Unlock()
	}, roles.Host)
	defer release()
	waitReady(t, v)

	paths := nav.Paths()
	if len(paths) != 1 || paths[0] != "/login?redirect=%2Fhost%2Fevents%3Ftab%3Dupcoming" {
		t.Fatalf("expected login redirect, got %v", paths)
	}
	back, ok := gate.ReturnLocation(et.engine.Config().Routes(), paths[0])
	if !ok || back != "/host/events?tab=upcoming" {
		t.Fatalf("unexpected return location %q %v", back, ok)
	}
	if d := g.Decision(); d.Kind != gate.Redirect || d.Reason != gate.ReasonUnauthenticated {
		t.Fatalf("unexpected decision %+v", d)
	}
	mu.Lock()
	n := len(seen)
	mu.Unlock()
	if n == 0 {
		t.Fatal("expected onChange to observe the redirect decision")
	}

	et.awaitAudit(t, AuditGateRedirect)
	if et.engine.MetricsSnapshot().Counters[MetricGateRedirectLogin] == 0 {
		t.Fatal("expected gate login redirect counted")
	}
}

func TestGateForbiddenGoesToRoot(t *testing.T) {
	et := newEngineTest(t, nil)
	et.signIn("u1", "customer")
	nav := &hostNav{}
	v := et.mount(t, nav, "/admin")

	g, release := v.Gate(nil, roles.Admin)
	defer release()
	waitReady(t, v)

	if paths := nav.Paths(); len(paths) != 1 || paths[0] != "/" {
		t.Fatalf("expected redirect to root, got %v", paths)
	}
	if d := g.Decision(); d.Reason != gate.ReasonForbidden {
		t.Fatalf("unexpected decision %+v", d)
	}
}

func TestGateRendersAllowedRole(t *testing.T) {
	et := newEngineTest(t, func(c *Config) { c.Gate.NavigateOnRedirect = false })
	et.signIn("u1", "merchant")
	nav := &hostNav{}
	v := et.mount(t, nav, "/merchant")

	g, release := v.Gate(nil, roles.Merchant, roles.Admin)
	defer release()
	waitReady(t, v)

	if d := g.Decision(); d.Kind != gate.Render {
		t.Fatalf("expected render, got %+v", d)
	}

	et.provider.Emit(identity.EventSignedOut, nil)
	et.sched.Advance(200 * time.Millisecond)
	waitReady(t, v)
	if d := g.Decision(); d.Kind != gate.Redirect || d.Reason != gate.ReasonUnauthenticated {
		t.Fatalf("expected login redirect after sign-out, got %+v", d)
	}
	if len(nav.Paths()) != 0 {
		t.Fatalf("expected host to own navigation, got %v", nav.Paths())
	}
}

func TestForceClearIsLocalOnly(t *testing.T) {
	et := newEngineTest(t, nil)
	et.signIn("u1", "host")
	v := et.mount(t, &hostNav{}, "/host")

	before := len(et.provider.Calls())
	v.ForceClear()
	if v.Session().HasUser() {
		t.Fatal("expected local session cleared")
	}
	if len(et.provider.Calls()) != before {
		t.Fatalf("force clear contacted the provider: %v", et.provider.Calls())
	}
	et.awaitAudit(t, AuditForceClear)
}

func TestSignOutFollowsEventPath(t *testing.T) {
	et := newEngineTest(t, nil)
	et.signIn("u1", "host")
	v := et.mount(t, &hostNav{}, "/host")

	if err := v.SignOut(context.Background()); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if !v.Session().HasUser() {
		t.Fatal("expected user kept until the debounce fires")
	}
	et.sched.Advance(200 * time.Millisecond)
	if v.Session().HasUser() {
		t.Fatal("expected signed out after debounce")
	}
	waitReady(t, v)
	if v.Roles().UserID != "" {
		t.Fatalf("expected role binding cleared, got %q", v.Roles().UserID)
	}
	et.awaitAudit(t, AuditSignedOut)
}

func TestRemountResetsAttemptsKeepsCooldown(t *testing.T) {
	et := newEngineTest(t, nil)
	et.signIn("u1", "host")
	nav := &hostNav{}
	v := et.mount(t, nav, "/")

	v.RequestRedirect()
	et.sched.Advance(300 * time.Millisecond)
	state := et.engine.RedirectState()
	if state.Attempts() != 1 {
		t.Fatalf("expected one attempt, got %d", state.Attempts())
	}
	last := state.LastRedirect()
	v.Close()
	if et.engine.Views() != 0 {
		t.Fatalf("expected view unregistered, got %d", et.engine.Views())
	}

	v2 := et.mount(t, nav, "/customer")
	if state.Attempts() != 0 {
		t.Fatalf("expected attempts reset on remount, got %d", state.Attempts())
	}
	if !state.LastRedirect().Equal(last) {
		t.Fatal("expected cooldown timestamp to survive remount")
	}

	v2.RequestRedirect()
	et.sched.Advance(time.Second)
	if len(nav.Paths()) != 1 {
		t.Fatalf("expected cooldown to defer navigation, got %v", nav.Paths())
	}
	et.sched.Advance(3 * time.Second)
	if paths := nav.Paths(); len(paths) != 2 || paths[1] != "/host" {
		t.Fatalf("expected second navigation after cooldown, got %v", paths)
	}
}

func TestRefetchRolesPicksUpChanges(t *testing.T) {
	et := newEngineTest(t, nil)
	et.signIn("u1", "customer")
	v := et.mount(t, &hostNav{}, "/customer")

	et.roles.mu.Lock()
	et.roles.roles["u1"] = []string{"customer", "host"}
	et.roles.mu.Unlock()

	v.RefetchRoles()
	waitReady(t, v)
	if !v.Roles().Roles.Has(roles.Host) {
		t.Fatalf("expected refetched roles, got %v", v.Roles().Roles)
	}
}

func TestMountValidation(t *testing.T) {
	et := newEngineTest(t, nil)
	if _, err := et.engine.Mount(context.Background(), nil, "/"); !errors.Is(err, ErrNavigatorRequired) {
		t.Fatalf("expected ErrNavigatorRequired, got %v", err)
	}

	et.engine.Close()
	if _, err := et.engine.Mount(context.Background(), &hostNav{}, "/"); !errors.Is(err, ErrEngineClosed) {
		t.Fatalf("expected ErrEngineClosed, got %v", err)
	}
}

func TestEngineCloseUnmountsViews(t *testing.T) {
	et := newEngineTest(t, nil)
	v := et.mount(t, &hostNav{}, "/")
	if et.provider.ListenerCount() != 1 {
		t.Fatalf("expected one listener, got %d", et.provider.ListenerCount())
	}

	et.engine.Close()
	if et.provider.ListenerCount() != 0 {
		t.Fatalf("expected listener removed, got %d", et.provider.ListenerCount())
	}
	v.RequestRedirect()
	if v.RedirectPending() {
		t.Fatal("expected closed view to ignore redirect requests")
	}
}

func TestBuildErrors(t *testing.T) {
	source := roles.SourceFunc(func(context.Context, string) ([]string, error) { return nil, nil })

	if _, err := New().WithRoleSource(source).Build(); !errors.Is(err, ErrProviderRequired) {
		t.Fatalf("expected ErrProviderRequired, got %v", err)
	}
	if _, err := New().WithProvider(memory.New()).Build(); !errors.Is(err, ErrRoleSourceRequired) {
		t.Fatalf("expected ErrRoleSourceRequired, got %v", err)
	}

	cfg := DefaultConfig()
	cfg.Redirect.Cooldown = 0
	if _, err := New().WithConfig(cfg).WithProvider(memory.New()).WithRoleSource(source).Build(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}

	b := New().WithProvider(memory.New()).WithRoleSource(source)
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer engine.Close()
	if _, err := b.Build(); !errors.Is(err, ErrBuilderUsed) {
		t.Fatalf("expected ErrBuilderUsed, got %v", err)
	}
}

func TestWaitReadyWakesWhenRolesArrive(t *testing.T) {
	et := newEngineTest(t, nil)
	et.signIn("u1", "host")
	hold := make(chan struct{})
	et.roles.hold = hold

	v, err := et.engine.Mount(context.Background(), &hostNav{}, "/host")
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		done <- v.WaitReady(ctx)
	}()

	select {
	case err := <-done:
		t.Fatalf("ready before roles arrived: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	close(hold)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("wait ready: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("wait ready did not wake after roles arrived")
	}
	if !v.Roles().Roles.Has(roles.Host) || v.Roles().IsLoading {
		t.Fatalf("unexpected roles %+v", v.Roles())
	}
}

func TestWaitReadyReturnsWhenViewCloses(t *testing.T) {
	et := newEngineTest(t, nil)
	et.signIn("u1", "host")
	et.roles.hold = make(chan struct{})

	v, err := et.engine.Mount(context.Background(), &hostNav{}, "/host")
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		done <- v.WaitReady(ctx)
	}()

	time.Sleep(10 * time.Millisecond)
	v.Close()
	select {
	case err := <-done:
		if !errors.Is(err, ErrEngineClosed) {
			t.Fatalf("expected ErrEngineClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("wait ready still blocked after close")
	}
}
