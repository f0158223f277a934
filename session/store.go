package session

import (
	"context"
	"sync"
	"time"

	"github.com/eventdash/authsync/identity"
	"github.com/eventdash/authsync/internal/schedule"
	"go.uber.org/zap"
)

const (
	// DefaultEventCooldown is the window in which a repeated event kind is dropped.
	DefaultEventCooldown = 800 * time.Millisecond
	// DefaultDebounce is the delay before a pending event is applied.
	DefaultDebounce = 200 * time.Millisecond
)

// State is the read-only snapshot exposed to the rest of the engine.
type State struct {
	Session     *identity.Session
	User        *identity.User
	Initialized bool
	Loading     bool
}

// HasUser reports whether a user is signed in.
func (s State) HasUser() bool {
	return s.User != nil
}

// UserID returns the signed-in user's id, or "".
func (s State) UserID() string {
	if s.User == nil {
		return ""
	}
	return s.User.ID
}

// Signal identifies an observable store transition.
type Signal uint8

const (
	SignalEventReceived Signal = iota
	SignalEventDuplicate
	SignalEventSuperseded
	SignalEventApplied
	SignalSignedOut
	SignalInitialApplied
	SignalInitialIgnored
	SignalInitialFailed
	SignalForceClear
)

// Config tunes event coalescing. Zero values select the defaults.
type Config struct {
	EventCooldown time.Duration
	Debounce      time.Duration
}

// Options carries optional collaborators.
type Options struct {
	Scheduler schedule.Scheduler
	Logger    *zap.Logger
	// OnSignal is invoked after the store lock is released.
	OnSignal func(Signal, identity.EventKind)
}

// Store is the SessionStateStore for one mount.
type Store struct {
	provider identity.Provider
	sched    schedule.Scheduler
	cfg      Config
	log      *zap.Logger
	onSignal func(Signal, identity.EventKind)

	mu          sync.Mutex
	state       State
	started     bool
	alive       bool
	lastApplied map[identity.EventKind]time.Time
	pending     *identity.Event
	timer       schedule.Timer
	gen         uint64
	// advanced is set once an applied event has moved session state.
	advanced    bool
	unsubscribe func()
	cancelQuery context.CancelFunc
	initialized chan struct{}
	closed      chan struct{}

	subMu   sync.Mutex
	subs    map[uint64]func(State)
	nextSub uint64

	// notifyMu serializes subscriber delivery so every callback sees the
	// snapshot current at delivery time.
	notifyMu sync.Mutex
}

// New returns an inactive store. Call Start to attach it to the provider.
func New(provider identity.Provider, cfg Config, opts Options) (*Store, error) {
	if provider == nil {
		return nil, ErrNilProvider
	}
	if cfg.EventCooldown <= 0 {
		cfg.EventCooldown = DefaultEventCooldown
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if opts.Scheduler == nil {
		opts.Scheduler = schedule.NewReal()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Store{
		provider:    provider,
		sched:       opts.Scheduler,
		cfg:         cfg,
		log:         opts.Logger,
		onSignal:    opts.OnSignal,
		state:       State{Loading: true},
		lastApplied: make(map[identity.EventKind]time.Time),
		initialized: make(chan struct{}),
		closed:      make(chan struct{}),
		subs:        make(map[uint64]func(State)),
	}, nil
}

// Start registers the event listener and then issues the initial session
// query in the background. The listener is attached before the query is
// issued.
func (s *Store) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		if !s.isAlive() {
			return ErrClosed
		}
		return ErrAlreadyStarted
	}
	s.started = true
	s.alive = true
	queryCtx, cancel := context.WithCancel(ctx)
	s.cancelQuery = cancel
	s.mu.Unlock()

	unsubscribe := s.provider.Subscribe(s.handle)

	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		unsubscribe()
		return ErrClosed
	}
	s.unsubscribe = unsubscribe
	s.mu.Unlock()

	go s.initialQuery(queryCtx)
	return nil
}

func (s *Store) isAlive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alive
}

func (s *Store) handle(ev identity.Event) {
	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return
	}

	now := s.sched.Now()
	if last, ok := s.lastApplied[ev.Kind]; ok && now.Sub(last) < s.cfg.EventCooldown {
		s.mu.Unlock()
		s.log.Debug("dropping duplicate identity event", zap.String("kind", string(ev.Kind)))
		s.signal(SignalEventReceived, ev.Kind)
		s.signal(SignalEventDuplicate, ev.Kind)
		return
	}

	var superseded identity.EventKind
	hadPending := s.pending != nil
	if hadPending {
		superseded = s.pending.Kind
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}

	s.gen++
	gen := s.gen
	next := identity.Event{Kind: ev.Kind, Session: identity.Normalize(ev.Session)}
	s.pending = &next
	s.timer = s.sched.AfterFunc(s.cfg.Debounce, func() { s.flush(gen) })
	s.mu.Unlock()

	s.signal(SignalEventReceived, ev.Kind)
	if hadPending {
		s.log.Debug("identity event superseded",
			zap.String("kind", string(superseded)),
			zap.String("by", string(ev.Kind)),
		)
		s.signal(SignalEventSuperseded, superseded)
	}
}

func (s *Store) flush(gen uint64) {
	s.mu.Lock()
	if !s.alive || gen != s.gen || s.pending == nil {
		s.mu.Unlock()
		return
	}
	ev := *s.pending
	s.pending = nil
	s.timer = nil

	changed := s.applyLocked(ev)
	if advancesState(ev) {
		s.advanced = true
	}
	s.lastApplied[ev.Kind] = s.sched.Now()
	s.mu.Unlock()

	s.log.Info("identity event applied",
		zap.String("kind", string(ev.Kind)),
		zap.String("user_id", ev.Session.UserID()),
	)
	s.signal(SignalEventApplied, ev.Kind)
	if ev.Kind == identity.EventSignedOut {
		s.signal(SignalSignedOut, ev.Kind)
	}
	if changed {
		s.notify()
	}
}

func (s *Store) applyLocked(ev identity.Event) bool {
	switch ev.Kind {
	case identity.EventSignedOut:
		changed := s.state.Session != nil || s.state.User != nil
		s.state.Session = nil
		s.state.User = nil
		return changed
	case identity.EventSignedIn, identity.EventTokenRefreshed, identity.EventUserUpdated, identity.EventInitialSession:
		s.replaceLocked(ev.Session)
		return true
	default:
		if ev.Session == nil {
			return false
		}
		s.replaceLocked(ev.Session)
		return true
	}
}

// advancesState reports whether applying ev moves session state. Unknown
// kinds without a session are ignored by applyLocked and do not count.
func advancesState(ev identity.Event) bool {
	switch ev.Kind {
	case identity.EventSignedOut, identity.EventSignedIn, identity.EventTokenRefreshed,
		identity.EventUserUpdated, identity.EventInitialSession:
		return true
	default:
		return ev.Session != nil
	}
}

func (s *Store) replaceLocked(sess *identity.Session) {
	s.state.Session = sess
	if sess == nil {
		s.state.User = nil
		return
	}
	s.state.User = sess.User.Clone()
}

func (s *Store) initialQuery(ctx context.Context) {
	sess, err := s.provider.CurrentSession(ctx)

	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return
	}

	sig := SignalInitialIgnored
	changed := false
	switch {
	case err != nil:
		sig = SignalInitialFailed
	case s.advanced || (s.pending != nil && advancesState(*s.pending)):
		// The event stream is newer than a query issued before it.
	default:
		sess = identity.Normalize(sess)
		hasUser := sess != nil && sess.User != nil
		if hasUser != s.state.HasUser() {
			s.replaceLocked(sess)
			sig = SignalInitialApplied
			changed = true
		}
	}

	if !s.state.Initialized {
		s.state.Initialized = true
		s.state.Loading = false
		close(s.initialized)
		changed = true
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Warn("initial session query failed", zap.Error(err))
	}
	s.signal(sig, identity.EventInitialSession)
	if changed {
		s.notify()
	}
}

// ForceClear nulls the local session and user without contacting the
// provider and discards any pending event.
func (s *Store) ForceClear() {
	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.pending = nil
	s.gen++
	s.state.Session = nil
	s.state.User = nil
	s.mu.Unlock()

	s.log.Info("local session force-cleared")
	s.signal(SignalForceClear, "")
	s.notify()
}

// Snapshot returns the current state. The returned values must be treated as
// read-only.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers fn to receive the snapshot after every change. fn must
// not call ForceClear or Close synchronously.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.subMu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// WaitInitialized blocks until the initial query has resolved, the store is
// closed, or ctx is done.
func (s *Store) WaitInitialized(ctx context.Context) error {
	select {
	case <-s.initialized:
		return nil
	case <-s.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close unregisters the listener, cancels pending timers and the initial
// query, and turns every later update into a no-op.
func (s *Store) Close() {
	s.mu.Lock()
	if !s.alive {
		if s.started {
			s.mu.Unlock()
			return
		}
		s.started = true
	}
	s.alive = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.pending = nil
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	cancel := s.cancelQuery
	close(s.closed)
	s.mu.Unlock()

	s.subMu.Lock()
	s.subs = make(map[uint64]func(State))
	s.subMu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if cancel != nil {
		cancel()
	}
}

func (s *Store) notify() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	if !s.isAlive() {
		return
	}
	state := s.Snapshot()

	s.subMu.Lock()
	targets := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		targets = append(targets, fn)
	}
	s.subMu.Unlock()

	for _, fn := range targets {
		fn(state)
	}
}

func (s *Store) signal(sig Signal, kind identity.EventKind) {
	if s.onSignal != nil {
		s.onSignal(sig, kind)
	}
}
