package redirect

import (
	"sync"
	"time"

	"github.com/eventdash/authsync/internal/schedule"
	"github.com/eventdash/authsync/roles"
	"go.uber.org/zap"
)

const (
	DefaultCooldown    = 3 * time.Second
	DefaultMaxAttempts = 3
	DefaultSettleDelay = 300 * time.Millisecond
)

// Navigator performs replace navigation.
type Navigator interface {
	Replace(path string)
}

// NavigatorFunc adapts a function into a Navigator.
type NavigatorFunc func(path string)

func (f NavigatorFunc) Replace(path string) { f(path) }

// Inputs is what the coordinator evaluates against.
type Inputs struct {
	UserID       string
	Roles        roles.Set
	RolesLoading bool
	Location     string
}

// Config tunes the coordinator. Zero values select the defaults.
type Config struct {
	Cooldown    time.Duration
	MaxAttempts int
	SettleDelay time.Duration
	Routes      RouteTable
}

func (c Config) withDefaults() Config {
	if c.Cooldown <= 0 {
		c.Cooldown = DefaultCooldown
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = DefaultSettleDelay
	}
	c.Routes = c.Routes.withDefaults()
	return c
}

// Signal identifies an observable coordinator outcome.
type Signal uint8

const (
	SignalRequested Signal = iota
	SignalNavigated
	SignalAlreadyPlaced
	SignalCooldownDeferred
	SignalBreakerTripped
	SignalEntryCancelled
)

// Options carries optional collaborators.
type Options struct {
	Scheduler schedule.Scheduler
	Logger    *zap.Logger
	// OnSignal receives the outcome and the destination it concerns, if any.
	// It is invoked without any coordinator lock held.
	OnSignal func(sig Signal, target string)
}

// Coordinator is the RedirectCoordinator of one mount.
type Coordinator struct {
	state    *DecisionState
	mount    uint64
	nav      Navigator
	cfg      Config
	sched    schedule.Scheduler
	log      *zap.Logger
	onSignal func(Signal, string)

	mu       sync.Mutex
	alive    bool
	pending  bool
	settling bool
	in       Inputs
	timer    schedule.Timer
	gen      uint64
}

// NewCoordinator mounts a coordinator on state. The new mount starts with its
// own attempt counter and breaker; the cooldown timestamp carries over and
// other live mounts keep theirs.
func NewCoordinator(state *DecisionState, nav Navigator, cfg Config, opts Options) (*Coordinator, error) {
	if state == nil {
		return nil, ErrNilState
	}
	if nav == nil {
		return nil, ErrNilNavigator
	}
	if opts.Scheduler == nil {
		opts.Scheduler = schedule.NewReal()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	mount := state.mount()

	return &Coordinator{
		state:    state,
		mount:    mount,
		nav:      nav,
		cfg:      cfg.withDefaults(),
		sched:    opts.Scheduler,
		log:      opts.Logger.With(zap.Uint64("mount", mount)),
		onSignal: opts.OnSignal,
		alive:    true,
	}, nil
}

// RequestRedirect sets the pending flag and evaluates immediately.
func (c *Coordinator) RequestRedirect() {
	c.mu.Lock()
	if !c.alive {
		c.mu.Unlock()
		return
	}
	c.pending = true
	c.mu.Unlock()

	c.signal(SignalRequested, "")
	c.evaluate()
}

// Update replaces the inputs and re-evaluates a pending request.
func (c *Coordinator) Update(in Inputs) {
	c.mu.Lock()
	if !c.alive {
		c.mu.Unlock()
		return
	}
	c.in = in
	c.mu.Unlock()

	c.evaluate()
}

// Pending reports whether a redirect request is outstanding.
func (c *Coordinator) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Tripped reports whether the breaker halted navigation for this mount.
func (c *Coordinator) Tripped() bool {
	return c.state.trippedFor(c.mount)
}

// Close cancels any timer and releases the single-flight flag if this
// coordinator holds it. Later calls are no-ops.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if !c.alive {
		c.mu.Unlock()
		return
	}
	c.alive = false
	c.pending = false
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	settling := c.settling
	c.settling = false
	c.mu.Unlock()

	if settling {
		c.state.release()
	}
	c.state.unmount(c.mount)
}

type outcome struct {
	sig    Signal
	target string
}

func (c *Coordinator) evaluate() {
	var out []outcome
	c.mu.Lock()
	out = c.evaluateLocked(out)
	c.mu.Unlock()

	c.emit(out)
}

// evaluateLocked runs the guards in order. It returns with c.mu still held.
func (c *Coordinator) evaluateLocked(out []outcome) []outcome {
	if !c.alive || !c.pending || c.settling || c.timer != nil {
		return out
	}
	in := c.in
	if in.UserID == "" || in.RolesLoading {
		return out
	}

	if c.cfg.Routes.IsEntry(in.Location) {
		c.pending = false
		c.log.Debug("redirect cancelled on entry route", zap.String("location", in.Location))
		return append(out, outcome{sig: SignalEntryCancelled})
	}

	now := c.sched.Now()
	st := c.state
	st.mu.Lock()
	ms := st.mountLocked(c.mount)
	if ms.tripped || ms.attempts >= c.cfg.MaxAttempts {
		first := !ms.tripped
		ms.tripped = true
		attempts := ms.attempts
		st.mu.Unlock()

		c.pending = false
		if first {
			c.log.Warn("redirect circuit breaker tripped",
				zap.Int("attempts", attempts),
				zap.String("location", in.Location),
			)
			out = append(out, outcome{sig: SignalBreakerTripped})
		}
		return out
	}
	if st.inFlight {
		st.mu.Unlock()
		c.scheduleRecheckLocked(c.cfg.SettleDelay)
		return out
	}
	if !st.lastRedirect.IsZero() {
		if wait := c.cfg.Cooldown - now.Sub(st.lastRedirect); wait > 0 {
			st.mu.Unlock()
			c.scheduleRecheckLocked(wait)
			c.log.Debug("redirect deferred by cooldown", zap.Duration("wait", wait))
			return append(out, outcome{sig: SignalCooldownDeferred})
		}
	}

	target := c.cfg.Routes.Target(in.Roles)
	if SamePath(target, in.Location) {
		st.mu.Unlock()
		c.pending = false
		return append(out, outcome{sig: SignalAlreadyPlaced, target: target})
	}
	st.inFlight = true
	st.mu.Unlock()

	c.settling = true
	c.gen++
	gen := c.gen
	c.timer = c.sched.AfterFunc(c.cfg.SettleDelay, func() { c.navigate(gen) })
	return out
}

func (c *Coordinator) scheduleRecheckLocked(d time.Duration) {
	c.gen++
	gen := c.gen
	c.timer = c.sched.AfterFunc(d, func() {
		c.mu.Lock()
		if !c.alive || gen != c.gen {
			c.mu.Unlock()
			return
		}
		c.timer = nil
		c.mu.Unlock()
		c.evaluate()
	})
}

// navigate runs after the settle delay against the inputs current at that
// moment.
func (c *Coordinator) navigate(gen uint64) {
	c.mu.Lock()
	if !c.alive || gen != c.gen || !c.settling {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.settling = false
	in := c.in

	var out []outcome
	switch {
	case in.UserID == "" || in.RolesLoading:
		// Inputs changed while settling; evaluate again once they are ready.
		c.state.release()
		c.mu.Unlock()
		c.evaluate()
		return
	case c.cfg.Routes.IsEntry(in.Location):
		c.state.release()
		c.pending = false
		c.mu.Unlock()
		c.emit(append(out, outcome{sig: SignalEntryCancelled}))
		return
	}

	target := c.cfg.Routes.Target(in.Roles)
	if SamePath(target, in.Location) {
		c.state.release()
		c.pending = false
		c.mu.Unlock()
		c.emit(append(out, outcome{sig: SignalAlreadyPlaced, target: target}))
		return
	}

	st := c.state
	st.mu.Lock()
	ms := st.mountLocked(c.mount)
	st.lastRedirect = c.sched.Now()
	ms.attempts++
	st.inFlight = false
	attempt := ms.attempts
	st.mu.Unlock()
	c.pending = false
	c.mu.Unlock()

	c.log.Info("redirecting",
		zap.String("from", in.Location),
		zap.String("to", target),
		zap.Int("attempt", attempt),
	)
	c.nav.Replace(target)
	c.emit(append(out, outcome{sig: SignalNavigated, target: target}))
}

func (c *Coordinator) emit(out []outcome) {
	for _, o := range out {
		c.signal(o.sig, o.target)
	}
}

func (c *Coordinator) signal(sig Signal, target string) {
	if c.onSignal != nil {
		c.onSignal(sig, target)
	}
}
