package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/eventdash/authsync"
	"github.com/eventdash/authsync/gate"
	"github.com/eventdash/authsync/identity"
	"github.com/eventdash/authsync/identity/memory"
	"github.com/eventdash/authsync/internal/schedule"
	"github.com/eventdash/authsync/roles"
	"go.uber.org/zap"
)

// Epoch is the manual clock's starting instant.
var Epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// tick is the clock granularity between role fetch settles.
const tick = 10 * time.Millisecond

var ErrNilRoleStore = errors.New("replay: nil role store")

// RoleStore is a role source the runner can seed.
type RoleStore interface {
	roles.Source
	SetRoles(ctx context.Context, userID string, roles ...string) error
}

// Options configures Run.
type Options struct {
	Config authsync.Config
	Store  RoleStore
	Logger *zap.Logger
	// Out receives one line per record as it happens. Nil discards.
	Out io.Writer
	// Ready bounds each wait for asynchronous role fetches.
	Ready time.Duration
}

// Record is one observable outcome.
type Record struct {
	At     time.Duration
	Kind   string
	Detail string
}

func (r Record) String() string {
	return fmt.Sprintf("%8s  %-8s %s", "+"+r.At.String(), r.Kind, r.Detail)
}

// Result summarizes a replay.
type Result struct {
	Records     []Record
	Navigations []string
	User        string
	Roles       []string
	Location    string
	Tripped     bool
	Metrics     authsync.MetricsSnapshot
}

type recorder struct {
	mu    sync.Mutex
	sched schedule.Scheduler
	out   io.Writer
	recs  []Record
	navs  []string
}

func (r *recorder) add(kind, detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := Record{At: r.sched.Now().Sub(Epoch), Kind: kind, Detail: detail}
	r.recs = append(r.recs, rec)
	if kind == "navigate" {
		r.navs = append(r.navs, detail)
	}
	if r.out != nil {
		fmt.Fprintln(r.out, rec.String())
	}
}

// Run replays sc against a fresh engine on a manual clock.
func Run(ctx context.Context, sc Scenario, opts Options) (Result, error) {
	if opts.Store == nil {
		return Result{}, ErrNilRoleStore
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Ready <= 0 {
		opts.Ready = 5 * time.Second
	}

	for user, names := range sc.Roles {
		if err := opts.Store.SetRoles(ctx, user, names...); err != nil {
			return Result{}, fmt.Errorf("replay: seed roles for %s: %w", user, err)
		}
	}

	sched := schedule.NewManual(Epoch)
	provider := memory.New()
	if sc.Session != "" {
		provider.SetSession(newSession(sc.Session, sched.Now()))
	}

	engine, err := authsync.New().
		WithConfig(opts.Config).
		WithProvider(provider).
		WithRoleSource(opts.Store).
		WithLogger(opts.Logger).
		WithScheduler(sched).
		WithMetricsEnabled(true).
		Build()
	if err != nil {
		return Result{}, err
	}
	defer engine.Close()

	rec := &recorder{sched: sched, out: opts.Out}
	nav := authsync.NavigatorFunc(func(path string) { rec.add("navigate", path) })

	v, err := engine.Mount(ctx, nav, sc.Location)
	if err != nil {
		return Result{}, err
	}
	for _, spec := range sc.Gates {
		name := spec.Name
		if name == "" {
			name = strings.Join(spec.Allowed, "|")
		}
		_, release := v.Gate(func(d gate.Decision) {
			rec.add("gate", describe(name, d))
		}, spec.Allowed...)
		defer release()
	}

	r := &run{view: v, sched: sched, provider: provider, store: opts.Store, rec: rec, ready: opts.Ready}
	if err := r.settle(ctx); err != nil {
		return Result{}, err
	}
	for _, step := range sc.Steps {
		if err := r.advanceTo(ctx, step.At); err != nil {
			return Result{}, err
		}
		if err := r.apply(ctx, step); err != nil {
			return Result{}, err
		}
		if err := r.settle(ctx); err != nil {
			return Result{}, err
		}
	}
	if err := r.advanceTo(ctx, r.elapsed+sc.Tail); err != nil {
		return Result{}, err
	}

	rec.mu.Lock()
	res := Result{
		Records:     append([]Record(nil), rec.recs...),
		Navigations: append([]string(nil), rec.navs...),
	}
	rec.mu.Unlock()
	res.User = v.Session().UserID()
	res.Roles = v.Roles().Roles.Slice()
	res.Location = v.Location()
	res.Tripped = v.Tripped()
	res.Metrics = engine.MetricsSnapshot()
	return res, nil
}

type run struct {
	view     *authsync.View
	sched    *schedule.Manual
	provider *memory.Provider
	store    RoleStore
	rec      *recorder
	ready    time.Duration
	elapsed  time.Duration
}

// advanceTo moves the clock in ticks so role fetches started by a timer
// complete before later timers fire.
func (r *run) advanceTo(ctx context.Context, at time.Duration) error {
	for r.elapsed < at {
		step := tick
		if rest := at - r.elapsed; rest < step {
			step = rest
		}
		r.sched.Advance(step)
		r.elapsed += step
		if err := r.settle(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) settle(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.ready)
	defer cancel()
	if err := r.view.WaitReady(ctx); err != nil {
		return fmt.Errorf("replay: wait at +%s: %w", r.elapsed, err)
	}
	return nil
}

func (r *run) apply(ctx context.Context, s Step) error {
	switch {
	case s.Event != "":
		kind := s.Kind()
		var sess *identity.Session
		if s.User != "" {
			sess = newSession(s.User, r.sched.Now())
		}
		if kind == identity.EventSignedOut {
			sess = nil
		}
		r.provider.SetSession(sess)
		r.rec.add("event", string(kind)+" "+s.User)
		r.provider.Emit(kind, sess)
	case s.Location != "":
		r.rec.add("location", s.Location)
		r.view.SetLocation(s.Location)
	case s.Redirect:
		r.rec.add("request", "redirect")
		r.view.RequestRedirect()
	case s.ForceClear:
		r.rec.add("request", "force clear")
		r.view.ForceClear()
	case s.SignOut:
		r.rec.add("request", "sign out")
		return r.view.SignOut(ctx)
	case s.Refetch:
		r.rec.add("request", "refetch roles")
		r.view.RefetchRoles()
	case s.SetRoles != nil:
		r.rec.add("roles", s.User+" "+roles.NewSet(s.SetRoles...).String())
		return r.store.SetRoles(ctx, s.User, s.SetRoles...)
	}
	return nil
}

func newSession(userID string, now time.Time) *identity.Session {
	return memory.NewSession(userID, userID+"@replay.local", now, time.Hour)
}

func describe(name string, d gate.Decision) string {
	switch d.Kind {
	case gate.Redirect:
		return name + " " + d.Kind.String() + " " + d.To
	default:
		return name + " " + d.Kind.String()
	}
}
