package gate

import (
	"sync"

	"github.com/eventdash/authsync/redirect"
	"github.com/eventdash/authsync/roles"
	"github.com/eventdash/authsync/session"
)

// Kind is the outcome of an access check.
type Kind uint8

const (
	Loading Kind = iota
	Render
	Redirect
)

func (k Kind) String() string {
	switch k {
	case Loading:
		return "loading"
	case Render:
		return "render"
	case Redirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// Reason explains a Redirect decision.
type Reason uint8

const (
	ReasonNone Reason = iota
	ReasonUnauthenticated
	ReasonForbidden
)

// Decision is what the protected view should do.
type Decision struct {
	Kind   Kind
	To     string
	Reason Reason
}

// Input is everything an access check depends on.
type Input struct {
	Session  session.State
	Roles    roles.Snapshot
	Allowed  []string
	Location string
}

// Evaluate returns the access decision for in.
func Evaluate(in Input, routes redirect.RouteTable) Decision {
	if !in.Session.Initialized || in.Roles.IsLoading {
		return Decision{Kind: Loading}
	}
	if !in.Session.HasUser() {
		return Decision{Kind: Redirect, To: routes.LoginTarget(in.Location), Reason: ReasonUnauthenticated}
	}
	if in.Roles.UserID != in.Session.UserID() {
		// Roles for this user have not been requested yet.
		return Decision{Kind: Loading}
	}
	if len(in.Allowed) > 0 && !in.Roles.Roles.IntersectsAny(in.Allowed) {
		root := routes.Root
		if root == "" {
			root = redirect.DefaultRootRoute
		}
		return Decision{Kind: Redirect, To: root, Reason: ReasonForbidden}
	}
	return Decision{Kind: Render}
}

// Gate re-evaluates an access check whenever one of its inputs changes.
type Gate struct {
	routes   redirect.RouteTable
	onChange func(Decision)

	mu      sync.Mutex
	in      Input
	last    Decision
	version uint64
	closed  bool
}

// New returns a gate for a view restricted to allowed. An empty allowed list
// admits any signed-in user. onChange, if set, receives every new decision
// without the gate lock held.
func New(routes redirect.RouteTable, allowed []string, onChange func(Decision)) *Gate {
	g := &Gate{
		routes:   routes,
		onChange: onChange,
		in:       Input{Allowed: append([]string(nil), allowed...)},
	}
	g.last = Evaluate(g.in, routes)
	return g
}

// Sync replaces every input at once so no intermediate combination is
// evaluated.
func (g *Gate) Sync(s session.State, r roles.Snapshot, location string) Decision {
	return g.update(func(in *Input) {
		in.Session = s
		in.Roles = r
		in.Location = location
	})
}

// SetSession feeds a new session snapshot.
func (g *Gate) SetSession(s session.State) Decision {
	return g.update(func(in *Input) { in.Session = s })
}

// SetRoles feeds a new role snapshot.
func (g *Gate) SetRoles(r roles.Snapshot) Decision {
	return g.update(func(in *Input) { in.Roles = r })
}

// SetLocation feeds a new location.
func (g *Gate) SetLocation(location string) Decision {
	return g.update(func(in *Input) { in.Location = location })
}

// Decision returns the current decision.
func (g *Gate) Decision() Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

// Location returns the location the gate last evaluated.
func (g *Gate) Location() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.in.Location
}

// Close stops change delivery.
func (g *Gate) Close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}

func (g *Gate) update(mutate func(*Input)) Decision {
	g.mu.Lock()
	mutate(&g.in)
	d := Evaluate(g.in, g.routes)
	changed := d != g.last
	g.last = d
	g.version++
	version := g.version
	closed := g.closed
	g.mu.Unlock()

	if changed && !closed && g.onChange != nil && g.current(version) {
		g.onChange(d)
	}
	return d
}

func (g *Gate) current(version uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.closed && g.version == version
}

// ReturnLocation extracts the originally requested location from a login
// redirect produced by Evaluate.
func ReturnLocation(routes redirect.RouteTable, target string) (string, bool) {
	return routes.ReturnLocation(target)
}
