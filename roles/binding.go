package roles

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Snapshot is the {roles, isLoading} view keyed by user id.
type Snapshot struct {
	UserID    string
	Roles     Set
	IsLoading bool
}

// Binding tracks the role set of the currently signed-in user. A change of
// user id bypasses the resolver cache. Results for a superseded user id or
// arriving after Close are discarded.
type Binding struct {
	resolver *Resolver
	log      *zap.Logger
	ctx      context.Context
	stop     context.CancelFunc

	mu       sync.Mutex
	snap     Snapshot
	gen      uint64
	alive    bool
	cancel   context.CancelFunc
	inflight int
	idle     chan struct{}

	subMu   sync.Mutex
	subs    map[uint64]func(Snapshot)
	nextSub uint64

	notifyMu sync.Mutex
}

// NewBinding returns a Binding with no tracked user.
func NewBinding(resolver *Resolver, logger *zap.Logger) *Binding {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Binding{
		resolver: resolver,
		log:      logger,
		ctx:      ctx,
		stop:     stop,
		alive:    true,
		subs:     make(map[uint64]func(Snapshot)),
	}
}

// Track switches the binding to userID. Tracking the current user id is a
// no-op; any other id starts an uncached fetch.
func (b *Binding) Track(userID string) {
	b.mu.Lock()
	if !b.alive || userID == b.snap.UserID {
		b.mu.Unlock()
		return
	}
	b.startLocked(userID, Set{}, userID != "")
	b.mu.Unlock()

	b.log.Debug("tracking user roles", zap.String("user_id", userID))
	b.notify()
}

// Refetch invalidates the tracked user's cached roles and fetches them again.
// The previous roles stay visible until the new result arrives.
func (b *Binding) Refetch() {
	b.mu.Lock()
	if !b.alive || b.snap.UserID == "" {
		b.mu.Unlock()
		return
	}
	b.startLocked(b.snap.UserID, b.snap.Roles, b.snap.IsLoading)
	b.mu.Unlock()
}

func (b *Binding) startLocked(userID string, keep Set, loading bool) {
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	b.gen++
	gen := b.gen
	b.snap = Snapshot{UserID: userID, Roles: keep, IsLoading: loading}
	if userID == "" {
		return
	}

	ctx, cancel := context.WithCancel(b.ctx)
	b.cancel = cancel
	if b.inflight == 0 {
		b.idle = make(chan struct{})
	}
	b.inflight++

	go func() {
		defer b.finish()
		set := b.resolver.Fresh(ctx, userID)
		b.complete(gen, set)
	}()
}

func (b *Binding) complete(gen uint64, set Set) {
	b.mu.Lock()
	if !b.alive || gen != b.gen {
		b.mu.Unlock()
		return
	}
	b.snap.Roles = set
	b.snap.IsLoading = false
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	b.mu.Unlock()

	b.notify()
}

func (b *Binding) finish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inflight--
	if b.inflight == 0 {
		close(b.idle)
	}
}

// Snapshot returns the current view.
func (b *Binding) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snap
}

// Subscribe registers fn to receive the snapshot after every change.
func (b *Binding) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	b.subMu.Lock()
	b.nextSub++
	id := b.nextSub
	b.subs[id] = fn
	b.subMu.Unlock()

	return func() {
		b.subMu.Lock()
		delete(b.subs, id)
		b.subMu.Unlock()
	}
}

// Wait blocks until no fetch is in flight or ctx is done.
func (b *Binding) Wait(ctx context.Context) error {
	b.mu.Lock()
	if b.inflight == 0 {
		b.mu.Unlock()
		return nil
	}
	idle := b.idle
	b.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels in-flight fetches and discards their results.
func (b *Binding) Close() {
	b.mu.Lock()
	if !b.alive {
		b.mu.Unlock()
		return
	}
	b.alive = false
	b.gen++
	b.mu.Unlock()

	b.stop()
	b.subMu.Lock()
	b.subs = make(map[uint64]func(Snapshot))
	b.subMu.Unlock()
}

func (b *Binding) notify() {
	b.notifyMu.Lock()
	defer b.notifyMu.Unlock()

	b.mu.Lock()
	alive := b.alive
	snap := b.snap
	b.mu.Unlock()
	if !alive {
		return
	}

	b.subMu.Lock()
	targets := make([]func(Snapshot), 0, len(b.subs))
	for _, fn := range b.subs {
		targets = append(targets, fn)
	}
	b.subMu.Unlock()

	for _, fn := range targets {
		fn(snap)
	}
}
