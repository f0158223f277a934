package roles

import (
	"context"
	"sync"
	"testing"
	"time"
)

type gatedSource struct {
	mu    sync.Mutex
	roles map[string][]string
	gates map[string]chan struct{}
	calls map[string]int
}

func newGatedSource() *gatedSource {
	return &gatedSource{
		roles: map[string][]string{},
		gates: map[string]chan struct{}{},
		calls: map[string]int{},
	}
}

func (s *gatedSource) hold(userID string) (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.gates[userID] = ch
	s.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

func (s *gatedSource) set(userID string, roles ...string) {
	s.mu.Lock()
	s.roles[userID] = roles
	s.mu.Unlock()
}

func (s *gatedSource) Roles(ctx context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	s.calls[userID]++
	gate := s.gates[userID]
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roles[userID], nil
}

func (s *gatedSource) callsFor(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[userID]
}

func newBindingTest(t *testing.T, src Source) (*Binding, *Resolver) {
	t.Helper()
	r, err := NewResolver(src, fastRetry, Options{})
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	b := NewBinding(r, nil)
	t.Cleanup(b.Close)
	return b, r
}

func waitIdle(t *testing.T, b *Binding) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestBindingTrackLoadsRoles(t *testing.T) {
	src := newGatedSource()
	src.set("u1", Host)
	release := src.hold("u1")
	b, _ := newBindingTest(t, src)

	b.Track("u1")
	snap := b.Snapshot()
	if snap.UserID != "u1" || !snap.IsLoading || !snap.Roles.Empty() {
		t.Fatalf("expected loading snapshot, got %+v", snap)
	}

	release()
	waitIdle(t, b)
	snap = b.Snapshot()
	if snap.IsLoading || !snap.Roles.Has(Host) {
		t.Fatalf("expected resolved host role, got %+v", snap)
	}
}

func TestBindingTrackSameUserIsNoop(t *testing.T) {
	src := newGatedSource()
	src.set("u1", Customer)
	b, _ := newBindingTest(t, src)

	b.Track("u1")
	waitIdle(t, b)
	b.Track("u1")
	waitIdle(t, b)

	if src.callsFor("u1") != 1 {
		t.Fatalf("expected a single query, got %d", src.callsFor("u1"))
	}
}

func TestBindingUserChangeBypassesCache(t *testing.T) {
	src := newGatedSource()
	src.set("u1", Customer)
	b, r := newBindingTest(t, src)

	r.Resolve(context.Background(), "u1")
	src.set("u1", Customer, Merchant)

	b.Track("u1")
	waitIdle(t, b)
	if src.callsFor("u1") != 2 {
		t.Fatalf("expected uncached query on user change, got %d", src.callsFor("u1"))
	}
	if !b.Snapshot().Roles.Has(Merchant) {
		t.Fatalf("expected fresh roles, got %v", b.Snapshot().Roles)
	}
}

func TestBindingDiscardsSupersededResult(t *testing.T) {
	src := newGatedSource()
	src.set("u1", Admin)
	src.set("u2", Customer)
	releaseU1 := src.hold("u1")
	defer releaseU1()
	b, _ := newBindingTest(t, src)

	var mu sync.Mutex
	var seen []Snapshot
	b.Subscribe(func(s Snapshot) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	b.Track("u1")
	b.Track("u2")
	waitIdle(t, b)

	snap := b.Snapshot()
	if snap.UserID != "u2" || !snap.Roles.Equal(NewSet(Customer)) || snap.IsLoading {
		t.Fatalf("expected u2 customer snapshot, got %+v", snap)
	}
	mu.Lock()
	defer mu.Unlock()
	for _, s := range seen {
		if s.Roles.Has(Admin) {
			t.Fatalf("superseded admin result was published: %+v", seen)
		}
	}
}

func TestBindingSignOutClearsRoles(t *testing.T) {
	src := newGatedSource()
	src.set("u1", Admin)
	b, _ := newBindingTest(t, src)

	b.Track("u1")
	waitIdle(t, b)
	b.Track("")

	snap := b.Snapshot()
	if snap.UserID != "" || !snap.Roles.Empty() || snap.IsLoading {
		t.Fatalf("expected empty idle snapshot, got %+v", snap)
	}
}

func TestBindingRefetchKeepsRolesVisible(t *testing.T) {
	src := newGatedSource()
	src.set("u1", Customer)
	b, _ := newBindingTest(t, src)

	b.Track("u1")
	waitIdle(t, b)

	src.set("u1", Customer, Host)
	release := src.hold("u1")
	b.Refetch()
	if snap := b.Snapshot(); !snap.Roles.Has(Customer) || snap.IsLoading {
		t.Fatalf("expected previous roles during refetch, got %+v", snap)
	}
	release()
	waitIdle(t, b)
	if !b.Snapshot().Roles.Has(Host) {
		t.Fatalf("expected refetched roles, got %v", b.Snapshot().Roles)
	}
}

func TestBindingCloseDiscardsInflight(t *testing.T) {
	src := newGatedSource()
	src.set("u1", Admin)
	release := src.hold("u1")
	defer release()
	b, _ := newBindingTest(t, src)

	b.Track("u1")
	b.Close()
	waitIdle(t, b)

	if b.Snapshot().Roles.Has(Admin) {
		t.Fatal("result applied after close")
	}
	b.Track("u2")
	if b.Snapshot().UserID != "u1" {
		t.Fatal("Track after close changed state")
	}
}
