package redirect

import (
	"sync"
	"time"
)

// DecisionState is the process-wide loop-prevention record. Construct one at
// application start and pass it to every Coordinator.
//
// The cooldown timestamp and the single-flight flag are shared by every
// mount. Attempt counters and the breaker belong to a single mount and are
// only reset by mounting afresh.
type DecisionState struct {
	mu           sync.Mutex
	lastRedirect time.Time
	inFlight     bool
	mounts       map[uint64]*mountState
	nextMount    uint64
}

type mountState struct {
	attempts int
	tripped  bool
}

// NewDecisionState returns an empty state.
func NewDecisionState() *DecisionState {
	return &DecisionState{mounts: make(map[uint64]*mountState)}
}

// LastRedirect returns the time of the most recent navigation, or the zero time.
func (d *DecisionState) LastRedirect() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastRedirect
}

// Attempts returns the navigations performed by mounts that are still live.
func (d *DecisionState) Attempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	total := 0
	for _, m := range d.mounts {
		total += m.attempts
	}
	return total
}

// Tripped reports whether any live mount has tripped its breaker.
func (d *DecisionState) Tripped() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, m := range d.mounts {
		if m.tripped {
			return true
		}
	}
	return false
}

// InFlight reports whether a navigation is settling.
func (d *DecisionState) InFlight() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inFlight
}

// Mounts returns the number of live mounts.
func (d *DecisionState) Mounts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.mounts)
}

// mount registers a fresh mount with its own attempt counter and breaker.
// Other mounts and the cooldown timestamp are untouched.
func (d *DecisionState) mount() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mounts == nil {
		d.mounts = make(map[uint64]*mountState)
	}
	d.nextMount++
	d.mounts[d.nextMount] = &mountState{}
	return d.nextMount
}

func (d *DecisionState) unmount(id uint64) {
	d.mu.Lock()
	delete(d.mounts, id)
	d.mu.Unlock()
}

// mountLocked returns the record for id. An unmounted id gets a tripped
// record so a late caller can never navigate.
func (d *DecisionState) mountLocked(id uint64) *mountState {
	if m, ok := d.mounts[id]; ok {
		return m
	}
	return &mountState{tripped: true}
}

func (d *DecisionState) trippedFor(id uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.mounts[id]
	return ok && m.tripped
}

func (d *DecisionState) release() {
	d.mu.Lock()
	d.inFlight = false
	d.mu.Unlock()
}
