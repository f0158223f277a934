// Package memory provides an in-process identity.Provider. It backs the
// engine's tests and the replay tool.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/eventdash/authsync/identity"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Provider is a scriptable identity provider held entirely in memory.
type Provider struct {
	mu         sync.Mutex
	listeners  map[uuid.UUID]identity.Listener
	order      []uuid.UUID
	current    *identity.Session
	currentErr error
	refreshErr error
	hold       chan struct{}

	subscribeCalls int
	currentCalls   int
	refreshCalls   int
	signOutCalls   int
	calls          []string
}

// New returns an empty, signed-out provider.
func New() *Provider {
	return &Provider{listeners: make(map[uuid.UUID]identity.Listener)}
}

func (p *Provider) Subscribe(l identity.Listener) func() {
	id := uuid.New()

	p.mu.Lock()
	p.listeners[id] = l
	p.order = append(p.order, id)
	p.subscribeCalls++
	p.calls = append(p.calls, "subscribe")
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			delete(p.listeners, id)
			for i, candidate := range p.order {
				if candidate == id {
					p.order = append(p.order[:i], p.order[i+1:]...)
					break
				}
			}
		})
	}
}

// CurrentSession returns the stored session. When HoldCurrentSession is
// active the call blocks until released or ctx is done, and then reports the
// session stored at the time of the call.
func (p *Provider) CurrentSession(ctx context.Context) (*identity.Session, error) {
	p.mu.Lock()
	p.currentCalls++
	p.calls = append(p.calls, "current")
	snapshot := p.current.Clone()
	err := p.currentErr
	hold := p.hold
	p.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// RefreshSession re-issues the stored session and emits TOKEN_REFRESHED.
func (p *Provider) RefreshSession(ctx context.Context) (*identity.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.refreshCalls++
	p.calls = append(p.calls, "refresh")
	if p.refreshErr != nil {
		err := p.refreshErr
		p.mu.Unlock()
		return nil, err
	}
	if p.current == nil {
		p.mu.Unlock()
		return nil, identity.ErrNoSession
	}
	next := p.current.Clone()
	p.current = next
	p.mu.Unlock()

	p.Emit(identity.EventTokenRefreshed, next)
	return next.Clone(), nil
}

// SignOut clears the stored session and emits SIGNED_OUT.
func (p *Provider) SignOut(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	p.signOutCalls++
	p.calls = append(p.calls, "signout")
	p.current = nil
	p.mu.Unlock()

	p.Emit(identity.EventSignedOut, nil)
	return nil
}

// Emit delivers an event to every listener on the caller's goroutine.
func (p *Provider) Emit(kind identity.EventKind, s *identity.Session) {
	p.mu.Lock()
	targets := make([]identity.Listener, 0, len(p.order))
	for _, id := range p.order {
		targets = append(targets, p.listeners[id])
	}
	p.mu.Unlock()

	for _, l := range targets {
		l(identity.Event{Kind: kind, Session: s.Clone()})
	}
}

// SetSession replaces the stored session without emitting an event.
func (p *Provider) SetSession(s *identity.Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = s.Clone()
}

// FailCurrentSession makes CurrentSession return err until cleared with nil.
func (p *Provider) FailCurrentSession(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.currentErr = err
}

// FailRefresh makes RefreshSession return err until cleared with nil.
func (p *Provider) FailRefresh(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshErr = err
}

// HoldCurrentSession blocks CurrentSession calls until release is invoked.
func (p *Provider) HoldCurrentSession() (release func()) {
	ch := make(chan struct{})
	p.mu.Lock()
	p.hold = ch
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			if p.hold == ch {
				p.hold = nil
			}
			p.mu.Unlock()
			close(ch)
		})
	}
}

// ListenerCount returns the number of registered listeners.
func (p *Provider) ListenerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.listeners)
}

// Calls returns the provider operations in invocation order.
func (p *Provider) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.calls))
	copy(out, p.calls)
	return out
}

// RefreshCalls returns how many times RefreshSession was invoked.
func (p *Provider) RefreshCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refreshCalls
}

// NewSession mints a session for userID whose access token is an HS256 JWT
// carrying sub and exp.
func NewSession(userID, email string, issuedAt time.Time, ttl time.Duration) *identity.Session {
	exp := issuedAt.Add(ttl)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        uuid.NewString(),
	})
	signed, err := tok.SignedString([]byte("authsync-memory-provider"))
	if err != nil {
		signed = ""
	}
	return &identity.Session{
		AccessToken:  signed,
		RefreshToken: uuid.NewString(),
		ExpiresAt:    exp,
		User:         &identity.User{ID: userID, Email: email},
	}
}
