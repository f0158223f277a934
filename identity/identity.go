package identity

import (
	"context"
	"time"
)

// EventKind names an identity lifecycle notification.
type EventKind string

const (
	EventInitialSession   EventKind = "INITIAL_SESSION"
	EventSignedIn         EventKind = "SIGNED_IN"
	EventSignedOut        EventKind = "SIGNED_OUT"
	EventTokenRefreshed   EventKind = "TOKEN_REFRESHED"
	EventUserUpdated      EventKind = "USER_UPDATED"
	EventPasswordRecovery EventKind = "PASSWORD_RECOVERY"
)

// metadataRoleKey is the user-metadata key providers use for the display role.
const metadataRoleKey = "role"

// User is the identity record attached to a session.
type User struct {
	ID       string
	Email    string
	Metadata map[string]any
}

// RoleHint returns the display role stored in user metadata, or "".
//
// The hint is decoration only. Authoritative roles come from the role store.
func (u *User) RoleHint() string {
	if u == nil || u.Metadata == nil {
		return ""
	}
	hint, _ := u.Metadata[metadataRoleKey].(string)
	return hint
}

// Clone returns a deep copy of u.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	out := &User{ID: u.ID, Email: u.Email}
	if u.Metadata != nil {
		out.Metadata = make(map[string]any, len(u.Metadata))
		for k, v := range u.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// Session is the opaque token bundle issued by the provider.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	User         *User
}

// UserID returns the owning user's id, or "" when absent.
func (s *Session) UserID() string {
	if s == nil || s.User == nil {
		return ""
	}
	return s.User.ID
}

// Expired reports whether the validity window has closed at now. A session
// without a known expiry is never considered expired.
func (s *Session) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(s.ExpiresAt)
}

// Clone returns a deep copy of s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.User = s.User.Clone()
	return &out
}

// Event is one notification from the provider's event stream.
type Event struct {
	Kind    EventKind
	Session *Session
}

// Listener receives provider events. Providers may invoke it from any
// goroutine and may deliver duplicates.
type Listener func(Event)

// Provider is the identity-provider collaborator.
type Provider interface {
	// Subscribe registers l and returns a function that unregisters it.
	Subscribe(l Listener) (unsubscribe func())
	// CurrentSession returns the point-in-time session, or nil when signed out.
	CurrentSession(ctx context.Context) (*Session, error)
	// RefreshSession exchanges the refresh token for a new session.
	RefreshSession(ctx context.Context) (*Session, error)
	// SignOut ends the session at the provider.
	SignOut(ctx context.Context) error
}
