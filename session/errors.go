package session

import "errors"

var (
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("session: store already started")
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("session: store closed")
	// ErrNilProvider is returned by New when no provider is supplied.
	ErrNilProvider = errors.New("session: nil identity provider")
)
