package identity

import "errors"

var (
	// ErrNoSession is returned by providers when an operation needs a session and none exists.
	ErrNoSession = errors.New("identity: no session")
	// ErrTokenMalformed is returned when an access token cannot be decoded.
	ErrTokenMalformed = errors.New("identity: malformed access token")
)
