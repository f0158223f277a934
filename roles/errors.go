package roles

import "errors"

var (
	// ErrTransient marks a role-store failure worth retrying with backoff.
	ErrTransient = errors.New("roles: transient failure")
	// ErrNilSource is returned by NewResolver when no source is supplied.
	ErrNilSource = errors.New("roles: nil role source")
)

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }

func (e *transientError) Unwrap() []error { return []error{ErrTransient, e.err} }

// Transient wraps err so IsTransient reports true for it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err was marked retryable.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
