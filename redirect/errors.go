package redirect

import "errors"

var (
	// ErrNilState is returned when a coordinator is built without a DecisionState.
	ErrNilState = errors.New("redirect: decision state is nil")
	// ErrNilNavigator is returned when a coordinator is built without a Navigator.
	ErrNilNavigator = errors.New("redirect: navigator is nil")
)
