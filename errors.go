package authsync

import "errors"

var (
	// ErrEngineClosed is returned by Mount after Close.
	ErrEngineClosed = errors.New("authsync: engine closed")
	// ErrProviderRequired is returned by Build without an identity provider.
	ErrProviderRequired = errors.New("authsync: identity provider required")
	// ErrRoleSourceRequired is returned by Build without a role source.
	ErrRoleSourceRequired = errors.New("authsync: role source required")
	// ErrNavigatorRequired is returned by Mount without a navigator.
	ErrNavigatorRequired = errors.New("authsync: navigator required")
	// ErrBuilderUsed is returned when Build is called twice.
	ErrBuilderUsed = errors.New("authsync: builder already used")
	// ErrInvalidConfig wraps every configuration validation failure.
	ErrInvalidConfig = errors.New("authsync: invalid config")
)
