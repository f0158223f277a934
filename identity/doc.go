// Package identity defines the identity-provider collaborator consumed by the
// session synchronization engine: lifecycle events, sessions, users and the
// provider operations (subscribe, current session, refresh, sign-out).
//
// # Architecture boundaries
//
// This package owns the contract and the value types. It does NOT implement a
// provider, issue tokens, or verify token signatures; [InspectAccessToken]
// reads claims without verification because authorization never relies on
// them.
//
// # What this package must NOT do
//
//   - Import authsync, session, roles, redirect or gate.
//   - Treat [User.RoleHint] as authoritative for access decisions.
package identity
