// Package session reconciles the identity provider's asynchronous event stream
// into one authoritative, debounced snapshot of who is signed in.
//
// # Event handling
//
// A [Store] attaches its listener before issuing the initial session query so
// no event can be lost in between. Events of a kind that was applied less
// than the cooldown ago are dropped. Every other event replaces the single
// pending slot and restarts the debounce timer, so a burst collapses into the
// last event of the burst.
//
// # Architecture boundaries
//
// This package owns the session/user snapshot only. It does NOT fetch roles,
// navigate, or call provider mutations (sign-in, sign-out, refresh).
//
// # What this package must NOT do
//
//   - Import authsync, roles, redirect or gate.
//   - Mutate state after Close.
//   - Hold its lock while invoking subscribers or the provider.
package session
