// Package replay drives an authsync engine through a scripted scenario on a
// manual clock and reports every navigation and gate decision it causes. It
// backs the authsync-replay command.
package replay
