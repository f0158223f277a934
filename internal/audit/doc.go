// Package audit relays session, role and navigation audit records to a sink
// without blocking the coordination paths that produce them.
//
// # Components
//
//   - [Sink] receives events (channel, JSON lines, zap logger, no-op).
//   - [Dispatcher] is a buffered async relay that drops or blocks when full.
//   - [Event] is one record: what happened, to which user, on which mount.
//
// # What this package must NOT do
//
//   - Decide which events to emit. The engine owns that.
//   - Import authsync or any sibling internal package.
package audit
