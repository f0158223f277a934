// Package authsync reconciles an asynchronous identity-provider event stream
// with per-user authorization roles and decides, without oscillation, where a
// dashboard user should be sent.
//
// An [Engine] lives for the whole application. It owns the process-wide
// redirect decision state, the role cache, metrics and audit dispatch. Each
// hosting view calls [Engine.Mount] to obtain a [View], which wires a session
// store, a role binding, a redirect coordinator and any number of access
// gates together. Engine and View methods are safe for concurrent use.
//
// # Architecture boundaries
//
// authsync is the public surface. Event coalescing lives in session/, role
// resolution in roles/, navigation decisions in redirect/ and render-time
// checks in gate/. The identity provider and role store are collaborators
// behind interfaces; this package never implements them.
//
// # What this package must NOT do
//
//   - Surface runtime errors to the render tree. Role failures become an
//     empty role set and redirect loops end at the circuit breaker.
//   - Keep redirect loop state in package-level variables.
//   - Use identity metadata role hints for access decisions.
package authsync
