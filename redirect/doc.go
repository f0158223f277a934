// Package redirect decides where to send a signed-in user, at most once per
// pending request, and guarantees that the decision loop terminates.
//
// # Loop prevention
//
// A [DecisionState] is constructed once per process and shared by every
// [Coordinator]. It holds the timestamp of the last navigation, the attempt
// counter and the single-flight flag. No two navigations fire closer together
// than the cooldown, and once the attempt counter reaches the maximum the
// breaker stays tripped until a coordinator is freshly mounted.
//
// # Architecture boundaries
//
// Coordinators consume a user id, a role set and a location. They do NOT
// fetch roles or observe the identity provider; the hosting view feeds them
// through [Coordinator.Update].
//
// # What this package must NOT do
//
//   - Navigate while holding a lock.
//   - Use push navigation.
//   - Consult identity metadata role hints.
package redirect
