// Package gate implements the render-time access check for a protected view.
//
// [Evaluate] is a pure function of the session snapshot, the role snapshot,
// the allowed roles and the current location. [Gate] holds those inputs and
// re-evaluates on every change, reporting each new [Decision].
//
// A gate never renders optimistically: until the session store is
// initialized and roles for the current user have loaded the decision is
// [Loading].
package gate
