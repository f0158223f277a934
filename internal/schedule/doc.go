// Package schedule abstracts wall-clock time and deferred callbacks so that
// debounce, cooldown and settle timers can be driven deterministically.
//
// # Components
//
//   - [Scheduler]: Now plus AfterFunc, the only two primitives the engine uses.
//   - [Real]: production scheduler backed by github.com/benbjohnson/clock.
//   - [Manual]: synchronous scheduler that fires timers only inside Advance.
//
// # What this package must NOT do
//
//   - Import authsync or any sibling package.
//   - Run callbacks while holding its own lock.
package schedule
