// Package roles maps a user id to its authoritative role set.
//
// # Components
//
//   - [Set]: immutable, order-irrelevant set of role strings.
//   - [Priority]: fixed total order used to pick a user's primary role.
//   - [Resolver]: cached lookup with a two-tier failure policy: transient
//     transport errors are retried with capped exponential backoff, and a
//     failed query triggers one session refresh followed by one retry. When
//     both tiers fail the result is the empty set.
//   - [Binding]: the {roles, isLoading} view for the currently signed-in user.
//   - [RedisSource]: role lookup backed by Redis sets.
//
// # What this package must NOT do
//
//   - Return errors from Resolve; failure is an empty set.
//   - Read roles from identity metadata.
//   - Import authsync, session, redirect or gate.
package roles
