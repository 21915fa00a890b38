// Package goSession manages the client side of an authenticated session:
// persisted credentials, role-based permission checks, proactive token
// refresh, idle logout, deployment version checks, and logout propagation
// between processes sharing one credential store.
//
// An [Engine] is assembled with [Builder] and has an explicit lifecycle:
// [Engine.Init] restores a persisted session (only if the token is locally
// unexpired and the server still accepts it), and [Engine.Dispose] stops every
// timer and listener.
//
// # States
//
// The engine moves between Anonymous, Authenticating, Authenticated, and
// LoggingOut. While Authenticated four timers run: the refresh scheduler, the
// idle countdown, the version poll, and periodic server validation. Entering
// LoggingOut disarms all of them before the revoke call starts, so no timer
// can trigger a second logout. Logout is idempotent.
//
// # Architecture boundaries
//
// goSession is the public surface. It exposes [Engine], [Builder], [Config],
// and value types. Timers, audit dispatch, and metrics live under internal/.
// Storage, transport, and the permission model live in the session, api,
// crosstab, jwt, middleware, and permission packages.
//
// # What this package must NOT do
//
//   - Verify token signatures. Claims are read for expiry and roles only; the
//     server remains the authority.
//   - Write to the store in response to a peer's logout.
//   - Keep a process-wide singleton. Every engine is independent.
package goSession
