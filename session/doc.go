// Package session provides the Redis-backed credential store shared by every
// process ("tab") that participates in one client session.
//
// # Record shape
//
// A [Record] is present only when the access token, refresh token and expiry
// keys are all present and well formed. Anything less is treated as anonymous
// and reported as [ErrNoCredentials]. Identity fields (user, roles) ride along
// when present.
//
// # Mutation fan-out
//
// Every write or delete publishes a [Mutation] through the configured
// [Publisher] after the Redis transaction commits. Peers use these to mirror
// logouts; publication is best effort and never fails the write.
//
// # Architecture boundaries
//
// This package owns key layout and persistence. It does NOT decode tokens,
// resolve permissions, or decide when a session should end.
//
// # What this package must NOT do
//
//   - Import goSession, jwt, or permission (no upward imports).
//   - Validate token contents.
//   - Delete the logout broadcast key; it expires on its own.
package session
