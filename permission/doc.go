// Package permission provides the permission registry, role bitmasks, and the
// precedence-based resolver that turns a session's role set into its effective
// permissions.
//
// # Resolution model
//
// Only one role is ever active for authorization: the highest role of the set in
// the configured precedence order. Roles other than the active one contribute
// nothing, even if they would grant more, and a role absent from the precedence
// order grants nothing at all.
//
// # Mask sizes
//
// Supported widths: 64 and 128 bits. A width is selected at registry construction
// time and is immutable thereafter. Bit positions are assigned by
// [Registry.Register] and are stable for the lifetime of the process.
//
// # What this package must NOT do
//
//   - Access Redis, the network, or any persisted state.
//   - Import goSession, jwt, or session.
//   - Union permissions across roles.
package permission
