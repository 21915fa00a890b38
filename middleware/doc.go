// Package middleware adapts a client session to net/http in both directions.
//
// # Outbound
//
// [Transport] is an http.RoundTripper for requests to the backend. It attaches
// the current access token as a bearer credential and, when a response comes
// back 401 on a request not marked with the skip header, reports it so the
// session is torn down globally.
//
// # Inbound
//
// [Guard] gates local handlers (pages served by the console itself) on the
// session being authenticated and holding every listed permission.
//
// # What this package must NOT do
//
//   - Decode tokens or resolve permissions itself.
//   - Retry requests after a 401.
package middleware
