// Package api is the JSON client for the console backend's auth endpoints
// and the deployment version marker.
//
// Non-2xx responses surface as [*StatusError]; [IsUnauthorized] recognizes an
// authoritative rejection. Ping and version requests pass through a circuit
// breaker so polling a failing backend degrades to "no signal" instead of a
// burst of requests.
package api
