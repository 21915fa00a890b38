// Package jwt decodes access-token claims on the client without verifying the
// signature. The server issues and verifies tokens; the client only reads the
// expiry, subject, and role claims opportunistically.
//
// Role claims are accepted as an array, a single string, or a comma-separated
// string and are normalized here, at the boundary, into one ordered,
// de-duplicated []string. Nothing past this package sees the raw shape.
package jwt
