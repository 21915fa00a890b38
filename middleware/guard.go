package middleware

import (
	"net/http"
)

// Authorizer is the read side of a client session.
type Authorizer interface {
	IsAuthenticated() bool
	HasAll(perms ...string) bool
}

// Guard rejects requests with 401 when the session is anonymous and 403 when
// it lacks any of perms.
func Guard(session Authorizer, perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if session == nil || !session.IsAuthenticated() {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if len(perms) > 0 && !session.HasAll(perms...) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
