//go:build integration
// +build integration

package test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/alicebob/miniredis/v2"
	gjwt "github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
)

type stubAPI struct {
	srv     *httptest.Server
	issued  atomic.Int64
	revokes atomic.Int64
}

func newStubAPI(t *testing.T) *stubAPI {
	t.Helper()
	s := &stubAPI{}

	issue := func(w http.ResponseWriter) {
		n := s.issued.Add(1)
		exp := time.Now().Add(time.Hour)
		token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, gjwt.MapClaims{
			"sub":  "user-1",
			"role": []string{"User", "Viewer"},
			"exp":  exp.Unix(),
			"jti":  fmt.Sprint(n),
		}).SignedString([]byte("integration"))
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token":           token,
			"refreshToken":    fmt.Sprintf("rt-%d", n),
			"tokenExpiration": exp.UTC().Format(time.RFC3339),
		})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) { issue(w) })
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) { issue(w) })
	mux.HandleFunc("POST /auth/revoke", func(w http.ResponseWriter, r *http.Request) {
		s.revokes.Add(1)
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /auth/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /version.json", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"version": "integration"})
	})

	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)
	return s
}

func newIntegrationRedis(t *testing.T) *redis.Client {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return rdb
}

func newTab(t *testing.T, rdb *redis.Client, api *stubAPI) *goSession.Engine {
	t.Helper()

	e, err := goSession.New().
		WithRedis(rdb).
		WithAPI(api.srv.URL).
		Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	t.Cleanup(e.Dispose)
	return e
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
