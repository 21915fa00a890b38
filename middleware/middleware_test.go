package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/MrEthical07/goSession/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransportInjectsBearer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := &http.Client{Transport: &Transport{Token: func() (string, bool) { return "tok-1", true }}}
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTransportReportsUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get(api.SkipLogoutHeader), "skip marker must not leave the client")
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	var fired atomic.Int32
	client := &http.Client{Transport: &Transport{
		Token:          func() (string, bool) { return "tok", true },
		OnUnauthorized: func(*http.Request) { fired.Add(1) },
	}}

	resp, err := client.Get(srv.URL + "/applications")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, int32(1), fired.Load())

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/auth/ping", nil)
	require.NoError(t, err)
	req.Header.Set(api.SkipLogoutHeader, "true")
	resp, err = client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, int32(1), fired.Load(), "skip marker must suppress the logout hook")
}

func TestTransportWithoutTokenLeavesHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
	}))
	defer srv.Close()

	client := &http.Client{Transport: &Transport{Token: func() (string, bool) { return "", false }}}
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
}

type stubAuthorizer struct {
	authenticated bool
	perms         map[string]bool
}

func (s stubAuthorizer) IsAuthenticated() bool { return s.authenticated }

func (s stubAuthorizer) HasAll(perms ...string) bool {
	for _, p := range perms {
		if !s.perms[p] {
			return false
		}
	}
	return true
}

func TestGuard(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })

	tests := []struct {
		name    string
		session Authorizer
		perms   []string
		want    int
	}{
		{name: "nil session", session: nil, want: http.StatusUnauthorized},
		{name: "anonymous", session: stubAuthorizer{}, want: http.StatusUnauthorized},
		{name: "authenticated no perms required", session: stubAuthorizer{authenticated: true}, want: http.StatusTeapot},
		{name: "missing perm", session: stubAuthorizer{authenticated: true, perms: map[string]bool{"a": true}}, perms: []string{"a", "b"}, want: http.StatusForbidden},
		{name: "all perms", session: stubAuthorizer{authenticated: true, perms: map[string]bool{"a": true, "b": true}}, perms: []string{"a", "b"}, want: http.StatusTeapot},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			Guard(tc.session, tc.perms...)(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}
