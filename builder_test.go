package goSession

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestBuildRequiresRedis(t *testing.T) {
	if _, err := New().WithAPI("https://api.example.test").Build(); err == nil {
		t.Fatal("expected redis client error")
	}
}

func TestBuildValidatesConfig(t *testing.T) {
	if _, err := New().WithRedis(testRedis(t)).Build(); err == nil {
		t.Fatal("expected missing base url error")
	}
}

func TestBuilderIsSingleUse(t *testing.T) {
	b := New().WithRedis(testRedis(t)).WithAPI("https://api.example.test")
	e, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer e.Dispose()

	if _, err := b.Build(); err == nil {
		t.Fatal("expected builder reuse error")
	}
	if e.Origin() == "" {
		t.Fatal("expected generated origin")
	}
	if e.State() != StateAnonymous {
		t.Fatalf("state = %v", e.State())
	}
}

func TestBuildCustomRoleModel(t *testing.T) {
	e, err := New().
		WithRedis(testRedis(t)).
		WithAPI("https://api.example.test").
		WithPermissions([]string{"reports.view", "reports.export"}).
		WithRoles(map[string][]string{
			"Analyst": {"reports.view", "reports.export"},
			"Guest":   {"reports.view"},
		}).
		WithRolePrecedence([]string{"Analyst", "Guest"}).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer e.Dispose()

	got, ok := e.resolver.PrimaryRole([]string{"Guest", "Analyst"})
	if !ok || got != "Analyst" {
		t.Fatalf("primary role = %q,%v", got, ok)
	}
}

func TestBuildRejectsUnknownPrecedenceRole(t *testing.T) {
	_, err := New().
		WithRedis(testRedis(t)).
		WithAPI("https://api.example.test").
		WithRolePrecedence([]string{"Ghost"}).
		Build()
	if err == nil {
		t.Fatal("expected precedence error")
	}
}

func TestStateStrings(t *testing.T) {
	want := map[State]string{
		StateAnonymous:      "anonymous",
		StateAuthenticating: "authenticating",
		StateAuthenticated:  "authenticated",
		StateLoggingOut:     "logging_out",
		State(42):           "unknown",
	}
	for s, name := range want {
		if s.String() != name {
			t.Fatalf("State(%d).String() = %q, want %q", s, s.String(), name)
		}
	}
}
