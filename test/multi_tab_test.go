//go:build integration
// +build integration

package test

import (
	"context"
	"sync"
	"testing"

	goSession "github.com/MrEthical07/goSession"
)

func TestLogoutReachesEveryTab(t *testing.T) {
	ctx := context.Background()
	rdb := newIntegrationRedis(t)
	api := newStubAPI(t)

	first := newTab(t, rdb, api)
	if err := first.Init(ctx); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if err := first.Login(ctx, "alice", "pw"); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	tabs := []*goSession.Engine{first}
	for i := 0; i < 3; i++ {
		tab := newTab(t, rdb, api)
		if err := tab.Init(ctx); err != nil {
			t.Fatalf("init failed: %v", err)
		}
		if !tab.IsAuthenticated() {
			t.Fatalf("tab %d did not restore the session", i)
		}
		if role, _ := tab.PrimaryRole(); role != "User" {
			t.Fatalf("tab %d primary role = %q", i, role)
		}
		tabs = append(tabs, tab)
	}

	if err := tabs[2].Logout(ctx); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	for _, tab := range tabs {
		tab := tab
		waitFor(t, func() bool { return tab.State() == goSession.StateAnonymous }, "tab logout")
	}
	if got := api.revokes.Load(); got != 1 {
		t.Fatalf("expected exactly one revoke, got %d", got)
	}
}

func TestRefreshAndLogoutRace(t *testing.T) {
	ctx := context.Background()
	rdb := newIntegrationRedis(t)
	api := newStubAPI(t)

	tab := newTab(t, rdb, api)
	if err := tab.Init(ctx); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if err := tab.Login(ctx, "alice", "pw"); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	const workers = 16
	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			<-start
			if i%4 == 0 {
				_ = tab.Logout(ctx)
				return
			}
			_ = tab.Refresh(ctx)
		}(i)
	}
	close(start)
	wg.Wait()

	if tab.State() != goSession.StateAnonymous {
		t.Fatalf("expected anonymous, got %v", tab.State())
	}
	if _, ok := tab.AccessToken(); ok {
		t.Fatal("expected no access token after logout")
	}
	if got := api.revokes.Load(); got != 1 {
		t.Fatalf("expected exactly one revoke, got %d", got)
	}
}
