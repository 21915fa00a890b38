package test

import (
	"context"
	"errors"
	"fmt"

	goSession "github.com/MrEthical07/goSession"
	"github.com/redis/go-redis/v9"
)

// ExampleNew demonstrates engine construction with production-style dependencies.
func ExampleNew() {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})

	cfg := goSession.DefaultConfig()

	engine, err := goSession.New().
		WithConfig(cfg).
		WithAPI("https://console.example.test/api").
		WithRedis(rdb).
		Build()
	if err != nil {
		return
	}
	defer engine.Dispose()

	if err := engine.Init(context.Background()); err != nil {
		return
	}
}

// ExampleEngine_Login shows a typical login call and structured error handling.
func ExampleEngine_Login() {
	var engine *goSession.Engine
	err := engine.Login(context.Background(), "alice", "password")
	switch {
	case errors.Is(err, goSession.ErrInvalidCredentials):
		// show "wrong username or password"
	case errors.Is(err, goSession.ErrLoginUnavailable), errors.Is(err, goSession.ErrStoreUnavailable):
		// offer a retry
	}
}

// ExampleEngine_Watch shows how to react to forced logouts.
func ExampleEngine_Watch() {
	var engine *goSession.Engine
	stop := engine.Watch(func(c goSession.StateChange) {
		if c.To == goSession.StateAnonymous && c.Reason != goSession.ReasonUser {
			fmt.Println("signed out:", c.Reason)
		}
	})
	defer stop()
}

// ExampleConfig_Lint shows how to fail startup on risky settings.
func ExampleConfig_Lint() {
	cfg := goSession.DefaultConfig()
	cfg.Refresh.Interval = cfg.Refresh.Window

	if err := cfg.Lint().AsError(goSession.LintHigh); err != nil {
		fmt.Println(cfg.Lint().BySeverity(goSession.LintHigh).Codes())
	}
	// Output: [refresh_interval_exceeds_window]
}
