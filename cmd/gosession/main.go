// Command gosession signs in against an auth API and holds the session open
// until interrupted, printing every state transition.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	goSession "github.com/MrEthical07/goSession"
	promexport "github.com/MrEthical07/goSession/metrics/export/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		apiURL      string
		redisAddr   string
		username    string
		versionURL  string
		metricsAddr string
		idle        time.Duration
		verbose     bool
	)

	flagSet := pflag.NewFlagSet("gosession", pflag.ContinueOnError)
	flagSet.StringVar(&apiURL, "api", "", "auth API base URL (required)")
	flagSet.StringVar(&redisAddr, "redis-addr", "127.0.0.1:6379", "redis address backing the credential store")
	flagSet.StringVarP(&username, "user", "u", "", "username; password is read from GOSESSION_PASSWORD")
	flagSet.StringVar(&versionURL, "version-url", goSession.DefaultVersionPath, "version resource polled for deployments; empty disables")
	flagSet.StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	flagSet.DurationVar(&idle, "idle-timeout", 30*time.Minute, "log out after this much inactivity")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if apiURL == "" {
		return errors.New("--api is required")
	}

	logger, err := newLogger(verbose)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{redisAddr}})
	defer func() { _ = rdb.Close() }()

	cfg := goSession.DefaultConfig()
	cfg.Idle.Timeout = idle
	cfg.Version.URL = versionURL
	cfg.Version.Enabled = versionURL != ""
	cfg.API.BaseURL = apiURL
	for _, w := range cfg.Lint().BySeverity(goSession.LintWarn) {
		logger.Warn("config lint", zap.String("code", w.Code), zap.String("message", w.Message))
	}

	engine, err := goSession.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithLogger(logger).
		WithMetricsEnabled(metricsAddr != "").
		WithLatencyHistograms(metricsAddr != "").
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Dispose()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ended := make(chan goSession.StateChange, 1)
	cancelWatch := engine.Watch(func(c goSession.StateChange) {
		fmt.Printf("%s  %s -> %s %s\n", c.At.Format(time.RFC3339), c.From, c.To, c.Reason)
		if c.From == goSession.StateLoggingOut && c.To == goSession.StateAnonymous {
			select {
			case ended <- c:
			default:
			}
		}
	})
	defer cancelWatch()

	if err := engine.Init(ctx); err != nil {
		return fmt.Errorf("init: %w", err)
	}

	if !engine.IsAuthenticated() {
		if username == "" {
			return errors.New("no persisted session; pass --user to sign in")
		}
		if err := engine.Login(ctx, username, os.Getenv("GOSESSION_PASSWORD")); err != nil {
			return fmt.Errorf("login: %w", err)
		}
	}

	primary, _ := engine.PrimaryRole()
	fmt.Printf("user:        %s\n", engine.UserID())
	fmt.Printf("role:        %s\n", primary)
	fmt.Printf("permissions: %s\n", strings.Join(engine.Permissions(), ", "))

	if metricsAddr != "" {
		srv := &http.Server{
			Addr:              metricsAddr,
			Handler:           promexport.NewPrometheusExporter(engine).Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server", zap.Error(err))
			}
		}()
		defer func() { _ = srv.Close() }()
	}

	// Terminal input counts as activity.
	go func() {
		buf := make([]byte, 64)
		for {
			if _, err := os.Stdin.Read(buf); err != nil {
				return
			}
			engine.RecordActivity("keydown")
		}
	}()

	select {
	case <-ctx.Done():
		if err := engine.Logout(context.Background()); err != nil {
			logger.Warn("logout", zap.Error(err))
		}
	case c := <-ended:
		logger.Info("session ended", zap.String("reason", string(c.Reason)))
	}
	return nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}
