package goSession

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/MrEthical07/goSession/api"
	"github.com/MrEthical07/goSession/crosstab"
	internalaudit "github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/internal/idle"
	internalmetrics "github.com/MrEthical07/goSession/internal/metrics"
	"github.com/MrEthical07/goSession/internal/refresh"
	"github.com/MrEthical07/goSession/internal/validation"
	"github.com/MrEthical07/goSession/internal/version"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/permission"
	"github.com/MrEthical07/goSession/session"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an [Engine]. A builder is single use.
type Builder struct {
	config Config

	redis      redis.UniversalClient
	httpClient *http.Client
	bus        crosstab.Bus
	logger     *zap.Logger
	clock      clockwork.Clock
	auditSink  AuditSink
	origin     string

	built bool
}

// New returns a builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the configuration. cfg is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing the credential store. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAPI sets the backend base URL.
func (b *Builder) WithAPI(baseURL string) *Builder {
	b.config.API.BaseURL = baseURL
	return b
}

// WithHTTPClient sets the client used for backend calls.
func (b *Builder) WithHTTPClient(c *http.Client) *Builder {
	b.httpClient = c
	return b
}

// WithBus sets the mutation bus shared with peer engines. Defaults to a
// Redis pub/sub bus on the store's client.
func (b *Builder) WithBus(bus crosstab.Bus) *Builder {
	b.bus = bus
	return b
}

// WithLogger sets the structured logger. Defaults to a no-op logger.
func (b *Builder) WithLogger(l *zap.Logger) *Builder {
	b.logger = l
	return b
}

// WithClock sets the time source for every timer. Defaults to the real clock.
func (b *Builder) WithClock(c clockwork.Clock) *Builder {
	b.clock = c
	return b
}

// WithOrigin sets this engine's identity on the bus. Defaults to a random UUID.
func (b *Builder) WithOrigin(origin string) *Builder {
	b.origin = origin
	return b
}

// WithPermissions sets the permission catalog.
func (b *Builder) WithPermissions(perms []string) *Builder {
	b.config.Permission.Catalog = perms
	return b
}

// WithRoles sets the role table.
func (b *Builder) WithRoles(r map[string][]string) *Builder {
	b.config.Permission.Roles = r
	return b
}

// WithRolePrecedence sets the role order, highest first.
func (b *Builder) WithRolePrecedence(order []string) *Builder {
	b.config.Permission.Precedence = order
	return b
}

// WithAuditSink sets the audit destination and enables auditing.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	b.config.Audit.Enabled = sink != nil
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the refresh latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine. The engine does
// no I/O until [Engine.Init].
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := b.clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	origin := b.origin
	if origin == "" {
		origin = uuid.NewString()
	}
	logger = logger.With(zap.String("origin", origin))

	// -------- PERMISSIONS --------
	catalog, table, precedence := cfg.Permission.Catalog, cfg.Permission.Roles, cfg.Permission.Precedence
	if len(catalog) == 0 {
		catalog, table = permission.DefaultCatalog(), permission.DefaultRoleTable()
	}
	if len(precedence) == 0 {
		precedence = permission.DefaultPrecedence()
	}
	resolver, err := permission.Build(cfg.Permission.MaxBits, catalog, table, precedence)
	if err != nil {
		return nil, fmt.Errorf("permissions: %w", err)
	}

	// -------- TOKENS --------
	decoder, err := jwt.NewDecoder(jwt.Config{
		RoleClaimKeys:    cfg.Token.RoleClaimKeys,
		SubjectClaimKeys: cfg.Token.SubjectClaimKeys,
		ExpiryBuffer:     cfg.Token.ExpiryBuffer,
	})
	if err != nil {
		return nil, err
	}

	// -------- TRANSPORT --------
	httpClient := b.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.API.RequestTimeout}
	}
	client, err := api.NewClient(api.Config{
		BaseURL:         cfg.API.BaseURL,
		VersionURL:      cfg.Version.URL,
		HTTPClient:      httpClient,
		Now:             clock.Now,
		BreakerTimeout:  cfg.API.BreakerTimeout,
		BreakerFailures: cfg.API.BreakerFailures,
	})
	if err != nil {
		return nil, err
	}

	// -------- CREDENTIAL STORE --------
	bus := b.bus
	if bus == nil {
		bus = crosstab.NewRedisBus(b.redis, cfg.Store.RedisPrefix, logger)
	}
	store := session.NewStore(b.redis, session.Options{
		Prefix:       cfg.Store.RedisPrefix,
		Origin:       origin,
		Publisher:    bus,
		BroadcastTTL: cfg.Store.BroadcastTTL,
		Now:          clock.Now,
		Logger:       logger,
	})

	checker, err := validation.NewChecker(decoder, client, clock, logger)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		config:     cfg,
		log:        logger,
		clock:      clock,
		origin:     origin,
		store:      store,
		api:        client,
		httpBase:   httpClient,
		decoder:    decoder,
		resolver:   resolver,
		checker:    checker,
		metrics:    internalmetrics.New(internalmetrics.Config{Enabled: cfg.Metrics.Enabled, EnableLatency: cfg.Metrics.EnableLatencyHistograms}),
		watchers:   make(map[uint64]func(StateChange)),
		lifeCtx:    context.Background(),
		lifeCancel: func() {},
	}

	if cfg.Audit.Enabled {
		sink := b.auditSink
		if sink == nil {
			sink = internalaudit.NewZapSink(logger.Named("audit"))
		}
		e.audit = internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    true,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, sink)
	}

	// -------- TIMERS --------
	e.refresher, err = refresh.New(refresh.Config{
		Interval: cfg.Refresh.Interval,
		Window:   cfg.Refresh.Window,
	}, refresh.Deps{
		Clock:      clock,
		ExpiresAt:  e.currentExpiry,
		UserActive: e.userActive,
		Refresh:    e.Refresh,
		Expired: func(ctx context.Context) {
			_ = e.ForceLogout(ctx, ReasonExpired)
		},
		Logger: logger.Named("refresh"),
	})
	if err != nil {
		return nil, err
	}

	e.idle, err = idle.New(idle.Config{
		Timeout:       cfg.Idle.Timeout,
		ResetThrottle: cfg.Idle.ResetThrottle,
	}, clock, func() {
		_ = e.ForceLogout(e.lifetime(), ReasonIdle)
	}, logger.Named("idle"))
	if err != nil {
		return nil, err
	}

	if cfg.Version.Enabled {
		e.version, err = version.New(cfg.Version.Interval, version.Deps{
			Clock:    clock,
			Fetch:    client.Version,
			Baseline: store,
			Changed:  e.versionChanged,
			Logger:   logger.Named("version"),
		})
		if err != nil {
			return nil, err
		}
	}

	if cfg.Validation.Enabled {
		e.poller, err = validation.NewPoller(checker, cfg.Validation.Interval, e.AccessToken, func(ctx context.Context) {
			_ = e.ForceLogout(ctx, ReasonUnauthorized)
		})
		if err != nil {
			return nil, err
		}
	}

	e.sync = crosstab.NewSynchronizer(bus, origin, e.peerLogout, logger.Named("crosstab"))

	b.built = true
	return e, nil
}
