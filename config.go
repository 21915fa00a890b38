package goSession

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

// Config is the complete engine configuration. Obtain one from
// [DefaultConfig], adjust it, and pass it to [Builder.WithConfig].
type Config struct {
	Store      StoreConfig
	Token      TokenConfig
	API        APIConfig
	Refresh    RefreshConfig
	Idle       IdleConfig
	Version    VersionConfig
	Validation ValidationConfig
	Permission PermissionConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
}

/*
====================================
STORE CONFIG
====================================
*/

// StoreConfig controls the shared credential store.
type StoreConfig struct {
	RedisPrefix string
	// BroadcastTTL is how long the logout broadcast marker lives.
	BroadcastTTL time.Duration
	// OperationTimeout bounds store calls made from timers and teardown.
	OperationTimeout time.Duration
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig controls client-side claim decoding.
type TokenConfig struct {
	// ExpiryBuffer treats a token as expired this long before exp.
	ExpiryBuffer     time.Duration
	RoleClaimKeys    []string
	SubjectClaimKeys []string
}

/*
====================================
API CONFIG
====================================
*/

// APIConfig locates the backend.
type APIConfig struct {
	BaseURL         string
	RequestTimeout  time.Duration
	RevokeTimeout   time.Duration
	BreakerTimeout  time.Duration
	BreakerFailures uint32
}

/*
====================================
TIMER CONFIGS
====================================
*/

// RefreshConfig controls the refresh scheduler.
type RefreshConfig struct {
	Interval time.Duration
	// Window is the remaining lifetime below which a refresh is attempted.
	Window time.Duration
	// ActivityThreshold is how recent an interaction must be for the user to
	// count as active.
	ActivityThreshold time.Duration
}

// IdleConfig controls the idle monitor.
type IdleConfig struct {
	Timeout       time.Duration
	ResetThrottle time.Duration
}

// DefaultVersionPath is the version resource polled by default. Relative
// URLs resolve against API.BaseURL.
const DefaultVersionPath = "/version.json"

// VersionConfig controls the deployment version watcher.
type VersionConfig struct {
	Enabled  bool
	URL      string
	Interval time.Duration
}

// ValidationConfig controls periodic server-side token re-validation.
type ValidationConfig struct {
	Enabled  bool
	Interval time.Duration
}

/*
====================================
PERMISSION CONFIG
====================================
*/

// PermissionConfig defines the role model. Empty fields fall back to the
// built-in console catalog.
type PermissionConfig struct {
	MaxBits    int
	Precedence []string
	Catalog    []string
	Roles      map[string][]string
}

/*
====================================
OBSERVABILITY CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Store: StoreConfig{
			RedisPrefix:      "gosession",
			BroadcastTTL:     5 * time.Second,
			OperationTimeout: 5 * time.Second,
		},
		Token: TokenConfig{
			ExpiryBuffer:     30 * time.Second,
			RoleClaimKeys:    []string{"role", "roles"},
			SubjectClaimKeys: []string{"sub"},
		},
		API: APIConfig{
			RequestTimeout:  15 * time.Second,
			RevokeTimeout:   5 * time.Second,
			BreakerTimeout:  30 * time.Second,
			BreakerFailures: 5,
		},
		Refresh: RefreshConfig{
			Interval:          time.Minute,
			Window:            5 * time.Minute,
			ActivityThreshold: 30 * time.Minute,
		},
		Idle: IdleConfig{
			Timeout:       30 * time.Minute,
			ResetThrottle: time.Second,
		},
		Version: VersionConfig{
			Enabled:  true,
			URL:      DefaultVersionPath,
			Interval: 5 * time.Minute,
		},
		Validation: ValidationConfig{
			Enabled:  true,
			Interval: 5 * time.Minute,
		},
		Permission: PermissionConfig{
			MaxBits: 64,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.RoleClaimKeys = cloneStrings(cfg.Token.RoleClaimKeys)
	out.Token.SubjectClaimKeys = cloneStrings(cfg.Token.SubjectClaimKeys)
	out.Permission.Precedence = cloneStrings(cfg.Permission.Precedence)
	out.Permission.Catalog = cloneStrings(cfg.Permission.Catalog)
	if cfg.Permission.Roles != nil {
		out.Permission.Roles = make(map[string][]string, len(cfg.Permission.Roles))
		for role, perms := range cfg.Permission.Roles {
			out.Permission.Roles[role] = cloneStrings(perms)
		}
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// Store
	if strings.TrimSpace(c.Store.RedisPrefix) == "" {
		return errors.New("Store RedisPrefix must not be empty")
	}
	if c.Store.BroadcastTTL <= 0 {
		return errors.New("Store BroadcastTTL must be > 0")
	}
	if c.Store.OperationTimeout <= 0 {
		return errors.New("Store OperationTimeout must be > 0")
	}

	// Token
	if c.Token.ExpiryBuffer < 0 {
		return errors.New("Token ExpiryBuffer must be >= 0")
	}
	if len(c.Token.RoleClaimKeys) == 0 {
		return errors.New("Token RoleClaimKeys must not be empty")
	}
	for _, k := range c.Token.RoleClaimKeys {
		if strings.TrimSpace(k) == "" {
			return errors.New("Token RoleClaimKeys must not contain blank keys")
		}
	}

	// API
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return errors.New("API BaseURL is required")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("API BaseURL must be an absolute URL")
	}
	if c.API.RequestTimeout <= 0 || c.API.RevokeTimeout <= 0 {
		return errors.New("API timeouts must be > 0")
	}
	if c.API.BreakerTimeout <= 0 || c.API.BreakerFailures == 0 {
		return errors.New("API breaker settings must be > 0")
	}

	// Refresh
	if c.Refresh.Interval <= 0 {
		return errors.New("Refresh Interval must be > 0")
	}
	if c.Refresh.Window <= 0 {
		return errors.New("Refresh Window must be > 0")
	}
	if c.Refresh.ActivityThreshold <= 0 {
		return errors.New("Refresh ActivityThreshold must be > 0")
	}

	// Idle
	if c.Idle.Timeout <= 0 {
		return errors.New("Idle Timeout must be > 0")
	}
	if c.Idle.ResetThrottle < 0 || c.Idle.ResetThrottle >= c.Idle.Timeout {
		return errors.New("Idle ResetThrottle must be >= 0 and below Timeout")
	}

	// Version
	if c.Version.Enabled {
		if strings.TrimSpace(c.Version.URL) == "" {
			return errors.New("Version URL is required when enabled")
		}
		if c.Version.Interval <= 0 {
			return errors.New("Version Interval must be > 0")
		}
	}

	// Validation
	if c.Validation.Enabled && c.Validation.Interval <= 0 {
		return errors.New("Validation Interval must be > 0")
	}

	// Permission
	if c.Permission.MaxBits != 64 && c.Permission.MaxBits != 128 {
		return errors.New("Permission MaxBits must be 64 or 128")
	}
	if (len(c.Permission.Catalog) == 0) != (len(c.Permission.Roles) == 0) {
		return errors.New("Permission Catalog and Roles must be provided together")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	return nil
}
