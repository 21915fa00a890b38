package goSession

import (
	"fmt"
	"strings"
	"time"
)

// LintSeverity ranks a [LintWarning].
type LintSeverity uint8

const (
	LintInfo LintSeverity = iota
	LintWarn
	LintHigh
)

func (s LintSeverity) String() string {
	switch s {
	case LintInfo:
		return "INFO"
	case LintWarn:
		return "WARN"
	case LintHigh:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

// LintWarning is a valid but questionable setting.
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

// LintResult is the set of warnings for a config.
type LintResult []LintWarning

// Codes returns the warning codes in order.
func (r LintResult) Codes() []string {
	out := make([]string, 0, len(r))
	for _, w := range r {
		out = append(out, w.Code)
	}
	return out
}

// BySeverity returns warnings at or above min.
func (r LintResult) BySeverity(min LintSeverity) LintResult {
	var out LintResult
	for _, w := range r {
		if w.Severity >= min {
			out = append(out, w)
		}
	}
	return out
}

// AsError folds warnings at or above min into one error, or nil.
func (r LintResult) AsError(min LintSeverity) error {
	hits := r.BySeverity(min)
	if len(hits) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(hits))
	for _, w := range hits {
		msgs = append(msgs, fmt.Sprintf("[%s] %s: %s", w.Severity, w.Code, w.Message))
	}
	return fmt.Errorf("config lint: %s", strings.Join(msgs, "; "))
}

// Lint reports settings that validate but are unlikely to behave as intended.
func (c *Config) Lint() LintResult {
	var ws LintResult
	add := func(code string, sev LintSeverity, msg string) {
		ws = append(ws, LintWarning{Code: code, Severity: sev, Message: msg})
	}

	if c.Refresh.Interval >= c.Refresh.Window {
		add("refresh_interval_exceeds_window", LintHigh,
			"the refresh window can elapse between two polls; tokens may expire without a refresh attempt")
	}
	if c.Refresh.ActivityThreshold > c.Idle.Timeout {
		add("activity_threshold_exceeds_idle", LintInfo,
			"idle logout happens before the refresh activity threshold can matter")
	}
	if c.Token.ExpiryBuffer > 5*time.Minute {
		add("expiry_buffer_large", LintWarn,
			"a large expiry buffer discards tokens that the server would still accept")
	}
	if c.Token.ExpiryBuffer >= c.Refresh.Window {
		add("expiry_buffer_exceeds_window", LintWarn,
			"tokens are treated as expired locally before the refresh window opens")
	}
	if c.Store.BroadcastTTL > time.Minute {
		add("broadcast_ttl_long", LintWarn,
			"a long-lived logout marker makes late subscribers observe stale logouts")
	}
	if !c.Version.Enabled {
		add("version_watch_disabled", LintInfo,
			"sessions survive deployments")
	}
	if !c.Validation.Enabled {
		add("validation_disabled", LintWarn,
			"server-side revocation is only noticed on the next authenticated request")
	}
	if !c.Audit.Enabled {
		add("audit_disabled", LintInfo,
			"forced logouts leave no audit trail")
	}

	return ws
}
