package goSession

import (
	"io"
	"time"

	internalaudit "github.com/MrEthical07/goSession/internal/audit"
	internalmetrics "github.com/MrEthical07/goSession/internal/metrics"
	"go.uber.org/zap"
)

// State is the session lifecycle state.
type State uint8

const (
	// StateAnonymous means no session is held.
	StateAnonymous State = iota
	// StateAuthenticating means a login or restore is in flight.
	StateAuthenticating
	// StateAuthenticated means a session is held and its timers are armed.
	StateAuthenticated
	// StateLoggingOut means teardown is in progress.
	StateLoggingOut
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateLoggingOut:
		return "logging_out"
	default:
		return "unknown"
	}
}

// LogoutReason records why a session ended.
type LogoutReason string

const (
	ReasonUser           LogoutReason = "user"
	ReasonIdle           LogoutReason = "idle"
	ReasonExpired        LogoutReason = "expired"
	ReasonRefreshFailed  LogoutReason = "refresh_failed"
	ReasonVersionChanged LogoutReason = "version_changed"
	ReasonUnauthorized   LogoutReason = "unauthorized"
	ReasonCrossTab       LogoutReason = "cross_tab"
)

// StateChange is delivered to [Engine.Watch] listeners. Reason is set on
// transitions caused by a logout.
type StateChange struct {
	From   State
	To     State
	Reason LogoutReason
	At     time.Time
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// ZapSink is an [AuditSink] that records events on a zap logger. It is the
// default sink when auditing is enabled without one.
type ZapSink = internalaudit.ZapSink

// NewZapSink creates a [ZapSink] writing to log.
func NewZapSink(log *zap.Logger) *ZapSink {
	return internalaudit.NewZapSink(log)
}

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// MetricID identifies a specific counter or histogram in the in-process
// metrics system.
type MetricID = internalmetrics.MetricID

const (
	MetricLoginSuccess     = MetricID(internalmetrics.MetricLoginSuccess)
	MetricLoginFailure     = MetricID(internalmetrics.MetricLoginFailure)
	MetricRefreshSuccess   = MetricID(internalmetrics.MetricRefreshSuccess)
	MetricRefreshFailure   = MetricID(internalmetrics.MetricRefreshFailure)
	MetricLogout           = MetricID(internalmetrics.MetricLogout)
	MetricForcedLogout     = MetricID(internalmetrics.MetricForcedLogout)
	MetricIdleTimeout      = MetricID(internalmetrics.MetricIdleTimeout)
	MetricTokenExpired     = MetricID(internalmetrics.MetricTokenExpired)
	MetricVersionChanged   = MetricID(internalmetrics.MetricVersionChanged)
	MetricUnauthorized     = MetricID(internalmetrics.MetricUnauthorized)
	MetricCrossTabLogout   = MetricID(internalmetrics.MetricCrossTabLogout)
	MetricSessionRestored  = MetricID(internalmetrics.MetricSessionRestored)
	MetricSessionDiscarded = MetricID(internalmetrics.MetricSessionDiscarded)
	MetricRevokeFailure    = MetricID(internalmetrics.MetricRevokeFailure)
	// MetricRefreshLatency is the only histogram.
	MetricRefreshLatency = MetricID(internalmetrics.MetricRefreshLatency)
)

// MetricsSnapshot is a point-in-time deep copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot
