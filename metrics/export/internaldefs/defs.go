package internaldefs

import (
	goSession "github.com/MrEthical07/goSession"
)

// CounterDef binds a session counter to its exported name.
type CounterDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// HistogramDef binds a session histogram to its exported name.
type HistogramDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: goSession.MetricLoginSuccess, Name: "gosession_login_success_total", Help: "Successful logins."},
	{ID: goSession.MetricLoginFailure, Name: "gosession_login_failure_total", Help: "Failed logins."},
	{ID: goSession.MetricRefreshSuccess, Name: "gosession_refresh_success_total", Help: "Successful token refreshes."},
	{ID: goSession.MetricRefreshFailure, Name: "gosession_refresh_failure_total", Help: "Failed token refreshes."},
	{ID: goSession.MetricLogout, Name: "gosession_logout_total", Help: "User initiated logouts."},
	{ID: goSession.MetricForcedLogout, Name: "gosession_forced_logout_total", Help: "Logouts forced by a timer, the server or a failed refresh."},
	{ID: goSession.MetricIdleTimeout, Name: "gosession_idle_timeout_total", Help: "Sessions ended by inactivity."},
	{ID: goSession.MetricTokenExpired, Name: "gosession_token_expired_total", Help: "Sessions ended by access token expiry."},
	{ID: goSession.MetricVersionChanged, Name: "gosession_version_changed_total", Help: "Sessions ended by a deployed version change."},
	{ID: goSession.MetricUnauthorized, Name: "gosession_unauthorized_total", Help: "Sessions ended by a server 401."},
	{ID: goSession.MetricCrossTabLogout, Name: "gosession_cross_tab_logout_total", Help: "Logouts propagated from another context."},
	{ID: goSession.MetricSessionRestored, Name: "gosession_session_restored_total", Help: "Persisted sessions restored at startup."},
	{ID: goSession.MetricSessionDiscarded, Name: "gosession_session_discarded_total", Help: "Persisted sessions discarded at startup."},
	{ID: goSession.MetricRevokeFailure, Name: "gosession_revoke_failure_total", Help: "Server revocations that failed during logout."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goSession.MetricRefreshLatency, Name: "gosession_refresh_latency_seconds", Help: "Token refresh round trip latency."},
}

// HistogramBounds holds the upper bound label of each bucket, in seconds.
var HistogramBounds = []string{
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"1",
	"2.5",
	"5",
	"+Inf",
}

// HistogramBoundValues mirrors HistogramBounds without the +Inf bucket.
var HistogramBoundValues = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

// HistogramBoundSuffix is HistogramBounds made safe for instrument names.
var HistogramBoundSuffix = []string{
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"2_5",
	"5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed eight bucket array, truncating or
// zero filling as needed.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
