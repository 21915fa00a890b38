// Package prometheus exposes goSession metrics through client_golang.
//
// [PrometheusExporter] implements prometheus.Collector, reading
// [goSession.Engine.MetricsSnapshot] on every scrape. Counter names are
// prefixed gosession_*_total; the single histogram is
// gosession_refresh_latency_seconds.
//
// # What this package must NOT do
//
//   - Register in the global Prometheus registry. Callers register the
//     collector or mount Handler.
//   - Mutate engine state.
package prometheus
