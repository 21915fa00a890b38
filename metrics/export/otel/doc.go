// Package otel binds goSession counters and the refresh latency histogram to
// OpenTelemetry observable instruments.
//
// [NewOTelExporter] registers one Int64ObservableCounter per session counter.
// The refresh latency histogram becomes a bucket gauge keyed by the "le"
// attribute plus a count gauge. A single callback reads
// [goSession.Engine.MetricsSnapshot] on each collection cycle, and every
// observation carries the engine's origin under [OriginKey].
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
