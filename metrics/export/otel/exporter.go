package otel

import (
	"context"
	"errors"
	"fmt"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	// ErrNilMeter is returned when no meter is supplied.
	ErrNilMeter = errors.New("nil meter")
	// ErrNilSource is returned when no metrics source is supplied.
	ErrNilSource = errors.New("nil metrics source")
)

// OriginKey tags every observation with the engine's bus identity so tabs
// sharing one meter provider stay distinguishable.
const OriginKey = attribute.Key("gosession.origin")

type metricsSource interface {
	MetricsSnapshot() goSession.MetricsSnapshot
	AuditDropped() uint64
}

type sessionCounter struct {
	id         goSession.MetricID
	instrument metric.Int64ObservableCounter
}

// latencyHistogram is exposed as one gauge per cumulative bucket, keyed by
// the "le" attribute, plus a total count.
type latencyHistogram struct {
	id      goSession.MetricID
	buckets metric.Int64ObservableGauge
	bounds  [8]attribute.Set
	count   metric.Int64ObservableGauge
}

// OTelExporter publishes session metrics as observable instruments on a
// caller supplied meter.
type OTelExporter struct {
	source       metricsSource
	attrs        []attribute.KeyValue
	registration metric.Registration
	counters     []sessionCounter
	histograms   []latencyHistogram
	auditDropped metric.Int64ObservableCounter
}

// NewOTelExporter observes engine and tags every value with its origin.
func NewOTelExporter(meter metric.Meter, engine *goSession.Engine) (*OTelExporter, error) {
	if engine == nil {
		return nil, ErrNilSource
	}
	return NewOTelExporterFromSource(meter, engine, OriginKey.String(engine.Origin()))
}

// NewOTelExporterFromSource observes any metrics source. attrs are attached
// to every observation.
func NewOTelExporterFromSource(meter metric.Meter, source metricsSource, attrs ...attribute.KeyValue) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{
		source:     source,
		attrs:      attrs,
		counters:   make([]sessionCounter, 0, len(internaldefs.CounterDefs)),
		histograms: make([]latencyHistogram, 0, len(internaldefs.HistogramDefs)),
	}
	observables := make([]metric.Observable, 0, len(internaldefs.CounterDefs)+2*len(internaldefs.HistogramDefs)+1)

	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name,
			metric.WithDescription(def.Help),
			metric.WithUnit("{event}"),
		)
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", def.Name, err)
		}
		e.counters = append(e.counters, sessionCounter{id: def.ID, instrument: ins})
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.HistogramDefs {
		h := latencyHistogram{id: def.ID}
		for i, le := range internaldefs.HistogramBounds {
			h.bounds[i] = attribute.NewSet(append([]attribute.KeyValue{attribute.String("le", le)}, attrs...)...)
		}

		var err error
		h.buckets, err = meter.Int64ObservableGauge(def.Name+"_bucket",
			metric.WithDescription(def.Help+" Cumulative count per upper bound."),
			metric.WithUnit("{refresh}"),
		)
		if err != nil {
			return nil, fmt.Errorf("histogram buckets %s: %w", def.Name, err)
		}
		h.count, err = meter.Int64ObservableGauge(def.Name+"_count",
			metric.WithDescription(def.Help+" Total samples."),
			metric.WithUnit("{refresh}"),
		)
		if err != nil {
			return nil, fmt.Errorf("histogram count %s: %w", def.Name, err)
		}
		observables = append(observables, h.buckets, h.count)
		e.histograms = append(e.histograms, h)
	}

	dropped, err := meter.Int64ObservableCounter("gosession_audit_dropped_total",
		metric.WithDescription("Dropped audit events due to dispatcher backpressure."),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("audit dropped counter: %w", err)
	}
	e.auditDropped = dropped
	observables = append(observables, dropped)

	e.registration, err = meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	common := metric.WithAttributes(e.attrs...)

	for _, c := range e.counters {
		o.ObserveInt64(c.instrument, int64(snapshot.Counters[c.id]), common)
	}
	for _, h := range e.histograms {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[h.id]))
		for i := range cumulative {
			o.ObserveInt64(h.buckets, int64(cumulative[i]), metric.WithAttributeSet(h.bounds[i]))
		}
		o.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]), common)
	}
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()), common)
	return nil
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
