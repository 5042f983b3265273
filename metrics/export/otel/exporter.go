package otel

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrEthical07/tenantauth"
	internalmetrics "github.com/MrEthical07/tenantauth/internal/metrics"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// Source is satisfied by *tenantauth.Engine.
type Source interface {
	MetricsSnapshot() tenantauth.MetricsSnapshot
	AuditDropped() uint64
}

type observedCounter struct {
	id         tenantauth.MetricID
	instrument metric.Int64ObservableCounter
}

type observedHistogram struct {
	id      tenantauth.MetricID
	buckets [internalmetrics.HistogramBucketCount]metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// Exporter holds the callback registration; Close removes it.
type Exporter struct {
	source       Source
	registration metric.Registration
	counters     []observedCounter
	histograms   []observedHistogram
	auditDropped metric.Int64ObservableCounter
}

// bucketSuffix names bucket i of the latency histogram, e.g. "0.005" or "inf".
func bucketSuffix(i int) string {
	if i >= len(internalmetrics.HistogramBounds) {
		return "inf"
	}
	return strconv.FormatFloat(internalmetrics.HistogramBounds[i], 'f', -1, 64)
}

func NewExporter(meter metric.Meter, source Source) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{
		source:     source,
		counters:   make([]observedCounter, 0, len(internalmetrics.CounterDefs)),
		histograms: make([]observedHistogram, 0, len(internalmetrics.HistogramDefs)),
	}
	observables := make([]metric.Observable, 0, len(internalmetrics.CounterDefs)+len(internalmetrics.HistogramDefs)*(internalmetrics.HistogramBucketCount+1)+1)

	for _, def := range internalmetrics.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", def.Name, err)
		}
		e.counters = append(e.counters, observedCounter{id: def.ID, instrument: ins})
		observables = append(observables, ins)
	}

	for _, def := range internalmetrics.HistogramDefs {
		h := observedHistogram{id: def.ID}
		for i := range h.buckets {
			name := def.Name + "_bucket_le_" + bucketSuffix(i)
			ins, err := meter.Int64ObservableGauge(name, metric.WithDescription("Cumulative histogram bucket count."))
			if err != nil {
				return nil, fmt.Errorf("create histogram bucket gauge %s: %w", name, err)
			}
			h.buckets[i] = ins
			observables = append(observables, ins)
		}
		countName := def.Name + "_count"
		countIns, err := meter.Int64ObservableGauge(countName, metric.WithDescription("Histogram total sample count."))
		if err != nil {
			return nil, fmt.Errorf("create histogram count gauge %s: %w", countName, err)
		}
		h.count = countIns
		observables = append(observables, countIns)
		e.histograms = append(e.histograms, h)
	}

	auditDropped, err := meter.Int64ObservableCounter(
		"tenantauth_audit_dropped_total",
		metric.WithDescription("Audit events dropped because the dispatcher buffer was full."),
	)
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	e.auditDropped = auditDropped
	observables = append(observables, auditDropped)

	registration, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		snap := e.source.MetricsSnapshot()
		for _, c := range e.counters {
			o.ObserveInt64(c.instrument, int64(snap.Counters[c.id]))
		}
		for _, h := range e.histograms {
			cumulative := internalmetrics.CumulativeBuckets(snap.Histograms[h.id])
			for i := range cumulative {
				o.ObserveInt64(h.buckets[i], int64(cumulative[i]))
			}
			o.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]))
		}
		o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
		return nil
	}, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}

	e.registration = registration
	return e, nil
}

func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
