package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/metric"

	trustcore "github.com/RedBox-TN/Backend-sub000"
	"github.com/RedBox-TN/Backend-sub000/metrics/export/internaldefs"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// Source is satisfied by *trustcore.Engine.
type Source = internaldefs.Source

// latencyInstruments mirror one engine histogram as cumulative bucket gauges
// plus a sample count.
type latencyInstruments struct {
	id      trustcore.MetricID
	buckets [8]metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

type auditInstrument struct {
	read       func(Source) uint64
	instrument metric.Int64ObservableCounter
}

// Exporter keeps its callback registered until Close.
type Exporter struct {
	source       Source
	registration metric.Registration

	counters  map[trustcore.MetricID]metric.Int64ObservableCounter
	latencies []latencyInstruments
	audit     []auditInstrument

	observables []metric.Observable
}

// NewExporter creates the instruments on meter and registers one callback
// that reads a single engine snapshot per collection.
func NewExporter(meter metric.Meter, source Source) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil || isNilEngine(source) {
		return nil, ErrNilSource
	}

	e := &Exporter{
		source:   source,
		counters: make(map[trustcore.MetricID]metric.Int64ObservableCounter, len(internaldefs.CounterDefs)),
	}
	if err := e.createCounters(meter); err != nil {
		return nil, err
	}
	if err := e.createLatencies(meter); err != nil {
		return nil, err
	}
	if err := e.createAudit(meter); err != nil {
		return nil, err
	}

	registration, err := meter.RegisterCallback(e.observe, e.observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = registration
	return e, nil
}

func (e *Exporter) createCounters(meter metric.Meter) error {
	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return fmt.Errorf("counter %s: %w", def.Name, err)
		}
		e.counters[def.ID] = ins
		e.observables = append(e.observables, ins)
	}
	return nil
}

func (e *Exporter) createLatencies(meter metric.Meter) error {
	for _, def := range internaldefs.HistogramDefs {
		li := latencyInstruments{id: def.ID}
		for i, suffix := range internaldefs.HistogramBoundSuffix {
			name := def.Name + "_bucket_le_" + suffix
			ins, err := meter.Int64ObservableGauge(name,
				metric.WithDescription(def.Help+" Cumulative count at or below "+internaldefs.HistogramBounds[i]+"s."),
				metric.WithUnit("{request}"),
			)
			if err != nil {
				return fmt.Errorf("bucket gauge %s: %w", name, err)
			}
			li.buckets[i] = ins
			e.observables = append(e.observables, ins)
		}

		count, err := meter.Int64ObservableGauge(def.Name+"_count", metric.WithDescription(def.Help+" Sample count."))
		if err != nil {
			return fmt.Errorf("count gauge %s: %w", def.Name, err)
		}
		li.count = count
		e.observables = append(e.observables, count)
		e.latencies = append(e.latencies, li)
	}
	return nil
}

func (e *Exporter) createAudit(meter metric.Meter) error {
	for _, def := range internaldefs.AuditCounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return fmt.Errorf("audit counter %s: %w", def.Name, err)
		}
		e.audit = append(e.audit, auditInstrument{read: def.Read, instrument: ins})
		e.observables = append(e.observables, ins)
	}
	return nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for id, ins := range e.counters {
		o.ObserveInt64(ins, int64(snapshot.Counters[id]))
	}

	for _, li := range e.latencies {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[li.id]))
		for i, ins := range li.buckets {
			o.ObserveInt64(ins, int64(cumulative[i]))
		}
		o.ObserveInt64(li.count, int64(cumulative[len(cumulative)-1]))
	}

	for _, a := range e.audit {
		o.ObserveInt64(a.instrument, int64(a.read(e.source)))
	}
	return nil
}

// Close unregisters the callback. Instruments stay on the meter but report
// nothing further.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}

func isNilEngine(source Source) bool {
	eng, ok := source.(*trustcore.Engine)
	return ok && eng == nil
}
