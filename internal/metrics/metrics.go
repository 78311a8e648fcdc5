// Package metrics exports sweep and reconcile telemetry to Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/and161185/garage-keeper/internal/model"
)

const namespace = "garagekeeper"

// Observer implements service.Observer on top of Prometheus collectors.
type Observer struct {
	sweepRuns      *prometheus.CounterVec
	sweepDuration  prometheus.Histogram
	sweepItems     *prometheus.CounterVec
	reconcileRuns  *prometheus.CounterVec
	reconcileItems *prometheus.CounterVec
}

// New registers the collectors with reg (DefaultRegisterer when nil).
// Collectors registered by an earlier call are reused.
func New(reg prometheus.Registerer) (*Observer, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	o := &Observer{
		sweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "runs_total",
			Help:      "Reminder sweeps by outcome.",
		}, []string{"outcome"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "duration_seconds",
			Help:      "Wall time of a reminder sweep.",
			Buckets:   prometheus.DefBuckets,
		}),
		sweepItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "reminders_total",
			Help:      "Reminder offsets handled by the sweep, by result.",
		}, []string{"result"}),
		reconcileRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "runs_total",
			Help:      "Derived event reconciliations by outcome.",
		}, []string{"outcome"}),
		reconcileItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "events_total",
			Help:      "Derived events touched by reconciliation, by result.",
		}, []string{"result"}),
	}

	var err error
	if o.sweepRuns, err = register(reg, o.sweepRuns); err != nil {
		return nil, err
	}
	if o.sweepDuration, err = register(reg, o.sweepDuration); err != nil {
		return nil, err
	}
	if o.sweepItems, err = register(reg, o.sweepItems); err != nil {
		return nil, err
	}
	if o.reconcileRuns, err = register(reg, o.reconcileRuns); err != nil {
		return nil, err
	}
	if o.reconcileItems, err = register(reg, o.reconcileItems); err != nil {
		return nil, err
	}
	return o, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register metric: %w", err)
	}
	return c, nil
}

// RecordSweep tracks one sweep run.
func (o *Observer) RecordSweep(res model.SweepResult, dur time.Duration, err error) {
	if o == nil {
		return
	}
	o.sweepDuration.Observe(dur.Seconds())
	o.sweepRuns.WithLabelValues(outcome(err, res.Truncated)).Inc()
	o.sweepItems.WithLabelValues("created").Add(float64(res.Created))
	o.sweepItems.WithLabelValues("duplicate").Add(float64(res.Duplicates))
	o.sweepItems.WithLabelValues("failed").Add(float64(res.Failed))
}

// RecordReconcile tracks one reconciliation.
func (o *Observer) RecordReconcile(res model.ReconcileResult, err error) {
	if o == nil {
		return
	}
	o.reconcileRuns.WithLabelValues(outcome(err, false)).Inc()
	o.reconcileItems.WithLabelValues("created").Add(float64(res.Created))
	o.reconcileItems.WithLabelValues("updated").Add(float64(res.Updated))
	o.reconcileItems.WithLabelValues("failed").Add(float64(res.Failed))
}

func outcome(err error, truncated bool) string {
	switch {
	case err != nil:
		return "error"
	case truncated:
		return "truncated"
	default:
		return "ok"
	}
}
