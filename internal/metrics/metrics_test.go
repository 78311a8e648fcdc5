package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/and161185/garage-keeper/internal/model"
)

func TestObserver_RecordSweep(t *testing.T) {
	reg := prometheus.NewRegistry()
	o, err := New(reg)
	require.NoError(t, err)

	o.RecordSweep(model.SweepResult{Created: 3, Duplicates: 1, Failed: 2}, 150*time.Millisecond, nil)
	o.RecordSweep(model.SweepResult{Truncated: true}, time.Second, nil)
	o.RecordSweep(model.SweepResult{}, time.Millisecond, errors.New("db down"))

	require.Equal(t, 3.0, testutil.ToFloat64(o.sweepItems.WithLabelValues("created")))
	require.Equal(t, 1.0, testutil.ToFloat64(o.sweepItems.WithLabelValues("duplicate")))
	require.Equal(t, 2.0, testutil.ToFloat64(o.sweepItems.WithLabelValues("failed")))
	require.Equal(t, 1.0, testutil.ToFloat64(o.sweepRuns.WithLabelValues("ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(o.sweepRuns.WithLabelValues("truncated")))
	require.Equal(t, 1.0, testutil.ToFloat64(o.sweepRuns.WithLabelValues("error")))
}

func TestObserver_RecordReconcile(t *testing.T) {
	reg := prometheus.NewRegistry()
	o, err := New(reg)
	require.NoError(t, err)

	o.RecordReconcile(model.ReconcileResult{Created: 1, Updated: 2}, nil)

	require.Equal(t, 1.0, testutil.ToFloat64(o.reconcileItems.WithLabelValues("created")))
	require.Equal(t, 2.0, testutil.ToFloat64(o.reconcileItems.WithLabelValues("updated")))
	require.Equal(t, 1.0, testutil.ToFloat64(o.reconcileRuns.WithLabelValues("ok")))
}

func TestNew_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := New(reg)
	require.NoError(t, err)
	second, err := New(reg)
	require.NoError(t, err)

	second.RecordReconcile(model.ReconcileResult{Created: 1}, nil)
	require.Equal(t, 1.0, testutil.ToFloat64(first.reconcileItems.WithLabelValues("created")))
}

func TestObserver_NilIsSafe(t *testing.T) {
	var o *Observer
	o.RecordSweep(model.SweepResult{Created: 1}, time.Second, nil)
	o.RecordReconcile(model.ReconcileResult{}, nil)
}
