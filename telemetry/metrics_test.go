package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	runs := []RunStats{
		{PlantID: 1, Mode: "in_place", Folded: 2, Dropped: 1},
		{PlantID: 2, Mode: "in_place", Folded: 1},
	}
	m.ObserveGeneration(runs, 1, 3, 5*time.Millisecond)
	m.ObserveGeneration(runs[:1], 0, 3, 5*time.Millisecond)
	m.ObserveWindow(WindowStats{TotalAmount: 42, MaxAbsDrift: 0.5})

	if got := testutil.ToFloat64(m.generations); got != 2 {
		t.Errorf("generations = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.runs.WithLabelValues("in_place")); got != 3 {
		t.Errorf("runs = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.failures); got != 1 {
		t.Errorf("failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.folded); got != 5 {
		t.Errorf("folded = %v, want 5", got)
	}
	if got := testutil.ToFloat64(m.dropped); got != 2 {
		t.Errorf("dropped = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.totalAmount); got != 42 {
		t.Errorf("total amount = %v, want 42", got)
	}
	if n := testutil.CollectAndCount(m.generationDuration); n != 1 {
		t.Errorf("expected one histogram, got %d", n)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveGeneration([]RunStats{{Mode: "rewrite"}}, 1, 1, time.Second)
	m.ObserveWindow(WindowStats{})
}
