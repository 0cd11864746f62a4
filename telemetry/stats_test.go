package telemetry

import (
	"math"
	"testing"

	"github.com/pthm-cable/sap/diffusion"
)

func TestPercentile(t *testing.T) {
	tests := []struct {
		name   string
		sorted []float64
		p      float64
		want   float64
	}{
		{"empty slice", []float64{}, 0.5, 0},
		{"single element", []float64{5.0}, 0.5, 5.0},
		{"p0", []float64{1, 2, 3, 4, 5}, 0.0, 1.0},
		{"p100", []float64{1, 2, 3, 4, 5}, 1.0, 5.0},
		{"p50 odd", []float64{1, 2, 3, 4, 5}, 0.5, 3.0},
		{"p50 even", []float64{1, 2, 3, 4}, 0.5, 2.5},
		{"p10", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 0.1, 1.9},
		{"p90", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 0.9, 9.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Percentile(tt.sorted, tt.p)
			if math.Abs(got-tt.want) > 0.001 {
				t.Errorf("Percentile(%v, %v) = %v, want %v", tt.sorted, tt.p, got, tt.want)
			}
		})
	}
}

func TestComputeFillStats(t *testing.T) {
	values := []float64{1.0, 0.9, 0.8, 0.7, 0.6, 0.5, 0.4, 0.3, 0.2, 0.1}
	mean, std, p10, p50, p90 := ComputeFillStats(values)

	if math.Abs(mean-0.55) > 0.001 {
		t.Errorf("mean = %v, want 0.55", mean)
	}
	// Population std of 0.1..1.0
	if math.Abs(std-0.2872) > 0.001 {
		t.Errorf("std = %v, want ~0.2872", std)
	}
	if math.Abs(p10-0.19) > 0.01 {
		t.Errorf("p10 = %v, want ~0.19", p10)
	}
	if math.Abs(p50-0.55) > 0.01 {
		t.Errorf("p50 = %v, want ~0.55", p50)
	}
	if math.Abs(p90-0.91) > 0.01 {
		t.Errorf("p90 = %v, want ~0.91", p90)
	}
	if values[0] != 1.0 {
		t.Error("input slice should not be sorted in place")
	}
}

func TestComputeFillStatsEmpty(t *testing.T) {
	mean, std, p10, p50, p90 := ComputeFillStats(nil)

	if mean != 0 || std != 0 || p10 != 0 || p50 != 0 || p90 != 0 {
		t.Error("empty slice should return all zeros")
	}
}

func TestMaxAbs(t *testing.T) {
	if got := MaxAbs([]float64{0.5, -2, 1}); got != 2 {
		t.Errorf("MaxAbs = %v, want 2", got)
	}
	if got := MaxAbs(nil); got != 0 {
		t.Errorf("MaxAbs(nil) = %v, want 0", got)
	}
}

func TestNewRunStats(t *testing.T) {
	res := diffusion.Result{
		Nodes:        2,
		Slots:        4,
		Steps:        3,
		Folded:       1,
		InitialTotal: 10,
		FinalTotal:   10.5,
		Amounts:      []float32{5, 0, 2.5, 3},
		Capacities:   []float32{5, 10, 10, 0},
	}
	rs := NewRunStats(7, 42, "in_place", res)

	if rs.Generation != 7 || rs.PlantID != 42 || rs.Mode != "in_place" {
		t.Errorf("identity fields not copied: %+v", rs)
	}
	if rs.Drift != 0.5 {
		t.Errorf("drift = %v, want 0.5", rs.Drift)
	}
	// 5/5 and 3/0 are saturated, 0/10 is depleted
	if rs.Saturated != 2 || rs.Depleted != 1 {
		t.Errorf("saturated = %d depleted = %d, want 2 and 1", rs.Saturated, rs.Depleted)
	}
	// the zero-capacity slot has no fill ratio
	if len(rs.Fill) != 3 {
		t.Fatalf("expected 3 fill ratios, got %v", rs.Fill)
	}
	if math.Abs(rs.FillMean-0.4166667) > 1e-6 {
		t.Errorf("fill mean = %v, want ~0.4167", rs.FillMean)
	}
}
