package telemetry

import (
	"log/slog"
	"math"
	"sort"

	"github.com/pthm-cable/sap/diffusion"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// RunStats summarizes one diffusion call on one plant.
type RunStats struct {
	Generation int    `csv:"generation"`
	PlantID    uint32 `csv:"plant"`
	Mode       string `csv:"mode"`

	Nodes   int `csv:"nodes"`
	Slots   int `csv:"slots"`
	Steps   int `csv:"steps"`
	Folded  int `csv:"folded"`
	Dropped int `csv:"dropped"`
	Cleared int `csv:"cleared"`

	// Amount totals before and after, for conservation checks
	InitialTotal float64 `csv:"initial_total"`
	FinalTotal   float64 `csv:"final_total"`
	Drift        float64 `csv:"drift"` // FinalTotal - InitialTotal

	// Fill ratio (amount / capacity) over slots with positive capacity
	FillMean  float64 `csv:"fill_mean"`
	FillStd   float64 `csv:"fill_std"`
	Saturated int     `csv:"saturated"` // Slots at or above capacity
	Depleted  int     `csv:"depleted"`  // Slots at or below zero

	Fill []float64 `csv:"-"`
}

// NewRunStats builds the stats of a finished diffusion call.
func NewRunStats(generation int, plantID uint32, mode string, res diffusion.Result) RunStats {
	rs := RunStats{
		Generation:   generation,
		PlantID:      plantID,
		Mode:         mode,
		Nodes:        res.Nodes,
		Slots:        res.Slots,
		Steps:        res.Steps,
		Folded:       res.Folded,
		Dropped:      res.Dropped,
		Cleared:      res.Cleared,
		InitialTotal: res.InitialTotal,
		FinalTotal:   res.FinalTotal,
		Drift:        res.FinalTotal - res.InitialTotal,
	}

	rs.Fill = make([]float64, 0, len(res.Amounts))
	for i, amount := range res.Amounts {
		capacity := res.Capacities[i]
		if amount >= capacity {
			rs.Saturated++
		}
		if amount <= 0 {
			rs.Depleted++
		}
		if capacity > 0 {
			rs.Fill = append(rs.Fill, float64(amount)/float64(capacity))
		}
	}
	if len(rs.Fill) > 0 {
		rs.FillMean, rs.FillStd = stat.PopMeanStdDev(rs.Fill, nil)
	}
	return rs
}

// LogValue implements slog.LogValuer for structured logging.
func (s RunStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("generation", s.Generation),
		slog.Int("plant", int(s.PlantID)),
		slog.String("mode", s.Mode),
		slog.Int("nodes", s.Nodes),
		slog.Int("slots", s.Slots),
		slog.Int("folded", s.Folded),
		slog.Int("dropped", s.Dropped),
		slog.Float64("final_total", s.FinalTotal),
		slog.Float64("drift", s.Drift),
		slog.Float64("fill_mean", s.FillMean),
	)
}

// WindowStats holds aggregated statistics over a window of generations.
type WindowStats struct {
	WindowStartGen int `csv:"-"`
	WindowEndGen   int `csv:"window_end"`

	// Counts at window end
	Plants int `csv:"plants"`
	Nodes  int `csv:"nodes"`
	Slots  int `csv:"slots"`

	// Events during window
	Runs    int `csv:"runs"`
	Errors  int `csv:"errors"`
	Folded  int `csv:"folded"`
	Dropped int `csv:"dropped"`
	Cleared int `csv:"cleared"`

	// Conservation
	TotalAmount float64 `csv:"total_amount"`  // Sum over plants of their latest final totals
	MaxAbsDrift float64 `csv:"max_abs_drift"` // Largest |drift| of any run in the window

	// Fill distribution over every slot of every plant at window end
	FillMean float64 `csv:"fill_mean"`
	FillStd  float64 `csv:"fill_std"`
	FillP10  float64 `csv:"fill_p10"`
	FillP50  float64 `csv:"fill_p50"`
	FillP90  float64 `csv:"fill_p90"`

	SaturatedPct float64 `csv:"saturated_pct"`
	DepletedPct  float64 `csv:"depleted_pct"`
}

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	// Linear interpolation
	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// ComputeFillStats calculates mean, std, and percentiles from fill ratios.
func ComputeFillStats(values []float64) (mean, std, p10, p50, p90 float64) {
	if len(values) == 0 {
		return 0, 0, 0, 0, 0
	}

	mean, std = stat.PopMeanStdDev(values, nil)

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	p10 = Percentile(sorted, 0.10)
	p50 = Percentile(sorted, 0.50)
	p90 = Percentile(sorted, 0.90)

	return mean, std, p10, p50, p90
}

// MaxAbs returns the largest absolute value in values, or 0 if empty.
func MaxAbs(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	abs := make([]float64, len(values))
	for i, v := range values {
		abs[i] = math.Abs(v)
	}
	return floats.Max(abs)
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("window_start", s.WindowStartGen),
		slog.Int("window_end", s.WindowEndGen),
		slog.Int("plants", s.Plants),
		slog.Int("nodes", s.Nodes),
		slog.Int("slots", s.Slots),
		slog.Int("runs", s.Runs),
		slog.Int("errors", s.Errors),
		slog.Int("folded", s.Folded),
		slog.Int("dropped", s.Dropped),
		slog.Int("cleared", s.Cleared),
		slog.Float64("total_amount", s.TotalAmount),
		slog.Float64("max_abs_drift", s.MaxAbsDrift),
		slog.Float64("fill_mean", s.FillMean),
		slog.Float64("fill_std", s.FillStd),
		slog.Float64("fill_p10", s.FillP10),
		slog.Float64("fill_p50", s.FillP50),
		slog.Float64("fill_p90", s.FillP90),
		slog.Float64("saturated_pct", s.SaturatedPct),
		slog.Float64("depleted_pct", s.DepletedPct),
	)
}

// LogStats logs the window stats using slog.
func (s WindowStats) LogStats() {
	slog.Info("stats",
		"window_end", s.WindowEndGen,
		"plants", s.Plants,
		"nodes", s.Nodes,
		"runs", s.Runs,
		"errors", s.Errors,
		"folded", s.Folded,
		"dropped", s.Dropped,
		"total_amount", s.TotalAmount,
		"max_abs_drift", s.MaxAbsDrift,
		"fill_mean", s.FillMean,
		"fill_p50", s.FillP50,
		"saturated_pct", s.SaturatedPct,
		"depleted_pct", s.DepletedPct,
	)
}
