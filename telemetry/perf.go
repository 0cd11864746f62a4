package telemetry

import (
	"log/slog"
	"time"
)

// Phase names for one garden generation.
const (
	PhaseDiffuse   = "diffuse"
	PhaseVitals    = "vitals"
	PhaseTelemetry = "telemetry"
	PhaseOutput    = "output"
)

// phaseOrder is the logging order of the phases.
var phaseOrder = []string{PhaseDiffuse, PhaseVitals, PhaseTelemetry, PhaseOutput}

// PerfSample holds timing data for a single generation.
type PerfSample struct {
	GenerationDuration time.Duration
	Runs               int
	Phases             map[string]time.Duration
}

// PerfCollector tracks performance metrics over a rolling window.
type PerfCollector struct {
	windowSize    int
	samples       []PerfSample
	writeIndex    int
	sampleCount   int
	currentPhases map[string]time.Duration
	genStart      time.Time
	phaseStart    time.Time
	lastPhase     string
}

// NewPerfCollector creates a new performance collector.
// windowSize: number of generations to average over.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 10
	}
	return &PerfCollector{
		windowSize:    windowSize,
		samples:       make([]PerfSample, windowSize),
		currentPhases: make(map[string]time.Duration),
	}
}

// StartGeneration begins timing a new generation.
func (p *PerfCollector) StartGeneration() {
	p.genStart = time.Now()
	p.currentPhases = make(map[string]time.Duration)
	p.lastPhase = ""
}

// StartPhase begins timing a specific phase.
func (p *PerfCollector) StartPhase(phase string) {
	now := time.Now()
	// End previous phase if any
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}
	p.phaseStart = now
	p.lastPhase = phase
}

// EndGeneration finishes timing the current generation, in which runs
// diffusion calls completed, and records the sample.
func (p *PerfCollector) EndGeneration(runs int) {
	now := time.Now()
	// End final phase
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}

	p.samples[p.writeIndex] = PerfSample{
		GenerationDuration: now.Sub(p.genStart),
		Runs:               runs,
		Phases:             p.currentPhases,
	}
	p.writeIndex = (p.writeIndex + 1) % p.windowSize
	if p.sampleCount < p.windowSize {
		p.sampleCount++
	}
}

// PerfStats holds aggregated performance statistics.
type PerfStats struct {
	// Generation timing
	AvgGenDuration time.Duration
	MinGenDuration time.Duration
	MaxGenDuration time.Duration

	// Phase breakdown (average durations)
	PhaseAvg map[string]time.Duration

	// Phase percentages of total generation time
	PhasePct map[string]float64

	// Throughput
	GensPerSecond float64
	RunsPerSecond float64
}

// Stats computes aggregated statistics over the current window.
func (p *PerfCollector) Stats() PerfStats {
	if p.sampleCount == 0 {
		return PerfStats{
			PhaseAvg: make(map[string]time.Duration),
			PhasePct: make(map[string]float64),
		}
	}

	var totalGen time.Duration
	var minGen, maxGen time.Duration
	var totalRuns int
	phaseSum := make(map[string]time.Duration)

	// Iterate over valid samples
	for i := 0; i < p.sampleCount; i++ {
		s := p.samples[i]
		totalGen += s.GenerationDuration
		totalRuns += s.Runs

		if i == 0 || s.GenerationDuration < minGen {
			minGen = s.GenerationDuration
		}
		if s.GenerationDuration > maxGen {
			maxGen = s.GenerationDuration
		}

		for phase, dur := range s.Phases {
			phaseSum[phase] += dur
		}
	}

	avgGen := totalGen / time.Duration(p.sampleCount)

	// Calculate phase averages and percentages
	phaseAvg := make(map[string]time.Duration)
	phasePct := make(map[string]float64)
	for phase, sum := range phaseSum {
		phaseAvg[phase] = sum / time.Duration(p.sampleCount)
		if avgGen > 0 {
			phasePct[phase] = float64(phaseAvg[phase]) / float64(avgGen) * 100
		}
	}

	// Calculate throughput
	var gensPerSec, runsPerSec float64
	if avgGen > 0 {
		gensPerSec = float64(time.Second) / float64(avgGen)
	}
	if totalGen > 0 {
		runsPerSec = float64(totalRuns) / totalGen.Seconds()
	}

	return PerfStats{
		AvgGenDuration: avgGen,
		MinGenDuration: minGen,
		MaxGenDuration: maxGen,
		PhaseAvg:       phaseAvg,
		PhasePct:       phasePct,
		GensPerSecond:  gensPerSec,
		RunsPerSecond:  runsPerSec,
	}
}

// LogStats logs performance statistics.
func (s PerfStats) LogStats() {
	attrs := []any{
		"avg_gen_us", s.AvgGenDuration.Microseconds(),
		"min_gen_us", s.MinGenDuration.Microseconds(),
		"max_gen_us", s.MaxGenDuration.Microseconds(),
		"gens_per_sec", int(s.GensPerSecond),
		"runs_per_sec", int(s.RunsPerSecond),
	}

	for _, phase := range phaseOrder {
		if pct, ok := s.PhasePct[phase]; ok && pct > 0.1 {
			attrs = append(attrs, phase+"_pct", int(pct*10)/10.0)
		}
	}

	slog.Info("perf", attrs...)
}

// LogValue implements slog.LogValuer for structured logging.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("avg_gen_us", s.AvgGenDuration.Microseconds()),
		slog.Int64("min_gen_us", s.MinGenDuration.Microseconds()),
		slog.Int64("max_gen_us", s.MaxGenDuration.Microseconds()),
		slog.Float64("gens_per_sec", s.GensPerSecond),
		slog.Float64("runs_per_sec", s.RunsPerSecond),
	}

	for phase, pct := range s.PhasePct {
		attrs = append(attrs, slog.Float64(phase+"_pct", pct))
	}

	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is a flat struct for CSV export of performance stats.
type PerfStatsCSV struct {
	WindowEnd    int     `csv:"window_end"`
	AvgGenUS     int64   `csv:"avg_gen_us"`
	MinGenUS     int64   `csv:"min_gen_us"`
	MaxGenUS     int64   `csv:"max_gen_us"`
	GensPerSec   float64 `csv:"gens_per_sec"`
	RunsPerSec   float64 `csv:"runs_per_sec"`
	DiffusePct   float64 `csv:"diffuse_pct"`
	VitalsPct    float64 `csv:"vitals_pct"`
	TelemetryPct float64 `csv:"telemetry_pct"`
	OutputPct    float64 `csv:"output_pct"`
}

// ToCSV converts PerfStats to a flat CSV-friendly struct.
func (s PerfStats) ToCSV(windowEnd int) PerfStatsCSV {
	return PerfStatsCSV{
		WindowEnd:    windowEnd,
		AvgGenUS:     s.AvgGenDuration.Microseconds(),
		MinGenUS:     s.MinGenDuration.Microseconds(),
		MaxGenUS:     s.MaxGenDuration.Microseconds(),
		GensPerSec:   s.GensPerSecond,
		RunsPerSec:   s.RunsPerSecond,
		DiffusePct:   s.PhasePct[PhaseDiffuse],
		VitalsPct:    s.PhasePct[PhaseVitals],
		TelemetryPct: s.PhasePct[PhaseTelemetry],
		OutputPct:    s.PhasePct[PhaseOutput],
	}
}
