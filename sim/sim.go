// Package sim drives a garden generation by generation and routes every
// report through telemetry: window stats, perf, lifetimes, bookmarks, CSV
// output and snapshots.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pthm-cable/sap/config"
	"github.com/pthm-cable/sap/garden"
	"github.com/pthm-cable/sap/store"
	"github.com/pthm-cable/sap/telemetry"
)

// Options configures a run.
type Options struct {
	LogStats    bool   // log window and perf stats via slog
	OutputDir   string // CSV logs and config snapshot (empty = disabled)
	SnapshotDir string // bookmark snapshots (empty = OutputDir/snapshots)

	RunID   string             // tags snapshots and logs (empty = new UUID)
	Store   *store.Store       // also receives every snapshot (optional)
	Metrics *telemetry.Metrics // Prometheus export (optional)
}

// Sim owns a garden and its telemetry.
type Sim struct {
	garden *garden.Garden

	collector        *telemetry.Collector
	perfCollector    *telemetry.PerfCollector
	lifetimeTracker  *telemetry.LifetimeTracker
	bookmarkDetector *telemetry.BookmarkDetector
	outputManager    *telemetry.OutputManager

	store   *store.Store
	metrics *telemetry.Metrics

	runID       string
	logStats    bool
	snapshotDir string
	closed      bool

	// statsCallback, if set, receives every flushed window.
	statsCallback func(telemetry.WindowStats)
}

// New wraps g. Plants already in g are registered as born at g's current
// generation.
func New(cfg *config.Config, g *garden.Garden, opts Options) (*Sim, error) {
	om, err := telemetry.NewOutputManager(opts.OutputDir)
	if err != nil {
		return nil, err
	}
	if err := om.WriteConfig(cfg); err != nil {
		om.Close()
		return nil, err
	}

	s := &Sim{
		garden:           g,
		collector:        telemetry.NewCollector(cfg.Telemetry.LogEvery),
		perfCollector:    telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow),
		lifetimeTracker:  telemetry.NewLifetimeTracker(),
		bookmarkDetector: telemetry.NewBookmarkDetector(10),
		outputManager:    om,
		store:            opts.Store,
		metrics:          opts.Metrics,
		runID:            opts.RunID,
		logStats:         opts.LogStats,
		snapshotDir:      opts.SnapshotDir,
	}
	if s.runID == "" {
		s.runID = uuid.NewString()
	}
	g.SetPerf(s.perfCollector)
	for _, p := range g.Plants() {
		s.lifetimeTracker.Register(p.Plant.ID, g.Generation())
	}
	return s, nil
}

// RunID returns the ID that tags this run's snapshots.
func (s *Sim) RunID() string {
	return s.runID
}

// Garden returns the driven garden.
func (s *Sim) Garden() *garden.Garden {
	return s.garden
}

// Lifetimes returns the per-plant lifetime tracker.
func (s *Sim) Lifetimes() *telemetry.LifetimeTracker {
	return s.lifetimeTracker
}

// SetStatsCallback sets a function that receives every flushed window.
func (s *Sim) SetStatsCallback(fn func(telemetry.WindowStats)) {
	s.statsCallback = fn
}

// Spawn adds a plant and starts tracking its lifetime.
func (s *Sim) Spawn(text string, transport garden.Transport) (uint32, error) {
	id, err := s.garden.Spawn(text, transport)
	if err != nil {
		return 0, err
	}
	s.lifetimeTracker.Register(id, s.garden.Generation())
	return id, nil
}

// Remove deletes a plant and returns its lifetime stats, or nil if the
// plant did not exist.
func (s *Sim) Remove(id uint32) *telemetry.LifetimeStats {
	if !s.garden.Remove(id) {
		return nil
	}
	s.collector.Forget(id)
	return s.lifetimeTracker.Remove(id)
}

// Update runs one generation.
func (s *Sim) Update(ctx context.Context) error {
	start := time.Now()
	s.perfCollector.StartGeneration()

	report, stepErr := s.garden.Step(ctx)

	s.perfCollector.StartPhase(telemetry.PhaseTelemetry)
	for _, rs := range report.Runs {
		s.collector.RecordRun(rs)
		s.lifetimeTracker.RecordRun(rs)
	}
	for _, f := range report.Failures {
		s.collector.RecordError()
		s.lifetimeTracker.RecordError(f.PlantID)
		slog.Warn("diffusion failed", "plant", f.PlantID, "generation", report.Generation, "error", f.Err)
	}

	s.perfCollector.StartPhase(telemetry.PhaseOutput)
	var outErr error
	if len(report.Runs) > 0 {
		if err := s.outputManager.WriteRuns(report.Runs); err != nil {
			outErr = fmt.Errorf("generation %d: %w", report.Generation, err)
		}
	}
	s.perfCollector.EndGeneration(len(report.Runs))
	s.metrics.ObserveGeneration(report.Runs, len(report.Failures), s.garden.Len(), time.Since(start))

	s.flushTelemetry()

	if stepErr != nil {
		return stepErr
	}
	return outErr
}

// Run updates until generations have completed or ctx is done. Zero
// generations runs until ctx is done. A canceled context is not an error.
func (s *Sim) Run(ctx context.Context, generations int) error {
	for generations <= 0 || s.garden.Generation() < generations {
		if ctx.Err() != nil {
			slog.Info("run interrupted", "generation", s.garden.Generation())
			return nil
		}
		if err := s.Update(ctx); err != nil && ctx.Err() == nil {
			return err
		}
	}
	slog.Info("generations reached", "generation", s.garden.Generation())
	return nil
}

// Close writes a final snapshot when output or snapshots are enabled and
// closes the CSV files. Later calls do nothing.
func (s *Sim) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.saveSnapshot(nil)
	return s.outputManager.Close()
}
