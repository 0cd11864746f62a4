package sim

import (
	"log/slog"

	"github.com/pthm-cable/sap/telemetry"
)

// flushTelemetry checks if the stats window should be flushed and handles bookmarks.
func (s *Sim) flushTelemetry() {
	gen := s.garden.Generation()
	if !s.collector.ShouldFlush(gen) {
		return
	}

	stats := s.collector.Flush(gen)
	perfStats := s.perfCollector.Stats()

	s.metrics.ObserveWindow(stats)

	if s.statsCallback != nil {
		s.statsCallback(stats)
	}

	if s.logStats {
		stats.LogStats()
		perfStats.LogStats()
	}

	if err := s.outputManager.WriteTelemetry(stats); err != nil {
		slog.Error("failed to write telemetry", "error", err)
	}
	if err := s.outputManager.WritePerf(perfStats, stats.WindowEndGen); err != nil {
		slog.Error("failed to write perf", "error", err)
	}

	for _, bm := range s.bookmarkDetector.Check(stats) {
		if s.logStats {
			bm.LogBookmark()
		}
		if err := s.outputManager.WriteBookmark(bm); err != nil {
			slog.Error("failed to write bookmark", "error", err)
		}
		s.saveSnapshot(&bm)
	}
}

// saveSnapshot writes the garden to the store, and to the snapshot directory
// or the output directory when none is set.
func (s *Sim) saveSnapshot(bookmark *telemetry.Bookmark) {
	snapshot := s.garden.Snapshot()
	snapshot.RunID = s.runID
	snapshot.Bookmark = bookmark

	if s.store != nil {
		if err := s.store.Put(snapshot); err != nil {
			slog.Error("failed to store snapshot", "error", err)
		}
	}

	var path string
	var err error
	switch {
	case s.snapshotDir != "":
		path, err = telemetry.SaveSnapshot(snapshot, s.snapshotDir)
	case s.outputManager != nil:
		path, err = s.outputManager.WriteSnapshot(snapshot)
	default:
		return
	}
	if err != nil {
		slog.Error("failed to save snapshot", "error", err)
		return
	}
	if path == "" {
		return
	}

	slog.Info("snapshot saved", "path", path, "generation", snapshot.Generation)
}
