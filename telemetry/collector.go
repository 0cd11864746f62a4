// Package telemetry provides diffusion run statistics, bookmarking, perf
// tracking and snapshots for the garden host.
package telemetry

// Collector accumulates run stats within generation windows and produces WindowStats.
type Collector struct {
	windowGenerations int

	// Current window tracking
	windowStartGen int

	// Event counters for current window
	runs    int
	errors  int
	folded  int
	dropped int
	cleared int
	drifts  []float64

	// Latest run per plant, for window-end distributions
	latest map[uint32]RunStats
}

// NewCollector creates a new stats collector.
// windowGenerations: how many generations each stats window spans.
func NewCollector(windowGenerations int) *Collector {
	if windowGenerations < 1 {
		windowGenerations = 1
	}
	return &Collector{
		windowGenerations: windowGenerations,
		latest:            make(map[uint32]RunStats),
	}
}

// RecordRun records a finished diffusion call.
func (c *Collector) RecordRun(rs RunStats) {
	c.runs++
	c.folded += rs.Folded
	c.dropped += rs.Dropped
	c.cleared += rs.Cleared
	c.drifts = append(c.drifts, rs.Drift)
	c.latest[rs.PlantID] = rs
}

// RecordError records a diffusion call that returned an error.
func (c *Collector) RecordError() {
	c.errors++
}

// Forget drops the latest run of a removed plant.
func (c *Collector) Forget(plantID uint32) {
	delete(c.latest, plantID)
}

// ShouldFlush returns true if enough generations have passed to flush the window.
func (c *Collector) ShouldFlush(currentGen int) bool {
	return currentGen-c.windowStartGen >= c.windowGenerations
}

// Flush produces a WindowStats and resets counters for the next window.
func (c *Collector) Flush(currentGen int) WindowStats {
	stats := WindowStats{
		WindowStartGen: c.windowStartGen,
		WindowEndGen:   currentGen,
		Plants:         len(c.latest),
		Runs:           c.runs,
		Errors:         c.errors,
		Folded:         c.folded,
		Dropped:        c.dropped,
		Cleared:        c.cleared,
		MaxAbsDrift:    MaxAbs(c.drifts),
	}

	var fill []float64
	var saturated, depleted int
	for _, rs := range c.latest {
		stats.Nodes += rs.Nodes
		stats.Slots += rs.Slots
		stats.TotalAmount += rs.FinalTotal
		saturated += rs.Saturated
		depleted += rs.Depleted
		fill = append(fill, rs.Fill...)
	}
	stats.FillMean, stats.FillStd, stats.FillP10, stats.FillP50, stats.FillP90 = ComputeFillStats(fill)
	if stats.Slots > 0 {
		stats.SaturatedPct = float64(saturated) / float64(stats.Slots) * 100
		stats.DepletedPct = float64(depleted) / float64(stats.Slots) * 100
	}

	// Reset for next window
	c.windowStartGen = currentGen
	c.runs = 0
	c.errors = 0
	c.folded = 0
	c.dropped = 0
	c.cleared = 0
	c.drifts = c.drifts[:0]

	return stats
}

// WindowGenerations returns the number of generations per window.
func (c *Collector) WindowGenerations() int {
	return c.windowGenerations
}
