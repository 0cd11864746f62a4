package telemetry

// LifetimeStats tracks per-plant statistics over its lifetime.
type LifetimeStats struct {
	BirthGeneration int
	LastGeneration  int

	// Diffusion calls
	Runs   int
	Errors int

	// Amount symbols
	TotalFolded  int
	TotalDropped int

	// Size and content
	PeakNodes int
	PeakTotal float64
	LastTotal float64
}

// LifetimeTracker manages per-plant lifetime statistics.
type LifetimeTracker struct {
	stats map[uint32]*LifetimeStats
}

// NewLifetimeTracker creates a new lifetime tracker.
func NewLifetimeTracker() *LifetimeTracker {
	return &LifetimeTracker{
		stats: make(map[uint32]*LifetimeStats),
	}
}

// Register creates lifetime stats for a new plant.
func (lt *LifetimeTracker) Register(plantID uint32, birthGeneration int) {
	lt.stats[plantID] = &LifetimeStats{
		BirthGeneration: birthGeneration,
		LastGeneration:  birthGeneration,
	}
}

// Get returns the lifetime stats for a plant, or nil if not found.
func (lt *LifetimeTracker) Get(plantID uint32) *LifetimeStats {
	return lt.stats[plantID]
}

// Remove removes a plant's stats and returns them (for logging).
func (lt *LifetimeTracker) Remove(plantID uint32) *LifetimeStats {
	stats := lt.stats[plantID]
	delete(lt.stats, plantID)
	return stats
}

// RecordRun folds one finished diffusion call into the plant's totals.
func (lt *LifetimeTracker) RecordRun(rs RunStats) {
	s := lt.stats[rs.PlantID]
	if s == nil {
		return
	}
	s.Runs++
	s.LastGeneration = rs.Generation
	s.TotalFolded += rs.Folded
	s.TotalDropped += rs.Dropped
	s.LastTotal = rs.FinalTotal
	if rs.Nodes > s.PeakNodes {
		s.PeakNodes = rs.Nodes
	}
	if rs.FinalTotal > s.PeakTotal {
		s.PeakTotal = rs.FinalTotal
	}
}

// RecordError increments the failed call count.
func (lt *LifetimeTracker) RecordError(plantID uint32) {
	if s := lt.stats[plantID]; s != nil {
		s.Errors++
	}
}

// All returns all tracked stats.
func (lt *LifetimeTracker) All() map[uint32]*LifetimeStats {
	return lt.stats
}

// Count returns the number of tracked plants.
func (lt *LifetimeTracker) Count() int {
	return len(lt.stats)
}
