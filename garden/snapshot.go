package garden

import (
	"fmt"
	"log/slog"

	"github.com/pthm-cable/sap/symbols"
	"github.com/pthm-cable/sap/telemetry"
)

// Snapshot captures every plant in text notation.
func (g *Garden) Snapshot() *telemetry.Snapshot {
	snap := &telemetry.Snapshot{
		Version:    telemetry.SnapshotVersion,
		Generation: g.generation,
		Mode:       g.opts.Mode,
	}
	for _, p := range g.Plants() {
		snap.Plants = append(snap.Plants, telemetry.PlantState{
			ID:         p.Plant.ID,
			Generation: p.Plant.Generation,
			Steps:      p.Transport.Steps,
			Multiplier: p.Transport.Multiplier,
			Structure:  p.Structure,
		})
	}
	return snap
}

// Restore rebuilds a garden from a snapshot, keeping plant IDs and counters.
func Restore(snap *telemetry.Snapshot, opts Options) (*Garden, error) {
	g, err := New(opts)
	if err != nil {
		return nil, err
	}
	if snap.Mode != "" && snap.Mode != opts.Mode {
		slog.Warn("snapshot mode differs from configured mode", "snapshot", snap.Mode, "configured", opts.Mode)
	}

	for _, ps := range snap.Plants {
		if _, dup := g.byID[ps.ID]; dup || ps.ID == 0 {
			return nil, fmt.Errorf("snapshot: invalid or duplicate plant id %d", ps.ID)
		}
		str, err := symbols.Parse(ps.Structure)
		if err != nil {
			return nil, fmt.Errorf("snapshot: plant %d: %w", ps.ID, err)
		}
		g.spawn(Plant{ID: ps.ID, Generation: ps.Generation}, str, Transport{Steps: ps.Steps, Multiplier: ps.Multiplier})
	}
	g.generation = snap.Generation
	return g, nil
}
