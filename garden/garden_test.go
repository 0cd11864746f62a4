package garden

import (
	"context"
	"errors"
	"testing"

	"github.com/pthm-cable/sap/config"
	"github.com/pthm-cable/sap/diffusion"
	"github.com/pthm-cable/sap/symbols"
)

func init() {
	config.MustInit("")
}

func newGarden(t *testing.T, mode string, workers int) *Garden {
	t.Helper()
	g, err := New(Options{Codes: diffusion.DefaultCodes(), Mode: mode, Workers: workers})
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func spawn(t *testing.T, g *Garden, text string, steps int, multiplier float32) uint32 {
	t.Helper()
	id, err := g.Spawn(text, Transport{Steps: steps, Multiplier: multiplier})
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func step(t *testing.T, g *Garden) Report {
	t.Helper()
	report, err := g.Step(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return report
}

func TestStepInPlace(t *testing.T) {
	g := newGarden(t, config.ModeInPlace, 2)
	id := spawn(t, g, "n(0.5, 4, 10)Fn(0.5, 0, 10)", 1, 1)

	report := step(t, g)
	if report.Generation != 1 || len(report.Runs) != 1 || len(report.Failures) != 0 {
		t.Fatalf("unexpected report %+v", report)
	}

	p, ok := g.Plant(id)
	if !ok {
		t.Fatal("plant missing after step")
	}
	if p.Structure != "n(0.5, 2, 10)Fn(0.5, 2, 10)" {
		t.Errorf("got %s", p.Structure)
	}
	if p.Plant.Generation != 1 {
		t.Errorf("plant generation = %d, want 1", p.Plant.Generation)
	}
	if p.Vitals.Total != 4 || p.Vitals.Nodes != 2 || p.Vitals.Slots != 2 {
		t.Errorf("unexpected vitals %+v", p.Vitals)
	}
	if report.Runs[0].PlantID != id || report.Runs[0].Mode != config.ModeInPlace {
		t.Errorf("unexpected run stats %+v", report.Runs[0])
	}
}

func TestRewriteModeMatchesInPlace(t *testing.T) {
	texts := []string{
		"n(0.5, 0, 20)F[n(0.5, 0, 20)][n(0.5, 12, 20)]",
		"n(0.5, 0, 10)Fn(0.1, 0, 10)Fn(0.5, 8, 10)",
		"n(0.5, 4, 10)a(2)[n(0.5, 0, 10)a(1)]a(1)",
	}
	inPlace := newGarden(t, config.ModeInPlace, 4)
	rewrite, err := New(Options{Codes: diffusion.DefaultCodes(), Mode: config.ModeRewrite, ClearAmounts: true, Workers: 4})
	if err != nil {
		t.Fatal(err)
	}
	for _, text := range texts {
		spawn(t, inPlace, text, 3, 0.8)
		spawn(t, rewrite, text, 3, 0.8)
	}

	for gen := 0; gen < 4; gen++ {
		step(t, inPlace)
		step(t, rewrite)
	}

	a, b := inPlace.Plants(), rewrite.Plants()
	for i := range a {
		if a[i].Structure != b[i].Structure {
			t.Errorf("plant %d: in-place %s, rewrite %s", a[i].Plant.ID, a[i].Structure, b[i].Structure)
		}
	}
}

func TestWorkerCountDoesNotChangeResults(t *testing.T) {
	serial := newGarden(t, config.ModeInPlace, 1)
	parallel := newGarden(t, config.ModeInPlace, 8)
	for i := 0; i < 32; i++ {
		text := "n(0.5, 12, 20, 6, 10)F[n(0.5, 0, 20, 0, 10)a(1, 0.5)][n(0.25, 0, 20, 0, 10)]"
		spawn(t, serial, text, 5, float32(i%4+1)*0.2)
		spawn(t, parallel, text, 5, float32(i%4+1)*0.2)
	}

	for gen := 0; gen < 3; gen++ {
		rs, rp := step(t, serial), step(t, parallel)
		if len(rs.Runs) != 32 || len(rp.Runs) != 32 {
			t.Fatalf("generation %d: expected 32 runs, got %d and %d", gen, len(rs.Runs), len(rp.Runs))
		}
		for i := range rs.Runs {
			if rs.Runs[i].PlantID != rp.Runs[i].PlantID {
				t.Fatalf("reports not ordered by plant: %d vs %d", rs.Runs[i].PlantID, rp.Runs[i].PlantID)
			}
		}
	}

	a, b := serial.Plants(), parallel.Plants()
	for i := range a {
		if a[i].Structure != b[i].Structure {
			t.Errorf("plant %d differs between worker counts", a[i].Plant.ID)
		}
	}
}

func TestFailedPlantKeepsStructure(t *testing.T) {
	for _, mode := range []string{config.ModeInPlace, config.ModeRewrite} {
		g := newGarden(t, mode, 2)
		bad := spawn(t, g, "n(0.5, 1, 2)[n]", 1, 1)
		good := spawn(t, g, "n(0.5, 4, 10)n(0.5, 0, 10)", 1, 1)

		report := step(t, g)
		if len(report.Failures) != 1 || report.Failures[0].PlantID != bad {
			t.Fatalf("%s: expected one failure for plant %d, got %+v", mode, bad, report.Failures)
		}
		if !errors.Is(report.Failures[0].Err, symbols.ErrLayout) {
			t.Errorf("%s: expected ErrLayout, got %v", mode, report.Failures[0].Err)
		}
		if len(report.Runs) != 1 || report.Runs[0].PlantID != good {
			t.Errorf("%s: healthy plant should still run, got %+v", mode, report.Runs)
		}

		p, _ := g.Plant(bad)
		if p.Structure != "n(0.5, 1, 2)[n]" || !p.Vitals.Failed || p.Plant.Generation != 0 {
			t.Errorf("%s: failed plant changed: %+v", mode, p)
		}
	}
}

func TestRemove(t *testing.T) {
	g := newGarden(t, config.ModeInPlace, 1)
	a := spawn(t, g, "n(0.5, 1, 2)", 1, 1)
	b := spawn(t, g, "n(0.5, 3, 4)", 1, 1)

	if !g.Remove(a) {
		t.Fatal("expected Remove to find plant")
	}
	if g.Remove(a) {
		t.Error("second Remove should report false")
	}
	if g.Len() != 1 {
		t.Errorf("expected 1 plant, got %d", g.Len())
	}
	if _, ok := g.Plant(a); ok {
		t.Error("removed plant still visible")
	}

	report := step(t, g)
	if len(report.Runs) != 1 || report.Runs[0].PlantID != b {
		t.Errorf("expected only plant %d to run, got %+v", b, report.Runs)
	}
}

func TestCanceledStep(t *testing.T) {
	g := newGarden(t, config.ModeInPlace, 2)
	id := spawn(t, g, "n(0.5, 4, 10)n(0.5, 0, 10)", 1, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := g.Step(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(report.Runs) != 0 {
		t.Errorf("no plant should run after cancel, got %d", len(report.Runs))
	}
	if p, _ := g.Plant(id); p.Structure != "n(0.5, 4, 10)n(0.5, 0, 10)" {
		t.Errorf("plant changed by canceled step: %s", p.Structure)
	}
}

func TestSnapshotRestore(t *testing.T) {
	g := newGarden(t, config.ModeRewrite, 2)
	spawn(t, g, "n(0.5, 4, 10)[n(0.5, 0, 10)]", 2, 0.5)
	removed := spawn(t, g, "n(0.5, 1, 2)", 1, 1)
	last := spawn(t, g, "n(0.25, 8, 8)n(0.25, 0, 8)", 1, 1)
	g.Remove(removed)
	step(t, g)
	step(t, g)

	snap := g.Snapshot()
	if snap.Generation != 2 || len(snap.Plants) != 2 || snap.Mode != config.ModeRewrite {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	restored, err := Restore(snap, Options{Codes: diffusion.DefaultCodes(), Mode: config.ModeRewrite})
	if err != nil {
		t.Fatal(err)
	}
	if restored.Generation() != 2 {
		t.Errorf("generation = %d, want 2", restored.Generation())
	}

	before, after := g.Plants(), restored.Plants()
	for i := range before {
		if before[i].Plant != after[i].Plant || before[i].Structure != after[i].Structure || before[i].Transport != after[i].Transport {
			t.Errorf("plant %d not restored: %+v vs %+v", before[i].Plant.ID, before[i], after[i])
		}
	}

	id := spawn(t, restored, "n(0.5)", 1, 1)
	if id != last+1 {
		t.Errorf("new plant id = %d, want %d", id, last+1)
	}
}

func TestRestoreRejectsDuplicateIDs(t *testing.T) {
	g := newGarden(t, config.ModeInPlace, 1)
	spawn(t, g, "n(0.5, 1, 2)", 1, 1)
	snap := g.Snapshot()
	snap.Plants = append(snap.Plants, snap.Plants[0])

	if _, err := Restore(snap, Options{Codes: diffusion.DefaultCodes(), Mode: config.ModeInPlace}); err == nil {
		t.Error("expected error for duplicate plant id")
	}
}

func TestPopulate(t *testing.T) {
	cfg := config.Cfg()
	g := newGarden(t, config.ModeInPlace, 1)

	n, err := g.Populate(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if n != cfg.Garden.SeedCopies || g.Len() != n {
		t.Errorf("expected %d seed copies, spawned %d (len %d)", cfg.Garden.SeedCopies, n, g.Len())
	}

	if _, err := g.Populate(cfg, []string{"n(0.5, 1, 2)", "n(0.5"}); err == nil {
		t.Error("expected parse error for second plant")
	}
}

func TestNewRejectsBadOptions(t *testing.T) {
	if _, err := New(Options{Codes: diffusion.DefaultCodes(), Mode: "sideways"}); err == nil {
		t.Error("expected error for unknown mode")
	}
	if _, err := New(Options{Codes: diffusion.Codes{}, Mode: config.ModeInPlace}); err == nil {
		t.Error("expected error for duplicated codes")
	}
}
