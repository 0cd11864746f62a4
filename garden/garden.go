// Package garden hosts many independent plants in an ECS world and diffuses
// every plant once per generation.
package garden

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"slices"

	"github.com/mlange-42/ark/ecs"
	"golang.org/x/sync/errgroup"

	"github.com/pthm-cable/sap/config"
	"github.com/pthm-cable/sap/diffusion"
	"github.com/pthm-cable/sap/symbols"
	"github.com/pthm-cable/sap/telemetry"
)

// Options configures a garden.
type Options struct {
	Codes        diffusion.Codes
	Mode         string // config.ModeInPlace or config.ModeRewrite
	ClearAmounts bool   // rewrite mode only
	Workers      int    // 0 = GOMAXPROCS
}

// OptionsFromConfig returns the garden options of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Codes:        cfg.Derived.Codes,
		Mode:         cfg.Diffusion.Mode,
		ClearAmounts: cfg.Diffusion.ClearAmountsOnRewrite,
		Workers:      cfg.Derived.Workers,
	}
}

// Garden holds the complete host state.
type Garden struct {
	world *ecs.World

	plantMapper *ecs.Map4[Plant, Structure, Transport, Vitals]
	plantFilter *ecs.Filter4[Plant, Structure, Transport, Vitals]

	plantMap     *ecs.Map1[Plant]
	structureMap *ecs.Map1[Structure]
	transportMap *ecs.Map1[Transport]
	vitalsMap    *ecs.Map1[Vitals]

	opts Options
	perf *telemetry.PerfCollector

	// State
	generation int
	nextID     uint32
	byID       map[uint32]ecs.Entity
	jobs       []job
}

// job is one plant's work for a generation, filled in by a worker.
type job struct {
	entity    ecs.Entity
	id        uint32
	str       *symbols.String
	transport Transport

	done   bool
	next   *symbols.String
	result diffusion.Result
	err    error
}

// Failure is a plant whose diffusion call returned an error.
type Failure struct {
	PlantID uint32
	Err     error
}

// Report is the outcome of one generation.
type Report struct {
	Generation int
	Runs       []telemetry.RunStats
	Failures   []Failure
}

// New creates an empty garden.
func New(opts Options) (*Garden, error) {
	if err := opts.Codes.Validate(); err != nil {
		return nil, err
	}
	switch opts.Mode {
	case config.ModeInPlace, config.ModeRewrite:
	default:
		return nil, fmt.Errorf("garden: unknown mode %q", opts.Mode)
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}

	world := ecs.NewWorld()
	return &Garden{
		world:        world,
		plantMapper:  ecs.NewMap4[Plant, Structure, Transport, Vitals](world),
		plantFilter:  ecs.NewFilter4[Plant, Structure, Transport, Vitals](world),
		plantMap:     ecs.NewMap1[Plant](world),
		structureMap: ecs.NewMap1[Structure](world),
		transportMap: ecs.NewMap1[Transport](world),
		vitalsMap:    ecs.NewMap1[Vitals](world),
		opts:         opts,
		nextID:       1,
		byID:         make(map[uint32]ecs.Entity),
	}, nil
}

// SetPerf attaches a perf collector whose phases Step marks.
func (g *Garden) SetPerf(perf *telemetry.PerfCollector) {
	g.perf = perf
}

// Spawn parses text and adds it as a new plant. It returns the plant ID.
func (g *Garden) Spawn(text string, transport Transport) (uint32, error) {
	str, err := symbols.Parse(text)
	if err != nil {
		return 0, fmt.Errorf("parsing plant: %w", err)
	}
	return g.SpawnString(str, transport)
}

// SpawnString adds str as a new plant. The garden takes ownership of str.
func (g *Garden) SpawnString(str *symbols.String, transport Transport) (uint32, error) {
	if err := str.Validate(); err != nil {
		return 0, err
	}
	id := g.nextID
	g.spawn(Plant{ID: id}, str, transport)
	return id, nil
}

func (g *Garden) spawn(plant Plant, str *symbols.String, transport Transport) {
	structure := Structure{Str: str}
	vitals := Vitals{}
	entity := g.plantMapper.NewEntity(&plant, &structure, &transport, &vitals)
	g.byID[plant.ID] = entity
	if plant.ID >= g.nextID {
		g.nextID = plant.ID + 1
	}
}

// Remove deletes a plant. It reports whether the plant existed.
func (g *Garden) Remove(id uint32) bool {
	entity, ok := g.byID[id]
	if !ok {
		return false
	}
	delete(g.byID, id)
	g.world.RemoveEntity(entity)
	return true
}

// Len returns the number of plants.
func (g *Garden) Len() int {
	return len(g.byID)
}

// Generation returns the number of completed generations.
func (g *Garden) Generation() int {
	return g.generation
}

// Step runs one generation: every plant is diffused once, concurrently
// across plants. A plant whose call fails keeps its structure and is listed
// in the report. Step returns an error only when ctx is done, after applying
// the plants that finished.
func (g *Garden) Step(ctx context.Context) (Report, error) {
	g.startPhase(telemetry.PhaseDiffuse)
	g.collectJobs()

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.opts.Workers)
	for i := range g.jobs {
		j := &g.jobs[i]
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			g.run(j)
			return nil
		})
	}
	waitErr := eg.Wait()

	g.startPhase(telemetry.PhaseVitals)
	g.generation++
	report := g.applyJobs()
	return report, waitErr
}

// collectJobs snapshots every plant into g.jobs. Structural changes are not
// allowed while a query is open, so workers never touch the world.
func (g *Garden) collectJobs() {
	g.jobs = g.jobs[:0]
	query := g.plantFilter.Query()
	for query.Next() {
		plant, structure, transport, _ := query.Get()
		g.jobs = append(g.jobs, job{
			entity:    query.Entity(),
			id:        plant.ID,
			str:       structure.Str,
			transport: *transport,
		})
	}
	// Query order follows archetype storage; sort for stable reports
	slices.SortFunc(g.jobs, func(a, b job) int {
		return cmp.Compare(a.id, b.id)
	})
}

// run diffuses one plant. It touches only j and the string j owns.
func (g *Garden) run(j *job) {
	opts := diffusion.Options{
		Steps:        j.transport.Steps,
		Multiplier:   j.transport.Multiplier,
		ClearAmounts: g.opts.ClearAmounts,
	}
	defer func() { j.done = true }()

	if g.opts.Mode == config.ModeInPlace {
		j.result, j.err = diffusion.RunInPlace(j.str, g.opts.Codes, opts)
		j.next = j.str
		return
	}

	target, remap := diffusion.CopyRewrite(j.str)
	j.result, j.err = diffusion.RunRewrite(j.str, target, remap, g.opts.Codes, opts)
	if j.err == nil {
		j.next = target
	}
}

func (g *Garden) applyJobs() Report {
	report := Report{Generation: g.generation}
	for i := range g.jobs {
		j := &g.jobs[i]
		if !j.done {
			continue
		}
		vitals := g.vitalsMap.Get(j.entity)
		if j.err != nil {
			vitals.Failed = true
			report.Failures = append(report.Failures, Failure{PlantID: j.id, Err: j.err})
			slog.Debug("diffusion failed", "plant", j.id, "generation", g.generation, "error", j.err)
			continue
		}

		g.structureMap.Get(j.entity).Str = j.next
		g.plantMap.Get(j.entity).Generation++

		rs := telemetry.NewRunStats(g.generation, j.id, g.opts.Mode, j.result)
		*vitals = Vitals{
			Total:     j.result.FinalTotal,
			Nodes:     j.result.Nodes,
			Slots:     j.result.Slots,
			Saturated: rs.Saturated,
		}
		report.Runs = append(report.Runs, rs)

		// Drop references the next generation must not see
		j.str, j.next, j.result = nil, nil, diffusion.Result{}
	}
	return report
}

func (g *Garden) startPhase(phase string) {
	if g.perf != nil {
		g.perf.StartPhase(phase)
	}
}

// PlantInfo is a read-only view of one plant.
type PlantInfo struct {
	Plant     Plant
	Transport Transport
	Vitals    Vitals
	Structure string // text notation
}

// Plants returns every plant ordered by ID.
func (g *Garden) Plants() []PlantInfo {
	var plants []PlantInfo
	query := g.plantFilter.Query()
	for query.Next() {
		plant, structure, transport, vitals := query.Get()
		plants = append(plants, PlantInfo{
			Plant:     *plant,
			Transport: *transport,
			Vitals:    *vitals,
			Structure: symbols.Format(structure.Str),
		})
	}
	slices.SortFunc(plants, func(a, b PlantInfo) int {
		return cmp.Compare(a.Plant.ID, b.Plant.ID)
	})
	return plants
}

// Plant returns the view of one plant.
func (g *Garden) Plant(id uint32) (PlantInfo, bool) {
	entity, ok := g.byID[id]
	if !ok || !g.world.Alive(entity) {
		return PlantInfo{}, false
	}
	return PlantInfo{
		Plant:     *g.plantMap.Get(entity),
		Transport: *g.transportMap.Get(entity),
		Vitals:    *g.vitalsMap.Get(entity),
		Structure: symbols.Format(g.structureMap.Get(entity).Str),
	}, true
}
