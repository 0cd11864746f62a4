package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pthm-cable/sap/config"
	"github.com/pthm-cable/sap/garden"
	"github.com/pthm-cable/sap/sim"
	"github.com/pthm-cable/sap/store"
	"github.com/pthm-cable/sap/telemetry"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run returns the process exit code. Deferred cleanup runs before main exits.
func run(args []string) int {
	// CLI flags
	fs := flag.NewFlagSet("sap", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config.yaml (empty = use defaults)")
	plantsFile := fs.String("plants-file", "", "File with one plant per line (overrides garden.plants)")
	generations := fs.Int("generations", 0, "Stop at generation N (0 = use config)")
	logStats := fs.Bool("log-stats", false, "Output stats via slog")
	outputDir := fs.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	snapshotDir := fs.String("snapshot-dir", "", "Directory for snapshot files")
	resume := fs.String("resume", "", "Snapshot file to resume from")
	storeDir := fs.String("store-dir", "", "BadgerDB directory that keeps every snapshot")
	resumeLatest := fs.Bool("resume-latest", false, "Resume from the latest snapshot in -store-dir")
	metricsAddr := fs.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Initialize config before anything else
	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}
	cfg := config.Cfg()

	maxGen := cfg.Garden.Generations
	if *generations > 0 {
		maxGen = *generations
	}

	var st *store.Store
	if *storeDir != "" {
		var err error
		if st, err = store.Open(*storeDir); err != nil {
			slog.Error("failed to open store", "error", err)
			return 1
		}
		defer st.Close()
	} else if *resumeLatest {
		slog.Error("-resume-latest needs -store-dir")
		return 2
	}

	snap, err := loadResume(*resume, st, *resumeLatest)
	if err != nil {
		slog.Error("failed to load snapshot", "error", err)
		return 1
	}

	g, err := buildGarden(cfg, *plantsFile, snap)
	if err != nil {
		slog.Error("failed to build garden", "error", err)
		return 1
	}

	opts := sim.Options{
		LogStats:    *logStats,
		OutputDir:   *outputDir,
		SnapshotDir: *snapshotDir,
		Store:       st,
	}
	if snap != nil {
		opts.RunID = snap.RunID
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		opts.Metrics = telemetry.NewMetrics(reg)
		srv := serveMetrics(*metricsAddr, reg)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	s, err := sim.New(cfg, g, opts)
	if err != nil {
		slog.Error("failed to set up output", "error", err)
		return 1
	}

	slog.Info("starting garden",
		"run_id", s.RunID(),
		"plants", g.Len(),
		"generation", g.Generation(),
		"generations", maxGen,
		"mode", cfg.Diffusion.Mode,
		"workers", cfg.Derived.Workers,
	)

	runErr := s.Run(ctx, maxGen)
	if err := s.Close(); err != nil {
		slog.Error("failed to close output", "error", err)
	}
	if runErr != nil {
		slog.Error("run failed", "error", runErr)
		return 1
	}
	return 0
}

// loadResume returns the snapshot to resume from, or nil for a fresh run.
func loadResume(path string, st *store.Store, latest bool) (*telemetry.Snapshot, error) {
	switch {
	case path != "":
		return telemetry.LoadSnapshot(path)
	case latest:
		snap, err := st.Latest()
		if errors.Is(err, store.ErrNotFound) {
			slog.Info("store is empty, starting fresh")
			return nil, nil
		}
		return snap, err
	}
	return nil, nil
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
		}
	}()
	slog.Info("serving metrics", "addr", addr)
	return srv
}

func buildGarden(cfg *config.Config, plantsFile string, snap *telemetry.Snapshot) (*garden.Garden, error) {
	opts := garden.OptionsFromConfig(cfg)
	if snap != nil {
		slog.Info("resuming from snapshot", "run_id", snap.RunID, "generation", snap.Generation, "plants", len(snap.Plants))
		return garden.Restore(snap, opts)
	}

	var texts []string
	if plantsFile != "" {
		var err error
		if texts, err = readPlants(plantsFile); err != nil {
			return nil, err
		}
	}

	g, err := garden.New(opts)
	if err != nil {
		return nil, err
	}
	if _, err := g.Populate(cfg, texts); err != nil {
		return nil, err
	}
	return g, nil
}

// readPlants returns the non-blank lines of path that do not start with #.
func readPlants(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening plants file: %w", err)
	}
	defer f.Close()

	var texts []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		texts = append(texts, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading plants file: %w", err)
	}
	return texts, nil
}
