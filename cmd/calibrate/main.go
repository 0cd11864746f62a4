// Package main fits the global diffusion multiplier so that the configured
// plants settle as evenly as possible within the configured step count.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/optimize"

	"github.com/pthm-cable/sap/config"
)

// evalRecord is one row of calibrate_log.csv.
type evalRecord struct {
	Eval       int     `csv:"eval"`
	Loss       float64 `csv:"loss"`
	Worst      float64 `csv:"worst"`
	Multiplier float64 `csv:"global_multiplier"`
}

// formatDuration formats a duration as HH:MM:SS or MM:SS for shorter durations.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Base config YAML file (empty = use defaults)")
	maxEvals := flag.Int("max-evals", 0, "Maximum number of evaluations (0 = use config)")
	outputDir := flag.String("output", "", "Output directory for results")
	flag.Parse()

	if *outputDir == "" {
		log.Fatal("--output is required")
	}

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("failed to create output directory: %v", err)
	}

	// Load base config
	if err := config.Init(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	baseCfg := config.Cfg()

	evals := baseCfg.Calibrate.MaxEvals
	if *maxEvals > 0 {
		evals = *maxEvals
	}

	texts := baseCfg.Garden.Plants
	if len(texts) == 0 {
		texts = []string{baseCfg.Garden.Seed}
	}

	params := NewParamVector(baseCfg)
	evaluator, err := NewFitnessEvaluator(params, baseCfg.Derived.Codes, baseCfg.Diffusion.Steps, texts)
	if err != nil {
		log.Fatalf("failed to set up evaluator: %v", err)
	}

	// Open log file
	logPath := filepath.Join(*outputDir, "calibrate_log.csv")
	logFile, err := os.Create(logPath)
	if err != nil {
		log.Fatalf("failed to create log file: %v", err)
	}
	defer logFile.Close()

	evalCount := 0
	bestLoss := failedLoss
	var bestParams []float64
	startTime := time.Now()

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			raw := params.Denormalize(x)
			clamped := params.Clamp(raw)
			loss := evaluator.Evaluate(clamped)
			evalCount++

			if loss < bestLoss || bestParams == nil {
				bestLoss = loss
				bestParams = clamped
			}

			// Header goes with the first row only
			rec := []evalRecord{{Eval: evalCount, Loss: loss, Worst: evaluator.LastWorst(), Multiplier: clamped[0]}}
			var werr error
			if evalCount == 1 {
				werr = gocsv.Marshal(rec, logFile)
			} else {
				werr = gocsv.MarshalWithoutHeaders(rec, logFile)
			}
			if werr != nil {
				log.Printf("failed to write eval log: %v", werr)
			}

			elapsed := time.Since(startTime)
			avgPerEval := elapsed / time.Duration(evalCount)
			remaining := time.Duration(max(evals-evalCount, 0)) * avgPerEval
			fmt.Printf("Eval %d/%d: multiplier=%.4f loss=%.6f (best=%.6f) | elapsed: %s, ETA: %s\n",
				evalCount, evals, clamped[0], loss, bestLoss,
				formatDuration(elapsed), formatDuration(remaining))

			return loss
		},
	}

	settings := &optimize.Settings{
		FuncEvaluations: evals,
		Concurrent:      0, // Sequential evaluation
	}
	method := &optimize.NelderMead{}

	fmt.Printf("Starting Nelder-Mead calibration over %d plants, steps=%d, max_evals=%d\n",
		len(evaluator.plants), baseCfg.Diffusion.Steps, evals)

	initX := params.Normalize(params.DefaultVector())
	result, err := optimize.Minimize(problem, initX, settings, method)
	if err != nil {
		log.Printf("optimization ended: %v", err)
	}

	// Use best params found (may be from any evaluation, not just final)
	if bestParams == nil && result != nil {
		bestParams = params.Clamp(params.Denormalize(result.X))
	}
	if bestParams == nil {
		log.Fatal("no evaluation completed")
	}

	totalTime := time.Since(startTime)
	fmt.Printf("\nCalibration complete after %d evaluations in %s\n", evalCount, formatDuration(totalTime))
	fmt.Printf("Best loss: %.6f\n", bestLoss)

	fmt.Println("\nBest parameters:")
	for i, spec := range params.Specs {
		fmt.Printf("  %s: %.6f\n", spec.Path, bestParams[i])
	}

	// Save best config
	bestCfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to reload config: %v", err)
	}
	params.ApplyToConfig(bestCfg, bestParams)

	configOutPath := filepath.Join(*outputDir, "best_config.yaml")
	if err := bestCfg.WriteYAML(configOutPath); err != nil {
		log.Printf("failed to write best config: %v", err)
	} else {
		fmt.Printf("\nBest config saved to: %s\n", configOutPath)
	}
}
