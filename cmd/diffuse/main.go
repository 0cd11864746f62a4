// Package main diffuses plants given in text notation and prints the result.
// Plants come from the arguments, or one per line from stdin.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/sap/config"
	"github.com/pthm-cable/sap/diffusion"
	"github.com/pthm-cable/sap/symbols"
	"github.com/pthm-cable/sap/telemetry"
)

// traceRecord is one slot amount after one step.
type traceRecord struct {
	Plant  int     `csv:"plant"`
	Step   int     `csv:"step"`
	Slot   int     `csv:"slot"`
	Amount float32 `csv:"amount"`
}

type runner struct {
	codes diffusion.Codes
	opts  diffusion.Options
	mode  string
	trace []traceRecord // nil unless tracing
}

func main() {
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	steps := flag.Int("steps", -1, "Diffusion steps (-1 = use config)")
	multiplier := flag.Float64("multiplier", 0, "Global multiplier (0 = use config)")
	mode := flag.String("mode", "", "in_place or rewrite (empty = use config)")
	tracePath := flag.String("trace", "", "Write per-step slot amounts to this CSV file")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	r := &runner{codes: cfg.Derived.Codes, opts: cfg.Options(), mode: cfg.Diffusion.Mode}
	if *steps >= 0 {
		r.opts.Steps = *steps
	}
	if *multiplier != 0 {
		r.opts.Multiplier = float32(*multiplier)
	}
	if *mode != "" {
		r.mode = *mode
	}
	if r.mode != config.ModeInPlace && r.mode != config.ModeRewrite {
		slog.Error("unknown mode", "mode", r.mode)
		os.Exit(2)
	}
	if *tracePath != "" {
		r.trace = []traceRecord{}
	}

	texts := flag.Args()
	if len(texts) == 0 {
		var err error
		if texts, err = readLines(os.Stdin); err != nil {
			slog.Error("failed to read stdin", "error", err)
			os.Exit(1)
		}
	}

	failed := false
	for i, text := range texts {
		if err := r.process(os.Stdout, i+1, text); err != nil {
			slog.Error("plant failed", "plant", i+1, "error", err)
			failed = true
		}
	}

	if *tracePath != "" {
		if err := writeTrace(*tracePath, r.trace); err != nil {
			slog.Error("failed to write trace", "error", err)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

// process diffuses one plant and writes its resulting text notation to w.
func (r *runner) process(w io.Writer, plant int, text string) error {
	str, err := symbols.Parse(text)
	if err != nil {
		return err
	}

	opts := r.opts
	if r.trace != nil {
		opts.Observer = func(step int, amounts []float32) {
			for slot, v := range amounts {
				r.trace = append(r.trace, traceRecord{Plant: plant, Step: step, Slot: slot, Amount: v})
			}
		}
	}

	var res diffusion.Result
	out := str
	if r.mode == config.ModeInPlace {
		res, err = diffusion.RunInPlace(str, r.codes, opts)
	} else {
		target, remap := diffusion.CopyRewrite(str)
		res, err = diffusion.RunRewrite(str, target, remap, r.codes, opts)
		out = target
	}
	if err != nil {
		return err
	}

	slog.Info("diffused", "run", telemetry.NewRunStats(0, uint32(plant), r.mode, res))
	_, err = fmt.Fprintln(w, symbols.Format(out))
	return err
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, sc.Err()
}

func writeTrace(path string, records []traceRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := gocsv.Marshal(records, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
