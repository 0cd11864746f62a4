package diffusion

import (
	"fmt"

	"github.com/pthm-cable/sap/symbols"
)

// Options configures one diffusion call.
type Options struct {
	Steps      int
	Multiplier float32

	// ClearAmounts zeroes every remaining amount descriptor in the target
	// after application. Only read by RunRewrite; RunInPlace always clears.
	ClearAmounts bool

	Observer StepObserver
}

// Result summarizes one diffusion call. Amounts and Capacities alias the
// buffers of the call's graph, which nothing else references.
type Result struct {
	Nodes        int
	Slots        int
	Steps        int
	Folded       int
	Dropped      int
	Cleared      int
	InitialTotal float64
	FinalTotal   float64
	Amounts      []float32
	Capacities   []float32
}

// RunInPlace diffuses str in place: nodes are written back where they were
// read and every amount symbol is emptied so it is not folded again on the
// next call. A returned error leaves str untouched.
func RunInPlace(str *symbols.String, codes Codes, opts Options) (Result, error) {
	if err := codes.Validate(); err != nil {
		return Result{}, err
	}
	if err := str.Validate(); err != nil {
		return Result{}, err
	}

	g, err := ExtractInPlace(str, codes)
	if err != nil {
		return Result{}, fmt.Errorf("extracting graph: %w", err)
	}
	return simulateAndApply(g, str, codes, opts, true)
}

// RunRewrite diffuses src into target, the string a rewrite pass produced
// from src. remap holds one entry per source symbol. Only target is mutated.
//
// Validation of both strings and the remap table happens before anything is
// written, so a returned error leaves target untouched.
func RunRewrite(src, target *symbols.String, remap []MatchRemap, codes Codes, opts Options) (Result, error) {
	if err := codes.Validate(); err != nil {
		return Result{}, err
	}
	if err := src.Validate(); err != nil {
		return Result{}, fmt.Errorf("source: %w", err)
	}
	if err := target.Validate(); err != nil {
		return Result{}, fmt.Errorf("target: %w", err)
	}
	if err := validateRemap(src, target, remap, codes); err != nil {
		return Result{}, err
	}

	g, err := ExtractRewrite(src, target, remap, codes)
	if err != nil {
		return Result{}, fmt.Errorf("extracting graph: %w", err)
	}
	return simulateAndApply(g, target, codes, opts, opts.ClearAmounts)
}

func simulateAndApply(g *Graph, target *symbols.String, codes Codes, opts Options, clearAmounts bool) (Result, error) {
	res := Result{
		Nodes:        len(g.Nodes),
		Slots:        g.Slots(),
		Steps:        max(opts.Steps, 0),
		Folded:       g.Folded,
		Dropped:      g.Dropped,
		InitialTotal: total(g.Amounts.Latest()),
	}

	job := NewJob(g, opts.Multiplier)
	job.Observer = opts.Observer
	job.Diffuse(g.Amounts, opts.Steps)

	cleared, err := Apply(g, target, codes, clearAmounts)
	if err != nil {
		return Result{}, fmt.Errorf("applying results: %w", err)
	}

	res.Cleared = cleared
	res.Amounts = g.Amounts.Latest()
	res.Capacities = g.Capacities
	res.FinalTotal = total(res.Amounts)
	return res, nil
}

func total(amounts []float32) float64 {
	var sum float64
	for _, v := range amounts {
		sum += float64(v)
	}
	return sum
}
