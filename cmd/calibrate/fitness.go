package main

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/pthm-cable/sap/diffusion"
	"github.com/pthm-cable/sap/symbols"
)

// failedLoss is returned for parameters that make a diffusion call fail or
// produce non-finite amounts.
const failedLoss = 1e9

// plantCase is one plant and the amounts it should settle at.
type plantCase struct {
	str    *symbols.String
	target []float64
}

// FitnessEvaluator diffuses every calibration plant with candidate
// parameters and scores how far the result is from an even spread.
type FitnessEvaluator struct {
	params *ParamVector
	codes  diffusion.Codes
	steps  int
	plants []plantCase

	mu        sync.Mutex
	lastWorst float64 // worst per-plant loss of the most recent Evaluate call
}

// NewFitnessEvaluator parses texts and computes each plant's target.
func NewFitnessEvaluator(params *ParamVector, codes diffusion.Codes, steps int, texts []string) (*FitnessEvaluator, error) {
	fe := &FitnessEvaluator{params: params, codes: codes, steps: steps}
	for i, text := range texts {
		str, err := symbols.Parse(text)
		if err != nil {
			return nil, fmt.Errorf("plant %d: %w", i+1, err)
		}
		target, err := evenSpread(str, codes)
		if err != nil {
			return nil, fmt.Errorf("plant %d: %w", i+1, err)
		}
		if len(target) == 0 {
			continue
		}
		fe.plants = append(fe.plants, plantCase{str: str, target: target})
	}
	if len(fe.plants) == 0 {
		return nil, fmt.Errorf("no plant has resource slots")
	}
	return fe, nil
}

// evenSpread returns, per slot, the mean amount of that resource over the
// nodes carrying it. This is where diffusion settles when no capacity binds.
func evenSpread(str *symbols.String, codes diffusion.Codes) ([]float64, error) {
	g, err := diffusion.ExtractInPlace(str, codes)
	if err != nil {
		return nil, err
	}
	amounts := g.Amounts.Latest()

	var sums []float64
	var counts []int
	for _, n := range g.Nodes {
		for r := 0; r < int(n.Resources); r++ {
			if r == len(sums) {
				sums = append(sums, 0)
				counts = append(counts, 0)
			}
			sums[r] += float64(amounts[int(n.AmountIndex)+r])
			counts[r]++
		}
	}

	target := make([]float64, len(amounts))
	for _, n := range g.Nodes {
		for r := 0; r < int(n.Resources); r++ {
			target[int(n.AmountIndex)+r] = sums[r] / float64(counts[r])
		}
	}
	return target, nil
}

// LastWorst returns the worst per-plant loss of the most recent evaluation.
func (fe *FitnessEvaluator) LastWorst() float64 {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastWorst
}

// Evaluate computes the mean per-plant RMS distance from the target after
// diffusing with raw parameters (lower = better).
func (fe *FitnessEvaluator) Evaluate(raw []float64) float64 {
	clamped := fe.params.Clamp(raw)
	opts := diffusion.Options{Steps: fe.steps, Multiplier: float32(clamped[0])}

	losses := make([]float64, len(fe.plants))
	var eg errgroup.Group
	eg.SetLimit(runtime.GOMAXPROCS(0))
	for i := range fe.plants {
		pc := &fe.plants[i]
		eg.Go(func() error {
			losses[i] = fe.plantLoss(pc, opts)
			return nil
		})
	}
	eg.Wait()

	fe.mu.Lock()
	fe.lastWorst = floats.Max(losses)
	fe.mu.Unlock()
	return floats.Sum(losses) / float64(len(losses))
}

func (fe *FitnessEvaluator) plantLoss(pc *plantCase, opts diffusion.Options) float64 {
	res, err := diffusion.RunInPlace(pc.str.Clone(), fe.codes, opts)
	if err != nil {
		return failedLoss
	}
	got := make([]float64, len(res.Amounts))
	for i, v := range res.Amounts {
		got[i] = float64(v)
	}
	if floats.HasNaN(got) {
		return failedLoss
	}
	loss := floats.Distance(got, pc.target, 2) / math.Sqrt(float64(len(got)))
	if math.IsInf(loss, 0) {
		return failedLoss
	}
	return loss
}
