package diffusion

import (
	"gonum.org/v1/gonum/blas/blas32"
)

// StepObserver receives the latest amounts after each completed step. The
// slice is reused by the next step and must not be retained.
type StepObserver func(step int, amounts []float32)

// Job is the read-only side of a diffusion run.
type Job struct {
	Nodes      []Node
	Capacities []float32
	Multiplier float32
	Observer   StepObserver
}

// NewJob returns the job for g.
func NewJob(g *Graph, multiplier float32) Job {
	return Job{
		Nodes:      g.Nodes,
		Capacities: g.Capacities,
		Multiplier: multiplier,
	}
}

// Diffuse runs steps diffusion steps on buf. Every step reads only the
// snapshot left by the previous one, so edge order within a step does not
// affect the result. steps <= 0 leaves buf untouched.
func (j Job) Diffuse(buf *AmountBuffer, steps int) {
	for step := 0; step < steps; step++ {
		src, dst := buf.swap()
		if len(src) > 0 {
			blas32.Copy(
				blas32.Vector{N: len(src), Inc: 1, Data: src},
				blas32.Vector{N: len(dst), Inc: 1, Data: dst},
			)
		}

		for i := range j.Nodes {
			j.diffuseEdge(&j.Nodes[i], src, dst)
		}

		if j.Observer != nil {
			j.Observer(step, dst)
		}
	}
}

// diffuseEdge moves resources between node and its parent.
func (j Job) diffuseEdge(node *Node, src, dst []float32) {
	if node.Parent < 0 {
		return
	}
	parent := &j.Nodes[node.Parent]

	k := j.Multiplier * (node.Constant + parent.Constant) / 2

	shared := min(node.Resources, parent.Resources)
	for r := int32(0); r < shared; r++ {
		ni := node.AmountIndex + r
		pi := parent.AmountIndex + r

		nodeValue := src[ni]
		parentValue := src[pi]

		flow := k * (parentValue - nodeValue)
		if flow == 0 {
			continue
		}
		// flow only stops when it points into a side already at capacity
		if flow < 0 && parentValue >= j.Capacities[pi] {
			continue
		}
		if flow > 0 && nodeValue >= j.Capacities[ni] {
			continue
		}

		dst[ni] += flow
		dst[pi] -= flow
	}
}
