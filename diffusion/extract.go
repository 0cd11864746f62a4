package diffusion

import (
	"fmt"

	"github.com/pthm-cable/sap/symbols"
)

// Node is one diffusion node, in pre-order of the source scan. Its position
// in Graph.Nodes is its only identity.
type Node struct {
	Parent        int32 // index in Graph.Nodes, -1 for roots
	IndexInTarget int32
	TargetParams  symbols.JaggedIndex
	AmountIndex   int32 // start of this node's slots in the amount and capacity buffers
	Resources     int32
	Constant      float32
}

// Graph is the transient state of one diffusion call.
type Graph struct {
	Nodes      []Node
	Capacities []float32
	Amounts    *AmountBuffer

	// Folded counts non-empty amount symbols added into a node, Dropped those
	// with no enclosing node.
	Folded  int
	Dropped int
}

// Slots returns the number of resource slots across all nodes.
func (g *Graph) Slots() int {
	return len(g.Capacities)
}

// ExtractInPlace builds the graph of src with every node targeting its own
// position in src.
func ExtractInPlace(src *symbols.String, codes Codes) (*Graph, error) {
	e := extractor{src: src, codes: codes}
	return e.run()
}

// ExtractRewrite builds the graph of src with node targets taken from the
// remap table. Every folded amount symbol is replaced in target by an empty
// amount placeholder at its remapped position.
//
// The remap table is trusted. RunRewrite validates it before calling this.
func ExtractRewrite(src, target *symbols.String, remap []MatchRemap, codes Codes) (*Graph, error) {
	e := extractor{src: src, codes: codes, target: target, remap: remap}
	return e.run()
}

type extractor struct {
	src   *symbols.String
	codes Codes

	// rewrite mode only
	target *symbols.String
	remap  []MatchRemap
}

func (e *extractor) locate(i int) (int32, symbols.JaggedIndex) {
	if e.remap == nil {
		return int32(i), e.src.ParamIndexing[i]
	}
	entry := e.remap[i]
	params := entry.ReplacementParams
	params.Length = e.src.ParamIndexing[i].Length
	return entry.ReplacementSymbolIndex, params
}

// amountFolded is called once per non-empty amount symbol.
func (e *extractor) amountFolded(i int) {
	if e.remap == nil {
		return
	}
	entry := e.remap[i]
	at := entry.ReplacementSymbolIndex
	e.target.Symbols[at] = e.codes.Amount
	e.target.ParamIndexing[at] = symbols.JaggedIndex{Index: entry.ReplacementParams.Index}
}

func (e *extractor) run() (*Graph, error) {
	src := e.src
	g := &Graph{}
	var amounts []float32

	stack := make([]int32, 0, 8)
	parent := int32(-1)

	for i, sym := range src.Symbols {
		switch sym {
		case e.codes.Node:
			params := src.Params(i)
			if len(params) == 0 {
				return nil, fmt.Errorf("%w: diffusion node at %d has no diffusion constant", symbols.ErrLayout, i)
			}
			at, targetParams := e.locate(i)
			node := Node{
				Parent:        parent,
				IndexInTarget: at,
				TargetParams:  targetParams,
				AmountIndex:   int32(len(amounts)),
				Resources:     int32((len(params) - 1) / 2),
				Constant:      params[0],
			}
			parent = int32(len(g.Nodes))
			g.Nodes = append(g.Nodes, node)

			for r := 0; r < int(node.Resources); r++ {
				amounts = append(amounts, params[r*2+1])
				g.Capacities = append(g.Capacities, params[r*2+2])
			}

		case e.codes.Amount:
			params := src.Params(i)
			if len(params) == 0 {
				continue
			}
			e.amountFolded(i)
			if parent < 0 {
				g.Dropped++
				continue
			}
			node := g.Nodes[parent]
			slots := amounts[node.AmountIndex : node.AmountIndex+node.Resources]
			for r := 0; r < len(slots) && r < len(params); r++ {
				slots[r] += params[r]
			}
			g.Folded++

		case e.codes.BranchOpen:
			stack = append(stack, parent)

		case e.codes.BranchClose:
			if len(stack) == 0 {
				continue
			}
			parent = stack[len(stack)-1]
			stack = stack[:len(stack)-1]
		}
	}

	g.Amounts = NewAmountBuffer(amounts)
	return g, nil
}
