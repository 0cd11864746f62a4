package diffusion

import (
	"fmt"

	"github.com/pthm-cable/sap/symbols"
)

// Apply writes the latest amounts of g back into target. Each node's symbol
// becomes the node code with parameters
//
//	[constant, amount_0, capacity_0, amount_1, capacity_1, ...]
//
// at its target descriptor. With clearAmounts every amount descriptor left in
// target is set to zero length afterwards. It returns the number of amount
// descriptors cleared.
//
// Target bounds are checked for every node before the first write.
func Apply(g *Graph, target *symbols.String, codes Codes, clearAmounts bool) (int, error) {
	if err := checkTargets(g, target); err != nil {
		return 0, err
	}

	amounts := g.Amounts.Latest()
	for i := range g.Nodes {
		node := &g.Nodes[i]
		at := node.IndexInTarget
		target.Symbols[at] = codes.Node
		target.ParamIndexing[at] = node.TargetParams

		params := node.TargetParams.Slice(target.Parameters)
		params[0] = node.Constant
		for r := int32(0); r < node.Resources; r++ {
			slot := r*2 + 1
			params[slot] = amounts[node.AmountIndex+r]
			params[slot+1] = g.Capacities[node.AmountIndex+r]
		}
	}

	if !clearAmounts {
		return 0, nil
	}
	cleared := 0
	for i, sym := range target.Symbols {
		if sym == codes.Amount {
			if target.ParamIndexing[i].Length != 0 {
				cleared++
			}
			target.ParamIndexing[i].Length = 0
		}
	}
	return cleared, nil
}

func checkTargets(g *Graph, target *symbols.String) error {
	if len(target.Symbols) != len(target.ParamIndexing) {
		return fmt.Errorf("%w: target has %d symbols but %d parameter descriptors",
			symbols.ErrLayout, len(target.Symbols), len(target.ParamIndexing))
	}
	n := int32(target.Len())
	for i := range g.Nodes {
		node := &g.Nodes[i]
		if node.IndexInTarget < 0 || node.IndexInTarget >= n {
			return fmt.Errorf("%w: node %d targets symbol %d outside length %d",
				symbols.ErrLayout, i, node.IndexInTarget, n)
		}
		params := node.TargetParams
		if params.Index < 0 || !params.InBounds(len(target.Parameters)) || params.Len() < 1+2*int(node.Resources) {
			return fmt.Errorf("%w: node %d targets parameters [%d,%d) outside length %d",
				symbols.ErrLayout, i, params.Index, params.End(), len(target.Parameters))
		}
	}
	return nil
}
