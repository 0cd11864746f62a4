// Package diffusion moves resources between the diffusion nodes of a packed
// symbol string. A call extracts a parent-pointer tree from the string, runs
// a fixed number of double-buffered, capacity-limited diffusion steps over
// its edges, and writes the results back into a target string.
//
// Each call is synchronous and single-threaded. Callers that diffuse many
// strings may run calls concurrently as long as no two calls share a target.
package diffusion

import (
	"fmt"

	"github.com/pthm-cable/sap/symbols"
)

// Codes names the four symbol codes the core interprets. Every other code is
// passed through untouched.
type Codes struct {
	Node        symbols.Symbol
	Amount      symbols.Symbol
	BranchOpen  symbols.Symbol
	BranchClose symbols.Symbol
}

// DefaultCodes uses the runes of the usual text notation: n, a, [ and ].
func DefaultCodes() Codes {
	return Codes{Node: 'n', Amount: 'a', BranchOpen: '[', BranchClose: ']'}
}

// Validate rejects code sets where two roles share a code.
func (c Codes) Validate() error {
	all := [4]symbols.Symbol{c.Node, c.Amount, c.BranchOpen, c.BranchClose}
	for i := range all {
		for j := i + 1; j < len(all); j++ {
			if all[i] == all[j] {
				return fmt.Errorf("diffusion: symbol code %d assigned to two roles", all[i])
			}
		}
	}
	return nil
}
