package diffusion

import (
	"errors"
	"fmt"

	"github.com/pthm-cable/sap/symbols"
)

// ErrRemap is returned when a remap table does not fit the strings it maps
// between.
var ErrRemap = errors.New("diffusion: invalid remap table")

// MatchError is the status the rewrite engine attached to a match.
type MatchError uint8

const (
	MatchOK MatchError = iota
	MatchTooManyParameters
	MatchTrivialAtMatch   // trivial symbol not indicated at match time
	MatchTrivialAtReplace // trivial symbol not indicated at replacement time
)

func (e MatchError) String() string {
	switch e {
	case MatchOK:
		return "none"
	case MatchTooManyParameters:
		return "too_many_parameters"
	case MatchTrivialAtMatch:
		return "trivial_symbol_mismatch_at_match"
	case MatchTrivialAtReplace:
		return "trivial_symbol_mismatch_at_replace"
	default:
		return fmt.Sprintf("match_error(%d)", uint8(e))
	}
}

// MatchRemap says where a source symbol landed in the string produced by a
// rewrite pass. One entry exists per source symbol.
//
// Error is carried for completeness. The diffusion core never inspects it.
type MatchRemap struct {
	ReplacementSymbolIndex int32
	ReplacementParams      symbols.JaggedIndex
	Error                  MatchError
}

// IdentityRemap returns the table of a rewrite pass that keeps every symbol
// at its own index and parameter offset.
func IdentityRemap(src *symbols.String) []MatchRemap {
	remap := make([]MatchRemap, src.Len())
	for i := range remap {
		remap[i] = MatchRemap{
			ReplacementSymbolIndex: int32(i),
			ReplacementParams:      src.ParamIndexing[i],
		}
	}
	return remap
}

// CopyRewrite is the trivial rewrite pass: a deep copy of src and its
// identity remap table.
func CopyRewrite(src *symbols.String) (*symbols.String, []MatchRemap) {
	return src.Clone(), IdentityRemap(src)
}

// validateRemap checks the entries of every node and amount symbol against
// the target so that extraction and application never write out of range.
// Entries of other symbols and of empty amounts are not read and not
// checked. A source node without parameters is reported as a layout error.
func validateRemap(src, target *symbols.String, remap []MatchRemap, codes Codes) error {
	if len(remap) != src.Len() {
		return fmt.Errorf("%w: %d entries for %d source symbols", ErrRemap, len(remap), src.Len())
	}
	n := int32(target.Len())
	for i, sym := range src.Symbols {
		if sym != codes.Node && sym != codes.Amount {
			continue
		}
		// Empty amounts are skipped by extraction
		if sym == codes.Amount && src.ParamIndexing[i].Len() == 0 {
			continue
		}
		entry := remap[i]
		if entry.ReplacementSymbolIndex < 0 || entry.ReplacementSymbolIndex >= n {
			return fmt.Errorf("%w: source symbol %d maps to index %d outside target of length %d",
				ErrRemap, i, entry.ReplacementSymbolIndex, n)
		}
		if sym != codes.Node {
			continue
		}
		// Extraction would fail on this node after writing amount placeholders
		if src.ParamIndexing[i].Len() == 0 {
			return fmt.Errorf("%w: diffusion node at %d has no diffusion constant", symbols.ErrLayout, i)
		}
		params := entry.ReplacementParams
		params.Length = src.ParamIndexing[i].Length
		if params.Index < 0 || !params.InBounds(len(target.Parameters)) {
			return fmt.Errorf("%w: node %d maps to parameters [%d,%d) outside target of length %d",
				ErrRemap, i, params.Index, params.End(), len(target.Parameters))
		}
	}
	return nil
}
