// Package symbols defines the packed symbol string shared by the rewrite
// engine and the diffusion core: parallel arrays of symbol codes and jagged
// parameter descriptors over one flat parameter array.
package symbols

import (
	"errors"
	"fmt"
)

// ErrLayout is returned when a string breaks its layout invariants.
var ErrLayout = errors.New("symbols: invalid layout")

// Symbol is an opaque symbol code.
type Symbol = int32

// JaggedIndex addresses a contiguous run in a flat parameter array.
// A negative Index means "no data" and resolves to an empty slice.
type JaggedIndex struct {
	Index  int32
	Length uint16
}

// Empty returns the descriptor for a symbol without parameters.
func Empty() JaggedIndex {
	return JaggedIndex{Index: -1}
}

// IsEmpty reports whether the descriptor resolves to no parameters.
func (j JaggedIndex) IsEmpty() bool {
	return j.Index < 0 || j.Length == 0
}

// Len returns the number of addressed parameters (0 for no data).
func (j JaggedIndex) Len() int {
	if j.Index < 0 {
		return 0
	}
	return int(j.Length)
}

// End returns the exclusive end offset of the run.
func (j JaggedIndex) End() int {
	if j.Index < 0 {
		return 0
	}
	return int(j.Index) + int(j.Length)
}

// InBounds reports whether the run can be dereferenced against a parameter
// array of length n.
func (j JaggedIndex) InBounds(n int) bool {
	if j.Index < 0 {
		return true
	}
	return j.End() <= n
}

// Slice returns the addressed run of params. The result aliases params.
func (j JaggedIndex) Slice(params []float32) []float32 {
	if j.Index < 0 {
		return nil
	}
	return params[j.Index:j.End():j.End()]
}

// String is a packed symbol string.
type String struct {
	Symbols       []Symbol
	ParamIndexing []JaggedIndex
	Parameters    []float32
}

// Len returns the number of symbols.
func (s *String) Len() int {
	return len(s.Symbols)
}

// Params returns the parameters of symbol i.
func (s *String) Params(i int) []float32 {
	return s.ParamIndexing[i].Slice(s.Parameters)
}

// Validate checks the co-indexing and bounds invariants.
func (s *String) Validate() error {
	if len(s.Symbols) != len(s.ParamIndexing) {
		return fmt.Errorf("%w: %d symbols but %d parameter descriptors",
			ErrLayout, len(s.Symbols), len(s.ParamIndexing))
	}
	n := len(s.Parameters)
	for i, j := range s.ParamIndexing {
		if !j.InBounds(n) {
			return fmt.Errorf("%w: symbol %d addresses parameters [%d,%d) beyond %d",
				ErrLayout, i, j.Index, j.End(), n)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (s *String) Clone() *String {
	return &String{
		Symbols:       append([]Symbol(nil), s.Symbols...),
		ParamIndexing: append([]JaggedIndex(nil), s.ParamIndexing...),
		Parameters:    append([]float32(nil), s.Parameters...),
	}
}
