package symbols

// Element is one symbol with its own parameter list.
type Element struct {
	Symbol Symbol
	Params []float32
}

// Elements unpacks the string into per-symbol elements. Parameter slices are
// copied so the result does not alias s.
func (s *String) Elements() []Element {
	elements := make([]Element, s.Len())
	for i := range elements {
		elements[i] = Element{
			Symbol: s.Symbols[i],
			Params: append([]float32(nil), s.Params(i)...),
		}
	}
	return elements
}

// FromElements packs elements into a fresh string with one contiguous
// parameter run per symbol, in order.
func FromElements(elements []Element) *String {
	// capacity is a guess, most symbols carry few parameters
	s := &String{
		Symbols:       make([]Symbol, 0, len(elements)),
		ParamIndexing: make([]JaggedIndex, 0, len(elements)),
		Parameters:    make([]float32, 0, len(elements)),
	}
	for _, e := range elements {
		s.Append(e.Symbol, e.Params...)
	}
	return s
}

// Append adds a symbol with the given parameters to the end of the string.
func (s *String) Append(symbol Symbol, params ...float32) {
	s.Symbols = append(s.Symbols, symbol)
	s.ParamIndexing = append(s.ParamIndexing, JaggedIndex{
		Index:  int32(len(s.Parameters)),
		Length: uint16(len(params)),
	})
	s.Parameters = append(s.Parameters, params...)
}
