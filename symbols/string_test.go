package symbols

import (
	"errors"
	"testing"
)

func TestJaggedIndexNegativeIsEmpty(t *testing.T) {
	params := []float32{1, 2, 3}
	j := JaggedIndex{Index: -1, Length: 3}

	if got := j.Slice(params); len(got) != 0 {
		t.Errorf("expected empty slice for negative index, got %v", got)
	}
	if !j.IsEmpty() {
		t.Error("negative index should report empty")
	}
	if !j.InBounds(0) {
		t.Error("negative index should always be in bounds")
	}
}

func TestJaggedIndexSliceAliases(t *testing.T) {
	params := []float32{1, 2, 3, 4}
	j := JaggedIndex{Index: 1, Length: 2}

	view := j.Slice(params)
	view[0] = 9
	if params[1] != 9 {
		t.Errorf("expected write through view, got params %v", params)
	}
	// capacity is clipped so appends cannot clobber neighbours
	if cap(view) != 2 {
		t.Errorf("expected clipped capacity 2, got %d", cap(view))
	}
}

func TestValidate(t *testing.T) {
	s := &String{
		Symbols:       []Symbol{1, 2},
		ParamIndexing: []JaggedIndex{{Index: 0, Length: 2}, {Index: 1, Length: 2}},
		Parameters:    []float32{0, 1, 2},
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("overlapping in-bounds descriptors should validate, got %v", err)
	}

	s.ParamIndexing[1].Length = 3
	if err := s.Validate(); !errors.Is(err, ErrLayout) {
		t.Errorf("expected ErrLayout for out-of-bounds descriptor, got %v", err)
	}

	s.ParamIndexing = s.ParamIndexing[:1]
	if err := s.Validate(); !errors.Is(err, ErrLayout) {
		t.Errorf("expected ErrLayout for length mismatch, got %v", err)
	}
}

func TestFromElementsPacksContiguously(t *testing.T) {
	s := FromElements([]Element{
		{Symbol: 'n', Params: []float32{0.5, 4, 10}},
		{Symbol: '['},
		{Symbol: 'a', Params: []float32{2}},
	})

	if s.Len() != 3 {
		t.Fatalf("expected 3 symbols, got %d", s.Len())
	}
	if len(s.Parameters) != 4 {
		t.Fatalf("expected 4 packed parameters, got %d", len(s.Parameters))
	}
	if s.ParamIndexing[2] != (JaggedIndex{Index: 3, Length: 1}) {
		t.Errorf("unexpected descriptor for third symbol: %+v", s.ParamIndexing[2])
	}

	back := s.Elements()
	if back[0].Params[1] != 4 || back[2].Params[0] != 2 {
		t.Errorf("elements did not round trip: %+v", back)
	}
	back[0].Params[1] = 100
	if s.Parameters[1] != 4 {
		t.Error("Elements should copy parameters")
	}
}

func TestClone(t *testing.T) {
	s := MustParse("n(1, 2, 3)")
	c := s.Clone()
	c.Parameters[0] = 7
	c.Symbols[0] = 'x'
	if s.Parameters[0] != 1 || s.Symbols[0] != 'n' {
		t.Error("clone should not share storage")
	}
}
