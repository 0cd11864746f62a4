package diffusion

import (
	"errors"
	"math"
	"testing"

	"github.com/pthm-cable/sap/symbols"
)

// diffuseOnce runs one in-place call on text and returns the formatted result.
func diffuseOnce(t *testing.T, text string, steps int, multiplier float32) string {
	t.Helper()
	s := symbols.MustParse(text)
	if _, err := RunInPlace(s, DefaultCodes(), Options{Steps: steps, Multiplier: multiplier}); err != nil {
		t.Fatalf("RunInPlace(%q): %v", text, err)
	}
	return symbols.Format(s)
}

// expectSequence diffuses one step at a time and checks every generation.
func expectSequence(t *testing.T, initial string, want []string) {
	t.Helper()
	s := symbols.MustParse(initial)
	for gen, expected := range want {
		if _, err := RunInPlace(s, DefaultCodes(), Options{Steps: 1, Multiplier: 1}); err != nil {
			t.Fatalf("generation %d: %v", gen+1, err)
		}
		if got := symbols.Format(s); got != expected {
			t.Fatalf("generation %d:\n  got  %s\n  want %s", gen+1, got, expected)
		}
	}
}

func TestTwoNodeDiffusion(t *testing.T) {
	expectSequence(t, "n(0.5, 4, 10)Fn(0.5, 0, 10)", []string{
		"n(0.5, 2, 10)Fn(0.5, 2, 10)",
		"n(0.5, 2, 10)Fn(0.5, 2, 10)",
	})
}

func TestTreeDiffusionFromLeaf(t *testing.T) {
	expectSequence(t, "n(0.5, 0, 20)F[n(0.5, 0, 20)][n(0.5, 12, 20)]", []string{
		"n(0.5, 6, 20)F[n(0.5, 0, 20)][n(0.5, 6, 20)]",
		"n(0.5, 3, 20)F[n(0.5, 3, 20)][n(0.5, 6, 20)]",
		"n(0.5, 4.5, 20)F[n(0.5, 3, 20)][n(0.5, 4.5, 20)]",
		"n(0.5, 3.75, 20)F[n(0.5, 3.75, 20)][n(0.5, 4.5, 20)]",
		"n(0.5, 4.125, 20)F[n(0.5, 3.75, 20)][n(0.5, 4.125, 20)]",
		"n(0.5, 3.9375, 20)F[n(0.5, 3.9375, 20)][n(0.5, 4.125, 20)]",
	})
}

func TestTreeDiffusionFromRoot(t *testing.T) {
	expectSequence(t, "n(0.5, 12, 20)F[n(0.5, 0, 20)][n(0.5, 0, 20)]", []string{
		"n(0.5, 0, 20)F[n(0.5, 6, 20)][n(0.5, 6, 20)]",
		"n(0.5, 6, 20)F[n(0.5, 3, 20)][n(0.5, 3, 20)]",
		"n(0.5, 3, 20)F[n(0.5, 4.5, 20)][n(0.5, 4.5, 20)]",
		"n(0.5, 4.5, 20)F[n(0.5, 3.75, 20)][n(0.5, 3.75, 20)]",
	})
}

func TestChainDiffusion(t *testing.T) {
	expectSequence(t, "n(0.5, 0, 10)Fn(0.5, 0, 10)Fn(0.5, 8, 10)", []string{
		"n(0.5, 0, 10)Fn(0.5, 4, 10)Fn(0.5, 4, 10)",
		"n(0.5, 2, 10)Fn(0.5, 2, 10)Fn(0.5, 4, 10)",
		"n(0.5, 2, 10)Fn(0.5, 3, 10)Fn(0.5, 3, 10)",
		"n(0.5, 2.5, 10)Fn(0.5, 2.5, 10)Fn(0.5, 3, 10)",
		"n(0.5, 2.5, 10)Fn(0.5, 2.75, 10)Fn(0.5, 2.75, 10)",
		"n(0.5, 2.625, 10)Fn(0.5, 2.625, 10)Fn(0.5, 2.75, 10)",
	})
}

func TestCapacityLimitsDiffusion(t *testing.T) {
	expectSequence(t, "n(0.5, 0, 5)Fn(0.5, 0, 5)Fn(0.5, 20, 20)", []string{
		// the middle node overshoots its cap because it was below it when the step began
		"n(0.5, 0, 5)Fn(0.5, 10, 5)Fn(0.5, 10, 20)",
		"n(0.5, 5, 5)Fn(0.5, 5, 5)Fn(0.5, 10, 20)",
		"n(0.5, 5, 5)Fn(0.5, 5, 5)Fn(0.5, 10, 20)",
	})
}

func TestDiffusionRatesBlend(t *testing.T) {
	s := symbols.MustParse("n(0.5, 0, 10)Fn(0.1, 0, 10)Fn(0.5, 8, 10)")
	want := [][]float32{
		{0, 2.4, 5.6},
		{0.72, 2.64, 4.64},
	}
	for gen, amounts := range want {
		if _, err := RunInPlace(s, DefaultCodes(), Options{Steps: 1, Multiplier: 1}); err != nil {
			t.Fatal(err)
		}
		for i, node := range []int{0, 2, 4} {
			got := s.Params(node)[1]
			if math.Abs(float64(got-amounts[i])) > 1e-5 {
				t.Errorf("generation %d node %d: expected %.4f, got %.6f", gen+1, i, amounts[i], got)
			}
		}
	}
}

func TestBranchedChildExactFlow(t *testing.T) {
	// k = 1.0 * (0.5 + 0.5) / 2 = 0.5, flow = 0.5 * (20 - 0) = 10
	got := diffuseOnce(t, "n(0.5, 20, 1000)[n(0.5, 0, 1000)]", 1, 1)
	want := "n(0.5, 10, 1000)[n(0.5, 10, 1000)]"
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestSeparateRootsAreStable(t *testing.T) {
	// closing the branch before the second node leaves it without a parent
	s := symbols.MustParse("[n(0.5, 20, 1000)]n(0.5, 0, 1000)")
	res, err := RunInPlace(s, DefaultCodes(), Options{Steps: 5, Multiplier: 1})
	if err != nil {
		t.Fatal(err)
	}
	if got := symbols.Format(s); got != "[n(0.5, 20, 1000)]n(0.5, 0, 1000)" {
		t.Errorf("roots without edges should not change, got %s", got)
	}
	if res.Nodes != 2 || res.Steps != 5 {
		t.Errorf("unexpected result counters %+v", res)
	}
}

func TestAmountsFoldIntoEnclosingNode(t *testing.T) {
	s := symbols.MustParse("n(0.5, 4, 10)a(2)[n(0.5, 0, 10)a(1)]a(1)")
	res, err := RunInPlace(s, DefaultCodes(), Options{Steps: 0, Multiplier: 1})
	if err != nil {
		t.Fatal(err)
	}
	want := "n(0.5, 7, 10)a[n(0.5, 1, 10)a]a"
	if got := symbols.Format(s); got != want {
		t.Errorf("got %s, want %s", got, want)
	}
	if res.Folded != 3 || res.Cleared != 3 {
		t.Errorf("expected 3 folded and 3 cleared, got %+v", res)
	}
	if res.InitialTotal != 8 || res.FinalTotal != 8 {
		t.Errorf("expected totals of 8, got %v -> %v", res.InitialTotal, res.FinalTotal)
	}

	// a second pass must not fold the same amounts again
	if _, err := RunInPlace(s, DefaultCodes(), Options{Steps: 0, Multiplier: 1}); err != nil {
		t.Fatal(err)
	}
	if got := symbols.Format(s); got != want {
		t.Errorf("second pass re-accumulated: got %s", got)
	}
}

func TestAmountWithoutNodeIsDropped(t *testing.T) {
	s := symbols.MustParse("a(5)n(0.5, 1, 10)")
	res, err := RunInPlace(s, DefaultCodes(), Options{Steps: 1, Multiplier: 1})
	if err != nil {
		t.Fatal(err)
	}
	if got := symbols.Format(s); got != "an(0.5, 1, 10)" {
		t.Errorf("got %s", got)
	}
	if res.Dropped != 1 || res.Folded != 0 {
		t.Errorf("expected one dropped amount, got %+v", res)
	}
}

func TestAmountLongerThanResources(t *testing.T) {
	got := diffuseOnce(t, "n(0.5, 1, 10)a(1, 2, 3)", 0, 1)
	if got != "n(0.5, 2, 10)a" {
		t.Errorf("only the first slot should accumulate, got %s", got)
	}
}

func TestMismatchedResourceCounts(t *testing.T) {
	// only the first slot is shared by the edge
	got := diffuseOnce(t, "n(0.5, 4, 10, 8, 10)[n(0.5, 0, 10)]", 1, 1)
	want := "n(0.5, 2, 10, 8, 10)[n(0.5, 2, 10)]"
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestNodeWithoutResources(t *testing.T) {
	got := diffuseOnce(t, "n(0.5)[n(0.5, 3, 10)]a(4)", 2, 1)
	if got != "n(0.5)[n(0.5, 3, 10)]a" {
		t.Errorf("zero-resource nodes should be inert, got %s", got)
	}
}

func TestUnbalancedCloseIsTolerated(t *testing.T) {
	s := symbols.MustParse("]]n(0.5, 4, 10)]]n(0.5, 0, 10)")
	g, err := ExtractInPlace(s, DefaultCodes())
	if err != nil {
		t.Fatal(err)
	}
	if len(g.Nodes) != 2 || g.Nodes[1].Parent != 0 {
		t.Fatalf("extra closes should be no-ops, got nodes %+v", g.Nodes)
	}
	if got := diffuseOnce(t, "]]n(0.5, 4, 10)]]n(0.5, 0, 10)", 1, 1); got != "]]n(0.5, 2, 10)]]n(0.5, 2, 10)" {
		t.Errorf("got %s", got)
	}
}

func TestNodeWithoutParametersIsLayoutError(t *testing.T) {
	s := symbols.MustParse("n(0.5, 1, 2)[n]")
	before := symbols.Format(s)
	_, err := RunInPlace(s, DefaultCodes(), Options{Steps: 1, Multiplier: 1})
	if !errors.Is(err, symbols.ErrLayout) {
		t.Fatalf("expected ErrLayout, got %v", err)
	}
	if symbols.Format(s) != before {
		t.Error("failed call should leave the string untouched")
	}
}

func TestInvalidLayoutRejected(t *testing.T) {
	s := symbols.MustParse("n(0.5, 1, 2)")
	s.ParamIndexing[0].Length = 9
	if _, err := RunInPlace(s, DefaultCodes(), Options{Steps: 1}); !errors.Is(err, symbols.ErrLayout) {
		t.Errorf("expected ErrLayout, got %v", err)
	}
}

func TestCodesValidate(t *testing.T) {
	if err := DefaultCodes().Validate(); err != nil {
		t.Errorf("default codes should be valid: %v", err)
	}
	dup := Codes{Node: 1, Amount: 2, BranchOpen: 3, BranchClose: 1}
	if err := dup.Validate(); err == nil {
		t.Error("expected error for duplicated code")
	}
	if _, err := RunInPlace(symbols.MustParse(""), dup, Options{}); err == nil {
		t.Error("RunInPlace should reject duplicated codes")
	}
}

func TestPassThroughSymbolsUntouched(t *testing.T) {
	got := diffuseOnce(t, "X(1, 2)n(0.5, 4, 10)+F(3)[n(0.5, 0, 10)-]", 1, 1)
	want := "X(1, 2)n(0.5, 2, 10)+F(3)[n(0.5, 2, 10)-]"
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}
