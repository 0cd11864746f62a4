package diffusion

// AmountBuffer is the double-buffered amount store. Both halves have the same
// length and every node owns the same sub-range in each.
type AmountBuffer struct {
	A, B      []float32
	LatestInA bool
}

// NewAmountBuffer wraps initial amounts and allocates the zeroed second half.
func NewAmountBuffer(initial []float32) *AmountBuffer {
	return &AmountBuffer{
		A:         initial,
		B:         make([]float32, len(initial)),
		LatestInA: true,
	}
}

// Latest returns the current snapshot.
func (b *AmountBuffer) Latest() []float32 {
	if b.LatestInA {
		return b.A
	}
	return b.B
}

// swap returns the current snapshot as src and the other half as dst, and
// marks dst as current.
func (b *AmountBuffer) swap() (src, dst []float32) {
	if b.LatestInA {
		b.LatestInA = false
		return b.A, b.B
	}
	b.LatestInA = true
	return b.B, b.A
}
