package weights

// ZeroUV is a distuv.Rander that always draws zero, so that zero
// initialization can go through the same Initializers as random
// initialization
type ZeroUV struct{}

// NewZeroUV returns a new ZeroUV
func NewZeroUV() ZeroUV {
	return ZeroUV{}
}

// Rand returns 0
func (z ZeroUV) Rand() float64 {
	return 0
}
