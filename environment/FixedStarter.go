package environment

import "gonum.org/v1/gonum/mat"

// FixedStarter returns the same starting state on every episode
type FixedStarter struct {
	state []float64
}

// NewFixedStarter returns a new FixedStarter that always starts
// episodes at state
func NewFixedStarter(state []float64) FixedStarter {
	fixed := make([]float64, len(state))
	copy(fixed, state)
	return FixedStarter{fixed}
}

// Start returns a starting state vector
func (f FixedStarter) Start() *mat.VecDense {
	state := make([]float64, len(f.state))
	copy(state, f.state)
	return mat.NewVecDense(len(state), state)
}
