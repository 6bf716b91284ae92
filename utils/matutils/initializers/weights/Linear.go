package weights

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// LinearUV initializes every element of a weight matrix independently
// from a univariate distribution
type LinearUV struct {
	distuv.Rander
}

// NewLinearUV returns an Initializer drawing each weight from rand
func NewLinearUV(rand distuv.Rander) LinearUV {
	if rand == nil {
		panic("rand cannot be nil")
	}
	return LinearUV{rand}
}

// Initialize overwrites weights element-wise with draws from the
// distribution. A nil matrix is left alone.
func (l LinearUV) Initialize(weights *mat.Dense) {
	if weights == nil {
		return
	}

	backing := weights.RawMatrix().Data
	for i := range backing {
		backing[i] = l.Rand()
	}
}
