package environment

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// SpecType names the quantity a Spec describes
type SpecType int

const (
	Action SpecType = iota
	Observation
	Discount
	Reward
)

// Cardinality tells whether the described values are drawn from a
// continuum or from a finite set
type Cardinality string

const (
	Continuous Cardinality = "Continuous"
	Discrete   Cardinality = "Discrete"
)

// Spec describes the shape and legal range of one of an environment's
// quantities: its actions, observations, discounts, or rewards. Bounds
// are element-wise, with LowerBound[i] and UpperBound[i] bounding
// element i of the described vector.
type Spec struct {
	Shape      mat.Vector
	Type       SpecType
	LowerBound mat.Vector
	UpperBound mat.Vector
	Cardinality
}

// NewSpec returns a Spec describing values of the given shape and
// bounds. It panics when the bounds do not cover every element of the
// shape, since a Spec with partial bounds cannot validate or clip the
// values it describes.
func NewSpec(shape mat.Vector, t SpecType, lowerBound,
	upperBound mat.Vector, cardinality Cardinality) Spec {
	if shape.Len() != lowerBound.Len() || shape.Len() != upperBound.Len() {
		panic(fmt.Sprintf("spec shape has %v elements but bounds have "+
			"%v and %v", shape.Len(), lowerBound.Len(), upperBound.Len()))
	}
	return Spec{shape, t, lowerBound, upperBound, cardinality}
}
