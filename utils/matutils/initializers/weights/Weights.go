// Package weights initializes weight matrices from distributions
package weights

import "gonum.org/v1/gonum/mat"

// Initializer fills a weight matrix with initial values
type Initializer interface {
	Initialize(weights *mat.Dense)
}
