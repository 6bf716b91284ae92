// Package matutils implements utilities for working with gonum
// matrices and vectors
package matutils

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Format renders a matrix in aligned rows for logs and error messages
func Format(X mat.Matrix) string {
	return fmt.Sprintf("%v", mat.Formatted(X, mat.Prefix(""), mat.Squeeze()))
}

// VecOnes returns a length-sized vector with every element set to 1
func VecOnes(length int) *mat.VecDense {
	ones := make([]float64, length)
	for i := range ones {
		ones[i] = 1
	}
	return mat.NewVecDense(length, ones)
}
