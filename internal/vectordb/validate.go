package vectordb

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// ValidateVector checks that a dense embedding matches the configured
// dimension and contains no NaN or Inf components before it reaches the
// remote engine.
func ValidateVector(vector []float32, dimension int) error {
	if len(vector) != dimension {
		return fmt.Errorf("vector dimension %d does not match configured dimension %d", len(vector), dimension)
	}

	f64 := make([]float64, len(vector))
	for i, v := range vector {
		f64[i] = float64(v)
	}

	if floats.HasNaN(f64) {
		return fmt.Errorf("vector contains NaN components")
	}
	for i, v := range f64 {
		if math.IsInf(v, 0) {
			return fmt.Errorf("vector element %d is Inf", i)
		}
	}

	return nil
}

// Norm returns the Euclidean norm of a dense vector.
func Norm(vector []float32) float64 {
	f64 := make([]float64, len(vector))
	for i, v := range vector {
		f64[i] = float64(v)
	}
	return floats.Norm(f64, 2)
}
