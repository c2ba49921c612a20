package vectordb

import (
	"math"
	"testing"
)

func TestValidateVectorDimensionMismatch(t *testing.T) {
	err := ValidateVector([]float32{1, 2, 3}, 4)
	if err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestValidateVectorRejectsNaN(t *testing.T) {
	err := ValidateVector([]float32{1, float32(math.NaN()), 3}, 3)
	if err == nil {
		t.Fatal("expected NaN to be rejected")
	}
}

func TestValidateVectorRejectsInf(t *testing.T) {
	err := ValidateVector([]float32{1, float32(math.Inf(1)), 3}, 3)
	if err == nil {
		t.Fatal("expected Inf to be rejected")
	}
}

func TestValidateVectorAccepts(t *testing.T) {
	if err := ValidateVector([]float32{0.1, 0.2, 0.3}, 3); err != nil {
		t.Errorf("expected valid vector to pass, got %v", err)
	}
}

func TestNorm(t *testing.T) {
	n := Norm([]float32{3, 4})
	if math.Abs(n-5.0) > 1e-9 {
		t.Errorf("expected norm 5.0, got %v", n)
	}
}
