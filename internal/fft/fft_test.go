package fft

import (
	"math"
	"math/cmplx"
	"testing"
)

func TestInverse1DConstantIsDC(t *testing.T) {
	f, err := New(8)
	if err != nil {
		t.Fatal(err)
	}
	data := make([]complex128, 8)
	data[0] = 8 // a single nonzero DC bin should inverse-transform to a constant
	if err := f.Inverse1D(data); err != nil {
		t.Fatal(err)
	}
	for i, v := range data {
		if cmplx.Abs(v-8) > 1e-9 {
			t.Errorf("data[%d] = %v, want 8", i, v)
		}
	}
}

func TestInverse1DLengthMismatch(t *testing.T) {
	f, err := New(8)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Inverse1D(make([]complex128, 4)); err == nil {
		t.Errorf("Inverse1D with mismatched length should have failed")
	}
}

func TestInverse2DSeparatesAxes(t *testing.T) {
	n := 4
	f, err := New(n)
	if err != nil {
		t.Fatal(err)
	}
	grid := make([]complex128, n*n)
	grid[0] = complex(float64(n * n), 0) // DC-only 2D spectrum
	if err := f.Inverse2D(grid); err != nil {
		t.Fatal(err)
	}
	for i, v := range grid {
		if cmplx.Abs(v-complex(float64(n*n), 0)) > 1e-9 {
			t.Errorf("grid[%d] = %v, want %d", i, v, n*n)
		}
	}
}

func TestInverse2DLengthMismatch(t *testing.T) {
	f, err := New(4)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Inverse2D(make([]complex128, 8)); err == nil {
		t.Errorf("Inverse2D with mismatched length should have failed")
	}
}

func TestNewRejectsNonPositive(t *testing.T) {
	if _, err := New(0); err == nil {
		t.Errorf("New(0) should have failed")
	}
}

func TestInverse1DLinearity(t *testing.T) {
	f, err := New(8)
	if err != nil {
		t.Fatal(err)
	}
	data := make([]complex128, 8)
	data[1] = 1
	data[3] = 2
	if err := f.Inverse1D(data); err != nil {
		t.Fatal(err)
	}
	var maxAbs float64
	for _, v := range data {
		if a := cmplx.Abs(v); a > maxAbs {
			maxAbs = a
		}
	}
	if maxAbs < 1e-9 || math.IsNaN(maxAbs) {
		t.Errorf("Inverse1D produced degenerate output: max abs = %g", maxAbs)
	}
}
