// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pgd

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func close(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestSolveHSingle(t *testing.T) {

	// grad = (-1 + 2·2)·1/2 = 1.5
	// h    = max(2 - 1.5, 0) = 0.5
	h := mat.NewDense(1, 1, []float64{2})
	wtv := mat.NewDense(1, 1, []float64{1})
	wtw := mat.NewDense(1, 1, []float64{2})

	violation, err := SolveH(h, wtv, wtw, 1)
	switch {
	case err != nil:
		t.Fatal("TestSolveHSingle:", err)
	case !close(violation, 1.5, 1e-15):
		t.Fatal("TestSolveHSingle: violation", violation)
	case !close(h.At(0, 0), 0.5, 1e-15):
		t.Fatal("TestSolveHSingle: h", h.At(0, 0))
	}
}

func TestSolveHSequential(t *testing.T) {

	// c1=0: grad = (-3 + 2·2 + 1·1)/2 = 1,   h₀ = 1
	// c1=1: grad = (-3 + 1·h₀ + 2·1)/2 = 0,  h₁ = 1 (reads updated h₀)
	// a Jacobi sweep over the stale h₀ = 2 would end at h = [1, 0.5]
	h := mat.NewDense(2, 1, []float64{2, 1})
	wtv := mat.NewDense(2, 1, []float64{3, 3})
	wtw := mat.NewDense(2, 2, []float64{
		2, 1,
		1, 2,
	})

	violation, err := SolveH(h, wtv, wtw, 1)
	switch {
	case err != nil:
		t.Fatal("TestSolveHSequential:", err)
	case !close(violation, 1, 1e-15):
		t.Fatal("TestSolveHSequential: violation", violation)
	case !close(h.At(0, 0), 1, 1e-15):
		t.Fatal("TestSolveHSequential: h0", h.At(0, 0))
	case !close(h.At(1, 0), 1, 1e-15):
		t.Fatal("TestSolveHSequential: h1", h.At(1, 0))
	}

	const jacobiH1 = 0.5
	if close(h.At(1, 0), jacobiH1, 1e-15) {
		t.Fatal("TestSolveHSequential: sweep degraded to Jacobi update")
	}
}

func TestSolveHProjection(t *testing.T) {

	// At h = 0 with positive gradient the projected gradient must vanish
	// and the entry must stay on the boundary.
	h := mat.NewDense(1, 2, []float64{0, 0})
	wtv := mat.NewDense(1, 2, []float64{-1, 2})
	wtw := mat.NewDense(1, 1, []float64{1})

	violation, err := SolveH(h, wtv, wtw, 1)
	switch {
	case err != nil:
		t.Fatal("TestSolveHProjection:", err)
	case !close(violation, 2, 1e-15): // only the feasible direction -(-2) counts
		t.Fatal("TestSolveHProjection: violation", violation)
	case h.At(0, 0) != 0:
		t.Fatal("TestSolveHProjection: boundary entry moved", h.At(0, 0))
	case !close(h.At(0, 1), 2, 1e-15):
		t.Fatal("TestSolveHProjection: interior entry", h.At(0, 1))
	}
}

func TestSolveHConverge(t *testing.T) {

	h := mat.NewDense(3, 4, []float64{
		1.0, 0.0, 2.5, 0.3,
		0.2, 1.5, 0.0, 0.7,
		3.0, 0.1, 0.4, 0.0,
	})
	wtv := mat.NewDense(3, 4, []float64{
		1.2, -0.5, 2.0, 0.1,
		-0.3, 1.1, 0.6, -1.0,
		0.8, 0.2, -0.7, 1.4,
	})
	wtw := mat.NewDense(3, 3, []float64{
		3.0, 1.0, 0.5,
		1.0, 2.5, 0.8,
		0.5, 0.8, 2.0,
	})

	first, err := SolveH(h, wtv, wtw, 1)
	if err != nil {
		t.Fatal("TestSolveHConverge:", err)
	}

	last := first
	for i := 0; i < 200; i++ {
		if last, err = SolveH(h, wtv, wtw, 1); err != nil {
			t.Fatal("TestSolveHConverge:", err)
		}
	}

	switch {
	case math.IsNaN(last) || last >= first:
		t.Fatal("TestSolveHConverge: violation not decreasing", first, last)
	case last > 1e-8:
		t.Fatal("TestSolveHConverge: no stationary point", last)
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 4; j++ {
			if h.At(i, j) < 0 {
				t.Fatal("TestSolveHConverge: negative entry", i, j, h.At(i, j))
			}
		}
	}
}

func TestSolveHErrors(t *testing.T) {

	h := mat.NewDense(2, 2, nil)
	wtw := mat.NewDense(2, 2, []float64{1, 0, 0, 1})

	if _, err := SolveH(h, mat.NewDense(2, 3, nil), wtw, 1); !errors.Is(err, ErrShapeMismatch) {
		t.Fatal("TestSolveHErrors: gradient term shape", err)
	}
	if _, err := SolveH(h, mat.NewDense(2, 2, nil), mat.NewDense(3, 3, nil), 1); !errors.Is(err, ErrShapeMismatch) {
		t.Fatal("TestSolveHErrors: gram shape", err)
	}

	degenerate := mat.NewDense(2, 2, []float64{1, 0, 0, 0})
	if _, err := SolveH(h, mat.NewDense(2, 2, nil), degenerate, 1); !errors.Is(err, ErrGramDegenerate) {
		t.Fatal("TestSolveHErrors: zero diagonal", err)
	}
}

func TestSolveRSingle(t *testing.T) {

	// magnitude = |3| - 1 = 2, sign +, clip ±5 → 2
	r := mat.NewDense(1, 1, []float64{1})
	actual := mat.NewDense(1, 1, []float64{3})

	violation, err := SolveR(r, actual, 1, 5)
	switch {
	case err != nil:
		t.Fatal("TestSolveRSingle:", err)
	case !close(violation, 1, 1e-15):
		t.Fatal("TestSolveRSingle: violation", violation)
	case !close(r.At(0, 0), 2, 1e-15):
		t.Fatal("TestSolveRSingle: r", r.At(0, 0))
	}
}

func TestSolveRFixedSupport(t *testing.T) {

	// Zero entries are never activated, whatever the target says.
	r := mat.NewDense(2, 2, []float64{
		0, 1,
		0, -1,
	})
	actual := mat.NewDense(2, 2, []float64{
		10, 10,
		-10, -10,
	})

	violation, err := SolveR(r, actual, 0, 5)
	switch {
	case err != nil:
		t.Fatal("TestSolveRFixedSupport:", err)
	case r.At(0, 0) != 0 || r.At(1, 0) != 0:
		t.Fatal("TestSolveRFixedSupport: zero entry activated")
	case !close(r.At(0, 1), 5, 1e-15) || !close(r.At(1, 1), -5, 1e-15):
		t.Fatal("TestSolveRFixedSupport: bound not applied", r.At(0, 1), r.At(1, 1))
	case !close(violation, math.Sqrt(16+16), 1e-15):
		t.Fatal("TestSolveRFixedSupport: violation", violation)
	}
}

func TestSolveRBounds(t *testing.T) {

	const vMax = 2.5
	r := mat.NewDense(2, 3, []float64{
		1, -1, 0.5,
		2, -2, 0.1,
	})
	actual := mat.NewDense(2, 3, []float64{
		7, -7, 0.2,
		-4, 4, -0.3,
	})

	if _, err := SolveR(r, actual, 0.5, vMax); err != nil {
		t.Fatal("TestSolveRBounds:", err)
	}
	for i := 0; i < 2; i++ {
		for j := 0; j < 3; j++ {
			if v := r.At(i, j); v < -vMax || v > vMax {
				t.Fatal("TestSolveRBounds: out of bounds", i, j, v)
			}
		}
	}
}

func TestSolveRShrinkage(t *testing.T) {

	actual := mat.NewDense(3, 1, []float64{3, -2, 0.5})

	prev := []float64{math.Inf(1), math.Inf(1), math.Inf(1)}
	for _, lambda := range []float64{0, 0.5, 1, 2, 4} {
		r := mat.NewDense(3, 1, []float64{1, 1, 1})
		if _, err := SolveR(r, actual, lambda, 10); err != nil {
			t.Fatal("TestSolveRShrinkage:", err)
		}
		for i := range prev {
			v := math.Abs(r.At(i, 0))
			if v > prev[i] {
				t.Fatal("TestSolveRShrinkage: magnitude grew with lambda", lambda, i, v)
			}
			prev[i] = v
		}
	}
}

func TestSolveRErrors(t *testing.T) {
	r := mat.NewDense(2, 2, nil)
	if _, err := SolveR(r, mat.NewDense(3, 2, nil), 1, 1); !errors.Is(err, ErrShapeMismatch) {
		t.Fatal("TestSolveRErrors: shape", err)
	}
}
