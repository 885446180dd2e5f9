// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pgd

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// SolveH performs one projected Gauss–Seidel coordinate-descent sweep on the
// non-negative least-squares sub-problem 𝚖𝚒𝚗 ‖ 𝐕-𝐑 - 𝐖𝐇 ‖₂ subject to 𝐇 ≥ 0.
//
// Inputs:
//   - h : k × n coefficient matrix 𝐇, updated in place
//   - wtv : k × n precomputed gradient term 𝐖ᵀ(𝐕-𝐑)
//   - wtw : k × k precomputed Gram matrix 𝐖ᵀ𝐖 with strictly positive diagonal
//   - kappa : global step-size multiplier
//
// For each component c and sample s the quadratic gradient is
//
//	𝜵 = -(𝐖ᵀ(𝐕-𝐑))꜀ₛ + ∑ᵥ (𝐖ᵀ𝐖)꜀ᵥ 𝐇ᵥₛ
//
// scaled by 𝛋/(𝐖ᵀ𝐖)꜀꜀ (the diagonal curvature) and the update is the
// projection 𝐇꜀ₛ = 𝚖𝚊𝚡(𝐇꜀ₛ - 𝜵, 0).
//
// The sweep is sequential over the component axis: the inner sum reads 𝐇
// entries already updated earlier in the same call. Replacing it with a
// snapshot (Jacobi) update changes the numerical result, so the component
// loop must never be parallelized. The sample axis carries no such
// dependency.
//
// The returned violation is the Euclidean norm of the projected gradient
// measured before each update: at entries held at the boundary 𝐇꜀ₛ = 0 only
// the feasible direction 𝚖𝚒𝚗(0,𝜵) counts. A small violation means 𝐇 is close
// to the KKT conditions of the sub-problem.
//
// Non-finite inputs propagate through the arithmetic unreported; validating
// them is the caller's responsibility.
func SolveH(h, wtv, wtw *mat.Dense, kappa float64) (float64, error) {
	k, n := h.Dims()
	if r, c := wtv.Dims(); r != k || c != n {
		return zero, ErrShapeMismatch
	}
	if r, c := wtw.Dims(); r != k || c != k {
		return zero, ErrShapeMismatch
	}

	hm, gm, qm := h.RawMatrix(), wtv.RawMatrix(), wtw.RawMatrix()
	for c1 := 0; c1 < k; c1++ {
		if qm.Data[c1*qm.Stride+c1] == zero {
			return zero, ErrGramDegenerate
		}
	}

	violation := zero
	for c1 := 0; c1 < k; c1++ {
		row := qm.Data[c1*qm.Stride : c1*qm.Stride+k]
		scale := kappa / row[c1]
		hRow := hm.Data[c1*hm.Stride:]
		gRow := gm.Data[c1*gm.Stride:]
		for s := 0; s < n; s++ {
			grad := -gRow[s] + ddot(k, row, 1, hm.Data[s:], hm.Stride)
			grad *= scale

			pg := grad
			if hRow[s] == zero {
				pg = math.Min(zero, grad)
			}
			violation += pg * pg

			hRow[s] = math.Max(hRow[s]-grad, zero)
		}
	}
	return math.Sqrt(violation), nil
}

// SolveR performs one element-wise bounded soft-threshold sweep on the
// outlier sub-problem: each entry of 𝐑 is moved to the proximal L1 operator
// of the target residual, then clamped into [-v𝚖𝚊𝚡, v𝚖𝚊𝚡].
//
// Inputs:
//   - r : m × n outlier matrix 𝐑, updated in place
//   - rActual : m × n unconstrained target residual (typically 𝐕 - 𝐖𝐇)
//   - lambda : soft-threshold strength, 𝛌 ≥ 0
//   - vMax : symmetric magnitude bound, v𝚖𝚊𝚡 ≥ 0
//
// For every non-zero entry the new value is
//
//	𝚌𝚕𝚒𝚙( 𝚜𝚒𝚐𝚗(𝐫ᵃ) · 𝚖𝚊𝚡(|𝐫ᵃ| - 𝛌, 0), ±v𝚖𝚊𝚡 )
//
// Entries of 𝐑 that are exactly zero on input are skipped entirely and never
// made non-zero: the support of 𝐑 is treated as fixed by the caller, so this
// kernel only shrinks or moves mass on the existing support. True proximal
// L1 would let |𝐫ᵃ| > 𝛌 activate a zero entry; that is deliberately not done
// here.
//
// Updates are fully independent per element, so the iteration order has no
// numerical effect. The returned violation is the Euclidean norm of the
// applied change, the caller's convergence signal for this sub-problem.
func SolveR(r, rActual *mat.Dense, lambda, vMax float64) (float64, error) {
	m, n := r.Dims()
	if rows, cols := rActual.Dims(); rows != m || cols != n {
		return zero, ErrShapeMismatch
	}

	rm, am := r.RawMatrix(), rActual.RawMatrix()

	violation := zero
	for s := 0; s < n; s++ {
		for f := 0; f < m; f++ {
			old := rm.Data[f*rm.Stride+s]
			if old == zero {
				continue
			}

			actual := am.Data[f*am.Stride+s]
			rNew := math.Abs(actual) - lambda
			if rNew < zero {
				rNew = zero
			}
			rNew = math.Copysign(rNew, actual)
			rNew = math.Min(math.Max(rNew, -vMax), vMax)

			d := old - rNew
			violation += d * d
			rm.Data[f*rm.Stride+s] = rNew
		}
	}
	return math.Sqrt(violation), nil
}
