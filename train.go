// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nmf

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/nmf/pgd"
)

// Update trains the model on a corpus of dense mini-batches, each one an
// nFeatures × nSamples matrix of non-negative observations. The model state
// is sized from the first batch ever seen; every later batch must share its
// feature dimension.
//
// For every batch the coefficient/outlier sub-problem is solved by
// alternating the pgd kernels, then the sufficient statistics 𝐀 and 𝐁 are
// accumulated and the component matrix 𝐖 is refit against their running
// averages. Calling Update again with new batches continues training
// incrementally.
func (m *Model) Update(batches []*mat.Dense) error {
	if len(batches) == 0 {
		return ErrEmptyCorpus
	}
	if m.nFeatures == 0 {
		m.setup(batches[0])
	}

	idx := 1
	for pass := 0; pass < m.spec.Passes; pass++ {
		for _, v := range batches {
			rows, cols := v.Dims()
			if rows != m.nFeatures {
				return ErrShapeMismatch
			}

			h, r, fresh := m.batchState(cols)
			if err := m.solveProj(v, h, r, m.vMax, m.spec.UseOutliers, fresh); err != nil {
				return err
			}

			var hhT, vrhT mat.Dense
			hhT.Mul(h, h.T())
			m.a.Add(m.a, &hhT)

			vmr := mat.DenseCopyOf(v)
			if m.spec.UseOutliers {
				vmr.Sub(vmr, r)
			}
			vrhT.Mul(vmr, h.T())
			m.b.Add(m.b, &vrhT)
			m.batches++

			m.solveW()

			if m.log.enable(LogLoss) && idx%m.spec.EvalEvery == 0 {
				plain, robust := m.loss(v, h, r)
				m.log.log("loss (no outliers): %v\tloss (with outliers): %v\n", plain, robust)
			}
			idx++
		}
	}
	return nil
}

// batchState returns the coefficient and outlier buffers for a batch of n
// samples, reusing the previous batch's solution as a warm start when the
// shape still matches. The fresh flag reports a newly created outlier
// buffer whose support has not been selected yet.
func (m *Model) batchState(n int) (h, r *mat.Dense, fresh bool) {
	k := m.spec.NumComponents
	if m.h == nil {
		m.h = mat.NewDense(k, n, nil)
	} else if _, c := m.h.Dims(); c != n {
		m.h = mat.NewDense(k, n, nil)
	}
	if m.r == nil {
		m.r, fresh = mat.NewDense(m.nFeatures, n, nil), true
	} else if _, c := m.r.Dims(); c != n {
		m.r, fresh = mat.NewDense(m.nFeatures, n, nil), true
	}
	return m.h, m.r, fresh
}

// solveProj alternates one SolveH sweep and one SolveR sweep until the
// combined violation per feature stabilizes. The precomputed terms 𝐖ᵀ(𝐕-𝐑)
// and 𝐕-𝐖𝐇 are refreshed between kernel calls; 𝐖ᵀ𝐖 is fixed for the whole
// alternation.
func (m *Model) solveProj(v, h, r *mat.Dense, vMax float64, useOutliers, fresh bool) error {
	k := m.spec.NumComponents
	_, n := v.Dims()

	wtw := mat.NewDense(k, k, nil)
	wtw.Mul(m.w.T(), m.w)

	var (
		vmr    = mat.NewDense(m.nFeatures, n, nil)
		wtv    = mat.NewDense(k, n, nil)
		actual *mat.Dense
		prev   = math.NaN()
	)
	if useOutliers {
		actual = mat.NewDense(m.nFeatures, n, nil)
	}

	for iter := 0; iter < m.spec.HRMaxIter; iter++ {
		if useOutliers {
			vmr.Sub(v, r)
		} else {
			vmr.Copy(v)
		}
		wtv.Mul(m.w.T(), vmr)

		batchErr, err := pgd.SolveH(h, wtv, wtw, m.spec.Kappa)
		if err != nil {
			return err
		}

		if useOutliers {
			actual.Mul(m.w, h)
			actual.Sub(v, actual)
			if fresh {
				batchErr += seedOutliers(r, actual, m.spec.Lambda, vMax)
				fresh = false
			} else {
				dr, err := pgd.SolveR(r, actual, m.spec.Lambda, vMax)
				if err != nil {
					return err
				}
				batchErr += dr
			}
		}
		batchErr /= float64(m.nFeatures)

		if m.log.enable(LogTrace) {
			m.log.log("h_r_error: %v\n", batchErr)
		}

		if math.IsNaN(prev) {
			prev = batchErr
			continue
		}
		if math.Abs(prev-batchErr) < m.spec.HRTolerance {
			break
		}
		prev = batchErr
	}
	return nil
}

// seedOutliers selects the support of a fresh outlier matrix with one
// unrestricted proximal step: every entry whose target residual magnitude
// exceeds lambda becomes active. All later sweeps keep that support fixed,
// since SolveR never activates an exact zero. Returns the Euclidean norm of
// the seeded values as the violation contribution of this step.
func seedOutliers(r, actual *mat.Dense, lambda, vMax float64) float64 {
	r.Apply(func(i, j int, _ float64) float64 {
		a := actual.At(i, j)
		v := math.Abs(a) - lambda
		if v < zero {
			return zero
		}
		return math.Min(math.Max(math.Copysign(v, a), -vMax), vMax)
	}, r)
	return mat.Norm(r, 2)
}

// solveW refits the component matrix by gradient descent on the averaged
// sufficient statistics:
//
//	𝐖 ← 𝐖 - η(𝐖𝐀 - 𝐁)   η = 𝛋/‖𝐀‖F
//
// clipping into [0, v𝚖𝚊𝚡] and renormalizing oversized columns after every
// step. The surrogate objective ½𝚝𝚛(𝐖ᵀ𝐖𝐀) - 𝚝𝚛(𝐖ᵀ𝐁) drives the stop
// condition on relative change.
func (m *Model) solveW() {
	aBar, bBar := m.statA(), m.statB()
	eta := m.spec.Kappa / mat.Norm(aBar, 2)

	surrogate := func() float64 {
		var wa mat.Dense
		wa.Mul(m.w, aBar)
		wd := m.w.RawMatrix().Data
		return 0.5*floats.Dot(wd, wa.RawMatrix().Data) - floats.Dot(wd, bBar.RawMatrix().Data)
	}

	if math.IsNaN(m.wErr) {
		m.wErr = surrogate()
	}

	var grad mat.Dense
	for iter := 0; iter < m.spec.WMaxIter; iter++ {
		if m.log.enable(LogTrace) {
			m.log.log("w_error: %v\n", m.wErr)
		}

		grad.Mul(m.w, aBar)
		grad.Sub(&grad, bBar)
		grad.Scale(eta, &grad)
		m.w.Sub(m.w, &grad)
		m.clipW()

		e := surrogate()
		if math.Abs((e-m.wErr)/m.wErr) < m.spec.WTolerance {
			break
		}
		m.wErr = e
	}
}

// clipW projects 𝐖 back to its feasible set: entries into [0, v𝚖𝚊𝚡] and
// every column with ‖w‖₂ > 1 back onto the unit ball.
func (m *Model) clipW() {
	m.w.Apply(func(_, _ int, v float64) float64 {
		return math.Min(math.Max(v, zero), m.vMax)
	}, m.w)

	col := make([]float64, m.nFeatures)
	for j := 0; j < m.spec.NumComponents; j++ {
		mat.Col(col, j, m.w)
		if norm := floats.Norm(col, 2); norm > one {
			floats.Scale(one/norm, col)
			m.w.SetCol(j, col)
		}
	}
}

// loss reports the Frobenius reconstruction errors ‖𝐕-𝐖𝐇‖F and ‖𝐕-𝐖𝐇-𝐑‖F.
func (m *Model) loss(v, h, r *mat.Dense) (plain, robust float64) {
	var diff mat.Dense
	diff.Mul(m.w, h)
	diff.Sub(v, &diff)
	plain = mat.Norm(&diff, 2)
	if r != nil {
		diff.Sub(&diff, r)
	}
	robust = mat.Norm(&diff, 2)
	return
}
