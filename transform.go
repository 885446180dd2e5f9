// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nmf

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Transform infers the non-negative coefficient matrix for a batch of
// unseen samples without updating the model: the coefficient sub-problem is
// solved against the current 𝐖 with an unbounded residual and no outlier
// term. When Spec.Normalize is set every coefficient column is scaled to
// sum to one.
func (m *Model) Transform(v *mat.Dense) (*mat.Dense, error) {
	if m.w == nil {
		return nil, ErrNotTrained
	}
	rows, cols := v.Dims()
	if rows != m.nFeatures {
		return nil, ErrShapeMismatch
	}

	k := m.spec.NumComponents
	h := mat.NewDense(k, cols, nil)
	if err := m.solveProj(v, h, nil, math.Inf(1), false, false); err != nil {
		return nil, err
	}

	if m.spec.Normalize {
		col := make([]float64, k)
		for j := 0; j < cols; j++ {
			mat.Col(col, j, h)
			if sum := floats.Sum(col); sum > zero {
				floats.Scale(one/sum, col)
				h.SetCol(j, col)
			}
		}
	}
	return h, nil
}

// Topics returns the k × nFeatures component matrix 𝐖ᵀ, with every row
// scaled to a probability distribution when Spec.Normalize is set.
func (m *Model) Topics() (*mat.Dense, error) {
	if m.w == nil {
		return nil, ErrNotTrained
	}

	k := m.spec.NumComponents
	t := mat.NewDense(k, m.nFeatures, nil)
	t.Copy(m.w.T())

	if m.spec.Normalize {
		row := make([]float64, m.nFeatures)
		for i := 0; i < k; i++ {
			mat.Row(row, i, t)
			if sum := floats.Sum(row); sum > zero {
				floats.Scale(one/sum, row)
				t.SetRow(i, row)
			}
		}
	}
	return t, nil
}

// TopTerms returns the feature indices of the given component ordered by
// descending weight, at most topn of them.
func (m *Model) TopTerms(component, topn int) ([]int, error) {
	t, err := m.Topics()
	if err != nil {
		return nil, err
	}
	if component < 0 || component >= m.spec.NumComponents {
		return nil, ErrShapeMismatch
	}

	row := make([]float64, m.nFeatures)
	mat.Row(row, component, t)

	idx := make([]int, len(row))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return row[idx[a]] > row[idx[b]] })

	if topn < len(idx) {
		idx = idx[:topn]
	}
	return idx, nil
}

// TermTopics returns the components for which the given feature carries a
// weight of at least Spec.MinProbability, with the matching weights.
func (m *Model) TermTopics(feature int) ([]int, []float64, error) {
	if m.w == nil {
		return nil, nil, ErrNotTrained
	}
	if feature < 0 || feature >= m.nFeatures {
		return nil, nil, ErrShapeMismatch
	}

	minProb := math.Max(m.spec.MinProbability, 1e-8)

	var (
		ids     []int
		weights []float64
	)
	for j := 0; j < m.spec.NumComponents; j++ {
		if w := m.w.At(feature, j); w >= minProb {
			ids = append(ids, j)
			weights = append(weights, w)
		}
	}
	return ids, weights, nil
}
