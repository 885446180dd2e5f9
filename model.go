// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package nmf implements online non-negative matrix factorization with an
// optional sparse outlier term: a corpus of dense mini-batches 𝐕 is
// factorized as 𝐕 ≈ 𝐖𝐇 + 𝐑 where
//   - 𝐖 (features × components) holds the non-negative components
//   - 𝐇 (components × samples) holds the non-negative coefficients
//   - 𝐑 (features × samples) absorbs sparse deviations bounded by ±v𝚖𝚊𝚡
//
// Training alternates the projected coordinate-descent kernels of package
// pgd on 𝐇 and 𝐑 with a projected gradient descent on 𝐖 driven by the
// averaged sufficient statistics 𝐀 = 𝚖𝚎𝚊𝚗(𝐇𝐇ᵀ) and 𝐁 = 𝚖𝚎𝚊𝚗((𝐕-𝐑)𝐇ᵀ), so the
// model learns incrementally from batches without revisiting old data.
//
// The method follows Zhao & Tan, "Online Nonnegative Matrix Factorization
// with Outliers" (2016).
package nmf

import (
	"errors"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	zero = 0.0
	one  = 1.0
)

var (
	// ErrEmptyCorpus no batch was provided for training.
	ErrEmptyCorpus = errors.New("nmf: empty corpus")
	// ErrShapeMismatch a batch feature dimension does not match the model.
	ErrShapeMismatch = errors.New("nmf: batch shape mismatch")
	// ErrNotTrained the model has not seen any batch yet.
	ErrNotTrained = errors.New("nmf: model not trained")
)

// Spec specifies an online robust NMF model.
// Zero-valued numeric fields fall back to the documented defaults.
type Spec struct {
	// NumComponents is the number of components k of the factorization.
	NumComponents int
	// Lambda is the weight of the outlier regularizer (default 1).
	Lambda float64
	// Kappa is the optimization step size (default 1).
	Kappa float64
	// VMax bounds the entries of 𝐖 and 𝐑. When zero it is derived from the
	// maximum entry of the first training batch.
	VMax float64
	// UseOutliers enables the residual matrix 𝐑. When false the model is a
	// plain online NMF and 𝐑 stays zero.
	UseOutliers bool
	// Passes is the number of full passes over the corpus (default 1).
	Passes int
	// WMaxIter bounds the 𝐖 sub-problem iterations (default 200).
	WMaxIter int
	// WTolerance stops the 𝐖 sub-problem on relative error change (default 1e-4).
	WTolerance float64
	// HRMaxIter bounds the 𝐇/𝐑 alternation per batch (default 50).
	HRMaxIter int
	// HRTolerance stops the 𝐇/𝐑 alternation on violation change (default 1e-3).
	HRTolerance float64
	// EvalEvery controls how often losses are logged, in batches (default 10).
	EvalEvery int
	// Normalize scales inferred coefficient columns to sum to one.
	Normalize bool
	// MinProbability filters small entries from TopTerms output (default 0.01).
	MinProbability float64
	// Seed seeds the random initialization of 𝐖 (default 42).
	Seed uint64
}

// New validates the spec and creates an untrained model.
// The component matrix is initialized lazily from the first batch.
func (s *Spec) New(log *Logger) (*Model, error) {
	spec := *s

	if spec.Lambda == zero {
		spec.Lambda = one
	}
	if spec.Kappa == zero {
		spec.Kappa = one
	}
	if spec.Passes == 0 {
		spec.Passes = 1
	}
	if spec.WMaxIter == 0 {
		spec.WMaxIter = 200
	}
	if spec.WTolerance == zero {
		spec.WTolerance = 1e-4
	}
	if spec.HRMaxIter == 0 {
		spec.HRMaxIter = 50
	}
	if spec.HRTolerance == zero {
		spec.HRTolerance = 1e-3
	}
	if spec.EvalEvery == 0 {
		spec.EvalEvery = 10
	}
	if spec.MinProbability == zero {
		spec.MinProbability = 0.01
	}
	if spec.Seed == 0 {
		spec.Seed = 42
	}

	switch {
	case spec.NumComponents <= 0:
		return nil, errors.New("nmf: component number must greater than 0")
	case spec.Lambda < zero:
		return nil, errors.New("nmf: lambda must not less than 0")
	case spec.Kappa <= zero:
		return nil, errors.New("nmf: kappa must greater than 0")
	case spec.VMax < zero:
		return nil, errors.New("nmf: vmax must not less than 0")
	case spec.Passes < 0 || spec.WMaxIter < 0 || spec.HRMaxIter < 0:
		return nil, errors.New("nmf: iteration limits must not less than 0")
	case spec.WTolerance < zero || spec.HRTolerance < zero:
		return nil, errors.New("nmf: tolerances must not less than 0")
	}

	return &Model{spec: spec, log: log, wErr: math.NaN()}, nil
}

// Model holds the state of an online robust NMF factorization.
// A model is not safe for concurrent use.
type Model struct {
	spec Spec
	log  *Logger

	nFeatures int
	vMax      float64

	// w is the nFeatures × k component matrix.
	w *mat.Dense
	// a, b accumulate the raw sufficient statistics ∑𝐇𝐇ᵀ and ∑(𝐕-𝐑)𝐇ᵀ.
	a, b    *mat.Dense
	batches int

	// h, r carry the last batch solution for warm starts.
	h, r *mat.Dense

	wErr float64
}

// Spec returns the effective (defaulted) spec of the model.
func (m *Model) Spec() Spec { return m.spec }

// NumFeatures returns the feature dimension, or 0 before training.
func (m *Model) NumFeatures() int { return m.nFeatures }

// VMax returns the effective magnitude bound on 𝐖 and 𝐑 entries.
func (m *Model) VMax() float64 { return m.vMax }

// W exposes the current component matrix.
// The returned matrix is shared with the model and must not be mutated.
func (m *Model) W() mat.Matrix {
	if m.w == nil {
		return nil
	}
	return m.w
}

// Outliers exposes the outlier matrix solved for the most recent batch,
// or nil when no batch was trained with outliers enabled.
// The returned matrix is shared with the model and must not be mutated.
func (m *Model) Outliers() mat.Matrix {
	if !m.spec.UseOutliers || m.r == nil {
		return nil
	}
	return m.r
}

// setup sizes the model state from the first training batch and draws the
// initial 𝐖 from a scaled half-normal distribution.
func (m *Model) setup(v *mat.Dense) {
	rows, cols := v.Dims()
	k := m.spec.NumComponents

	m.nFeatures = rows
	if m.vMax = m.spec.VMax; m.vMax == zero {
		m.vMax = mat.Max(v)
	}

	avg := math.Sqrt(mat.Sum(v) / float64(rows*cols) / float64(rows))
	norm := distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewSource(m.spec.Seed)}

	m.w = mat.NewDense(rows, k, nil)
	scale := avg / math.Sqrt(float64(k))
	for i := 0; i < rows; i++ {
		for j := 0; j < k; j++ {
			m.w.Set(i, j, math.Abs(norm.Rand())*scale)
		}
	}

	m.a = mat.NewDense(k, k, nil)
	m.b = mat.NewDense(rows, k, nil)
}

// statA returns the averaged statistic 𝐀 = ∑𝐇𝐇ᵀ / batches.
func (m *Model) statA() *mat.Dense {
	a := mat.DenseCopyOf(m.a)
	a.Scale(one/float64(m.batches), a)
	return a
}

// statB returns the averaged statistic 𝐁 = ∑(𝐕-𝐑)𝐇ᵀ / batches.
func (m *Model) statB() *mat.Dense {
	b := mat.DenseCopyOf(m.b)
	b.Scale(one/float64(m.batches), b)
	return b
}
