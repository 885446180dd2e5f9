// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pgd provides the per-variable update kernels of a robust,
// sparsity-regularized matrix factorization 𝐕 ≈ 𝐖𝐇 + 𝐑 where
//   - 𝐇 is a non-negative coefficient matrix
//   - 𝐑 is a sparse outlier matrix with entries bounded by ±v𝚖𝚊𝚡
//
// The kernels perform exactly one in-place sweep each and return a scalar
// violation used by an outer alternating-minimization driver as its
// convergence signal. They share no state and allocate nothing: the driver
// owns every buffer, recomputes the precomputed terms between calls and
// decides when to stop.
package pgd

import "errors"

const (
	zero = 0.0
	one  = 1.0
)

var (
	// ErrShapeMismatch input matrix dimensions are incompatible.
	ErrShapeMismatch = errors.New("pgd: shape mismatch")
	// ErrGramDegenerate the Gram matrix has a zero diagonal element.
	ErrGramDegenerate = errors.New("pgd: degenerate gram diagonal")
)
