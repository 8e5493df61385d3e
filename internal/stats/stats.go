// Package stats holds the per-sample gradient statistics primitives shared
// by the tracked quantities: projections onto a reference direction, exact
// variances across a batch, and layer-wise aggregates over parameter blocks.
//
// Parameter-shaped values are lists of blocks ([][]float64), one slice per
// parameter tensor of the model, flattened.
package stats

import (
	"fmt"
	"math"
)

// LayerwiseDot computes the sum over all parameter blocks of the elementwise
// product of a and b, returning the scalar aggregate. Both lists must have
// equal length and matching per-block shapes.
func LayerwiseDot(a, b [][]float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("parameter list length mismatch: %d vs %d", len(a), len(b))
	}
	total := 0.0
	for i := range a {
		if len(a[i]) != len(b[i]) {
			return 0, fmt.Errorf("parameter block %d shape mismatch: %d vs %d", i, len(a[i]), len(b[i]))
		}
		for j := range a[i] {
			total += a[i][j] * b[i][j]
		}
	}
	return total, nil
}

// ExactVariance computes the variance, across the batch, of the projection of
// each sample's gradient onto direction, aggregated over all parameter
// blocks. batchGrads holds, per parameter block, one gradient slice per
// sample. The result divides by N-1 (unbiased), the same convention used for
// the per-sample loss variance. A direction with zero norm yields 0.
func ExactVariance(batchGrads [][][]float64, direction [][]float64) (float64, error) {
	if len(batchGrads) != len(direction) {
		return 0, fmt.Errorf("parameter list length mismatch: %d batch blocks vs %d direction blocks", len(batchGrads), len(direction))
	}
	if len(batchGrads) == 0 {
		return 0, nil
	}

	norm := 0.0
	for _, block := range direction {
		for _, v := range block {
			norm += v * v
		}
	}
	if norm == 0 {
		return 0, nil
	}

	n := len(batchGrads[0])
	projections := make([]float64, n)
	for b, block := range batchGrads {
		if len(block) != n {
			return 0, fmt.Errorf("parameter block %d has %d samples, block 0 has %d", b, len(block), n)
		}
		for s, grad := range block {
			if len(grad) != len(direction[b]) {
				return 0, fmt.Errorf("parameter block %d shape mismatch: %d vs %d", b, len(grad), len(direction[b]))
			}
			for j := range grad {
				projections[s] += grad[j] * direction[b][j]
			}
		}
	}

	return Variance(projections), nil
}

// Variance is the unbiased sample variance (divides by N-1); 0 for fewer
// than two values.
func Variance(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(n)

	ss := 0.0
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return ss / float64(n-1)
}

// Norms returns the L2 norm of every parameter block.
func Norms(params [][]float64) []float64 {
	out := make([]float64, len(params))
	for i, block := range params {
		out[i] = VectorNorm(block)
	}
	return out
}

// VectorNorm is the L2 norm of a single slice.
func VectorNorm(x []float64) float64 {
	ss := 0.0
	for _, v := range x {
		ss += v * v
	}
	return math.Sqrt(ss)
}

// Scale returns a copy of params with every block multiplied by c.
func Scale(params [][]float64, c float64) [][]float64 {
	out := make([][]float64, len(params))
	for i, block := range params {
		scaled := make([]float64, len(block))
		for j, v := range block {
			scaled[j] = c * v
		}
		out[i] = scaled
	}
	return out
}
