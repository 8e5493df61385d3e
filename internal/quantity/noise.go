package quantity

import (
	"fmt"
	"math"

	"github.com/wx-b/cockpit/internal/schedule"
	"github.com/wx-b/cockpit/internal/stats"
)

// Transform names shared by the noise tests. Both tests hand the same
// function values to the merge, so tracking them together costs one
// backward-pass condensation, not two.
const (
	TransformBatchDotGrad  = "grad_batch_dot_grad"
	TransformBatchL2Square = "grad_batch_l2_squared"
)

// batchDotGrad condenses a block of per-sample gradients into the dot
// product of each sample with the block mean gradient.
func batchDotGrad(block [][]float64) []float64 {
	if len(block) == 0 {
		return nil
	}
	n := float64(len(block))
	mean := make([]float64, len(block[0]))
	for _, grad := range block {
		for j, v := range grad {
			mean[j] += v / n
		}
	}
	out := make([]float64, len(block))
	for i, grad := range block {
		for j, v := range grad {
			out[i] += v * mean[j]
		}
	}
	return out
}

// batchL2Squared condenses a block of per-sample gradients into the squared
// L2 norm of each sample.
func batchL2Squared(block [][]float64) []float64 {
	out := make([]float64, len(block))
	for i, grad := range block {
		for _, v := range grad {
			out[i] += v * v
		}
	}
	return out
}

// sumPerSample adds the condensed per-block values into one total per
// sample.
func sumPerSample(blocks [][]float64) []float64 {
	var out []float64
	for _, block := range blocks {
		if out == nil {
			out = make([]float64, len(block))
		}
		for i, v := range block {
			out[i] += v
		}
	}
	return out
}

// NormTest records the norm test of Byrd et al.: the relative standard
// deviation of the per-sample gradient norms around the mini-batch gradient.
type NormTest struct {
	base
}

func NewNormTest(sched schedule.Schedule) *NormTest {
	return &NormTest{base: newBase("norm_test", sched)}
}

func (q *NormTest) Extensions(step int) []Extension {
	if !q.ShouldCompute(step) {
		return nil
	}
	return []Extension{
		Grad(),
		BatchGradTransforms(map[string]TransformFunc{TransformBatchL2Square: batchL2Squared}),
	}
}

func (q *NormTest) Compute(step int, ctx *Context) error {
	normsSq := sumPerSample(ctx.TransformResults[TransformBatchL2Square])
	n := len(normsSq)
	if n < 2 {
		return fmt.Errorf("norm_test: needs at least 2 samples, got %d", n)
	}
	gradNormSq := 0.0
	for _, block := range ctx.Grads {
		for _, v := range block {
			gradNormSq += v * v
		}
	}
	if gradNormSq == 0 {
		return fmt.Errorf("norm_test: zero gradient norm at step %d", step)
	}
	sum := 0.0
	for _, v := range normsSq {
		sum += v / gradNormSq
	}
	nf := float64(n)
	q.store(step, math.Sqrt((sum-nf)/(nf*(nf-1))))
	return nil
}

// InnerTest records the inner-product test of Bollapragada et al.: the
// relative variance of the per-sample gradient projections onto the
// mini-batch gradient.
type InnerTest struct {
	base
}

func NewInnerTest(sched schedule.Schedule) *InnerTest {
	return &InnerTest{base: newBase("inner_test", sched)}
}

func (q *InnerTest) Extensions(step int) []Extension {
	if !q.ShouldCompute(step) {
		return nil
	}
	return []Extension{
		Grad(),
		BatchGradTransforms(map[string]TransformFunc{TransformBatchDotGrad: batchDotGrad}),
	}
}

func (q *InnerTest) Compute(step int, ctx *Context) error {
	projections := sumPerSample(ctx.TransformResults[TransformBatchDotGrad])
	n := len(projections)
	if n < 2 {
		return fmt.Errorf("inner_test: needs at least 2 samples, got %d", n)
	}
	gradNorm := stats.VectorNorm(flatten(ctx.Grads))
	if gradNorm == 0 {
		return fmt.Errorf("inner_test: zero gradient norm at step %d", step)
	}
	norm4 := gradNorm * gradNorm * gradNorm * gradNorm
	sum := 0.0
	for _, p := range projections {
		sum += p * p / norm4
	}
	nf := float64(n)
	q.store(step, math.Sqrt((sum-nf)/(nf*(nf-1))))
	return nil
}

func flatten(blocks [][]float64) []float64 {
	total := 0
	for _, b := range blocks {
		total += len(b)
	}
	out := make([]float64, 0, total)
	for _, b := range blocks {
		out = append(out, b...)
	}
	return out
}
