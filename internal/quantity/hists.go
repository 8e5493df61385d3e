package quantity

import (
	"fmt"

	"github.com/wx-b/cockpit/internal/histogram"
	"github.com/wx-b/cockpit/internal/schedule"
)

// GradHist1D records a one-dimensional histogram of the individual gradient
// elements over all samples and parameter blocks.
type GradHist1D struct {
	base
	bins  int
	xmin  float64
	xmax  float64
	adapt bool
}

// NewGradHist1D builds the quantity with a fixed element range. With adapt
// set, the range is derived from the data on every due step instead.
func NewGradHist1D(sched schedule.Schedule, bins int, xmin, xmax float64, adapt bool) *GradHist1D {
	return &GradHist1D{base: newBase("grad_hist_1d", sched), bins: bins, xmin: xmin, xmax: xmax, adapt: adapt}
}

func (q *GradHist1D) Extensions(step int) []Extension {
	if !q.ShouldCompute(step) {
		return nil
	}
	return []Extension{BatchGrad()}
}

func (q *GradHist1D) Compute(step int, ctx *Context) error {
	if len(ctx.BatchGrads) == 0 {
		return fmt.Errorf("grad_hist_1d: no per-sample gradients supplied at step %d", step)
	}
	// one dimension, one value per (sample, element) pair
	var values []float64
	for _, block := range ctx.BatchGrads {
		for _, grad := range block {
			values = append(values, grad...)
		}
	}
	ranges := []*histogram.Range{nil}
	if !q.adapt {
		ranges[0] = &histogram.Range{Min: q.xmin, Max: q.xmax}
	}
	h, err := histogram.HistogramDD([][]float64{values}, histogram.Bins(q.bins), ranges, nil, true)
	if err != nil {
		return fmt.Errorf("grad_hist_1d at step %d: %w", step, err)
	}
	q.store(step, h)
	return nil
}

// GradHist2D records a two-dimensional histogram over (gradient element,
// parameter value) pairs, showing where in parameter space the large
// gradient entries live. Uses the fixed-bin fast path, so pairs outside the
// configured ranges are dropped.
type GradHist2D struct {
	base
	bins   [2]int
	ranges [2]histogram.Range
	check  bool
}

func NewGradHist2D(sched schedule.Schedule, bins [2]int, ranges [2]histogram.Range, checkInput bool) *GradHist2D {
	return &GradHist2D{base: newBase("grad_hist_2d", sched), bins: bins, ranges: ranges, check: checkInput}
}

func (q *GradHist2D) Extensions(step int) []Extension {
	if !q.ShouldCompute(step) {
		return nil
	}
	return []Extension{Grad()}
}

func (q *GradHist2D) Compute(step int, ctx *Context) error {
	if len(ctx.Grads) == 0 {
		return fmt.Errorf("grad_hist_2d: no gradients supplied at step %d", step)
	}
	if len(ctx.Grads) != len(ctx.Params) {
		return fmt.Errorf("grad_hist_2d: %d gradient blocks, %d parameter blocks",
			len(ctx.Grads), len(ctx.Params))
	}
	// two dimensions: one row of gradient values, one row of parameter values
	var gradRow, paramRow []float64
	for i := range ctx.Grads {
		if len(ctx.Grads[i]) != len(ctx.Params[i]) {
			return fmt.Errorf("grad_hist_2d: block %d has %d gradient entries, %d parameters",
				i, len(ctx.Grads[i]), len(ctx.Params[i]))
		}
		gradRow = append(gradRow, ctx.Grads[i]...)
		paramRow = append(paramRow, ctx.Params[i]...)
	}
	h, err := histogram.Histogram2D([][]float64{gradRow, paramRow}, q.bins, q.ranges, q.check)
	if err != nil {
		return fmt.Errorf("grad_hist_2d at step %d: %w", step, err)
	}
	q.store(step, h)
	return nil
}
