package quantity

import (
	"fmt"

	"github.com/wx-b/cockpit/internal/eigen"
	"github.com/wx-b/cockpit/internal/schedule"
)

// HessTrace records the trace of the Hessian, one partial sum per parameter
// block, from the diagonal supplied by the autodiff collaborator.
type HessTrace struct {
	base
}

func NewHessTrace(sched schedule.Schedule) *HessTrace {
	return &HessTrace{base: newBase("hess_trace", sched)}
}

func (q *HessTrace) Extensions(step int) []Extension {
	if !q.ShouldCompute(step) {
		return nil
	}
	return []Extension{HessDiag()}
}

func (q *HessTrace) Compute(step int, ctx *Context) error {
	if len(ctx.HessDiag) == 0 {
		return fmt.Errorf("hess_trace: no Hessian diagonal supplied at step %d", step)
	}
	trace := make([]float64, len(ctx.HessDiag))
	for i, block := range ctx.HessDiag {
		for _, v := range block {
			trace[i] += v
		}
	}
	if ctx.Signals != nil {
		ctx.Signals.TrackTrace(ctx.HessDiag)
	}
	q.store(step, trace)
	return nil
}

// MaxEigenvalue records the dominant eigenvalue of the Hessian, estimated
// iteratively through the collaborator's Hessian-vector product. The
// computation graph must stay alive on due steps for the products to work.
type MaxEigenvalue struct {
	base
	opts eigen.Options
}

func NewMaxEigenvalue(sched schedule.Schedule, opts eigen.Options) *MaxEigenvalue {
	return &MaxEigenvalue{base: newBase("max_eigenvalue", sched), opts: opts}
}

func (q *MaxEigenvalue) Extensions(step int) []Extension {
	if !q.ShouldCompute(step) {
		return nil
	}
	return []Extension{HVP()}
}

func (q *MaxEigenvalue) CreateGraph(step int) bool {
	return q.ShouldCompute(step)
}

func (q *MaxEigenvalue) Compute(step int, ctx *Context) error {
	if ctx.HVP == nil {
		return fmt.Errorf("max_eigenvalue: no Hessian-vector operator supplied at step %d", step)
	}
	ev, err := eigen.TopEigenvalue(ctx.HVP, q.opts)
	if err != nil {
		return fmt.Errorf("max_eigenvalue at step %d: %w", step, err)
	}
	if ctx.Signals != nil {
		ctx.Signals.TrackMaxEV(ev)
	}
	q.store(step, ev)
	return nil
}
