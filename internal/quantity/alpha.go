package quantity

import (
	"fmt"

	"github.com/wx-b/cockpit/internal/schedule"
)

// Alpha records the effective relative step size, measured against the local
// 1D quadratic approximation of the loss along the search direction. Zero
// means the step landed on the minimum of the parabola, -1 means the
// parameters did not move, 1 means a symmetric overshoot to the other side.
//
// The fit consumes the start/end observations accumulated in the signal
// state by the orchestrator; when no fit is possible (typically all
// variances zero) the stored value is nil.
type Alpha struct {
	base
}

func NewAlpha(sched schedule.Schedule) *Alpha {
	return &Alpha{base: newBase("alpha", sched)}
}

func (q *Alpha) Extensions(step int) []Extension {
	if !q.ShouldCompute(step) {
		return nil
	}
	return []Extension{Grad(), BatchGrad(), BatchLosses()}
}

func (q *Alpha) Compute(step int, ctx *Context) error {
	if ctx.Signals == nil {
		return fmt.Errorf("alpha: no signal state at step %d", step)
	}
	alpha, ok := ctx.Signals.TrackAlpha()
	if !ok {
		q.store(step, nil)
		return nil
	}
	q.store(step, alpha)
	return nil
}
