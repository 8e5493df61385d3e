package quantity

import (
	"fmt"

	"github.com/wx-b/cockpit/internal/schedule"
	"github.com/wx-b/cockpit/internal/stats"
)

// GradNorm records the L2 norm of the mini-batch gradient, one value per
// parameter block.
type GradNorm struct {
	base
}

func NewGradNorm(sched schedule.Schedule) *GradNorm {
	return &GradNorm{base: newBase("grad_norm", sched)}
}

func (q *GradNorm) Extensions(step int) []Extension {
	if !q.ShouldCompute(step) {
		return nil
	}
	return []Extension{Grad()}
}

func (q *GradNorm) Compute(step int, ctx *Context) error {
	if len(ctx.Grads) == 0 {
		return fmt.Errorf("grad_norm: no gradients supplied at step %d", step)
	}
	q.store(step, stats.Norms(ctx.Grads))
	return nil
}
