package quantity

import "github.com/wx-b/cockpit/internal/schedule"

// Loss records the mini-batch loss on due steps. The value comes straight
// from the training loop, so no autodiff byproducts are requested.
type Loss struct {
	base
}

func NewLoss(sched schedule.Schedule) *Loss {
	return &Loss{base: newBase("loss", sched)}
}

func (q *Loss) Extensions(step int) []Extension { return nil }

func (q *Loss) Compute(step int, ctx *Context) error {
	q.store(step, ctx.BatchLoss)
	return nil
}
