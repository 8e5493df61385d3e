package quantity

import (
	"time"

	"github.com/wx-b/cockpit/internal/schedule"
)

// Time records the wall-clock time of due steps, letting plots relate other
// quantities to training throughput.
type Time struct {
	base
	now func() time.Time
}

func NewTime(sched schedule.Schedule) *Time {
	return &Time{base: newBase("time", sched), now: time.Now}
}

func (q *Time) Extensions(step int) []Extension { return nil }

func (q *Time) Compute(step int, ctx *Context) error {
	q.store(step, q.now())
	return nil
}
