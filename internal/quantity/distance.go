package quantity

import (
	"fmt"
	"math"

	"github.com/wx-b/cockpit/internal/schedule"
)

// DistanceToInit records the L2 distance of the current parameters to their
// initial values, one value per parameter block. The initial values are
// captured once by the orchestrator at construction time.
type DistanceToInit struct {
	base
}

func NewDistanceToInit(sched schedule.Schedule) *DistanceToInit {
	return &DistanceToInit{base: newBase("distance_to_init", sched)}
}

func (q *DistanceToInit) Extensions(step int) []Extension { return nil }

func (q *DistanceToInit) Compute(step int, ctx *Context) error {
	if len(ctx.Params) != len(ctx.InitParams) {
		return fmt.Errorf("distance_to_init: %d parameter blocks, %d initial blocks",
			len(ctx.Params), len(ctx.InitParams))
	}
	dist := make([]float64, len(ctx.Params))
	for i := range ctx.Params {
		ss := 0.0
		for j := range ctx.Params[i] {
			d := ctx.InitParams[i][j] - ctx.Params[i][j]
			ss += d * d
		}
		dist[i] = math.Sqrt(ss)
	}
	if ctx.Signals != nil {
		ctx.Signals.TrackD2Init(ctx.InitParams, ctx.Params)
	}
	q.store(step, dist)
	return nil
}
