// Package cockpit orchestrates the tracked quantities of a training run. It
// merges their capability requests before each backward pass, maintains the
// iteration-tracking signal state, and fans each step's byproducts out to
// the due quantities.
package cockpit

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/wx-b/cockpit/internal/logger"
	"github.com/wx-b/cockpit/internal/metrics"
	"github.com/wx-b/cockpit/internal/quantity"
	"github.com/wx-b/cockpit/internal/stats"
)

// Cockpit owns the registered quantities and the signal state of one
// training run. It is single-threaded and cooperative with the host loop:
// per tracked step the caller asks RequiredExtensions, runs the backward
// pass, then calls TrackStart with the pre-step byproducts, applies the
// optimizer step, and calls Track with the post-step byproducts.
type Cockpit struct {
	runID      string
	quantities []quantity.Quantity
	signals    *quantity.Signals
	initParams [][]float64

	// search direction of the current iteration, set by TrackStart
	searchDir [][]float64
	log       *logger.Logger
}

// New captures the initial parameter values for distance tracking and
// assigns the run a fresh id.
func New(quantities []quantity.Quantity, initParams [][]float64) *Cockpit {
	init := make([][]float64, len(initParams))
	for i, block := range initParams {
		init[i] = append([]float64(nil), block...)
	}
	c := &Cockpit{
		runID:      uuid.NewString(),
		quantities: quantities,
		signals:    quantity.NewSignals(),
		initParams: init,
		log:        logger.Log.With("cockpit"),
	}
	c.log.Info("cockpit created", "run_id", c.runID, "quantities", len(quantities))
	return c
}

func (c *Cockpit) RunID() string { return c.runID }

// Signals exposes the iteration-tracking series for plotting and export.
func (c *Cockpit) Signals() *quantity.Signals { return c.signals }

// Due reports whether any registered quantity wants the step.
func (c *Cockpit) Due(step int) bool {
	for _, q := range c.quantities {
		if q.ShouldCompute(step) {
			return true
		}
	}
	return false
}

// RequiredExtensions merges the capability requests of every due quantity
// with the orchestrator's own signal needs. Must be called before the
// backward pass; graph retention is a once-per-pass decision.
func (c *Cockpit) RequiredExtensions(step int) (quantity.Request, error) {
	var exts []quantity.Extension
	if c.Due(step) {
		// signal tracking needs the loss variance, the projected gradient
		// and its variance on every tracked step
		exts = append(exts, quantity.Grad(), quantity.BatchGrad(), quantity.BatchLosses())
	}
	for _, q := range c.quantities {
		exts = append(exts, q.Extensions(step)...)
	}
	req, err := quantity.Merge(exts)
	if err != nil {
		metrics.RecordValidationError("merge", "transform_conflict")
		return quantity.Request{}, fmt.Errorf("merging extensions at step %d: %w", step, err)
	}
	return req, nil
}

// CreateGraph reports whether any due quantity needs the computation graph
// kept alive past the backward pass.
func (c *Cockpit) CreateGraph(step int) bool {
	for _, q := range c.quantities {
		if q.CreateGraph(step) {
			return true
		}
	}
	return false
}

// TrackStart records the start-point signals of a tracked step, before the
// optimizer moves the parameters. The gradients define this iteration's
// search direction.
func (c *Cockpit) TrackStart(step int, ctx *quantity.Context) error {
	if !c.Due(step) {
		return nil
	}
	if len(ctx.Grads) == 0 {
		return fmt.Errorf("tracking step %d: no gradients supplied", step)
	}
	c.prepare(ctx)
	c.searchDir = stats.Scale(ctx.Grads, -ctx.LearningRate)

	c.signals.TrackF("0", ctx.BatchLoss)
	c.signals.TrackVarF("0", ctx.BatchLosses)
	if err := c.signals.TrackDF("0", c.searchDir, ctx.Grads); err != nil {
		return fmt.Errorf("tracking step %d: %w", step, err)
	}
	if len(ctx.BatchGrads) > 0 {
		if err := c.signals.TrackVarDF("0", ctx.BatchGrads, c.searchDir); err != nil {
			return fmt.Errorf("tracking step %d: %w", step, err)
		}
	}
	// order matters: dtravel derives from the latest grad_norms entry
	c.signals.TrackGradNorms(ctx.Grads)
	c.signals.TrackDTravel(ctx.LearningRate)
	return nil
}

// Track records the end-point signals of a tracked step and runs every due
// quantity. A failing quantity is skipped and reported; it never corrupts
// the series of the others or prevents their scheduled execution.
func (c *Cockpit) Track(step int, ctx *quantity.Context) error {
	if !c.Due(step) {
		return nil
	}
	c.prepare(ctx)

	c.signals.TrackF("1", ctx.BatchLoss)
	c.signals.TrackVarF("1", ctx.BatchLosses)
	var errs []error
	if len(ctx.Grads) > 0 && c.searchDir != nil {
		if err := c.signals.TrackDF("1", c.searchDir, ctx.Grads); err != nil {
			errs = append(errs, fmt.Errorf("tracking step %d: %w", step, err))
		}
		if len(ctx.BatchGrads) > 0 {
			if err := c.signals.TrackVarDF("1", ctx.BatchGrads, c.searchDir); err != nil {
				errs = append(errs, fmt.Errorf("tracking step %d: %w", step, err))
			}
		}
	}

	for _, q := range c.quantities {
		if !q.ShouldCompute(step) {
			continue
		}
		start := time.Now()
		err := q.Compute(step, ctx)
		metrics.RecordComputeDuration(q.Name(), time.Since(start))
		if err != nil {
			metrics.RecordQuantityFailure(q.Name())
			c.log.Warn("quantity failed", "quantity", q.Name(), "step", step, "error", err)
			errs = append(errs, fmt.Errorf("quantity %s at step %d: %w", q.Name(), step, err))
		}
	}

	c.recordMetrics(ctx)
	return errors.Join(errs...)
}

func (c *Cockpit) prepare(ctx *quantity.Context) {
	ctx.Signals = c.signals
	ctx.InitParams = c.initParams
}

func (c *Cockpit) recordMetrics(ctx *quantity.Context) {
	metrics.RecordTrackedStep(ctx.BatchLoss)
	if len(ctx.Grads) > 0 {
		metrics.RecordGradNorm(stats.VectorNorm(stats.Norms(ctx.Grads)))
	}
	if alphas := c.signals.Scalar(quantity.SigAlpha); len(alphas) > 0 {
		if a := alphas[len(alphas)-1]; !math.IsNaN(a) {
			metrics.RecordAlpha(a)
		}
	}
	if evs := c.signals.Scalar(quantity.SigMaxEV); len(evs) > 0 {
		metrics.RecordMaxEigenvalue(evs[len(evs)-1])
	}
	if traces := c.signals.Vector(quantity.SigTrace); len(traces) > 0 {
		total := 0.0
		for _, v := range traces[len(traces)-1] {
			total += v
		}
		metrics.RecordHessTrace(total)
	}
}

// Output returns the time series of a registered quantity by name; nil when
// no quantity carries the name.
func (c *Cockpit) Output(name string) map[int]any {
	for _, q := range c.quantities {
		if q.Name() == name {
			return q.Output()
		}
	}
	return nil
}

// Quantities exposes the registered quantities in registration order.
func (c *Cockpit) Quantities() []quantity.Quantity { return c.quantities }

// Reset clears every quantity's series and the signal state for reuse
// across independent runs. The run id and initial parameters stay.
func (c *Cockpit) Reset() {
	for _, q := range c.quantities {
		q.Reset()
	}
	c.signals.Reset()
	c.searchDir = nil
}
