package quantity

import "github.com/wx-b/cockpit/internal/schedule"

// Quantity is a single trackable diagnostic. Implementations declare when
// they run and what autodiff byproducts they need; the orchestrator merges
// those declarations, fills a Context, and calls Compute on due steps.
type Quantity interface {
	// Name identifies the quantity in output, metrics and logs.
	Name() string

	// ShouldCompute reports whether the quantity is due at the step.
	ShouldCompute(step int) bool

	// Extensions lists the capability requests for the step. Empty when
	// not due.
	Extensions(step int) []Extension

	// CreateGraph reports whether second-order byproducts must be kept
	// alive at the step.
	CreateGraph(step int) bool

	// Compute evaluates the quantity and stores its result keyed by step.
	Compute(step int, ctx *Context) error

	// Output returns all results computed so far, keyed by step.
	Output() map[int]any

	// Reset clears accumulated output for reuse across runs.
	Reset()
}

// base carries the shared schedule and output bookkeeping every concrete
// quantity embeds.
type base struct {
	name     string
	schedule schedule.Schedule
	output   map[int]any
}

func newBase(name string, sched schedule.Schedule) base {
	return base{name: name, schedule: sched, output: make(map[int]any)}
}

func (b *base) Name() string { return b.name }

func (b *base) ShouldCompute(step int) bool { return b.schedule(step) }

func (b *base) CreateGraph(step int) bool { return false }

func (b *base) Output() map[int]any { return b.output }

func (b *base) Reset() { b.output = make(map[int]any) }

func (b *base) store(step int, value any) {
	b.output[step] = value
}
