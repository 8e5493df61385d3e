package quantity

import (
	"fmt"

	"github.com/wx-b/cockpit/internal/eigen"
	"github.com/wx-b/cockpit/internal/histogram"
	"github.com/wx-b/cockpit/internal/schedule"
)

// Preset names a curated quantity selection, trading insight against the
// per-step cost of the requested autodiff byproducts.
type Preset string

const (
	// PresetFull tracks everything, including the iterative eigensolver
	// and the two-dimensional gradient histogram.
	PresetFull Preset = "full"
	// PresetBusiness drops the two most expensive quantities.
	PresetBusiness Preset = "business"
	// PresetEconomy keeps only first-order diagnostics.
	PresetEconomy Preset = "economy"
)

// PresetOptions carries the knobs shared by the configured quantities.
type PresetOptions struct {
	Schedule     schedule.Schedule
	HistBins     int
	Hist2DBins   [2]int
	Hist2DRanges [2]histogram.Range
	Eigen        eigen.Options
}

// Configured builds the quantity list for a preset. The returned slice order
// is stable, matching the order results appear in logs and exports.
func Configured(preset Preset, opts PresetOptions) ([]Quantity, error) {
	if opts.Schedule == nil {
		return nil, fmt.Errorf("preset %q: nil schedule", preset)
	}
	sched := opts.Schedule
	bins := opts.HistBins
	if bins <= 0 {
		bins = histogram.DefaultBins
	}
	bins2D := opts.Hist2DBins
	for i := range bins2D {
		if bins2D[i] <= 0 {
			bins2D[i] = histogram.DefaultBins
		}
	}
	ranges2D := opts.Hist2DRanges
	if ranges2D[0].Min == 0 && ranges2D[0].Max == 0 {
		ranges2D[0] = histogram.Range{Min: -1, Max: 1}
	}
	if ranges2D[1].Min == 0 && ranges2D[1].Max == 0 {
		ranges2D[1] = histogram.Range{Min: -2, Max: 2}
	}

	economy := []Quantity{
		NewLoss(sched),
		NewGradNorm(sched),
		NewDistanceToInit(sched),
		NewTime(sched),
		NewAlpha(sched),
		NewInnerTest(sched),
		NewGradHist1D(sched, bins, -1, 1, false),
	}
	business := append(economy,
		NewHessTrace(sched),
		NewNormTest(sched),
	)
	full := append(business,
		NewMaxEigenvalue(sched, opts.Eigen),
		NewGradHist2D(sched, bins2D, ranges2D, false),
	)

	switch preset {
	case PresetEconomy:
		return economy, nil
	case PresetBusiness:
		return business, nil
	case PresetFull:
		return full, nil
	default:
		return nil, fmt.Errorf("unknown preset %q", preset)
	}
}
