package quantity

import (
	"math"

	"github.com/wx-b/cockpit/internal/logger"
	"github.com/wx-b/cockpit/internal/quadfit"
	"github.com/wx-b/cockpit/internal/stats"
)

// Signal names. The "0"/"1" suffix marks the start and end point of an
// iteration.
const (
	SigF0        = "f0"
	SigF1        = "f1"
	SigVarF0     = "var_f0"
	SigVarF1     = "var_f1"
	SigDF0       = "df0"
	SigDF1       = "df1"
	SigVarDF0    = "var_df0"
	SigVarDF1    = "var_df1"
	SigGradNorms = "grad_norms"
	SigDTravel   = "dtravel"
	SigTrace     = "trace"
	SigMaxEV     = "max_ev"
	SigD2Init    = "d2init"
	SigAlpha     = "alpha"
)

// Signals is the iteration-tracking state: named, append-only series of
// per-iteration observations, owned by the orchestrator and read by
// quantities that combine signals. Some series hold scalars, some one value
// per parameter block.
//
// Tracking functions must run in a fixed order within one iteration:
// TrackGradNorms before TrackDTravel (dtravel derives from the latest
// grad_norms entry), and all start/end observations before TrackAlpha.
// Violating the order yields stale or missing dependent values, not a crash.
type Signals struct {
	scalars map[string][]float64
	vectors map[string][][]float64
}

func NewSignals() *Signals {
	s := &Signals{}
	s.Reset()
	return s
}

// Reset clears every series for reuse across independent runs.
func (s *Signals) Reset() {
	s.scalars = make(map[string][]float64)
	s.vectors = make(map[string][][]float64)
}

// Scalar returns the series of a scalar signal; nil if never tracked.
func (s *Signals) Scalar(name string) []float64 {
	return s.scalars[name]
}

// Vector returns the series of a per-block signal; nil if never tracked.
func (s *Signals) Vector(name string) [][]float64 {
	return s.vectors[name]
}

func (s *Signals) lastScalar(name string) (float64, bool) {
	series := s.scalars[name]
	if len(series) == 0 {
		return 0, false
	}
	return series[len(series)-1], true
}

func (s *Signals) lastVector(name string) ([]float64, bool) {
	series := s.vectors[name]
	if len(series) == 0 {
		return nil, false
	}
	return series[len(series)-1], true
}

// TrackF records the batch loss at the start ("0") or end ("1") point.
func (s *Signals) TrackF(point string, batchLoss float64) {
	s.scalars["f"+point] = append(s.scalars["f"+point], batchLoss)
}

// TrackVarF records the variance of the per-example losses at the start or
// end point.
func (s *Signals) TrackVarF(point string, batchLosses []float64) {
	s.scalars["var_f"+point] = append(s.scalars["var_f"+point], stats.Variance(batchLosses))
}

// TrackDF records the gradient projected onto the normalized search
// direction at the start or end point.
func (s *Signals) TrackDF(point string, searchDir, grads [][]float64) error {
	unit, ok := normalizeDir(searchDir)
	if !ok {
		s.scalars["df"+point] = append(s.scalars["df"+point], 0)
		return nil
	}
	proj, err := stats.LayerwiseDot(unit, grads)
	if err != nil {
		return err
	}
	s.scalars["df"+point] = append(s.scalars["df"+point], proj)
	return nil
}

// TrackVarDF records the variance of the projected per-sample gradients at
// the start or end point.
func (s *Signals) TrackVarDF(point string, batchGrads [][][]float64, searchDir [][]float64) error {
	unit, ok := normalizeDir(searchDir)
	if !ok {
		s.scalars["var_df"+point] = append(s.scalars["var_df"+point], 0)
		return nil
	}
	v, err := stats.ExactVariance(batchGrads, unit)
	if err != nil {
		return err
	}
	s.scalars["var_df"+point] = append(s.scalars["var_df"+point], v)
	return nil
}

// TrackGradNorms records the L2 norm of the current gradient per block.
func (s *Signals) TrackGradNorms(grads [][]float64) {
	s.vectors[SigGradNorms] = append(s.vectors[SigGradNorms], stats.Norms(grads))
}

// TrackDTravel records the distance traveled this iteration, derived from
// the latest grad_norms entry. Only valid for SGD without momentum.
func (s *Signals) TrackDTravel(learningRate float64) {
	norms, ok := s.lastVector(SigGradNorms)
	if !ok {
		logger.Log.Warn("dtravel requested before grad_norms, skipping")
		return
	}
	travel := make([]float64, len(norms))
	for i, n := range norms {
		travel[i] = n * learningRate
	}
	s.vectors[SigDTravel] = append(s.vectors[SigDTravel], travel)
}

// TrackTrace records the Hessian trace contribution per block.
func (s *Signals) TrackTrace(hessDiag [][]float64) {
	trace := make([]float64, len(hessDiag))
	for i, block := range hessDiag {
		for _, v := range block {
			trace[i] += v
		}
	}
	s.vectors[SigTrace] = append(s.vectors[SigTrace], trace)
}

// TrackMaxEV records the dominant Hessian eigenvalue.
func (s *Signals) TrackMaxEV(ev float64) {
	s.scalars[SigMaxEV] = append(s.scalars[SigMaxEV], ev)
}

// TrackD2Init records the L2 distance of the current parameters to their
// initial values, per block.
func (s *Signals) TrackD2Init(init, params [][]float64) {
	dist := make([]float64, len(params))
	for i := range params {
		if i >= len(init) {
			break
		}
		ss := 0.0
		for j := range params[i] {
			d := init[i][j] - params[i][j]
			ss += d * d
		}
		dist[i] = math.Sqrt(ss)
	}
	s.vectors[SigD2Init] = append(s.vectors[SigD2Init], dist)
}

// TrackAlpha fits the noise-aware quadratic to the latest start/end
// observations and records the normalized step-size ratio. When no fit is
// possible, NaN is appended and ok is false.
func (s *Signals) TrackAlpha() (float64, bool) {
	travel, okT := s.lastVector(SigDTravel)
	f0, ok0 := s.lastScalar(SigF0)
	f1, ok1 := s.lastScalar(SigF1)
	df0, ok2 := s.lastScalar(SigDF0)
	df1, ok3 := s.lastScalar(SigDF1)
	if !okT || !ok0 || !ok1 || !ok2 || !ok3 {
		s.scalars[SigAlpha] = append(s.scalars[SigAlpha], math.NaN())
		return 0, false
	}

	t := stats.VectorNorm(travel)
	varF0, _ := s.lastScalar(SigVarF0)
	varF1, _ := s.lastScalar(SigVarF1)
	varDF0, _ := s.lastScalar(SigVarDF0)
	varDF1, _ := s.lastScalar(SigVarDF1)

	fit, okFit := quadfit.FitQuadratic(t,
		[2]float64{f0, f1},
		[2]float64{df0, df1},
		[2]float64{varF0, varF1},
		[2]float64{varDF0, varDF1},
	)
	alpha, okAlpha := quadfit.Alpha(fit, okFit, t)
	if !okAlpha {
		s.scalars[SigAlpha] = append(s.scalars[SigAlpha], math.NaN())
		return 0, false
	}
	s.scalars[SigAlpha] = append(s.scalars[SigAlpha], alpha)
	return alpha, true
}

// normalizeDir returns the unit-length copy of a parameter-shaped direction;
// ok is false for a zero-norm direction.
func normalizeDir(dir [][]float64) ([][]float64, bool) {
	ss := 0.0
	for _, block := range dir {
		for _, v := range block {
			ss += v * v
		}
	}
	if ss == 0 {
		return nil, false
	}
	return stats.Scale(dir, 1/math.Sqrt(ss)), true
}
