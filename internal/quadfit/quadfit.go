// Package quadfit fits a noise-aware 1-D quadratic to loss and projected
// gradient observations taken at the start and end of an optimizer step, and
// derives the normalized step-size ratio from the fit.
package quadfit

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// degenerateVar is the threshold below which an observation variance is
// treated as unavailable.
const degenerateVar = 1e-12

// Fit holds the coefficients of f(t) = W0 + B*t + C*t*t/2.
type Fit struct {
	W0 float64
	B  float64
	C  float64
}

// FitQuadratic fits a quadratic to the observations [f0, f1] of the loss and
// [df0, df1] of the projected gradient at positions 0 and t, weighting each
// observation by the inverse of its variance. When every variance is
// degenerate the fit falls back to unweighted least squares.
//
// The second return value is false when no fit is possible: zero step size,
// NaN observations leaving fewer usable rows than coefficients, or a
// rank-deficient system. This is a defined "no fit" outcome, not an error.
func FitQuadratic(t float64, fs, dfs, fsVar, dfsVar [2]float64) (Fit, bool) {
	if t == 0 {
		return Fit{}, false
	}

	// Observation model: each row of phi maps (W0, B, C) to one observation.
	rows := [4]struct {
		phi [3]float64
		obs float64
		v   float64
	}{
		{[3]float64{1, 0, 0}, fs[0], fsVar[0]},
		{[3]float64{1, t, t * t / 2}, fs[1], fsVar[1]},
		{[3]float64{0, 1, 0}, dfs[0], dfsVar[0]},
		{[3]float64{0, 1, t}, dfs[1], dfsVar[1]},
	}

	allDegenerate := true
	usable := 0
	for _, r := range rows {
		if math.IsNaN(r.obs) {
			continue
		}
		usable++
		if r.v > degenerateVar {
			allDegenerate = false
		}
	}
	if usable < 3 {
		return Fit{}, false
	}

	a := mat.NewDense(usable, 3, nil)
	b := mat.NewDense(usable, 1, nil)
	i := 0
	for _, r := range rows {
		if math.IsNaN(r.obs) {
			continue
		}
		w := 1.0
		if !allDegenerate {
			w = 1 / math.Sqrt(math.Max(r.v, degenerateVar))
		}
		for j, p := range r.phi {
			a.Set(i, j, w*p)
		}
		b.Set(i, 0, w*r.obs)
		i++
	}

	var qr mat.QR
	qr.Factorize(a)
	var mu mat.Dense
	if err := qr.SolveTo(&mu, false, b); err != nil {
		return Fit{}, false
	}

	fit := Fit{W0: mu.At(0, 0), B: mu.At(1, 0), C: mu.At(2, 0)}
	if math.IsNaN(fit.W0) || math.IsNaN(fit.B) || math.IsNaN(fit.C) {
		return Fit{}, false
	}
	return fit, true
}

// Alpha expresses the step of size t relative to the minimum of the fitted
// quadratic: -1 means the step stayed at the start, 0 that it landed exactly
// on the minimum, 1 that it overshot symmetrically to the far side. The
// second return value is false when there is no fit, the step size is zero,
// or the quadratic is degenerate (non-positive or near-zero curvature).
func Alpha(fit Fit, ok bool, t float64) (float64, bool) {
	if !ok || t == 0 {
		return 0, false
	}
	if fit.C <= degenerateVar {
		return 0, false
	}
	tMin := -fit.B / fit.C
	if math.Abs(tMin) < degenerateVar {
		return 0, false
	}
	return t/tMin - 1, true
}
