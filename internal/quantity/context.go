package quantity

import "github.com/wx-b/cockpit/internal/eigen"

// Context carries the per-iteration byproducts supplied by the training loop
// and its autodiff engine. Only the fields matching the merged capability
// request of the due quantities need to be filled; everything else may stay
// zero.
//
// Parameter-shaped fields are lists of flattened blocks, one per parameter
// tensor. BatchGrads holds, per block, one gradient slice per example.
type Context struct {
	BatchLoss    float64
	BatchLosses  []float64
	LearningRate float64

	Params     [][]float64
	Grads      [][]float64
	BatchGrads [][][]float64
	HessDiag   [][]float64
	HVP        eigen.Operator

	// TransformResults holds, per transform name, the condensed per-sample
	// values per block produced by the collaborator.
	TransformResults map[string][][]float64

	// Filled by the orchestrator before quantities run.
	InitParams [][]float64
	Signals    *Signals
}
