package quantity

import (
	"fmt"
	"reflect"
)

// Capability names an autodiff byproduct a quantity needs prepared before
// its compute runs.
type Capability int

const (
	CapGrad Capability = iota
	CapBatchGrad
	CapBatchLosses
	CapHessDiag
	CapHVP
)

func (c Capability) String() string {
	switch c {
	case CapGrad:
		return "grad"
	case CapBatchGrad:
		return "batch_grad"
	case CapBatchLosses:
		return "batch_losses"
	case CapHessDiag:
		return "hess_diag"
	case CapHVP:
		return "hvp"
	default:
		return fmt.Sprintf("capability(%d)", int(c))
	}
}

// TransformFunc condenses the per-sample gradients of one parameter block
// into one value per sample, letting the collaborator discard the full
// per-sample gradients right after the backward pass.
type TransformFunc func(block [][]float64) []float64

// Extension is a single capability request, optionally carrying named
// batch-gradient transforms.
type Extension struct {
	Cap        Capability
	Transforms map[string]TransformFunc
}

func Grad() Extension        { return Extension{Cap: CapGrad} }
func BatchGrad() Extension   { return Extension{Cap: CapBatchGrad} }
func BatchLosses() Extension { return Extension{Cap: CapBatchLosses} }
func HessDiag() Extension    { return Extension{Cap: CapHessDiag} }
func HVP() Extension         { return Extension{Cap: CapHVP} }

// BatchGradTransforms requests per-sample gradients condensed through the
// given named transforms.
func BatchGradTransforms(transforms map[string]TransformFunc) Extension {
	return Extension{Cap: CapBatchGrad, Transforms: transforms}
}

// Request is the merged capability set for one iteration, handed to the
// autodiff collaborator before the backward pass.
type Request struct {
	Caps       map[Capability]bool
	Transforms map[string]TransformFunc
}

// Has reports whether a capability was requested.
func (r Request) Has(c Capability) bool {
	return r.Caps[c]
}

// Merge combines the extension declarations of all quantities due on one
// step. Merging is idempotent: duplicate capabilities collapse, and two
// requests for the same named transform succeed only when they carry the
// identical definition. The same name bound to different definitions is a
// configuration conflict.
func Merge(exts []Extension) (Request, error) {
	req := Request{
		Caps:       make(map[Capability]bool),
		Transforms: make(map[string]TransformFunc),
	}

	for _, ext := range exts {
		req.Caps[ext.Cap] = true
		for name, fn := range ext.Transforms {
			existing, ok := req.Transforms[name]
			if !ok {
				req.Transforms[name] = fn
				continue
			}
			if reflect.ValueOf(existing).Pointer() != reflect.ValueOf(fn).Pointer() {
				return Request{}, fmt.Errorf("conflicting definitions for batch-grad transform %q", name)
			}
		}
	}
	return req, nil
}
