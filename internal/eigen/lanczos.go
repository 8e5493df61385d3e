// Package eigen extracts dominant eigenvalues of implicit symmetric linear
// operators, such as the Hessian-vector-product capability supplied by an
// autodiff engine. The matrix is never materialized: the solver only needs
// repeated operator application.
package eigen

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// ErrNotConverged reports that the iterative solve exhausted its iteration
// budget without the top eigenvalue stabilizing. It is distinct from
// validation errors; detect it with errors.Is.
var ErrNotConverged = errors.New("eigensolver did not converge")

// Operator is an implicit symmetric linear operator. Apply must compute
// dst = A*v without mutating the operator's own state between calls within
// one solve. Application failures (the external collaborator's) are returned
// as-is.
type Operator interface {
	Dim() int
	Apply(dst, v []float64) error
}

// Options configures the Lanczos solve. The zero value selects the defaults.
type Options struct {
	MaxIter int     // iteration budget, default 64
	Tol     float64 // relative stabilization tolerance, default 1e-6
	Seed    int64   // seed for the random start vector, default 1
}

func (o Options) withDefaults() Options {
	if o.MaxIter <= 0 {
		o.MaxIter = 64
	}
	if o.Tol <= 0 {
		o.Tol = 1e-6
	}
	if o.Seed == 0 {
		o.Seed = 1
	}
	return o
}

// TopEigenvalue computes the algebraically largest eigenvalue of op via
// Lanczos iteration with full reorthogonalization. The small tridiagonal
// eigenproblem is solved densely at every iteration; the solve stops once
// the top Ritz value stabilizes within opts.Tol.
func TopEigenvalue(op Operator, opts Options) (float64, error) {
	if op == nil {
		return 0, fmt.Errorf("operator must not be nil")
	}
	n := op.Dim()
	if n <= 0 {
		return 0, fmt.Errorf("invalid operator dimension: %d (must be positive)", n)
	}
	opts = opts.withDefaults()

	m := opts.MaxIter
	if m > n {
		m = n
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	v := make([]float64, n)
	for i := range v {
		v[i] = rng.NormFloat64()
	}
	normalize(v)

	basis := make([][]float64, 0, m)
	alphas := make([]float64, 0, m)
	betas := make([]float64, 0, m)

	w := make([]float64, n)
	prev := math.Inf(-1)

	for j := 0; j < m; j++ {
		basis = append(basis, append([]float64(nil), v...))

		if err := op.Apply(w, v); err != nil {
			return 0, fmt.Errorf("operator application at iteration %d: %w", j, err)
		}

		alpha := dot(w, v)
		alphas = append(alphas, alpha)

		// w -= alpha*v_j + beta_{j-1}*v_{j-1}, then full
		// reorthogonalization against the entire basis.
		axpy(w, -alpha, basis[j])
		if j > 0 {
			axpy(w, -betas[j-1], basis[j-1])
		}
		for _, u := range basis {
			axpy(w, -dot(w, u), u)
		}

		top, err := tridiagTop(alphas, betas)
		if err != nil {
			return 0, err
		}

		if j > 0 && math.Abs(top-prev) <= opts.Tol*math.Max(1, math.Abs(top)) {
			return top, nil
		}
		prev = top

		beta := norm(w)
		if beta < 1e-12 {
			// Exhausted an invariant subspace: the Ritz values are exact.
			return top, nil
		}
		betas = append(betas, beta)
		for i := range v {
			v[i] = w[i] / beta
		}
	}

	return 0, fmt.Errorf("top eigenvalue after %d iterations: %w", m, ErrNotConverged)
}

// tridiagTop returns the largest eigenvalue of the symmetric tridiagonal
// matrix with the given diagonal and off-diagonal.
func tridiagTop(alphas, betas []float64) (float64, error) {
	k := len(alphas)
	t := mat.NewSymDense(k, nil)
	for i, a := range alphas {
		t.SetSym(i, i, a)
	}
	for i := 0; i < k-1 && i < len(betas); i++ {
		t.SetSym(i, i+1, betas[i])
	}

	var es mat.EigenSym
	if ok := es.Factorize(t, false); !ok {
		return 0, fmt.Errorf("tridiagonal eigendecomposition failed at size %d: %w", k, ErrNotConverged)
	}
	vals := es.Values(nil)
	return vals[len(vals)-1], nil
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func norm(a []float64) float64 {
	return math.Sqrt(dot(a, a))
}

func normalize(a []float64) {
	n := norm(a)
	if n == 0 {
		a[0] = 1
		return
	}
	for i := range a {
		a[i] /= n
	}
}

// axpy computes dst += c*x in place.
func axpy(dst []float64, c float64, x []float64) {
	for i := range dst {
		dst[i] += c * x[i]
	}
}
