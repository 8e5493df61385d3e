package stats

import (
	"math"
	"testing"
)

const tol = 1e-12

func TestLayerwiseDot(t *testing.T) {
	a := [][]float64{{1, 2}, {3}}
	b := [][]float64{{4, 5}, {6}}

	got, err := LayerwiseDot(a, b)
	if err != nil {
		t.Fatalf("LayerwiseDot failed: %v", err)
	}
	want := 1*4 + 2*5 + 3*6.0
	if math.Abs(got-want) > tol {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestLayerwiseDotBilinear(t *testing.T) {
	a := [][]float64{{1, -2}, {0.5, 3}}
	b := [][]float64{{2, 1}, {-1, 4}}
	c := [][]float64{{0.25, 0.75}, {2, -0.5}}

	sum := make([][]float64, len(a))
	for i := range a {
		sum[i] = make([]float64, len(a[i]))
		for j := range a[i] {
			sum[i][j] = a[i][j] + b[i][j]
		}
	}

	lhs, err := LayerwiseDot(sum, c)
	if err != nil {
		t.Fatalf("LayerwiseDot failed: %v", err)
	}
	ac, _ := LayerwiseDot(a, c)
	bc, _ := LayerwiseDot(b, c)
	if math.Abs(lhs-(ac+bc)) > tol {
		t.Errorf("bilinearity violated: dot(a+b,c)=%v, dot(a,c)+dot(b,c)=%v", lhs, ac+bc)
	}
}

func TestLayerwiseDotMismatch(t *testing.T) {
	if _, err := LayerwiseDot([][]float64{{1}}, [][]float64{{1}, {2}}); err == nil {
		t.Error("expected error for list length mismatch")
	}
	if _, err := LayerwiseDot([][]float64{{1, 2}}, [][]float64{{1}}); err == nil {
		t.Error("expected error for block shape mismatch")
	}
}

func TestExactVariance(t *testing.T) {
	// Two blocks, three samples. Direction (1, 0 | 1) projects out
	// grad[0] of block 0 plus grad[0] of block 1.
	batchGrads := [][][]float64{
		{{1, 9}, {2, 9}, {3, 9}}, // block 0: projections 1, 2, 3
		{{1}, {1}, {1}},          // block 1: constant 1
	}
	direction := [][]float64{{1, 0}, {1}}

	got, err := ExactVariance(batchGrads, direction)
	if err != nil {
		t.Fatalf("ExactVariance failed: %v", err)
	}
	// Projections: 2, 3, 4. Unbiased variance = 1.
	if math.Abs(got-1.0) > tol {
		t.Errorf("expected variance 1.0, got %v", got)
	}
}

func TestExactVarianceZeroDirection(t *testing.T) {
	batchGrads := [][][]float64{{{1, 2}, {3, 4}}}
	direction := [][]float64{{0, 0}}

	got, err := ExactVariance(batchGrads, direction)
	if err != nil {
		t.Fatalf("ExactVariance failed: %v", err)
	}
	if got != 0 {
		t.Errorf("expected 0 variance for zero-norm direction, got %v", got)
	}
}

func TestExactVarianceMismatch(t *testing.T) {
	if _, err := ExactVariance([][][]float64{{{1}}}, [][]float64{{1}, {2}}); err == nil {
		t.Error("expected error for block count mismatch")
	}
	if _, err := ExactVariance([][][]float64{{{1, 2}}}, [][]float64{{1}}); err == nil {
		t.Error("expected error for block shape mismatch")
	}
	bad := [][][]float64{{{1}, {2}}, {{1}}}
	if _, err := ExactVariance(bad, [][]float64{{1}, {1}}); err == nil {
		t.Error("expected error for inconsistent sample counts")
	}
}

func TestVariance(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{"empty", nil, 0},
		{"single", []float64{5}, 0},
		{"constant", []float64{2, 2, 2, 2}, 0},
		{"simple", []float64{1, 2, 3}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Variance(tt.values); math.Abs(got-tt.want) > tol {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestNorms(t *testing.T) {
	params := [][]float64{{3, 4}, {0}, {1}}
	got := Norms(params)
	want := []float64{5, 0, 1}
	for i := range want {
		if math.Abs(got[i]-want[i]) > tol {
			t.Errorf("block %d: expected norm %v, got %v", i, want[i], got[i])
		}
	}
}

func TestScale(t *testing.T) {
	params := [][]float64{{1, -2}, {4}}
	got := Scale(params, -0.5)
	want := [][]float64{{-0.5, 1}, {-2}}
	for i := range want {
		for j := range want[i] {
			if math.Abs(got[i][j]-want[i][j]) > tol {
				t.Errorf("block %d index %d: expected %v, got %v", i, j, want[i][j], got[i][j])
			}
		}
	}
	// Input untouched
	if params[0][0] != 1 {
		t.Error("Scale must not mutate its input")
	}
}
