package quantity

import (
	"math"
	"testing"

	"github.com/wx-b/cockpit/internal/eigen"
	"github.com/wx-b/cockpit/internal/histogram"
	"github.com/wx-b/cockpit/internal/schedule"
)

func everyStep(t *testing.T) schedule.Schedule {
	t.Helper()
	sched, err := schedule.Linear(1, 0)
	if err != nil {
		t.Fatalf("Linear(1, 0) failed: %v", err)
	}
	return sched
}

func TestMergeCollapsesDuplicates(t *testing.T) {
	req, err := Merge([]Extension{Grad(), Grad(), BatchLosses()})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if !req.Has(CapGrad) || !req.Has(CapBatchLosses) {
		t.Errorf("merged request missing capabilities: %+v", req.Caps)
	}
	if req.Has(CapHVP) {
		t.Errorf("merged request contains capability nobody asked for")
	}
}

func TestMergeSameTransformOK(t *testing.T) {
	exts := []Extension{
		BatchGradTransforms(map[string]TransformFunc{TransformBatchL2Square: batchL2Squared}),
		BatchGradTransforms(map[string]TransformFunc{TransformBatchL2Square: batchL2Squared}),
	}
	req, err := Merge(exts)
	if err != nil {
		t.Fatalf("Merge of identical transforms failed: %v", err)
	}
	if len(req.Transforms) != 1 {
		t.Errorf("expected 1 transform, got %d", len(req.Transforms))
	}
}

func TestMergeConflictingTransforms(t *testing.T) {
	exts := []Extension{
		BatchGradTransforms(map[string]TransformFunc{"x": batchL2Squared}),
		BatchGradTransforms(map[string]TransformFunc{"x": batchDotGrad}),
	}
	if _, err := Merge(exts); err == nil {
		t.Fatal("expected conflict error for same name with different definitions")
	}
}

func TestNonDueStepLeavesNoEntry(t *testing.T) {
	sched, err := schedule.Linear(2, 0)
	if err != nil {
		t.Fatalf("Linear(2, 0) failed: %v", err)
	}
	q := NewLoss(sched)
	ctx := &Context{BatchLoss: 1.5}

	for step := 0; step < 5; step++ {
		if !q.ShouldCompute(step) {
			continue
		}
		if err := q.Compute(step, ctx); err != nil {
			t.Fatalf("Compute(%d) failed: %v", step, err)
		}
	}

	out := q.Output()
	if _, ok := out[3]; ok {
		t.Errorf("non-due step 3 has an entry")
	}
	for _, step := range []int{0, 2, 4} {
		if _, ok := out[step]; !ok {
			t.Errorf("due step %d missing from output", step)
		}
	}
	if len(out) != 3 {
		t.Errorf("expected 3 entries, got %d", len(out))
	}
}

func TestGradNorm(t *testing.T) {
	q := NewGradNorm(everyStep(t))
	ctx := &Context{Grads: [][]float64{{3, 4}, {0, 0, 5}}}
	if err := q.Compute(0, ctx); err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	got := q.Output()[0].([]float64)
	want := []float64{5, 5}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("block %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDistanceToInit(t *testing.T) {
	q := NewDistanceToInit(everyStep(t))
	ctx := &Context{
		InitParams: [][]float64{{0, 0}, {1}},
		Params:     [][]float64{{3, 4}, {1}},
		Signals:    NewSignals(),
	}
	if err := q.Compute(0, ctx); err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	got := q.Output()[0].([]float64)
	if math.Abs(got[0]-5) > 1e-12 || got[1] != 0 {
		t.Errorf("got %v, want [5 0]", got)
	}
	if len(ctx.Signals.Vector(SigD2Init)) != 1 {
		t.Errorf("d2init signal not tracked")
	}
}

func TestDistanceToInitBlockMismatch(t *testing.T) {
	q := NewDistanceToInit(everyStep(t))
	ctx := &Context{InitParams: [][]float64{{0}}, Params: [][]float64{{0}, {0}}}
	if err := q.Compute(0, ctx); err == nil {
		t.Fatal("expected error for mismatched block counts")
	}
}

func TestHessTrace(t *testing.T) {
	q := NewHessTrace(everyStep(t))
	ctx := &Context{
		HessDiag: [][]float64{{1, 2, 3}, {4}},
		Signals:  NewSignals(),
	}
	if err := q.Compute(0, ctx); err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	got := q.Output()[0].([]float64)
	if got[0] != 6 || got[1] != 4 {
		t.Errorf("got %v, want [6 4]", got)
	}
}

type diagOp struct{ d []float64 }

func (o diagOp) Dim() int { return len(o.d) }

func (o diagOp) Apply(dst, v []float64) error {
	for i := range v {
		dst[i] = o.d[i] * v[i]
	}
	return nil
}

func TestMaxEigenvalue(t *testing.T) {
	q := NewMaxEigenvalue(everyStep(t), eigen.Options{})
	ctx := &Context{
		HVP:     diagOp{d: []float64{1, 7, 3}},
		Signals: NewSignals(),
	}
	if !q.CreateGraph(0) {
		t.Error("CreateGraph must mirror ShouldCompute on due steps")
	}
	if err := q.Compute(0, ctx); err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	got := q.Output()[0].(float64)
	if math.Abs(got-7) > 1e-5 {
		t.Errorf("got %v, want 7", got)
	}
	sig := ctx.Signals.Scalar(SigMaxEV)
	if len(sig) != 1 || math.Abs(sig[0]-7) > 1e-5 {
		t.Errorf("max_ev signal = %v, want [7]", sig)
	}
}

func TestSignalsDTravelOrderContract(t *testing.T) {
	s := NewSignals()
	s.TrackDTravel(0.1)
	if len(s.Vector(SigDTravel)) != 0 {
		t.Fatal("dtravel before grad_norms must be a no-op")
	}

	s.TrackGradNorms([][]float64{{3, 4}, {12}})
	s.TrackDTravel(0.1)
	travel := s.Vector(SigDTravel)
	if len(travel) != 1 {
		t.Fatalf("expected 1 dtravel entry, got %d", len(travel))
	}
	want := []float64{0.5, 1.2}
	for i := range want {
		if math.Abs(travel[0][i]-want[i]) > 1e-12 {
			t.Errorf("dtravel[%d] = %v, want %v", i, travel[0][i], want[i])
		}
	}
}

func TestAlphaOnExactQuadratic(t *testing.T) {
	// f(x) = x^2 / 2 along a unit direction, stepping from x=-1 with t=1
	// lands exactly on the minimum: alpha must be 0.
	s := NewSignals()
	dir := [][]float64{{1}}
	s.TrackF("0", 0.5)
	s.TrackVarF("0", nil)
	if err := s.TrackDF("0", dir, [][]float64{{-1}}); err != nil {
		t.Fatalf("TrackDF failed: %v", err)
	}
	s.TrackGradNorms([][]float64{{1}})
	s.TrackDTravel(1)
	s.TrackF("1", 0)
	s.TrackVarF("1", nil)
	if err := s.TrackDF("1", dir, [][]float64{{0}}); err != nil {
		t.Fatalf("TrackDF failed: %v", err)
	}

	q := NewAlpha(everyStep(t))
	ctx := &Context{Signals: s}
	if err := q.Compute(0, ctx); err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	got, ok := q.Output()[0].(float64)
	if !ok {
		t.Fatalf("alpha output is %T, want float64", q.Output()[0])
	}
	if math.Abs(got) > 1e-9 {
		t.Errorf("alpha = %v, want 0", got)
	}
}

func TestAlphaWithoutObservations(t *testing.T) {
	q := NewAlpha(everyStep(t))
	ctx := &Context{Signals: NewSignals()}
	if err := q.Compute(0, ctx); err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if q.Output()[0] != nil {
		t.Errorf("alpha without observations = %v, want nil", q.Output()[0])
	}
	sig := ctx.Signals.Scalar(SigAlpha)
	if len(sig) != 1 || !math.IsNaN(sig[0]) {
		t.Errorf("alpha signal = %v, want single NaN", sig)
	}
}

func TestNormTestMatchesDirectFormula(t *testing.T) {
	batchGrads := [][][]float64{
		{{1, 0}, {0, 2}, {1, 1}},
		{{0.5}, {-0.5}, {1}},
	}
	grads := meanGrads(batchGrads)

	results := map[string][][]float64{}
	for _, block := range batchGrads {
		results[TransformBatchL2Square] = append(results[TransformBatchL2Square], batchL2Squared(block))
	}

	q := NewNormTest(everyStep(t))
	ctx := &Context{Grads: grads, TransformResults: results}
	if err := q.Compute(0, ctx); err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	got := q.Output()[0].(float64)

	gradNormSq := 0.0
	for _, block := range grads {
		for _, v := range block {
			gradNormSq += v * v
		}
	}
	n := 3.0
	sum := 0.0
	for i := 0; i < 3; i++ {
		normSq := 0.0
		for _, block := range batchGrads {
			for _, v := range block[i] {
				normSq += v * v
			}
		}
		sum += normSq / gradNormSq
	}
	want := math.Sqrt((sum - n) / (n * (n - 1)))
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("norm test = %v, want %v", got, want)
	}
}

func TestInnerTestMatchesDirectFormula(t *testing.T) {
	batchGrads := [][][]float64{
		{{1, 0}, {0, 2}, {1, 1}},
	}
	grads := meanGrads(batchGrads)

	results := map[string][][]float64{
		TransformBatchDotGrad: {batchDotGrad(batchGrads[0])},
	}

	q := NewInnerTest(everyStep(t))
	ctx := &Context{Grads: grads, TransformResults: results}
	if err := q.Compute(0, ctx); err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	got := q.Output()[0].(float64)

	gradNormSq := 0.0
	for _, v := range grads[0] {
		gradNormSq += v * v
	}
	n := 3.0
	sum := 0.0
	for i := 0; i < 3; i++ {
		proj := 0.0
		for j, v := range batchGrads[0][i] {
			proj += v * grads[0][j]
		}
		sum += proj * proj / (gradNormSq * gradNormSq)
	}
	want := math.Sqrt((sum - n) / (n * (n - 1)))
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("inner test = %v, want %v", got, want)
	}
}

func TestGradHist1DConservesCounts(t *testing.T) {
	q := NewGradHist1D(everyStep(t), 4, -2, 2, false)
	ctx := &Context{
		BatchGrads: [][][]float64{
			{{-1, 0.5}, {1, 1.5}},
			{{0.1}, {-0.1}},
		},
	}
	if err := q.Compute(0, ctx); err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	h := q.Output()[0].(histogram.Hist)
	if len(h.Shape) != 1 || h.Shape[0] != 4 {
		t.Fatalf("histogram shape = %v, want [4]", h.Shape)
	}
	if h.Total() != 6 {
		t.Errorf("histogram total = %d, want 6", h.Total())
	}
	// [-2,2) in 4 bins of width 1: -1 and -0.1 land in [-1,0), 0.1 and
	// 0.5 in [0,1), 1 and 1.5 in [1,2)
	want := []int64{0, 2, 2, 2}
	for i, w := range want {
		if h.At(i) != w {
			t.Errorf("bin %d = %d, want %d", i, h.At(i), w)
		}
	}
}

func TestGradHist2D(t *testing.T) {
	bins := [2]int{2, 2}
	ranges := [2]histogram.Range{{Min: -1, Max: 1}, {Min: -1, Max: 1}}
	q := NewGradHist2D(everyStep(t), bins, ranges, false)
	ctx := &Context{
		Grads:  [][]float64{{-0.5, 0.5}},
		Params: [][]float64{{0.5, -0.5}},
	}
	if err := q.Compute(0, ctx); err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	h := q.Output()[0].(histogram.Hist)
	if h.Total() != 2 {
		t.Errorf("histogram total = %d, want 2", h.Total())
	}
	if h.At(0, 1) != 1 || h.At(1, 0) != 1 {
		t.Errorf("unexpected cell placement: %v", h.Counts)
	}
}

func TestGradHist2DOddParameterCount(t *testing.T) {
	// the observation count is the total number of parameters, not a
	// histogram dimension
	bins := [2]int{2, 2}
	ranges := [2]histogram.Range{{Min: -1, Max: 1}, {Min: -1, Max: 1}}
	q := NewGradHist2D(everyStep(t), bins, ranges, false)
	ctx := &Context{
		Grads:  [][]float64{{-0.5, 0.5}, {0.5}},
		Params: [][]float64{{0.5, -0.5}, {0.5}},
	}
	if err := q.Compute(0, ctx); err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	h := q.Output()[0].(histogram.Hist)
	if len(h.Shape) != 2 || h.Shape[0] != 2 || h.Shape[1] != 2 {
		t.Fatalf("histogram shape = %v, want [2 2]", h.Shape)
	}
	if h.Total() != 3 {
		t.Errorf("histogram total = %d, want 3", h.Total())
	}
	if h.At(1, 1) != 1 {
		t.Errorf("expected the (0.5, 0.5) pair in cell (1,1), counts: %v", h.Counts)
	}
}

func TestResetClearsOutput(t *testing.T) {
	q := NewLoss(everyStep(t))
	if err := q.Compute(0, &Context{BatchLoss: 1}); err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	q.Reset()
	if len(q.Output()) != 0 {
		t.Errorf("output not empty after Reset: %v", q.Output())
	}
}

func TestConfiguredPresets(t *testing.T) {
	sched, err := schedule.Linear(1, 0)
	if err != nil {
		t.Fatalf("Linear(1, 0) failed: %v", err)
	}
	opts := PresetOptions{Schedule: sched}

	sizes := map[Preset]int{}
	for _, preset := range []Preset{PresetEconomy, PresetBusiness, PresetFull} {
		qs, err := Configured(preset, opts)
		if err != nil {
			t.Fatalf("Configured(%q) failed: %v", preset, err)
		}
		seen := map[string]bool{}
		for _, q := range qs {
			if seen[q.Name()] {
				t.Errorf("preset %q registers %q twice", preset, q.Name())
			}
			seen[q.Name()] = true
		}
		sizes[preset] = len(qs)
	}
	if !(sizes[PresetEconomy] < sizes[PresetBusiness] && sizes[PresetBusiness] < sizes[PresetFull]) {
		t.Errorf("preset sizes not strictly increasing: %v", sizes)
	}

	if _, err := Configured("luxury", opts); err == nil {
		t.Error("expected error for unknown preset")
	}
	if _, err := Configured(PresetFull, PresetOptions{}); err == nil {
		t.Error("expected error for nil schedule")
	}
}

func meanGrads(batchGrads [][][]float64) [][]float64 {
	out := make([][]float64, len(batchGrads))
	for b, block := range batchGrads {
		out[b] = make([]float64, len(block[0]))
		n := float64(len(block))
		for _, grad := range block {
			for j, v := range grad {
				out[b][j] += v / n
			}
		}
	}
	return out
}
