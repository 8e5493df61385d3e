package metrics

import (
	"testing"
	"time"
)

func TestMetricsExistence(t *testing.T) {
	// Verify our exported metrics functions exist and don't panic
	RecordTrackedStep(0.7)
	RecordGradNorm(1.2)
	RecordAlpha(-0.3)
	RecordMaxEigenvalue(42.0)
	RecordHessTrace(13.5)
	RecordComputeDuration("loss", 3*time.Millisecond)
	// Functions exist and work - no assertion needed
}

func TestRecordComputeDurationHistogram(t *testing.T) {
	RecordComputeDuration("max_eigenvalue", 10*time.Millisecond)
	RecordComputeDuration("max_eigenvalue", 20*time.Millisecond)
	RecordComputeDuration("grad_hist_1d", 1*time.Millisecond)

	// Histogram should have observations - just verify no panic
}

func TestRecordQuantityFailure(t *testing.T) {
	RecordQuantityFailure("max_eigenvalue")
	RecordQuantityFailure("alpha")
}

func TestRecordValidationError(t *testing.T) {
	RecordValidationError("histogram", "range_check")
	RecordValidationError("merge", "transform_conflict")
}
