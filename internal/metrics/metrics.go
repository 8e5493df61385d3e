package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BatchLoss = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cockpit_batch_loss",
		Help: "Mini-batch loss of the most recent tracked step",
	})

	GradNorm = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cockpit_grad_norm",
		Help: "L2 norm of the most recent mini-batch gradient",
	})

	Alpha = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cockpit_alpha",
		Help: "Effective relative step size of the most recent tracked step",
	})

	MaxEigenvalue = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cockpit_hessian_max_eigenvalue",
		Help: "Dominant Hessian eigenvalue of the most recent tracked step",
	})

	HessTrace = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cockpit_hessian_trace",
		Help: "Hessian trace of the most recent tracked step",
	})

	TrackedSteps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cockpit_tracked_steps_total",
		Help: "The total number of tracked training steps",
	})

	ComputeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cockpit_quantity_compute_duration_seconds",
		Help:    "Histogram of per-quantity compute times",
		Buckets: prometheus.DefBuckets,
	}, []string{"quantity"})

	QuantityFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cockpit_quantity_failures_total",
		Help: "Total number of failed quantity computations",
	}, []string{"quantity"})

	ValidationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cockpit_validation_errors_total",
		Help: "Total number of validation errors",
	}, []string{"operation", "error_type"})
)

func RecordTrackedStep(batchLoss float64) {
	TrackedSteps.Inc()
	BatchLoss.Set(batchLoss)
}

func RecordGradNorm(norm float64) {
	GradNorm.Set(norm)
}

func RecordAlpha(alpha float64) {
	Alpha.Set(alpha)
}

func RecordMaxEigenvalue(ev float64) {
	MaxEigenvalue.Set(ev)
}

func RecordHessTrace(trace float64) {
	HessTrace.Set(trace)
}

func RecordComputeDuration(quantity string, duration time.Duration) {
	ComputeDuration.WithLabelValues(quantity).Observe(duration.Seconds())
}

func RecordQuantityFailure(quantity string) {
	QuantityFailures.WithLabelValues(quantity).Inc()
}

func RecordValidationError(operation, errorType string) {
	ValidationErrors.WithLabelValues(operation, errorType).Inc()
}
