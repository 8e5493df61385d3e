package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/wx-b/cockpit/internal/cockpit"
	"github.com/wx-b/cockpit/internal/config"
	"github.com/wx-b/cockpit/internal/eigen"
	"github.com/wx-b/cockpit/internal/export"
	"github.com/wx-b/cockpit/internal/histogram"
	"github.com/wx-b/cockpit/internal/logger"
	"github.com/wx-b/cockpit/internal/monitoring"
	"github.com/wx-b/cockpit/internal/quantity"
	"github.com/wx-b/cockpit/internal/schedule"
)

var (
	preset     = flag.String("preset", "economy", "Quantity preset: full, business or economy")
	steps      = flag.Int("steps", 100, "Number of SGD steps")
	interval   = flag.Int("interval", 1, "Track every n-th step")
	offset     = flag.Int("offset", 0, "First tracked step")
	lr         = flag.Float64("lr", 0.1, "Learning rate")
	batchSize  = flag.Int("batch", 16, "Mini-batch size")
	noise      = flag.Float64("noise", 0.1, "Gradient noise scale")
	seed       = flag.Int64("seed", 1, "Random seed")
	flightAddr = flag.String("flight", "", "Arrow Flight address to push series to (optional)")
	monitor    = flag.String("monitor", "", "Health monitor listen address (optional)")
	logLevel   = flag.String("log-level", "info", "Log level")
)

// quadraticProblem is a noisy quadratic toy objective: per-sample losses are
// 0.5 * sum(lambda_i * x_i^2) with additive gradient noise, split over two
// parameter blocks the way a small network splits weights and biases.
type quadraticProblem struct {
	params  [][]float64
	lambdas [][]float64
	rng     *rand.Rand
}

func newQuadraticProblem(seed int64) *quadraticProblem {
	rng := rand.New(rand.NewSource(seed))
	params := [][]float64{make([]float64, 8), make([]float64, 2)}
	lambdas := [][]float64{make([]float64, 8), make([]float64, 2)}
	for b := range params {
		for i := range params[b] {
			params[b][i] = rng.NormFloat64()
			lambdas[b][i] = 0.5 + rng.Float64()
		}
	}
	return &quadraticProblem{params: params, lambdas: lambdas, rng: rng}
}

type diagHessian struct{ diag []float64 }

func (o diagHessian) Dim() int { return len(o.diag) }

func (o diagHessian) Apply(dst, v []float64) error {
	for i := range v {
		dst[i] = o.diag[i] * v[i]
	}
	return nil
}

// evaluate runs one forward/backward pass and fills a tracking context
// according to the merged capability request.
func (p *quadraticProblem) evaluate(req quantity.Request, batchSize int, noiseScale, lr float64) *quantity.Context {
	ctx := &quantity.Context{LearningRate: lr}

	ctx.Params = make([][]float64, len(p.params))
	for b, block := range p.params {
		ctx.Params[b] = append([]float64(nil), block...)
	}

	baseLoss := 0.0
	for b := range p.params {
		for i, x := range p.params[b] {
			baseLoss += 0.5 * p.lambdas[b][i] * x * x
		}
	}

	batchGrads := make([][][]float64, len(p.params))
	losses := make([]float64, batchSize)
	for b := range p.params {
		batchGrads[b] = make([][]float64, batchSize)
	}
	for n := 0; n < batchSize; n++ {
		losses[n] = baseLoss + noiseScale*p.rng.NormFloat64()
		for b := range p.params {
			grad := make([]float64, len(p.params[b]))
			for i, x := range p.params[b] {
				grad[i] = p.lambdas[b][i]*x + noiseScale*p.rng.NormFloat64()
			}
			batchGrads[b][n] = grad
		}
	}

	mean := 0.0
	for _, l := range losses {
		mean += l
	}
	ctx.BatchLoss = mean / float64(batchSize)

	grads := make([][]float64, len(p.params))
	for b := range batchGrads {
		grads[b] = make([]float64, len(p.params[b]))
		for _, g := range batchGrads[b] {
			for i, v := range g {
				grads[b][i] += v / float64(batchSize)
			}
		}
	}

	if req.Has(quantity.CapBatchLosses) {
		ctx.BatchLosses = losses
	}
	if req.Has(quantity.CapBatchGrad) {
		ctx.BatchGrads = batchGrads
		if len(req.Transforms) > 0 {
			ctx.TransformResults = make(map[string][][]float64, len(req.Transforms))
			for name, fn := range req.Transforms {
				for _, block := range batchGrads {
					ctx.TransformResults[name] = append(ctx.TransformResults[name], fn(block))
				}
			}
		}
	}
	if req.Has(quantity.CapHessDiag) {
		ctx.HessDiag = make([][]float64, len(p.lambdas))
		for b, block := range p.lambdas {
			ctx.HessDiag[b] = append([]float64(nil), block...)
		}
	}
	if req.Has(quantity.CapHVP) {
		var diag []float64
		for _, block := range p.lambdas {
			diag = append(diag, block...)
		}
		ctx.HVP = diagHessian{diag: diag}
	}
	// grads are always available to the loop itself
	ctx.Grads = grads
	return ctx
}

func (p *quadraticProblem) step(grads [][]float64, lr float64) {
	for b := range p.params {
		for i := range p.params[b] {
			p.params[b][i] -= lr * grads[b][i]
		}
	}
}

func main() {
	flag.Parse()
	logger.Setup(*logLevel, "console")

	cfg := config.Default()
	cfg.Preset = *preset
	cfg.TrackInterval = *interval
	cfg.TrackOffset = *offset
	cfg.ExportAddr = *flightAddr
	if *monitor != "" {
		cfg.EnableMonitor = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	sched, err := schedule.Linear(cfg.TrackInterval, cfg.TrackOffset)
	if err != nil {
		logger.Log.Error("building schedule", "error", err)
		os.Exit(1)
	}
	quantities, err := quantity.Configured(quantity.Preset(cfg.Preset), quantity.PresetOptions{
		Schedule: sched,
		HistBins: cfg.HistBins,
		Hist2DBins: cfg.Hist2DBins,
		Hist2DRanges: [2]histogram.Range{
			{Min: cfg.GradRangeMin, Max: cfg.GradRangeMax},
			{Min: -cfg.ParamRange, Max: cfg.ParamRange},
		},
		Eigen: eigen.Options{MaxIter: cfg.EigenMaxIter, Tol: cfg.EigenTol, Seed: cfg.EigenSeed},
	})
	if err != nil {
		logger.Log.Error("building quantities", "error", err)
		os.Exit(1)
	}

	problem := newQuadraticProblem(*seed)
	pit := cockpit.New(quantities, problem.params)

	var health *monitoring.HealthMonitor
	if *monitor != "" {
		health = monitoring.NewHealthMonitor(pit.RunID())
		go func() {
			if err := health.Start(*monitor); err != nil {
				logger.Log.Warn("health monitor stopped", "error", err)
			}
		}()
		defer health.Stop(context.Background())
	}

	for step := 0; step < *steps; step++ {
		req, err := pit.RequiredExtensions(step)
		if err != nil {
			logger.Log.Error("merging extensions", "step", step, "error", err)
			os.Exit(1)
		}

		start := time.Now()
		ctx := problem.evaluate(req, *batchSize, *noise, *lr)
		if err := pit.TrackStart(step, ctx); err != nil {
			logger.Log.Warn("start tracking failed", "step", step, "error", err)
		}

		problem.step(ctx.Grads, *lr)

		end := problem.evaluate(req, *batchSize, *noise, *lr)
		if err := pit.Track(step, end); err != nil {
			logger.Log.Warn("tracking failed", "step", step, "error", err)
		}
		if health != nil && pit.Due(step) {
			health.RecordTrack(step, end.BatchLoss, time.Since(start))
		}
	}

	printSummary(pit)

	if *flightAddr != "" {
		fe, err := export.NewFlightExporter(*flightAddr)
		if err != nil {
			logger.Log.Error("creating exporter", "error", err)
			os.Exit(1)
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := fe.Connect(ctx); err != nil {
			logger.Log.Error("connecting exporter", "error", err)
			os.Exit(1)
		}
		defer fe.Close()

		batches := export.ScalarSeries(pit.RunID(), pit.Quantities())
		for _, name := range []string{quantity.SigF0, quantity.SigF1, quantity.SigAlpha, quantity.SigMaxEV} {
			if b, ok := export.SignalSeries(pit.RunID(), name, pit.Signals()); ok {
				batches = append(batches, b)
			}
		}
		if err := fe.PushAll(ctx, batches); err != nil {
			logger.Log.Warn("export incomplete", "error", err)
		} else {
			logger.Log.Info("series exported", "batches", len(batches), "addr", *flightAddr)
		}
	}
}

func printSummary(pit *cockpit.Cockpit) {
	fmt.Printf("run %s\n", pit.RunID())
	losses := pit.Output("loss")
	if len(losses) > 0 {
		first, last := math.Inf(1), 0.0
		minStep, maxStep := math.MaxInt, -1
		for step, v := range losses {
			if step < minStep {
				minStep, first = step, v.(float64)
			}
			if step > maxStep {
				maxStep, last = step, v.(float64)
			}
		}
		fmt.Printf("loss: %.4f (step %d) -> %.4f (step %d)\n", first, minStep, last, maxStep)
	}
	if alphas := pit.Signals().Scalar(quantity.SigAlpha); len(alphas) > 0 {
		mean, n := 0.0, 0
		for _, a := range alphas {
			if !math.IsNaN(a) {
				mean += a
				n++
			}
		}
		if n > 0 {
			fmt.Printf("mean alpha over %d tracked steps: %.4f\n", n, mean/float64(n))
		}
	}
	if evs := pit.Signals().Scalar(quantity.SigMaxEV); len(evs) > 0 {
		fmt.Printf("last max eigenvalue: %.4f\n", evs[len(evs)-1])
	}
}
