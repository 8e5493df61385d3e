// Package export turns the tracked time series into Arrow record batches
// and ships them to a Flight endpoint for downstream plotting and storage.
package export

import (
	"fmt"
	"math"
	"sort"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/wx-b/cockpit/internal/quantity"
)

// SeriesBatch is one scalar time series ready for serialization.
type SeriesBatch struct {
	RunID  string
	Name   string
	Steps  []int64
	Values []float64
}

// Record builds the Arrow representation of the batch: a step column and a
// value column, with the run id and series name in the schema metadata.
// The caller owns the returned record and must Release it.
func (b *SeriesBatch) Record(mem memory.Allocator) (arrow.Record, error) {
	if len(b.Steps) != len(b.Values) {
		return nil, fmt.Errorf("series %s: %d steps but %d values", b.Name, len(b.Steps), len(b.Values))
	}
	if mem == nil {
		mem = memory.DefaultAllocator
	}

	md := arrow.NewMetadata([]string{"run_id", "series"}, []string{b.RunID, b.Name})
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "step", Type: arrow.PrimitiveTypes.Int64},
		{Name: "value", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	}, &md)

	stepBuilder := array.NewInt64Builder(mem)
	defer stepBuilder.Release()
	valueBuilder := array.NewFloat64Builder(mem)
	defer valueBuilder.Release()

	stepBuilder.AppendValues(b.Steps, nil)
	for _, v := range b.Values {
		if math.IsNaN(v) {
			valueBuilder.AppendNull()
			continue
		}
		valueBuilder.Append(v)
	}

	steps := stepBuilder.NewArray()
	defer steps.Release()
	values := valueBuilder.NewArray()
	defer values.Release()

	return array.NewRecord(schema, []arrow.Array{steps, values}, int64(len(b.Steps))), nil
}

// ScalarSeries collects every scalar-valued quantity series into batches,
// one per quantity, sorted by step. Non-scalar outputs (histograms,
// per-block vectors, timestamps) are skipped; they have their own
// serialization paths.
func ScalarSeries(runID string, quantities []quantity.Quantity) []SeriesBatch {
	var batches []SeriesBatch
	for _, q := range quantities {
		out := q.Output()
		steps := make([]int64, 0, len(out))
		byStep := make(map[int64]float64, len(out))
		for step, v := range out {
			var f float64
			switch val := v.(type) {
			case float64:
				f = val
			case nil:
				f = math.NaN()
			default:
				continue
			}
			steps = append(steps, int64(step))
			byStep[int64(step)] = f
		}
		if len(steps) == 0 {
			continue
		}
		sort.Slice(steps, func(i, j int) bool { return steps[i] < steps[j] })
		values := make([]float64, len(steps))
		for i, s := range steps {
			values[i] = byStep[s]
		}
		batches = append(batches, SeriesBatch{RunID: runID, Name: q.Name(), Steps: steps, Values: values})
	}
	return batches
}

// SignalSeries turns a scalar signal series into a batch. Signal series are
// indexed by tracking order, not by step, so positions stand in for steps.
func SignalSeries(runID, name string, signals *quantity.Signals) (SeriesBatch, bool) {
	values := signals.Scalar(name)
	if len(values) == 0 {
		return SeriesBatch{}, false
	}
	steps := make([]int64, len(values))
	for i := range values {
		steps[i] = int64(i)
	}
	return SeriesBatch{RunID: runID, Name: name, Steps: steps, Values: append([]float64(nil), values...)}, true
}
