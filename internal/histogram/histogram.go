package histogram

import (
	"fmt"
	"math"
	"sort"
)

// DefaultBins is the per-dimension bin count used when the bin spec is empty.
const DefaultBins = 10

// maxCells bounds the dense count array, sentinel bins included.
const maxCells = 1 << 26

// Range is a closed-open [Min, Max) binning range for one dimension.
type Range struct {
	Min float64
	Max float64
}

// BinSpec describes the binning of each dimension: a single count applied to
// all dimensions, one count per dimension, or explicit bin edges per
// dimension. The zero value means DefaultBins for every dimension.
type BinSpec struct {
	count    int
	hasCount bool
	counts   []int
	edges    [][]float64
}

// Bins applies the same bin count to every dimension. An explicit
// non-positive count is rejected, unlike the unset zero value.
func Bins(n int) BinSpec {
	return BinSpec{count: n, hasCount: true}
}

// BinsPerDim gives each dimension its own bin count.
func BinsPerDim(ns ...int) BinSpec {
	return BinSpec{counts: ns}
}

// Edges supplies explicit, strictly increasing bin edges per dimension.
func Edges(edges ...[]float64) BinSpec {
	return BinSpec{edges: edges}
}

// Hist is a dense D-dimensional count array plus the bin edges used.
// Counts is laid out row-major over Shape.
type Hist struct {
	Counts []int64
	Shape  []int
	Edges  [][]float64
}

// Total returns the sum of all counts.
func (h Hist) Total() int64 {
	var total int64
	for _, c := range h.Counts {
		total += c
	}
	return total
}

// At returns the count at the given multi-index.
func (h Hist) At(idx ...int) int64 {
	if len(idx) != len(h.Shape) {
		panic(fmt.Sprintf("histogram index dimension %d != %d", len(idx), len(h.Shape)))
	}
	flat := 0
	for d, i := range idx {
		if i < 0 || i >= h.Shape[d] {
			panic(fmt.Sprintf("histogram index %d out of bounds for dimension %d (size %d)", i, d, h.Shape[d]))
		}
		flat = flat*h.Shape[d] + i
	}
	return h.Counts[flat]
}

// HistogramDD bins a D-by-N sample (i-th row holds the N observations of the
// i-th coordinate) into a dense D-dimensional count array. During computation
// every dimension carries two extra sentinel bins for underflow and overflow;
// removeOverflow trims them from the result.
//
// ranges may be nil (derive every dimension from the data), or hold one entry
// per dimension where a nil entry is derived from the data. An empty sample
// with no explicit range defaults to [0, 1] per dimension. A degenerate range
// (min == max) is padded symmetrically by 0.5.
//
// Weighted accumulation is not supported; a non-nil weights slice is rejected.
func HistogramDD(sample [][]float64, bins BinSpec, ranges []*Range, weights []float64, removeOverflow bool) (Hist, error) {
	if weights != nil {
		return Hist{}, fmt.Errorf("weighted histograms are not supported")
	}

	d := len(sample)
	if d == 0 {
		return Hist{}, fmt.Errorf("sample must have at least one dimension")
	}
	n := len(sample[0])
	for i, row := range sample {
		if len(row) != n {
			return Hist{}, fmt.Errorf("ragged sample: dimension %d has %d observations, dimension 0 has %d", i, len(row), n)
		}
	}

	counts, edges, err := resolveBins(bins, d)
	if err != nil {
		return Hist{}, err
	}

	// Per-sample bin index for each dimension, including the sentinels:
	// 0 is underflow, counts[dim]+1 is overflow.
	idx := make([][]int, d)

	if edges != nil {
		for dim := 0; dim < d; dim++ {
			idx[dim] = searchIndices(sample[dim], edges[dim], counts[dim])
		}
	} else {
		edges = make([][]float64, d)
		for dim := 0; dim < d; dim++ {
			lo, hi, err := resolveRange(sample[dim], ranges, dim)
			if err != nil {
				return Hist{}, err
			}
			edges[dim] = linspace(lo, hi, counts[dim]+1)
			idx[dim] = affineIndices(sample[dim], lo, hi, counts[dim])
		}
	}

	// Row-major mixed-radix flattening with each dimension padded by 2 for
	// the sentinel bins, accumulated via a linear bincount. The cell count
	// is bounded before allocating so an oversized request fails instead of
	// overflowing the strides.
	flatLen := 1
	for dim := 0; dim < d; dim++ {
		if counts[dim]+2 > maxCells/flatLen {
			return Hist{}, fmt.Errorf("histogram too large: %d dimensions with %v bins exceed %d cells", d, counts, maxCells)
		}
		flatLen *= counts[dim] + 2
	}
	strides := make([]int, d)
	strides[d-1] = 1
	for dim := d - 2; dim >= 0; dim-- {
		strides[dim] = strides[dim+1] * (counts[dim+1] + 2)
	}

	flat := make([]int64, flatLen)
	for j := 0; j < n; j++ {
		linear := 0
		for dim := 0; dim < d; dim++ {
			linear += idx[dim][j] * strides[dim]
		}
		flat[linear]++
	}

	padded := make([]int, d)
	for dim := 0; dim < d; dim++ {
		padded[dim] = counts[dim] + 2
	}
	h := Hist{Counts: flat, Shape: padded, Edges: edges}

	if removeOverflow {
		h = trimOverflow(h, counts)
	}
	return h, nil
}

// Histogram2D is a fast path for exactly two dimensions with uniform bins and
// an explicit finite range. Samples outside the range are dropped, matching
// the general path with overflow removal. checkInput validates that every
// sample lies strictly inside the stated range before binning.
func Histogram2D(sample [][]float64, bins [2]int, ranges [2]Range, checkInput bool) (Hist, error) {
	if len(sample) != 2 {
		return Hist{}, fmt.Errorf("sample must have exactly 2 dimensions, got %d", len(sample))
	}
	if len(sample[0]) != len(sample[1]) {
		return Hist{}, fmt.Errorf("ragged sample: %d vs %d observations", len(sample[0]), len(sample[1]))
	}
	for dim := 0; dim < 2; dim++ {
		if bins[dim] <= 0 {
			return Hist{}, fmt.Errorf("the number of bins must be a positive integer, got %d for dimension %d", bins[dim], dim)
		}
		r := ranges[dim]
		if math.IsInf(r.Min, 0) || math.IsInf(r.Max, 0) || r.Max <= r.Min {
			return Hist{}, fmt.Errorf("invalid range for dimension %d: (%v, %v)", dim, r.Min, r.Max)
		}
	}

	if checkInput {
		if err := checkWithin(sample, ranges); err != nil {
			return Hist{}, err
		}
	}

	xb, yb := bins[0], bins[1]
	xw := (ranges[0].Max - ranges[0].Min) / float64(xb)
	yw := (ranges[1].Max - ranges[1].Min) / float64(yb)

	flat := make([]int64, xb*yb)
	for j := 0; j < len(sample[0]); j++ {
		ix := int(math.Floor((sample[0][j] - ranges[0].Min) / xw))
		iy := int(math.Floor((sample[1][j] - ranges[1].Min) / yw))
		if ix < 0 || ix >= xb || iy < 0 || iy >= yb {
			continue
		}
		flat[yb*ix+iy]++
	}

	return Hist{
		Counts: flat,
		Shape:  []int{xb, yb},
		Edges: [][]float64{
			linspace(ranges[0].Min, ranges[0].Max, xb+1),
			linspace(ranges[1].Min, ranges[1].Max, yb+1),
		},
	}, nil
}

func checkWithin(sample [][]float64, ranges [2]Range) error {
	for dim := 0; dim < 2; dim++ {
		for _, v := range sample[dim] {
			if v <= ranges[dim].Min {
				return fmt.Errorf("sample[%d] min too small: %v <= %v", dim, v, ranges[dim].Min)
			}
			if v >= ranges[dim].Max {
				return fmt.Errorf("sample[%d] max too big: %v >= %v", dim, v, ranges[dim].Max)
			}
		}
	}
	return nil
}

// resolveBins turns a BinSpec into per-dimension counts and, for explicit
// edge specs, the validated edge arrays.
func resolveBins(bins BinSpec, d int) ([]int, [][]float64, error) {
	if bins.edges != nil {
		if len(bins.edges) != d {
			return nil, nil, fmt.Errorf("bins dimension %d does not match sample dimension %d", len(bins.edges), d)
		}
		counts := make([]int, d)
		for dim, e := range bins.edges {
			if len(e) < 2 {
				return nil, nil, fmt.Errorf("dimension %d needs at least 2 bin edges, got %d", dim, len(e))
			}
			for i := 1; i < len(e); i++ {
				if e[i] <= e[i-1] {
					return nil, nil, fmt.Errorf("bin edges for dimension %d must be strictly increasing: edge[%d]=%v, edge[%d]=%v", dim, i-1, e[i-1], i, e[i])
				}
			}
			counts[dim] = len(e) - 1
		}
		return counts, bins.edges, nil
	}

	var counts []int
	switch {
	case bins.counts != nil:
		if len(bins.counts) != d {
			return nil, nil, fmt.Errorf("bins dimension %d does not match sample dimension %d", len(bins.counts), d)
		}
		counts = bins.counts
	case bins.hasCount:
		counts = make([]int, d)
		for dim := range counts {
			counts[dim] = bins.count
		}
	default:
		counts = make([]int, d)
		for dim := range counts {
			counts[dim] = DefaultBins
		}
	}

	for dim, c := range counts {
		if c <= 0 {
			return nil, nil, fmt.Errorf("the number of bins must be a positive integer, got %d for dimension %d", c, dim)
		}
	}
	return counts, nil, nil
}

// resolveRange determines the binning range of one dimension: explicit if
// supplied, otherwise the data min/max ([0, 1] for an empty sample), with
// degenerate ranges padded by 0.5 on both sides.
func resolveRange(row []float64, ranges []*Range, dim int) (float64, float64, error) {
	var lo, hi float64
	switch {
	case dim < len(ranges) && ranges[dim] != nil:
		lo, hi = ranges[dim].Min, ranges[dim].Max
	case len(row) == 0:
		lo, hi = 0, 1
	default:
		lo, hi = row[0], row[0]
		for _, v := range row {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
	}

	if lo == hi {
		lo -= 0.5
		hi += 0.5
	}
	if lo > hi {
		return 0, 0, fmt.Errorf("max must be greater than min in range for dimension %d: (%v, %v)", dim, lo, hi)
	}
	return lo, hi, nil
}

// affineIndices maps values into sentinel-padded bin indices for uniform bins:
// index = floor(1 + (v-lo)*bins/(hi-lo)), clamped to [0, bins+1].
func affineIndices(row []float64, lo, hi float64, bins int) []int {
	scale := float64(bins) / (hi - lo)
	idx := make([]int, len(row))
	for j, v := range row {
		k := int(math.Floor(1 + (v-lo)*scale))
		if k < 0 {
			k = 0
		}
		if k > bins+1 {
			k = bins + 1
		}
		idx[j] = k
	}
	return idx
}

// searchIndices locates values in explicit edges via sorted search, with the
// same sentinel clamping as the uniform path.
func searchIndices(row []float64, edges []float64, bins int) []int {
	idx := make([]int, len(row))
	for j, v := range row {
		k := sort.SearchFloat64s(edges, v)
		if k > bins+1 {
			k = bins + 1
		}
		idx[j] = k
	}
	return idx
}

// trimOverflow slices away the first and last bin along every dimension.
func trimOverflow(h Hist, counts []int) Hist {
	d := len(counts)
	total := 1
	for _, c := range counts {
		total *= c
	}

	out := make([]int64, total)
	cursor := make([]int, d)
	for flat := 0; flat < total; flat++ {
		src := 0
		for dim := 0; dim < d; dim++ {
			src = src*h.Shape[dim] + cursor[dim] + 1
		}
		out[flat] = h.Counts[src]

		for dim := d - 1; dim >= 0; dim-- {
			cursor[dim]++
			if cursor[dim] < counts[dim] {
				break
			}
			cursor[dim] = 0
		}
	}

	shape := make([]int, d)
	copy(shape, counts)
	return Hist{Counts: out, Shape: shape, Edges: h.Edges}
}

func linspace(lo, hi float64, n int) []float64 {
	out := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	out[n-1] = hi
	return out
}
