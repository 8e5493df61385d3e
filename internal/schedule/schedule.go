package schedule

import (
	"fmt"
	"math"
)

// Schedule decides whether a quantity is due at a given iteration. It must be
// pure: calling it twice with the same step yields the same answer.
type Schedule func(step int) bool

// Linear returns a schedule that is due when (step - offset) is a non-negative
// multiple of interval. interval=1, offset=0 means every step is due. Tracking
// deliberately starts at offset: steps before it are never due, so offset=4
// with interval=2 is due at 4, 6, 8, ... and nowhere earlier.
func Linear(interval, offset int) (Schedule, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("invalid interval: %d (must be positive)", interval)
	}
	if offset < 0 {
		return nil, fmt.Errorf("invalid offset: %d (must be non-negative)", offset)
	}
	return func(step int) bool {
		if step < offset {
			return false
		}
		return (step-offset)%interval == 0
	}, nil
}

// Logarithmic returns a schedule that is due at the rounded points of a
// log-spaced grid with the given number of points between 10^start and
// 10^end. init additionally marks step 0 as due.
func Logarithmic(start, end float64, steps int, init bool) (Schedule, error) {
	if steps <= 0 {
		return nil, fmt.Errorf("invalid steps: %d (must be positive)", steps)
	}
	if end < start {
		return nil, fmt.Errorf("invalid grid: end %v < start %v", end, start)
	}

	due := make(map[int]bool, steps+1)
	if init {
		due[0] = true
	}
	for i := 0; i < steps; i++ {
		frac := 0.0
		if steps > 1 {
			frac = float64(i) / float64(steps-1)
		}
		exp := start + frac*(end-start)
		due[int(math.Round(math.Pow(10, exp)))] = true
	}

	return func(step int) bool {
		return due[step]
	}, nil
}
