package config

import (
	"fmt"
	"strings"
)

// Config holds the knobs of a tracking run. The zero value is not usable;
// start from Default and override.
type Config struct {
	Preset string

	TrackInterval int
	TrackOffset   int

	HistBins     int
	Hist2DBins   [2]int
	GradRangeMin float64
	GradRangeMax float64
	ParamRange   float64

	EigenMaxIter int
	EigenTol     float64
	EigenSeed    int64

	ExportAddr string

	LogLevel  string
	LogFormat string

	DebugSignals  bool
	DebugCompute  bool
	EnableMonitor bool
	MonitorPort   int
}

func Default() *Config {
	return &Config{
		Preset:        "economy",
		TrackInterval: 1,
		TrackOffset:   0,
		HistBins:      40,
		Hist2DBins:    [2]int{40, 50},
		GradRangeMin:  -1,
		GradRangeMax:  1,
		ParamRange:    2,
		EigenMaxIter:  64,
		EigenTol:      1e-6,
		EigenSeed:     1,
		LogLevel:      "info",
		LogFormat:     "console",
		MonitorPort:   8090,
	}
}

func (c *Config) Validate() error {
	switch strings.ToLower(c.Preset) {
	case "full", "business", "economy":
	default:
		return fmt.Errorf("invalid preset: %q (must be full, business or economy)", c.Preset)
	}
	if c.TrackInterval <= 0 {
		return fmt.Errorf("invalid track_interval: %d (must be positive)", c.TrackInterval)
	}
	if c.TrackOffset < 0 {
		return fmt.Errorf("invalid track_offset: %d (must be non-negative)", c.TrackOffset)
	}
	if c.HistBins <= 0 {
		return fmt.Errorf("invalid hist_bins: %d (must be positive)", c.HistBins)
	}
	for i, b := range c.Hist2DBins {
		if b <= 0 {
			return fmt.Errorf("invalid hist2d_bins[%d]: %d (must be positive)", i, b)
		}
	}
	if c.GradRangeMin >= c.GradRangeMax {
		return fmt.Errorf("invalid gradient range: [%f, %f] (min must be < max)", c.GradRangeMin, c.GradRangeMax)
	}
	if c.ParamRange <= 0 {
		return fmt.Errorf("invalid param_range: %f (must be positive)", c.ParamRange)
	}
	if c.EigenMaxIter <= 0 {
		return fmt.Errorf("invalid eigen_max_iter: %d (must be positive)", c.EigenMaxIter)
	}
	if c.EigenTol <= 0 {
		return fmt.Errorf("invalid eigen_tol: %f (must be positive)", c.EigenTol)
	}
	if c.EnableMonitor && (c.MonitorPort <= 0 || c.MonitorPort > 65535) {
		return fmt.Errorf("invalid monitor_port: %d (must be in 1..65535)", c.MonitorPort)
	}
	return nil
}
