package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wx-b/cockpit/internal/logger"
)

// HealthStatus represents the health status of a tracking run
type HealthStatus struct {
	Status    string        `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	RunID     string        `json:"run_id"`
	Uptime    time.Duration `json:"uptime"`
	System    SystemInfo    `json:"system"`
	Tracking  TrackingInfo  `json:"tracking"`
	Alerts    []Alert       `json:"alerts"`
}

// SystemInfo contains system-level information
type SystemInfo struct {
	GoVersion      string  `json:"go_version"`
	OS             string  `json:"os"`
	Arch           string  `json:"arch"`
	NumCPU         int     `json:"num_cpu"`
	MemoryMB       int     `json:"memory_mb"`
	MemoryUsedMB   int     `json:"memory_used_mb"`
	MemoryUsagePct float64 `json:"memory_usage_pct"`
}

// TrackingInfo contains run-specific information
type TrackingInfo struct {
	TrackedSteps  int       `json:"tracked_steps"`
	LastStep      int       `json:"last_step"`
	LastBatchLoss float64   `json:"last_batch_loss"`
	AvgTrackMs    float64   `json:"avg_track_ms"`
	LastTracked   time.Time `json:"last_tracked"`
}

// Alert represents a tracking alert
type Alert struct {
	Level      string     `json:"level"`     // info, warning, error, critical
	Component  string     `json:"component"` // tracking, eigensolver, system
	Message    string     `json:"message"`
	Timestamp  time.Time  `json:"timestamp"`
	Resolved   bool       `json:"resolved"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// HealthMonitor serves health and metrics endpoints for a tracking run
type HealthMonitor struct {
	startTime time.Time
	runID     string
	server    *http.Server
	mu        sync.RWMutex
	alerts    []Alert

	trackedSteps int
	lastStep     int
	lastLoss     float64
	lastTracked  time.Time
	trackHistory []time.Duration
}

// NewHealthMonitor creates a new health monitor for the given run
func NewHealthMonitor(runID string) *HealthMonitor {
	return &HealthMonitor{
		startTime: time.Now(),
		runID:     runID,
		alerts:    make([]Alert, 0),
	}
}

// Start begins serving health endpoints; blocks until the server exits
func (hm *HealthMonitor) Start(addr string) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", hm.handleHealth)
	mux.HandleFunc("/healthz", hm.handleHealth) // Kubernetes compatibility

	// Metrics endpoint (Prometheus)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/status", hm.handleDetailedStatus)

	mux.HandleFunc("/admin/alerts", hm.handleAlerts)
	mux.HandleFunc("/admin/clear-alerts", hm.handleClearAlerts)

	hm.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	logger.Log.Info("health monitor starting", "addr", addr, "run_id", hm.runID)
	return hm.server.ListenAndServe()
}

// Stop stops health monitoring
func (hm *HealthMonitor) Stop(ctx context.Context) error {
	if hm.server != nil {
		return hm.server.Shutdown(ctx)
	}
	return nil
}

// RecordTrack records one tracked step for status reporting
func (hm *HealthMonitor) RecordTrack(step int, batchLoss float64, duration time.Duration) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	hm.trackedSteps++
	hm.lastStep = step
	hm.lastLoss = batchLoss
	hm.lastTracked = time.Now()

	hm.trackHistory = append(hm.trackHistory, duration)
	if len(hm.trackHistory) > 1000 {
		hm.trackHistory = hm.trackHistory[1:]
	}

	if math.IsNaN(batchLoss) || math.IsInf(batchLoss, 0) {
		hm.addAlertLocked("critical", "tracking",
			fmt.Sprintf("non-finite batch loss at step %d", step))
	}
}

// RecordEigensolverFailure records a failed curvature probe
func (hm *HealthMonitor) RecordEigensolverFailure(step int, err error) {
	hm.AddAlert("error", "eigensolver",
		fmt.Sprintf("eigensolver failed at step %d: %v", step, err))
}

// AddAlert adds a new alert
func (hm *HealthMonitor) AddAlert(level, component, message string) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.addAlertLocked(level, component, message)
}

func (hm *HealthMonitor) addAlertLocked(level, component, message string) {
	alert := Alert{
		Level:     level,
		Component: component,
		Message:   message,
		Timestamp: time.Now(),
		Resolved:  false,
	}

	hm.alerts = append(hm.alerts, alert)

	// Keep only last 100 alerts
	if len(hm.alerts) > 100 {
		hm.alerts = hm.alerts[1:]
	}

	logger.Log.Warn("alert raised", "level", level, "component", component, "message", message)
}

// ResolveAlert resolves an alert
func (hm *HealthMonitor) ResolveAlert(index int) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	if index >= 0 && index < len(hm.alerts) {
		now := time.Now()
		hm.alerts[index].Resolved = true
		hm.alerts[index].ResolvedAt = &now
	}
}

// HTTP Handlers

func (hm *HealthMonitor) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := hm.getHealthStatus()

	if status.Status == "healthy" {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	json.NewEncoder(w).Encode(map[string]string{
		"status":    status.Status,
		"timestamp": status.Timestamp.Format(time.RFC3339),
	})
}

func (hm *HealthMonitor) handleDetailedStatus(w http.ResponseWriter, r *http.Request) {
	status := hm.getHealthStatus()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

func (hm *HealthMonitor) handleAlerts(w http.ResponseWriter, r *http.Request) {
	hm.mu.RLock()
	alerts := make([]Alert, len(hm.alerts))
	copy(alerts, hm.alerts)
	hm.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(alerts)
}

func (hm *HealthMonitor) handleClearAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	hm.mu.Lock()
	hm.alerts = hm.alerts[:0]
	hm.mu.Unlock()

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"message": "alerts cleared"})
}

// Health status calculation

func (hm *HealthMonitor) getHealthStatus() HealthStatus {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	status := "healthy"
	for _, alert := range hm.alerts {
		if alert.Level == "critical" && !alert.Resolved {
			status = "critical"
			break
		} else if alert.Level == "error" && !alert.Resolved {
			status = "degraded"
		}
	}

	return HealthStatus{
		Status:    status,
		Timestamp: time.Now(),
		RunID:     hm.runID,
		Uptime:    time.Since(hm.startTime),
		System:    hm.getSystemInfo(),
		Tracking:  hm.getTrackingInfo(),
		Alerts:    hm.alerts,
	}
}

func (hm *HealthMonitor) getSystemInfo() SystemInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return SystemInfo{
		GoVersion:      runtime.Version(),
		OS:             runtime.GOOS,
		Arch:           runtime.GOARCH,
		NumCPU:         runtime.NumCPU(),
		MemoryMB:       int(m.Sys / 1024 / 1024),
		MemoryUsedMB:   int(m.Alloc / 1024 / 1024),
		MemoryUsagePct: float64(m.Alloc) / float64(m.Sys) * 100,
	}
}

func (hm *HealthMonitor) getTrackingInfo() TrackingInfo {
	info := TrackingInfo{
		TrackedSteps:  hm.trackedSteps,
		LastStep:      hm.lastStep,
		LastBatchLoss: hm.lastLoss,
		LastTracked:   hm.lastTracked,
	}
	if len(hm.trackHistory) > 0 {
		var total time.Duration
		for _, d := range hm.trackHistory {
			total += d
		}
		info.AvgTrackMs = float64(total.Nanoseconds()) / float64(len(hm.trackHistory)) / 1e6
	}
	return info
}
