package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"image-hunter/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusStarting = "starting"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status            string `json:"status"`
	Ready             bool   `json:"ready"`
	Version           string `json:"version"`
	Uptime            string `json:"uptime"`
	Indexing          bool   `json:"indexing"`
	LastIndexed       string `json:"lastIndexed,omitempty"`
	InitialIndexError string `json:"initialIndexError,omitempty"`
	FilesIndexed      int64  `json:"filesIndexed"`
	TotalImages       int64  `json:"totalImages"`
	HuntsInFlight     int    `json:"huntsInFlight"`
	GoVersion         string `json:"goVersion"`
	NumGoroutine      int    `json:"numGoroutine"`
}

// HealthCheck reports the indexer and dispatcher state. It answers 503 until
// the first index run has finished.
func (h *Handlers) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	hs := h.indexer.GetHealthStatus()

	response := HealthResponse{
		Status:            statusStarting,
		Ready:             hs.Ready,
		Version:           startup.Version,
		Uptime:            hs.Uptime,
		Indexing:          hs.Indexing,
		InitialIndexError: hs.InitialIndexError,
		FilesIndexed:      hs.FilesIndexed,
		TotalImages:       h.store.GetStats().TotalImages,
		HuntsInFlight:     h.hunter.InFlight(),
		GoVersion:         runtime.Version(),
		NumGoroutine:      runtime.NumGoroutine(),
	}
	if hs.Ready {
		response.Status = statusHealthy
	}
	if hs.InitialIndexError != "" {
		response.Status = statusDegraded
	}
	if !hs.LastIndexed.IsZero() {
		response.LastIndexed = hs.LastIndexed.Format(time.RFC3339)
	}

	status := http.StatusOK
	if !hs.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, response)
}

// LivenessCheck answers 200 while the process serves requests.
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		return
	}
	writeJSONStatus(w, http.StatusOK, "alive")
}

// ReadinessCheck returns 200 only when the media index is usable.
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, _ *http.Request) {
	if h.indexer.IsReady() {
		writeJSONStatus(w, http.StatusOK, "ready")
		return
	}
	writeJSONStatus(w, http.StatusServiceUnavailable, "not_ready")
}

// GetVersion returns the application version and build information
func (h *Handlers) GetVersion(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, http.StatusOK, startup.GetBuildInfo())
}

// MetricsHandler returns the Prometheus metrics handler
func (h *Handlers) MetricsHandler() http.Handler {
	return promhttp.Handler()
}
