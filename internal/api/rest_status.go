package api

import (
	"net/http"
	"time"

	"nascraft/internal/metrics"
	"nascraft/internal/version"
)

func (h *RestHandler) handleStatus(w http.ResponseWriter, r *http.Request) *apiError {
	versionInfo := version.GetVersionInfo()
	response := statusResponse{
		App:          versionInfo.App,
		Version:      versionInfo.Version,
		Major:        versionInfo.Major,
		Minor:        versionInfo.Minor,
		Patch:        versionInfo.Patch,
		Built:        versionInfo.Built,
		GitCommit:    versionInfo.GitCommit,
		GoVersion:    versionInfo.GoVersion,
		ServerTime:   time.Now().UTC(),
		StartedAt:    h.StartedAt,
		Capabilities: h.Capabilities,
	}
	if h.Discovery != nil {
		response.DiscoveryStrategy = h.Discovery.Strategy()
	}
	if h.WatchDirs != nil {
		response.WatchedDirs = len(h.WatchDirs.Watched())
		stats := h.WatchDirs.Stats()
		response.ActiveWatches = stats.ActiveWatches
		response.WatcherErrors = stats.Errors
	}
	if h.LogFile != nil {
		response.LogFilePath = h.LogFile.Path()
	}
	writeJSON(w, http.StatusOK, response)
	return nil
}

func (h *RestHandler) handleMetrics(w http.ResponseWriter, r *http.Request) *apiError {
	registry := h.Registry
	if registry == nil {
		registry = metrics.Default
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	if err := registry.WritePrometheus(w); err != nil && h.Logger != nil {
		h.Logger.Warn("write metrics failed", map[string]string{
			"error": err.Error(),
		})
	}
	return nil
}
