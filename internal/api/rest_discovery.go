package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nascraft/internal/discovery"
	"nascraft/internal/platform"
)

func (h *RestHandler) handleDiscover(w http.ResponseWriter, r *http.Request) *apiError {
	if err := h.requireDiscovery(); err != nil {
		return err
	}

	var request discoverRequest
	if err := decodeJSONBody(w, r, &request, true); err != nil {
		return err
	}
	if request.TimeoutMS < 0 {
		return &apiError{Status: http.StatusBadRequest, Message: "invalid timeout_ms"}
	}

	servers, err := h.Discovery.Discover(r.Context(), discovery.Request{
		Timeout:        discovery.TimeoutFromMillis(request.TimeoutMS),
		BroadcastAddrs: request.BroadcastAddrs,
	})
	if err != nil {
		return discoveryError(err)
	}
	writeJSON(w, http.StatusOK, servers)
	return nil
}

func (h *RestHandler) handleBrowse(w http.ResponseWriter, r *http.Request) *apiError {
	if err := h.requireDiscovery(); err != nil {
		return err
	}

	values := r.URL.Query()
	serviceType := strings.TrimSpace(values.Get("service"))
	if serviceType == "" {
		serviceType = discovery.DefaultServiceType
	}
	var timeout time.Duration
	if rawTimeout := strings.TrimSpace(values.Get("timeout_ms")); rawTimeout != "" {
		parsed, err := strconv.ParseInt(rawTimeout, 10, 64)
		if err != nil || parsed < 0 {
			return &apiError{Status: http.StatusBadRequest, Message: "invalid timeout_ms"}
		}
		timeout = discovery.TimeoutFromMillis(parsed)
	}

	servers, err := h.Discovery.Browse(r.Context(), serviceType, timeout)
	if err != nil {
		return discoveryError(err)
	}
	writeJSON(w, http.StatusOK, servers)
	return nil
}

func discoveryError(err error) *apiError {
	switch {
	case errors.Is(err, platform.ErrUnsupported):
		return unsupportedError()
	case errors.Is(err, discovery.ErrNoProbeTargets):
		return &apiError{Status: http.StatusBadRequest, Message: err.Error()}
	default:
		return &apiError{Status: http.StatusInternalServerError, Message: "discovery failed: " + err.Error()}
	}
}
