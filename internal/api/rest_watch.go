package api

import (
	"errors"
	"net/http"

	"nascraft/internal/platform"
	"nascraft/internal/watcher"
)

func (h *RestHandler) handleGetWatchDirs(w http.ResponseWriter, r *http.Request) *apiError {
	if err := h.requireWatchDirs(); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, watchDirsPayload{Dirs: h.WatchDirs.Watched()})
	return nil
}

func (h *RestHandler) handleUpdateWatchDirs(w http.ResponseWriter, r *http.Request) *apiError {
	if err := h.requireWatchDirs(); err != nil {
		return err
	}

	var request watchDirsPayload
	if err := decodeJSONBody(w, r, &request, false); err != nil {
		return err
	}

	if err := h.WatchDirs.UpdateWatchDirs(request.Dirs); err != nil {
		switch {
		case errors.Is(err, platform.ErrUnsupported):
			return unsupportedError()
		case errors.Is(err, watcher.ErrClosed):
			return &apiError{Status: http.StatusServiceUnavailable, Message: "watcher closed"}
		default:
			return &apiError{Status: http.StatusBadRequest, Message: err.Error()}
		}
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}
