package api

import "net/http"

func (h *RestHandler) requireDiscovery() *apiError {
	if h.Discovery == nil {
		return &apiError{Status: http.StatusServiceUnavailable, Message: "discovery unavailable"}
	}
	return nil
}

func (h *RestHandler) requireWatchDirs() *apiError {
	if h.WatchDirs == nil {
		return &apiError{Status: http.StatusServiceUnavailable, Message: "watcher unavailable"}
	}
	return nil
}

func (h *RestHandler) requireLogFile() *apiError {
	if h.LogFile == nil {
		return &apiError{Status: http.StatusInternalServerError, Message: "log file unavailable"}
	}
	return nil
}

func (h *RestHandler) requireRelay() *apiError {
	if h.Relay == nil {
		return &apiError{Status: http.StatusServiceUnavailable, Message: "fetch relay unavailable"}
	}
	return nil
}

func unsupportedError() *apiError {
	return &apiError{Status: http.StatusNotImplemented, Message: "unsupported on this platform", Code: "unsupported"}
}
