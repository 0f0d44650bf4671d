package api

import (
	"io"
	"net/http"
	"strconv"
	"strings"
)

func (h *RestHandler) handleLogInfo(w http.ResponseWriter, r *http.Request) *apiError {
	if err := h.requireLogFile(); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, logInfoResponse{
		LogFilePath: h.LogFile.Path(),
		MaxBytes:    h.LogFile.MaxBytes(),
	})
	return nil
}

func (h *RestHandler) handleReadLog(w http.ResponseWriter, r *http.Request) *apiError {
	if err := h.requireLogFile(); err != nil {
		return err
	}

	var maxBytes int64
	if rawMax := strings.TrimSpace(r.URL.Query().Get("max_bytes")); rawMax != "" {
		parsed, err := strconv.ParseInt(rawMax, 10, 64)
		if err != nil {
			return &apiError{Status: http.StatusBadRequest, Message: "invalid max_bytes"}
		}
		maxBytes = parsed
	}

	text, err := h.LogFile.ReadTail(maxBytes)
	if err != nil {
		return &apiError{Status: http.StatusInternalServerError, Message: "read log failed: " + err.Error()}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, text)
	return nil
}

func (h *RestHandler) handleWebLog(w http.ResponseWriter, r *http.Request) *apiError {
	if err := h.requireLogFile(); err != nil {
		return err
	}

	var request webLogRequest
	if err := decodeJSONBody(w, r, &request, false); err != nil {
		return err
	}
	message := strings.TrimSpace(request.Message)
	if message == "" {
		return &apiError{Status: http.StatusBadRequest, Message: "missing log message"}
	}

	if err := h.LogFile.AppendWebLog(request.Level, message); err != nil {
		return &apiError{Status: http.StatusInternalServerError, Message: "append log failed: " + err.Error()}
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}
