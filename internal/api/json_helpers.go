package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

const maxRequestBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, err *apiError) {
	if err == nil {
		return
	}
	code := err.Code
	if code == "" {
		code = errorCodeForStatus(err.Status)
	}
	writeJSON(w, err.Status, errorResponse{
		Message: err.Message,
		Error:   err.Message,
		Code:    code,
	})
}

// decodeJSONBody decodes a bounded request body. An empty body leaves target
// untouched when allowEmpty is set.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, target any, allowEmpty bool) *apiError {
	if r.Body == nil {
		if allowEmpty {
			return nil
		}
		return &apiError{Status: http.StatusBadRequest, Message: "invalid request body"}
	}
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return &apiError{Status: http.StatusRequestEntityTooLarge, Message: "request body too large"}
		}
		return &apiError{Status: http.StatusBadRequest, Message: "invalid request body"}
	}
	return nil
}
