package api

import (
	"errors"
	"net/http"

	"nascraft/internal/relay"
)

func (h *RestHandler) handleFetch(w http.ResponseWriter, r *http.Request) *apiError {
	if err := h.requireRelay(); err != nil {
		return err
	}

	var request relay.Request
	if err := decodeJSONBody(w, r, &request, false); err != nil {
		return err
	}

	response, err := h.Relay.Fetch(r.Context(), request)
	if err != nil {
		if errors.Is(err, relay.ErrURLRequired) || errors.Is(err, relay.ErrUnsupportedScheme) {
			return &apiError{Status: http.StatusBadRequest, Message: err.Error()}
		}
		return &apiError{Status: http.StatusBadGateway, Message: err.Error()}
	}
	writeJSON(w, http.StatusOK, response)
	return nil
}
