// ABOUTME: JSON response and error mapping helpers for the API
// ABOUTME: Maps domain sentinels onto the HTTP error contract

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/2389/herald/internal/connect"
	"github.com/2389/herald/internal/dispatch"
	"github.com/2389/herald/internal/gateway"
	"github.com/2389/herald/internal/store"
)

// errorBody is the envelope every non-2xx API response carries. The two
// flags tell the caller what to do next: retry the same call, or start a
// fresh connect.
type errorBody struct {
	Error               string `json:"error"`
	Retryable           bool   `json:"retryable,omitempty"`
	RequiresNewInstance bool   `json:"requires_new_instance,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError maps domain errors onto the error contract: gateway
// unavailability is retryable, a gone channel needs a new connect,
// validation is the caller's fault, unknown ids are 404.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, connect.ErrGatewayUnavailable):
		writeJSON(w, http.StatusBadGateway, errorBody{Error: "gateway unavailable, try again", Retryable: true})
	case errors.Is(err, connect.ErrRequiresNewInstance):
		writeJSON(w, http.StatusConflict, errorBody{Error: "channel gone, connect again", RequiresNewInstance: true})
	case errors.Is(err, dispatch.ErrEmptyMessage), errors.Is(err, dispatch.ErrNoRecipients):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.Is(err, store.ErrNotPending):
		writeJSON(w, http.StatusConflict, errorBody{Error: "broadcast already left pending"})
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	default:
		h.logger.Error("internal error", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

// writeGatewayError maps raw gateway client errors for the handlers that
// call the gateway without the orchestrator in between.
func (h *Handler) writeGatewayError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, gateway.ErrChannelNotFound):
		writeJSON(w, http.StatusConflict, errorBody{Error: "channel gone, connect again", RequiresNewInstance: true})
	case gateway.IsTransient(err):
		writeJSON(w, http.StatusBadGateway, errorBody{Error: "gateway unavailable, try again", Retryable: true})
	default:
		h.logger.Error("gateway call failed", "error", err)
		writeJSON(w, http.StatusBadGateway, errorBody{Error: "gateway error"})
	}
}
