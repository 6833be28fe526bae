// ABOUTME: Channel lifecycle handlers: connect, status, disconnect
// ABOUTME: Thin translations from HTTP to the connection orchestrator

package api

import (
	"net/http"

	"github.com/2389/herald/internal/auth"
)

type connectResponse struct {
	State       string `json:"state"`
	ChannelID   string `json:"channel_id,omitempty"`
	PairingCode string `json:"pairing_code,omitempty"`
}

type statusResponse struct {
	Connected           bool   `json:"connected"`
	Status              string `json:"status"`
	RequiresNewInstance bool   `json:"requires_new_instance,omitempty"`
}

// ConnectChannel handles POST /api/channel/connect.
func (h *Handler) ConnectChannel(w http.ResponseWriter, r *http.Request) {
	userID := auth.MustUserFromContext(r.Context())

	res, err := h.orch.EnsureConnected(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, connectResponse{
		State:       res.State,
		ChannelID:   res.ChannelID,
		PairingCode: res.PairingCode,
	})
}

// ChannelStatus handles GET /api/channel/status.
func (h *Handler) ChannelStatus(w http.ResponseWriter, r *http.Request) {
	userID := auth.MustUserFromContext(r.Context())

	res, err := h.orch.CheckStatus(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Connected:           res.Connected,
		Status:              res.Status,
		RequiresNewInstance: res.RequiresNewInstance,
	})
}

// DisconnectChannel handles DELETE /api/channel.
func (h *Handler) DisconnectChannel(w http.ResponseWriter, r *http.Request) {
	userID := auth.MustUserFromContext(r.Context())

	if err := h.orch.Disconnect(r.Context(), userID); err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "disconnected"})
}
