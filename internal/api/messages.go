// ABOUTME: Message handlers: direct send, scheduling, cancellation, history
// ABOUTME: Thin translations from HTTP to the dispatch engine and store

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/2389/herald/internal/auth"
	"github.com/2389/herald/internal/dispatch"
	"github.com/2389/herald/internal/store"
)

const defaultHistoryLimit = 50

type messageRequest struct {
	GroupIDs []string `json:"group_ids"`
	Tags     []string `json:"tags"`
	Message  string   `json:"message"`
	MediaURL string   `json:"media_url"`
	SendAt   string   `json:"send_at"` // RFC3339; empty means now
}

type deliveryJSON struct {
	GroupID  string    `json:"group_id"`
	Status   string    `json:"status"`
	Error    string    `json:"error,omitempty"`
	RemoteID string    `json:"remote_id,omitempty"`
	SentAt   time.Time `json:"sent_at"`
}

type broadcastJSON struct {
	ID         string         `json:"id"`
	Message    string         `json:"message"`
	MediaURL   string         `json:"media_url,omitempty"`
	GroupIDs   []string       `json:"group_ids"`
	SendAt     time.Time      `json:"send_at"`
	Status     string         `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
	Deliveries []deliveryJSON `json:"deliveries,omitempty"`
}

type messagesResponse struct {
	Messages []broadcastJSON `json:"messages"`
}

// SendMessage handles POST /api/messages/send. The response carries the
// rolled-up broadcast with its per-recipient outcomes.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := auth.MustUserFromContext(ctx)

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	b, err := h.engine.SendDirect(ctx, &dispatch.Request{
		UserID:   userID,
		GroupIDs: req.GroupIDs,
		Tags:     req.Tags,
		Message:  req.Message,
		MediaURL: req.MediaURL,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.toBroadcastJSON(ctx, b, true))
}

// ScheduleMessage handles POST /api/messages/schedule.
func (h *Handler) ScheduleMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := auth.MustUserFromContext(ctx)

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	var sendAt time.Time
	if req.SendAt != "" {
		var err error
		sendAt, err = time.Parse(time.RFC3339, req.SendAt)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "send_at must be RFC3339"})
			return
		}
	}

	b, err := h.engine.Schedule(ctx, &dispatch.Request{
		UserID:   userID,
		GroupIDs: req.GroupIDs,
		Tags:     req.Tags,
		Message:  req.Message,
		MediaURL: req.MediaURL,
	}, sendAt)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, h.toBroadcastJSON(ctx, b, false))
}

// CancelMessage handles POST /api/messages/{id}/cancel.
func (h *Handler) CancelMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := auth.MustUserFromContext(ctx)
	broadcastID := chi.URLParam(r, "id")

	if err := h.engine.Cancel(ctx, userID, broadcastID); err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// ListMessages handles GET /api/messages. Each broadcast carries its
// per-recipient delivery outcomes.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := auth.MustUserFromContext(ctx)

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	broadcasts, err := h.store.ListBroadcasts(ctx, userID, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}

	out := messagesResponse{Messages: make([]broadcastJSON, 0, len(broadcasts))}
	for _, b := range broadcasts {
		out.Messages = append(out.Messages, h.toBroadcastJSON(ctx, b, true))
	}

	writeJSON(w, http.StatusOK, out)
}

// toBroadcastJSON converts a broadcast for the wire, optionally attaching
// its delivery records. A failed delivery lookup degrades to a broadcast
// without outcomes rather than failing the whole response.
func (h *Handler) toBroadcastJSON(ctx context.Context, b *store.Broadcast, withDeliveries bool) broadcastJSON {
	out := broadcastJSON{
		ID:        b.ID,
		Message:   b.Message,
		MediaURL:  b.MediaURL,
		GroupIDs:  b.GroupIDs,
		SendAt:    b.SendAt,
		Status:    b.Status,
		CreatedAt: b.CreatedAt,
	}

	if withDeliveries {
		deliveries, err := h.store.ListDeliveries(ctx, b.ID)
		if err != nil {
			h.logger.Warn("listing deliveries", "broadcast_id", b.ID, "error", err)
			return out
		}
		for _, d := range deliveries {
			out.Deliveries = append(out.Deliveries, deliveryJSON{
				GroupID:  d.GroupID,
				Status:   d.Status,
				Error:    d.Error,
				RemoteID: d.RemoteID,
				SentAt:   d.SentAt,
			})
		}
	}

	return out
}
