// ABOUTME: Group mirror handlers: sync from the gateway and list the snapshot
// ABOUTME: Remote group labels become local tags on sync

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/2389/herald/internal/auth"
	"github.com/2389/herald/internal/store"
)

type groupJSON struct {
	GroupID  string    `json:"group_id"`
	Name     string    `json:"name"`
	Tags     []string  `json:"tags"`
	SyncedAt time.Time `json:"synced_at"`
}

type groupsResponse struct {
	Groups []groupJSON `json:"groups"`
}

// SyncGroups handles POST /api/groups/sync: pull the account's groups from
// the gateway and replace the local mirror wholesale.
func (h *Handler) SyncGroups(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := auth.MustUserFromContext(ctx)

	conn, err := h.store.GetConnection(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusConflict, errorBody{Error: "channel not connected"})
			return
		}
		h.writeError(w, err)
		return
	}
	if conn.Status != store.ConnectionStatusConnected || conn.ChannelToken == "" {
		writeJSON(w, http.StatusConflict, errorBody{Error: "channel not connected"})
		return
	}

	remote, err := h.groups.ListGroups(ctx, conn.ChannelToken)
	if err != nil {
		h.writeGatewayError(w, err)
		return
	}

	syncedAt := h.now().UTC()
	groups := make([]*store.Group, 0, len(remote))
	for _, g := range remote {
		groups = append(groups, &store.Group{
			UserID:   userID,
			GroupID:  g.ID,
			Name:     g.Name,
			Tags:     g.Labels,
			SyncedAt: syncedAt,
		})
	}

	if err := h.store.ReplaceGroups(ctx, userID, groups); err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.Info("groups synced", "user_id", userID, "count", len(groups))
	writeJSON(w, http.StatusOK, toGroupsResponse(groups))
}

// ListGroups handles GET /api/groups.
func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := auth.MustUserFromContext(ctx)

	groups, err := h.store.ListGroups(ctx, userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toGroupsResponse(groups))
}

func toGroupsResponse(groups []*store.Group) groupsResponse {
	out := groupsResponse{Groups: make([]groupJSON, 0, len(groups))}
	for _, g := range groups {
		tags := g.Tags
		if tags == nil {
			tags = []string{}
		}
		out.Groups = append(out.Groups, groupJSON{
			GroupID:  g.GroupID,
			Name:     g.Name,
			Tags:     tags,
			SyncedAt: g.SyncedAt,
		})
	}
	return out
}
