// ABOUTME: HTTP API handler wiring for herald's user-facing actions
// ABOUTME: Declares the narrow surfaces the handlers need and mounts the routes

package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/2389/herald/internal/auth"
	"github.com/2389/herald/internal/connect"
	"github.com/2389/herald/internal/dispatch"
	"github.com/2389/herald/internal/gateway"
	"github.com/2389/herald/internal/store"
)

// Orchestrator is the channel lifecycle surface the API translates to.
type Orchestrator interface {
	EnsureConnected(ctx context.Context, userID string) (*connect.ConnectResult, error)
	CheckStatus(ctx context.Context, userID string) (*connect.StatusResult, error)
	Disconnect(ctx context.Context, userID string) error
}

// Broadcaster is the message scheduling and sending surface.
type Broadcaster interface {
	Schedule(ctx context.Context, req *dispatch.Request, sendAt time.Time) (*store.Broadcast, error)
	SendDirect(ctx context.Context, req *dispatch.Request) (*store.Broadcast, error)
	Cancel(ctx context.Context, userID, broadcastID string) error
}

// GroupSource lists recipient groups from the gateway for syncing.
type GroupSource interface {
	ListGroups(ctx context.Context, token string) ([]gateway.RemoteGroup, error)
}

// Store is the persistence surface for history and the group mirror.
type Store interface {
	GetConnection(ctx context.Context, userID string) (*store.Connection, error)
	ListBroadcasts(ctx context.Context, userID string, limit int) ([]*store.Broadcast, error)
	ListDeliveries(ctx context.Context, broadcastID string) ([]*store.Delivery, error)
	ReplaceGroups(ctx context.Context, userID string, groups []*store.Group) error
	ListGroups(ctx context.Context, userID string) ([]*store.Group, error)
}

// Handler serves the authenticated /api routes. Handlers are thin: decode,
// delegate, map the result or error onto the response contract.
type Handler struct {
	orch   Orchestrator
	engine Broadcaster
	groups GroupSource
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// New creates the API handler.
func New(orch Orchestrator, engine Broadcaster, groups GroupSource, st Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		orch:   orch,
		engine: engine,
		groups: groups,
		store:  st,
		logger: logger.With("component", "api"),
		now:    time.Now,
	}
}

// Routes returns the authenticated API router, ready to mount under /api.
func (h *Handler) Routes(verifier auth.TokenVerifier) http.Handler {
	r := chi.NewRouter()
	r.Use(auth.HTTPAuthMiddleware(verifier))

	r.Post("/channel/connect", h.ConnectChannel)
	r.Get("/channel/status", h.ChannelStatus)
	r.Delete("/channel", h.DisconnectChannel)

	r.Post("/groups/sync", h.SyncGroups)
	r.Get("/groups", h.ListGroups)

	r.Post("/messages/send", h.SendMessage)
	r.Post("/messages/schedule", h.ScheduleMessage)
	r.Post("/messages/{id}/cancel", h.CancelMessage)
	r.Get("/messages", h.ListMessages)

	return r
}
