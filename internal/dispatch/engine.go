// ABOUTME: Scheduled dispatch engine: claims due broadcasts and fans out sends
// ABOUTME: One delivery row per recipient attempt; rollup written once per broadcast

package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/2389/herald/internal/metrics"
	"github.com/2389/herald/internal/store"
)

// BroadcastStore defines what the engine needs from storage
type BroadcastStore interface {
	GetConnection(ctx context.Context, userID string) (*store.Connection, error)

	CreateBroadcast(ctx context.Context, b *store.Broadcast) error
	GetBroadcast(ctx context.Context, id string) (*store.Broadcast, error)
	ClaimDueBroadcasts(ctx context.Context, now time.Time, limit int) ([]*store.Broadcast, error)
	ClaimBroadcast(ctx context.Context, id string, at time.Time) (bool, error)
	FinishBroadcast(ctx context.Context, id, status string, at time.Time) error
	CancelBroadcast(ctx context.Context, id string, at time.Time) error

	CreateDelivery(ctx context.Context, d *store.Delivery) error
	ListGroups(ctx context.Context, userID string) ([]*store.Group, error)
}

// MessageSender defines what the engine needs from the gateway
type MessageSender interface {
	SendText(ctx context.Context, token, to, body string) (string, error)
	SendMedia(ctx context.Context, token, to, body, mediaURL string) (string, error)
}

// Config carries the engine knobs
type Config struct {
	// BatchSize caps how many due broadcasts one pass will claim.
	BatchSize int
}

// Engine dispatches scheduled broadcasts. It owns no goroutines; the server
// invokes RunDueBroadcasts on a ticker, and SendDirect runs inline in the
// caller's request.
type Engine struct {
	store  BroadcastStore
	sender MessageSender
	cfg    Config
	logger *slog.Logger

	now func() time.Time
}

// New creates an Engine
func New(store BroadcastStore, sender MessageSender, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	return &Engine{
		store:  store,
		sender: sender,
		cfg:    cfg,
		logger: logger.With("component", "dispatch"),
		now:    time.Now,
	}
}

// RunDueBroadcasts claims one batch of due pending broadcasts, oldest due
// first, and processes each in turn. A failure inside one broadcast is
// contained to that broadcast; the pass always finishes the batch. Returns
// how many broadcasts this pass processed.
func (e *Engine) RunDueBroadcasts(ctx context.Context) (int, error) {
	claimed, err := e.store.ClaimDueBroadcasts(ctx, e.now(), e.cfg.BatchSize)
	if err != nil {
		err = fmt.Errorf("claiming due broadcasts: %w", err)
	}
	if len(claimed) == 0 {
		return 0, err
	}

	e.logger.Debug("dispatch pass claimed broadcasts", "count", len(claimed))

	// Every claimed broadcast is in sending now and only this pass will
	// write its rollup, so a claim error never skips the work that was
	// already claimed.
	for _, b := range claimed {
		e.process(ctx, b)
	}
	return len(claimed), err
}

// process delivers one claimed broadcast and writes its rollup exactly once.
// Nothing propagates out: every failure becomes a final broadcast status.
func (e *Engine) process(ctx context.Context, b *store.Broadcast) {
	final := e.deliver(ctx, b)

	if err := e.store.FinishBroadcast(ctx, b.ID, final, e.now()); err != nil {
		e.logger.Error("writing broadcast rollup failed",
			"broadcast_id", b.ID, "status", final, "error", err)
		return
	}
	metrics.BroadcastsFinished.WithLabelValues(final).Inc()

	e.logger.Info("broadcast finished",
		"broadcast_id", b.ID, "user_id", b.UserID, "status", final, "recipients", len(b.GroupIDs))
}

// deliver runs the connection gate and the sequential per-group fan-out,
// returning the rollup status: sent when every recipient succeeded, partial
// on a mix, failed when none did.
func (e *Engine) deliver(ctx context.Context, b *store.Broadcast) string {
	conn, err := e.store.GetConnection(ctx, b.UserID)
	if err != nil {
		e.logger.Warn("connection lookup failed, failing broadcast",
			"broadcast_id", b.ID, "user_id", b.UserID, "error", err)
		return store.BroadcastStatusFailed
	}
	if conn.Status != store.ConnectionStatusConnected || conn.ChannelToken == "" {
		// A disconnected channel must not swallow a due broadcast
		// silently: no sends are attempted and the failure is visible.
		e.logger.Warn("user not connected, failing broadcast",
			"broadcast_id", b.ID, "user_id", b.UserID, "connection_status", conn.Status)
		return store.BroadcastStatusFailed
	}

	sent, failed := 0, 0
	for _, groupID := range b.GroupIDs {
		if e.sendOne(ctx, conn.ChannelToken, b, groupID) {
			sent++
		} else {
			failed++
		}
	}

	switch {
	case failed == 0 && sent > 0:
		return store.BroadcastStatusSent
	case sent > 0:
		return store.BroadcastStatusPartial
	default:
		return store.BroadcastStatusFailed
	}
}

// sendOne attempts one recipient and records exactly one delivery row,
// success or failure. One recipient's failure never reaches the others.
func (e *Engine) sendOne(ctx context.Context, token string, b *store.Broadcast, groupID string) bool {
	var remoteID string
	var sendErr error
	if b.MediaURL != "" {
		remoteID, sendErr = e.sender.SendMedia(ctx, token, groupID, b.Message, b.MediaURL)
	} else {
		remoteID, sendErr = e.sender.SendText(ctx, token, groupID, b.Message)
	}

	d := &store.Delivery{
		ID:          uuid.New().String(),
		BroadcastID: b.ID,
		GroupID:     groupID,
		Status:      store.DeliveryStatusSent,
		RemoteID:    remoteID,
		SentAt:      e.now(),
	}
	if sendErr != nil {
		d.Status = store.DeliveryStatusFailed
		d.Error = sendErr.Error()
		d.RemoteID = ""
	}

	if err := e.store.CreateDelivery(ctx, d); err != nil {
		// The send already happened; its outcome stands even though the
		// audit row is lost.
		e.logger.Error("recording delivery failed",
			"broadcast_id", b.ID, "group_id", groupID, "error", err)
	}
	metrics.Deliveries.WithLabelValues(d.Status).Inc()

	if sendErr != nil {
		e.logger.Warn("delivery failed",
			"broadcast_id", b.ID, "group_id", groupID, "error", sendErr)
		return false
	}
	return true
}
