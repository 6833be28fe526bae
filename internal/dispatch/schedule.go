// ABOUTME: Broadcast creation: scheduling, direct send, and cancellation
// ABOUTME: Recipients are snapshotted at creation, never re-resolved at send time

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/2389/herald/internal/store"
)

// ErrEmptyMessage is returned when a broadcast carries no message text
var ErrEmptyMessage = errors.New("message is empty")

// ErrNoRecipients is returned when neither the explicit group list nor the
// tag resolution yields a single recipient
var ErrNoRecipients = errors.New("no recipients resolved")

// Request describes one broadcast to schedule or send directly.
type Request struct {
	UserID   string
	GroupIDs []string // explicit recipient groups
	Tags     []string // additional recipients resolved by tag match
	Message  string
	MediaURL string
}

// Schedule creates a pending broadcast for a later dispatch pass. The
// recipient set is resolved once, here: the explicit group list unioned
// with every stored group carrying one of the tags. The snapshot is what
// gets sent, even if group membership changes before the send time.
func (e *Engine) Schedule(ctx context.Context, req *Request, sendAt time.Time) (*store.Broadcast, error) {
	if req.Message == "" {
		return nil, ErrEmptyMessage
	}

	recipients, err := e.resolveRecipients(ctx, req.UserID, req.GroupIDs, req.Tags)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}

	now := e.now()
	if sendAt.IsZero() {
		sendAt = now
	}

	b := &store.Broadcast{
		ID:        uuid.New().String(),
		UserID:    req.UserID,
		Message:   req.Message,
		MediaURL:  req.MediaURL,
		GroupIDs:  recipients,
		SendAt:    sendAt,
		Status:    store.BroadcastStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.CreateBroadcast(ctx, b); err != nil {
		return nil, fmt.Errorf("creating broadcast: %w", err)
	}

	e.logger.Info("broadcast scheduled",
		"broadcast_id", b.ID, "user_id", req.UserID, "recipients", len(recipients), "send_at", sendAt)
	return b, nil
}

// SendDirect schedules a broadcast for right now and dispatches it in the
// same call. It shares every path with the periodic loop: same pending row,
// same conditional claim, same connection gate, same fan-out and rollup.
// The returned broadcast carries the final rolled-up status.
func (e *Engine) SendDirect(ctx context.Context, req *Request) (*store.Broadcast, error) {
	b, err := e.Schedule(ctx, req, e.now())
	if err != nil {
		return nil, err
	}

	claimed, err := e.store.ClaimBroadcast(ctx, b.ID, e.now())
	if err != nil {
		return nil, fmt.Errorf("claiming broadcast: %w", err)
	}
	if claimed {
		b.Status = store.BroadcastStatusSending
		e.process(ctx, b)
	}
	// Not claimed means a dispatch pass raced us to it and is already
	// sending; either way the row now has the authoritative state.

	return e.store.GetBroadcast(ctx, b.ID)
}

// Cancel withdraws a pending broadcast. Only the owner can cancel, and only
// while the broadcast is still pending: anything the engine has claimed
// reports store.ErrNotPending.
func (e *Engine) Cancel(ctx context.Context, userID, broadcastID string) error {
	b, err := e.store.GetBroadcast(ctx, broadcastID)
	if err != nil {
		return err
	}
	if b.UserID != userID {
		// Someone else's broadcast looks like a missing one.
		return store.ErrNotFound
	}

	if err := e.store.CancelBroadcast(ctx, broadcastID, e.now()); err != nil {
		return err
	}

	e.logger.Info("broadcast cancelled", "broadcast_id", broadcastID, "user_id", userID)
	return nil
}

// resolveRecipients snapshots the recipient set: explicit ids first, then
// tag matches, deduplicated in encounter order.
func (e *Engine) resolveRecipients(ctx context.Context, userID string, groupIDs, tags []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, id := range groupIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}

	if len(tags) > 0 {
		groups, err := e.store.ListGroups(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("resolving tags: %w", err)
		}
		want := make(map[string]bool, len(tags))
		for _, tag := range tags {
			want[tag] = true
		}
		for _, g := range groups {
			if seen[g.GroupID] {
				continue
			}
			for _, tag := range g.Tags {
				if want[tag] {
					seen[g.GroupID] = true
					out = append(out, g.GroupID)
					break
				}
			}
		}
	}

	return out, nil
}
