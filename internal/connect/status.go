// ABOUTME: Status synchronization: health polling, webhook reconciliation, teardown
// ABOUTME: Shares one remote-to-local status vocabulary with the connect path

package connect

import (
	"context"
	"errors"
	"fmt"

	"github.com/2389/herald/internal/gateway"
	"github.com/2389/herald/internal/store"
)

// Event is a gateway push notification as relayed by the webhook receiver.
// Kind distinguishes channel lifecycle events from account (users) events;
// both carry the remote channel id and a status string.
type Event struct {
	Kind      string
	ChannelID string
	Status    string
}

// CheckStatus synchronizes the local status with a single health probe.
// It backs both the manual status action and the periodic poll, so it never
// creates channels, never waits for pairing codes, and never retries: the
// next poll is the retry.
func (o *Orchestrator) CheckStatus(ctx context.Context, userID string) (*StatusResult, error) {
	conn, err := o.store.GetConnection(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return &StatusResult{Status: StatusAbsent}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading connection: %w", err)
	}

	if conn.ChannelID == "" {
		return &StatusResult{Status: conn.Status}, nil
	}

	remote, err := o.gateway.Health(ctx, conn.ChannelToken)
	if err != nil {
		if errors.Is(err, gateway.ErrChannelNotFound) {
			// The channel was deleted out-of-band. Clear the channel fields
			// so the next connect starts clean; the row keeps its billing
			// bookkeeping.
			o.logger.Info("channel gone on gateway, clearing local state",
				"user_id", userID, "channel_id", conn.ChannelID)
			if cerr := o.clearChannel(ctx, conn, store.ConnectionStatusAbsent); cerr != nil {
				return nil, fmt.Errorf("clearing connection: %w", cerr)
			}
			return &StatusResult{Status: StatusAbsent, RequiresNewInstance: true}, nil
		}
		return nil, fmt.Errorf("%w: health check failed: %v", ErrGatewayUnavailable, err)
	}

	mapped, known := mapRemoteStatus(remote)
	if !known {
		// Keep whatever the last mapped observation was; unmapped values
		// are logged verbatim and gate as not connected.
		o.logger.Warn("gateway reported unmapped channel status",
			"user_id", userID, "channel_id", conn.ChannelID, "status", remote)
		return &StatusResult{Status: conn.Status}, nil
	}

	if err := o.setStatus(ctx, userID, mapped); err != nil {
		return nil, fmt.Errorf("recording status: %w", err)
	}

	return &StatusResult{
		Connected: mapped == store.ConnectionStatusConnected,
		Status:    mapped,
	}, nil
}

// Disconnect tears the channel down. The remote delete is best-effort; the
// local reset always happens, so a gateway outage can never leave a user
// stuck unable to reconnect.
func (o *Orchestrator) Disconnect(ctx context.Context, userID string) error {
	conn, err := o.store.GetConnection(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil // nothing to tear down
	}
	if err != nil {
		return fmt.Errorf("loading connection: %w", err)
	}

	if conn.ChannelID != "" {
		if err := o.gateway.DeleteChannel(ctx, conn.ChannelID); err != nil && !errors.Is(err, gateway.ErrChannelNotFound) {
			// The remote channel stays orphaned; the local reset below is
			// what the user actually needs.
			o.logger.Warn("remote channel delete failed",
				"user_id", userID, "channel_id", conn.ChannelID, "error", err)
		}
	}

	if err := o.clearChannel(ctx, conn, store.ConnectionStatusDisconnected); err != nil {
		return fmt.Errorf("resetting connection: %w", err)
	}

	o.logger.Info("disconnected", "user_id", userID)
	return nil
}

// ReconcileWebhookEvent folds a pushed status into the store. Events for
// unknown channels are dropped: the webhook never creates records. Writes
// are last-write-wins on wall-clock time, so a stale out-of-order event may
// briefly win; the next poll corrects the drift.
func (o *Orchestrator) ReconcileWebhookEvent(ctx context.Context, evt Event) error {
	if evt.ChannelID == "" {
		o.logger.Warn("webhook event without channel id", "kind", evt.Kind)
		return nil
	}

	conn, err := o.store.GetConnectionByChannel(ctx, evt.ChannelID)
	if errors.Is(err, store.ErrNotFound) {
		o.logger.Info("webhook event for unknown channel, dropping",
			"kind", evt.Kind, "channel_id", evt.ChannelID, "status", evt.Status)
		return nil
	}
	if err != nil {
		return fmt.Errorf("looking up channel: %w", err)
	}

	mapped, known := mapRemoteStatus(evt.Status)
	if !known {
		o.logger.Info("webhook event with unmapped status, dropping",
			"kind", evt.Kind, "channel_id", evt.ChannelID, "status", evt.Status)
		return nil
	}

	if err := o.setStatus(ctx, conn.UserID, mapped); err != nil {
		return fmt.Errorf("recording status: %w", err)
	}

	o.logger.Debug("webhook status applied",
		"user_id", conn.UserID, "channel_id", evt.ChannelID,
		"remote_status", evt.Status, "status", mapped)
	return nil
}

// mapRemoteStatus translates the gateway's status vocabulary into ours.
// One table serves the connect, polling, and webhook paths. Unknown values
// return ok=false and must never reach the store.
func mapRemoteStatus(remote string) (status string, ok bool) {
	switch remote {
	case "authenticated", "ready", "active":
		return store.ConnectionStatusConnected, true
	case "qr", "unauthorized":
		return store.ConnectionStatusAwaitingPairing, true
	default:
		return "", false
	}
}
