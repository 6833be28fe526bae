// ABOUTME: Delivery record persistence for the SQLite store
// ABOUTME: Append-only per-recipient outcomes; one row per group per dispatch

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateDelivery appends a delivery record. Exactly one record exists per
// recipient group per dispatch of a broadcast; records are never updated.
func (s *SQLiteStore) CreateDelivery(ctx context.Context, d *Delivery) error {
	query := `
		INSERT INTO deliveries (id, broadcast_id, group_id, status, error, remote_id, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	var errMsg, remoteID *string
	if d.Error != "" {
		errMsg = &d.Error
	}
	if d.RemoteID != "" {
		remoteID = &d.RemoteID
	}

	_, err := s.db.ExecContext(ctx, query,
		d.ID,
		d.BroadcastID,
		d.GroupID,
		d.Status,
		errMsg,
		remoteID,
		d.SentAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting delivery: %w", err)
	}

	s.logger.Debug("recorded delivery", "broadcast_id", d.BroadcastID, "group_id", d.GroupID, "status", d.Status)
	return nil
}

// ListDeliveries returns the delivery records for a broadcast in send order.
func (s *SQLiteStore) ListDeliveries(ctx context.Context, broadcastID string) ([]*Delivery, error) {
	query := `
		SELECT id, broadcast_id, group_id, status, error, remote_id, sent_at
		FROM deliveries
		WHERE broadcast_id = ?
		ORDER BY sent_at ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, broadcastID)
	if err != nil {
		return nil, fmt.Errorf("querying deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []*Delivery
	for rows.Next() {
		var d Delivery
		var errMsg, remoteID sql.NullString
		var sentAtStr string

		if err := rows.Scan(&d.ID, &d.BroadcastID, &d.GroupID, &d.Status, &errMsg, &remoteID, &sentAtStr); err != nil {
			return nil, fmt.Errorf("scanning delivery: %w", err)
		}

		if errMsg.Valid {
			d.Error = errMsg.String
		}
		if remoteID.Valid {
			d.RemoteID = remoteID.String
		}

		if d.SentAt, err = time.Parse(time.RFC3339, sentAtStr); err != nil {
			return nil, fmt.Errorf("parsing sent_at: %w", err)
		}

		deliveries = append(deliveries, &d)
	}

	return deliveries, rows.Err()
}
