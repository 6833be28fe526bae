// ABOUTME: Connection persistence operations for the SQLite store
// ABOUTME: Handles upsert, lookup, status transitions, and teardown of channel rows

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// UpsertConnection inserts or replaces the connection row for a user.
// A user has at most one connection; re-running connect after a remote
// teardown replaces the old row wholesale.
func (s *SQLiteStore) UpsertConnection(ctx context.Context, conn *Connection) error {
	query := `
		INSERT INTO connections (user_id, channel_id, channel_token, status, plan, trial_ends_at, channel_created_at, last_updated, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			channel_id = excluded.channel_id,
			channel_token = excluded.channel_token,
			status = excluded.status,
			plan = excluded.plan,
			trial_ends_at = excluded.trial_ends_at,
			channel_created_at = excluded.channel_created_at,
			last_updated = excluded.last_updated
	`

	var trialEndsAt *string
	if conn.TrialEndsAt != nil {
		v := conn.TrialEndsAt.UTC().Format(time.RFC3339)
		trialEndsAt = &v
	}

	_, err := s.db.ExecContext(ctx, query,
		conn.UserID,
		conn.ChannelID,
		conn.ChannelToken,
		conn.Status,
		conn.Plan,
		trialEndsAt,
		conn.ChannelCreatedAt.UTC().Format(time.RFC3339),
		conn.LastUpdated.UTC().Format(time.RFC3339),
		conn.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting connection: %w", err)
	}

	s.logger.Debug("upserted connection", "user_id", conn.UserID, "channel_id", conn.ChannelID, "status", conn.Status)
	return nil
}

// GetConnection retrieves the connection for a user.
// Returns ErrNotFound if the user has no channel.
func (s *SQLiteStore) GetConnection(ctx context.Context, userID string) (*Connection, error) {
	query := `
		SELECT user_id, channel_id, channel_token, status, plan, trial_ends_at, channel_created_at, last_updated, created_at
		FROM connections
		WHERE user_id = ?
	`

	conn, err := scanConnection(s.db.QueryRowContext(ctx, query, userID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying connection: %w", err)
	}

	return conn, nil
}

// GetConnectionByChannel retrieves the connection owning a remote channel.
// Used by the webhook path, which only knows the remote identifier.
// Returns ErrNotFound if no user owns the channel.
func (s *SQLiteStore) GetConnectionByChannel(ctx context.Context, channelID string) (*Connection, error) {
	query := `
		SELECT user_id, channel_id, channel_token, status, plan, trial_ends_at, channel_created_at, last_updated, created_at
		FROM connections
		WHERE channel_id = ?
	`

	conn, err := scanConnection(s.db.QueryRowContext(ctx, query, channelID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying connection by channel: %w", err)
	}

	return conn, nil
}

// ListConnectionsWithChannel returns every connection currently holding a
// remote channel. This is the poll loop's work list; rows without a channel
// (disconnected users) have nothing to verify.
func (s *SQLiteStore) ListConnectionsWithChannel(ctx context.Context) ([]*Connection, error) {
	query := `
		SELECT user_id, channel_id, channel_token, status, plan, trial_ends_at, channel_created_at, last_updated, created_at
		FROM connections
		WHERE channel_id != ''
		ORDER BY user_id ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying connections with channel: %w", err)
	}
	defer rows.Close()

	var conns []*Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning connection: %w", err)
		}
		conns = append(conns, conn)
	}

	return conns, rows.Err()
}

// scanConnection reads one connection row from a row scanner
func scanConnection(row rowScanner) (*Connection, error) {
	var conn Connection
	var trialEndsAt sql.NullString
	var channelCreatedAtStr, lastUpdatedStr, createdAtStr string

	err := row.Scan(
		&conn.UserID,
		&conn.ChannelID,
		&conn.ChannelToken,
		&conn.Status,
		&conn.Plan,
		&trialEndsAt,
		&channelCreatedAtStr,
		&lastUpdatedStr,
		&createdAtStr,
	)
	if err != nil {
		return nil, err
	}

	if trialEndsAt.Valid {
		t, err := time.Parse(time.RFC3339, trialEndsAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing trial_ends_at: %w", err)
		}
		conn.TrialEndsAt = &t
	}

	conn.ChannelCreatedAt, err = time.Parse(time.RFC3339, channelCreatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing channel_created_at: %w", err)
	}

	conn.LastUpdated, err = time.Parse(time.RFC3339, lastUpdatedStr)
	if err != nil {
		return nil, fmt.Errorf("parsing last_updated: %w", err)
	}

	conn.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &conn, nil
}

// SetConnectionStatus overwrites the lifecycle status for a user's connection.
// Writes are last-write-wins on wall-clock time: a poll result and a webhook
// event racing each other both land, and whichever executes later sticks.
// Returns ErrNotFound if the user has no connection row.
func (s *SQLiteStore) SetConnectionStatus(ctx context.Context, userID, status string, at time.Time) error {
	query := `
		UPDATE connections
		SET status = ?, last_updated = ?
		WHERE user_id = ?
	`

	result, err := s.db.ExecContext(ctx, query, status, at.UTC().Format(time.RFC3339), userID)
	if err != nil {
		return fmt.Errorf("updating connection status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	s.logger.Debug("set connection status", "user_id", userID, "status", status)
	return nil
}
