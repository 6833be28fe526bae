// ABOUTME: Broadcast persistence operations for the SQLite store
// ABOUTME: Handles scheduling, due-claim compare-and-set, rollup, and cancellation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// CreateBroadcast inserts a new broadcast row.
// Returns ErrDuplicateBroadcast if the ID is already taken.
func (s *SQLiteStore) CreateBroadcast(ctx context.Context, b *Broadcast) error {
	// A nil slice marshals to JSON null; store an empty array instead.
	groupIDs := []byte("[]")
	if len(b.GroupIDs) > 0 {
		var err error
		groupIDs, err = json.Marshal(b.GroupIDs)
		if err != nil {
			return fmt.Errorf("encoding group IDs: %w", err)
		}
	}

	query := `
		INSERT INTO broadcasts (id, user_id, message, media_url, group_ids, send_at, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var mediaURL *string
	if b.MediaURL != "" {
		mediaURL = &b.MediaURL
	}

	_, err := s.db.ExecContext(ctx, query,
		b.ID,
		b.UserID,
		b.Message,
		mediaURL,
		string(groupIDs),
		b.SendAt.UTC().Format(time.RFC3339),
		b.Status,
		b.CreatedAt.UTC().Format(time.RFC3339),
		b.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateBroadcast
		}
		return fmt.Errorf("inserting broadcast: %w", err)
	}

	s.logger.Debug("created broadcast", "id", b.ID, "user_id", b.UserID, "send_at", b.SendAt, "groups", len(b.GroupIDs))
	return nil
}

// GetBroadcast retrieves a broadcast by ID.
// Returns ErrNotFound if the broadcast doesn't exist.
func (s *SQLiteStore) GetBroadcast(ctx context.Context, id string) (*Broadcast, error) {
	query := `
		SELECT id, user_id, message, media_url, group_ids, send_at, status, created_at, updated_at
		FROM broadcasts
		WHERE id = ?
	`

	b, err := scanBroadcast(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying broadcast: %w", err)
	}

	return b, nil
}

// ListBroadcasts returns a user's broadcasts, newest first.
func (s *SQLiteStore) ListBroadcasts(ctx context.Context, userID string, limit int) ([]*Broadcast, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, user_id, message, media_url, group_ids, send_at, status, created_at, updated_at
		FROM broadcasts
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying broadcasts: %w", err)
	}
	defer rows.Close()

	var broadcasts []*Broadcast
	for rows.Next() {
		b, err := scanBroadcast(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning broadcast: %w", err)
		}
		broadcasts = append(broadcasts, b)
	}

	return broadcasts, rows.Err()
}

// ClaimDueBroadcasts claims up to limit pending broadcasts whose send time
// has arrived, oldest due first. Each claim is a compare-and-set from
// pending to sending, so concurrent dispatch runs never claim the same
// broadcast twice. A claim that errors is skipped, not fatal: the row is
// still pending and a later pass retries it, while the remaining candidates
// are claimed as usual. Returns only the broadcasts this call actually
// claimed.
func (s *SQLiteStore) ClaimDueBroadcasts(ctx context.Context, now time.Time, limit int) ([]*Broadcast, error) {
	query := `
		SELECT id, user_id, message, media_url, group_ids, send_at, status, created_at, updated_at
		FROM broadcasts
		WHERE status = 'pending' AND send_at <= ?
		ORDER BY send_at ASC, created_at ASC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, now.UTC().Format(time.RFC3339), limit)
	if err != nil {
		return nil, fmt.Errorf("querying due broadcasts: %w", err)
	}

	var candidates []*Broadcast
	for rows.Next() {
		b, err := scanBroadcast(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning due broadcast: %w", err)
		}
		candidates = append(candidates, b)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	var claimed []*Broadcast
	for _, b := range candidates {
		ok, err := s.ClaimBroadcast(ctx, b.ID, now)
		if err != nil {
			// The compare-and-set never ran, so the row is still pending.
			s.logger.Warn("claim failed, leaving broadcast for next pass", "id", b.ID, "error", err)
			continue
		}
		if !ok {
			// Another dispatcher got there first, or the user cancelled.
			continue
		}
		b.Status = BroadcastStatusSending
		b.UpdatedAt = now.UTC()
		claimed = append(claimed, b)
	}

	if len(claimed) > 0 {
		s.logger.Debug("claimed due broadcasts", "count", len(claimed))
	}
	return claimed, nil
}

// ClaimBroadcast attempts the pending-to-sending compare-and-set for a
// single broadcast. Returns false if the broadcast is no longer pending.
func (s *SQLiteStore) ClaimBroadcast(ctx context.Context, id string, at time.Time) (bool, error) {
	query := `
		UPDATE broadcasts
		SET status = 'sending', updated_at = ?
		WHERE id = ? AND status = 'pending'
	`

	result, err := s.db.ExecContext(ctx, query, at.UTC().Format(time.RFC3339), id)
	if err != nil {
		return false, fmt.Errorf("claiming broadcast: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}

	return rows == 1, nil
}

// FinishBroadcast records the rollup status for a broadcast a dispatch run
// claimed. The write is guarded on the sending state so a finish never
// clobbers a status written by anyone else.
// Returns ErrNotFound if the broadcast is not currently sending.
func (s *SQLiteStore) FinishBroadcast(ctx context.Context, id, status string, at time.Time) error {
	query := `
		UPDATE broadcasts
		SET status = ?, updated_at = ?
		WHERE id = ? AND status = 'sending'
	`

	result, err := s.db.ExecContext(ctx, query, status, at.UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("finishing broadcast: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	s.logger.Debug("finished broadcast", "id", id, "status", status)
	return nil
}

// CancelBroadcast withdraws a pending broadcast. Broadcasts that have been
// claimed, finished, or already cancelled stay untouched.
// Returns ErrNotFound if the broadcast doesn't exist and ErrNotPending if
// it exists but already left the pending state.
func (s *SQLiteStore) CancelBroadcast(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE broadcasts
		SET status = 'cancelled', updated_at = ?
		WHERE id = ? AND status = 'pending'
	`

	result, err := s.db.ExecContext(ctx, query, at.UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("cancelling broadcast: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 1 {
		s.logger.Debug("cancelled broadcast", "id", id)
		return nil
	}

	// Distinguish a missing broadcast from one that already moved on.
	if _, err := s.GetBroadcast(ctx, id); err != nil {
		return err
	}
	return ErrNotPending
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scan logic
type rowScanner interface {
	Scan(dest ...any) error
}

func scanBroadcast(row rowScanner) (*Broadcast, error) {
	var b Broadcast
	var mediaURL sql.NullString
	var groupIDs string
	var sendAtStr, createdAtStr, updatedAtStr string

	err := row.Scan(
		&b.ID,
		&b.UserID,
		&b.Message,
		&mediaURL,
		&groupIDs,
		&sendAtStr,
		&b.Status,
		&createdAtStr,
		&updatedAtStr,
	)
	if err != nil {
		return nil, err
	}

	if mediaURL.Valid {
		b.MediaURL = mediaURL.String
	}

	if err := json.Unmarshal([]byte(groupIDs), &b.GroupIDs); err != nil {
		return nil, fmt.Errorf("decoding group IDs: %w", err)
	}

	if b.SendAt, err = time.Parse(time.RFC3339, sendAtStr); err != nil {
		return nil, fmt.Errorf("parsing send_at: %w", err)
	}
	if b.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if b.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &b, nil
}
