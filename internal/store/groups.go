// ABOUTME: Contact group persistence for the SQLite store
// ABOUTME: Groups are a mirror of the user's messaging account, replaced wholesale on sync

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// ReplaceGroups swaps a user's group mirror for a fresh sync result.
// The old rows and new rows exchange atomically; a reader never sees a
// half-synced mirror.
func (s *SQLiteStore) ReplaceGroups(ctx context.Context, userID string, groups []*Group) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM contact_groups WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("clearing groups: %w", err)
	}

	query := `
		INSERT INTO contact_groups (user_id, group_id, name, tags, synced_at)
		VALUES (?, ?, ?, ?, ?)
	`

	for _, g := range groups {
		// A nil slice marshals to JSON null; store an empty array instead.
		tags := []byte("[]")
		if len(g.Tags) > 0 {
			tags, err = json.Marshal(g.Tags)
			if err != nil {
				return fmt.Errorf("encoding tags: %w", err)
			}
		}

		_, err = tx.ExecContext(ctx, query,
			userID,
			g.GroupID,
			g.Name,
			string(tags),
			g.SyncedAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("inserting group %s: %w", g.GroupID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing group sync: %w", err)
	}

	s.logger.Debug("replaced groups", "user_id", userID, "count", len(groups))
	return nil
}

// ListGroups returns the user's group mirror sorted by name.
func (s *SQLiteStore) ListGroups(ctx context.Context, userID string) ([]*Group, error) {
	query := `
		SELECT user_id, group_id, name, tags, synced_at
		FROM contact_groups
		WHERE user_id = ?
		ORDER BY name ASC
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("querying groups: %w", err)
	}
	defer rows.Close()

	var groups []*Group
	for rows.Next() {
		var g Group
		var tags, syncedAtStr string

		if err := rows.Scan(&g.UserID, &g.GroupID, &g.Name, &tags, &syncedAtStr); err != nil {
			return nil, fmt.Errorf("scanning group: %w", err)
		}

		if err := json.Unmarshal([]byte(tags), &g.Tags); err != nil {
			return nil, fmt.Errorf("decoding tags: %w", err)
		}

		if g.SyncedAt, err = time.Parse(time.RFC3339, syncedAtStr); err != nil {
			return nil, fmt.Errorf("parsing synced_at: %w", err)
		}

		groups = append(groups, &g)
	}

	return groups, rows.Err()
}
