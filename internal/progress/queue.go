package progress

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// QueueEntry is a pending remote-sync copy of a progress row. Revision grows on
// every overwrite so an acknowledgement only removes the version that was sent.
type QueueEntry struct {
	ID       int64         `json:"id"`
	Progress VideoProgress `json:"progress"`
	QueuedAt int64         `json:"queuedAt"`
	Revision int64         `json:"revision"`
}

// Pending returns up to limit outbox entries, oldest first.
func (s *Store) Pending(ctx context.Context, limit int) ([]QueueEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx,
		"SELECT id, payload_json, queued_at, revision FROM sync_queue ORDER BY queued_at, id LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list sync queue: %w", err)
	}
	defer rows.Close()

	var out []QueueEntry
	for rows.Next() {
		var (
			entry   QueueEntry
			payload string
		)
		if err := rows.Scan(&entry.ID, &payload, &entry.QueuedAt, &entry.Revision); err != nil {
			return nil, fmt.Errorf("scan sync queue row: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &entry.Progress); err != nil {
			return nil, fmt.Errorf("decode sync payload %d: %w", entry.ID, err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// Ack removes delivered entries. Entries overwritten since they were read keep
// their newer revision and stay queued. It returns the number removed.
func (s *Store) Ack(ctx context.Context, entries []QueueEntry) (int64, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	var removed int64
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		removed = 0
		stmt, err := tx.PrepareContext(ctx, "DELETE FROM sync_queue WHERE id = ? AND revision = ?")
		if err != nil {
			return fmt.Errorf("prepare ack: %w", err)
		}
		defer stmt.Close()
		for _, entry := range entries {
			res, err := stmt.ExecContext(ctx, entry.ID, entry.Revision)
			if err != nil {
				return fmt.Errorf("ack sync entry %d: %w", entry.ID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			removed += n
		}
		return nil
	})
	return removed, err
}

// QueueLength returns the number of pending outbox entries.
func (s *Store) QueueLength(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRow(ctx, "SELECT COUNT(1) FROM sync_queue", nil, &count); err != nil {
		return 0, fmt.Errorf("count sync queue: %w", err)
	}
	return count, nil
}
