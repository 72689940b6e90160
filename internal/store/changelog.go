package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Action identifies the kind of a change log entry.
type Action string

const (
	ActionCreate             Action = "create"
	ActionDelete             Action = "delete"
	ActionAddItem            Action = "add-item"
	ActionRemoveItem         Action = "remove-item"
	ActionMirrorSyncUpload   Action = "mirror-sync-upload"
	ActionMirrorSyncDownload Action = "mirror-sync-download"
)

// ChangeLog is one append-only audit record.
type ChangeLog struct {
	ID             int64     `json:"id" yaml:"id"`
	Timestamp      time.Time `json:"timestamp" yaml:"timestamp"`
	Action         Action    `json:"action" yaml:"action"`
	Description    string    `json:"description" yaml:"description"`
	CollectionName string    `json:"collection_name,omitempty" yaml:"collection_name,omitempty"`
	ItemPath       string    `json:"item_path,omitempty" yaml:"item_path,omitempty"`
}

// AppendChange records an entry. A zero Timestamp means now.
func (s *Store) AppendChange(ctx context.Context, entry ChangeLog) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	_, err := s.exec(ctx, "append change", `
		INSERT INTO change_logs (timestamp, action, description, collection_name, item_path)
		VALUES (?, ?, ?, ?, ?)
	`, entry.Timestamp.UnixMilli(), string(entry.Action), entry.Description,
		nullString(entry.CollectionName), nullString(entry.ItemPath))
	return err
}

// LatestChange returns the most recent entry, or nil when the log is empty.
func (s *Store) LatestChange(ctx context.Context) (*ChangeLog, error) {
	entries, err := s.RecentChanges(ctx, 1)
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	return &entries[0], nil
}

// RecentChanges returns up to limit entries, newest first.
func (s *Store) RecentChanges(ctx context.Context, limit int) ([]ChangeLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, action, description, collection_name, item_path
		FROM change_logs ORDER BY timestamp DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent changes: %w", err)
	}
	defer rows.Close()

	var out []ChangeLog
	for rows.Next() {
		var (
			e        ChangeLog
			ts       int64
			action   string
			coll     sql.NullString
			itemPath sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &action, &e.Description, &coll, &itemPath); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		e.Timestamp = time.UnixMilli(ts)
		e.Action = Action(action)
		e.CollectionName = coll.String
		e.ItemPath = itemPath.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteChangesBefore prunes entries older than t and returns how many went.
func (s *Store) DeleteChangesBefore(ctx context.Context, t time.Time) (int64, error) {
	res, err := s.exec(ctx, "prune changes", `DELETE FROM change_logs WHERE timestamp < ?`, t.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
