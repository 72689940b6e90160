package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrCollectionExists is returned when inserting a duplicate collection name.
var ErrCollectionExists = errors.New("collection already exists")

// Collection is a named group of media items.
type Collection struct {
	ID   int64
	Name string
}

// Item is a media file belonging to a collection.
type Item struct {
	ID           int64
	CollectionID int64
	Path         string
}

// ListCollections returns all collections ordered by name.
func (s *Store) ListCollections(ctx context.Context) ([]Collection, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM collections ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	var out []Collection
	for rows.Next() {
		var c Collection
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetCollectionByName returns the named collection, or nil if there is none.
func (s *Store) GetCollectionByName(ctx context.Context, name string) (*Collection, error) {
	c := &Collection{}
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM collections WHERE name = ?`, name).Scan(&c.ID, &c.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get collection: %w", err)
	}
	return c, nil
}

// InsertCollection creates a collection and returns its id.
func (s *Store) InsertCollection(ctx context.Context, name string) (int64, error) {
	existing, err := s.GetCollectionByName(ctx, name)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return existing.ID, fmt.Errorf("%w: %s", ErrCollectionExists, name)
	}

	res, err := s.exec(ctx, "insert collection", `INSERT INTO collections (name) VALUES (?)`, name)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert collection: %w", err)
	}
	s.log.Debug("collection inserted", zap.String("name", name), zap.Int64("id", id))
	return id, nil
}

// DeleteCollection deletes a collection; its items cascade.
func (s *Store) DeleteCollection(ctx context.Context, id int64) error {
	_, err := s.exec(ctx, "delete collection", `DELETE FROM collections WHERE id = ?`, id)
	if err == nil {
		s.log.Debug("collection deleted", zap.Int64("id", id))
	}
	return err
}

// ListItems returns the items of a collection.
func (s *Store) ListItems(ctx context.Context, collectionID int64) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, collection_id, media_path FROM collection_items
		WHERE collection_id = ? ORDER BY id ASC
	`, collectionID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.CollectionID, &it.Path); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// InsertItem adds path to a collection. Duplicates are ignored.
func (s *Store) InsertItem(ctx context.Context, collectionID int64, path string) error {
	_, err := s.exec(ctx, "insert item", `
		INSERT OR IGNORE INTO collection_items (collection_id, media_path) VALUES (?, ?)
	`, collectionID, path)
	return err
}

// RemoveItem removes path from one collection.
func (s *Store) RemoveItem(ctx context.Context, collectionID int64, path string) error {
	_, err := s.exec(ctx, "remove item",
		`DELETE FROM collection_items WHERE collection_id = ? AND media_path = ?`, collectionID, path)
	return err
}

// RemoveItemByPath removes path from every collection.
func (s *Store) RemoveItemByPath(ctx context.Context, path string) error {
	_, err := s.exec(ctx, "remove item by path", `DELETE FROM collection_items WHERE media_path = ?`, path)
	return err
}

// UpdateItemPath rewrites every item pointing at oldPath.
func (s *Store) UpdateItemPath(ctx context.Context, oldPath, newPath string) error {
	_, err := s.exec(ctx, "update item path",
		`UPDATE OR IGNORE collection_items SET media_path = ? WHERE media_path = ?`, newPath, oldPath)
	return err
}

// CountItems returns the total number of item rows.
func (s *Store) CountItems(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM collection_items`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return n, nil
}
