package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"gallery-sync/internal/media"
	"gallery-sync/internal/store"
)

// ErrCollectionNotFound is returned when a collection name does not resolve.
var ErrCollectionNotFound = errors.New("collection not found")

// ErrInvalidCollectionName is returned for names that cannot be synced.
var ErrInvalidCollectionName = errors.New("invalid collection name")

// CollectionSummary describes a local collection and the remote directory
// it mirrors to.
type CollectionSummary struct {
	Name       string `json:"name" yaml:"name"`
	RemoteName string `json:"remote_name" yaml:"remote_name"`
	Items      int    `json:"items" yaml:"items"`
}

// Collections lists local collections with their item counts.
func (a *App) Collections(ctx context.Context) ([]CollectionSummary, error) {
	cols, err := a.store.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]CollectionSummary, 0, len(cols))
	for _, c := range cols {
		items, err := a.store.ListItems(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, CollectionSummary{Name: c.Name, RemoteName: media.SanitizeName(c.Name), Items: len(items)})
	}
	return out, nil
}

// CollectionItems returns the media paths of a collection.
func (a *App) CollectionItems(ctx context.Context, name string) ([]string, error) {
	c, err := a.collection(ctx, name)
	if err != nil {
		return nil, err
	}
	items, err := a.store.ListItems(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(items))
	for i, it := range items {
		paths[i] = it.Path
	}
	return paths, nil
}

// CreateCollection adds an empty collection. Names that do not make a
// usable directory name, such as ".." or ".hidden", are rejected.
func (a *App) CreateCollection(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: collection name is empty", ErrInvalidCollectionName)
	}
	if dir, ok := media.CollectionDir(name); !ok {
		return fmt.Errorf("%w: %q maps to directory %q", ErrInvalidCollectionName, name, dir)
	}
	if _, err := a.store.InsertCollection(ctx, name); err != nil {
		return err
	}
	a.record(ctx, store.ChangeLog{
		Action:         store.ActionCreate,
		Description:    fmt.Sprintf("Created collection %q", name),
		CollectionName: name,
	})
	return nil
}

// DeleteCollection removes a collection and its memberships. Media files are
// left on disk.
func (a *App) DeleteCollection(ctx context.Context, name string) error {
	c, err := a.collection(ctx, name)
	if err != nil {
		return err
	}
	if err := a.store.DeleteCollection(ctx, c.ID); err != nil {
		return err
	}
	a.record(ctx, store.ChangeLog{
		Action:         store.ActionDelete,
		Description:    fmt.Sprintf("Deleted collection %q", c.Name),
		CollectionName: c.Name,
	})
	return nil
}

// AddItems adds media files to a collection, returning how many were added.
// Paths are made absolute and must name existing media files.
func (a *App) AddItems(ctx context.Context, name string, paths []string) (int, error) {
	c, err := a.collection(ctx, name)
	if err != nil {
		return 0, err
	}

	added := 0
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return added, err
		}
		if !media.IsMedia(abs) {
			return added, fmt.Errorf("%s: not a media file", p)
		}
		info, err := a.fs.Stat(abs)
		if err != nil {
			return added, err
		}
		if info.IsDir() {
			return added, fmt.Errorf("%s: is a directory", p)
		}
		if err := a.store.InsertItem(ctx, c.ID, abs); err != nil {
			return added, err
		}
		added++
		a.record(ctx, store.ChangeLog{
			Action:         store.ActionAddItem,
			Description:    fmt.Sprintf("Added %s to %q", filepath.Base(abs), c.Name),
			CollectionName: c.Name,
			ItemPath:       abs,
		})
	}
	return added, nil
}

// RemoveItem removes a media file from a collection. The file itself is kept.
func (a *App) RemoveItem(ctx context.Context, name, path string) error {
	c, err := a.collection(ctx, name)
	if err != nil {
		return err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := a.store.RemoveItem(ctx, c.ID, abs); err != nil {
		return err
	}
	a.record(ctx, store.ChangeLog{
		Action:         store.ActionRemoveItem,
		Description:    fmt.Sprintf("Removed %s from %q", filepath.Base(abs), c.Name),
		CollectionName: c.Name,
		ItemPath:       abs,
	})
	return nil
}

// RecentChanges returns the newest change log entries.
func (a *App) RecentChanges(ctx context.Context, limit int) ([]store.ChangeLog, error) {
	return a.store.RecentChanges(ctx, limit)
}

func (a *App) collection(ctx context.Context, name string) (*store.Collection, error) {
	c, err := a.store.GetCollectionByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("%w: %q", ErrCollectionNotFound, name)
	}
	return c, nil
}

func (a *App) record(ctx context.Context, entry store.ChangeLog) {
	if err := a.store.AppendChange(ctx, entry); err != nil {
		a.log.Warn("failed to record change", zap.String("action", string(entry.Action)), zap.Error(err))
	}
}
