package sync

import (
	"context"
	"fmt"
	"path"
	"strings"

	"gallery-sync/internal/media"
	"gallery-sync/internal/protocol"
)

// syncable reports whether a filename takes part in mirroring.
func syncable(name string) bool {
	return !strings.HasPrefix(name, ".") && media.IsMedia(name)
}

// ensureRemoteDir creates dir and any missing parents. created is true when
// dir itself did not exist.
func ensureRemoteDir(ctx context.Context, client protocol.Protocol, dir string) (created bool, err error) {
	dir = path.Clean(dir)
	if dir == "/" || dir == "." {
		return false, nil
	}

	info, err := client.Stat(ctx, dir)
	if err != nil {
		return false, err
	}
	if info != nil {
		if !info.IsDir {
			return false, fmt.Errorf("%s exists and is not a directory", dir)
		}
		return false, nil
	}

	if _, err := ensureRemoteDir(ctx, client, path.Dir(dir)); err != nil {
		return false, err
	}
	if err := client.Mkdir(ctx, dir); err != nil {
		// Lost a race with another writer: fine if it is there now.
		if info, statErr := client.Stat(ctx, dir); statErr == nil && info != nil && info.IsDir {
			return false, nil
		}
		return false, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return true, nil
}

// listRemoteCollections returns the non-hidden directories directly under root.
func listRemoteCollections(ctx context.Context, client protocol.Protocol, root string) ([]protocol.FileInfo, error) {
	entries, err := client.List(ctx, root)
	if err != nil {
		return nil, err
	}
	dirs := entries[:0]
	for _, e := range entries {
		if e.IsDir && !strings.HasPrefix(e.Name, ".") {
			dirs = append(dirs, e)
		}
	}
	return dirs, nil
}

// listRemoteMedia returns the syncable files directly under dir.
func listRemoteMedia(ctx context.Context, client protocol.Protocol, dir string) ([]protocol.FileInfo, error) {
	entries, err := client.List(ctx, dir)
	if err != nil {
		return nil, err
	}
	files := entries[:0]
	for _, e := range entries {
		if !e.IsDir && syncable(e.Name) {
			files = append(files, e)
		}
	}
	return files, nil
}

// removeRemoteTree deletes dir depth-first.
func removeRemoteTree(ctx context.Context, client protocol.Protocol, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := client.List(ctx, dir)
	if err != nil {
		return fmt.Errorf("list %s: %w", dir, err)
	}
	for _, e := range entries {
		p := path.Join(dir, e.Name)
		if e.IsDir {
			if err := removeRemoteTree(ctx, client, p); err != nil {
				return err
			}
			continue
		}
		if err := client.Remove(ctx, p); err != nil {
			return fmt.Errorf("remove %s: %w", p, err)
		}
	}
	if err := client.RemoveDir(ctx, dir); err != nil {
		return fmt.Errorf("rmdir %s: %w", dir, err)
	}
	return nil
}
