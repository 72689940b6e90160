package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"gallery-sync/internal/config"
	"gallery-sync/internal/media"
	"gallery-sync/internal/store"
)

// Upload makes the remote tree a mirror of the local collections. Remote
// collections and files with no local counterpart are deleted.
func (e *Engine) Upload(ctx context.Context, cfg config.SyncConfig) (*Result, error) {
	return e.run(ctx, cfg, DirectionUpload, e.upload)
}

func (e *Engine) upload(ctx context.Context, s *session) error {
	root := s.cfg.RemotePath
	if _, err := ensureRemoteDir(ctx, s.client, root); err != nil {
		return fmt.Errorf("prepare remote root %s: %w", root, err)
	}

	// Snapshot before writing so new directories are never candidates for deletion.
	snapshot, err := listRemoteCollections(ctx, s.client, root)
	if err != nil {
		return fmt.Errorf("list remote collections: %w", err)
	}

	collections, err := e.store.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("list local collections: %w", err)
	}
	s.res.Collections = len(collections)

	groups := lo.GroupBy(collections, func(c store.Collection) string { return media.SanitizeName(c.Name) })
	for name, cols := range groups {
		if _, ok := media.CollectionDir(name); ok {
			continue
		}
		// Such names would escape the remote root or stay hidden from Download.
		for _, c := range cols {
			s.log.Warn("collection name is empty, dot-only or hidden once sanitized, not synced",
				zap.String("collection", c.Name))
			s.res.CollectionsSkipped++
		}
		delete(groups, name)
	}

	for _, name := range sortedKeys(groups) {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.uploadCollection(ctx, s, name, groups[name])
	}

	for _, dir := range snapshot {
		if _, ok := groups[dir.Name]; ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		p := path.Join(root, dir.Name)
		if err := removeRemoteTree(ctx, s.client, p); err != nil {
			s.log.Error("failed to delete remote collection", zap.String("path", p), zap.Error(err))
			s.res.CollectionsSkipped++
			continue
		}
		s.log.Info("deleted remote collection", zap.String("path", p))
		s.res.CollectionsDeleted++
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	e.appendChange(ctx, s, store.ActionMirrorSyncUpload, fmt.Sprintf(
		"Mirror synced %d collections (%d/%d files) to remote. Remote files/folders deleted when removed locally.",
		s.res.Collections, s.res.FilesTransferred, s.res.FilesConsidered))
	return nil
}

// uploadCollection mirrors the collections sharing one sanitized name into
// root/name.
func (e *Engine) uploadCollection(ctx context.Context, s *session, name string, cols []store.Collection) {
	remoteDir := path.Join(s.cfg.RemotePath, name)
	log := s.log.With(zap.String("collection", name))

	created, err := ensureRemoteDir(ctx, s.client, remoteDir)
	if err != nil {
		log.Error("failed to create remote collection", zap.Error(err))
		s.res.CollectionsSkipped++
		return
	}
	if created {
		s.res.CollectionsCreated++
	}

	present := make(map[string]bool)
	complete := true

	for _, c := range cols {
		items, err := e.store.ListItems(ctx, c.ID)
		if err != nil {
			log.Error("failed to list local items", zap.Int64("collection_id", c.ID), zap.Error(err))
			complete = false
			continue
		}

		for _, item := range items {
			if ctx.Err() != nil {
				return
			}
			fileName := filepath.Base(item.Path)
			if !syncable(fileName) || present[fileName] {
				continue
			}

			info, err := e.fs.Stat(item.Path)
			if errors.Is(err, fs.ErrNotExist) {
				log.Debug("removing stale item", zap.String("path", item.Path))
				if err := e.store.RemoveItem(ctx, c.ID, item.Path); err != nil {
					log.Warn("failed to remove stale item", zap.String("path", item.Path), zap.Error(err))
				}
				continue
			}
			// Keep the remote copy of anything we could not read.
			present[fileName] = true
			if err != nil {
				log.Error("failed to stat local file", zap.String("path", item.Path), zap.Error(err))
				s.res.FilesFailed++
				continue
			}
			if info.IsDir() {
				continue
			}

			s.res.FilesConsidered++
			e.uploadFile(ctx, s, item.Path, info.Size(), path.Join(remoteDir, fileName))
		}
	}

	if !complete {
		log.Warn("local listing incomplete, remote files kept")
		s.res.CollectionsSkipped++
		return
	}

	remoteFiles, err := listRemoteMedia(ctx, s.client, remoteDir)
	if err != nil {
		log.Error("failed to list remote collection", zap.Error(err))
		s.res.CollectionsSkipped++
		return
	}
	for _, f := range remoteFiles {
		if present[f.Name] {
			continue
		}
		p := path.Join(remoteDir, f.Name)
		if err := s.client.Remove(ctx, p); err != nil {
			log.Error("failed to delete remote file", zap.String("path", p), zap.Error(err))
			s.res.FilesFailed++
			continue
		}
		log.Debug("deleted remote file", zap.String("path", p))
		s.res.FilesDeleted++
	}
}

func (e *Engine) uploadFile(ctx context.Context, s *session, localPath string, size int64, remotePath string) {
	remote, err := s.client.Stat(ctx, remotePath)
	if err != nil {
		s.log.Error("failed to stat remote file", zap.String("path", remotePath), zap.Error(err))
		s.res.FilesFailed++
		return
	}
	if remote != nil && !remote.IsDir && remote.Size == size {
		s.res.FilesSkipped++
		return
	}

	f, err := e.fs.Open(localPath)
	if err != nil {
		s.log.Error("failed to open local file", zap.String("path", localPath), zap.Error(err))
		s.res.FilesFailed++
		return
	}
	defer f.Close()

	start := e.now()
	n, err := s.client.Put(ctx, e.track(ctx, f, true, filepath.Base(localPath), size), remotePath)
	s.log.LogTransfer("upload", s.client.GetProtocolName(), localPath, remotePath, n, e.now().Sub(start), err)
	if err != nil {
		s.res.FilesFailed++
		return
	}
	s.res.FilesTransferred++
	s.res.BytesTransferred += n
}
