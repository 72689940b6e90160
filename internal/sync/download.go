package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"

	"go.uber.org/zap"

	"gallery-sync/internal/config"
	"gallery-sync/internal/media"
	"gallery-sync/internal/protocol"
	"gallery-sync/internal/store"
)

// Download makes the local collections a mirror of the remote tree. Local
// collections and items with no remote counterpart are deleted, files
// included.
func (e *Engine) Download(ctx context.Context, cfg config.SyncConfig) (*Result, error) {
	return e.run(ctx, cfg, DirectionDownload, e.download)
}

func (e *Engine) download(ctx context.Context, s *session) error {
	if err := e.fs.MkdirAll(e.mediaRoot, 0755); err != nil {
		return fmt.Errorf("create media root %s: %w", e.mediaRoot, err)
	}

	// Nothing is deleted locally unless the remote root could be listed.
	remoteDirs, err := listRemoteCollections(ctx, s.client, s.cfg.RemotePath)
	if err != nil {
		return fmt.Errorf("list remote collections: %w", err)
	}
	s.res.Collections = len(remoteDirs)

	collections, err := e.store.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("list local collections: %w", err)
	}

	local := make(map[string]store.Collection, len(collections))
	var mirrored []store.Collection
	for _, c := range collections {
		key, ok := media.CollectionDir(c.Name)
		if !ok {
			s.log.Warn("collection name is empty, dot-only or hidden once sanitized, not synced",
				zap.String("collection", c.Name))
			s.res.CollectionsSkipped++
			continue
		}
		mirrored = append(mirrored, c)
		if _, dup := local[key]; !dup {
			local[key] = c
		}
	}
	remote := make(map[string]bool, len(remoteDirs))
	for _, d := range remoteDirs {
		remote[media.SanitizeName(d.Name)] = true
	}

	for _, c := range mirrored {
		if remote[media.SanitizeName(c.Name)] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		e.deleteLocalCollection(ctx, s, c)
	}

	seen := make(map[string]bool, len(remoteDirs))
	for _, d := range remoteDirs {
		if err := ctx.Err(); err != nil {
			return err
		}
		key, ok := media.CollectionDir(d.Name)
		if !ok || seen[key] {
			s.log.Warn("remote collection maps onto another collection, not synced", zap.String("collection", d.Name))
			s.res.CollectionsSkipped++
			continue
		}
		seen[key] = true

		var existing *store.Collection
		if c, ok := local[key]; ok {
			existing = &c
		}
		e.downloadCollection(ctx, s, d.Name, existing)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	e.appendChange(ctx, s, store.ActionMirrorSyncDownload, fmt.Sprintf(
		"Mirror synced %d collections (%d files) from remote. Local files/folders deleted when removed remotely.",
		s.res.Collections, s.res.FilesTransferred))
	return nil
}

// deleteLocalCollection removes a collection's files, its row (items
// cascade) and its directory under the media root.
func (e *Engine) deleteLocalCollection(ctx context.Context, s *session, c store.Collection) {
	log := s.log.With(zap.String("collection", c.Name))

	items, err := e.store.ListItems(ctx, c.ID)
	if err != nil {
		log.Error("failed to list local items", zap.Error(err))
		s.res.CollectionsSkipped++
		return
	}
	for _, item := range items {
		e.removeLocalFile(s, item.Path)
	}

	if err := e.store.DeleteCollection(ctx, c.ID); err != nil {
		log.Error("failed to delete local collection", zap.Error(err))
		s.res.CollectionsSkipped++
		return
	}

	if name, ok := media.CollectionDir(c.Name); ok {
		dir := filepath.Join(e.mediaRoot, name)
		if err := e.fs.RemoveAll(dir); err != nil {
			log.Warn("failed to remove collection directory", zap.String("path", dir), zap.Error(err))
		}
	}
	log.Info("deleted local collection")
	s.res.CollectionsDeleted++
}

func (e *Engine) removeLocalFile(s *session, p string) {
	err := e.fs.Remove(p)
	switch {
	case err == nil:
		s.res.FilesDeleted++
	case errors.Is(err, fs.ErrNotExist):
	default:
		s.log.Error("failed to delete local file", zap.String("path", p), zap.Error(err))
		s.res.FilesFailed++
	}
}

// downloadCollection mirrors root/dirName into a local collection, creating
// the collection when existing is nil.
func (e *Engine) downloadCollection(ctx context.Context, s *session, dirName string, existing *store.Collection) {
	log := s.log.With(zap.String("collection", dirName))
	remoteDir := path.Join(s.cfg.RemotePath, dirName)

	remoteFiles, err := listRemoteMedia(ctx, s.client, remoteDir)
	if err != nil {
		log.Error("failed to list remote collection", zap.Error(err))
		s.res.CollectionsSkipped++
		return
	}

	var collectionID int64
	if existing != nil {
		collectionID = existing.ID
	} else {
		id, err := e.store.InsertCollection(ctx, dirName)
		if err != nil {
			log.Error("failed to create local collection", zap.Error(err))
			s.res.CollectionsSkipped++
			return
		}
		collectionID = id
		s.res.CollectionsCreated++
	}

	localDir := filepath.Join(e.mediaRoot, media.SanitizeName(dirName))
	if err := e.fs.MkdirAll(localDir, 0755); err != nil {
		log.Error("failed to create collection directory", zap.String("path", localDir), zap.Error(err))
		s.res.CollectionsSkipped++
		return
	}

	items, err := e.store.ListItems(ctx, collectionID)
	if err != nil {
		log.Error("failed to list local items", zap.Error(err))
		s.res.CollectionsSkipped++
		return
	}

	onRemote := make(map[string]bool, len(remoteFiles))
	for _, f := range remoteFiles {
		onRemote[f.Name] = true
	}

	members := make(map[string]store.Item, len(items))
	for _, item := range items {
		fileName := filepath.Base(item.Path)
		if !syncable(fileName) {
			continue
		}
		if onRemote[fileName] {
			if _, dup := members[fileName]; !dup {
				members[fileName] = item
			}
			continue
		}
		e.removeLocalFile(s, item.Path)
		if err := e.store.RemoveItem(ctx, collectionID, item.Path); err != nil {
			log.Error("failed to remove local item", zap.String("path", item.Path), zap.Error(err))
		}
	}

	for _, f := range remoteFiles {
		if ctx.Err() != nil {
			return
		}
		s.res.FilesConsidered++

		item, member := members[f.Name]
		target := filepath.Join(localDir, f.Name)
		if member {
			target = item.Path
		}

		if info, err := e.fs.Stat(target); err == nil && !info.IsDir() && info.Size() == f.Size {
			s.res.FilesSkipped++
			if !member {
				e.insertItem(ctx, s, collectionID, target)
			}
			continue
		}

		final, err := e.downloadFile(ctx, s, path.Join(remoteDir, f.Name), target, f)
		if err != nil {
			s.res.FilesFailed++
			continue
		}

		switch {
		case !member:
			e.insertItem(ctx, s, collectionID, final)
		case final != target:
			if err := e.store.UpdateItemPath(ctx, target, final); err != nil {
				log.Error("failed to update item path", zap.String("path", final), zap.Error(err))
			}
		}
	}
}

func (e *Engine) insertItem(ctx context.Context, s *session, collectionID int64, p string) {
	if err := e.store.InsertItem(ctx, collectionID, p); err != nil {
		s.log.Error("failed to register item", zap.String("path", p), zap.Error(err))
	}
}

func (e *Engine) downloadFile(ctx context.Context, s *session, remotePath, target string, info protocol.FileInfo) (string, error) {
	rc, err := s.client.Get(ctx, remotePath)
	if err != nil {
		s.log.Error("failed to open remote file", zap.String("path", remotePath), zap.Error(err))
		return "", err
	}
	defer rc.Close()

	start := e.now()
	r := e.track(ctx, rc, false, info.Name, info.Size)
	final, err := e.registrar.Register(ctx, r, target)
	s.log.LogTransfer("download", s.client.GetProtocolName(), target, remotePath, r.BytesRead, e.now().Sub(start), err)
	if err != nil {
		return "", err
	}

	s.res.FilesTransferred++
	s.res.BytesTransferred += r.BytesRead
	return final, nil
}
