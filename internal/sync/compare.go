package sync

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"sort"

	"github.com/maruel/natural"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"gallery-sync/internal/config"
	"gallery-sync/internal/media"
	"gallery-sync/internal/protocol"
)

// Compare reports how the local collections and the remote tree differ
// without changing either side. A remote collection that cannot be listed
// is compared as empty and named in Unreadable.
func (e *Engine) Compare(ctx context.Context, cfg config.SyncConfig) (*ComparisonResult, error) {
	var cmp *ComparisonResult
	_, err := e.run(ctx, cfg, DirectionCompare, func(ctx context.Context, s *session) error {
		local, err := e.localSnapshot(ctx)
		if err != nil {
			return err
		}
		remote, unreadable, err := remoteSnapshot(ctx, s)
		if err != nil {
			return err
		}
		s.res.Collections = len(local)

		cmp = buildComparison(local, remote)
		cmp.Unreadable = unreadable
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cmp, nil
}

// localSnapshot maps sanitized collection names to media filenames.
func (e *Engine) localSnapshot(ctx context.Context) (map[string][]string, error) {
	collections, err := e.store.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("list local collections: %w", err)
	}

	sets := make(map[string]map[string]struct{}, len(collections))
	for _, c := range collections {
		key, ok := media.CollectionDir(c.Name)
		if !ok {
			continue
		}
		if sets[key] == nil {
			sets[key] = make(map[string]struct{})
		}

		items, err := e.store.ListItems(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("list items of %s: %w", c.Name, err)
		}
		for _, item := range items {
			if name := filepath.Base(item.Path); syncable(name) {
				sets[key][name] = struct{}{}
			}
		}
	}

	return lo.MapValues(sets, func(set map[string]struct{}, _ string) []string {
		return lo.Keys(set)
	}), nil
}

// remoteSnapshot maps sanitized remote directory names to media filenames,
// matching the keys Download uses. A missing root yields an empty map.
func remoteSnapshot(ctx context.Context, s *session) (map[string][]string, []string, error) {
	root := s.cfg.RemotePath
	info, err := s.client.Stat(ctx, root)
	if err != nil {
		return nil, nil, fmt.Errorf("stat remote root %s: %w", root, err)
	}
	if info == nil {
		s.log.Info("remote root does not exist", zap.String("path", root))
		return map[string][]string{}, nil, nil
	}

	dirs, err := listRemoteCollections(ctx, s.client, root)
	if err != nil {
		return nil, nil, fmt.Errorf("list remote collections: %w", err)
	}

	remote := make(map[string][]string, len(dirs))
	var unreadable []string
	for _, d := range dirs {
		key, ok := media.CollectionDir(d.Name)
		if _, dup := remote[key]; !ok || dup {
			s.log.Warn("remote collection maps onto another collection, not compared", zap.String("collection", d.Name))
			continue
		}
		files, err := listRemoteMedia(ctx, s.client, path.Join(root, d.Name))
		if err != nil {
			s.log.Warn("remote collection unreadable, compared as empty", zap.String("collection", d.Name), zap.Error(err))
			unreadable = append(unreadable, key)
			remote[key] = []string{}
			continue
		}
		remote[key] = lo.Map(files, func(f protocol.FileInfo, _ int) string { return f.Name })
	}
	return remote, naturalSort(unreadable), nil
}

// buildComparison classifies collection names and per-collection filenames.
// Inputs are not modified.
func buildComparison(local, remote map[string][]string) *ComparisonResult {
	localNames, remoteNames := lo.Keys(local), lo.Keys(remote)
	onlyLocal, onlyRemote := lo.Difference(localNames, remoteNames)

	res := &ComparisonResult{
		OnlyLocal:   naturalSort(onlyLocal),
		OnlyRemote:  naturalSort(onlyRemote),
		Different:   []CollectionDifference{},
		Identical:   []string{},
		RemoteFiles: make(map[string][]string, len(remote)),
	}

	for _, name := range naturalSort(lo.Intersect(localNames, remoteNames)) {
		inLocal, inRemote := lo.Difference(lo.Uniq(local[name]), lo.Uniq(remote[name]))
		if len(inLocal) == 0 && len(inRemote) == 0 {
			res.Identical = append(res.Identical, name)
			continue
		}
		res.Different = append(res.Different, CollectionDifference{
			Name:         name,
			OnlyInLocal:  naturalSort(inLocal),
			OnlyInRemote: naturalSort(inRemote),
		})
	}

	for name, files := range remote {
		res.RemoteFiles[name] = naturalSort(append([]string{}, files...))
	}
	return res
}

func naturalSort(names []string) []string {
	if names == nil {
		names = []string{}
	}
	sort.Sort(natural.StringSlice(names))
	return names
}

func sortedKeys[V any](m map[string]V) []string {
	return naturalSort(lo.Keys(m))
}
