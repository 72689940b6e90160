package sync

import (
	"context"
	"fmt"

	"gallery-sync/internal/config"
)

// RemoteStatus reports how many collections the remote holds and when the
// most recent one changed.
func (e *Engine) RemoteStatus(ctx context.Context, cfg config.SyncConfig) (*RemoteStatus, error) {
	var status *RemoteStatus
	_, err := e.run(ctx, cfg, DirectionStatus, func(ctx context.Context, s *session) error {
		info, err := s.client.Stat(ctx, s.cfg.RemotePath)
		if err != nil {
			return fmt.Errorf("stat remote root: %w", err)
		}
		if info == nil {
			status = &RemoteStatus{Description: "Remote directory not found"}
			return nil
		}

		dirs, err := listRemoteCollections(ctx, s.client, s.cfg.RemotePath)
		if err != nil {
			return fmt.Errorf("list remote collections: %w", err)
		}
		if len(dirs) == 0 {
			status = &RemoteStatus{Description: "No collections found on remote"}
			return nil
		}

		latest := dirs[0]
		for _, d := range dirs[1:] {
			if d.ModTime.After(latest.ModTime) {
				latest = d
			}
		}
		s.res.Collections = len(dirs)
		status = &RemoteStatus{
			LastModified: latest.ModTime,
			Collections:  len(dirs),
			Description:  fmt.Sprintf("%d collections on remote, last changed: %s", len(dirs), latest.Name),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return status, nil
}
