package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gallery-sync/internal/config"
	"gallery-sync/internal/protocol"
	"gallery-sync/internal/store"
	"gallery-sync/pkg/logger"
)

// emptyRemote is a connected server with an empty gallery root.
type emptyRemote struct {
	protocol.Protocol
	connected bool
}

func (r *emptyRemote) Connect(context.Context, *protocol.ConnectionConfig) error {
	r.connected = true
	return nil
}

func (r *emptyRemote) Disconnect() error {
	r.connected = false
	return nil
}

func (r *emptyRemote) IsConnected() bool { return r.connected }

func (r *emptyRemote) List(context.Context, string) ([]protocol.FileInfo, error) {
	return []protocol.FileInfo{}, nil
}

func (r *emptyRemote) Stat(_ context.Context, p string) (*protocol.FileInfo, error) {
	return &protocol.FileInfo{Name: filepath.Base(p), IsDir: true}, nil
}

func (r *emptyRemote) GetProtocolName() string { return "sftp" }

func newTestApp(t *testing.T, opts Options) *App {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	opts.ConfigPath = filepath.Join(dir, "gallery-sync", "config.json")
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.DatabasePath == "" {
		opts.DatabasePath = filepath.Join(dir, "gallery.db")
	}
	if opts.MediaDir == "" {
		opts.MediaDir = filepath.Join(dir, "media")
	}

	a, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func writeMedia(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("img"), 0644))
	return p
}

func TestNew_AppliesOverrides(t *testing.T) {
	a := newTestApp(t, Options{LogLevel: "debug", UploadRateLimit: 1024})

	s := a.Settings()
	assert.Equal(t, "debug", s.LogLevel)
	assert.Equal(t, int64(1024), s.UploadRateLimit)
	assert.Zero(t, s.DownloadRateLimit)
	assert.True(t, s.TrustOnFirstUse)
	assert.FileExists(t, s.KnownHostsPath)
	assert.NotNil(t, a.Engine())
}

func TestCollections_RecordChanges(t *testing.T) {
	a := newTestApp(t, Options{})
	ctx := context.Background()
	dir := t.TempDir()
	img := writeMedia(t, dir, "a.jpg")
	clip := writeMedia(t, dir, "b.mp4")

	require.NoError(t, a.CreateCollection(ctx, "  Trip 2024 "))
	assert.ErrorIs(t, a.CreateCollection(ctx, "Trip 2024"), store.ErrCollectionExists)
	assert.Error(t, a.CreateCollection(ctx, "   "))

	n, err := a.AddItems(ctx, "Trip 2024", []string{img, clip})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	summaries, err := a.Collections(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, CollectionSummary{Name: "Trip 2024", RemoteName: "Trip_2024", Items: 2}, summaries[0])

	require.NoError(t, a.RemoveItem(ctx, "Trip 2024", img))
	items, err := a.CollectionItems(ctx, "Trip 2024")
	require.NoError(t, err)
	assert.Equal(t, []string{clip}, items)
	assert.FileExists(t, img)

	require.NoError(t, a.DeleteCollection(ctx, "Trip 2024"))
	assert.ErrorIs(t, a.DeleteCollection(ctx, "Trip 2024"), ErrCollectionNotFound)

	changes, err := a.RecentChanges(ctx, 10)
	require.NoError(t, err)
	var actions []store.Action
	for _, c := range changes {
		actions = append(actions, c.Action)
	}
	assert.Equal(t, []store.Action{
		store.ActionDelete,
		store.ActionRemoveItem,
		store.ActionAddItem,
		store.ActionAddItem,
		store.ActionCreate,
	}, actions)
	assert.Equal(t, img, changes[1].ItemPath)
	assert.Equal(t, "Trip 2024", changes[0].CollectionName)
}

func TestCreateCollection_RejectsUnsyncableNames(t *testing.T) {
	a := newTestApp(t, Options{})
	ctx := context.Background()

	for _, name := range []string{"", "   ", ".", "..", " .. ", ".private"} {
		assert.ErrorIs(t, a.CreateCollection(ctx, name), ErrInvalidCollectionName, "name %q", name)
	}
	summaries, err := a.Collections(ctx)
	require.NoError(t, err)
	assert.Empty(t, summaries)

	changes, err := a.RecentChanges(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, changes)

	require.NoError(t, a.CreateCollection(ctx, "a..b"))
}

func TestAddItems_RejectsNonMedia(t *testing.T) {
	a := newTestApp(t, Options{})
	ctx := context.Background()
	dir := t.TempDir()
	doc := writeMedia(t, dir, "notes.txt")

	require.NoError(t, a.CreateCollection(ctx, "A"))

	_, err := a.AddItems(ctx, "A", []string{doc})
	assert.Error(t, err)
	_, err = a.AddItems(ctx, "A", []string{filepath.Join(dir, "missing.jpg")})
	assert.Error(t, err)
	_, err = a.AddItems(ctx, "B", []string{doc})
	assert.ErrorIs(t, err, ErrCollectionNotFound)

	items, err := a.CollectionItems(ctx, "A")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestResolveTarget(t *testing.T) {
	a := newTestApp(t, Options{})

	_, err := a.ResolveTarget("", Overrides{})
	assert.ErrorIs(t, err, ErrNoTarget)

	adhoc, err := a.ResolveTarget("", Overrides{Host: "h", Username: "u", Password: "p", RemotePath: "/g"})
	require.NoError(t, err)
	assert.Empty(t, adhoc.ProfileID)
	assert.Equal(t, "h", adhoc.Config.Host)
	assert.Equal(t, "p", adhoc.Config.Password)

	keyPath := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(keyPath, []byte("KEY"), 0600))
	p, err := a.Config().AddProfile(config.ConnectionProfile{
		Name: "home", Protocol: "sftp", Host: "nas.local", Username: "me",
		RemotePath: "/gallery", PrivateKeyPath: keyPath, Timeout: 5,
	})
	require.NoError(t, err)

	target, err := a.ResolveTarget("", Overrides{Port: 2222, Timeout: time.Minute})
	require.NoError(t, err)
	assert.Equal(t, p.ID, target.ProfileID)
	assert.Equal(t, "home", target.ProfileName)
	assert.Equal(t, 2222, target.Config.Port)
	assert.Equal(t, []byte("KEY"), target.Config.PrivateKey)
	assert.Equal(t, time.Minute, target.Config.Timeout)

	_, err = a.ResolveTarget("nope", Overrides{})
	assert.ErrorIs(t, err, config.ErrProfileNotFound)
}

func TestResolveTarget_StoredPassword(t *testing.T) {
	a := newTestApp(t, Options{})
	p, err := a.Config().AddProfile(config.ConnectionProfile{Name: "ftp", Protocol: "ftps", Host: "h", Username: "u", RemotePath: "/g"})
	require.NoError(t, err)

	_, err = a.ResolveTarget("ftp", Overrides{})
	assert.ErrorIs(t, err, ErrMasterPasswordRequired)

	creds, err := a.Credentials("master")
	require.NoError(t, err)
	require.NoError(t, creds.SetPassword(p.ID, "hunter2"))

	target, err := a.ResolveTarget("ftp", Overrides{MasterPassword: "master"})
	require.NoError(t, err)
	assert.Equal(t, "hunter2", target.Config.Password)

	_, err = a.ResolveTarget("ftp", Overrides{MasterPassword: "wrong"})
	assert.ErrorIs(t, err, config.ErrWrongMasterPassword)

	target, err = a.ResolveTarget("ftp", Overrides{Password: "override"})
	require.NoError(t, err)
	assert.Equal(t, "override", target.Config.Password)
}

func TestDownload_PrunesChangeLogAndTouchesProfile(t *testing.T) {
	remote := &emptyRemote{}
	a := newTestApp(t, Options{Dialer: func(ctx context.Context, cfg *protocol.ConnectionConfig) (protocol.Protocol, error) {
		return remote, remote.Connect(ctx, cfg)
	}})
	ctx := context.Background()

	old := time.Now().AddDate(0, 0, -a.Settings().ChangeLogRetentionDays-1)
	require.NoError(t, a.Store().AppendChange(ctx, store.ChangeLog{Timestamp: old, Action: store.ActionCreate, Description: "ancient"}))

	p, err := a.Config().AddProfile(config.ConnectionProfile{Name: "home", Host: "h", Username: "u", RemotePath: "/g"})
	require.NoError(t, err)
	target, err := a.ResolveTarget("home", Overrides{Password: "pw"})
	require.NoError(t, err)

	res, err := a.Download(ctx, target)
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.False(t, remote.connected)

	changes, err := a.RecentChanges(ctx, 10)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, store.ActionMirrorSyncDownload, changes[0].Action)

	got, err := a.Config().FindProfile(p.ID)
	require.NoError(t, err)
	assert.False(t, got.LastUsed.IsZero())
}

func TestUpload_FailureLeavesProfileUntouched(t *testing.T) {
	a := newTestApp(t, Options{Dialer: func(context.Context, *protocol.ConnectionConfig) (protocol.Protocol, error) {
		return nil, errors.New("connection refused")
	}})
	p, err := a.Config().AddProfile(config.ConnectionProfile{Name: "home", Host: "h", Username: "u", RemotePath: "/g"})
	require.NoError(t, err)
	target, err := a.ResolveTarget("home", Overrides{Password: "pw"})
	require.NoError(t, err)

	_, err = a.Upload(context.Background(), target)
	assert.Error(t, err)

	got, err := a.Config().FindProfile(p.ID)
	require.NoError(t, err)
	assert.True(t, got.LastUsed.IsZero())
}
