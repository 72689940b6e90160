package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"gallery-sync/internal/app"
	"gallery-sync/internal/config"
	"gallery-sync/internal/protocol"
	"gallery-sync/internal/sync"
	"gallery-sync/pkg/logger"
)

// fsRemote serves a remote gallery from an afero filesystem.
type fsRemote struct {
	fs        afero.Fs
	connected bool
}

func (r *fsRemote) Connect(context.Context, *protocol.ConnectionConfig) error {
	r.connected = true
	return nil
}

func (r *fsRemote) Disconnect() error {
	r.connected = false
	return nil
}

func (r *fsRemote) IsConnected() bool { return r.connected }

func (r *fsRemote) List(_ context.Context, p string) ([]protocol.FileInfo, error) {
	entries, err := afero.ReadDir(r.fs, p)
	if err != nil {
		return nil, err
	}
	out := make([]protocol.FileInfo, len(entries))
	for i, e := range entries {
		out[i] = protocol.FileInfo{Name: e.Name(), Size: e.Size(), IsDir: e.IsDir(), ModTime: e.ModTime()}
	}
	return out, nil
}

func (r *fsRemote) Stat(_ context.Context, p string) (*protocol.FileInfo, error) {
	fi, err := r.fs.Stat(p)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &protocol.FileInfo{Name: fi.Name(), Size: fi.Size(), IsDir: fi.IsDir(), ModTime: fi.ModTime()}, nil
}

func (r *fsRemote) Get(_ context.Context, p string) (io.ReadCloser, error) { return r.fs.Open(p) }

func (r *fsRemote) Put(_ context.Context, rd io.Reader, p string) (int64, error) {
	f, err := r.fs.Create(p)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return io.Copy(f, rd)
}

func (r *fsRemote) Remove(_ context.Context, p string) error    { return r.fs.Remove(p) }
func (r *fsRemote) Mkdir(_ context.Context, p string) error     { return r.fs.Mkdir(p, 0755) }
func (r *fsRemote) RemoveDir(_ context.Context, p string) error { return r.fs.Remove(p) }
func (r *fsRemote) GetProtocolName() string                     { return "sftp" }

type harness struct {
	t      *testing.T
	remote *fsRemote
	media  string
	files  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("GALLERYSYNC_HOST", "gallery.test")
	t.Setenv("GALLERYSYNC_USER", "me")
	t.Setenv("GALLERYSYNC_PASSWORD", "secret")
	t.Setenv("GALLERYSYNC_REMOTE_PATH", "/gallery")
	t.Setenv("GALLERYSYNC_MEDIA_DIR", filepath.Join(dir, "media"))

	h := &harness{
		t:      t,
		remote: &fsRemote{fs: afero.NewMemMapFs()},
		media:  filepath.Join(dir, "media"),
		files:  filepath.Join(dir, "files"),
	}
	require.NoError(t, os.MkdirAll(h.files, 0755))
	return h
}

// run executes one command line with a fresh command tree.
func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	rt := &runtime{
		v:      viper.New(),
		logger: logger.NewNop(),
		dialer: func(ctx context.Context, cfg *protocol.ConnectionConfig) (protocol.Protocol, error) {
			return h.remote, h.remote.Connect(ctx, cfg)
		},
	}
	cmd, err := newRootCommand(rt, "test")
	require.NoError(h.t, err)

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	require.NoError(h.t, err, out)
	return out
}

func (h *harness) file(name, content string) string {
	h.t.Helper()
	p := filepath.Join(h.files, name)
	require.NoError(h.t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func TestCollectionCommands(t *testing.T) {
	h := newHarness(t)
	a := h.file("a.jpg", "aaa")
	b := h.file("b.mp4", "bbbb")

	h.mustRun("collection", "create", "Trip 2024")
	out := h.mustRun("collection", "add", "Trip 2024", a, b)
	assert.Contains(t, out, "Added 2 files")

	_, err := h.run("collection", "add", "Trip 2024", h.file("notes.txt", "x"))
	assert.Error(t, err)

	var cols []app.CollectionSummary
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("collection", "list", "-o", "json")), &cols))
	assert.Equal(t, []app.CollectionSummary{{Name: "Trip 2024", RemoteName: "Trip_2024", Items: 2}}, cols)

	h.mustRun("collection", "remove", "Trip 2024", a)
	assert.Equal(t, b+"\n", h.mustRun("collection", "show", "Trip 2024"))

	out = h.mustRun("log", "-n", "2")
	assert.Contains(t, out, "remove-item")
	assert.Contains(t, out, "add-item")
	assert.NotContains(t, out, "create")

	h.mustRun("collection", "delete", "Trip 2024")
	_, err = h.run("collection", "show", "Trip 2024")
	assert.ErrorIs(t, err, app.ErrCollectionNotFound)
}

func TestUploadThenCompare(t *testing.T) {
	h := newHarness(t)
	a := h.file("a.jpg", "aaa")
	b := h.file("b.mp4", "bbbb")
	h.mustRun("collection", "create", "Trip 2024")
	h.mustRun("collection", "add", "Trip 2024", a, b)
	require.NoError(t, afero.WriteFile(h.remote.fs, "/gallery/Stale/old.jpg", []byte("o"), 0644))

	out := h.mustRun("upload")
	assert.Contains(t, out, "Files transferred:  2/2")
	assert.Contains(t, out, "Collections:        1 (1 created, 1 deleted)")

	data, err := afero.ReadFile(h.remote.fs, "/gallery/Trip_2024/b.mp4")
	require.NoError(t, err)
	assert.Equal(t, "bbbb", string(data))
	exists, err := afero.Exists(h.remote.fs, "/gallery/Stale")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.False(t, h.remote.connected)

	out = h.mustRun("compare", "--exit-code")
	assert.Contains(t, out, "In sync: 1 collections identical")

	require.NoError(t, afero.WriteFile(h.remote.fs, "/gallery/Trip_2024/extra.jpg", []byte("e"), 0644))
	out, err = h.run("compare", "-o", "json", "--exit-code")
	assert.ErrorIs(t, err, errOutOfSync)

	var cmp sync.ComparisonResult
	require.NoError(t, json.Unmarshal([]byte(out), &cmp))
	require.Len(t, cmp.Different, 1)
	assert.Equal(t, []string{"extra.jpg"}, cmp.Different[0].OnlyInRemote)
}

func TestUpload_JSONOutputWithQuiet(t *testing.T) {
	h := newHarness(t)
	h.mustRun("collection", "create", "Empty")

	out := h.mustRun("upload", "-q", "-o", "json")
	var res sync.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, sync.DirectionUpload, res.Direction)
	assert.Equal(t, 1, res.Collections)
	assert.Equal(t, 1, res.CollectionsCreated)
	assert.NotEmpty(t, res.OperationID)
}

func TestDownload(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, afero.WriteFile(h.remote.fs, "/gallery/Holiday/x.jpg", []byte("xx"), 0644))
	require.NoError(t, afero.WriteFile(h.remote.fs, "/gallery/Holiday/readme.txt", []byte("r"), 0644))

	out := h.mustRun("download", "-o", "yaml")
	var res map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &res))
	assert.Equal(t, "download", res["direction"])
	assert.Equal(t, 1, res["files_transferred"])

	data, err := os.ReadFile(filepath.Join(h.media, "Holiday", "x.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "xx", string(data))
	assert.NoFileExists(t, filepath.Join(h.media, "Holiday", "readme.txt"))

	assert.Equal(t, filepath.Join(h.media, "Holiday", "x.jpg")+"\n", h.mustRun("collection", "show", "Holiday"))
	assert.Contains(t, h.mustRun("log", "-n", "1"), "from remote")
}

func TestStatus(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, afero.WriteFile(h.remote.fs, "/gallery/A/a.jpg", []byte("a"), 0644))
	h.mustRun("collection", "create", "Local")

	var report statusReport
	require.NoError(t, yaml.Unmarshal([]byte(h.mustRun("status", "-o", "yaml")), &report))
	require.NotNil(t, report.Remote)
	assert.Equal(t, 1, report.Remote.Collections)
	assert.Equal(t, "1 collections on remote, last changed: A", report.Remote.Description)
	assert.Equal(t, 1, report.LocalCollections)
	require.NotNil(t, report.LastChange)

	assert.Contains(t, h.mustRun("test"), "Connection to sftp://me@gallery.test:22/gallery OK")
}

func TestErrors(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("compare", "-o", "xml")
	assert.ErrorContains(t, err, "unsupported output format")

	_, err = h.run("upload", "--upload-limit", "fast")
	assert.Error(t, err)

	t.Setenv("GALLERYSYNC_HOST", "")
	_, err = h.run("upload")
	assert.ErrorIs(t, err, app.ErrNoTarget)
}

func TestProfileCommands(t *testing.T) {
	h := newHarness(t)
	for _, key := range []string{"HOST", "USER", "PASSWORD", "REMOTE_PATH"} {
		t.Setenv("GALLERYSYNC_"+key, "")
	}

	_, err := h.run("profile", "add", "broken", "--host", "nas.local")
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	h.mustRun("profile", "add", "home", "--host", "nas.local", "--user", "me", "--remote-path", "/gallery")
	t.Setenv("GALLERYSYNC_MASTER_PASSWORD", "master")
	h.mustRun("profile", "add", "work", "--host", "work.example", "--user", "you", "--remote-path", "/g",
		"--protocol", "ftps", "--password", "hunter2", "--default")

	out := h.mustRun("profile", "list")
	assert.Contains(t, out, "*  work")
	assert.Contains(t, out, "ftps://you@work.example:21/g")
	assert.Contains(t, out, "sftp://me@nas.local:22/gallery")

	// The default profile supplies host and stored password.
	assert.Contains(t, h.mustRun("test"), "Connection to ftps://you@work.example:21/g OK")

	h.mustRun("profile", "default", "home")
	_, err = h.run("test")
	assert.ErrorContains(t, err, "no password stored")

	h.mustRun("profile", "remove", "work")
	_, err = h.run("test", "--profile", "work")
	assert.Error(t, err)
}
