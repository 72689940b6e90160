package sync

import (
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gallery-sync/internal/store"
)

func TestUpload_NewCollectionToEmptyRemote(t *testing.T) {
	f := newFixture(t)
	f.collection("Trip 2024", map[string]int{"/photos/a.jpg": 10, "/photos/b.jpg": 20})

	res, err := f.engine.Upload(f.ctx, testConfig())
	require.NoError(t, err)

	assert.Equal(t, []string{"Trip_2024"}, f.remote.names(remoteRoot))
	assert.Equal(t, []string{"a.jpg", "b.jpg"}, f.remote.names(remoteRoot+"/Trip_2024"))
	assert.Equal(t, 2, res.FilesTransferred)
	assert.Equal(t, 2, res.FilesConsidered)
	assert.Equal(t, 1, res.CollectionsCreated)
	assert.EqualValues(t, 30, res.BytesTransferred)

	changes := f.changes()
	require.Len(t, changes, 1)
	assert.Equal(t, store.ActionMirrorSyncUpload, changes[0].Action)
	assert.Contains(t, changes[0].Description, "1 collections")
	assert.Contains(t, changes[0].Description, "2/2 files")
}

func TestUpload_DeletesRemoteOnlyFilesAndSkipsEqualSizes(t *testing.T) {
	f := newFixture(t)
	f.collection("X", map[string]int{"/photos/p.jpg": 500})
	f.remote.writeFile(remoteRoot+"/X/p.jpg", 500)
	f.remote.writeFile(remoteRoot+"/X/q.jpg", 42)

	res, err := f.engine.Upload(f.ctx, testConfig())
	require.NoError(t, err)

	assert.Equal(t, []string{"p.jpg"}, f.remote.names(remoteRoot+"/X"))
	assert.Zero(t, f.remote.puts)
	assert.Equal(t, 1, res.FilesSkipped)
	assert.Equal(t, 1, res.FilesDeleted)
	assert.Contains(t, f.changes()[0].Description, "0/1 files")
}

func TestUpload_ReplacesFilesWhoseSizeDiffers(t *testing.T) {
	f := newFixture(t)
	f.collection("X", map[string]int{"/photos/p.jpg": 500})
	f.remote.writeFile(remoteRoot+"/X/p.jpg", 499)

	res, err := f.engine.Upload(f.ctx, testConfig())
	require.NoError(t, err)

	assert.Equal(t, 1, res.FilesTransferred)
	assert.Len(t, f.remote.nodes[remoteRoot+"/X/p.jpg"].data, 500)
}

func TestUpload_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.collection("Trip 2024", map[string]int{"/photos/a.jpg": 10, "/photos/b.jpg": 20})
	f.collection("Family", map[string]int{"/photos/c.mp4": 30})

	_, err := f.engine.Upload(f.ctx, testConfig())
	require.NoError(t, err)
	puts := f.remote.puts
	before := f.remote.snapshot()

	res, err := f.engine.Upload(f.ctx, testConfig())
	require.NoError(t, err)

	assert.Zero(t, res.FilesTransferred)
	assert.Equal(t, 3, res.FilesSkipped)
	assert.Equal(t, puts, f.remote.puts)
	assert.Equal(t, before, f.remote.snapshot())
}

func TestUpload_RemoteMirrorsLocalCollections(t *testing.T) {
	f := newFixture(t)
	f.collection("Keep", map[string]int{"/photos/k.jpg": 1})
	f.remote.writeFile(remoteRoot+"/Old/x.jpg", 5)
	f.remote.writeFile(remoteRoot+"/Old/nested/y.jpg", 5)
	f.remote.mkdirAll(remoteRoot + "/Empty")

	res, err := f.engine.Upload(f.ctx, testConfig())
	require.NoError(t, err)

	assert.Equal(t, []string{"Keep"}, f.remote.names(remoteRoot))
	assert.Equal(t, []string{"k.jpg"}, f.remote.names(remoteRoot+"/Keep"))
	assert.Equal(t, 2, res.CollectionsDeleted)
}

func TestUpload_MissingLocalFilesAreSkippedAndRowsHealed(t *testing.T) {
	f := newFixture(t)
	f.collection("X", map[string]int{"/photos/there.jpg": 4, "/photos/gone.jpg": -1})

	res, err := f.engine.Upload(f.ctx, testConfig())
	require.NoError(t, err)

	assert.Equal(t, []string{"there.jpg"}, f.remote.names(remoteRoot+"/X"))
	assert.Zero(t, res.FilesFailed)
	assert.Equal(t, 1, res.FilesConsidered)
	assert.Equal(t, []string{"/photos/there.jpg"}, f.itemPaths("X"))
}

func TestUpload_IgnoresNonMediaFiles(t *testing.T) {
	f := newFixture(t)
	f.collection("X", map[string]int{"/photos/a.JPG": 4, "/photos/notes.txt": 4})
	f.remote.writeFile(remoteRoot+"/X/readme.txt", 3)
	f.remote.writeFile(remoteRoot+"/X/.thumb.jpg", 3)

	_, err := f.engine.Upload(f.ctx, testConfig())
	require.NoError(t, err)

	assert.Equal(t, []string{".thumb.jpg", "a.JPG", "readme.txt"}, f.remote.names(remoteRoot+"/X"))
}

func TestUpload_PerFileErrorsDoNotAbort(t *testing.T) {
	f := newFixture(t)
	f.collection("X", map[string]int{"/photos/bad.jpg": 4, "/photos/good.jpg": 4})
	f.remote.putErr[remoteRoot+"/X/bad.jpg"] = errors.New("disk full")

	res, err := f.engine.Upload(f.ctx, testConfig())
	require.NoError(t, err)

	assert.Equal(t, 1, res.FilesFailed)
	assert.Equal(t, 1, res.FilesTransferred)
	assert.False(t, res.OK())
	assert.Equal(t, []string{"good.jpg"}, f.remote.names(remoteRoot+"/X"))
	assert.Len(t, f.changes(), 1)
}

func TestUpload_CollectionsSharingASanitizedNameAreMerged(t *testing.T) {
	f := newFixture(t)
	f.collection("a b", map[string]int{"/photos/1.jpg": 1})
	f.collection("a_b", map[string]int{"/photos/2.jpg": 1})

	_, err := f.engine.Upload(f.ctx, testConfig())
	require.NoError(t, err)

	assert.Equal(t, []string{"a_b"}, f.remote.names(remoteRoot))
	assert.Equal(t, []string{"1.jpg", "2.jpg"}, f.remote.names(remoteRoot+"/a_b"))
}

func TestUpload_UnlistableRemoteCollectionKeepsFiles(t *testing.T) {
	f := newFixture(t)
	f.collection("X", map[string]int{"/photos/p.jpg": 1})
	f.remote.writeFile(remoteRoot+"/X/q.jpg", 1)
	f.remote.listErr[remoteRoot+"/X"] = errors.New("permission denied")

	res, err := f.engine.Upload(f.ctx, testConfig())
	require.NoError(t, err)

	assert.True(t, f.remote.exists(remoteRoot+"/X/q.jpg"))
	assert.Equal(t, 1, res.CollectionsSkipped)
}

func TestUpload_DotNamesStayInsideRemoteRoot(t *testing.T) {
	f := newFixture(t)
	f.collection("..", map[string]int{"/photos/a.jpg": 4})
	f.collection(".", map[string]int{"/photos/b.jpg": 4})
	f.remote.writeFile("/srv/outside.jpg", 3)
	f.remote.writeFile(remoteRoot+"/inside.jpg", 3)

	res, err := f.engine.Upload(f.ctx, testConfig())
	require.NoError(t, err)

	assert.Equal(t, []string{"gallery", "outside.jpg"}, f.remote.names("/srv"))
	assert.Equal(t, []string{"inside.jpg"}, f.remote.names(remoteRoot))
	assert.Zero(t, f.remote.puts)
	assert.Equal(t, 2, res.CollectionsSkipped)
	assert.Zero(t, res.FilesDeleted)
}

func TestUpload_HiddenCollectionSurvivesRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.collection(".private", map[string]int{"/photos/a.jpg": 4})
	f.collection("Trip", map[string]int{"/photos/t.jpg": 4})

	res, err := f.engine.Upload(f.ctx, testConfig())
	require.NoError(t, err)
	assert.Equal(t, []string{"Trip"}, f.remote.names(remoteRoot))
	assert.Equal(t, 1, res.CollectionsSkipped)

	cmp, err := f.engine.Compare(f.ctx, testConfig())
	require.NoError(t, err)
	assert.Empty(t, cmp.OnlyLocal)
	assert.True(t, cmp.InSync())

	res, err = f.engine.Download(f.ctx, testConfig())
	require.NoError(t, err)
	assert.Zero(t, res.CollectionsDeleted)
	assert.Equal(t, 1, res.CollectionsSkipped)

	ok, err := afero.Exists(f.fs, "/photos/a.jpg")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"/photos/a.jpg"}, f.itemPaths(".private"))
}
