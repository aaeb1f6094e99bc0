package cache

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dfe-analytical-services/ees-cache/blobstore"
	"github.com/dfe-analytical-services/ees-cache/logger"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type publicationTreeKey struct{}

func (publicationTreeKey) Key() string          { return "publication-tree.json" }
func (publicationTreeKey) Container() Container { return ContainerPublicContent }

type publicationTree struct {
	Themes []treeTheme `json:"themes" msgpack:"themes"`
}

type treeTheme struct {
	Title        string   `json:"title" msgpack:"title"`
	Publications []string `json:"publications" msgpack:"publications"`
}

var sampleTree = publicationTree{Themes: []treeTheme{
	{Title: "Pupils and schools", Publications: []string{"pupil-absence", "exclusions"}},
	{Title: "Children's social care", Publications: []string{"children-in-need"}},
}}

type failingStorage struct {
	blobstore.Storage
	err error
}

func (f failingStorage) Get(ctx context.Context, container, path string) ([]byte, blobstore.Metadata, error) {
	return nil, blobstore.Metadata{}, f.err
}

func (f failingStorage) Put(ctx context.Context, container, path string, data []byte, meta blobstore.Metadata) error {
	return f.err
}

func newTestBlob(t *testing.T, opts ...BlobOption) (*Blob, *blobstore.Memory, *clockwork.FakeClock, *logger.TestLogger) {
	t.Helper()
	storage := blobstore.NewMemory()
	clock := clockwork.NewFakeClockAt(at(14, 27, 0))
	log := logger.NewTestLogger()
	b := NewBlob(storage, append([]BlobOption{WithBlobClock(clock), WithBlobLogger(log)}, opts...)...)
	return b, storage, clock, log
}

func TestBlobPublicationTreeScenario(t *testing.T) {
	ctx := context.Background()
	b, storage, _, _ := newTestBlob(t)
	key := publicationTreeKey{}

	_, found, err := GetBlobItem[publicationTree](ctx, b, key)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, b.SetItem(ctx, key, sampleTree, nil))

	data, meta, err := storage.Get(ctx, "publiccontent", "publication-tree.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"themes":[
		{"title":"Pupils and schools","publications":["pupil-absence","exclusions"]},
		{"title":"Children's social care","publications":["children-in-need"]}]}`, string(data))
	assert.Equal(t, "application/json", meta.ContentType)
	assert.Equal(t, at(14, 27, 0), meta.StoredAt)
	assert.Nil(t, meta.ExpiresAt)

	tree, found, err := GetBlobItem[publicationTree](ctx, b, key)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, sampleTree, tree)

	// removed behind the cache's back
	require.NoError(t, storage.Delete(ctx, "publiccontent", "publication-tree.json"))
	_, found, err = GetBlobItem[publicationTree](ctx, b, key)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestBlobExpiry(t *testing.T) {
	ctx := context.Background()
	b, storage, clock, _ := newTestBlob(t)
	key := NewBlobKey(ContainerCache, "releases/abc/release.json")
	policy := ExpiryPolicy{Duration: time.Hour, Schedule: ScheduleHalfHourly}
	require.NoError(t, b.SetItem(ctx, key, "v", &policy))

	_, meta, err := storage.Get(ctx, "cache", "releases/abc/release.json")
	require.NoError(t, err)
	require.NotNil(t, meta.ExpiresAt)
	assert.Equal(t, at(14, 30, 0), *meta.ExpiresAt)

	got, found, err := GetBlobItem[string](ctx, b, key)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v", got)

	clock.Advance(3 * time.Minute)
	_, found, err = GetBlobItem[string](ctx, b, key)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestBlobDecodeFailureIsAMiss(t *testing.T) {
	ctx := context.Background()
	b, storage, _, log := newTestBlob(t)
	require.NoError(t, storage.Put(ctx, "publiccontent", "publication-tree.json", []byte(`{"themes": 42}`), blobstore.Metadata{
		ContentType: "application/json",
	}))

	_, found, err := GetBlobItem[publicationTree](ctx, b, publicationTreeKey{})
	require.NoError(t, err)
	assert.False(t, found)
	assert.Len(t, log.Find("WARNING", "publiccontent/publication-tree.json"), 1)
}

func TestBlobMsgpackCodec(t *testing.T) {
	ctx := context.Background()
	b, storage, _, _ := newTestBlob(t, WithCodec(MsgpackCodec))
	require.NoError(t, b.SetItem(ctx, publicationTreeKey{}, sampleTree, nil))

	_, meta, err := storage.Get(ctx, "publiccontent", "publication-tree.json")
	require.NoError(t, err)
	assert.Equal(t, "application/msgpack", meta.ContentType)

	tree, found, err := GetBlobItem[publicationTree](ctx, b, publicationTreeKey{})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, sampleTree, tree)

	// a JSON reader still decodes blobs written as msgpack
	reader := NewBlob(storage, WithBlobLogger(logger.NewTestLogger()))
	tree, found, err = GetBlobItem[publicationTree](ctx, reader, publicationTreeKey{})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, sampleTree, tree)
}

func TestBlobMaxItemSize(t *testing.T) {
	b, _, _, _ := newTestBlob(t, WithMaxItemSize(16))
	err := b.SetItem(context.Background(), publicationTreeKey{}, sampleTree, nil)
	assert.ErrorIs(t, err, ErrItemTooLarge)
}

func TestBlobStorageErrorsPropagate(t *testing.T) {
	boom := errors.New("storage account unreachable")
	b := NewBlob(failingStorage{Storage: blobstore.NewMemory(), err: boom}, WithBlobLogger(logger.NewTestLogger()))
	ctx := context.Background()

	_, found, err := GetBlobItem[publicationTree](ctx, b, publicationTreeKey{})
	assert.ErrorIs(t, err, boom)
	assert.False(t, found)
	assert.False(t, IsCancelled(err))

	err = b.SetItem(ctx, publicationTreeKey{}, sampleTree, nil)
	assert.ErrorIs(t, err, boom)
}

func TestBlobCancellation(t *testing.T) {
	b, _, _, _ := newTestBlob(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := GetBlobItem[publicationTree](ctx, b, publicationTreeKey{})
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)

	err = b.SetItem(ctx, publicationTreeKey{}, sampleTree, nil)
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestBlobDeleteItemAndFolder(t *testing.T) {
	ctx := context.Background()
	b, storage, _, _ := newTestBlob(t)
	for _, path := range []string{"releases/abc/a.json", "releases/abc/data/b.json", "releases/abcd/c.json"} {
		require.NoError(t, b.SetItem(ctx, NewBlobKey(ContainerCache, path), path, nil))
	}

	require.NoError(t, b.DeleteItem(ctx, NewBlobKey(ContainerCache, "releases/abcd/c.json")))
	require.NoError(t, b.DeleteItem(ctx, NewBlobKey(ContainerCache, "releases/abcd/c.json")))
	assert.ElementsMatch(t, []string{"releases/abc/a.json", "releases/abc/data/b.json"}, storage.Paths("cache"))

	require.NoError(t, b.SetItem(ctx, NewBlobKey(ContainerCache, "releases/abcd/c.json"), "c", nil))
	require.NoError(t, b.DeleteCacheFolder(ctx, NewBlobKey(ContainerCache, "releases/abc")))
	assert.Equal(t, []string{"releases/abcd/c.json"}, storage.Paths("cache"))
}

func TestBlobRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	b, _, _, _ := newTestBlob(t)
	assert.ErrorIs(t, b.SetItem(ctx, NewBlobKey(ContainerCache, ""), 1, nil), ErrInvalidKey)
	bad := ExpiryPolicy{Duration: -time.Second}
	assert.True(t, IsConfigurationError(b.SetItem(ctx, publicationTreeKey{}, 1, &bad)))
	_, err := b.GetItem(ctx, NewBlobKey("nowhere", "a"), new(string))
	assert.True(t, IsConfigurationError(err))
}
