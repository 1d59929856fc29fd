package redis

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamedex/internal/config"
	"github.com/gamedex/internal/storage"
)

func newTestStore(t *testing.T) (*BlobStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	cfg := config.DefaultConfig()
	cfg.Redis.Addr = mr.Addr()

	client, err := NewClient(context.Background(), &cfg.Redis)
	require.NoError(t, err)

	store := NewBlobStore(client, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestBlobStoreGetSet(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	_, err := store.Get(ctx, "collection")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.Set(ctx, "collection", []byte(`{"1":{"id":1}}`)))
	value, err := store.Get(ctx, "collection")
	require.NoError(t, err)
	assert.Equal(t, `{"1":{"id":1}}`, string(value))

	raw, err := mr.Get("collection")
	require.NoError(t, err)
	assert.Equal(t, `{"1":{"id":1}}`, raw)
	require.NoError(t, store.Ping(ctx))
}

func TestBlobStoreBackingAdapter(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)
	mr.Set(storage.DefaultKey, `{"12":{"id":12,"name":"Celeste","dateAdded":1000}}`)

	snapshot := storage.NewAdapter(store, storage.DefaultKey, slog.New(slog.NewTextHandler(io.Discard, nil))).Load(ctx)
	require.Len(t, snapshot, 1)
	assert.Equal(t, int64(12), snapshot[0].GameID())
}

func TestNewClientUnreachable(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Redis.Addr = "127.0.0.1:1"
	_, err := NewClient(context.Background(), &cfg.Redis)
	assert.Error(t, err)
}
