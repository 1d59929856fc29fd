package mongo

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/gamedex/internal/storage"
)

func TestBlobStore(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ns := "gamedex.blobs"

	mt.Run("get existing blob", func(mt *mtest.T) {
		store := newBlobStore(mt.Coll, logger)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "_id", Value: storage.DefaultKey},
			{Key: "value", Value: `{"1942":{"id":1942}}`},
		}))

		value, err := store.Get(context.Background(), storage.DefaultKey)
		require.NoError(mt, err)
		assert.Equal(mt, `{"1942":{"id":1942}}`, string(value))
	})

	mt.Run("missing key", func(mt *mtest.T) {
		store := newBlobStore(mt.Coll, logger)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		_, err := store.Get(context.Background(), storage.DefaultKey)
		assert.ErrorIs(mt, err, storage.ErrNotFound)
	})

	mt.Run("upsert", func(mt *mtest.T) {
		store := newBlobStore(mt.Coll, logger)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 0},
		))

		require.NoError(mt, store.Set(context.Background(), storage.DefaultKey, []byte(`{}`)))

		started := mt.GetStartedEvent()
		require.NotNil(mt, started)
		assert.Equal(mt, "update", started.CommandName)
	})

	mt.Run("write error", func(mt *mtest.T) {
		store := newBlobStore(mt.Coll, logger)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    13,
			Name:    "Unauthorized",
			Message: "not authorized on gamedex",
		}))

		assert.Error(mt, store.Set(context.Background(), storage.DefaultKey, []byte(`{}`)))
	})
}
