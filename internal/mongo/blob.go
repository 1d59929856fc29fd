package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/gamedex/internal/config"
	"github.com/gamedex/internal/storage"
)

type blobDocument struct {
	Key       string    `bson:"_id"`
	Value     string    `bson:"value"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// BlobStore keeps one document per key in a MongoDB collection
type BlobStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *slog.Logger
}

// NewBlobStore connects to MongoDB and verifies the connection
func NewBlobStore(ctx context.Context, cfg *config.MongoConfig, logger *slog.Logger) (*BlobStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging mongo: %w", err)
	}

	store := newBlobStore(client.Database(cfg.Database).Collection(cfg.Collection), logger)
	store.client = client
	return store, nil
}

func newBlobStore(collection *mongo.Collection, logger *slog.Logger) *BlobStore {
	return &BlobStore{
		collection: collection,
		logger:     logger,
	}
}

// Close disconnects the client
func (s *BlobStore) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// Get returns the blob stored under key
func (s *BlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	var doc blobDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("finding blob: %w", err)
	}
	return []byte(doc.Value), nil
}

// Set inserts or overwrites the blob stored under key
func (s *BlobStore) Set(ctx context.Context, key string, value []byte) error {
	update := bson.M{"$set": bson.M{
		"value":      string(value),
		"updated_at": time.Now().UTC(),
	}}
	_, err := s.collection.UpdateOne(ctx, bson.M{"_id": key}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upserting blob: %w", err)
	}
	return nil
}
