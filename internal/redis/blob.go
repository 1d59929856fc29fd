package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/gamedex/internal/config"
	"github.com/gamedex/internal/storage"
)

// BlobStore is a storage.Backend over plain Redis string keys
type BlobStore struct {
	client *redis.Client
	logger *slog.Logger
}

// NewClient creates a Redis client and verifies the connection
func NewClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return client, nil
}

// NewBlobStore wraps an existing client
func NewBlobStore(client *redis.Client, logger *slog.Logger) *BlobStore {
	return &BlobStore{
		client: client,
		logger: logger,
	}
}

// Close closes the Redis connection
func (s *BlobStore) Close() error {
	return s.client.Close()
}

// Get returns the value stored under key
func (s *BlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("getting blob: %w", err)
	}
	return value, nil
}

// Set overwrites the value stored under key
func (s *BlobStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("setting blob: %w", err)
	}
	s.logger.Debug("stored blob", "key", key, "bytes", len(value))
	return nil
}

// Ping checks the connection
func (s *BlobStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
