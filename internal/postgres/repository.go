package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gamedex/internal/config"
	"github.com/gamedex/internal/storage"
)

// BlobRepository stores collection blobs in PostgreSQL
type BlobRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewBlobRepository creates a new PostgreSQL blob repository
func NewBlobRepository(ctx context.Context, cfg *config.PostgresConfig, logger *slog.Logger) (*BlobRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &BlobRepository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *BlobRepository) Close() {
	r.pool.Close()
}

// RunMigrations executes database migrations
func (r *BlobRepository) RunMigrations(ctx context.Context) error {
	// value is TEXT rather than JSONB: JSONB does not keep object key order
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS collection_blobs (
			key VARCHAR(255) PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, migration := range migrations {
		if _, err := r.pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// Get returns the blob stored under key
func (r *BlobRepository) Get(ctx context.Context, key string) ([]byte, error) {
	query := `SELECT value FROM collection_blobs WHERE key = $1`

	var value string
	err := r.pool.QueryRow(ctx, query, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("getting blob: %w", err)
	}
	return []byte(value), nil
}

// Set inserts or overwrites the blob stored under key
func (r *BlobRepository) Set(ctx context.Context, key string, value []byte) error {
	query := `
		INSERT INTO collection_blobs (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key)
		DO UPDATE SET value = $2, updated_at = $3
	`
	if _, err := r.pool.Exec(ctx, query, key, string(value), time.Now()); err != nil {
		return fmt.Errorf("setting blob: %w", err)
	}
	return nil
}
