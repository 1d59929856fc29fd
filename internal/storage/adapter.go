// Package storage persists the collection as a single serialized blob under one key.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/gamedex/internal/domain"
)

// DefaultKey is the key the collection blob is stored under
const DefaultKey = "aerolab-game-collection"

var (
	// ErrNotFound is returned by backends when the key holds no value
	ErrNotFound = errors.New("key not found")
	// ErrUnavailable is returned by backends that cannot be reached at all
	ErrUnavailable = errors.New("storage unavailable")
)

// Backend is a key-value blob store
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Adapter reads and writes the whole collection under a fixed key. It never
// returns errors: failed reads degrade to an empty snapshot and failed writes are logged.
type Adapter struct {
	backend Backend
	key     string
	logger  *slog.Logger
}

// NewAdapter creates a store adapter. A nil backend behaves as unavailable storage.
func NewAdapter(backend Backend, key string, logger *slog.Logger) *Adapter {
	if key == "" {
		key = DefaultKey
	}
	return &Adapter{
		backend: backend,
		key:     key,
		logger:  logger,
	}
}

// Key returns the storage key
func (a *Adapter) Key() string {
	return a.key
}

// Load reads the stored collection in storage order
func (a *Adapter) Load(ctx context.Context) domain.Snapshot {
	if a.backend == nil {
		return domain.Snapshot{}
	}

	data, err := a.backend.Get(ctx, a.key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			a.logger.Error("failed to load collection from storage", "key", a.key, "error", err)
		}
		return domain.Snapshot{}
	}

	snapshot, err := a.decode(data)
	if err != nil {
		a.logger.Error("failed to parse stored collection", "key", a.key, "error", err)
		return domain.Snapshot{}
	}
	return snapshot
}

// Save overwrites the stored blob with the full collection
func (a *Adapter) Save(ctx context.Context, collection *domain.Collection) {
	if a.backend == nil {
		return
	}

	data, err := json.Marshal(collection)
	if err != nil {
		a.logger.Error("failed to encode collection", "error", err)
		return
	}

	if err := a.backend.Set(ctx, a.key, data); err != nil {
		a.logger.Error("failed to save collection to storage", "key", a.key, "error", err)
	}
}

// decode walks the stored object token by token so document order is preserved
func (a *Adapter) decode(data []byte) (domain.Snapshot, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return domain.Snapshot{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("reading collection: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("stored collection is not an object")
	}

	snapshot := domain.Snapshot{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("reading key: %w", err)
		}
		key, _ := tok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("reading entry %q: %w", key, err)
		}

		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil || id <= 0 {
			id = 0
		}

		entry, err := domain.DecodeStoredEntry(id, raw)
		if err != nil {
			a.logger.Warn("dropping unreadable collection entry", "key", key, "error", err)
			continue
		}
		snapshot = append(snapshot, entry)
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("reading collection end: %w", err)
	}
	return snapshot, nil
}
