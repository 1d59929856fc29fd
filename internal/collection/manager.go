// Package collection owns the in-memory mirror of the personal game collection
// and keeps it consistent with the persisted blob.
package collection

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gamedex/internal/domain"
)

// State is the lifecycle state of a Manager
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

// Store loads and saves the whole collection
type Store interface {
	Load(ctx context.Context) domain.Snapshot
	Save(ctx context.Context, collection *domain.Collection)
}

// Observer is notified after every effective mutation has been persisted
type Observer interface {
	CollectionChanged(ctx context.Context, event domain.CollectionEvent)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(ctx context.Context, event domain.CollectionEvent)

// CollectionChanged calls f
func (f ObserverFunc) CollectionChanged(ctx context.Context, event domain.CollectionEvent) {
	f(ctx, event)
}

// Option configures a Manager
type Option func(*Manager)

// WithClock overrides the time source used for date-added stamps
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithObservers registers observers for collection events
func WithObservers(observers ...Observer) Option {
	return func(m *Manager) {
		m.observers = append(m.observers, observers...)
	}
}

// Manager is safe for concurrent use. Until Activate completes every query
// returns its zero value and every mutation is ignored.
type Manager struct {
	store     Store
	logger    *slog.Logger
	now       func() time.Time
	observers []Observer

	mu    sync.RWMutex
	state State
	items *domain.Collection

	// saveMu serializes writes so the last save carries the latest snapshot
	saveMu sync.Mutex
}

// NewManager creates a manager in the uninitialized state
func NewManager(store Store, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		logger: logger,
		now:    time.Now,
		items:  domain.NewCollection(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddObserver registers an observer after construction
func (m *Manager) AddObserver(o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, o)
}

// State returns the lifecycle state
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Ready reports whether the collection has been loaded
func (m *Manager) Ready() bool {
	return m.State() == StateReady
}

// Activate loads the stored collection, migrates legacy entries and moves to
// ready. Only the first call does any work.
func (m *Manager) Activate(ctx context.Context) {
	m.mu.Lock()
	if m.state != StateUninitialized {
		m.mu.Unlock()
		return
	}
	m.state = StateLoading
	m.mu.Unlock()

	snapshot := m.store.Load(ctx)
	items, migrated := Migrate(snapshot, m.now())
	if migrated > 0 {
		m.logger.Info("migrated legacy collection entries", "migrated", migrated, "total", items.Len())
		m.saveMu.Lock()
		m.store.Save(ctx, items.Clone())
		m.saveMu.Unlock()
	}

	m.mu.Lock()
	m.items = items
	m.state = StateReady
	m.mu.Unlock()

	m.logger.Info("collection ready", "count", items.Len())
}

// AddGame upserts the game stamped with the current time and persists the
// collection. It reports false when the manager is not ready.
func (m *Manager) AddGame(ctx context.Context, game domain.Game) (domain.CollectionEntry, bool) {
	entry := domain.CollectionEntry{Game: game, DateAdded: domain.MillisOf(m.now())}

	m.mu.Lock()
	if m.state != StateReady {
		m.mu.Unlock()
		return domain.CollectionEntry{}, false
	}
	m.items.Put(entry)
	count := m.items.Len()
	m.mu.Unlock()

	m.persist(ctx)
	m.notify(ctx, domain.CollectionEvent{
		Type:      domain.EventGameAdded,
		GameID:    game.ID,
		Name:      game.Name,
		DateAdded: entry.DateAdded.Int64(),
		Count:     count,
		Timestamp: m.now(),
	})
	return entry, true
}

// RemoveGame deletes the entry for id and persists the collection. Removing
// an id that is not in the collection does nothing.
func (m *Manager) RemoveGame(ctx context.Context, id int64) bool {
	m.mu.Lock()
	if m.state != StateReady {
		m.mu.Unlock()
		return false
	}
	entry, ok := m.items.Get(id)
	if !ok {
		m.mu.Unlock()
		return false
	}
	m.items.Delete(id)
	count := m.items.Len()
	m.mu.Unlock()

	m.persist(ctx)
	m.notify(ctx, domain.CollectionEvent{
		Type:      domain.EventGameRemoved,
		GameID:    id,
		Name:      entry.Name,
		Count:     count,
		Timestamp: m.now(),
	})
	return true
}

// IsInCollection reports whether id is in the collection
func (m *Manager) IsInCollection(id int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != StateReady {
		return false
	}
	return m.items.Has(id)
}

// Entry returns the entry for id
func (m *Manager) Entry(id int64) (domain.CollectionEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != StateReady {
		return domain.CollectionEntry{}, false
	}
	return m.items.Get(id)
}

// CollectionArray returns every entry in insertion order
func (m *Manager) CollectionArray() []domain.CollectionEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != StateReady {
		return []domain.CollectionEntry{}
	}
	return m.items.Entries()
}

// Count returns the number of entries
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != StateReady {
		return 0
	}
	return m.items.Len()
}

// Sorted returns the entries ordered by key
func (m *Manager) Sorted(key domain.SortKey) []domain.CollectionEntry {
	entries := m.CollectionArray()
	SortEntries(entries, key)
	return entries
}

func (m *Manager) persist(ctx context.Context) {
	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	m.mu.RLock()
	snapshot := m.items.Clone()
	m.mu.RUnlock()

	m.store.Save(ctx, snapshot)
}

func (m *Manager) notify(ctx context.Context, event domain.CollectionEvent) {
	m.mu.RLock()
	observers := make([]Observer, len(m.observers))
	copy(observers, m.observers)
	m.mu.RUnlock()

	for _, o := range observers {
		o.CollectionChanged(ctx, event)
	}
}
