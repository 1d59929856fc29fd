// Package search turns a stream of query edits into at most one authoritative
// result set per effective query.
package search

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gamedex/internal/domain"
)

// Status is the visible phase of a search session
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusResults Status = "results"
	StatusEmpty   Status = "empty"
)

// State is what a consumer renders
type State struct {
	Status  Status                `json:"status"`
	Query   string                `json:"query,omitempty"`
	Results []domain.SearchResult `json:"results"`
}

// Navigation is the intent to open a game's detail view
type Navigation struct {
	ID   int64  `json:"id"`
	Slug string `json:"slug"`
	Path string `json:"path"`
}

// Searcher performs a text lookup
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]domain.SearchResult, error)
}

// Options configures a Controller
type Options struct {
	Debounce time.Duration
	Limit    int
}

// DefaultOptions returns the standard debounce window and result limit
func DefaultOptions() Options {
	return Options{
		Debounce: 500 * time.Millisecond,
		Limit:    10,
	}
}

// Controller owns one search session. Every lookup carries a generation
// number; a result is applied only if its generation is still current.
// Listeners are invoked with the controller lock held and must not call back
// into the controller.
type Controller struct {
	searcher  Searcher
	logger    *slog.Logger
	opts      Options
	debouncer *Debouncer

	mu         sync.Mutex
	query      string
	state      State
	generation uint64
	cancel     context.CancelFunc
	closed     bool
	onState    func(State)
	onNavigate func(Navigation)

	wg sync.WaitGroup
}

// NewController creates an idle search session
func NewController(searcher Searcher, logger *slog.Logger, opts Options) *Controller {
	defaults := DefaultOptions()
	if opts.Debounce <= 0 {
		opts.Debounce = defaults.Debounce
	}
	if opts.Limit <= 0 {
		opts.Limit = defaults.Limit
	}
	return &Controller{
		searcher:  searcher,
		logger:    logger,
		opts:      opts,
		debouncer: NewDebouncer(opts.Debounce),
		state:     State{Status: StatusIdle, Results: []domain.SearchResult{}},
	}
}

// OnState registers the state listener
func (c *Controller) OnState(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

// OnNavigate registers the navigation listener
func (c *Controller) OnNavigate(fn func(Navigation)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onNavigate = fn
}

// State returns the current visible state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Query returns the raw query last passed to SetQuery
func (c *Controller) Query() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.query
}

// SetQuery records a query edit. A blank query resets the session at once;
// anything else schedules a lookup once input has been quiet for the debounce window.
func (c *Controller) SetQuery(q string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.query = q
	trimmed := strings.TrimSpace(q)
	if trimmed == "" {
		c.resetLocked()
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.debouncer.Trigger(func() { c.issue(trimmed) })
}

// Flush issues a pending lookup without waiting for the debounce window
func (c *Controller) Flush() bool {
	return c.debouncer.Flush()
}

// Clear empties the query and results and cancels any lookup
func (c *Controller) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.query = ""
	c.resetLocked()
}

// Select clears the session and emits navigation to the chosen game
func (c *Controller) Select(result domain.SearchResult) Navigation {
	nav := Navigation{
		ID:   result.ID,
		Slug: domain.Slugify(result.Name),
		Path: domain.GamePath(result.ID, result.Name),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nav
	}
	c.query = ""
	c.resetLocked()
	if c.onNavigate != nil {
		c.onNavigate(nav)
	}
	return nav
}

// Close cancels pending work and waits for running lookups to return
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.debouncer.Cancel()
	c.invalidateLocked()
	c.mu.Unlock()

	c.wg.Wait()
}

// issue starts a lookup for query, superseding any lookup in flight
func (c *Controller) issue(query string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// the session may have been cleared while the debounce timer was firing
	if c.closed || strings.TrimSpace(c.query) != query {
		return
	}

	c.invalidateLocked()
	generation := c.generation
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	c.setStateLocked(State{Status: StatusLoading, Query: query, Results: []domain.SearchResult{}})

	c.wg.Add(1)
	go c.run(ctx, cancel, generation, query)
}

func (c *Controller) run(ctx context.Context, cancel context.CancelFunc, generation uint64, query string) {
	defer c.wg.Done()
	defer cancel()

	results, err := c.searcher.Search(ctx, query, c.opts.Limit)

	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.generation {
		c.logger.Debug("discarding stale search result", "query", query)
		return
	}

	switch {
	case err != nil:
		if errors.Is(err, context.Canceled) {
			return
		}
		c.logger.Warn("search lookup failed", "query", query, "error", err)
		c.setStateLocked(State{Status: StatusEmpty, Query: query, Results: []domain.SearchResult{}})
	case len(results) == 0:
		c.setStateLocked(State{Status: StatusEmpty, Query: query, Results: []domain.SearchResult{}})
	default:
		c.setStateLocked(State{Status: StatusResults, Query: query, Results: results})
	}
}

func (c *Controller) resetLocked() {
	c.debouncer.Cancel()
	c.invalidateLocked()
	c.setStateLocked(State{Status: StatusIdle, Results: []domain.SearchResult{}})
}

// invalidateLocked retires the current generation and cancels its lookup
func (c *Controller) invalidateLocked() {
	c.generation++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *Controller) setStateLocked(state State) {
	c.state = state
	if c.onState != nil {
		c.onState(state)
	}
}
