package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/gamedex/internal/collection"
	"github.com/gamedex/internal/domain"
)

// resolveConcurrency bounds parallel provider lookups while applying commands
const resolveConcurrency = 4

// CollectionService provides business logic for the personal collection
type CollectionService struct {
	manager *collection.Manager
	catalog *CatalogService
	logger  *slog.Logger
}

// NewCollectionService creates a new collection service
func NewCollectionService(manager *collection.Manager, catalog *CatalogService, logger *slog.Logger) *CollectionService {
	return &CollectionService{
		manager: manager,
		catalog: catalog,
		logger:  logger,
	}
}

// Ready reports whether the collection has been loaded
func (s *CollectionService) Ready() bool {
	return s.manager.Ready()
}

// Add saves a game to the collection
func (s *CollectionService) Add(ctx context.Context, game domain.Game) (*domain.CollectionEntry, error) {
	if game.ID <= 0 || isBlank(game.Name) {
		return nil, domain.ErrInvalidGame
	}
	entry, ok := s.manager.AddGame(ctx, game)
	if !ok {
		return nil, domain.ErrCollectionNotReady
	}
	return &entry, nil
}

// AddByID resolves a game through the catalog and saves it
func (s *CollectionService) AddByID(ctx context.Context, id int64) (*domain.CollectionEntry, error) {
	if !s.manager.Ready() {
		return nil, domain.ErrCollectionNotReady
	}
	game, err := s.catalog.Game(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Add(ctx, *game)
}

// Remove deletes a game from the collection and reports whether it was present
func (s *CollectionService) Remove(ctx context.Context, id int64) (bool, error) {
	if !s.manager.Ready() {
		return false, domain.ErrCollectionNotReady
	}
	return s.manager.RemoveGame(ctx, id), nil
}

// Contains reports whether a game is in the collection
func (s *CollectionService) Contains(id int64) bool {
	return s.manager.IsInCollection(id)
}

// Entry returns the collection entry for a game
func (s *CollectionService) Entry(id int64) (*domain.CollectionEntry, error) {
	entry, ok := s.manager.Entry(id)
	if !ok {
		return nil, domain.ErrGameNotFound
	}
	return &entry, nil
}

// Count returns the number of games in the collection
func (s *CollectionService) Count() int {
	return s.manager.Count()
}

// Sorted returns the collection in the requested order
func (s *CollectionService) Sorted(sortBy string) ([]domain.CollectionEntry, error) {
	key, err := domain.ParseSortKey(sortBy)
	if err != nil {
		return nil, err
	}
	return s.manager.Sorted(key), nil
}

// ApplyCommands applies queued collection commands in order. Adds without an
// inline game are resolved through the catalog first, concurrently. Commands
// that are invalid or cannot be resolved are skipped. It returns the number
// of commands that changed the collection.
func (s *CollectionService) ApplyCommands(ctx context.Context, commands []domain.CollectionCommand) (int, error) {
	if !s.manager.Ready() {
		return 0, domain.ErrCollectionNotReady
	}

	games := make([]*domain.Game, len(commands))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resolveConcurrency)

	for i, cmd := range commands {
		if err := cmd.Validate(); err != nil {
			s.logger.Warn("skipping invalid collection command", "action", cmd.Action, "game_id", cmd.GameID)
			continue
		}
		if cmd.Action != domain.CommandAdd {
			continue
		}
		if cmd.Game != nil {
			game := *cmd.Game
			game.ID = cmd.GameID
			games[i] = &game
			continue
		}

		i, id := i, cmd.GameID
		g.Go(func() error {
			game, err := s.catalog.Game(gctx, id)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				s.logger.Warn("could not resolve game for collection command", "game_id", id, "error", err)
				return nil
			}
			games[i] = game
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	applied := 0
	for i, cmd := range commands {
		switch {
		case cmd.Validate() != nil:
		case cmd.Action == domain.CommandRemove:
			if s.manager.RemoveGame(ctx, cmd.GameID) {
				applied++
			}
		case games[i] != nil:
			if _, err := s.Add(ctx, *games[i]); err != nil {
				s.logger.Warn("skipping collection command", "game_id", cmd.GameID, "error", err)
				continue
			}
			applied++
		}
	}
	return applied, nil
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
