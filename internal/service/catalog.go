package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/gamedex/internal/config"
	"github.com/gamedex/internal/domain"
	"github.com/gamedex/internal/igdb"
)

// MetadataProvider is the game metadata source
type MetadataProvider interface {
	Search(ctx context.Context, text string, limit int) ([]domain.SearchResult, error)
	GameByID(ctx context.Context, id int64) (*domain.Game, error)
	GamesByIDs(ctx context.Context, ids []int64) ([]domain.SearchResult, error)
	Raw(ctx context.Context, endpoint, body string) (json.RawMessage, error)
	Images() igdb.Images
}

// GameSummary is a search result with its link and cover URL resolved
type GameSummary struct {
	domain.SearchResult
	Path        string `json:"path"`
	CoverURL    string `json:"cover_url,omitempty"`
	ReleaseYear int    `json:"release_year,omitempty"`
}

// GameDetail is the detail view of a game. When RedirectTo is set the
// requested slug was not canonical and only Game, Slug and Path are filled.
type GameDetail struct {
	Game           domain.Game   `json:"game"`
	Slug           string        `json:"slug"`
	Path           string        `json:"path"`
	RedirectTo     string        `json:"redirect_to,omitempty"`
	CoverURL       string        `json:"cover_url,omitempty"`
	ScreenshotURLs []string      `json:"screenshot_urls"`
	RatingLabel    string        `json:"rating_label,omitempty"`
	ReleaseYear    int           `json:"release_year,omitempty"`
	Platforms      []string      `json:"platforms"`
	Similar        []GameSummary `json:"similar_games"`
	InCollection   bool          `json:"in_collection"`
}

// CatalogService provides game lookup on top of the metadata provider
type CatalogService struct {
	provider MetadataProvider
	search   *config.SearchConfig
	cache    *expirable.LRU[int64, domain.Game]
	logger   *slog.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(
	provider MetadataProvider,
	searchCfg *config.SearchConfig,
	igdbCfg *config.IGDBConfig,
	logger *slog.Logger,
) *CatalogService {
	return &CatalogService{
		provider: provider,
		search:   searchCfg,
		cache:    expirable.NewLRU[int64, domain.Game](igdbCfg.CacheSize, nil, igdbCfg.CacheTTL),
		logger:   logger,
	}
}

// Images returns the image URL builder
func (s *CatalogService) Images() igdb.Images {
	return s.provider.Images()
}

// Search looks up games by text. Provider failures degrade to no results;
// cancellation and missing configuration are returned to the caller.
func (s *CatalogService) Search(ctx context.Context, query string, limit int) ([]domain.SearchResult, error) {
	if isBlank(query) {
		return []domain.SearchResult{}, nil
	}

	if limit <= 0 {
		limit = s.search.Limit
	}
	if limit > s.search.MaxLimit {
		limit = s.search.MaxLimit
	}

	results, err := s.provider.Search(ctx, query, limit)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if isConfigError(err) {
			return nil, fmt.Errorf("%w: %v", domain.ErrMetadataUnavailable, err)
		}
		s.logger.Warn("game search failed", "query", query, "error", err)
		return []domain.SearchResult{}, nil
	}
	return results, nil
}

// Game returns the full record of a game. Transport and provider failures
// are reported as not found.
func (s *CatalogService) Game(ctx context.Context, id int64) (*domain.Game, error) {
	if id <= 0 {
		return nil, domain.ErrGameNotFound
	}
	if game, ok := s.cache.Get(id); ok {
		return &game, nil
	}

	game, err := s.provider.GameByID(ctx, id)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrGameNotFound):
			return nil, domain.ErrGameNotFound
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case isConfigError(err):
			return nil, fmt.Errorf("%w: %v", domain.ErrMetadataUnavailable, err)
		default:
			s.logger.Error("failed to fetch game", "game_id", id, "error", err)
			return nil, domain.ErrGameNotFound
		}
	}

	s.cache.Add(id, *game)
	return game, nil
}

// ResolveGame loads the detail view addressed by id and slug. A slug that is
// not the canonical slug of the game's name yields a redirect instead.
func (s *CatalogService) ResolveGame(ctx context.Context, id int64, slug string) (*GameDetail, error) {
	game, err := s.Game(ctx, id)
	if err != nil {
		return nil, err
	}

	canonical := domain.Slugify(game.Name)
	detail := &GameDetail{
		Game: *game,
		Slug: canonical,
		Path: domain.GamePath(game.ID, game.Name),
	}
	if slug != canonical {
		detail.RedirectTo = detail.Path
		return detail, nil
	}

	images := s.provider.Images()
	if game.Cover != nil {
		detail.CoverURL = images.URL(game.Cover.ImageID, igdb.SizeCoverBig)
	}
	detail.ScreenshotURLs = make([]string, 0, len(game.Screenshots))
	for _, shot := range game.Screenshots {
		detail.ScreenshotURLs = append(detail.ScreenshotURLs, images.URL(shot.ImageID, igdb.SizeScreenshotHuge))
	}
	if game.Rating != nil {
		detail.RatingLabel = domain.RatingLabel(*game.Rating)
	}
	detail.ReleaseYear = game.ReleaseYear()
	detail.Platforms = game.PlatformNames()

	similarIDs := game.SimilarGames
	if len(similarIDs) > igdb.SimilarGamesLimit {
		similarIDs = similarIDs[:igdb.SimilarGamesLimit]
	}
	detail.Similar = s.SimilarGames(ctx, similarIDs)

	return detail, nil
}

// SimilarGames returns summaries of related games; failures yield an empty list
func (s *CatalogService) SimilarGames(ctx context.Context, ids []int64) []GameSummary {
	if len(ids) == 0 {
		return []GameSummary{}
	}

	results, err := s.provider.GamesByIDs(ctx, ids)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("failed to fetch similar games", "ids", ids, "error", err)
		}
		return []GameSummary{}
	}
	return s.Summaries(results)
}

// Summaries resolves links and cover URLs for search results
func (s *CatalogService) Summaries(results []domain.SearchResult) []GameSummary {
	images := s.provider.Images()
	out := make([]GameSummary, 0, len(results))
	for _, r := range results {
		summary := GameSummary{
			SearchResult: r,
			Path:         domain.GamePath(r.ID, r.Name),
		}
		if r.Cover != nil {
			summary.CoverURL = images.URL(r.Cover.ImageID, igdb.SizeCoverBig)
		}
		if r.FirstReleaseDate != nil {
			summary.ReleaseYear = domain.Game{FirstReleaseDate: r.FirstReleaseDate}.ReleaseYear()
		}
		out = append(out, summary)
	}
	return out
}

// Query forwards a raw provider query. Unlike the typed lookups it returns
// provider errors unchanged so callers can relay the upstream status.
func (s *CatalogService) Query(ctx context.Context, endpoint, body string) (json.RawMessage, error) {
	if isBlank(body) {
		return nil, domain.ErrInvalidRequest
	}
	data, err := s.provider.Raw(ctx, endpoint, body)
	if err != nil {
		if isConfigError(err) {
			return nil, fmt.Errorf("%w: %v", domain.ErrMetadataUnavailable, err)
		}
		return nil, err
	}
	return data, nil
}

func isConfigError(err error) bool {
	var tokenErr *igdb.TokenError
	return errors.Is(err, igdb.ErrMissingCredentials) || errors.As(err, &tokenErr)
}
