package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/gamedex/internal/config"
	"github.com/gamedex/internal/domain"
	"github.com/gamedex/internal/igdb"
	"github.com/gamedex/internal/service"
	"github.com/gamedex/internal/websocket"
)

// maxBodySize caps request bodies
const maxBodySize = 1 << 20

// Handler provides HTTP handlers for the catalog and collection API
type Handler struct {
	catalog    *service.CatalogService
	collection *service.CollectionService
	hub        *websocket.Hub
	config     *config.ServerConfig
	logger     *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	catalog *service.CatalogService,
	collection *service.CollectionService,
	hub *websocket.Hub,
	cfg *config.ServerConfig,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		catalog:    catalog,
		collection: collection,
		hub:        hub,
		config:     cfg,
		logger:     logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.config.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"Location"},
		MaxAge:         300,
	}))

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	// WebSocket endpoint
	r.Get("/ws", h.HandleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		// Provider-backed routes
		r.Group(func(r chi.Router) {
			r.Use(httprate.LimitByIP(h.config.RateLimit, time.Minute))

			r.Get("/search", h.Search)
			r.Get("/similar", h.SimilarGames)
			r.Post("/igdb", h.ProxyQuery)
			r.Get("/games/{gameID}", h.RedirectToCanonical)
			r.Get("/games/{gameID}/{slug}", h.GetGame)
		})

		r.Route("/collection", func(r chi.Router) {
			r.Get("/", h.ListCollection)
			r.Get("/count", h.CountCollection)

			r.Route("/{gameID}", func(r chi.Router) {
				r.Get("/", h.GetCollectionEntry)
				r.Put("/", h.AddToCollection)
				r.Delete("/", h.RemoveFromCollection)
			})
		})

		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// writeServiceError maps service errors to status codes
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case domain.IsNotFoundError(err):
		h.writeError(w, http.StatusNotFound, domain.ErrGameNotFound)
	case errors.Is(err, domain.ErrInvalidGame), errors.Is(err, domain.ErrInvalidSortKey), errors.Is(err, domain.ErrInvalidRequest):
		h.writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, domain.ErrCollectionNotReady):
		h.writeError(w, http.StatusServiceUnavailable, domain.ErrCollectionNotReady)
	case errors.Is(err, domain.ErrMetadataUnavailable):
		h.logger.Error("metadata provider unavailable", "op", op, "error", err)
		h.writeError(w, http.StatusServiceUnavailable, domain.ErrMetadataUnavailable)
	case r.Context().Err() != nil:
		// client went away
	default:
		h.logger.Error("request failed", "op", op, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
	}
}

// gameIDParam parses the gameID path parameter; anything but a positive integer is a missing game
func gameIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "gameID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.ErrGameNotFound
	}
	return id, nil
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]interface{}{
		"total_connections": h.hub.GetTotalConnections(),
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck reports ready once the collection has been loaded
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	if !h.collection.Ready() {
		h.writeJSON(w, http.StatusServiceUnavailable, APIResponse{
			Success: false,
			Data:    map[string]string{"status": "loading"},
			Error:   domain.ErrCollectionNotReady.Error(),
		})
		return
	}
	h.writeSuccess(w, map[string]string{"status": "ready"})
}

// Search looks up games by text
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l <= 0 {
			h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
			return
		}
		limit = l
	}

	results, err := h.catalog.Search(r.Context(), query, limit)
	if err != nil {
		h.writeServiceError(w, r, "search", err)
		return
	}

	h.writeSuccess(w, map[string]interface{}{
		"query":   strings.TrimSpace(query),
		"results": h.catalog.Summaries(results),
	})
}

// SimilarGames returns summaries for a comma separated id list
func (h *Handler) SimilarGames(w http.ResponseWriter, r *http.Request) {
	var ids []int64
	for _, part := range strings.Split(r.URL.Query().Get("ids"), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
			return
		}
		ids = append(ids, id)
	}
	if len(ids) > igdb.SimilarGamesLimit {
		ids = ids[:igdb.SimilarGamesLimit]
	}

	h.writeSuccess(w, h.catalog.SimilarGames(r.Context(), ids))
}

// ProxyQuery relays a raw provider query
func (h *Handler) ProxyQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Endpoint string `json:"endpoint"`
		Body     string `json:"body"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil || req.Endpoint == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	data, err := h.catalog.Query(r.Context(), req.Endpoint, req.Body)
	if err != nil {
		var providerErr *igdb.ProviderError
		switch {
		case errors.Is(err, igdb.ErrInvalidEndpoint):
			h.writeError(w, http.StatusBadRequest, err)
		case errors.As(err, &providerErr):
			h.logger.Warn("proxied query rejected", "endpoint", req.Endpoint, "status", providerErr.StatusCode)
			h.writeError(w, providerErr.StatusCode, fmt.Errorf("provider request failed with status %d", providerErr.StatusCode))
		default:
			h.writeServiceError(w, r, "proxy", err)
		}
		return
	}

	h.writeSuccess(w, data)
}

// RedirectToCanonical redirects an id-only game link to its canonical slug
func (h *Handler) RedirectToCanonical(w http.ResponseWriter, r *http.Request) {
	id, err := gameIDParam(r)
	if err != nil {
		h.writeError(w, http.StatusNotFound, err)
		return
	}

	game, err := h.catalog.Game(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, "get game", err)
		return
	}

	http.Redirect(w, r, domain.APIGamePath(game.ID, game.Name), http.StatusPermanentRedirect)
}

// GetGame returns the detail view of a game, redirecting when the slug is not canonical
func (h *Handler) GetGame(w http.ResponseWriter, r *http.Request) {
	id, err := gameIDParam(r)
	if err != nil {
		h.writeError(w, http.StatusNotFound, err)
		return
	}

	detail, err := h.catalog.ResolveGame(r.Context(), id, chi.URLParam(r, "slug"))
	if err != nil {
		h.writeServiceError(w, r, "get game", err)
		return
	}

	if detail.RedirectTo != "" {
		http.Redirect(w, r, domain.APIGamePath(detail.Game.ID, detail.Game.Name), http.StatusPermanentRedirect)
		return
	}

	detail.InCollection = h.collection.Contains(detail.Game.ID)
	h.writeSuccess(w, detail)
}

// ListCollection returns the collection in the requested order
func (h *Handler) ListCollection(w http.ResponseWriter, r *http.Request) {
	sortBy := r.URL.Query().Get("sort")

	entries, err := h.collection.Sorted(sortBy)
	if err != nil {
		h.writeServiceError(w, r, "list collection", err)
		return
	}

	key, _ := domain.ParseSortKey(sortBy)
	h.writeSuccess(w, map[string]interface{}{
		"sort":  key,
		"count": len(entries),
		"games": entries,
	})
}

// CountCollection returns the number of games in the collection
func (h *Handler) CountCollection(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]int{"count": h.collection.Count()})
}

// GetCollectionEntry returns a single collection entry
func (h *Handler) GetCollectionEntry(w http.ResponseWriter, r *http.Request) {
	id, err := gameIDParam(r)
	if err != nil {
		h.writeError(w, http.StatusNotFound, err)
		return
	}

	entry, err := h.collection.Entry(id)
	if err != nil {
		h.writeServiceError(w, r, "get collection entry", err)
		return
	}
	h.writeSuccess(w, entry)
}

// AddToCollection saves a game. The request body may carry the game record;
// otherwise it is fetched from the provider.
func (h *Handler) AddToCollection(w http.ResponseWriter, r *http.Request) {
	id, err := gameIDParam(r)
	if err != nil {
		h.writeError(w, http.StatusNotFound, err)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	var entry *domain.CollectionEntry
	if len(strings.TrimSpace(string(body))) == 0 {
		entry, err = h.collection.AddByID(r.Context(), id)
	} else {
		var game domain.Game
		if err := json.Unmarshal(body, &game); err != nil {
			h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
			return
		}
		game.ID = id
		entry, err = h.collection.Add(r.Context(), game)
	}
	if err != nil {
		h.writeServiceError(w, r, "add to collection", err)
		return
	}

	h.writeSuccess(w, entry)
}

// RemoveFromCollection deletes a game; removing an absent game succeeds
func (h *Handler) RemoveFromCollection(w http.ResponseWriter, r *http.Request) {
	id, err := gameIDParam(r)
	if err != nil {
		h.writeError(w, http.StatusNotFound, err)
		return
	}

	removed, err := h.collection.Remove(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, "remove from collection", err)
		return
	}

	h.writeSuccess(w, map[string]interface{}{
		"removed": removed,
		"count":   h.collection.Count(),
	})
}
