// Package igdb is the client for the IGDB game metadata API.
package igdb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/gamedex/internal/config"
	"github.com/gamedex/internal/domain"
)

// ProviderError is returned for non-2xx responses from the API
type ProviderError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("igdb %s request failed: %d %s", e.Endpoint, e.StatusCode, e.Body)
}

// maxResponseSize caps how much of a provider response is read
const maxResponseSize = 4 << 20

var (
	// ErrInvalidEndpoint is returned by Raw for endpoint names outside the API's path space
	ErrInvalidEndpoint = errors.New("invalid igdb endpoint")
	// ErrResponseTooLarge is returned when a response body exceeds maxResponseSize
	ErrResponseTooLarge = errors.New("igdb response too large")
)

var endpointPattern = regexp.MustCompile(`^/[a-z_]+(/count)?$`)

// Client talks to the IGDB API
type Client struct {
	baseURL    string
	clientID   string
	tokens     *TokenSource
	httpClient *http.Client
	images     Images
	logger     *slog.Logger
}

// NewClient creates an IGDB client from configuration
func NewClient(cfg *config.IGDBConfig, logger *slog.Logger) *Client {
	httpClient := &http.Client{Timeout: cfg.Timeout}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		clientID:   cfg.ClientID,
		tokens:     NewTokenSource(cfg.ClientID, cfg.ClientSecret, cfg.TokenURL, httpClient, logger),
		httpClient: httpClient,
		images:     NewImages(cfg.ImageBaseURL),
		logger:     logger,
	}
}

// Images returns the image URL builder
func (c *Client) Images() Images {
	return c.images
}

// Search returns games matching text, at most limit of them
func (c *Client) Search(ctx context.Context, text string, limit int) ([]domain.SearchResult, error) {
	if strings.TrimSpace(text) == "" {
		return []domain.SearchResult{}, nil
	}
	body := NewQuery(SearchFields...).Search(text).Limit(limit).String()

	var games []domain.Game
	if err := c.query(ctx, "/games", body, &games); err != nil {
		return nil, err
	}
	return toResults(games), nil
}

// GameByID returns the full detail record of a game
func (c *Client) GameByID(ctx context.Context, id int64) (*domain.Game, error) {
	body := NewQuery(DetailFields...).WhereID(id).String()

	var games []domain.Game
	if err := c.query(ctx, "/games", body, &games); err != nil {
		return nil, err
	}
	if len(games) == 0 {
		return nil, domain.ErrGameNotFound
	}
	game := games[0].Normalized()
	return &game, nil
}

// GamesByIDs returns the reduced records of up to six of the given games
func (c *Client) GamesByIDs(ctx context.Context, ids []int64) ([]domain.SearchResult, error) {
	if len(ids) == 0 {
		return []domain.SearchResult{}, nil
	}
	body := NewQuery(SearchFields...).WhereIDs(ids).Limit(SimilarGamesLimit).String()

	var games []domain.Game
	if err := c.query(ctx, "/games", body, &games); err != nil {
		return nil, err
	}
	return toResults(games), nil
}

// Raw forwards an arbitrary query body to endpoint and returns the response JSON
func (c *Client) Raw(ctx context.Context, endpoint, body string) (json.RawMessage, error) {
	if !endpointPattern.MatchString(endpoint) {
		return nil, ErrInvalidEndpoint
	}
	var out json.RawMessage
	if err := c.query(ctx, endpoint, body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// query posts body to endpoint and decodes the response into out. A 401
// invalidates the cached token and the request is retried once.
func (c *Client) query(ctx context.Context, endpoint, body string, out interface{}) error {
	for attempt := 0; ; attempt++ {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("getting access token: %w", err)
		}

		status, data, err := c.post(ctx, endpoint, body, token)
		if err != nil {
			return err
		}

		if status == http.StatusUnauthorized && attempt == 0 {
			c.logger.Warn("igdb rejected access token, refreshing", "endpoint", endpoint)
			c.tokens.Invalidate()
			continue
		}
		if status < 200 || status >= 300 {
			return &ProviderError{Endpoint: endpoint, StatusCode: status, Body: strings.TrimSpace(string(data))}
		}

		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decoding %s response: %w", endpoint, err)
		}
		return nil
	}
}

func (c *Client) post(ctx context.Context, endpoint, body, token string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewBufferString(body))
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Client-ID", c.clientID)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("igdb request", "endpoint", endpoint, "body", body)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("requesting %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return 0, nil, fmt.Errorf("reading %s response: %w", endpoint, err)
	}
	if len(data) > maxResponseSize {
		return 0, nil, fmt.Errorf("reading %s response: %w", endpoint, ErrResponseTooLarge)
	}
	return resp.StatusCode, data, nil
}

func toResults(games []domain.Game) []domain.SearchResult {
	results := make([]domain.SearchResult, 0, len(games))
	for _, g := range games {
		results = append(results, g.Result())
	}
	return results
}
