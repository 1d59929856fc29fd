package igdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrMissingCredentials is returned when the client id or secret is not configured
var ErrMissingCredentials = errors.New("igdb credentials not configured")

// tokenExpiryMargin is subtracted from the advertised lifetime
const tokenExpiryMargin = time.Minute

// TokenError is returned when the token endpoint rejects the exchange
type TokenError struct {
	StatusCode int
	Body       string
}

func (e *TokenError) Error() string {
	return fmt.Sprintf("token request failed: %d %s", e.StatusCode, e.Body)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// TokenSource obtains and caches client-credentials bearer tokens
type TokenSource struct {
	clientID     string
	clientSecret string
	tokenURL     string
	httpClient   *http.Client
	logger       *slog.Logger
	now          func() time.Time

	group singleflight.Group

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewTokenSource creates a token source for the given credentials
func NewTokenSource(clientID, clientSecret, tokenURL string, httpClient *http.Client, logger *slog.Logger) *TokenSource {
	return &TokenSource{
		clientID:     clientID,
		clientSecret: clientSecret,
		tokenURL:     tokenURL,
		httpClient:   httpClient,
		logger:       logger,
		now:          time.Now,
	}
}

// Token returns a valid bearer token, fetching a new one when the cached
// token is missing or about to expire. Concurrent refreshes share one request.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	if s.clientID == "" || s.clientSecret == "" {
		return "", ErrMissingCredentials
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	if s.token != "" && s.now().Before(s.expires) {
		token := s.token
		s.mu.Unlock()
		return token, nil
	}
	s.mu.Unlock()

	ch := s.group.DoChan("token", func() (interface{}, error) {
		return s.fetch(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Invalidate drops the cached token so the next call fetches a new one
func (s *TokenSource) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.expires = time.Time{}
}

func (s *TokenSource) fetch(ctx context.Context) (string, error) {
	form := url.Values{
		"client_id":     {s.clientID},
		"client_secret": {s.clientSecret},
		"grant_type":    {"client_credentials"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("requesting token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.logger.Error("token request failed", "status", resp.StatusCode)
		return "", &TokenError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", &TokenError{StatusCode: resp.StatusCode, Body: "response carried no access token"}
	}

	lifetime := time.Duration(tr.ExpiresIn)*time.Second - tokenExpiryMargin
	if lifetime < 0 {
		lifetime = 0
	}

	s.mu.Lock()
	s.token = tr.AccessToken
	s.expires = s.now().Add(lifetime)
	s.mu.Unlock()

	s.logger.Info("obtained igdb access token", "expires_in", tr.ExpiresIn)
	return tr.AccessToken, nil
}
