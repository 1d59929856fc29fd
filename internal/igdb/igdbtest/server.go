// Package igdbtest provides an in-process fake of the IGDB API and token endpoint.
package igdbtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gamedex/internal/config"
	"github.com/gamedex/internal/domain"
)

const (
	ClientID     = "test-client"
	ClientSecret = "test-secret"
	tokenPrefix  = "token-"
)

var (
	searchPattern = regexp.MustCompile(`search "((?:[^"\\]|\\.)*)";`)
	idPattern     = regexp.MustCompile(`where id = (\d+);`)
	idsPattern    = regexp.MustCompile(`where id = \(([\d,]*)\);`)
	limitPattern  = regexp.MustCompile(`limit (\d+);`)
)

// Server is a fake IGDB provider holding a fixed set of games
type Server struct {
	*httptest.Server

	mu            sync.Mutex
	games         map[int64]domain.Game
	tokenRequests int
	gameRequests  int
	bodies        []string
	issued        int
	failStatus    int
	tokenStatus   int
	rejectNext    int
	delay         time.Duration
	padding       int
}

// NewServer starts a fake provider serving games
func NewServer(games ...domain.Game) *Server {
	s := &Server{games: make(map[int64]domain.Game)}
	for _, g := range games {
		s.games[g.ID] = g
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token", s.handleToken)
	mux.HandleFunc("/games", s.handleGames)
	s.Server = httptest.NewServer(mux)
	return s
}

// Config returns provider configuration pointing at the fake
func (s *Server) Config() *config.IGDBConfig {
	return &config.IGDBConfig{
		ClientID:     ClientID,
		ClientSecret: ClientSecret,
		BaseURL:      s.URL,
		TokenURL:     s.URL + "/oauth2/token",
		ImageBaseURL: "https://images.example.test/upload",
		Timeout:      5 * time.Second,
	}
}

// FailGames makes every games request answer with status; 0 restores normal behavior
func (s *Server) FailGames(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failStatus = status
}

// FailToken makes every token request answer with status
func (s *Server) FailToken(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenStatus = status
}

// RejectTokens makes the next n games requests answer 401
func (s *Server) RejectTokens(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectNext = n
}

// SetDelay delays every games response
func (s *Server) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// PadGames appends n bytes of trailing whitespace to every games response
func (s *Server) PadGames(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.padding = n
}

// TokenRequests returns the number of token exchanges served
func (s *Server) TokenRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokenRequests
}

// GameRequests returns the number of games requests served
func (s *Server) GameRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gameRequests
}

// Bodies returns every games request body received
func (s *Server) Bodies() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.bodies...)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.tokenRequests++
	s.issued++
	issued := s.issued
	status := s.tokenStatus
	s.mu.Unlock()

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	if status != 0 {
		http.Error(w, "token endpoint unavailable", status)
		return
	}
	if r.PostForm.Get("client_id") != ClientID || r.PostForm.Get("client_secret") != ClientSecret ||
		r.PostForm.Get("grant_type") != "client_credentials" {
		http.Error(w, `{"status":400,"message":"invalid client secret"}`, http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"access_token": tokenPrefix + strconv.Itoa(issued),
		"expires_in":   3600,
		"token_type":   "bearer",
	})
}

func (s *Server) handleGames(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	body := string(data)

	s.mu.Lock()
	s.gameRequests++
	s.bodies = append(s.bodies, body)
	failStatus := s.failStatus
	reject := s.rejectNext > 0
	if reject {
		s.rejectNext--
	}
	delay := s.delay
	padding := s.padding
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if r.Method != http.MethodPost || r.Header.Get("Client-ID") != ClientID ||
		r.Header.Get("Content-Type") != "text/plain" ||
		!strings.HasPrefix(r.Header.Get("Authorization"), "Bearer "+tokenPrefix) {
		http.Error(w, `{"message":"bad request headers"}`, http.StatusBadRequest)
		return
	}
	if reject {
		http.Error(w, `{"message":"Authorization Failure"}`, http.StatusUnauthorized)
		return
	}
	if failStatus != 0 {
		http.Error(w, `{"message":"upstream failure"}`, failStatus)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.match(body))
	if padding > 0 {
		w.Write([]byte(strings.Repeat(" ", padding)))
	}
}

func (s *Server) match(body string) []domain.Game {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Game
	switch {
	case searchPattern.MatchString(body):
		text := searchPattern.FindStringSubmatch(body)[1]
		text = strings.NewReplacer(`\"`, `"`, `\\`, `\`).Replace(text)
		needle := strings.ToLower(text)
		for _, g := range s.games {
			if strings.Contains(strings.ToLower(g.Name), needle) {
				out = append(out, reduce(g))
			}
		}
	case idsPattern.MatchString(body):
		for _, raw := range strings.Split(idsPattern.FindStringSubmatch(body)[1], ",") {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				continue
			}
			if g, ok := s.games[id]; ok {
				out = append(out, reduce(g))
			}
		}
	case idPattern.MatchString(body):
		id, _ := strconv.ParseInt(idPattern.FindStringSubmatch(body)[1], 10, 64)
		if g, ok := s.games[id]; ok {
			out = append(out, g)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	if m := limitPattern.FindStringSubmatch(body); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n < len(out) {
			out = out[:n]
		}
	}
	if out == nil {
		out = []domain.Game{}
	}
	return out
}

func reduce(g domain.Game) domain.Game {
	return domain.Game{
		ID:               g.ID,
		Name:             g.Name,
		Cover:            g.Cover,
		FirstReleaseDate: g.FirstReleaseDate,
	}
}

// Game builds a fixture game
func Game(id int64, name string, released int64, similar ...int64) domain.Game {
	rating := 85.5
	count := 120
	return domain.Game{
		ID:               id,
		Name:             name,
		Summary:          fmt.Sprintf("%s summary", name),
		Rating:           &rating,
		RatingCount:      &count,
		FirstReleaseDate: &released,
		Cover:            &domain.Image{ID: id * 10, ImageID: fmt.Sprintf("co%d", id)},
		Screenshots:      []domain.Image{{ID: id*10 + 1, ImageID: fmt.Sprintf("sc%d", id)}},
		Platforms:        []domain.Platform{{ID: 6, Name: "PC (Microsoft Windows)"}},
		SimilarGames:     similar,
	}
}
