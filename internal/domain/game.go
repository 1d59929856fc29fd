package domain

import (
	"time"
)

// Image references a provider-hosted image by its opaque image id
type Image struct {
	ID      int64  `json:"id"`
	ImageID string `json:"image_id"`
}

// Platform is a platform a game was released on
type Platform struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Game is the full detail record of a game as returned by the metadata provider
type Game struct {
	ID               int64      `json:"id"`
	Name             string     `json:"name"`
	Summary          string     `json:"summary,omitempty"`
	Rating           *float64   `json:"rating,omitempty"`
	RatingCount      *int       `json:"rating_count,omitempty"`
	FirstReleaseDate *int64     `json:"first_release_date,omitempty"`
	Cover            *Image     `json:"cover,omitempty"`
	Screenshots      []Image    `json:"screenshots"`
	Platforms        []Platform `json:"platforms"`
	SimilarGames     []int64    `json:"similar_games"`
}

// Normalized returns the game with nil lists replaced by empty ones, so an
// encoded game always carries its list fields as [] rather than null
func (g Game) Normalized() Game {
	if g.Screenshots == nil {
		g.Screenshots = []Image{}
	}
	if g.Platforms == nil {
		g.Platforms = []Platform{}
	}
	if g.SimilarGames == nil {
		g.SimilarGames = []int64{}
	}
	return g
}

// SearchResult is the reduced projection of a game used in search dropdowns
// and similar-games listings
type SearchResult struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	Cover            *Image `json:"cover,omitempty"`
	FirstReleaseDate *int64 `json:"first_release_date,omitempty"`
}

// Result projects a game to a search result
func (g Game) Result() SearchResult {
	return SearchResult{
		ID:               g.ID,
		Name:             g.Name,
		Cover:            g.Cover,
		FirstReleaseDate: g.FirstReleaseDate,
	}
}

// ReleaseDate returns the first release timestamp in epoch seconds, 0 when unknown
func (g Game) ReleaseDate() int64 {
	if g.FirstReleaseDate == nil {
		return 0
	}
	return *g.FirstReleaseDate
}

// ReleaseYear returns the UTC year of the first release, 0 when unknown
func (g Game) ReleaseYear() int {
	if g.FirstReleaseDate == nil {
		return 0
	}
	return time.Unix(*g.FirstReleaseDate, 0).UTC().Year()
}

// PlatformNames returns the names of the platforms the game was released on
func (g Game) PlatformNames() []string {
	names := make([]string, 0, len(g.Platforms))
	for _, p := range g.Platforms {
		names = append(names, p.Name)
	}
	return names
}

// Rating labels
const (
	RatingExcellent = "Excellent"
	RatingGood      = "Good"
	RatingFair      = "Fair"
)

// RatingLabel buckets a 0-100 rating
func RatingLabel(rating float64) string {
	switch {
	case rating >= 80:
		return RatingExcellent
	case rating >= 60:
		return RatingGood
	default:
		return RatingFair
	}
}

// SortKey selects the order of a sorted collection listing
type SortKey string

const (
	SortByDateAdded   SortKey = "dateAdded"
	SortByReleaseDate SortKey = "releaseDate"
)

// ParseSortKey parses a sort key, defaulting to date added
func ParseSortKey(s string) (SortKey, error) {
	switch SortKey(s) {
	case "", SortByDateAdded:
		return SortByDateAdded, nil
	case SortByReleaseDate:
		return SortByReleaseDate, nil
	default:
		return "", ErrInvalidSortKey
	}
}

// CollectionEvent types
const (
	EventGameAdded   = "added"
	EventGameRemoved = "removed"
)

// CollectionEvent describes an effective change to the collection
type CollectionEvent struct {
	Type      string    `json:"type"`
	GameID    int64     `json:"game_id"`
	Name      string    `json:"name,omitempty"`
	DateAdded int64     `json:"date_added,omitempty"`
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}

// Collection command actions
const (
	CommandAdd    = "add"
	CommandRemove = "remove"
)

// CollectionCommand is a queued request to mutate the collection
type CollectionCommand struct {
	Action string `json:"action"`
	GameID int64  `json:"game_id"`
	Game   *Game  `json:"game,omitempty"`
}

// Validate checks that the command can be applied
func (c CollectionCommand) Validate() error {
	if c.GameID <= 0 {
		return ErrInvalidRequest
	}
	switch c.Action {
	case CommandAdd, CommandRemove:
		return nil
	default:
		return ErrInvalidRequest
	}
}
