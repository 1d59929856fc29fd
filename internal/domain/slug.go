package domain

import (
	"fmt"
	"strings"
)

// Slugify derives the URL slug of a game name: lowercase, every run of
// characters outside [a-z0-9] collapsed to one hyphen, no leading or trailing hyphen.
func Slugify(name string) string {
	lower := strings.ToLower(name)

	var b strings.Builder
	b.Grow(len(lower))
	pendingHyphen := false
	for i := 0; i < len(lower); i++ {
		ch := lower[i]
		if (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteByte(ch)
			continue
		}
		pendingHyphen = true
	}
	return b.String()
}

// Detail route prefixes. GameRoute is the client-side page a result navigates
// to; APIGameRoute is where the HTTP API serves the same detail view.
const (
	GameRoute    = "/game"
	APIGameRoute = "/api/v1/games"
)

// GamePath returns the client-side detail route of a game
func GamePath(id int64, name string) string {
	return gamePath(GameRoute, id, name)
}

// APIGamePath returns the API location of a game's detail view
func APIGamePath(id int64, name string) string {
	return gamePath(APIGameRoute, id, name)
}

func gamePath(prefix string, id int64, name string) string {
	return fmt.Sprintf("%s/%d/%s", prefix, id, Slugify(name))
}
