package igdb

import (
	"strconv"
	"strings"
)

// Field sets requested from the games endpoint
var (
	SearchFields = []string{"id", "name", "cover.image_id", "first_release_date"}
	DetailFields = []string{
		"id", "name", "summary", "rating", "rating_count", "first_release_date",
		"cover.image_id", "screenshots.image_id", "platforms.name", "similar_games",
	}
)

// SimilarGamesLimit caps batch lookups of related games
const SimilarGamesLimit = 6

// Query builds an apicalypse request body
type Query struct {
	search string
	fields []string
	where  string
	limit  int
}

// NewQuery starts a query selecting fields
func NewQuery(fields ...string) *Query {
	return &Query{fields: fields}
}

// Search adds a full-text search clause
func (q *Query) Search(text string) *Query {
	q.search = text
	return q
}

// WhereID filters to a single id
func (q *Query) WhereID(id int64) *Query {
	q.where = "id = " + strconv.FormatInt(id, 10)
	return q
}

// WhereIDs filters to a set of ids
func (q *Query) WhereIDs(ids []int64) *Query {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	q.where = "id = (" + strings.Join(parts, ",") + ")"
	return q
}

// Limit caps the number of results
func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

// String renders the query body
func (q *Query) String() string {
	var b strings.Builder
	if q.search != "" {
		b.WriteString(`search "`)
		b.WriteString(escapeSearch(q.search))
		b.WriteString(`"; `)
	}
	b.WriteString("fields ")
	b.WriteString(strings.Join(q.fields, ","))
	b.WriteString(";")
	if q.where != "" {
		b.WriteString(" where ")
		b.WriteString(q.where)
		b.WriteString(";")
	}
	if q.limit > 0 {
		b.WriteString(" limit ")
		b.WriteString(strconv.Itoa(q.limit))
		b.WriteString(";")
	}
	return b.String()
}

func escapeSearch(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
