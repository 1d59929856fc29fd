package collection

import (
	"sort"

	"github.com/gamedex/internal/domain"
)

// SortEntries orders entries in place. Release date sorts newest first with
// unknown dates last; date added sorts oldest first. Ties keep their input order.
func SortEntries(entries []domain.CollectionEntry, key domain.SortKey) {
	switch key {
	case domain.SortByReleaseDate:
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].ReleaseDate() > entries[j].ReleaseDate()
		})
	default:
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].DateAdded.Int64() < entries[j].DateAdded.Int64()
		})
	}
}
