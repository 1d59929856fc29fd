package collection

import (
	"time"

	"github.com/gamedex/internal/domain"
)

// Migrate builds a collection from a stored snapshot. Each legacy entry at
// position index of n receives the synthetic date added now - (n-index) seconds,
// which keeps migrated entries ascending in storage order and in the past.
// It reports how many entries were migrated.
func Migrate(snapshot domain.Snapshot, now time.Time) (*domain.Collection, int) {
	c := domain.NewCollection()
	n := int64(len(snapshot))
	nowMs := now.UnixMilli()
	migrated := 0

	for index, stored := range snapshot {
		switch entry := stored.(type) {
		case domain.MigratedEntry:
			c.Put(entry.Entry)
		case domain.LegacyEntry:
			dateAdded := nowMs - (n-int64(index))*1000
			c.Put(entry.Migrate(domain.NewMillis(dateAdded)))
			migrated++
		}
	}
	return c, migrated
}
