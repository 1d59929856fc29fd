package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"punctuation", "The Witcher 3: Wild Hunt", "the-witcher-3-wild-hunt"},
		{"leading and trailing", "  --Halo--  ", "halo"},
		{"runs collapse", "Ratchet & Clank: Rift Apart", "ratchet-clank-rift-apart"},
		{"non ascii", "Pokémon Sword", "pok-mon-sword"},
		{"already canonical", "celeste", "celeste"},
		{"nothing usable", "!!!", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Slugify(tt.in))
		})
	}
}

func TestGamePath(t *testing.T) {
	assert.Equal(t, "/game/1942/the-witcher-3-wild-hunt", GamePath(1942, "The Witcher 3: Wild Hunt"))
	assert.Equal(t, "/api/v1/games/1942/the-witcher-3-wild-hunt", APIGamePath(1942, "The Witcher 3: Wild Hunt"))
}

func TestMillis(t *testing.T) {
	tests := []struct {
		raw     string
		present bool
		value   int64
	}{
		{`1000`, true, 1000},
		{`"2000"`, true, 2000},
		{`"2000abc"`, true, 2000},
		{`"abc"`, true, 0},
		{`"0"`, true, 0},
		{`0`, false, 0},
		{`""`, false, 0},
		{`null`, false, 0},
		{`1.5e3`, true, 1500},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			var m Millis
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &m))
			assert.Equal(t, tt.present, m.Present())
			assert.Equal(t, tt.value, m.Int64())

			out, err := json.Marshal(m)
			require.NoError(t, err)
			assert.Equal(t, tt.raw, string(out))
		})
	}
}

func TestParseSortKey(t *testing.T) {
	key, err := ParseSortKey("")
	require.NoError(t, err)
	assert.Equal(t, SortByDateAdded, key)

	key, err = ParseSortKey("releaseDate")
	require.NoError(t, err)
	assert.Equal(t, SortByReleaseDate, key)

	_, err = ParseSortKey("name")
	assert.ErrorIs(t, err, ErrInvalidSortKey)
}

func TestRatingLabel(t *testing.T) {
	assert.Equal(t, RatingExcellent, RatingLabel(92.4))
	assert.Equal(t, RatingExcellent, RatingLabel(80))
	assert.Equal(t, RatingGood, RatingLabel(60))
	assert.Equal(t, RatingFair, RatingLabel(59.9))
}

func TestCollectionPutKeepsPosition(t *testing.T) {
	c := NewCollection()
	c.Put(CollectionEntry{Game: Game{ID: 1, Name: "A"}, DateAdded: NewMillis(10)})
	c.Put(CollectionEntry{Game: Game{ID: 2, Name: "B"}, DateAdded: NewMillis(20)})
	c.Put(CollectionEntry{Game: Game{ID: 1, Name: "A2"}, DateAdded: NewMillis(30)})

	entries := c.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, int64(1), entries[0].ID)
	assert.Equal(t, "A2", entries[0].Name)
	assert.Equal(t, int64(30), entries[0].DateAdded.Int64())

	assert.True(t, c.Delete(1))
	assert.False(t, c.Delete(1))
	assert.Equal(t, 1, c.Len())
	assert.False(t, c.Has(1))
}

func TestCollectionMarshalJSON(t *testing.T) {
	c := NewCollection()
	c.Put(CollectionEntry{Game: Game{ID: 7, Name: "Seven"}, DateAdded: NewMillis(5)})
	c.Put(CollectionEntry{Game: Game{ID: 3, Name: "Three"}, DateAdded: NewMillis(6)})

	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.Equal(t, `{"7":{"id":7,"name":"Seven","screenshots":[],"platforms":[],"similar_games":[],"dateAdded":5},"3":{"id":3,"name":"Three","screenshots":[],"platforms":[],"similar_games":[],"dateAdded":6}}`, string(data))
}

func TestCollectionClone(t *testing.T) {
	c := NewCollection()
	c.Put(CollectionEntry{Game: Game{ID: 1, Name: "A"}, DateAdded: NewMillis(1)})

	clone := c.Clone()
	clone.Put(CollectionEntry{Game: Game{ID: 2, Name: "B"}, DateAdded: NewMillis(2)})

	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 2, clone.Len())
}

func TestDecodeStoredEntry(t *testing.T) {
	t.Run("legacy", func(t *testing.T) {
		entry, err := DecodeStoredEntry(12, []byte(`{"id":12,"name":"Old"}`))
		require.NoError(t, err)
		legacy, ok := entry.(LegacyEntry)
		require.True(t, ok)
		assert.Equal(t, "Old", legacy.Game.Name)
	})

	t.Run("migrated keeps string timestamp", func(t *testing.T) {
		entry, err := DecodeStoredEntry(12, []byte(`{"id":12,"name":"New","dateAdded":"2000"}`))
		require.NoError(t, err)
		migrated, ok := entry.(MigratedEntry)
		require.True(t, ok)
		assert.Equal(t, int64(2000), migrated.Entry.DateAdded.Int64())
	})

	t.Run("key wins over body", func(t *testing.T) {
		entry, err := DecodeStoredEntry(5, []byte(`{"name":"No id"}`))
		require.NoError(t, err)
		assert.Equal(t, int64(5), entry.GameID())
	})

	t.Run("body id used without key", func(t *testing.T) {
		entry, err := DecodeStoredEntry(0, []byte(`{"id":9,"name":"Body"}`))
		require.NoError(t, err)
		assert.Equal(t, int64(9), entry.GameID())
	})

	t.Run("rejects", func(t *testing.T) {
		for _, raw := range []string{`null`, `42`, `"x"`, `[]`, `{"name":"x"}`} {
			_, err := DecodeStoredEntry(0, []byte(raw))
			assert.Error(t, err, raw)
		}
	})
}

func TestCollectionCommandValidate(t *testing.T) {
	assert.NoError(t, CollectionCommand{Action: CommandAdd, GameID: 1}.Validate())
	assert.NoError(t, CollectionCommand{Action: CommandRemove, GameID: 1}.Validate())
	assert.ErrorIs(t, CollectionCommand{Action: "rename", GameID: 1}.Validate(), ErrInvalidRequest)
	assert.ErrorIs(t, CollectionCommand{Action: CommandAdd}.Validate(), ErrInvalidRequest)
}
