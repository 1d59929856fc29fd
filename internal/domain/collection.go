package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Millis is an epoch-millisecond timestamp kept in the exact JSON form it was
// stored in. Older collections wrote date-added values as numeric strings, so a
// value may be either a JSON number or a JSON string.
type Millis struct {
	raw string
}

// NewMillis creates a numeric timestamp
func NewMillis(ms int64) Millis {
	return Millis{raw: strconv.FormatInt(ms, 10)}
}

// MillisOf creates a numeric timestamp from a time
func MillisOf(t time.Time) Millis {
	return NewMillis(t.UnixMilli())
}

// Present reports whether a usable date-added value was stored.
// Absent, null, false, 0 and "" all count as missing.
func (m Millis) Present() bool {
	switch m.raw {
	case "", "null", "false", `""`:
		return false
	}
	if m.raw[0] == '"' {
		return true
	}
	f, err := strconv.ParseFloat(m.raw, 64)
	if err != nil {
		return true
	}
	return f != 0
}

// Int64 coerces the stored value to milliseconds. Numeric strings are parsed by
// their leading integer; anything non-numeric is 0.
func (m Millis) Int64() int64 {
	if m.raw == "" {
		return 0
	}
	if m.raw[0] == '"' {
		var s string
		if err := json.Unmarshal([]byte(m.raw), &s); err != nil {
			return 0
		}
		return parseLeadingInt(s)
	}
	if n, err := strconv.ParseInt(m.raw, 10, 64); err == nil {
		return n
	}
	f, err := strconv.ParseFloat(m.raw, 64)
	if err != nil {
		return 0
	}
	return int64(f)
}

// parseLeadingInt reads an optionally signed run of digits after leading whitespace
func parseLeadingInt(s string) int64 {
	s = strings.TrimLeft(s, " \t\r\n")
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// MarshalJSON writes the value back in its stored form
func (m Millis) MarshalJSON() ([]byte, error) {
	if m.raw == "" {
		return []byte("null"), nil
	}
	return []byte(m.raw), nil
}

// UnmarshalJSON keeps the raw JSON value
func (m *Millis) UnmarshalJSON(data []byte) error {
	m.raw = string(bytes.TrimSpace(data))
	return nil
}

// CollectionEntry is a game saved to the collection together with the time it was added
type CollectionEntry struct {
	Game
	DateAdded Millis `json:"dateAdded"`
}

// Collection maps game ids to entries and remembers insertion order.
// Overwriting an existing id keeps its position.
type Collection struct {
	order   []int64
	entries map[int64]CollectionEntry
}

// NewCollection creates an empty collection
func NewCollection() *Collection {
	return &Collection{entries: make(map[int64]CollectionEntry)}
}

// Put inserts or replaces the entry for its game id
func (c *Collection) Put(entry CollectionEntry) {
	entry.Game = entry.Game.Normalized()
	if c.entries == nil {
		c.entries = make(map[int64]CollectionEntry)
	}
	if _, ok := c.entries[entry.ID]; !ok {
		c.order = append(c.order, entry.ID)
	}
	c.entries[entry.ID] = entry
}

// Delete removes the entry for id and reports whether it existed
func (c *Collection) Delete(id int64) bool {
	if _, ok := c.entries[id]; !ok {
		return false
	}
	delete(c.entries, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true
}

// Get returns the entry for id
func (c *Collection) Get(id int64) (CollectionEntry, bool) {
	entry, ok := c.entries[id]
	return entry, ok
}

// Has reports whether id is in the collection
func (c *Collection) Has(id int64) bool {
	_, ok := c.entries[id]
	return ok
}

// Len returns the number of entries
func (c *Collection) Len() int {
	return len(c.entries)
}

// Entries returns the entries in insertion order
func (c *Collection) Entries() []CollectionEntry {
	out := make([]CollectionEntry, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.entries[id])
	}
	return out
}

// Clone returns a copy that shares no mutable state with c
func (c *Collection) Clone() *Collection {
	clone := &Collection{
		order:   make([]int64, len(c.order)),
		entries: make(map[int64]CollectionEntry, len(c.entries)),
	}
	copy(clone.order, c.order)
	for id, entry := range c.entries {
		clone.entries[id] = entry
	}
	return clone
}

// MarshalJSON encodes the collection as an object keyed by stringified game id,
// in insertion order
func (c *Collection) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range c.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		data, err := json.Marshal(c.entries[id])
		if err != nil {
			return nil, fmt.Errorf("encoding entry %d: %w", id, err)
		}
		buf.WriteString(strconv.Quote(strconv.FormatInt(id, 10)))
		buf.WriteByte(':')
		buf.Write(data)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// StoredEntry is one record read back from storage, either still lacking a
// date-added value (LegacyEntry) or already carrying one (MigratedEntry)
type StoredEntry interface {
	GameID() int64
	storedEntry()
}

// LegacyEntry is a stored game saved before date-added tracking existed
type LegacyEntry struct {
	Game Game
}

// GameID returns the id of the stored game
func (e LegacyEntry) GameID() int64 { return e.Game.ID }

// Migrate stamps the legacy record with a date-added value
func (e LegacyEntry) Migrate(dateAdded Millis) CollectionEntry {
	return CollectionEntry{Game: e.Game, DateAdded: dateAdded}
}

func (LegacyEntry) storedEntry() {}

// MigratedEntry is a stored record that already has a date-added value
type MigratedEntry struct {
	Entry CollectionEntry
}

// GameID returns the id of the stored game
func (e MigratedEntry) GameID() int64 { return e.Entry.ID }

func (MigratedEntry) storedEntry() {}

// Snapshot is the stored collection in storage order
type Snapshot []StoredEntry

// DecodeStoredEntry classifies a stored record. key is the id the record was
// stored under; when it is 0 the id in the record body is used instead.
func DecodeStoredEntry(key int64, raw []byte) (StoredEntry, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, fmt.Errorf("stored entry is not an object")
	}

	var entry CollectionEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decoding stored entry: %w", err)
	}
	if key > 0 {
		entry.ID = key
	}
	if entry.ID <= 0 {
		return nil, fmt.Errorf("stored entry has no game id")
	}

	if !entry.DateAdded.Present() {
		return LegacyEntry{Game: entry.Game}, nil
	}
	return MigratedEntry{Entry: entry}, nil
}
