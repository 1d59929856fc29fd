package websocket

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamedex/internal/domain"
	"github.com/gamedex/internal/search"
)

type fixedSearcher struct {
	results []domain.SearchResult
}

func (s fixedSearcher) Search(ctx context.Context, query string, limit int) ([]domain.SearchResult, error) {
	var out []domain.SearchResult
	for _, r := range s.results {
		if strings.Contains(strings.ToLower(r.Name), strings.ToLower(query)) {
			out = append(out, r)
		}
	}
	return out, nil
}

type receivedMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func startHub(t *testing.T) (*Hub, *websocket.Conn) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	searcher := fixedSearcher{results: []domain.SearchResult{
		{ID: 1942, Name: "The Witcher 3: Wild Hunt"},
		{ID: 7346, Name: "The Legend of Zelda: Breath of the Wild"},
	}}
	hub := NewHub(searcher, search.Options{Debounce: 10 * time.Millisecond, Limit: 5}, logger)
	go hub.Run()
	t.Cleanup(hub.Stop)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, logger, w, r)
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return hub.GetTotalConnections() == 1 }, 2*time.Second, 5*time.Millisecond)
	return hub, conn
}

func readUntil(t *testing.T, conn *websocket.Conn, msgType string, match func(json.RawMessage) bool) json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var msg receivedMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == msgType && (match == nil || match(msg.Data)) {
			return msg.Data
		}
	}
}

func hasStatus(status search.Status) func(json.RawMessage) bool {
	return func(data json.RawMessage) bool {
		var state search.State
		return json.Unmarshal(data, &state) == nil && state.Status == status
	}
}

func TestSearchSessionOverWebSocket(t *testing.T) {
	_, conn := startHub(t)

	for _, q := range []string{"w", "wi", "witcher"} {
		require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageTypeQuery, Query: q}))
	}

	data := readUntil(t, conn, MessageTypeSearchState, hasStatus(search.StatusResults))
	var state search.State
	require.NoError(t, json.Unmarshal(data, &state))
	assert.Equal(t, "witcher", state.Query)
	require.Len(t, state.Results, 1)
	assert.Equal(t, int64(1942), state.Results[0].ID)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageTypeSelect, GameID: 1942, Name: "The Witcher 3: Wild Hunt"}))
	data = readUntil(t, conn, MessageTypeNavigate, nil)
	var nav search.Navigation
	require.NoError(t, json.Unmarshal(data, &nav))
	assert.Equal(t, "/game/1942/the-witcher-3-wild-hunt", nav.Path)
}

func TestSearchSessionEmptyAndClear(t *testing.T) {
	_, conn := startHub(t)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageTypeQuery, Query: "nothing matches"}))
	readUntil(t, conn, MessageTypeSearchState, hasStatus(search.StatusEmpty))

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageTypeClear}))
	readUntil(t, conn, MessageTypeSearchState, hasStatus(search.StatusIdle))
}

func TestCollectionUpdateBroadcast(t *testing.T) {
	hub, conn := startHub(t)

	hub.CollectionChanged(context.Background(), domain.CollectionEvent{
		Type:   domain.EventGameAdded,
		GameID: 7346,
		Name:   "The Legend of Zelda: Breath of the Wild",
		Count:  1,
	})

	data := readUntil(t, conn, MessageTypeCollectionUpdate, nil)
	var event domain.CollectionEvent
	require.NoError(t, json.Unmarshal(data, &event))
	assert.Equal(t, int64(7346), event.GameID)
	assert.Equal(t, 1, event.Count)
}

func TestPingAndErrors(t *testing.T) {
	hub, conn := startHub(t)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageTypePing}))
	readUntil(t, conn, MessageTypePong, nil)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	readUntil(t, conn, MessageTypeError, nil)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageTypeSelect}))
	readUntil(t, conn, MessageTypeError, nil)

	conn.Close()
	require.Eventually(t, func() bool { return hub.GetTotalConnections() == 0 }, 2*time.Second, 5*time.Millisecond)
}
