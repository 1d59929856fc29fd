package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/gamedex/internal/domain"
	"github.com/gamedex/internal/search"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one WebSocket connection with its own search session
type Client struct {
	id       string
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	searcher *search.Controller
	logger   *slog.Logger
}

// ClientMessage represents a message from the client
type ClientMessage struct {
	Type   string `json:"type"`
	Query  string `json:"query,omitempty"`
	GameID int64  `json:"game_id,omitempty"`
	Name   string `json:"name,omitempty"`
}

// NewClient creates a new WebSocket client
func NewClient(hub *Hub, conn *websocket.Conn, logger *slog.Logger) *Client {
	id := uuid.New().String()
	logger = logger.With("client_id", id)

	c := &Client{
		id:       id,
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, 256),
		searcher: search.NewController(hub.searcher, logger, hub.searchOpts),
		logger:   logger,
	}
	c.searcher.OnState(func(state search.State) {
		c.sendMessage(MessageTypeSearchState, state)
	})
	c.searcher.OnNavigate(func(nav search.Navigation) {
		c.sendMessage(MessageTypeNavigate, nav)
	})
	return c
}

// readPump pumps messages from the WebSocket connection into the search session
func (c *Client) readPump() {
	defer func() {
		// no state may be emitted once the hub has closed the send channel
		c.searcher.Close()
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket error", "error", err)
			}
			break
		}

		var clientMsg ClientMessage
		if err := json.Unmarshal(message, &clientMsg); err != nil {
			c.logger.Warn("invalid message format", "error", err)
			c.sendError("invalid message format")
			continue
		}

		c.handleMessage(&clientMsg)
	}
}

// handleMessage processes incoming client messages
func (c *Client) handleMessage(msg *ClientMessage) {
	switch msg.Type {
	case MessageTypeQuery:
		c.searcher.SetQuery(msg.Query)

	case MessageTypeSelect:
		if msg.GameID <= 0 {
			c.sendError("game_id required for select")
			return
		}
		c.searcher.Select(domain.SearchResult{ID: msg.GameID, Name: msg.Name})

	case MessageTypeClear:
		c.searcher.Clear()

	case MessageTypePing:
		c.sendMessage(MessageTypePong, nil)

	default:
		c.logger.Debug("unknown message type", "type", msg.Type)
		c.sendError("unknown message type")
	}
}

// writePump pumps messages from the hub to the WebSocket connection, one frame per message
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendMessage queues a message without blocking
func (c *Client) sendMessage(msgType string, data interface{}) {
	msg := Message{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("failed to marshal message", "type", msgType, "error", err)
		return
	}
	select {
	case c.send <- payload:
	default:
		c.logger.Warn("client buffer full, dropping message", "type", msgType)
	}
}

// sendError sends an error message to the client
func (c *Client) sendError(errMsg string) {
	c.sendMessage(MessageTypeError, map[string]string{"error": errMsg})
}

// ServeWs handles WebSocket requests from peers
func ServeWs(hub *Hub, logger *slog.Logger, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(hub, conn, logger)
	hub.Register(client)

	// Start client goroutines
	go client.writePump()
	go client.readPump()

	logger.Debug("new websocket connection", "client_id", client.id)
}
