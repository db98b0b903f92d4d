package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tullo/guardian/internal/models"
	"github.com/tullo/guardian/internal/moderation"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 10240 // 10KB

	// Upper bound for one moderation.submit round trip
	submitTimeout = 15 * time.Second
)

// Moderator produces verdicts.
type Moderator interface {
	Moderate(ctx context.Context, req models.ModerationRequest) (*models.ModerationResult, error)
}

// Client represents a WebSocket client
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	send        chan []byte
	userID      string
	role        string
	reviewer    bool
	connectedAt time.Time

	moderator Moderator
	limiter   *rate.Limiter
	log       *zap.Logger

	// Guards send against writes after close
	mu     sync.Mutex
	closed bool
}

// NewClient creates a new WebSocket client
func NewClient(hub *Hub, conn *websocket.Conn, userID, role string, reviewer bool, moderator Moderator) *Client {
	return &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, 256),
		userID:      userID,
		role:        role,
		reviewer:    reviewer,
		connectedAt: time.Now(),
		moderator:   moderator,
		limiter:     rate.NewLimiter(rate.Every(time.Second), 20),
		log:         hub.log.With(zap.String("user_id", userID)),
	}
}

// ReadPump pumps messages from the WebSocket connection to the moderator
func (c *Client) ReadPump() {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("WebSocket error", zap.Error(err))
			}
			break
		}

		if !c.limiter.Allow() {
			c.sendError("Rate limit exceeded", "rate_limited")
			continue
		}

		c.handleMessage(ctx, message)
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump() {
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

			// One frame per event so clients can decode each frame as JSON
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

// handleMessage handles incoming WebSocket messages
func (c *Client) handleMessage(ctx context.Context, data []byte) {
	var wsMsg struct {
		Event   string          `json:"event"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &wsMsg); err != nil {
		c.sendError("Invalid message format", "bad_request")
		return
	}

	switch wsMsg.Event {
	case models.EventModerationSubmit:
		c.handleSubmit(ctx, wsMsg.Payload)

	default:
		c.sendError("Unknown event type", "bad_request")
	}
}

// handleSubmit moderates content on behalf of the connected user
func (c *Client) handleSubmit(ctx context.Context, payload json.RawMessage) {
	var req models.WSModerationSubmitPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		c.sendError("Invalid submit payload", "bad_request")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()

	result, err := c.moderator.Moderate(ctx, models.ModerationRequest{
		Content:     req.Content,
		ContentType: models.ContentType(req.Type),
		AuthorID:    c.userID,
		MediaRefs:   req.MediaRefs,
	})
	if err != nil {
		if errors.Is(err, moderation.ErrInvalidRequest) {
			c.sendError(err.Error(), "invalid_request")
			return
		}
		c.log.Error("moderation failed", zap.Error(err))
		c.sendError("Moderation failed", "internal")
		return
	}

	c.sendEvent(models.EventModerationResult, result)
}

func (c *Client) sendEvent(event string, payload interface{}) {
	data, err := json.Marshal(models.WSMessage{Event: event, Payload: payload})
	if err != nil {
		c.log.Error("failed to encode event", zap.String("event", event), zap.Error(err))
		return
	}
	c.trySend(data)
}

// trySend queues data without blocking. It reports false when the buffer is
// full or the client is closed.
func (c *Client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// close stops delivery and lets WritePump say goodbye
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// sendError sends an error message to the client
func (c *Client) sendError(message, code string) {
	c.sendEvent(models.EventError, models.WSErrorPayload{Message: message, Code: code})
}
