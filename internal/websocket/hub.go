package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/tullo/guardian/internal/cache"
	"github.com/tullo/guardian/internal/models"
)

// Hub maintains the set of active clients and fans review events out to the
// reviewers among them
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Review events for every reviewer
	broadcast chan []byte

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Redis client for pub/sub; nil runs the hub single-instance
	redis *cache.RedisClient

	log *zap.Logger

	// Closed when Run returns
	done chan struct{}

	// Mutex for thread-safe operations
	mu sync.RWMutex
}

// NewHub creates a new Hub
func NewHub(redis *cache.RedisClient, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		redis:      redis,
		log:        log.With(zap.String("module", "websocket")),
		done:       make(chan struct{}),
	}
}

// Run starts the hub and blocks until ctx ends
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	if h.redis != nil {
		go h.subscribeToRedis(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

			h.log.Info("Client registered", zap.String("user_id", client.userID), zap.String("role", client.role))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.close()
			}
			h.mu.Unlock()

			h.log.Info("Client unregistered", zap.String("user_id", client.userID))

		case message := <-h.broadcast:
			h.deliverToReviewers(message)
		}
	}
}

// deliverToReviewers sends message to every reviewer; a reviewer whose
// buffer is full is dropped.
func (h *Hub) deliverToReviewers(message []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		if !client.reviewer {
			continue
		}
		if !client.trySend(message) {
			client.close()
			delete(h.clients, client)
		}
	}
}

// Register adds client unless the hub has stopped
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes client unless the hub has stopped
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		client.close()
		delete(h.clients, client)
	}
}

// subscribeToRedis relays review events published by any instance
func (h *Hub) subscribeToRedis(ctx context.Context) {
	pubsub := h.redis.SubscribeToReviews(ctx)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var entry models.ReviewQueueEntry
			if err := json.Unmarshal([]byte(msg.Payload), &entry); err != nil {
				h.log.Warn("dropping malformed review event", zap.Error(err))
				continue
			}
			h.enqueue(&entry)
		}
	}
}

// NotifyReviewQueued announces entry to reviewers. With Redis the event goes
// through pub/sub so that every instance, this one included, delivers it
// exactly once.
func (h *Hub) NotifyReviewQueued(ctx context.Context, entry *models.ReviewQueueEntry) error {
	if h.redis != nil {
		return h.redis.NotifyReviewQueued(ctx, entry)
	}
	h.enqueue(entry)
	return nil
}

func (h *Hub) enqueue(entry *models.ReviewQueueEntry) {
	data, err := json.Marshal(models.WSMessage{Event: models.EventReviewQueued, Payload: entry})
	if err != nil {
		h.log.Error("failed to encode review event", zap.Error(err))
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.log.Warn("review feed backlog full, dropping event", zap.String("entry_id", entry.ID.String()))
	}
}

// OnlineReviewers returns the number of connected reviewer sessions
func (h *Hub) OnlineReviewers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for client := range h.clients {
		if client.reviewer {
			n++
		}
	}
	return n
}
