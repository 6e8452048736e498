// Package ws streams committed conversation messages to WebSocket subscribers.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/dhawansolanki/weavium-ai/internal/domain"
)

// EventTypeMessage tags a pushed conversation message.
const EventTypeMessage = "message"

// Event is the frame sent to subscribers.
type Event struct {
	Type    string         `json:"type"`
	Message domain.Message `json:"message"`
}

// Connection represents a single WebSocket subscriber.
type Connection struct {
	ID             string
	ConversationID string
	Conn           *websocket.Conn
	Send           chan []byte
	mu             sync.Mutex
}

type conversationFrame struct {
	conversationID string
	data           []byte
}

// Hub tracks subscribers per conversation and fans messages out to them.
type Hub struct {
	// Connections indexed by connection ID
	connections map[string]*Connection

	// conversations maps conversation_id to set of connection IDs
	conversations map[string]map[string]bool

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan conversationFrame
	done       chan struct{}
	stopOnce   sync.Once

	logger zerolog.Logger
	mu     sync.RWMutex
}

// NewHub creates a new Hub. Call Run to start it.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		connections:   make(map[string]*Connection),
		conversations: make(map[string]map[string]bool),
		register:      make(chan *Connection),
		unregister:    make(chan *Connection),
		broadcast:     make(chan conversationFrame, 256),
		done:          make(chan struct{}),
		logger:        logger.With().Str("component", "stream").Logger(),
	}
}

// Run processes registrations and broadcasts until ctx is done, then closes
// every connection's send channel.
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()
	for {
		select {
		case <-ctx.Done():
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.ID] = conn
			if h.conversations[conn.ConversationID] == nil {
				h.conversations[conn.ConversationID] = make(map[string]bool)
			}
			h.conversations[conn.ConversationID][conn.ID] = true
			h.mu.Unlock()
			h.logger.Debug().Str("connection_id", conn.ID).Str("conversation_id", conn.ConversationID).Msg("subscriber registered")

		case conn := <-h.unregister:
			h.remove(conn)

		case frame := <-h.broadcast:
			var slow []*Connection
			h.mu.RLock()
			for connID := range h.conversations[frame.conversationID] {
				conn, ok := h.connections[connID]
				if !ok {
					continue
				}
				select {
				case conn.Send <- frame.data:
				default:
					slow = append(slow, conn)
				}
			}
			h.mu.RUnlock()
			for _, conn := range slow {
				h.logger.Warn().Str("connection_id", conn.ID).Msg("subscriber buffer full, dropping")
				h.remove(conn)
			}
		}
	}
}

func (h *Hub) remove(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.connections[conn.ID]; !ok {
		return
	}
	delete(h.connections, conn.ID)
	if subs := h.conversations[conn.ConversationID]; subs != nil {
		delete(subs, conn.ID)
		if len(subs) == 0 {
			delete(h.conversations, conn.ConversationID)
		}
	}
	close(conn.Send)
	h.logger.Debug().Str("connection_id", conn.ID).Msg("subscriber unregistered")
}

func (h *Hub) shutdown() {
	h.stopOnce.Do(func() { close(h.done) })
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, conn := range h.connections {
		close(conn.Send)
		delete(h.connections, id)
	}
	h.conversations = make(map[string]map[string]bool)
}

// NewConnection wraps ws as a subscriber of conversationID.
func (h *Hub) NewConnection(ws *websocket.Conn, conversationID string) *Connection {
	return &Connection{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Conn:           ws,
		Send:           make(chan []byte, 64),
	}
}

// ErrHubStopped is returned when registering with a hub that is not running.
var ErrHubStopped = errors.New("stream hub stopped")

// Register adds a subscriber.
func (h *Hub) Register(conn *Connection) error {
	select {
	case h.register <- conn:
		return nil
	case <-h.done:
		return ErrHubStopped
	}
}

// Unregister removes a subscriber. It is safe to call more than once.
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// Publish queues msg for the subscribers of its conversation. It never
// blocks; when the queue is full the message is dropped for streaming only.
func (h *Hub) Publish(msg domain.Message) {
	data, err := json.Marshal(Event{Type: EventTypeMessage, Message: msg})
	if err != nil {
		h.logger.Error().Err(err).Int64("message_id", msg.ID).Msg("failed to encode stream event")
		return
	}
	select {
	case h.broadcast <- conversationFrame{conversationID: msg.ConversationID, data: data}:
	case <-h.done:
	default:
		h.logger.Warn().Int64("message_id", msg.ID).Msg("stream queue full, dropping message")
	}
}

// Subscribers returns the number of live subscribers of a conversation.
func (h *Hub) Subscribers(conversationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conversations[conversationID])
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// WriteMessage writes a message to the connection with proper locking.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// SetWriteDeadline sets the write deadline for the connection.
func (c *Connection) SetWriteDeadline(t time.Time) error {
	return c.Conn.SetWriteDeadline(t)
}

// Close closes the connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}
