package handler

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"whybot/internal/app/orchestrator"
)

// EventState снимок разговора после каждого изменения.
const EventState = "state"

const (
	writeWait    = 10 * time.Second
	sendBuffer   = 32
	maxFrameSize = 1 << 20
)

// Event конверт всех сообщений от сервера к клиенту.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub рассылает события всем подключённым WebSocket-клиентам.
// Медленный клиент теряет события, а не тормозит остальных.
type Hub struct {
	logger *zap.SugaredLogger

	mu      sync.RWMutex
	clients map[string]*client
}

func NewHub(logger *zap.SugaredLogger) *Hub {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Hub{logger: logger, clients: make(map[string]*client)}
}

// Publish реализует voice.Publisher.
func (h *Hub) Publish(eventType string, payload any) {
	b, err := json.Marshal(Event{Type: eventType, Data: payload})
	if err != nil {
		h.logger.Errorw("Event marshal failed", "type", eventType, "error", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- b:
		default:
			h.logger.Warnw("Client too slow, event dropped", "client", c.id, "type", eventType)
		}
	}
}

// Forward публикует снимки оркестратора, пока ctx не отменён или канал не закрыт.
func (h *Hub) Forward(ctx context.Context, statuses <-chan orchestrator.Status) {
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-statuses:
			if !ok {
				return
			}
			h.Publish(EventState, st)
		}
	}
}

// Len количество подключённых клиентов.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) add(conn *websocket.Conn) *client {
	c := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	h.logger.Infow("WebSocket client connected", "client", c.id)
	return c
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
	}
	h.mu.Unlock()
	h.logger.Infow("WebSocket client disconnected", "client", c.id)
}

// writeLoop единственный писатель в соединение.
func (c *client) writeLoop() {
	for b := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
			break
		}
	}
	_ = c.conn.Close()
}
