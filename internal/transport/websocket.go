package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/synheart/synheart-seizure/internal/encoding"
	"github.com/synheart/synheart-seizure/internal/models"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // caregiver dashboards are served from other origins
	},
}

// WebSocketHub broadcasts events to WebSocket clients. It is an
// http.Handler mounted on the control server.
type WebSocketHub struct {
	encoder encoding.Encoder
	logger  *zap.Logger
	clients map[*websocket.Conn]*sync.Mutex
	mu      sync.RWMutex
}

// NewWebSocketHub creates a hub that encodes events with encoder
func NewWebSocketHub(encoder encoding.Encoder, logger *zap.Logger) *WebSocketHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketHub{
		encoder: encoder,
		logger:  logger,
		clients: make(map[*websocket.Conn]*sync.Mutex),
	}
}

// ServeHTTP upgrades the connection and keeps it registered until the
// client goes away.
func (h *WebSocketHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	h.mu.Lock()
	h.clients[conn] = &sync.Mutex{}
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("websocket client connected", zap.String("remote", r.RemoteAddr), zap.Int("total", clientCount))

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		clientCount := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Info("websocket client disconnected", zap.Int("total", clientCount))
	}()

	// clients never send; reading detects disconnects
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Broadcast sends an event to all connected clients
func (h *WebSocketHub) Broadcast(event models.Event) error {
	if h.GetClientCount() == 0 {
		return nil
	}

	data, err := h.encoder.Encode(event)
	if err != nil {
		return err
	}
	msgType := websocket.TextMessage
	if h.encoder.ContentType() != "application/json" {
		msgType = websocket.BinaryMessage
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client, wmu := range h.clients {
		wmu.Lock()
		client.SetWriteDeadline(time.Now().Add(writeWait))
		err := client.WriteMessage(msgType, data)
		wmu.Unlock()
		if err != nil {
			// the read loop cleans the client up
			h.logger.Debug("websocket write failed", zap.Error(err))
		}
	}
	return nil
}

// BroadcastFromChannel reads events from a channel and broadcasts them
func (h *WebSocketHub) BroadcastFromChannel(ctx context.Context, events <-chan models.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if err := h.Broadcast(event); err != nil {
				h.logger.Warn("websocket broadcast failed", zap.Error(err))
			}
		}
	}
}

// GetClientCount returns the number of connected clients
func (h *WebSocketHub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client
func (h *WebSocketHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		client.Close()
	}
	h.clients = make(map[*websocket.Conn]*sync.Mutex)
}
