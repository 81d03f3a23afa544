package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/synheart/synheart-seizure/internal/encoding"
	"github.com/synheart/synheart-seizure/internal/models"
)

// SSEHub broadcasts events via Server-Sent Events. Always JSON, since
// SSE frames are text.
type SSEHub struct {
	encoder encoding.Encoder
	logger  *zap.Logger
	clients map[chan []byte]bool
	mu      sync.RWMutex
}

// NewSSEHub creates a new SSE hub
func NewSSEHub(logger *zap.Logger) *SSEHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SSEHub{
		encoder: encoding.NewJSONEncoder(),
		logger:  logger,
		clients: make(map[chan []byte]bool),
	}
}

func (h *SSEHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	clientChan := make(chan []byte, 100)
	h.addClient(clientChan)
	defer h.removeClient(clientChan)

	h.logger.Info("sse client connected", zap.Int("total", h.GetClientCount()))

	for {
		select {
		case <-r.Context().Done():
			return
		case data, ok := <-clientChan:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

func (h *SSEHub) addClient(ch chan []byte) {
	h.mu.Lock()
	h.clients[ch] = true
	h.mu.Unlock()
}

func (h *SSEHub) removeClient(ch chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.clients[ch]; exists {
		delete(h.clients, ch)
		close(ch)
		h.logger.Info("sse client disconnected", zap.Int("total", len(h.clients)))
	}
}

// Broadcast sends an event to all connected clients. Slow clients miss
// events rather than holding up the others.
func (h *SSEHub) Broadcast(event models.Event) error {
	if h.GetClientCount() == 0 {
		return nil
	}

	data, err := h.encoder.Encode(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.clients {
		select {
		case ch <- data:
		default:
		}
	}
	return nil
}

// BroadcastFromChannel reads events and broadcasts them
func (h *SSEHub) BroadcastFromChannel(ctx context.Context, events <-chan models.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if err := h.Broadcast(event); err != nil {
				h.logger.Warn("sse broadcast failed", zap.Error(err))
			}
		}
	}
}

// GetClientCount returns connected client count
func (h *SSEHub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client
func (h *SSEHub) Close() {
	h.mu.Lock()
	for ch := range h.clients {
		close(ch)
	}
	h.clients = make(map[chan []byte]bool)
	h.mu.Unlock()
}
