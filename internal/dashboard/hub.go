package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"churn-service/internal/inference"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Gauge is the metric the hub keeps the number of connected clients in.
type Gauge interface {
	Set(float64)
	Add(float64)
}

// Hub fans predictions out to connected WebSocket clients. It implements
// inference.Sink so the service can publish to it directly.
type Hub struct {
	upgrader         websocket.Upgrader
	clients          map[*websocket.Conn]bool
	clientsMu        sync.RWMutex
	broadcastChannel chan inference.Prediction
	stopChannel      chan struct{}
	stopOnce         sync.Once
	gauge            Gauge
}

// NewHub creates a hub. gauge may be nil.
func NewHub(gauge Gauge) *Hub {
	return &Hub{
		upgrader:         websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:          make(map[*websocket.Conn]bool),
		broadcastChannel: make(chan inference.Prediction, 100),
		stopChannel:      make(chan struct{}),
		gauge:            gauge,
	}
}

// Save queues a prediction for broadcast. When the queue is full the
// prediction is dropped rather than blocking the request.
func (h *Hub) Save(_ context.Context, p inference.Prediction) error {
	select {
	case h.broadcastChannel <- p:
	default:
		log.Debug().Str("id", p.ID).Msg("live feed queue full, dropping prediction")
	}
	return nil
}

// Run broadcasts queued predictions until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case p := <-h.broadcastChannel:
			h.broadcastToClients(p)
		case <-h.stopChannel:
			return
		}
	}
}

// Stop ends Run and disconnects every client.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopChannel)

		h.clientsMu.Lock()
		for client := range h.clients {
			client.Close()
		}
		h.clients = make(map[*websocket.Conn]bool)
		h.clientsMu.Unlock()
		h.setGauge(0)
	})
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcastToClients(p inference.Prediction) {
	data, err := json.Marshal(p)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal prediction for broadcast")
		return
	}

	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	for client := range h.clients {
		client.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Warn().Err(err).Msg("failed to send prediction to WebSocket client")
			h.drop(client)
		}
	}
}

// ServeWS upgrades the connection and keeps the client registered until it
// disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("failed to upgrade WebSocket connection")
		return
	}

	select {
	case <-h.stopChannel:
		conn.Close()
		return
	default:
	}

	h.clientsMu.Lock()
	h.clients[conn] = true
	h.clientsMu.Unlock()
	if h.gauge != nil {
		h.gauge.Add(1)
	}

	// Clients never send; reading only detects the close.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.clientsMu.Lock()
				h.drop(conn)
				h.clientsMu.Unlock()
				return
			}
		}
	}()
}

// drop removes a client. The caller holds clientsMu.
func (h *Hub) drop(conn *websocket.Conn) {
	if !h.clients[conn] {
		return
	}
	conn.Close()
	delete(h.clients, conn)
	if h.gauge != nil {
		h.gauge.Add(-1)
	}
}

func (h *Hub) setGauge(v float64) {
	if h.gauge != nil {
		h.gauge.Set(v)
	}
}
