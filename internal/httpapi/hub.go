package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	dashboardSendBuffer = 64
	dashboardWriteWait  = 10 * time.Second
	dashboardPingPeriod = 30 * time.Second
)

// dashboardEvent is the envelope for every message pushed to dashboard
// clients.
type dashboardEvent struct {
	Type      string      `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
	SentAt    time.Time   `json:"sent_at"`
}

type dashboardClient struct {
	conn *websocket.Conn
	send chan []byte
}

// DashboardHub fans session events out to connected dashboard websockets.
// Clients that fall behind get dropped rather than stalling the pipeline.
type DashboardHub struct {
	mu      sync.Mutex
	clients map[*dashboardClient]struct{}
	logger  *log.Logger
}

// NewDashboardHub creates a hub with no connected clients.
func NewDashboardHub(logger *log.Logger) *DashboardHub {
	return &DashboardHub{
		clients: make(map[*dashboardClient]struct{}),
		logger:  logger,
	}
}

// ClientCount returns the number of connected dashboard clients.
func (h *DashboardHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends an event to every connected client. Slow clients whose
// send buffer is full are disconnected.
func (h *DashboardHub) Broadcast(eventType, sessionID string, payload interface{}) {
	data, err := json.Marshal(dashboardEvent{
		Type:      eventType,
		SessionID: sessionID,
		Payload:   payload,
		SentAt:    nowUTC(),
	})
	if err != nil {
		h.logger.Printf("dashboard: failed to marshal %s event: %v", eventType, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- data:
		default:
			h.logger.Printf("dashboard: dropping slow client")
			delete(h.clients, client)
			close(client.send)
		}
	}
}

func (h *DashboardHub) register(client *dashboardClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
}

func (h *DashboardHub) unregister(client *dashboardClient) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	h.mu.Unlock()
}

// handleDashboardWS upgrades the connection and streams session events
// until the client disconnects.
func (r *Router) handleDashboardWS(w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Printf("dashboard: upgrade failed: %v", err)
		return
	}

	client := &dashboardClient{
		conn: conn,
		send: make(chan []byte, dashboardSendBuffer),
	}
	r.hub.register(client)

	go r.hub.writeLoop(client)
	r.hub.readLoop(client)
}

// writeLoop pumps broadcast messages and periodic pings to one client.
func (h *DashboardHub) writeLoop(client *dashboardClient) {
	ticker := time.NewTicker(dashboardPingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case data, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(dashboardWriteWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(dashboardWriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop discards inbound messages and detects disconnects.
func (h *DashboardHub) readLoop(client *dashboardClient) {
	defer func() {
		h.unregister(client)
		client.conn.Close()
	}()

	client.conn.SetReadLimit(1024)
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}
