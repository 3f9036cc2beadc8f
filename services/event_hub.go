package services

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Constants for event hub configuration
const (
	MaxEventClients        = 50
	EventWriteTimeout      = 10 * time.Second
	EventPongTimeout       = 60 * time.Second
	EventPingInterval      = 30 * time.Second
	eventClientBufferSize  = 64
	eventBroadcastBufferSz = 256
)

// JobEvent describes one job lifecycle transition for operator dashboards.
type JobEvent struct {
	JobID    string `json:"job_id"`
	Phase    string `json:"phase"`
	Status   string `json:"status"` // started, succeeded or failed
	Source   string `json:"source"` // schedule, recovery or manual
	At       string `json:"at"`
	Duration int64  `json:"duration_ms,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// eventClient is one connected WebSocket subscriber.
type eventClient struct {
	conn *websocket.Conn
	send chan []byte
}

// EventHub broadcasts job lifecycle events to connected WebSocket clients.
type EventHub struct {
	clients    map[*eventClient]bool
	broadcast  chan JobEvent
	register   chan *eventClient
	unregister chan *eventClient
	shutdown   chan struct{}
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
}

// NewEventHub creates and starts the event hub.
func NewEventHub() *EventHub {
	h := &EventHub{
		clients:    make(map[*eventClient]bool),
		broadcast:  make(chan JobEvent, eventBroadcastBufferSz),
		register:   make(chan *eventClient),
		unregister: make(chan *eventClient),
		shutdown:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	go h.run()
	return h
}

// Publish queues an event for broadcast. Never blocks: when the hub is
// saturated the event is dropped, since the journal keeps the durable record.
func (h *EventHub) Publish(event JobEvent) {
	select {
	case h.broadcast <- event:
	default:
		log.Printf("Event hub saturated, dropping event for %s", event.JobID)
	}
}

// Shutdown closes all client connections and stops the hub.
func (h *EventHub) Shutdown() {
	close(h.shutdown)

	h.mu.Lock()
	for client := range h.clients {
		close(client.send)
		client.conn.Close()
	}
	h.clients = make(map[*eventClient]bool)
	h.mu.Unlock()

	log.Println("Event hub shutdown complete")
}

// ClientCount returns the number of connected clients.
func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// run is the hub loop.
func (h *EventHub) run() {
	for {
		select {
		case <-h.shutdown:
			return

		case client := <-h.register:
			h.mu.Lock()
			if len(h.clients) >= MaxEventClients {
				h.mu.Unlock()
				client.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "Server at capacity"))
				client.conn.Close()
				continue
			}
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			log.Printf("Event stream client connected. Total clients: %d", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			data, err := json.Marshal(event)
			if err != nil {
				log.Printf("Error marshaling job event: %v", err)
				continue
			}

			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					// Client buffer full, drop it
					delete(h.clients, client)
					close(client.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// HandleWebSocket upgrades the connection and registers the client.
func (h *EventHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	atCapacity := len(h.clients) >= MaxEventClients
	h.mu.RUnlock()
	if atCapacity {
		http.Error(w, "Server at capacity", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	client := &eventClient{
		conn: conn,
		send: make(chan []byte, eventClientBufferSize),
	}
	h.register <- client

	go client.writePump()
	go client.readPump(h)
}

// writePump writes events and pings to the connection.
func (c *eventClient) writePump() {
	ticker := time.NewTicker(EventPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(EventWriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(EventWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains the connection and handles pongs; the stream is one-way.
func (c *eventClient) readPump(h *EventHub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(EventPongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(EventPongTimeout))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket read error: %v", err)
			}
			break
		}
	}
}
