// Package ws streams pipeline events to websocket clients.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/banshee-data/dataq/internal/monitoring"
	"github.com/banshee-data/dataq/internal/pipeline"
)

// AllTopics subscribes a client to every event kind.
const AllTopics = "all"

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
	// Dashboards are served from other origins on the local network.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// client serializes writes to one connection; gorilla connections support
// a single concurrent writer.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, data)
}

// Hub tracks websocket clients by topic and implements pipeline.Publisher.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*client]bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[string]map[*client]bool)}
}

func validTopic(topic string) bool {
	switch pipeline.Kind(topic) {
	case pipeline.KindDetections, pipeline.KindTracker, pipeline.KindPath,
		pipeline.KindOccupancy, pipeline.KindAnomaly, pipeline.KindStatus:
		return true
	}
	return topic == AllTopics
}

func (h *Hub) register(topic string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[topic] == nil {
		h.clients[topic] = make(map[*client]bool)
	}
	h.clients[topic][c] = true
}

func (h *Hub) unregister(topic string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.clients[topic]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.clients, topic)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, conns := range h.clients {
		n += len(conns)
	}
	return n
}

func (h *Hub) subscribers(kind pipeline.Kind) []*client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []*client
	for c := range h.clients[string(kind)] {
		out = append(out, c)
	}
	for c := range h.clients[AllTopics] {
		out = append(out, c)
	}
	return out
}

// Publish sends ev to the clients of its kind and of AllTopics. Clients that
// fail to receive are disconnected.
func (h *Hub) Publish(_ context.Context, ev pipeline.Event) error {
	subs := h.subscribers(ev.Kind)
	if len(subs) == 0 {
		return nil
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Kind, err)
	}
	for _, c := range subs {
		if err := c.write(websocket.TextMessage, data); err != nil {
			monitoring.Logf("ws: dropping client %s: %v", c.conn.RemoteAddr(), err)
			c.conn.Close()
		}
	}
	return nil
}

// ServeHTTP upgrades /ws/{topic} requests.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	topic := r.PathValue("topic")
	if !validTopic(topic) {
		http.Error(w, fmt.Sprintf("unknown topic %q", topic), http.StatusNotFound)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("ws: upgrade error: %v", err)
		return
	}
	c := &client{conn: conn}
	h.register(topic, c)
	monitoring.Logf("ws: client %s subscribed to %s", r.RemoteAddr, topic)
	go h.readPump(topic, c)
}

// readPump discards client messages and keeps the connection alive until
// the client goes away.
func (h *Hub) readPump(topic string, c *client) {
	defer func() {
		h.unregister(topic, c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := c.write(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
