package server

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/coder/websocket"

	"github.com/conneroisu/devlens/internal/logging"
	"github.com/conneroisu/devlens/internal/overlay"
)

// Client is a connected host dashboard.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	site string
	hub  *Hub
}

type envelope struct {
	site string
	data []byte
}

// Hub relays selection events from overlay sessions to host dashboards of
// the same site, and host commands back to those sessions.
type Hub struct {
	clients      map[*Client]bool
	clientsMutex sync.RWMutex

	sessions      map[*overlaySession]bool
	sessionsMutex sync.RWMutex

	register   chan *Client
	unregister chan *Client
	broadcast  chan envelope
	done       chan struct{}
	closeOnce  sync.Once

	logger  logging.Logger
	metrics *metrics
}

// NewHub creates a hub. Run must be started before clients register.
func NewHub(logger logging.Logger, m *metrics) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		sessions:   make(map[*overlaySession]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan envelope, 64),
		done:       make(chan struct{}),
		logger:     logger.WithComponent("hub"),
		metrics:    m,
	}
}

// Run processes registrations and broadcasts until ctx is cancelled or the
// hub is closed.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.Close()
			return
		case <-h.done:
			return

		case client := <-h.register:
			h.clientsMutex.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.clientsMutex.Unlock()
			h.metrics.hostClients.Inc()
			h.logger.Info(ctx, "Host connected", "site", client.site, "total", count)

		case client := <-h.unregister:
			h.clientsMutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.metrics.hostClients.Dec()
			}
			count := len(h.clients)
			h.clientsMutex.Unlock()
			h.logger.Info(ctx, "Host disconnected", "site", client.site, "total", count)

		case msg := <-h.broadcast:
			var failed []*Client
			h.clientsMutex.RLock()
			for client := range h.clients {
				if client.site != msg.site {
					continue
				}
				select {
				case client.send <- msg.data:
				default:
					failed = append(failed, client)
				}
			}
			h.clientsMutex.RUnlock()

			if len(failed) > 0 {
				h.clientsMutex.Lock()
				for _, client := range failed {
					if _, ok := h.clients[client]; ok {
						delete(h.clients, client)
						close(client.send)
						h.metrics.hostClients.Dec()
						h.metrics.wsErrors.WithLabelValues("host_backpressure").Inc()
					}
				}
				h.clientsMutex.Unlock()
			}
		}
	}
}

// Close stops the hub and closes every host connection.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)

		h.clientsMutex.Lock()
		for client := range h.clients {
			delete(h.clients, client)
			close(client.send)
			client.conn.Close(websocket.StatusGoingAway, "server shutting down")
		}
		h.clientsMutex.Unlock()

		h.sessionsMutex.RLock()
		for s := range h.sessions {
			s.conn.Close(websocket.StatusGoingAway, "server shutting down")
		}
		h.sessionsMutex.RUnlock()
	})
}

// Broadcast sends msg to the host dashboards of site.
func (h *Hub) Broadcast(ctx context.Context, site string, msg overlay.HostMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- envelope{site: site, data: data}:
	case <-h.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Dispatch applies a host command to every overlay session of site.
func (h *Hub) Dispatch(ctx context.Context, site string, msg overlay.HostMessage) int {
	h.sessionsMutex.RLock()
	var targets []*overlaySession
	for s := range h.sessions {
		if s.site == site {
			targets = append(targets, s)
		}
	}
	h.sessionsMutex.RUnlock()

	for _, s := range targets {
		s.hostCommand(ctx, msg)
	}
	return len(targets)
}

func (h *Hub) addSession(s *overlaySession) {
	h.sessionsMutex.Lock()
	h.sessions[s] = true
	h.sessionsMutex.Unlock()
	h.metrics.overlaySessions.Inc()
}

func (h *Hub) removeSession(s *overlaySession) {
	h.sessionsMutex.Lock()
	if h.sessions[s] {
		delete(h.sessions, s)
		h.metrics.overlaySessions.Dec()
	}
	h.sessionsMutex.Unlock()
}

// Sessions returns the number of connected overlay sessions.
func (h *Hub) Sessions() int {
	h.sessionsMutex.RLock()
	defer h.sessionsMutex.RUnlock()
	return len(h.sessions)
}

// HostClients returns the number of connected host dashboards.
func (h *Hub) HostClients() int {
	h.clientsMutex.RLock()
	defer h.clientsMutex.RUnlock()
	return len(h.clients)
}

func (h *Hub) addClient(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) removeClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
