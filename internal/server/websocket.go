package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/devlens/internal/overlay"
	"github.com/conneroisu/devlens/internal/validation"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period.
	pingPeriod = 30 * time.Second

	// Maximum message size allowed from the overlay shim; document
	// snapshots are sent whole.
	maxMessageSize = 8 << 20

	// Maximum message size allowed from a host dashboard.
	maxHostMessageSize = 4 << 10

	// Outgoing messages buffered per connection.
	sendBuffer = 256
)

// checkOrigin validates the request origin. Same-origin requests are always
// accepted; cross-origin ones must be configured.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}
	if u, err := url.Parse(origin); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host == r.Host {
		return true
	}
	return validation.ValidateOrigin(origin, s.config.Server.AllowedOrigins) == nil
}

func (s *Server) accept(w http.ResponseWriter, r *http.Request, limit int64) (*websocket.Conn, bool) {
	if !s.checkOrigin(r) {
		s.metrics.wsErrors.WithLabelValues("origin").Inc()
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return nil, false
	}

	// The origin was checked above against the configured list, which the
	// library's same-host check does not know about.
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		s.metrics.wsErrors.WithLabelValues("upgrade").Inc()
		s.logger.Warn(r.Context(), err, "WebSocket upgrade failed", "path", r.URL.Path)
		return nil, false
	}
	conn.SetReadLimit(limit)
	return conn, true
}

// handleOverlaySocket runs one overlay session for the page in the query.
func (s *Server) handleOverlaySocket(w http.ResponseWriter, r *http.Request) {
	conn, ok := s.accept(w, r, maxMessageSize)
	if !ok {
		return
	}

	session := s.newOverlaySession(r, conn)
	s.hub.addSession(session)
	defer s.hub.removeSession(session)

	session.run(r.Context())
}

// handleHostSocket connects a host dashboard for the resolved site.
func (s *Server) handleHostSocket(w http.ResponseWriter, r *http.Request) {
	site, err := s.site(r, "")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	conn, ok := s.accept(w, r, maxHostMessageSize)
	if !ok {
		return
	}

	client := &Client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		site: site,
		hub:  s.hub,
	}
	if !client.hub.addClient(client) {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	ctx := r.Context()
	go client.writePump(ctx)
	client.readPump(ctx)
}

// readPump applies host commands until the connection closes.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.removeClient(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure &&
				websocket.CloseStatus(err) != websocket.StatusGoingAway {
				c.hub.logger.Debug(ctx, "Host connection closed", "site", c.site, "error", err.Error())
			}
			return
		}

		var msg overlay.HostMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.hub.metrics.wsErrors.WithLabelValues("host_decode").Inc()
			c.hub.logger.Warn(ctx, err, "Invalid host message", "site", c.site)
			continue
		}
		n := c.hub.Dispatch(ctx, c.site, msg)
		c.hub.logger.Debug(ctx, "Host command dispatched", "type", msg.Type, "site", c.site, "sessions", n)
	}
}

// writePump pumps messages to the websocket connection
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(writeCtx, websocket.MessageText, message)
			cancel()
			if err != nil {
				c.hub.metrics.wsErrors.WithLabelValues("write").Inc()
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
