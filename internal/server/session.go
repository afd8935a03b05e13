package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/devlens/internal/editor"
	"github.com/conneroisu/devlens/internal/errors"
	"github.com/conneroisu/devlens/internal/logging"
	"github.com/conneroisu/devlens/internal/overlay"
	"github.com/conneroisu/devlens/internal/registry"
	"github.com/conneroisu/devlens/internal/types"
)

// overlaySession is the server side of one page's overlay. It owns the
// page's registry, overlay, editor session and reorderer; the browser shim
// only reports DOM facts and paints the views it receives.
type overlaySession struct {
	server *Server
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once

	page    string
	site    string
	siteErr error

	registry  *registry.Registry
	overlay   *overlay.Overlay
	editor    *editor.Session
	reorderer *editor.Reorderer
	logger    logging.Logger
}

func (s *Server) newOverlaySession(r *http.Request, conn *websocket.Conn) *overlaySession {
	query := r.URL.Query()
	mode := s.config.Mode()
	if raw := query.Get("mode"); raw != "" {
		if m, err := types.ParseMode(raw); err == nil {
			mode = m
		}
	}
	page := query.Get("page")
	if page == "" {
		page = "/"
	}
	site, siteErr := s.resolver.Resolve(r.Host, query)

	sess := &overlaySession{
		server:  s,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		done:    make(chan struct{}),
		page:    page,
		site:    site,
		siteErr: siteErr,
		logger:  s.logger.WithComponent("overlay-session").With("page", page, "site", site, "mode", mode.String()),
	}

	client := &StoreClient{Store: s.store, Pages: s.pages, OnSave: s.invalidate}
	sess.registry = registry.New(mode, sess.logger)
	sess.overlay = overlay.New(sess.registry, overlay.Options{
		Site:    site,
		SiteErr: siteErr,
		Host:    overlay.HostNotifierFunc(sess.notifyHost),
	}, sess.logger)
	sess.editor = editor.NewSession(client, editor.Options{
		Cache:    s.cacheFor(site, page),
		Reload:   sess.reload,
		OnChange: sess.editorChanged,
		OnData:   sess.dataLoaded,
	}, sess.logger)
	sess.reorderer = editor.NewReorderer(client, sess.reload, sess.logger)
	return sess
}

// run reads shim messages until the connection closes.
func (o *overlaySession) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		o.once.Do(func() { close(o.done) })
		_ = o.editor.Close(true)
		o.conn.Close(websocket.StatusNormalClosure, "")
	}()

	if o.siteErr != nil {
		o.logger.Warn(ctx, o.siteErr, "Overlay session without a resolved site")
	}
	events := o.registry.Watch()
	defer o.registry.UnWatch(events)
	go o.writePump(ctx)
	go o.watchRegistry(ctx, events)

	for {
		_, data, err := o.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
				o.logger.Debug(ctx, "Overlay connection closed", "error", err.Error())
			}
			return
		}

		var msg overlay.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			o.server.metrics.wsErrors.WithLabelValues("overlay_decode").Inc()
			o.pushError(ctx, errors.NewParseError(errors.ErrCodeInvalidJSON, "invalid overlay message", err))
			continue
		}
		o.handle(ctx, msg)
	}
}

func (o *overlaySession) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-o.done:
			return
		case <-ctx.Done():
			return
		case message := <-o.send:
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := o.conn.Write(writeCtx, websocket.MessageText, message)
			cancel()
			if err != nil {
				o.server.metrics.wsErrors.WithLabelValues("write").Inc()
				o.conn.Close(websocket.StatusInternalError, "write failed")
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := o.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (o *overlaySession) handle(ctx context.Context, msg overlay.ClientMessage) {
	switch msg.Type {
	case overlay.ClientSnapshot:
		doc, err := overlay.ParseDocument(msg.Document)
		if err != nil {
			o.pushError(ctx, errors.NewParseError(errors.ErrCodeMarkupSyntax, "cannot parse document snapshot", err))
			return
		}
		o.registry.Scan(ctx, doc)

	case overlay.ClientMutations:
		if registry.ShouldRescan(overlay.Mutations(msg.Mutations)) {
			o.push(overlay.ServerMessage{Type: overlay.ServerRequestSnapshot})
		}

	case overlay.ClientLayout:
		positions := make(map[string]overlay.Position, len(msg.Measures))
		for _, m := range msg.Measures {
			pos, err := o.overlay.Layout(m.ID, m.Rect, msg.Scroll)
			if err != nil {
				continue
			}
			positions[m.ID] = pos
		}
		o.push(overlay.ServerMessage{Type: overlay.ServerPositions, Positions: positions})

	case overlay.ClientHover:
		a, err := o.overlay.Hover(msg.ID)
		o.pushAnchor(ctx, a, err)

	case overlay.ClientLeave:
		a, err := o.overlay.Leave(msg.ID)
		o.pushAnchor(ctx, a, err)

	case overlay.ClientControl:
		o.control(ctx, msg.ID, msg.Action)

	case overlay.ClientEdit:
		if err := o.editor.Edit(msg.Text); err != nil {
			o.pushError(ctx, err)
		}

	case overlay.ClientFormat:
		if err := o.editor.Format(); err != nil {
			o.pushError(ctx, err)
		}

	case overlay.ClientSave:
		go func() {
			if err := o.editor.Save(ctx); err != nil {
				o.logger.Debug(ctx, "Save did not complete", "error", err.Error())
			}
		}()

	case overlay.ClientClose:
		if err := o.editor.Close(msg.Confirm); err != nil {
			o.pushError(ctx, err)
		}

	case overlay.ClientHost:
		if msg.Host != nil {
			o.hostCommand(ctx, *msg.Host)
		}

	default:
		o.pushError(ctx, errors.NewValidationError(errors.ErrCodeInvalidState, "unknown overlay message "+msg.Type))
	}
}

func (o *overlaySession) control(ctx context.Context, id string, action overlay.Action) {
	switch action {
	case overlay.ActionToggle:
		a, err := o.overlay.Toggle(ctx, id)
		o.pushAnchor(ctx, a, err)

	case overlay.ActionEdit:
		c, ok := o.registry.Get(id)
		if !ok {
			o.pushError(ctx, errors.ErrComponentNotFound(id))
			return
		}
		if o.site == "" {
			o.pushError(ctx, o.resolutionError())
			return
		}
		target := editor.Target{ComponentID: c.ID, Name: c.Name, DataPath: c.DataPath, Site: o.site}
		go func() {
			// Load failures are reported through the editor snapshot.
			_ = o.editor.Open(ctx, target)
		}()

	case overlay.ActionMoveUp, overlay.ActionMoveDown:
		dir := editor.Down
		if action == overlay.ActionMoveUp {
			dir = editor.Up
		}
		if o.site == "" {
			o.pushError(ctx, o.resolutionError())
			return
		}
		if err := o.reorderer.Move(ctx, o.registry, id, dir, o.page, o.site); err != nil {
			o.server.metrics.reordersTotal.WithLabelValues("error").Inc()
			o.pushError(ctx, err)
			return
		}
		o.server.metrics.reordersTotal.WithLabelValues("ok").Inc()

	default:
		o.pushError(ctx, errors.NewValidationError(errors.ErrCodeInvalidState, "unknown control "+string(action)))
	}
}

// hostCommand applies a command from the host and repaints affected anchors.
// The command is not echoed back to the host.
func (o *overlaySession) hostCommand(ctx context.Context, msg overlay.HostMessage) {
	anchors, err := o.overlay.HandleHostMessage(ctx, msg)
	if err != nil {
		o.pushError(ctx, err)
		return
	}
	for _, a := range anchors {
		o.pushAnchor(ctx, a, nil)
	}
}

func (o *overlaySession) notifyHost(ctx context.Context, msg overlay.HostMessage) error {
	o.push(overlay.ServerMessage{Type: overlay.ServerHost, Host: &msg})
	return o.server.hub.Broadcast(ctx, o.site, msg)
}

func (o *overlaySession) editorChanged(snap editor.Snapshot) {
	ctx := context.Background()
	html, err := overlay.RenderString(ctx, overlay.EditorModal(snap))
	if err != nil {
		o.logger.Error(ctx, err, "Failed to render editor")
		return
	}
	o.push(overlay.ServerMessage{Type: overlay.ServerEditor, Editor: &snap, HTML: html})
}

// dataLoaded records a payload the editor read or wrote as the component's
// props.
func (o *overlaySession) dataLoaded(target editor.Target, text string) {
	ctx := context.Background()
	var props interface{}
	if err := json.Unmarshal([]byte(text), &props); err != nil {
		o.logger.Debug(ctx, "Ignoring unparseable payload", "id", target.ComponentID, "error", err.Error())
		return
	}
	if err := o.registry.SetProps(target.ComponentID, props); err != nil {
		o.logger.Debug(ctx, "Component left before its data loaded", "id", target.ComponentID)
	}
}

func (o *overlaySession) reload() {
	o.push(overlay.ServerMessage{Type: overlay.ServerReload})
}

// watchRegistry repaints every anchor after the registry changes. Bursts of
// events, such as the batch of one scan, are coalesced into one message.
func (o *overlaySession) watchRegistry(ctx context.Context, events <-chan types.ComponentEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-events:
			if !ok {
				return
			}
		}
	drain:
		for {
			select {
			case _, ok := <-events:
				if !ok {
					return
				}
			default:
				break drain
			}
		}
		o.pushAnchors(ctx)
	}
}

func (o *overlaySession) pushAnchors(ctx context.Context) {
	removed := o.overlay.Sync()
	anchors := o.overlay.Anchors()
	views := make([]overlay.AnchorView, 0, len(anchors))
	for i, a := range anchors {
		v, err := overlay.View(ctx, a, i)
		if err != nil {
			o.logger.Error(ctx, err, "Failed to render anchor", "id", a.ID)
			continue
		}
		views = append(views, v)
	}
	o.push(overlay.ServerMessage{Type: overlay.ServerAnchors, Anchors: views, Cleared: removed})
}

func (o *overlaySession) pushAnchor(ctx context.Context, a overlay.Anchor, err error) {
	if err != nil {
		o.pushError(ctx, err)
		return
	}
	v, err := overlay.View(ctx, a, o.indexOf(a.ID))
	if err != nil {
		o.logger.Error(ctx, err, "Failed to render anchor", "id", a.ID)
		return
	}
	o.push(overlay.ServerMessage{Type: overlay.ServerAnchor, Anchor: &v})
}

// indexOf returns the position of id among marker elements in document order.
func (o *overlaySession) indexOf(id string) int {
	for i, c := range o.registry.All() {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (o *overlaySession) resolutionError() error {
	if o.siteErr != nil {
		return o.siteErr
	}
	return errors.ErrSiteUnresolved("")
}

func (o *overlaySession) pushError(ctx context.Context, err error) {
	o.logger.Debug(ctx, "Overlay action failed", "error", err.Error())
	o.push(overlay.ServerMessage{Type: overlay.ServerError, Error: err.Error()})
}

func (o *overlaySession) push(msg overlay.ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		o.logger.Error(context.Background(), err, "Failed to encode overlay message", "type", msg.Type)
		return
	}
	select {
	case <-o.done:
	case o.send <- data:
	default:
		o.server.metrics.wsErrors.WithLabelValues("overlay_backpressure").Inc()
	}
}
