package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/devlens/internal/editor"
	"github.com/conneroisu/devlens/internal/overlay"
	"github.com/conneroisu/devlens/internal/registry"
)

const pageSnapshot = `<html><head></head><body>
<div data-component-name="Hero" data-component-path="hero.json" data-component-id="hero-0" data-component-order="0" data-component-props="{&#34;title&#34;:&#34;Hello&#34;}" style="display: contents"><section>Hero</section></div>
<div data-component-name="Features" data-component-path="features.json" data-component-id="features-1" data-component-order="1" data-component-props="{}" style="display: contents"><section>Features</section></div>
</body></html>`

func startServer(t *testing.T, env *testEnv) *httptest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go env.server.Hub().Run(ctx)
	ts := httptest.NewServer(env.server.Handler())
	t.Cleanup(func() {
		ts.Close()
		cancel()
	})
	return ts
}

func dial(t *testing.T, ts *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + path
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": {ts.URL}},
	})
	require.NoError(t, err)
	conn.SetReadLimit(maxMessageSize)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg overlay.ClientMessage) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, conn, msg))
}

// expect reads server messages until one of type typ arrives.
func expect(t *testing.T, conn *websocket.Conn, typ string) overlay.ServerMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		var msg overlay.ServerMessage
		require.NoError(t, wsjson.Read(ctx, conn, &msg), "waiting for %s", typ)
		if msg.Type == typ {
			return msg
		}
	}
}

func TestOverlaySocketRejectsForeignOrigin(t *testing.T) {
	env := newTestEnv(t, nil)
	ts := startServer(t, env)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/overlay?page=/"
	_, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": {"http://evil.test"}},
	})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestOverlaySession_Standalone(t *testing.T) {
	env := newTestEnv(t, nil)
	ts := startServer(t, env)
	conn := dial(t, ts, "/ws/overlay?page=/&site=example.com")

	send(t, conn, overlay.ClientMessage{Type: overlay.ClientSnapshot, Document: pageSnapshot})
	msg := expect(t, conn, overlay.ServerAnchors)
	require.Len(t, msg.Anchors, 2)
	assert.Equal(t, "hero-0", msg.Anchors[0].ID)
	assert.Equal(t, 0, msg.Anchors[0].Index)
	assert.Equal(t, "features-1", msg.Anchors[1].ID)
	assert.Equal(t, 1, msg.Anchors[1].Index)
	assert.Contains(t, msg.Anchors[0].HTML, `data-devlens-action="move-up"`)

	require.Eventually(t, func() bool { return env.server.Hub().Sessions() == 1 }, 2*time.Second, 10*time.Millisecond)

	send(t, conn, overlay.ClientMessage{Type: overlay.ClientHover, ID: "hero-0"})
	msg = expect(t, conn, overlay.ServerAnchor)
	assert.True(t, msg.Anchor.Hovered)
	assert.Contains(t, msg.Anchor.Style, "#3b82f6")

	send(t, conn, overlay.ClientMessage{Type: overlay.ClientControl, ID: "hero-0", Action: overlay.ActionToggle})
	msg = expect(t, conn, overlay.ServerAnchor)
	require.NotEmpty(t, msg.Anchor.Controls)
	assert.Equal(t, "Reusable", msg.Anchor.Controls[0].Label)
	assert.True(t, msg.Anchor.Controls[0].Active)

	send(t, conn, overlay.ClientMessage{
		Type:     overlay.ClientLayout,
		Measures: []overlay.Measurement{{ID: "hero-0", Rect: overlay.Rect{X: 10, Y: 20, Width: 300, Height: 100}}},
		Scroll:   overlay.Point{X: 0, Y: 500},
	})
	msg = expect(t, conn, overlay.ServerPositions)
	assert.Equal(t, overlay.Position{Top: 520, Left: 10, Width: 300, Height: 100}, msg.Positions["hero-0"])

	send(t, conn, overlay.ClientMessage{Type: overlay.ClientMutations, Mutations: []overlay.MutationRecord{
		{Kind: registry.MutationChildList, Added: []string{`<div data-component-name="Footer"></div>`}},
	}})
	expect(t, conn, overlay.ServerRequestSnapshot)

	send(t, conn, overlay.ClientMessage{Type: "bogus"})
	msg = expect(t, conn, overlay.ServerError)
	assert.Contains(t, msg.Error, "bogus")
}

func TestOverlaySession_EditAndSave(t *testing.T) {
	env := newTestEnv(t, nil)
	ts := startServer(t, env)
	conn := dial(t, ts, "/ws/overlay?page=/&site=example.com")

	send(t, conn, overlay.ClientMessage{Type: overlay.ClientSnapshot, Document: pageSnapshot})
	expect(t, conn, overlay.ServerAnchors)

	send(t, conn, overlay.ClientMessage{Type: overlay.ClientControl, ID: "hero-0", Action: overlay.ActionEdit})
	var msg overlay.ServerMessage
	for {
		msg = expect(t, conn, overlay.ServerEditor)
		if msg.Editor.StateName == editor.StateViewing.String() {
			break
		}
	}
	assert.Equal(t, heroJSON, msg.Editor.Text)
	assert.Contains(t, msg.HTML, "<textarea data-devlens-editor")

	updated := `{"title": "Saved"}`
	send(t, conn, overlay.ClientMessage{Type: overlay.ClientEdit, Text: updated})
	msg = expect(t, conn, overlay.ServerEditor)
	assert.True(t, msg.Editor.Dirty)
	assert.True(t, msg.Editor.CanSave)

	send(t, conn, overlay.ClientMessage{Type: overlay.ClientSave})
	expect(t, conn, overlay.ServerReload)

	raw, err := os.ReadFile(filepath.Join(env.dataDir, "example.com", "hero.json"))
	require.NoError(t, err)
	assert.Equal(t, updated, string(raw))
}

func TestOverlaySession_Reorder(t *testing.T) {
	env := newTestEnv(t, nil)
	ts := startServer(t, env)
	conn := dial(t, ts, "/ws/overlay?page=/&site=example.com")

	send(t, conn, overlay.ClientMessage{Type: overlay.ClientSnapshot, Document: pageSnapshot})
	expect(t, conn, overlay.ServerAnchors)

	send(t, conn, overlay.ClientMessage{Type: overlay.ClientControl, ID: "hero-0", Action: overlay.ActionMoveUp})
	msg := expect(t, conn, overlay.ServerError)
	assert.NotEmpty(t, msg.Error)

	send(t, conn, overlay.ClientMessage{Type: overlay.ClientControl, ID: "hero-0", Action: overlay.ActionMoveDown})
	expect(t, conn, overlay.ServerReload)

	raw, err := os.ReadFile(filepath.Join(env.pagesDir, "index.astro"))
	require.NoError(t, err)
	assert.Less(t, strings.Index(string(raw), "<Features"), strings.Index(string(raw), "<Hero"))
}

func TestOverlaySession_EmbeddedHostChannel(t *testing.T) {
	env := newTestEnv(t, nil)
	ts := startServer(t, env)

	host := dial(t, ts, "/ws/host?site=example.com")
	require.Eventually(t, func() bool { return env.server.Hub().HostClients() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn := dial(t, ts, "/ws/overlay?page=/&site=example.com&mode=embedded")
	send(t, conn, overlay.ClientMessage{Type: overlay.ClientSnapshot, Document: pageSnapshot})
	expect(t, conn, overlay.ServerAnchors)

	send(t, conn, overlay.ClientMessage{Type: overlay.ClientControl, ID: "hero-0", Action: overlay.ActionToggle})
	msg := expect(t, conn, overlay.ServerHost)
	assert.Equal(t, overlay.MessageComponentSelected, msg.Host.Type)
	msg = expect(t, conn, overlay.ServerAnchor)
	assert.True(t, msg.Anchor.Outline.Persistent)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var event overlay.HostMessage
	require.NoError(t, wsjson.Read(ctx, host, &event))
	assert.Equal(t, overlay.MessageComponentSelected, event.Type)
	assert.Equal(t, &overlay.Selection{ID: "hero-0", Name: "Hero", Path: "hero.json", Site: "example.com"}, event.Payload)

	require.NoError(t, wsjson.Write(ctx, host, overlay.HostMessage{Type: overlay.MessageClearAllSelections}))
	msg = expect(t, conn, overlay.ServerAnchor)
	assert.Equal(t, "hero-0", msg.Anchor.ID)
	assert.False(t, msg.Anchor.Outline.Visible)
}

func TestOverlaySession_EmbeddedWithoutSite(t *testing.T) {
	env := newTestEnv(t, nil)
	ts := startServer(t, env)
	conn := dial(t, ts, "/ws/overlay?page=/&mode=embedded")

	send(t, conn, overlay.ClientMessage{Type: overlay.ClientSnapshot, Document: pageSnapshot})
	expect(t, conn, overlay.ServerAnchors)

	send(t, conn, overlay.ClientMessage{Type: overlay.ClientControl, ID: "hero-0", Action: overlay.ActionToggle})
	msg := expect(t, conn, overlay.ServerError)
	assert.Contains(t, msg.Error, "cannot resolve site")

	send(t, conn, overlay.ClientMessage{Type: overlay.ClientControl, ID: "hero-0", Action: overlay.ActionEdit})
	msg = expect(t, conn, overlay.ServerError)
	assert.Contains(t, msg.Error, "cannot resolve site")
}

// newDetachedSession builds an overlay session with no connection; its
// outgoing messages stay queued on send.
func newDetachedSession(t *testing.T, env *testEnv) *overlaySession {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/ws/overlay?page=/&site=example.com", nil)
	sess := env.server.newOverlaySession(req, nil)
	doc, err := overlay.ParseDocument(pageSnapshot)
	require.NoError(t, err)
	sess.registry.Scan(context.Background(), doc)
	return sess
}

// queued reads queued messages until one of type typ arrives.
func queued(t *testing.T, sess *overlaySession, typ string) overlay.ServerMessage {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case data := <-sess.send:
			var msg overlay.ServerMessage
			require.NoError(t, json.Unmarshal(data, &msg))
			if msg.Type == typ {
				return msg
			}
		case <-timeout:
			t.Fatalf("no %s message queued", typ)
		}
	}
}

func TestOverlaySession_EditorDataUpdatesProps(t *testing.T) {
	env := newTestEnv(t, nil)
	sess := newDetachedSession(t, env)
	ctx := context.Background()

	hero, ok := sess.registry.Get("hero-0")
	require.True(t, ok)
	assert.Equal(t, map[string]interface{}{"title": "Hello"}, hero.Props)

	target := editor.Target{ComponentID: "hero-0", Name: "Hero", DataPath: "hero.json", Site: "example.com"}
	require.NoError(t, sess.editor.Open(ctx, target))
	hero, _ = sess.registry.Get("hero-0")
	assert.Equal(t, map[string]interface{}{"title": "Hello", "items": []interface{}{1.0, 2.0}}, hero.Props)

	require.NoError(t, sess.editor.Edit(`{"title": "Saved"}`))
	require.NoError(t, sess.editor.Save(ctx))
	hero, _ = sess.registry.Get("hero-0")
	assert.Equal(t, map[string]interface{}{"title": "Saved"}, hero.Props)

	features, _ := sess.registry.Get("features-1")
	assert.Equal(t, map[string]interface{}{}, features.Props)
}

func TestOverlaySession_RegistryEventsRepaintAnchors(t *testing.T) {
	env := newTestEnv(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/ws/overlay?page=/&site=example.com", nil)
	sess := env.server.newOverlaySession(req, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := sess.registry.Watch()
	defer sess.registry.UnWatch(events)
	go sess.watchRegistry(ctx, events)

	doc, err := overlay.ParseDocument(pageSnapshot)
	require.NoError(t, err)
	sess.registry.Scan(ctx, doc)
	msg := queued(t, sess, overlay.ServerAnchors)
	require.Len(t, msg.Anchors, 2)
	assert.Equal(t, "hero-0", msg.Anchors[0].ID)

	empty, err := overlay.ParseDocument(`<html><body></body></html>`)
	require.NoError(t, err)
	sess.registry.Scan(ctx, empty)
	for {
		msg = queued(t, sess, overlay.ServerAnchors)
		if len(msg.Anchors) == 0 {
			break
		}
	}
	assert.ElementsMatch(t, []string{"hero-0", "features-1"}, msg.Cleared)
	assert.Equal(t, 0, sess.registry.Count())
}
