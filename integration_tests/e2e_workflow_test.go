//go:build integration
// +build integration

package integration_tests

import (
	"bytes"
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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/devlens/internal/config"
	"github.com/conneroisu/devlens/internal/logging"
	"github.com/conneroisu/devlens/internal/overlay"
	"github.com/conneroisu/devlens/internal/server"
	"github.com/conneroisu/devlens/internal/store"
	"github.com/conneroisu/devlens/internal/tenant"
	"github.com/conneroisu/devlens/internal/transform"
	"github.com/conneroisu/devlens/internal/watcher"
)

const site = "example.com"

const indexPage = `---
import Base from '../layouts/Base.astro';
import Hero from '../components/Hero.astro';
import Features from '../components/Features.astro';
import heroData from '../data/hero.json';
import featuresData from '../data/features.json';
---
<Base>
  <Hero data={heroData} />
  <Features data={featuresData} />
</Base>
`

const baseLayout = `---
const { title } = Astro.props;
---
<html><body><slot /></body></html>
`

// rendered is what the site's dev server renders for the instrumented page.
const rendered = `<html><body>
<div data-component-name="Hero" data-component-path="hero.json" data-component-id="hero-0" data-component-order="0" data-component-props="{&#34;title&#34;:&#34;Hello&#34;}" style="display: contents"><section>Hello</section></div>
<div data-component-name="Features" data-component-path="features.json" data-component-id="features-1" data-component-order="1" data-component-props="[]" style="display: contents"><ul></ul></div>
</body></html>`

// E2ETestSystem is a project on disk with a running watcher and dev server.
type E2ETestSystem struct {
	ProjectDir string
	Syncer     *watcher.Syncer
	Server     *server.Server
	HTTP       *httptest.Server
}

// NewE2ETestSystem lays out a project, syncs it once, and starts the watcher
// and the dev server.
func NewE2ETestSystem(t *testing.T) *E2ETestSystem {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"src/pages/index.astro":         indexPage,
		"src/layouts/Base.astro":        baseLayout,
		"src/components/Hero.astro":     "<section />\n",
		"src/components/Features.astro": "<ul />\n",
		"content/example.com/hero.json": `{"title": "Hello"}`,
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	logger := logging.Discard()
	pass := transform.NewPass(transform.DefaultOptions(), logger)

	syncer, err := watcher.NewSyncer(pass, filepath.Join(dir, "src"), filepath.Join(dir, ".devlens", "src"), logger)
	require.NoError(t, err)
	stats, err := syncer.SyncAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.Transformed)

	fw, err := watcher.NewFileWatcher(20*time.Millisecond, logger)
	require.NoError(t, err)
	fw.AddFilter(watcher.NoHiddenFilter)
	fw.SkipDir(syncer.Output())
	fw.AddHandler(syncer.Handler())
	require.NoError(t, fw.AddRecursive(syncer.Source()))
	require.NoError(t, fw.Start(ctx))
	t.Cleanup(func() { fw.Stop() })

	history, err := store.OpenHistory(filepath.Join(dir, ".devlens", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { history.Close() })

	reg := prometheus.NewRegistry()
	srv, err := server.New(server.Options{
		Config: &config.Config{
			Server:  config.ServerConfig{Host: "localhost"},
			Overlay: config.OverlayConfig{Mode: "standalone"},
		},
		Store:      store.New(store.NewFileBackend(filepath.Join(dir, "content")), history, logger),
		Pages:      store.NewPages(filepath.Join(dir, "src", "pages"), pass, logger),
		Resolver:   tenant.NewResolver([]tenant.Site{{ID: site, Hosts: []string{site}}}),
		Logger:     logger,
		Registerer: reg,
		Gatherer:   reg,
	})
	require.NoError(t, err)

	go srv.Hub().Run(ctx)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &E2ETestSystem{ProjectDir: dir, Syncer: syncer, Server: srv, HTTP: ts}
}

func (s *E2ETestSystem) output(t *testing.T, rel string) string {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join(s.Syncer.Output(), rel))
	require.NoError(t, err)
	return string(raw)
}

func (s *E2ETestSystem) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(s.HTTP.URL, "http") + path
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": {s.HTTP.URL}},
	})
	require.NoError(t, err)
	conn.SetReadLimit(1 << 20)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg overlay.ClientMessage) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, conn, msg))
}

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

func TestE2E_InstrumentReorderAndResync(t *testing.T) {
	sys := NewE2ETestSystem(t)

	page := sys.output(t, "pages/index.astro")
	assert.Contains(t, page, `data-component-id="hero-0"`)
	assert.Contains(t, page, `data-component-id="features-1"`)
	assert.Contains(t, sys.output(t, "layouts/Base.astro"), "<DevOverlay />")

	conn := sys.dial(t, "/ws/overlay?page=/&site="+site)
	send(t, conn, overlay.ClientMessage{Type: overlay.ClientSnapshot, Document: rendered})
	msg := expect(t, conn, overlay.ServerAnchors)
	require.Len(t, msg.Anchors, 2)

	send(t, conn, overlay.ClientMessage{Type: overlay.ClientControl, ID: "hero-0", Action: overlay.ActionMoveDown})
	expect(t, conn, overlay.ServerReload)

	source, err := os.ReadFile(filepath.Join(sys.ProjectDir, "src", "pages", "index.astro"))
	require.NoError(t, err)
	assert.Less(t, strings.Index(string(source), "<Features"), strings.Index(string(source), "<Hero"))

	// The watcher re-instruments the swapped page.
	require.Eventually(t, func() bool {
		raw, err := os.ReadFile(filepath.Join(sys.Syncer.Output(), "pages", "index.astro"))
		return err == nil && strings.Contains(string(raw), `data-component-id="features-0"`)
	}, 5*time.Second, 20*time.Millisecond)
	assert.Contains(t, sys.output(t, "pages/index.astro"), `data-component-id="hero-1"`)
}

func TestE2E_EditDataRecordsHistory(t *testing.T) {
	sys := NewE2ETestSystem(t)
	client := sys.HTTP.Client()

	req, err := http.NewRequest(http.MethodPut, sys.HTTP.URL+"/api/data?site="+site+"&path=hero.json",
		bytes.NewBufferString(`{"title": "Welcome"}`))
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	raw, err := os.ReadFile(filepath.Join(sys.ProjectDir, "content", site, "hero.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"title": "Welcome"}`, string(raw))

	resp, err = client.Get(sys.HTTP.URL + "/api/history?site=" + site + "&path=hero.json")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var revisions []store.Revision
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&revisions))
	require.Len(t, revisions, 1)
	assert.Equal(t, `{"title": "Hello"}`, revisions[0].Before)
	assert.Equal(t, `{"title": "Welcome"}`, revisions[0].After)

	resp, err = client.Get(sys.HTTP.URL + "/api/data?path=hero.json")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}
