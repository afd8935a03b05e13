package server

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/devlens/internal/config"
	"github.com/conneroisu/devlens/internal/logging"
	"github.com/conneroisu/devlens/internal/store"
	"github.com/conneroisu/devlens/internal/tenant"
	"github.com/conneroisu/devlens/internal/transform"
)

const heroJSON = `{
  "title": "Hello",
  "items": [1, 2]
}
`

const indexPage = `---
import Hero from '../components/Hero.astro';
import Features from '../components/Features.astro';
import heroData from '../data/hero.json';
import featuresData from '../data/features.json';
---
<main>
  <Hero data={heroData} />
  <Features data={featuresData} />
</main>
`

type testEnv struct {
	server   *Server
	registry *prometheus.Registry
	dataDir  string
	pagesDir string
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	root := t.TempDir()

	dataDir := filepath.Join(root, "content")
	require.NoError(t, os.MkdirAll(filepath.Join(dataDir, "example.com"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "example.com", "hero.json"), []byte(heroJSON), 0644))

	pagesDir := filepath.Join(root, "src", "pages")
	require.NoError(t, os.MkdirAll(pagesDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(pagesDir, "index.astro"), []byte(indexPage), 0644))

	history, err := store.OpenHistory(filepath.Join(root, "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { history.Close() })

	cfg := &config.Config{
		Server:  config.ServerConfig{Host: "localhost", AllowedOrigins: []string{"http://dashboard.test"}},
		Overlay: config.OverlayConfig{Mode: "standalone"},
	}
	if mutate != nil {
		mutate(cfg)
	}

	logger := logging.Discard()
	reg := prometheus.NewRegistry()
	srv, err := New(Options{
		Config:     cfg,
		Store:      store.New(store.NewFileBackend(dataDir), history, logger),
		Pages:      store.NewPages(pagesDir, transform.NewPass(transform.DefaultOptions(), logger), logger),
		Resolver:   tenant.NewResolver([]tenant.Site{{ID: "example.com", Hosts: []string{"example.com", "127.0.0.1"}}}),
		Logger:     logger,
		Registerer: reg,
		Gatherer:   reg,
	})
	require.NoError(t, err)

	return &testEnv{server: srv, registry: reg, dataDir: dataDir, pagesDir: pagesDir}
}
