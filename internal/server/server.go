// Package server is the devlens dev server. It serves the data API used by
// the overlay editor, the overlay and host websockets, and proxies every other
// request to the site's own dev server, injecting the overlay mount into HTML
// pages.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/conneroisu/devlens/internal/config"
	"github.com/conneroisu/devlens/internal/editor"
	"github.com/conneroisu/devlens/internal/errors"
	"github.com/conneroisu/devlens/internal/logging"
	"github.com/conneroisu/devlens/internal/store"
	"github.com/conneroisu/devlens/internal/tenant"
	"github.com/conneroisu/devlens/internal/version"
)

// Options holds the collaborators of a Server.
type Options struct {
	Config   *config.Config
	Store    *store.Store
	Pages    *store.Pages
	Resolver *tenant.Resolver
	Logger   logging.Logger
	// Registerer and Gatherer back /metrics; nil uses the process defaults.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// Server is the devlens dev server.
type Server struct {
	config   *config.Config
	store    *store.Store
	pages    *store.Pages
	resolver *tenant.Resolver
	logger   logging.Logger
	metrics  *metrics
	gatherer prometheus.Gatherer
	hub      *Hub
	proxy    http.Handler

	cachesMutex sync.Mutex
	caches      map[string]*editor.Cache

	httpServer   *http.Server
	serverMutex  sync.RWMutex
	shutdownOnce sync.Once
}

// New creates a server. The upstream proxy is only mounted when an upstream
// is configured.
func New(opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.DefaultRegisterer
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.Resolver == nil {
		opts.Resolver = tenant.NewResolver(nil)
	}

	logger := opts.Logger.WithComponent("server")
	s := &Server{
		config:   opts.Config,
		store:    opts.Store,
		pages:    opts.Pages,
		resolver: opts.Resolver,
		logger:   logger,
		metrics:  newMetrics(opts.Registerer),
		gatherer: opts.Gatherer,
		caches:   make(map[string]*editor.Cache),
	}
	s.hub = NewHub(logger, s.metrics)

	if opts.Config.Server.Upstream != "" {
		upstream, err := url.Parse(opts.Config.Server.Upstream)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, errors.ErrCodeConfigInvalid, "invalid upstream URL")
		}
		s.proxy = s.newProxy(upstream)
	}
	return s, nil
}

// Hub returns the host channel hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler builds the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(s.cors)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/data", s.instrument("get", s.handleGetData))
		r.Put("/data", s.instrument("put", s.handlePutData))
		r.Post("/reorder", s.instrument("reorder", s.handleReorder))
		r.Get("/history", s.instrument("history", s.handleHistory))
	})

	r.Get("/ws/overlay", s.handleOverlaySocket)
	r.Get("/ws/host", s.handleHostSocket)

	if s.proxy != nil {
		r.NotFound(s.proxy.ServeHTTP)
		r.MethodNotAllowed(s.proxy.ServeHTTP)
	}
	return r
}

// Start runs the server until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)

	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Addr:              s.config.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "Dev server listening", "addr", server.Addr, "upstream", s.config.Server.Upstream)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return errors.NewNetworkError(errors.ErrCodeRequestFailed, "server error", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown gracefully shuts down the server and closes every websocket.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.logger.Info(ctx, "Shutting down server")
		s.hub.Close()

		s.serverMutex.RLock()
		server := s.httpServer
		s.serverMutex.RUnlock()

		if server != nil {
			shutdownErr = server.Shutdown(ctx)
		}
	})

	return shutdownErr
}

// cacheFor returns the editor cache shared by the sessions of one page.
func (s *Server) cacheFor(site, page string) *editor.Cache {
	s.cachesMutex.Lock()
	defer s.cachesMutex.Unlock()

	key := site + "\x00" + page
	c, ok := s.caches[key]
	if !ok {
		c = editor.NewCache()
		s.caches[key] = c
	}
	return c
}

// invalidate drops path from every page cache after an out-of-band write.
func (s *Server) invalidate(site, path string) {
	s.cachesMutex.Lock()
	defer s.cachesMutex.Unlock()
	for _, c := range s.caches {
		c.Invalidate(site, path)
	}
}

// handleHealth returns the server health status for health checks
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   version.GetShortVersion(),
		"checks": map[string]interface{}{
			"store":    map[string]interface{}{"enabled": s.store != nil},
			"pages":    map[string]interface{}{"enabled": s.pages != nil},
			"history":  map[string]interface{}{"enabled": s.store != nil && s.store.History() != nil},
			"sites":    map[string]interface{}{"configured": s.resolver.Sites()},
			"sessions": map[string]interface{}{"overlay": s.hub.Sessions(), "host": s.hub.HostClients()},
		},
	}
	writeJSON(w, http.StatusOK, health)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
