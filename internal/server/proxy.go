package server

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"

	"github.com/conneroisu/devlens/internal/overlay"
)

const overlayEndpoint = "/ws/overlay"

// newProxy forwards requests to the site's dev server and injects the
// overlay mount into HTML responses.
func (s *Server) newProxy(upstream *url.URL) http.Handler {
	proxy := httputil.NewSingleHostReverseProxy(upstream)

	director := proxy.Director
	proxy.Director = func(r *http.Request) {
		director(r)
		// Injection needs the body uncompressed.
		r.Header.Del("Accept-Encoding")
	}

	proxy.ModifyResponse = func(resp *http.Response) error {
		if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") {
			return nil
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return err
		}

		req := resp.Request
		site, _ := s.resolver.Resolve(req.Host, req.URL.Query())
		mount, err := overlay.RenderString(req.Context(), overlay.Mount(overlay.MountConfig{
			Endpoint: overlayEndpoint,
			Page:     req.URL.Path,
			Site:     site,
			Mode:     s.config.Mode().String(),
		}))
		if err != nil {
			return err
		}

		body = injectMount(body, mount)
		resp.Body = io.NopCloser(bytes.NewReader(body))
		resp.ContentLength = int64(len(body))
		resp.Header.Set("Content-Length", strconv.Itoa(len(body)))
		resp.Header.Del("Content-Encoding")
		return nil
	}

	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		if err == context.Canceled {
			return
		}
		s.metrics.proxyErrors.Inc()
		s.logger.Warn(r.Context(), err, "Upstream request failed", "path", r.URL.Path, "upstream", upstream.String())
		http.Error(w, "upstream dev server unavailable", http.StatusBadGateway)
	}
	return proxy
}

// injectMount inserts mount before the last closing body tag, or appends it
// when the page has none. Pages that already carry the mount are unchanged.
func injectMount(page []byte, mount string) []byte {
	if bytes.Contains(page, []byte(`id="devlens-overlay"`)) {
		return page
	}
	lower := bytes.ToLower(page)
	i := bytes.LastIndex(lower, []byte("</body>"))
	if i < 0 {
		return append(page, mount...)
	}
	out := make([]byte, 0, len(page)+len(mount))
	out = append(out, page[:i]...)
	out = append(out, mount...)
	out = append(out, page[i:]...)
	return out
}
