package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/conneroisu/devlens/internal/editor"
	"github.com/conneroisu/devlens/internal/errors"
	"github.com/conneroisu/devlens/internal/store"
)

// maxBodySize bounds data API request bodies.
const maxBodySize = 10 << 20

// apiError is the JSON error body of the data API.
type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// statusFor maps an error to an HTTP status code.
func statusFor(err error) int {
	if errors.IsNotFound(err) {
		return http.StatusNotFound
	}
	switch errors.TypeOf(err) {
	case errors.ErrorTypeValidation, errors.ErrorTypeParse:
		return http.StatusBadRequest
	case errors.ErrorTypeResolution:
		return http.StatusUnprocessableEntity
	case errors.ErrorTypeNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), err, "Data API request failed", "path", r.URL.Path)
	} else {
		s.logger.Debug(r.Context(), "Data API request rejected", "path", r.URL.Path, "error", err.Error())
	}
	writeJSON(w, status, apiError{Error: err.Error(), Code: errors.CodeOf(err)})
}

// site resolves the request's site from its explicit site parameter or host.
func (s *Server) site(r *http.Request, override string) (string, error) {
	query := r.URL.Query()
	if override != "" {
		query = url.Values{"site": {override}}
	}
	return s.resolver.Resolve(r.Host, query)
}

func (s *Server) handleGetData(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, r, errors.NewIOError(errors.ErrCodeNotFound, "data store is not configured", nil))
		return
	}
	site, err := s.site(r, "")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	data, err := s.store.Load(r.Context(), site, r.URL.Query().Get("path"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handlePutData(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, r, errors.NewIOError(errors.ErrCodeNotFound, "data store is not configured", nil))
		return
	}
	site, err := s.site(r, "")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		s.writeError(w, r, errors.WrapIO(err, errors.ErrCodeRequestFailed, "cannot read request body"))
		return
	}
	if len(body) > maxBodySize {
		s.writeError(w, r, errors.NewValidationError(errors.ErrCodeInvalidJSON, "request body too large"))
		return
	}

	path := r.URL.Query().Get("path")
	if err := s.store.Replace(r.Context(), site, path, body); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.invalidate(site, path)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReorder(w http.ResponseWriter, r *http.Request) {
	if s.pages == nil {
		s.writeError(w, r, errors.NewIOError(errors.ErrCodeNotFound, "page sources are not configured", nil))
		return
	}
	var req editor.SwapRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil {
		s.writeError(w, r, errors.NewParseError(errors.ErrCodeInvalidJSON, "invalid reorder request", err))
		return
	}
	if _, err := s.site(r, req.Site); err != nil {
		s.writeError(w, r, err)
		return
	}

	err := s.pages.Swap(r.Context(), req.Page,
		store.SwapSide{Name: req.First.Name, Order: req.First.Order},
		store.SwapSide{Name: req.Second.Name, Order: req.Second.Order})
	if err != nil {
		s.metrics.reordersTotal.WithLabelValues("error").Inc()
		s.writeError(w, r, err)
		return
	}
	s.metrics.reordersTotal.WithLabelValues("ok").Inc()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil || s.store.History() == nil {
		s.writeError(w, r, errors.NewIOError(errors.ErrCodeNotFound, "revision history is disabled", nil))
		return
	}
	site, err := s.site(r, "")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.writeError(w, r, errors.NewValidationError(errors.ErrCodeOutOfRange, "limit must be a positive integer"))
			return
		}
		limit = n
	}

	revisions, err := s.store.History().List(r.Context(), site, r.URL.Query().Get("path"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if revisions == nil {
		revisions = []store.Revision{}
	}
	writeJSON(w, http.StatusOK, revisions)
}
