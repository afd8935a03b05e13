// Package store persists the structured data behind tracked components and
// applies reorder swaps to page sources.
//
// Data is addressed by data paths: a JSON file relative to a site's data root,
// optionally followed by an array index selecting one element of a top-level
// array. Indexed writes splice the new element into the exact byte range of
// the old one, so unrelated formatting in the file is never touched.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/conneroisu/devlens/internal/errors"
	"github.com/conneroisu/devlens/internal/logging"
)

const tracerName = "github.com/conneroisu/devlens/internal/store"

// Store loads and replaces component data through a Backend.
type Store struct {
	backend Backend
	history *History
	logger  logging.Logger
	tracer  trace.Tracer
	mu      sync.Mutex
}

// New creates a store. history may be nil.
func New(backend Backend, history *History, logger logging.Logger) *Store {
	return &Store{
		backend: backend,
		history: history,
		logger:  logger.WithComponent("store"),
		tracer:  otel.Tracer(tracerName),
	}
}

// History returns the revision history, or nil.
func (s *Store) History() *History {
	return s.history
}

// Load returns the raw bytes at rawPath: the whole file, or the exact source
// bytes of the indexed element.
func (s *Store) Load(ctx context.Context, site, rawPath string) (data []byte, err error) {
	ctx, span := s.tracer.Start(ctx, "store.Load", trace.WithAttributes(
		attribute.String("devlens.site", site),
		attribute.String("devlens.path", rawPath),
	))
	defer func() { endSpan(span, err) }()

	p, err := ParseDataPath(rawPath)
	if err != nil {
		return nil, err
	}
	doc, err := s.backend.Read(ctx, site, p.File)
	if err != nil {
		return nil, err
	}
	if !p.Indexed {
		return doc, nil
	}
	start, end, err := elementRange(doc, p.Index)
	if err != nil {
		return nil, err
	}
	return doc[start:end], nil
}

// Replace validates body and stores it at rawPath. Indexed paths splice the
// body into the element's byte range; the rest of the file is kept verbatim.
func (s *Store) Replace(ctx context.Context, site, rawPath string, body []byte) (err error) {
	ctx, span := s.tracer.Start(ctx, "store.Replace", trace.WithAttributes(
		attribute.String("devlens.site", site),
		attribute.String("devlens.path", rawPath),
		attribute.Int("devlens.bytes", len(body)),
	))
	defer func() { endSpan(span, err) }()

	p, err := ParseDataPath(rawPath)
	if err != nil {
		return err
	}
	if !json.Valid(body) {
		return errors.NewValidationError(errors.ErrCodeInvalidJSON, "body is not valid JSON")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var before, next []byte
	if p.Indexed {
		doc, err := s.backend.Read(ctx, site, p.File)
		if err != nil {
			return err
		}
		start, end, err := elementRange(doc, p.Index)
		if err != nil {
			return err
		}
		trimmed := bytes.TrimSpace(body)
		before = doc[start:end]
		next = make([]byte, 0, len(doc)-len(before)+len(trimmed))
		next = append(next, doc[:start]...)
		next = append(next, trimmed...)
		next = append(next, doc[end:]...)
		body = trimmed
	} else {
		before, err = s.backend.Read(ctx, site, p.File)
		if err != nil && !errors.IsNotFound(err) {
			return err
		}
		next = body
	}

	if err := s.backend.Write(ctx, site, p.File, next); err != nil {
		return err
	}

	if s.history != nil {
		if _, err := s.history.Record(ctx, site, p.String(), before, body); err != nil {
			s.logger.Warn(ctx, err, "Failed to record revision", "site", site, "path", rawPath)
		}
	}
	s.logger.Info(ctx, "Replaced component data", "site", site, "path", rawPath, "bytes", len(body))
	return nil
}

// elementRange returns the byte range of element index of the top-level
// array in doc.
func elementRange(doc []byte, index int) (int, int, error) {
	dec := json.NewDecoder(bytes.NewReader(doc))
	tok, err := dec.Token()
	if err != nil {
		return 0, 0, errors.NewParseError(errors.ErrCodeInvalidJSON, "data file is not valid JSON", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return 0, 0, errors.NewValidationError(errors.ErrCodeInvalidDataPath,
			"indexed data path on a file that is not an array")
	}

	for i := 0; dec.More(); i++ {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return 0, 0, errors.NewParseError(errors.ErrCodeInvalidJSON, "data file is not valid JSON", err)
		}
		if i == index {
			end := int(dec.InputOffset())
			return end - len(raw), end, nil
		}
	}
	return 0, 0, errors.NewValidationError(errors.ErrCodeOutOfRange,
		fmt.Sprintf("index %d is out of range", index))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
