// Package editor implements the data editor: a session that loads the JSON
// payload behind one tracked component, lets it be edited as text, validates
// it and saves it back, plus the swap protocol used for reordering.
package editor

import (
	"context"
	"sync"

	"github.com/conneroisu/devlens/internal/errors"
	"github.com/conneroisu/devlens/internal/logging"
)

// State is the editor session state.
type State int

const (
	StateClosed State = iota
	StateLoading
	StateViewing
	StateEditing
	StateSaving
)

// String returns the string representation of the State
func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateViewing:
		return "viewing"
	case StateEditing:
		return "editing"
	case StateSaving:
		return "saving"
	default:
		return "closed"
	}
}

// emptyPayload is shown when loading fails.
const emptyPayload = "{}"

// Target identifies the component being edited.
type Target struct {
	ComponentID string `json:"componentId"`
	Name        string `json:"name"`
	DataPath    string `json:"path"`
	Site        string `json:"site"`
}

// Snapshot is a point-in-time view of a session.
type Snapshot struct {
	State      State       `json:"-"`
	StateName  string      `json:"state"`
	Target     Target      `json:"target"`
	Text       string      `json:"text"`
	Dirty      bool        `json:"dirty"`
	ParseError *ParseError `json:"parseError,omitempty"`
	Error      string      `json:"error,omitempty"`
	CanSave    bool        `json:"canSave"`
}

// Options configures a Session.
type Options struct {
	// Cache is shared between sessions of one page; nil disables caching.
	Cache *Cache
	// Reload is called after a successful save.
	Reload func()
	// OnChange is called with a snapshot after every state change.
	OnChange func(Snapshot)
	// OnData is called with the payload of target whenever it is known to
	// match the store: after a successful load or cache hit, and after a
	// successful save. It is not called for the empty object shown on load
	// failure.
	OnData func(target Target, text string)
}

// Session is one data editor. Its methods are safe for concurrent use; a
// response arriving after the session was closed or reopened is discarded.
type Session struct {
	client DataClient
	opts   Options
	logger logging.Logger

	mu         sync.Mutex
	state      State
	generation uint64
	target     Target
	original   string
	text       string
	parseErr   *ParseError
	err        error
}

// NewSession creates a closed session.
func NewSession(client DataClient, opts Options, logger logging.Logger) *Session {
	return &Session{
		client: client,
		opts:   opts,
		logger: logger.WithComponent("editor"),
	}
}

// Open starts editing target. It blocks while the payload loads unless the
// payload is cached. A load failure leaves the session Viewing an empty
// object with the error surfaced.
func (s *Session) Open(ctx context.Context, target Target) error {
	if target.Site == "" {
		err := errors.ErrSiteUnresolved("")
		s.logger.Warn(ctx, err, "Refusing to open editor without a site", "path", target.DataPath)
		return err
	}
	if target.DataPath == "" {
		return errors.NewValidationError(errors.ErrCodeInvalidDataPath, "component has no data path")
	}

	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.target = target
	s.err = nil
	s.parseErr = nil

	if s.opts.Cache != nil {
		if text, ok := s.opts.Cache.Get(target.Site, target.DataPath); ok {
			s.original, s.text = text, text
			s.state = StateViewing
			snap := s.snapshotLocked()
			s.mu.Unlock()
			s.changed(snap)
			s.loaded(target, text)
			return nil
		}
	}

	s.state = StateLoading
	s.original, s.text = "", ""
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.changed(snap)

	text, err := s.client.Load(ctx, target.Site, target.DataPath)

	s.mu.Lock()
	if gen != s.generation || s.state != StateLoading {
		s.mu.Unlock()
		s.logger.Debug(ctx, "Discarding stale load", "path", target.DataPath)
		return nil
	}
	if err != nil {
		s.logger.Error(ctx, err, "Failed to load component data", "path", target.DataPath, "site", target.Site)
		text = emptyPayload
		s.err = err
	} else if s.opts.Cache != nil {
		s.opts.Cache.Put(target.Site, target.DataPath, text)
	}
	s.original, s.text = text, text
	s.parseErr = Validate(text)
	s.state = StateViewing
	snap = s.snapshotLocked()
	s.mu.Unlock()
	s.changed(snap)
	if err == nil {
		s.loaded(target, text)
	}
	return err
}

// Edit replaces the text being edited and revalidates it.
func (s *Session) Edit(text string) error {
	s.mu.Lock()
	if s.state != StateViewing && s.state != StateEditing {
		state := s.state
		s.mu.Unlock()
		return errors.NewValidationError(errors.ErrCodeInvalidState, "cannot edit while "+state.String())
	}
	s.text = text
	s.parseErr = Validate(text)
	s.state = StateEditing
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.changed(snap)
	return nil
}

// Format canonicalizes the text. Invalid text is left as is.
func (s *Session) Format() error {
	s.mu.Lock()
	if s.state != StateViewing && s.state != StateEditing {
		state := s.state
		s.mu.Unlock()
		return errors.NewValidationError(errors.ErrCodeInvalidState, "cannot format while "+state.String())
	}
	formatted, err := Canonicalize(s.text)
	if err != nil {
		s.mu.Unlock()
		return errors.NewParseError(errors.ErrCodeInvalidJSON, "cannot format invalid JSON", err)
	}
	if formatted != s.text {
		s.text = formatted
		s.state = StateEditing
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.changed(snap)
	return nil
}

// Save submits the text. It is only allowed when the text is valid, differs
// from what was loaded, and no save is in flight. On failure the session goes
// back to Editing with the edits kept.
func (s *Session) Save(ctx context.Context) error {
	s.mu.Lock()
	if !s.canSaveLocked() {
		state := s.state
		s.mu.Unlock()
		return errors.NewValidationError(errors.ErrCodeInvalidState, "nothing valid to save while "+state.String())
	}
	gen := s.generation
	target, text := s.target, s.text
	s.state = StateSaving
	s.err = nil
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.changed(snap)

	err := s.client.Save(ctx, target.Site, target.DataPath, text)

	s.mu.Lock()
	if gen != s.generation || s.state != StateSaving {
		s.mu.Unlock()
		s.logger.Debug(ctx, "Discarding stale save response", "path", target.DataPath)
		return err
	}
	if err != nil {
		s.logger.Error(ctx, err, "Failed to save component data", "path", target.DataPath, "site", target.Site)
		s.err = err
		s.state = StateEditing
		snap = s.snapshotLocked()
		s.mu.Unlock()
		s.changed(snap)
		return err
	}

	if s.opts.Cache != nil {
		s.opts.Cache.Put(target.Site, target.DataPath, text)
	}
	s.closeLocked()
	snap = s.snapshotLocked()
	s.mu.Unlock()
	s.changed(snap)
	s.loaded(target, text)

	s.logger.Info(ctx, "Saved component data", "path", target.DataPath, "site", target.Site)
	if s.opts.Reload != nil {
		s.opts.Reload()
	}
	return nil
}

// Close ends the session. Unsaved edits are only discarded when confirm is
// true.
func (s *Session) Close(confirm bool) error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	if s.dirtyLocked() && !confirm {
		s.mu.Unlock()
		return errors.NewValidationError(errors.ErrCodeUnsavedChanges, "discard unsaved changes?")
	}
	s.closeLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.changed(snap)
	return nil
}

// Snapshot returns the current session view.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) closeLocked() {
	s.generation++
	s.state = StateClosed
	s.target = Target{}
	s.original, s.text = "", ""
	s.parseErr = nil
	s.err = nil
}

func (s *Session) dirtyLocked() bool {
	return (s.state == StateEditing || s.state == StateViewing || s.state == StateSaving) && s.text != s.original
}

func (s *Session) canSaveLocked() bool {
	return (s.state == StateEditing || s.state == StateViewing) && s.parseErr == nil && s.dirtyLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:      s.state,
		StateName:  s.state.String(),
		Target:     s.target,
		Text:       s.text,
		Dirty:      s.dirtyLocked(),
		ParseError: s.parseErr,
		CanSave:    s.canSaveLocked(),
	}
	if s.err != nil {
		snap.Error = s.err.Error()
	}
	return snap
}

func (s *Session) changed(snap Snapshot) {
	if s.opts.OnChange != nil {
		s.opts.OnChange(snap)
	}
}

func (s *Session) loaded(target Target, text string) {
	if s.opts.OnData != nil {
		s.opts.OnData(target, text)
	}
}
