// Package overlay keeps one floating control anchor per tracked component and
// turns user interaction with those anchors into registry changes and host
// notifications.
//
// Anchors are positioned and styled here; the browser shim only measures
// elements and paints what it is told.
package overlay

import (
	"context"
	"fmt"
	"sync"

	"github.com/conneroisu/devlens/internal/errors"
	"github.com/conneroisu/devlens/internal/logging"
	"github.com/conneroisu/devlens/internal/registry"
	"github.com/conneroisu/devlens/internal/types"
)

// Outline is the styling an anchor applies to its component.
type Outline struct {
	Visible    bool   `json:"visible"`
	Color      string `json:"color,omitempty"`
	Persistent bool   `json:"persistent,omitempty"`
}

// Style renders the outline as an inline CSS declaration. An invisible
// outline renders as the empty string so the page is left unaffected.
func (o Outline) Style() string {
	if !o.Visible {
		return ""
	}
	return fmt.Sprintf("outline: 2px solid %s; outline-offset: 2px;", o.Color)
}

// Anchor is the overlay state of one tracked component.
type Anchor struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Position Position  `json:"position"`
	Hovered  bool      `json:"hovered"`
	Outline  Outline   `json:"outline"`
	Controls []Control `json:"controls"`
}

// Options configures an Overlay.
type Options struct {
	// Site is the resolved site identifier; empty when resolution failed.
	Site string
	// SiteErr is the resolution failure, surfaced when an action needs a site.
	SiteErr error
	// Host receives selection events in embedded mode.
	Host HostNotifier
	// HoverColor and SelectedColor style anchor outlines.
	HoverColor    string
	SelectedColor string
}

// Overlay reconciles anchors with a registry.
type Overlay struct {
	registry *registry.Registry
	anchors  map[string]*Anchor
	opts     Options
	mutex    sync.Mutex
	logger   logging.Logger
}

// New creates an overlay over reg.
func New(reg *registry.Registry, opts Options, logger logging.Logger) *Overlay {
	if opts.HoverColor == "" {
		opts.HoverColor = "#3b82f6"
	}
	if opts.SelectedColor == "" {
		opts.SelectedColor = "#10b981"
	}
	return &Overlay{
		registry: reg,
		anchors:  make(map[string]*Anchor),
		opts:     opts,
		logger:   logger.WithComponent("overlay"),
	}
}

// Registry returns the registry the overlay renders.
func (o *Overlay) Registry() *registry.Registry {
	return o.registry
}

// Site returns the resolved site and the resolution error, if any.
func (o *Overlay) Site() (string, error) {
	return o.opts.Site, o.opts.SiteErr
}

// Sync reconciles anchors with the registry. It returns the ids whose anchors
// were removed; their outlines must be cleared by the caller.
func (o *Overlay) Sync() []string {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	components := o.registry.All()
	live := make(map[string]bool, len(components))
	for _, c := range components {
		live[c.ID] = true
		a, ok := o.anchors[c.ID]
		if !ok {
			a = &Anchor{ID: c.ID}
			o.anchors[c.ID] = a
		}
		o.refresh(a, c)
	}

	var removed []string
	for id := range o.anchors {
		if !live[id] {
			delete(o.anchors, id)
			removed = append(removed, id)
		}
	}
	return removed
}

// Anchors returns the anchors in document order.
func (o *Overlay) Anchors() []Anchor {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	var out []Anchor
	for _, c := range o.registry.All() {
		if a, ok := o.anchors[c.ID]; ok {
			out = append(out, *a)
		}
	}
	return out
}

// Layout records the measured bounding box of id.
func (o *Overlay) Layout(id string, rect Rect, scroll Point) (Position, error) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	a, ok := o.anchors[id]
	if !ok {
		return Position{}, errors.ErrComponentNotFound(id)
	}
	a.Position = PositionFor(rect, scroll)
	return a.Position, nil
}

// Hover marks id as hovered and returns its outline.
func (o *Overlay) Hover(id string) (Anchor, error) {
	return o.setHover(id, true)
}

// Leave clears the hover on id and returns its outline, which stays visible
// when the component is selected.
func (o *Overlay) Leave(id string) (Anchor, error) {
	return o.setHover(id, false)
}

func (o *Overlay) setHover(id string, hovered bool) (Anchor, error) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	a, ok := o.anchors[id]
	c, found := o.registry.Get(id)
	if !ok || !found {
		return Anchor{}, errors.ErrComponentNotFound(id)
	}
	a.Hovered = hovered
	o.refresh(a, c)
	return *a, nil
}

// Toggle flips the marking of id. In embedded mode the host is told about the
// new selection state; without a resolved site the toggle is refused.
func (o *Overlay) Toggle(ctx context.Context, id string) (Anchor, error) {
	embedded := o.registry.Mode() == types.ModeEmbedded
	if embedded && o.opts.Site == "" {
		err := o.siteError()
		o.logger.Warn(ctx, err, "Refusing selection without a site", "id", id)
		return Anchor{}, err
	}

	c, err := o.registry.Toggle(id)
	if err != nil {
		return Anchor{}, err
	}

	if embedded && o.opts.Host != nil {
		msg := HostMessage{
			Type:    MessageComponentDeselected,
			Payload: &Selection{ID: c.ID, Name: c.Name, Path: c.DataPath, Site: o.opts.Site},
		}
		if types.IsSelected(c.Marking) {
			msg.Type = MessageComponentSelected
		}
		if err := o.opts.Host.NotifyHost(ctx, msg); err != nil {
			o.logger.Warn(ctx, err, "Failed to notify host", "id", id, "type", msg.Type)
		}
	}

	o.mutex.Lock()
	defer o.mutex.Unlock()
	a, ok := o.anchors[id]
	if !ok {
		a = &Anchor{ID: id}
		o.anchors[id] = a
	}
	o.refresh(a, c)
	return *a, nil
}

// ClearSelections resets every selection, as requested by the host, and
// returns the affected anchors.
func (o *Overlay) ClearSelections(ctx context.Context) []Anchor {
	ids := o.registry.ClearSelections()
	o.logger.Debug(ctx, "Cleared selections", "count", len(ids))

	o.mutex.Lock()
	defer o.mutex.Unlock()

	var out []Anchor
	for _, id := range ids {
		a, ok := o.anchors[id]
		c, found := o.registry.Get(id)
		if !ok || !found {
			continue
		}
		o.refresh(a, c)
		out = append(out, *a)
	}
	return out
}

// HandleHostMessage applies a command received from the host.
func (o *Overlay) HandleHostMessage(ctx context.Context, msg HostMessage) ([]Anchor, error) {
	switch msg.Type {
	case MessageClearAllSelections:
		return o.ClearSelections(ctx), nil
	default:
		return nil, errors.NewValidationError(errors.ErrCodeInvalidState,
			fmt.Sprintf("unsupported host message %q", msg.Type))
	}
}

// refresh must be called with the mutex held.
func (o *Overlay) refresh(a *Anchor, c *types.TrackedComponent) {
	a.Name = c.Name
	a.Controls = ControlsFor(c)
	selected := types.IsSelected(c.Marking)
	switch {
	case selected:
		a.Outline = Outline{Visible: true, Color: o.opts.SelectedColor, Persistent: !a.Hovered}
	case a.Hovered:
		a.Outline = Outline{Visible: true, Color: o.opts.HoverColor}
	default:
		a.Outline = Outline{}
	}
}

func (o *Overlay) siteError() error {
	if o.opts.SiteErr != nil {
		return o.opts.SiteErr
	}
	return errors.ErrSiteUnresolved("")
}
