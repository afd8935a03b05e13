// Package types provides common type definitions used throughout devlens.
// This package contains shared types to avoid circular dependencies between
// the registry, overlay, editor and server packages.
package types

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// Mode is the operating mode of an overlay session.
type Mode int

const (
	// ModeStandalone is plain inspection: the toggle marks components reusable.
	ModeStandalone Mode = iota
	// ModeEmbedded runs inside a host dashboard: the toggle selects components
	// and selection changes are reported to the host.
	ModeEmbedded
)

// String returns the string representation of the Mode
func (m Mode) String() string {
	if m == ModeEmbedded {
		return "embedded"
	}
	return "standalone"
}

// ParseMode parses "standalone" or "embedded".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "standalone":
		return ModeStandalone, nil
	case "embedded":
		return ModeEmbedded, nil
	default:
		return ModeStandalone, fmt.Errorf("unknown overlay mode %q", s)
	}
}

// InitialMarking returns the unset marking for the mode.
func (m Mode) InitialMarking() Marking {
	if m == ModeEmbedded {
		return Embedded{}
	}
	return Standalone{}
}

// Marking is the toggle state of a tracked component. Its concrete type
// carries the meaning: Standalone marks reuse, Embedded marks selection.
type Marking interface {
	// Active reports whether the toggle is on.
	Active() bool
	// Toggled returns the marking with the toggle flipped.
	Toggled() Marking
	isMarking()
}

// Standalone is the marking used in standalone mode.
type Standalone struct {
	Reusable bool
}

// Active reports whether the component is marked reusable.
func (s Standalone) Active() bool { return s.Reusable }

// Toggled flips the reusable flag.
func (s Standalone) Toggled() Marking { return Standalone{Reusable: !s.Reusable} }

func (Standalone) isMarking() {}

// Embedded is the marking used in embedded mode.
type Embedded struct {
	Selected bool
}

// Active reports whether the component is selected.
func (e Embedded) Active() bool { return e.Selected }

// Toggled flips the selected flag.
func (e Embedded) Toggled() Marking { return Embedded{Selected: !e.Selected} }

func (Embedded) isMarking() {}

// IsSelected reports whether m is an active embedded selection.
func IsSelected(m Marking) bool {
	e, ok := m.(Embedded)
	return ok && e.Selected
}

// TrackedComponent is one rendered component instance discovered through its
// marker attributes.
type TrackedComponent struct {
	// ID identifies the render instance; generated at build time
	ID string
	// Name is the logical component name, also the reorder compatibility key
	Name string
	// DataPath locates the backing data, e.g. "hero.json" or "list.json[2]";
	// empty when the component has no editable data
	DataPath string
	// Order is the zero-based position among tracked siblings; meaningful
	// only when Ordered is true
	Order int
	// Ordered is false when the marker carried no order, which excludes the
	// component from reordering
	Ordered bool
	// Group identifies the swappable context the component was ordered in;
	// components only swap within their group
	Group int
	// Total is the number of ordered components in the same group at scan
	// time
	Total int
	// Stable is false when the ID was synthesized at scan time
	Stable bool
	// Element is the marker element; observed, never owned
	Element *html.Node
	// Marking is the toggle state for the session mode
	Marking Marking
	// Props is the last-known data payload, nil until loaded
	Props interface{}
}

// HasData reports whether the component exposes an edit action.
func (c *TrackedComponent) HasData() bool {
	return c.DataPath != ""
}

// CanMoveUp reports whether the component can swap with its predecessor.
func (c *TrackedComponent) CanMoveUp() bool {
	return c.Ordered && c.Order > 0
}

// CanMoveDown reports whether the component can swap with its successor.
func (c *TrackedComponent) CanMoveDown() bool {
	return c.Ordered && c.Order >= 0 && c.Order < c.Total-1
}

// Clone returns a shallow copy safe to hand out of the registry.
func (c *TrackedComponent) Clone() *TrackedComponent {
	cp := *c
	return &cp
}

// EventType represents the type of component change event.
type EventType string

const (
	EventTypeAdded   EventType = "added"
	EventTypeUpdated EventType = "updated"
	EventTypeRemoved EventType = "removed"
	// EventTypeScanned closes the batch of events of one scan; it carries
	// no component
	EventTypeScanned EventType = "scanned"
)

// ComponentEvent represents a change in the component registry, used for
// real-time notifications to watchers like the overlay session.
type ComponentEvent struct {
	// Type indicates the kind of change (added, updated, removed, scanned)
	Type EventType
	// Component is a snapshot of the record; nil for scanned events
	Component *TrackedComponent
	// Timestamp records when the event occurred
	Timestamp time.Time
}
