// Package registry discovers rendered components through their marker
// attributes and keeps a live map of them.
//
// The registry is rebuilt from scratch on every scan rather than patched
// incrementally. Mutation records are run through ShouldRescan first so that
// unrelated churn in the document never triggers a rebuild.
package registry

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"

	"github.com/conneroisu/devlens/internal/errors"
	"github.com/conneroisu/devlens/internal/logging"
	"github.com/conneroisu/devlens/internal/marker"
	"github.com/conneroisu/devlens/internal/transform"
	"github.com/conneroisu/devlens/internal/types"
)

// Registry maps component ids to the components currently in the document.
type Registry struct {
	components map[string]*types.TrackedComponent
	order      []string
	mode       types.Mode
	mutex      sync.RWMutex
	watchers   []chan types.ComponentEvent
	logger     logging.Logger
	suffix     func() string
}

// New creates an empty registry for the given mode.
func New(mode types.Mode, logger logging.Logger) *Registry {
	return &Registry{
		components: make(map[string]*types.TrackedComponent),
		mode:       mode,
		watchers:   make([]chan types.ComponentEvent, 0),
		logger:     logger.WithComponent("registry"),
		suffix:     randomSuffix,
	}
}

// Mode returns the mode the registry marks components in.
func (r *Registry) Mode() types.Mode {
	return r.mode
}

// Scan rebuilds the registry from every marker element under root. Markings
// and loaded props of ids present before and after the scan are carried over.
func (r *Registry) Scan(ctx context.Context, root *html.Node) {
	var elements []*html.Node
	walk(root, func(n *html.Node) {
		if n.Type == html.ElementNode && hasAttr(n, marker.AttrName) {
			elements = append(elements, n)
		}
	})

	next := make(map[string]*types.TrackedComponent, len(elements))
	order := make([]string, 0, len(elements))
	scanned := make([]*types.TrackedComponent, 0, len(elements))
	for _, el := range elements {
		c := r.parse(ctx, el)
		if c.ID == "" || next[c.ID] != nil {
			c.ID = r.synthesizeID(c.Name, next)
			c.Stable = false
		}
		next[c.ID] = c
		order = append(order, c.ID)
		scanned = append(scanned, c)
	}
	groups := assignGroups(scanned)

	r.mutex.Lock()
	defer r.mutex.Unlock()

	now := time.Now()
	var events []types.ComponentEvent
	for _, id := range order {
		c := next[id]
		eventType := types.EventTypeAdded
		if prev, ok := r.components[id]; ok {
			eventType = types.EventTypeUpdated
			c.Marking = prev.Marking
			if c.Props == nil {
				c.Props = prev.Props
			}
		}
		events = append(events, types.ComponentEvent{Type: eventType, Component: c.Clone(), Timestamp: now})
	}
	for _, id := range r.order {
		if _, ok := next[id]; !ok {
			events = append(events, types.ComponentEvent{
				Type: types.EventTypeRemoved, Component: r.components[id].Clone(), Timestamp: now,
			})
		}
	}
	events = append(events, types.ComponentEvent{Type: types.EventTypeScanned, Timestamp: now})

	r.components = next
	r.order = order

	r.logger.Debug(ctx, "Registry rescanned", "components", len(order), "groups", groups)

	for _, event := range events {
		r.notify(event)
	}
}

// orderGroup is one swappable context under construction.
type orderGroup struct {
	id      int
	next    int
	parents map[*html.Node]bool
	members []*types.TrackedComponent
}

// assignGroups partitions the ordered components into swappable contexts and
// sets Group and Total on each. Orders restart at 0 for every transformed
// file, so an order of 0 opens a new context; any other order joins an open
// context expecting it, preferring one with a member under the same parent
// element, then the most recently opened. Returns the number of contexts.
func assignGroups(components []*types.TrackedComponent) int {
	var groups []*orderGroup
	for _, c := range components {
		if !c.Ordered {
			continue
		}
		g := pickGroup(groups, c)
		if g == nil {
			g = &orderGroup{id: len(groups), parents: make(map[*html.Node]bool)}
			groups = append(groups, g)
		}
		c.Group = g.id
		g.next = c.Order + 1
		if p := parentOf(c.Element); p != nil {
			g.parents[p] = true
		}
		g.members = append(g.members, c)
	}
	for _, g := range groups {
		for _, c := range g.members {
			c.Total = len(g.members)
		}
	}
	return len(groups)
}

func pickGroup(groups []*orderGroup, c *types.TrackedComponent) *orderGroup {
	if c.Order == 0 {
		return nil
	}
	parent := parentOf(c.Element)
	var fallback *orderGroup
	for i := len(groups) - 1; i >= 0; i-- {
		g := groups[i]
		if g.next != c.Order {
			continue
		}
		if parent != nil && g.parents[parent] {
			return g
		}
		if fallback == nil {
			fallback = g
		}
	}
	return fallback
}

func parentOf(n *html.Node) *html.Node {
	if n == nil {
		return nil
	}
	return n.Parent
}

// contains reports whether descendant sits somewhere under ancestor.
func contains(ancestor, descendant *html.Node) bool {
	if ancestor == nil || descendant == nil {
		return false
	}
	for n := descendant.Parent; n != nil; n = n.Parent {
		if n == ancestor {
			return true
		}
	}
	return false
}

// Apply rescans root if any of the mutations warrants it and reports whether
// it did.
func (r *Registry) Apply(ctx context.Context, root *html.Node, mutations []Mutation) bool {
	if !ShouldRescan(mutations) {
		return false
	}
	r.Scan(ctx, root)
	return true
}

func (r *Registry) parse(ctx context.Context, el *html.Node) *types.TrackedComponent {
	c := &types.TrackedComponent{
		Name:     attr(el, marker.AttrName),
		DataPath: strings.TrimSpace(attr(el, marker.AttrPath)),
		ID:       strings.TrimSpace(attr(el, marker.AttrID)),
		Stable:   true,
		Element:  el,
		Marking:  r.mode.InitialMarking(),
	}

	if raw, ok := lookupAttr(el, marker.AttrOrder); ok {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || n < 0 {
			r.logger.Debug(ctx, "Ignoring invalid order attribute", "component", c.Name, "value", raw)
		} else {
			c.Order = n
			c.Ordered = true
		}
	}

	if raw, ok := lookupAttr(el, marker.AttrProps); ok {
		var props interface{}
		if err := json.Unmarshal([]byte(raw), &props); err != nil {
			r.logger.Warn(ctx, errors.NewParseError(errors.ErrCodeInvalidProps, "malformed props attribute", err).
				WithComponent(c.Name),
				"Treating props as empty", "component", c.Name, "id", c.ID)
			props = map[string]interface{}{}
		}
		c.Props = props
	}

	return c
}

func (r *Registry) synthesizeID(name string, taken map[string]*types.TrackedComponent) string {
	base := transform.Kebab(name)
	if base == "" {
		base = "component"
	}
	for {
		id := base + "-" + r.suffix()
		if taken[id] == nil {
			return id
		}
	}
}

func randomSuffix() string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return hex.EncodeToString(b[:])
}

// Get retrieves a copy of a component by id
func (r *Registry) Get(id string) (*types.TrackedComponent, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	c, exists := r.components[id]
	if !exists {
		return nil, false
	}
	return c.Clone(), true
}

// All returns copies of all components in document order.
func (r *Registry) All() []*types.TrackedComponent {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make([]*types.TrackedComponent, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, r.components[id].Clone())
	}
	return result
}

// Count returns the number of tracked components
func (r *Registry) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return len(r.components)
}

// Neighbor returns the ordered component delta positions away from id within
// its group. Components nested inside one another never swap.
func (r *Registry) Neighbor(id string, delta int) (*types.TrackedComponent, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	c, ok := r.components[id]
	if !ok {
		return nil, errors.ErrComponentNotFound(id)
	}
	if !c.Ordered {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidState,
			fmt.Sprintf("component %s does not take part in reordering", id))
	}

	target := c.Order + delta
	if target < 0 || target >= c.Total {
		return nil, errors.NewValidationError(errors.ErrCodeOutOfRange,
			fmt.Sprintf("order %d is outside 0..%d", target, c.Total-1))
	}
	for _, oid := range r.order {
		other := r.components[oid]
		if !other.Ordered || other.Group != c.Group || other.Order != target {
			continue
		}
		if contains(c.Element, other.Element) || contains(other.Element, c.Element) {
			return nil, errors.NewValidationError(errors.ErrCodeNotAdjacent,
				fmt.Sprintf("components %s and %s are nested", id, oid))
		}
		return other.Clone(), nil
	}
	return nil, errors.NewValidationError(errors.ErrCodeNotAdjacent,
		fmt.Sprintf("no component at order %d", target))
}

// Toggle flips the marking of id and returns the updated record.
func (r *Registry) Toggle(id string) (*types.TrackedComponent, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	c, ok := r.components[id]
	if !ok {
		return nil, errors.ErrComponentNotFound(id)
	}
	c.Marking = c.Marking.Toggled()
	r.notify(types.ComponentEvent{Type: types.EventTypeUpdated, Component: c.Clone(), Timestamp: time.Now()})
	return c.Clone(), nil
}

// ClearSelections deselects every embedded selection and returns the ids that
// were selected. Standalone reuse markings are left alone.
func (r *Registry) ClearSelections() []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var cleared []string
	now := time.Now()
	for _, id := range r.order {
		c := r.components[id]
		if types.IsSelected(c.Marking) {
			c.Marking = types.Embedded{}
			cleared = append(cleared, id)
			r.notify(types.ComponentEvent{Type: types.EventTypeUpdated, Component: c.Clone(), Timestamp: now})
		}
	}
	return cleared
}

// SetProps stores the data payload loaded for id.
func (r *Registry) SetProps(id string, props interface{}) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	c, ok := r.components[id]
	if !ok {
		return errors.ErrComponentNotFound(id)
	}
	c.Props = props
	return nil
}

// Watch returns a channel that receives component events
func (r *Registry) Watch() <-chan types.ComponentEvent {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	ch := make(chan types.ComponentEvent, 100)
	r.watchers = append(r.watchers, ch)
	return ch
}

// UnWatch removes a watcher channel and closes it
func (r *Registry) UnWatch(ch <-chan types.ComponentEvent) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for i, watcher := range r.watchers {
		if watcher == ch {
			close(watcher)
			r.watchers = append(r.watchers[:i], r.watchers[i+1:]...)
			break
		}
	}
}

// notify must be called with the mutex held.
func (r *Registry) notify(event types.ComponentEvent) {
	for _, watcher := range r.watchers {
		select {
		case watcher <- event:
		default:
			// Skip if channel is full
		}
	}
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func lookupAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func attr(n *html.Node, key string) string {
	v, _ := lookupAttr(n, key)
	return v
}

func hasAttr(n *html.Node, key string) bool {
	_, ok := lookupAttr(n, key)
	return ok
}
