package overlay

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/conneroisu/devlens/internal/errors"
	"github.com/conneroisu/devlens/internal/logging"
	"github.com/conneroisu/devlens/internal/registry"
	"github.com/conneroisu/devlens/internal/types"
)

const page = `<main>
<div data-component-name="Hero" data-component-path="hero.json" data-component-id="hero-1" data-component-order="0"><section>hero</section></div>
<div data-component-name="Features" data-component-path="features.json" data-component-id="features-2" data-component-order="1"><section>features</section></div>
<div data-component-name="Footer" data-component-id="footer"><footer>footer</footer></div>
</main>`

type recordingHost struct {
	messages []HostMessage
}

func (h *recordingHost) NotifyHost(ctx context.Context, msg HostMessage) error {
	h.messages = append(h.messages, msg)
	return nil
}

func setup(t *testing.T, mode types.Mode, opts Options) (*Overlay, *html.Node) {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(page))
	require.NoError(t, err)
	reg := registry.New(mode, logging.Discard())
	reg.Scan(context.Background(), doc)
	o := New(reg, opts, logging.Discard())
	o.Sync()
	return o, doc
}

func TestPositionFor(t *testing.T) {
	pos := PositionFor(Rect{X: 10, Y: 20, Width: 300, Height: 120}, Point{X: 5, Y: 400})
	assert.Equal(t, Position{Top: 420, Left: 15, Width: 300, Height: 120}, pos)
}

func TestControlsFor(t *testing.T) {
	o, _ := setup(t, types.ModeStandalone, Options{})
	anchors := o.Anchors()
	require.Len(t, anchors, 3)

	actions := func(a Anchor) map[Action]Control {
		m := make(map[Action]Control)
		for _, c := range a.Controls {
			m[c.Action] = c
		}
		return m
	}

	hero := actions(anchors[0])
	assert.Len(t, hero, 4)
	assert.True(t, hero[ActionMoveUp].Disabled)
	assert.False(t, hero[ActionMoveDown].Disabled)
	assert.Equal(t, "Mark reusable", hero[ActionToggle].Label)

	features := actions(anchors[1])
	assert.False(t, features[ActionMoveUp].Disabled)
	assert.True(t, features[ActionMoveDown].Disabled)

	footer := actions(anchors[2])
	assert.Len(t, footer, 1)
	assert.Contains(t, footer, ActionToggle)
}

func TestOverlay_SelectionMessaging(t *testing.T) {
	host := &recordingHost{}
	o, _ := setup(t, types.ModeEmbedded, Options{Site: "example.com", Host: host})

	a, err := o.Toggle(context.Background(), "hero-1")
	require.NoError(t, err)
	assert.True(t, a.Outline.Visible)
	assert.True(t, a.Outline.Persistent)

	require.Len(t, host.messages, 1)
	assert.Equal(t, HostMessage{
		Type:    MessageComponentSelected,
		Payload: &Selection{ID: "hero-1", Name: "Hero", Path: "hero.json", Site: "example.com"},
	}, host.messages[0])

	a, err = o.Toggle(context.Background(), "hero-1")
	require.NoError(t, err)
	assert.False(t, a.Outline.Visible)

	require.Len(t, host.messages, 2)
	assert.Equal(t, HostMessage{
		Type:    MessageComponentDeselected,
		Payload: &Selection{ID: "hero-1", Name: "Hero", Path: "hero.json", Site: "example.com"},
	}, host.messages[1])
}

func TestOverlay_ToggleStandaloneDoesNotNotify(t *testing.T) {
	host := &recordingHost{}
	o, _ := setup(t, types.ModeStandalone, Options{Host: host})

	a, err := o.Toggle(context.Background(), "hero-1")
	require.NoError(t, err)
	assert.Empty(t, host.messages)
	assert.Equal(t, "Reusable", a.Controls[0].Label)
	assert.False(t, a.Outline.Visible)
}

func TestOverlay_ToggleWithoutSiteIsBlocked(t *testing.T) {
	host := &recordingHost{}
	o, _ := setup(t, types.ModeEmbedded, Options{Host: host, SiteErr: errors.ErrSiteUnresolved("unknown.test")})

	_, err := o.Toggle(context.Background(), "hero-1")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeResolution))
	assert.Empty(t, host.messages)

	hero, _ := o.Registry().Get("hero-1")
	assert.False(t, hero.Marking.Active())
}

func TestOverlay_HoverAndLeave(t *testing.T) {
	o, _ := setup(t, types.ModeEmbedded, Options{Site: "example.com"})

	a, err := o.Hover("features-2")
	require.NoError(t, err)
	assert.Equal(t, Outline{Visible: true, Color: "#3b82f6"}, a.Outline)
	assert.Contains(t, a.Outline.Style(), "#3b82f6")

	a, err = o.Leave("features-2")
	require.NoError(t, err)
	assert.Equal(t, Outline{}, a.Outline)
	assert.Empty(t, a.Outline.Style())

	_, err = o.Toggle(context.Background(), "features-2")
	require.NoError(t, err)
	a, err = o.Hover("features-2")
	require.NoError(t, err)
	assert.Equal(t, Outline{Visible: true, Color: "#10b981"}, a.Outline)

	a, err = o.Leave("features-2")
	require.NoError(t, err)
	assert.Equal(t, Outline{Visible: true, Color: "#10b981", Persistent: true}, a.Outline)

	_, err = o.Hover("missing")
	assert.Error(t, err)
}

func TestOverlay_SyncRemovesStaleAnchors(t *testing.T) {
	o, doc := setup(t, types.ModeStandalone, Options{})
	assert.Len(t, o.Anchors(), 3)

	var footer *html.Node
	var find func(*html.Node)
	find = func(n *html.Node) {
		for _, a := range n.Attr {
			if a.Key == "data-component-id" && a.Val == "footer" {
				footer = n
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			find(c)
		}
	}
	find(doc)
	require.NotNil(t, footer)
	footer.Parent.RemoveChild(footer)

	o.Registry().Scan(context.Background(), doc)
	assert.Equal(t, []string{"footer"}, o.Sync())
	assert.Len(t, o.Anchors(), 2)

	_, err := o.Layout("footer", Rect{}, Point{})
	assert.Error(t, err)
}

func TestOverlay_Layout(t *testing.T) {
	o, _ := setup(t, types.ModeStandalone, Options{})
	pos, err := o.Layout("hero-1", Rect{X: 0, Y: 50, Width: 800, Height: 200}, Point{Y: 100})
	require.NoError(t, err)
	assert.Equal(t, Position{Top: 150, Width: 800, Height: 200}, pos)
	assert.Equal(t, pos, o.Anchors()[0].Position)
}

func TestOverlay_HandleHostMessage(t *testing.T) {
	host := &recordingHost{}
	o, _ := setup(t, types.ModeEmbedded, Options{Site: "example.com", Host: host})
	_, err := o.Toggle(context.Background(), "hero-1")
	require.NoError(t, err)
	_, err = o.Toggle(context.Background(), "footer")
	require.NoError(t, err)

	cleared, err := o.HandleHostMessage(context.Background(), HostMessage{Type: MessageClearAllSelections})
	require.NoError(t, err)
	require.Len(t, cleared, 2)
	for _, a := range cleared {
		assert.False(t, a.Outline.Visible)
	}
	assert.Len(t, host.messages, 2, "clearing is host initiated and not echoed")

	_, err = o.HandleHostMessage(context.Background(), HostMessage{Type: "SOMETHING_ELSE"})
	assert.Error(t, err)
}

func TestMutations(t *testing.T) {
	muts := Mutations([]MutationRecord{
		{Kind: registry.MutationChildList, Added: []string{`<div data-component-name="Hero"></div>`, ""}},
		{Kind: registry.MutationChildList, Added: []string{`<p>text</p>`}},
		{Kind: registry.MutationAttributes, AttributeName: "class"},
	})
	require.Len(t, muts, 3)
	assert.Len(t, muts[0].Added, 1)
	assert.True(t, registry.ShouldRescan(muts[:1]))
	assert.False(t, registry.ShouldRescan(muts[1:]))
}
