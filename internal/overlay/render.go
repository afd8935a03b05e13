package overlay

import (
	"bytes"
	"context"
	_ "embed"
	"html/template"
	"net/url"
	"strconv"

	"github.com/a-h/templ"

	"github.com/conneroisu/devlens/internal/editor"
)

//go:embed shim.js
var shimSource string

//go:embed render.tmpl
var renderSource string

// MountConfig configures the overlay mount injected into pages.
type MountConfig struct {
	// Endpoint is the overlay websocket path, e.g. "/ws/overlay".
	Endpoint string
	Page     string
	Site     string
	Mode     string
}

// URL returns the websocket URL path with the page and site query.
func (c MountConfig) URL() string {
	q := url.Values{}
	q.Set("page", c.Page)
	if c.Site != "" {
		q.Set("site", c.Site)
	}
	if c.Mode != "" {
		q.Set("mode", c.Mode)
	}
	return c.Endpoint + "?" + q.Encode()
}

var templates = template.Must(template.New("overlay").Funcs(template.FuncMap{
	"px": func(v float64) string { return strconv.FormatFloat(v, 'f', 0, 64) },
}).Parse(renderSource))

// Mount renders the overlay root element and the browser shim.
func Mount(cfg MountConfig) templ.Component {
	return templ.FromGoHTML(templates.Lookup("mount"), struct {
		URL  string
		Mode string
		Shim template.JS
	}{cfg.URL(), cfg.Mode, template.JS(shimSource)})
}

// Controls renders the control bar of an anchor. It is revealed on hover by
// the shim.
func Controls(a Anchor) templ.Component {
	return templ.FromGoHTML(templates.Lookup("controls"), a)
}

// AnchorBox renders the positioned anchor box holding the controls.
func AnchorBox(a Anchor) templ.Component {
	return templ.FromGoHTML(templates.Lookup("anchor"), a)
}

type editorView struct {
	editor.Snapshot
	Loading        bool
	Saving         bool
	FormatDisabled bool
}

// EditorModal renders the data editor dialog over a backdrop for a session
// snapshot. Clicking the backdrop closes like the Close button.
func EditorModal(snap editor.Snapshot) templ.Component {
	if snap.State == editor.StateClosed {
		return templ.NopComponent
	}
	saving := snap.State == editor.StateSaving
	return templ.FromGoHTML(templates.Lookup("editor"), editorView{
		Snapshot:       snap,
		Loading:        snap.State == editor.StateLoading,
		Saving:         saving,
		FormatDisabled: snap.ParseError != nil || saving || snap.State == editor.StateLoading,
	})
}

// RenderString renders c to a string.
func RenderString(ctx context.Context, c templ.Component) (string, error) {
	var buf bytes.Buffer
	if err := c.Render(ctx, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// View builds the wire view of an anchor.
func View(ctx context.Context, a Anchor, index int) (AnchorView, error) {
	html, err := RenderString(ctx, AnchorBox(a))
	if err != nil {
		return AnchorView{}, err
	}
	return AnchorView{Anchor: a, Index: index, Style: a.Outline.Style(), HTML: html}, nil
}
