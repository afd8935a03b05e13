package overlay

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/conneroisu/devlens/internal/editor"
	"github.com/conneroisu/devlens/internal/registry"
)

// Client message types sent by the browser shim.
const (
	ClientSnapshot  = "snapshot"
	ClientMutations = "mutations"
	ClientLayout    = "layout"
	ClientHover     = "hover"
	ClientLeave     = "leave"
	ClientControl   = "control"
	ClientEdit      = "edit"
	ClientFormat    = "format"
	ClientSave      = "save"
	ClientClose     = "close"
	ClientHost      = "host"
)

// Server message types sent to the browser shim.
const (
	ServerRequestSnapshot = "request-snapshot"
	ServerAnchors         = "anchors"
	ServerAnchor          = "anchor"
	ServerPositions       = "positions"
	ServerClear           = "clear"
	ServerEditor          = "editor"
	ServerReload          = "reload"
	ServerHost            = "host"
	ServerError           = "error"
)

// MutationRecord is a serialized DOM mutation. Added and Removed hold the
// outer HTML of element nodes; text nodes are sent as empty strings.
type MutationRecord struct {
	Kind          registry.MutationKind `json:"kind"`
	AttributeName string                `json:"attributeName,omitempty"`
	Added         []string              `json:"added,omitempty"`
	Removed       []string              `json:"removed,omitempty"`
}

// Measurement is the measured box of one anchor.
type Measurement struct {
	ID   string `json:"id"`
	Rect Rect   `json:"rect"`
}

// ClientMessage is a message from the browser shim.
type ClientMessage struct {
	Type      string           `json:"type"`
	Document  string           `json:"document,omitempty"`
	Mutations []MutationRecord `json:"mutations,omitempty"`
	Measures  []Measurement    `json:"measures,omitempty"`
	Scroll    Point            `json:"scroll"`
	ID        string           `json:"id,omitempty"`
	Action    Action           `json:"action,omitempty"`
	Text      string           `json:"text,omitempty"`
	Confirm   bool             `json:"confirm,omitempty"`
	Host      *HostMessage     `json:"host,omitempty"`
}

// AnchorView is an anchor with its rendered controls. Index is the position
// of the component among marker elements in document order.
type AnchorView struct {
	Anchor
	Index int    `json:"index"`
	Style string `json:"style"`
	HTML  string `json:"html"`
}

// ServerMessage is a message to the browser shim.
type ServerMessage struct {
	Type      string              `json:"type"`
	Anchors   []AnchorView        `json:"anchors,omitempty"`
	Anchor    *AnchorView         `json:"anchor,omitempty"`
	Positions map[string]Position `json:"positions,omitempty"`
	Cleared   []string            `json:"cleared,omitempty"`
	Editor    *editor.Snapshot    `json:"editor,omitempty"`
	HTML      string              `json:"html,omitempty"`
	Host      *HostMessage        `json:"host,omitempty"`
	Error     string              `json:"error,omitempty"`
}

// Mutations converts serialized records into registry mutations.
func Mutations(records []MutationRecord) []registry.Mutation {
	out := make([]registry.Mutation, 0, len(records))
	for _, r := range records {
		out = append(out, registry.Mutation{
			Kind:          r.Kind,
			AttributeName: r.AttributeName,
			Added:         fragments(r.Added),
			Removed:       fragments(r.Removed),
		})
	}
	return out
}

func fragments(sources []string) []*html.Node {
	var nodes []*html.Node
	context := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	for _, src := range sources {
		if strings.TrimSpace(src) == "" {
			continue
		}
		parsed, err := html.ParseFragment(strings.NewReader(src), context)
		if err != nil {
			continue
		}
		nodes = append(nodes, parsed...)
	}
	return nodes
}

// ParseDocument parses a document snapshot sent by the shim.
func ParseDocument(src string) (*html.Node, error) {
	return html.Parse(strings.NewReader(src))
}
