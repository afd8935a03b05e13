package registry

import (
	"golang.org/x/net/html"

	"github.com/conneroisu/devlens/internal/marker"
)

// MutationKind mirrors the kinds of DOM mutation records.
type MutationKind string

const (
	MutationChildList     MutationKind = "childList"
	MutationAttributes    MutationKind = "attributes"
	MutationCharacterData MutationKind = "characterData"
)

// Mutation is one observed change to the document.
type Mutation struct {
	Kind          MutationKind
	Target        *html.Node
	AttributeName string
	Added         []*html.Node
	Removed       []*html.Node
}

// ShouldRescan reports whether any mutation adds or removes a marker element,
// at any depth, or changes a marker attribute. Text changes and attribute
// churn on other attributes never trigger a rescan.
func ShouldRescan(mutations []Mutation) bool {
	for _, m := range mutations {
		switch m.Kind {
		case MutationChildList:
			if containsMarker(m.Added) || containsMarker(m.Removed) {
				return true
			}
		case MutationAttributes:
			if marker.IsMarkerAttr(m.AttributeName) {
				return true
			}
		}
	}
	return false
}

func containsMarker(nodes []*html.Node) bool {
	for _, n := range nodes {
		found := false
		walk(n, func(c *html.Node) {
			if !found && c.Type == html.ElementNode && hasAttr(c, marker.AttrName) {
				found = true
			}
		})
		if found {
			return true
		}
	}
	return false
}
