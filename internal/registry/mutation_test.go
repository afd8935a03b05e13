package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

func element(tag string, attrs ...html.Attribute) *html.Node {
	return &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag)), Attr: attrs}
}

func TestShouldRescan(t *testing.T) {
	markerEl := element("div", html.Attribute{Key: "data-component-name", Val: "Hero"})
	plain := element("p", html.Attribute{Key: "class", Val: "x"})
	wrapper := element("section")
	wrapper.AppendChild(element("div", html.Attribute{Key: "data-component-name", Val: "Card"}))
	text := &html.Node{Type: html.TextNode, Data: "hello"}

	tests := []struct {
		name      string
		mutations []Mutation
		want      bool
	}{
		{"no mutations", nil, false},
		{"marker element added", []Mutation{{Kind: MutationChildList, Added: []*html.Node{markerEl}}}, true},
		{"marker element removed", []Mutation{{Kind: MutationChildList, Removed: []*html.Node{markerEl}}}, true},
		{"nested marker added", []Mutation{{Kind: MutationChildList, Added: []*html.Node{wrapper}}}, true},
		{"plain element added", []Mutation{{Kind: MutationChildList, Added: []*html.Node{plain, text}}}, false},
		{"marker attribute changed", []Mutation{{Kind: MutationAttributes, Target: markerEl, AttributeName: "data-component-order"}}, true},
		{"props attribute changed", []Mutation{{Kind: MutationAttributes, Target: plain, AttributeName: "data-component-props"}}, true},
		{"other attribute on marker", []Mutation{{Kind: MutationAttributes, Target: markerEl, AttributeName: "style"}}, false},
		{"text change", []Mutation{{Kind: MutationCharacterData, Target: text}}, false},
		{"one relevant among noise", []Mutation{
			{Kind: MutationAttributes, Target: plain, AttributeName: "class"},
			{Kind: MutationCharacterData, Target: text},
			{Kind: MutationChildList, Added: []*html.Node{wrapper}},
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldRescan(tt.mutations))
		})
	}
}
