package registry

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"golang.org/x/net/html"

	"github.com/conneroisu/devlens/internal/types"
)

func benchDocument(b *testing.B, n int) *html.Node {
	var sb strings.Builder
	sb.WriteString("<html><body>")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, `<div data-component-name="Block" data-component-id="block-%d" data-component-order="%d" data-component-props='{"i":%d}'><p>%d</p></div>`, i, i, i, i)
	}
	sb.WriteString("</body></html>")
	return parseDoc(b, sb.String())
}

func BenchmarkRegistry_Scan(b *testing.B) {
	doc := benchDocument(b, 200)
	registry := newTestRegistry(types.ModeStandalone)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		registry.Scan(context.Background(), doc)
	}
}

func BenchmarkRegistry_Get(b *testing.B) {
	registry := newTestRegistry(types.ModeStandalone)
	registry.Scan(context.Background(), benchDocument(b, 200))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		registry.Get(fmt.Sprintf("block-%d", i%200))
	}
}

func BenchmarkShouldRescan(b *testing.B) {
	doc := benchDocument(b, 50)
	mutations := []Mutation{
		{Kind: MutationAttributes, AttributeName: "class"},
		{Kind: MutationCharacterData},
		{Kind: MutationChildList, Added: []*html.Node{doc}},
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ShouldRescan(mutations)
	}
}
