//go:build property
// +build property

package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"golang.org/x/net/html"

	"github.com/conneroisu/devlens/internal/types"
)

func TestRegistryProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("well-formed props deep-equal the parsed attribute", prop.ForAll(
		func(props map[string]string) bool {
			raw, err := json.Marshal(props)
			if err != nil {
				return true
			}
			root := &html.Node{Type: html.DocumentNode}
			root.AppendChild(&html.Node{Type: html.ElementNode, Data: "div", Attr: []html.Attribute{
				{Key: "data-component-name", Val: "Hero"},
				{Key: "data-component-id", Val: "hero-0"},
				{Key: "data-component-props", Val: string(raw)},
			}})

			registry := newTestRegistry(types.ModeStandalone)
			registry.Scan(context.Background(), root)

			c, ok := registry.Get("hero-0")
			if !ok {
				return false
			}
			var want interface{}
			_ = json.Unmarshal(raw, &want)
			return reflect.DeepEqual(want, c.Props)
		},
		gen.MapOf(gen.Identifier(), gen.AlphaString()),
	))

	properties.Property("move controls are enabled exactly inside the order range", prop.ForAll(
		func(n int) bool {
			var sb strings.Builder
			for i := 0; i < n; i++ {
				fmt.Fprintf(&sb, `<div data-component-name="Block" data-component-id="b-%d" data-component-order="%d"></div>`, i, i)
			}
			registry := newTestRegistry(types.ModeStandalone)
			registry.Scan(context.Background(), parseDoc(t, sb.String()))

			for _, c := range registry.All() {
				if c.CanMoveUp() != (c.Order > 0) || c.CanMoveDown() != (c.Order < n-1) {
					return false
				}
			}
			return registry.Count() == n
		},
		gen.IntRange(0, 20),
	))

	properties.Property("rescanning is idempotent", prop.ForAll(
		func(n int) bool {
			var sb strings.Builder
			for i := 0; i < n; i++ {
				fmt.Fprintf(&sb, `<div data-component-name="Block" data-component-id="b-%d" data-component-order="%d"></div>`, i, i)
			}
			doc := parseDoc(t, sb.String())
			registry := newTestRegistry(types.ModeStandalone)
			registry.Scan(context.Background(), doc)
			first := componentIDs(registry.All())
			registry.Scan(context.Background(), doc)
			return reflect.DeepEqual(first, componentIDs(registry.All()))
		},
		gen.IntRange(0, 20),
	))

	properties.TestingRun(t)
}

func componentIDs(components []*types.TrackedComponent) []string {
	ids := make([]string, len(components))
	for i, c := range components {
		ids[i] = c.ID
	}
	return ids
}
