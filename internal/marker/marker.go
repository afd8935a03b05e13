// Package marker defines the attributes that carry tracking metadata from
// the transform pass to the runtime registry. These five attributes are the
// whole contract between build-time instrumentation and discovery.
package marker

const (
	// AttrName holds the logical component name.
	AttrName = "data-component-name"
	// AttrPath holds the data path backing the component, e.g. "list.json[2]".
	AttrPath = "data-component-path"
	// AttrID holds the generated render-instance identifier.
	AttrID = "data-component-id"
	// AttrProps holds the serialized JSON props of the instance.
	AttrProps = "data-component-props"
	// AttrOrder holds the zero-based render order; absent means unordered.
	AttrOrder = "data-component-order"
)

// Attrs lists every marker attribute.
var Attrs = []string{AttrName, AttrPath, AttrID, AttrProps, AttrOrder}

// IsMarkerAttr reports whether name is one of the marker attributes.
func IsMarkerAttr(name string) bool {
	for _, a := range Attrs {
		if a == name {
			return true
		}
	}
	return false
}
