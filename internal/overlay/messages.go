package overlay

import "context"

// Host message types exchanged with an embedding dashboard.
const (
	MessageComponentSelected   = "COMPONENT_SELECTED"
	MessageComponentDeselected = "COMPONENT_DESELECTED"
	MessageClearAllSelections  = "CLEAR_ALL_SELECTIONS"
)

// Selection identifies a component to the host.
type Selection struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Path string `json:"path"`
	Site string `json:"site"`
}

// HostMessage is one message on the host channel.
type HostMessage struct {
	Type    string     `json:"type"`
	Payload *Selection `json:"payload,omitempty"`
}

// HostNotifier delivers selection events to the embedding host.
type HostNotifier interface {
	NotifyHost(ctx context.Context, msg HostMessage) error
}

// HostNotifierFunc adapts a function to HostNotifier.
type HostNotifierFunc func(ctx context.Context, msg HostMessage) error

// NotifyHost calls f.
func (f HostNotifierFunc) NotifyHost(ctx context.Context, msg HostMessage) error {
	return f(ctx, msg)
}
