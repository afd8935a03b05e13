package overlay

import "github.com/conneroisu/devlens/internal/types"

// Action is a control exposed on an anchor.
type Action string

const (
	ActionToggle   Action = "toggle"
	ActionEdit     Action = "edit"
	ActionMoveUp   Action = "move-up"
	ActionMoveDown Action = "move-down"
)

// Control is one button of an anchor.
type Control struct {
	Action   Action `json:"action"`
	Label    string `json:"label"`
	Active   bool   `json:"active,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`
}

// ControlsFor lists the controls of c. The toggle is always present, edit only
// with a data path, and the move controls only for ordered components.
func ControlsFor(c *types.TrackedComponent) []Control {
	controls := []Control{toggleControl(c.Marking)}

	if c.HasData() {
		controls = append(controls, Control{Action: ActionEdit, Label: "Edit data"})
	}
	if c.Ordered {
		controls = append(controls,
			Control{Action: ActionMoveUp, Label: "Move up", Disabled: !c.CanMoveUp()},
			Control{Action: ActionMoveDown, Label: "Move down", Disabled: !c.CanMoveDown()},
		)
	}
	return controls
}

func toggleControl(m types.Marking) Control {
	switch m := m.(type) {
	case types.Embedded:
		if m.Selected {
			return Control{Action: ActionToggle, Label: "Selected", Active: true}
		}
		return Control{Action: ActionToggle, Label: "Select"}
	case types.Standalone:
		if m.Reusable {
			return Control{Action: ActionToggle, Label: "Reusable", Active: true}
		}
		return Control{Action: ActionToggle, Label: "Mark reusable"}
	default:
		return Control{Action: ActionToggle, Label: "Toggle"}
	}
}
