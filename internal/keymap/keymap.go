// Package keymap maps keyboard events to editor commands.
package keymap

import "strings"

// Command is an editor action bound to a key.
type Command string

const (
	Undo     Command = "undo"
	Redo     Command = "redo"
	Save     Command = "save"
	Delete   Command = "delete"
	Deselect Command = "deselect"
	Nudge    Command = "nudge"
	Copy     Command = "copy"
	Paste    Command = "paste"
)

// Nudge steps in pixels.
const (
	Step      = 1
	ShiftStep = 10
)

// Event is a key press as reported by the host.
type Event struct {
	Key   string `json:"key"`
	Ctrl  bool   `json:"ctrlKey"`
	Meta  bool   `json:"metaKey"`
	Shift bool   `json:"shiftKey"`
	Alt   bool   `json:"altKey"`
}

// Action is a resolved command. DX and DY are set for Nudge.
type Action struct {
	Command Command `json:"command"`
	DX      int     `json:"dx,omitempty"`
	DY      int     `json:"dy,omitempty"`
}

// Resolve returns the action bound to ev. While text is being edited only
// Escape is handled, so typing is never swallowed.
func Resolve(ev Event, editing bool) (Action, bool) {
	key := ev.Key
	if len(key) == 1 {
		key = strings.ToLower(key)
	}
	if key == "Escape" {
		return Action{Command: Deselect}, true
	}
	if editing {
		return Action{}, false
	}

	mod := ev.Ctrl || ev.Meta
	switch {
	case mod && key == "z" && ev.Shift:
		return Action{Command: Redo}, true
	case mod && key == "z":
		return Action{Command: Undo}, true
	case mod && key == "y":
		return Action{Command: Redo}, true
	case mod && key == "s":
		return Action{Command: Save}, true
	case mod && key == "c":
		return Action{Command: Copy}, true
	case mod && key == "v":
		return Action{Command: Paste}, true
	case mod:
		return Action{}, false
	}

	switch key {
	case "Delete", "Backspace":
		return Action{Command: Delete}, true
	}

	step := Step
	if ev.Shift {
		step = ShiftStep
	}
	switch key {
	case "ArrowUp":
		return Action{Command: Nudge, DY: -step}, true
	case "ArrowDown":
		return Action{Command: Nudge, DY: step}, true
	case "ArrowLeft":
		return Action{Command: Nudge, DX: -step}, true
	case "ArrowRight":
		return Action{Command: Nudge, DX: step}, true
	}
	return Action{}, false
}
