package keymap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		ev      Event
		editing bool
		want    Action
		ok      bool
	}{
		{"undo", Event{Key: "z", Ctrl: true}, false, Action{Command: Undo}, true},
		{"undo meta", Event{Key: "z", Meta: true}, false, Action{Command: Undo}, true},
		{"redo shift", Event{Key: "Z", Ctrl: true, Shift: true}, false, Action{Command: Redo}, true},
		{"redo y", Event{Key: "y", Ctrl: true}, false, Action{Command: Redo}, true},
		{"save", Event{Key: "s", Meta: true}, false, Action{Command: Save}, true},
		{"copy", Event{Key: "c", Ctrl: true}, false, Action{Command: Copy}, true},
		{"paste", Event{Key: "v", Ctrl: true}, false, Action{Command: Paste}, true},
		{"delete", Event{Key: "Delete"}, false, Action{Command: Delete}, true},
		{"backspace", Event{Key: "Backspace"}, false, Action{Command: Delete}, true},
		{"escape", Event{Key: "Escape"}, false, Action{Command: Deselect}, true},
		{"escape while editing", Event{Key: "Escape"}, true, Action{Command: Deselect}, true},
		{"nudge left", Event{Key: "ArrowLeft"}, false, Action{Command: Nudge, DX: -1}, true},
		{"nudge down shift", Event{Key: "ArrowDown", Shift: true}, false, Action{Command: Nudge, DY: 10}, true},
		{"nudge up", Event{Key: "ArrowUp"}, false, Action{Command: Nudge, DY: -1}, true},
		{"nudge right shift", Event{Key: "ArrowRight", Shift: true}, false, Action{Command: Nudge, DX: 10}, true},
		{"undo suppressed while editing", Event{Key: "z", Ctrl: true}, true, Action{}, false},
		{"backspace while editing", Event{Key: "Backspace"}, true, Action{}, false},
		{"unbound", Event{Key: "q"}, false, Action{}, false},
		{"unbound chord", Event{Key: "q", Ctrl: true}, false, Action{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Resolve(tt.ev, tt.editing)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
