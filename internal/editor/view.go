package editor

import (
	"context"
	"fmt"
	"slices"

	"github.com/starford/sowilo/internal/apperr"
	"github.com/starford/sowilo/internal/keymap"
)

// SelectElement selects id. With add set the element is toggled in the
// current selection instead of replacing it. An empty id clears the
// selection.
func (e *Editor) SelectElement(id string, add bool) error {
	e.mu.Lock()
	defer e.unlock()
	if id == "" {
		e.selected = nil
		return nil
	}
	if e.lookup(id) == nil {
		return fmt.Errorf("editor: element %s: %w", id, apperr.ErrNotFound)
	}
	if !add {
		e.selected = []string{id}
		return nil
	}
	if i := slices.Index(e.selected, id); i >= 0 {
		e.selected = slices.Delete(slices.Clone(e.selected), i, i+1)
		return nil
	}
	e.selected = append(slices.Clone(e.selected), id)
	return nil
}

// Selection returns the selected ids in selection order.
func (e *Editor) Selection() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.selected)
}

// SetHovered records the element under the pointer.
func (e *Editor) SetHovered(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hovered = id
}

// SetZoom sets the canvas zoom, clamped to [MinZoom, MaxZoom].
func (e *Editor) SetZoom(z float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.zoom = max(MinZoom, min(z, MaxZoom))
	return e.zoom
}

// SetPan sets the canvas offset.
func (e *Editor) SetPan(p Point) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pan = p
}

// Escape stops any text edit, committing it, and clears the selection.
func (e *Editor) Escape() error {
	e.mu.Lock()
	defer e.unlock()
	e.selected = nil
	if c, ok := e.editing.Stop(); ok {
		return e.commitText(c)
	}
	return nil
}

// HandleKey runs the command bound to ev. It reports the resolved action
// and whether a command ran.
func (e *Editor) HandleKey(ctx context.Context, ev keymap.Event) (keymap.Action, bool, error) {
	_, editing := e.editing.Active()
	act, ok := keymap.Resolve(ev, editing)
	if !ok {
		return act, false, nil
	}
	var err error
	switch act.Command {
	case keymap.Undo:
		e.Undo()
	case keymap.Redo:
		e.Redo()
	case keymap.Save:
		err = e.Save(ctx)
	case keymap.Delete:
		_, err = e.DeleteSelected()
	case keymap.Deselect:
		err = e.Escape()
	case keymap.Nudge:
		err = e.Nudge(act.DX, act.DY)
	case keymap.Copy:
		e.Copy()
	case keymap.Paste:
		_, err = e.Paste()
	}
	return act, true, err
}
