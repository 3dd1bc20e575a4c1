package editor

import (
	"github.com/starford/sowilo/internal/doctree"
	"github.com/starford/sowilo/internal/models"
)

// Undo reverts the most recent recorded change.
func (e *Editor) Undo() bool {
	e.mu.Lock()
	defer e.unlock()
	return e.history.Undo()
}

// Redo reapplies the most recently undone change.
func (e *Editor) Redo() bool {
	e.mu.Lock()
	defer e.unlock()
	return e.history.Redo()
}

// replay is the history apply callback. History only calls it from Undo
// and Redo, which hold e.mu.
func (e *Editor) replay(s models.HistorySnapshot, undo bool) {
	if e.doc == nil {
		return
	}
	next := replaySnapshot(e.doc, s, undo)
	if next == e.doc {
		return
	}
	e.setDoc(next)

	switch s.Action {
	case models.ActionCreate, models.ActionDelete:
		e.dropSelectionIfGone(s.ElementID)
		e.record(s.ElementID, models.ChangeDocument, s.Action, nil)
	case models.ActionBatch:
		for _, p := range s.Batch {
			patch := pick(p, undo)
			e.record(p.ElementID, changeKind(patch), patch, nil)
		}
	default:
		patch := pick(s, undo)
		e.record(s.ElementID, changeKind(patch), patch, nil)
	}
}

func (e *Editor) dropSelectionIfGone(id string) {
	if e.lookup(id) == nil {
		e.dropSelection(id)
	}
}

func pick(s models.HistorySnapshot, undo bool) models.Patch {
	if undo {
		return s.Before
	}
	return s.After
}

// replaySnapshot returns doc with one side of s applied. Create and delete
// snapshots carry the whole node and its location, so they reinsert or
// remove it instead of merging a patch.
func replaySnapshot(doc *models.DesignDocument, s models.HistorySnapshot, undo bool) *models.DesignDocument {
	switch s.Action {
	case models.ActionCreate:
		if undo {
			return doctree.Remove(doc, s.ElementID)
		}
		return doctree.InsertAt(doc, s.After.ParentID, s.After.Index, s.After.Node)
	case models.ActionDelete:
		if undo {
			return doctree.InsertAt(doc, s.Before.ParentID, s.Before.Index, s.Before.Node)
		}
		return doctree.Remove(doc, s.ElementID)
	case models.ActionBatch:
		updates := make([]doctree.ElementUpdate, 0, len(s.Batch))
		if undo {
			for i := len(s.Batch) - 1; i >= 0; i-- {
				updates = append(updates, doctree.ElementUpdate{ElementID: s.Batch[i].ElementID, Patch: s.Batch[i].Before})
			}
		} else {
			for _, p := range s.Batch {
				updates = append(updates, doctree.ElementUpdate{ElementID: p.ElementID, Patch: p.After})
			}
		}
		return doctree.ApplyBatch(doc, updates)
	default:
		return doctree.Update(doc, s.ElementID, pick(s, undo))
	}
}
