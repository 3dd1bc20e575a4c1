package editor

import (
	"fmt"
	"log/slog"

	"github.com/starford/sowilo/internal/apperr"
	"github.com/starford/sowilo/internal/editing"
	"github.com/starford/sowilo/internal/metrics"
	"github.com/starford/sowilo/internal/models"
	"github.com/starford/sowilo/internal/ot"
)

// textTarget returns the node whose TextContent holds n's text: n itself
// for text leaves and empty elements, otherwise its first text child.
func textTarget(n *models.ElementNode) *models.ElementNode {
	if n.IsTextNode {
		return n
	}
	for _, c := range n.Children {
		if c.IsTextNode {
			return c
		}
	}
	return n
}

// StartTextEditing begins editing the text of id. An edit active on
// another element is committed first.
func (e *Editor) StartTextEditing(id string) error {
	e.mu.Lock()
	defer e.unlock()
	if e.doc == nil {
		return apperr.ErrNoDocument
	}
	n := e.lookup(id)
	if n == nil {
		return fmt.Errorf("editor: element %s: %w", id, apperr.ErrNotFound)
	}
	if prev, switched := e.editing.Start(id, n.Text()); switched {
		e.commitText(prev)
	}
	return nil
}

// UpdateContent stores typed text in the editing layer. The document tree
// is not touched until the edit stops.
func (e *Editor) UpdateContent(content string) error {
	var ok bool
	e.metrics.Measure(metrics.KeystrokeToState, func() {
		ok = e.editing.UpdateContent(content)
	})
	if !ok {
		return fmt.Errorf("editor: no active text edit: %w", apperr.ErrInvalidInput)
	}
	return nil
}

// StopTextEditing ends the active edit and commits its text when it
// changed. It returns the committed element id.
func (e *Editor) StopTextEditing() (string, error) {
	e.mu.Lock()
	defer e.unlock()
	c, ok := e.editing.Stop()
	if !ok {
		return "", nil
	}
	return c.ElementID, e.commitText(c)
}

// commitText must be called with e.mu held.
func (e *Editor) commitText(c editing.Commit) error {
	if !c.Changed() {
		return nil
	}
	n := e.lookup(c.ElementID)
	if n == nil {
		e.logger.Warn("editor: edited element is gone", slog.String("element_id", c.ElementID))
		return fmt.Errorf("editor: element %s: %w", c.ElementID, apperr.ErrNotFound)
	}
	return e.update(textTarget(n).ID, models.TextPatch(c.Content), models.ChangeText)
}

// ResolveRemoteText settles a concurrent remote edit of an element's text
// against the local one with last-write-wins. The local side is the active
// edit of that element, else its pending text change, else its current
// text with no timestamp. When the remote side wins its text is applied
// and the edit from the local text is recorded in the result.
func (e *Editor) ResolveRemoteText(elementID string, remote models.PendingChange) (models.ConflictInfo, error) {
	e.mu.Lock()
	defer e.unlock()
	if e.doc == nil {
		return models.ConflictInfo{}, apperr.ErrNoDocument
	}
	n := e.lookup(elementID)
	if n == nil {
		return models.ConflictInfo{}, fmt.Errorf("editor: element %s: %w", elementID, apperr.ErrNotFound)
	}
	remote.ElementID = elementID
	remote.Type = models.ChangeText
	if remote.Timestamp.IsZero() {
		remote.Timestamp = e.clock.Now()
	}

	current := n.Text()
	local := models.PendingChange{ElementID: elementID, Content: current, PreviousContent: current, Type: models.ChangeText}
	for _, c := range e.pending.Changes() {
		if c.Type == models.ChangeText && (c.ElementID == elementID || c.ElementID == textTarget(n).ID) {
			local = c
		}
	}
	activeID, activeContent, editingIt := e.editing.Content()
	editingIt = editingIt && activeID == elementID
	if editingIt {
		local = models.PendingChange{
			ElementID: elementID, Content: activeContent, PreviousContent: current,
			Type: models.ChangeText, Timestamp: e.clock.Now(),
		}
	}

	_, localWins := ot.ResolveLWW(local, remote)
	info := models.ConflictInfo{
		ElementID:    elementID,
		LocalChange:  local,
		RemoteChange: remote,
		ResolvedAt:   e.clock.Now(),
		Resolution:   models.ResolvedLocal,
	}
	if localWins {
		return info, nil
	}
	info.Resolution = models.ResolvedRemote
	info.Operations = ot.Diff(local.Content, remote.Content, "remote")

	if editingIt {
		e.editing.UpdateContent(remote.Content)
		return info, nil
	}
	if err := e.update(textTarget(n).ID, models.TextPatch(remote.Content), models.ChangeText); err != nil {
		return info, err
	}
	return info, nil
}
