package editor

import (
	"fmt"
	"log/slog"
	"maps"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/starford/sowilo/internal/apperr"
	"github.com/starford/sowilo/internal/doctree"
	"github.com/starford/sowilo/internal/htmldoc"
	"github.com/starford/sowilo/internal/metrics"
	"github.com/starford/sowilo/internal/models"
)

// UpdateElement merges patch into the element with id. Updating a field to
// its current value records nothing.
func (e *Editor) UpdateElement(id string, patch models.Patch) error {
	e.mu.Lock()
	defer e.unlock()
	return e.update(id, patch, changeKind(patch))
}

// UpdateStyleField sets one style property. An empty value removes it.
func (e *Editor) UpdateStyleField(id, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("editor: empty style key: %w", apperr.ErrInvalidInput)
	}
	return e.UpdateStyleBatch(id, map[string]string{key: value})
}

// UpdateStyleBatch sets several style properties at once.
func (e *Editor) UpdateStyleBatch(id string, styles map[string]string) error {
	e.mu.Lock()
	defer e.unlock()
	return e.update(id, models.StylePatch(maps.Clone(styles)), models.ChangeStyle)
}

// UpdateAttribute sets one attribute. An empty value removes it.
func (e *Editor) UpdateAttribute(id, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("editor: empty attribute key: %w", apperr.ErrInvalidInput)
	}
	e.mu.Lock()
	defer e.unlock()
	return e.update(id, models.Patch{Attributes: map[string]string{key: value}}, models.ChangeAttribute)
}

func changeKind(p models.Patch) models.ChangeType {
	switch {
	case p.TextContent != nil:
		return models.ChangeText
	case len(p.Styles) > 0:
		return models.ChangeStyle
	default:
		return models.ChangeAttribute
	}
}

// update must be called with e.mu held.
func (e *Editor) update(id string, patch models.Patch, kind models.ChangeType) error {
	if e.doc == nil {
		return apperr.ErrNoDocument
	}
	n := e.lookup(id)
	if n == nil {
		return fmt.Errorf("editor: element %s: %w", id, apperr.ErrNotFound)
	}
	before := patch.Inverse(n)

	e.metrics.Start(metrics.IncrementalUpdate)
	next := doctree.Update(e.doc, id, patch)
	e.metrics.End(metrics.IncrementalUpdate)
	if next == e.doc {
		return nil
	}
	e.history.Push(models.HistorySnapshot{
		ElementID: id,
		Before:    before,
		After:     patch,
		Action:    models.ActionUpdate,
	})
	e.setDoc(next)
	if patch.TextContent != nil && before.TextContent != nil {
		e.record(id, kind, *patch.TextContent, *before.TextContent)
	} else {
		e.record(id, kind, patch, before)
	}
	return nil
}

// ApplyBatch applies several element updates in one pass and records them
// as a single undoable step. Updates for unknown ids are skipped.
func (e *Editor) ApplyBatch(updates []doctree.ElementUpdate) error {
	e.mu.Lock()
	defer e.unlock()
	if e.doc == nil {
		return apperr.ErrNoDocument
	}

	// Inverses are taken against the state each update sees, so undoing
	// the parts in reverse restores the original values.
	working := e.doc
	parts := make([]models.HistorySnapshot, 0, len(updates))
	for _, u := range updates {
		n := doctree.FindInDocument(working, u.ElementID)
		if n == nil {
			continue
		}
		parts = append(parts, models.HistorySnapshot{
			ElementID: u.ElementID,
			Before:    u.Patch.Inverse(n),
			After:     u.Patch,
			Action:    models.ActionUpdate,
		})
		working = doctree.Update(working, u.ElementID, u.Patch)
	}

	e.metrics.Start(metrics.BatchUpdate)
	next := doctree.ApplyBatch(e.doc, updates)
	e.metrics.End(metrics.BatchUpdate)
	if next == e.doc {
		return nil
	}
	e.history.Push(models.HistorySnapshot{Action: models.ActionBatch, Batch: parts, Description: "batch update"})
	e.setDoc(next)
	for _, p := range parts {
		e.record(p.ElementID, changeKind(p.After), p.After, p.Before)
	}
	return nil
}

// BringToFront moves the element to the end of its sibling list.
func (e *Editor) BringToFront(id string) (bool, error) {
	return e.reorder(id, doctree.Front)
}

// SendToBack moves the element to the start of its sibling list.
func (e *Editor) SendToBack(id string) (bool, error) {
	return e.reorder(id, doctree.Back)
}

func (e *Editor) reorder(id string, pos doctree.Position) (bool, error) {
	e.mu.Lock()
	defer e.unlock()
	if e.doc == nil {
		return false, apperr.ErrNoDocument
	}
	if e.lookup(id) == nil {
		return false, fmt.Errorf("editor: element %s: %w", id, apperr.ErrNotFound)
	}
	next := doctree.Reorder(e.doc, id, pos)
	if next == e.doc {
		return false, nil
	}
	e.setDoc(next)
	e.record(id, models.ChangePosition, pos.String(), nil)
	return true, nil
}

// AddElement inserts node as the last root element and selects it. A
// default document is created when none exists. Missing ids are generated.
func (e *Editor) AddElement(node *models.ElementNode) (string, error) {
	if node == nil || strings.TrimSpace(node.TagName) == "" {
		return "", fmt.Errorf("editor: element needs a tag: %w", apperr.ErrInvalidInput)
	}
	e.mu.Lock()
	defer e.unlock()

	n := node.DeepCopy()
	n.ParentID = ""
	normalize(n, "")
	if n.ID == "" || e.lookup(n.ID) != nil {
		n.ID = newElementID()
		relink(n)
	}
	e.dedupeIDs(n)
	if e.doc == nil {
		doc := models.NewDocument()
		if e.designID != "" {
			doc.ID = e.designID
		}
		e.setDoc(doc)
	}
	e.insert(n, "", len(e.doc.Elements))
	e.selected = []string{n.ID}
	return n.ID, nil
}

// insert must be called with e.mu held.
func (e *Editor) insert(n *models.ElementNode, parentID string, index int) {
	loc := models.Patch{Node: n, ParentID: parentID, Index: index}
	e.history.Push(models.HistorySnapshot{ElementID: n.ID, After: loc, Action: models.ActionCreate})
	e.setDoc(doctree.InsertAt(e.doc, parentID, index, n))
	e.record(n.ID, models.ChangeDocument, n, nil)
}

// DeleteElement removes the element with id and its subtree.
func (e *Editor) DeleteElement(id string) error {
	e.mu.Lock()
	defer e.unlock()
	return e.remove(id)
}

// DeleteSelected removes every selected element and clears the selection.
func (e *Editor) DeleteSelected() (int, error) {
	e.mu.Lock()
	defer e.unlock()
	ids := e.selected
	e.selected = nil
	removed := 0
	for _, id := range ids {
		if err := e.remove(id); err != nil {
			continue
		}
		removed++
	}
	return removed, nil
}

// remove must be called with e.mu held.
func (e *Editor) remove(id string) error {
	if e.doc == nil {
		return apperr.ErrNoDocument
	}
	n := e.lookup(id)
	if n == nil {
		return fmt.Errorf("editor: element %s: %w", id, apperr.ErrNotFound)
	}
	parentID, index, _ := doctree.Locate(e.doc.Elements, id)
	if active, ok := e.editing.Active(); ok && (active == id || doctree.Find(n.Children, active) != nil) {
		e.editing.Discard()
	}
	e.history.Push(models.HistorySnapshot{
		ElementID: id,
		Before:    models.Patch{Node: n, ParentID: parentID, Index: index},
		Action:    models.ActionDelete,
	})
	e.setDoc(doctree.Remove(e.doc, id))
	e.dropSelection(id)
	e.record(id, models.ChangeDocument, nil, n)
	return nil
}

func (e *Editor) dropSelection(id string) {
	e.selected = slices.DeleteFunc(e.selected, func(s string) bool { return s == id })
	if e.hovered == id {
		e.hovered = ""
	}
}

// Nudge moves the single selected element by dx, dy pixels through its
// left and top styles. It does nothing unless exactly one element is
// selected.
func (e *Editor) Nudge(dx, dy int) error {
	e.mu.Lock()
	defer e.unlock()
	if len(e.selected) != 1 {
		return nil
	}
	id := e.selected[0]
	n := e.lookup(id)
	if n == nil {
		return fmt.Errorf("editor: element %s: %w", id, apperr.ErrNotFound)
	}
	position := n.Styles["position"]
	if position == "" {
		position = "absolute"
	}
	styles := map[string]string{
		"left":     strconv.Itoa(pixels(n.Styles["left"])+dx) + "px",
		"top":      strconv.Itoa(pixels(n.Styles["top"])+dy) + "px",
		"position": position,
	}
	return e.update(id, models.StylePatch(styles), models.ChangePosition)
}

// pixels parses "12px" or "12.5px"; anything else counts as 0.
func pixels(v string) int {
	num, _ := strings.CutSuffix(strings.TrimSpace(v), "px")
	f, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
	if err != nil {
		return 0
	}
	return int(f)
}

// AddFont adds an @import for a font stylesheet URL once.
func (e *Editor) AddFont(rawURL string) error {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("editor: font url %q: %w", rawURL, apperr.ErrInvalidInput)
	}
	decl := fmt.Sprintf("@import url('%s')", u.String())

	e.mu.Lock()
	defer e.unlock()
	if e.doc == nil {
		return apperr.ErrNoDocument
	}
	if slices.Contains(e.doc.Fonts, decl) {
		return nil
	}
	fonts := append(slices.Clone(e.doc.Fonts), decl)
	e.setDoc(e.doc.WithFonts(fonts))
	e.record(e.doc.ID, models.ChangeDocument, decl, nil)
	return nil
}

// Copy puts a copy of the single selected element on the clipboard.
func (e *Editor) Copy() bool {
	e.mu.Lock()
	defer e.unlock()
	if len(e.selected) != 1 {
		return false
	}
	n := e.lookup(e.selected[0])
	if n == nil {
		return false
	}
	e.clipboard = n.DeepCopy()
	return true
}

// Paste inserts the clipboard element as a new root with fresh ids.
func (e *Editor) Paste() (string, error) {
	e.mu.Lock()
	clip := e.clipboard
	e.mu.Unlock()
	if clip == nil {
		return "", nil
	}
	n := clip.DeepCopy()
	reassignIDs(n)
	return e.AddElement(n)
}

// SetDocument replaces the document. Pending saves, history and the
// active edit are discarded.
func (e *Editor) SetDocument(doc *models.DesignDocument) {
	e.mu.Lock()
	defer e.unlock()
	e.replace(doc)
}

// ImportHTML parses src and replaces the document with it. On a parse
// error the current document is left untouched.
func (e *Editor) ImportHTML(src string) (*models.DesignDocument, error) {
	doc, err := htmldoc.Parse(src, htmldoc.WithSanitize(e.cfg.SanitizeImport), htmldoc.WithDocumentID(e.designID))
	if err != nil {
		e.publish(e.notice(LevelError, "Failed to import HTML"))
		return nil, fmt.Errorf("editor: import: %w", err)
	}
	e.mu.Lock()
	defer e.unlock()
	e.replace(doc)
	e.record(doc.ID, models.ChangeDocument, "import", nil)
	return doc, nil
}

// ClearCanvas drops the document and its draft.
func (e *Editor) ClearCanvas() {
	e.mu.Lock()
	defer e.unlock()
	e.replace(nil)
	if err := e.drafts.ClearDraft(); err != nil {
		e.logger.Warn("editor: clear draft failed", slog.String("error", err.Error()))
	}
}

// replace must be called with e.mu held.
func (e *Editor) replace(doc *models.DesignDocument) {
	if e.pending.HasChanges() {
		e.emit(e.notice(LevelWarning, "Unsaved changes were discarded"))
	}
	e.editing.Discard()
	e.queue.Clear()
	e.pending.Discard()
	e.history.Clear()
	e.selected = nil
	e.hovered = ""
	e.index = nil
	e.setDoc(doc)
}

// ExportHTML renders the document as a standalone page or as markdown.
func (e *Editor) ExportHTML(format string) (string, error) {
	doc := e.Document()
	switch format {
	case "", "html":
		return htmldoc.ExportPage(doc)
	case "markdown", "md":
		return htmldoc.Markdown(doc)
	case "outline":
		if doc == nil {
			return "", apperr.ErrNoDocument
		}
		return htmldoc.Outline(doc), nil
	default:
		return "", fmt.Errorf("editor: export format %q: %w", format, apperr.ErrInvalidInput)
	}
}

func newElementID() string { return "el-" + uuid.Must(uuid.NewV7()).String() }

// normalize fills nil maps and parent links below n.
func normalize(n *models.ElementNode, parentID string) {
	if n.Attributes == nil {
		n.Attributes = map[string]string{}
	}
	if n.Styles == nil {
		n.Styles = map[string]string{}
	}
	if n.Children == nil {
		n.Children = []*models.ElementNode{}
	}
	if parentID != "" {
		n.ParentID = parentID
	}
	for _, c := range n.Children {
		if c.ID == "" {
			c.ID = newElementID()
		}
		normalize(c, n.ID)
	}
}

// dedupeIDs gives fresh ids to descendants of n whose ids are taken,
// either in the document or earlier in the subtree rooted at n.
func (e *Editor) dedupeIDs(n *models.ElementNode) {
	e.dedupeBelow(n, map[string]struct{}{n.ID: {}})
}

func (e *Editor) dedupeBelow(n *models.ElementNode, seen map[string]struct{}) {
	for _, c := range n.Children {
		_, dup := seen[c.ID]
		if c.ID == "" || dup || e.lookup(c.ID) != nil {
			c.ID = newElementID()
		}
		seen[c.ID] = struct{}{}
		c.ParentID = n.ID
		e.dedupeBelow(c, seen)
	}
}

func relink(n *models.ElementNode) {
	for _, c := range n.Children {
		c.ParentID = n.ID
	}
}

func reassignIDs(n *models.ElementNode) {
	n.ID = newElementID()
	for _, c := range n.Children {
		reassignIDs(c)
		c.ParentID = n.ID
	}
}
