package editor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/sowilo/internal/apperr"
	"github.com/starford/sowilo/internal/clock"
	"github.com/starford/sowilo/internal/docstore"
	"github.com/starford/sowilo/internal/doctree"
	"github.com/starford/sowilo/internal/keymap"
	"github.com/starford/sowilo/internal/models"
	"github.com/starford/sowilo/internal/ot"
	"github.com/starford/sowilo/internal/storage"
)

type fakePersist struct {
	mu   sync.Mutex
	docs []*models.DesignDocument
	err  error
}

func (f *fakePersist) SaveDocument(_ context.Context, doc *models.DesignDocument) (docstore.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return docstore.Row{}, f.err
	}
	f.docs = append(f.docs, doc)
	return docstore.Row{ID: doc.ID, Revision: len(f.docs)}, nil
}

func (f *fakePersist) saved() []*models.DesignDocument {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.DesignDocument(nil), f.docs...)
}

func (f *fakePersist) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type events struct {
	mu  sync.Mutex
	all []Event
}

func (r *events) Publish(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all = append(r.all, ev)
}

func (r *events) notices(level Level) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.all {
		if ev.Type == EventNotification && ev.Level == level {
			out = append(out, ev.Message)
		}
	}
	return out
}

type harness struct {
	ed      *Editor
	clock   *clock.Fake
	persist *fakePersist
	events  *events
	store   *storage.Memory
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		clock:   clock.NewFake(time.Unix(1_700_000_000, 0)),
		persist: &fakePersist{},
		events:  &events{},
		store:   storage.NewMemory(0),
	}
	opts = append([]Option{
		WithClock(h.clock),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithNotifier(h.events),
	}, opts...)
	h.ed = New("design-1", h.store, h.persist, opts...)
	t.Cleanup(func() { _ = h.ed.Close(context.Background()) })
	return h
}

func div(styles map[string]string) *models.ElementNode {
	return &models.ElementNode{TagName: "div", Styles: styles}
}

func paragraph(text string) *models.ElementNode {
	return &models.ElementNode{
		TagName:  "p",
		Children: []*models.ElementNode{{TagName: models.TextTag, IsTextNode: true, TextContent: text}},
	}
}

func TestEndToEndScenario(t *testing.T) {
	h := newHarness(t)
	e := h.ed
	require.Nil(t, e.Document())

	id, err := e.AddElement(div(map[string]string{"width": "100px"}))
	require.NoError(t, err)
	doc := e.Document()
	require.Len(t, doc.Elements, 1)
	assert.Equal(t, id, doc.Elements[0].ID)
	assert.Equal(t, "100px", doc.Elements[0].Styles["width"])
	assert.Equal(t, models.DefaultDocumentName, doc.Name)
	assert.Equal(t, []string{id}, e.Selection())

	pastBefore, _ := e.history.Depth()
	require.NoError(t, e.UpdateStyleField(id, "width", "200px"))
	el, _ := e.Element(id)
	assert.Equal(t, "200px", el.Styles["width"])
	past, _ := e.history.Depth()
	assert.Equal(t, pastBefore+1, past, "one snapshot pushed")
	changes := e.pending.Changes()
	require.Len(t, changes, 1)
	assert.Equal(t, id, changes[0].ElementID)
	assert.Equal(t, models.ChangeStyle, changes[0].Type)

	require.True(t, e.Undo())
	el, _ = e.Element(id)
	assert.Equal(t, "100px", el.Styles["width"])
	_, future := e.history.Depth()
	assert.Equal(t, 1, future)

	before := e.Document()
	moved, err := e.BringToFront(id)
	require.NoError(t, err)
	assert.False(t, moved)
	assert.Same(t, before, e.Document())
}

func TestUndoRedo_Identity(t *testing.T) {
	h := newHarness(t)
	e := h.ed
	id, _ := e.AddElement(div(nil))
	require.NoError(t, e.UpdateStyleBatch(id, map[string]string{"color": "red", "top": "4px"}))
	require.NoError(t, e.UpdateAttribute(id, "title", "hi"))
	want := e.Document()

	require.True(t, e.Undo())
	require.True(t, e.Redo())
	assert.Equal(t, want.Elements, e.Document().Elements)
}

func TestUndo_NewActionClearsRedo(t *testing.T) {
	h := newHarness(t)
	e := h.ed
	id, _ := e.AddElement(div(nil))
	require.NoError(t, e.UpdateStyleField(id, "color", "red"))
	require.True(t, e.Undo())
	require.NoError(t, e.UpdateStyleField(id, "color", "blue"))
	assert.False(t, e.Redo())
}

func TestUpdate_NoChangeRecordsNothing(t *testing.T) {
	h := newHarness(t)
	e := h.ed
	id, _ := e.AddElement(div(map[string]string{"color": "red"}))
	past, _ := e.history.Depth()
	doc := e.Document()

	require.NoError(t, e.UpdateStyleField(id, "color", "red"))
	assert.Same(t, doc, e.Document())
	after, _ := e.history.Depth()
	assert.Equal(t, past, after)
}

func TestUpdate_Errors(t *testing.T) {
	h := newHarness(t)
	e := h.ed
	assert.ErrorIs(t, e.UpdateStyleField("x", "color", "red"), apperr.ErrNoDocument)
	_, _ = e.AddElement(div(nil))
	assert.ErrorIs(t, e.UpdateStyleField("missing", "color", "red"), apperr.ErrNotFound)
	assert.ErrorIs(t, e.UpdateStyleField("missing", " ", "red"), apperr.ErrInvalidInput)
	_, err := e.AddElement(&models.ElementNode{})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestDelete_UndoRestoresPosition(t *testing.T) {
	h := newHarness(t)
	e := h.ed
	a, _ := e.AddElement(div(nil))
	b, _ := e.AddElement(paragraph("hello"))
	c, _ := e.AddElement(div(nil))

	require.NoError(t, e.DeleteElement(b))
	assert.Len(t, e.Document().Elements, 2)

	require.True(t, e.Undo())
	ids := []string{}
	for _, n := range e.Document().Elements {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{a, b, c}, ids)
	assert.Equal(t, "hello", e.Document().Elements[1].Text())

	require.True(t, e.Redo())
	assert.Len(t, e.Document().Elements, 2)
}

func TestDeleteSelected(t *testing.T) {
	h := newHarness(t)
	e := h.ed
	a, _ := e.AddElement(div(nil))
	b, _ := e.AddElement(div(nil))
	require.NoError(t, e.SelectElement(a, false))
	require.NoError(t, e.SelectElement(b, true))

	n, err := e.DeleteSelected()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, e.Document().Elements)
	assert.Empty(t, e.Selection())
}

func TestSelection_Toggle(t *testing.T) {
	h := newHarness(t)
	e := h.ed
	a, _ := e.AddElement(div(nil))
	b, _ := e.AddElement(div(nil))

	require.NoError(t, e.SelectElement(a, false))
	require.NoError(t, e.SelectElement(b, true))
	assert.Equal(t, []string{a, b}, e.Selection())
	require.NoError(t, e.SelectElement(a, true))
	assert.Equal(t, []string{b}, e.Selection())
	require.NoError(t, e.SelectElement("", false))
	assert.Empty(t, e.Selection())
	assert.ErrorIs(t, e.SelectElement("nope", false), apperr.ErrNotFound)
}

func TestReorder(t *testing.T) {
	h := newHarness(t)
	e := h.ed
	a, _ := e.AddElement(div(nil))
	b, _ := e.AddElement(div(nil))

	moved, err := e.BringToFront(a)
	require.NoError(t, err)
	assert.True(t, moved)
	assert.Equal(t, a, e.Document().Elements[1].ID)

	moved, _ = e.SendToBack(a)
	assert.True(t, moved)
	assert.Equal(t, b, e.Document().Elements[1].ID)
}

func TestApplyBatch_SingleUndoStep(t *testing.T) {
	h := newHarness(t)
	e := h.ed
	a, _ := e.AddElement(div(map[string]string{"color": "red"}))
	b, _ := e.AddElement(div(nil))

	err := e.ApplyBatch([]doctree.ElementUpdate{
		{ElementID: a, Patch: models.StylePatch(map[string]string{"color": "blue"})},
		{ElementID: b, Patch: models.StylePatch(map[string]string{"width": "5px"})},
		{ElementID: a, Patch: models.StylePatch(map[string]string{"color": "green"})},
		{ElementID: "ghost", Patch: models.StylePatch(map[string]string{"color": "x"})},
	})
	require.NoError(t, err)
	na, _ := e.Element(a)
	nb, _ := e.Element(b)
	assert.Equal(t, "green", na.Styles["color"])
	assert.Equal(t, "5px", nb.Styles["width"])

	require.True(t, e.Undo())
	na, _ = e.Element(a)
	nb, _ = e.Element(b)
	assert.Equal(t, "red", na.Styles["color"])
	assert.NotContains(t, nb.Styles, "width")
}

func TestTextEditing_CommitOnStop(t *testing.T) {
	h := newHarness(t)
	e := h.ed
	id, _ := e.AddElement(paragraph("hello"))
	require.NoError(t, e.StartTextEditing(id))

	doc := e.Document()
	require.NoError(t, e.UpdateContent("hello world"))
	assert.Same(t, doc, e.Document(), "typing does not touch the tree")

	got, err := e.StopTextEditing()
	require.NoError(t, err)
	assert.Equal(t, id, got)
	el, _ := e.Element(id)
	assert.Equal(t, "hello world", el.Text())

	require.True(t, e.Undo())
	el, _ = e.Element(id)
	assert.Equal(t, "hello", el.Text())

	assert.ErrorIs(t, e.UpdateContent("x"), apperr.ErrInvalidInput)
}

func TestTextEditing_SwitchCommitsPrevious(t *testing.T) {
	h := newHarness(t)
	e := h.ed
	a, _ := e.AddElement(paragraph("one"))
	b, _ := e.AddElement(paragraph("two"))

	require.NoError(t, e.StartTextEditing(a))
	require.NoError(t, e.UpdateContent("one!"))
	require.NoError(t, e.StartTextEditing(b))

	el, _ := e.Element(a)
	assert.Equal(t, "one!", el.Text())
	active, ok := e.editing.Active()
	assert.True(t, ok)
	assert.Equal(t, b, active)
}

func TestNudge(t *testing.T) {
	h := newHarness(t)
	e := h.ed
	id, _ := e.AddElement(div(map[string]string{"left": "5px", "position": "relative"}))

	require.NoError(t, e.Nudge(10, -1))
	el, _ := e.Element(id)
	assert.Equal(t, "15px", el.Styles["left"])
	assert.Equal(t, "-1px", el.Styles["top"])
	assert.Equal(t, "relative", el.Styles["position"])

	other, _ := e.AddElement(div(nil))
	require.NoError(t, e.SelectElement(id, true))
	require.NoError(t, e.Nudge(1, 1), "multi-selection is ignored")
	el, _ = e.Element(other)
	assert.NotContains(t, el.Styles, "left")
}

func TestAddFont(t *testing.T) {
	h := newHarness(t)
	e := h.ed
	_, _ = e.AddElement(div(nil))
	url := "https://fonts.googleapis.com/css2?family=Inter"

	require.NoError(t, e.AddFont(url))
	require.NoError(t, e.AddFont(url))
	assert.Equal(t, []string{"@import url('" + url + "')"}, e.Document().Fonts)
	assert.ErrorIs(t, e.AddFont("ftp://x/y"), apperr.ErrInvalidInput)
	assert.ErrorIs(t, e.AddFont("not a url"), apperr.ErrInvalidInput)
}

func TestZoomClamp(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, MaxZoom, h.ed.SetZoom(10))
	assert.Equal(t, MinZoom, h.ed.SetZoom(0))
	assert.Equal(t, 1.5, h.ed.SetZoom(1.5))
}

func TestCopyPaste_FreshIDs(t *testing.T) {
	h := newHarness(t)
	e := h.ed
	id, _ := e.AddElement(paragraph("copy me"))
	require.True(t, e.Copy())

	pasted, err := e.Paste()
	require.NoError(t, err)
	assert.NotEqual(t, id, pasted)
	orig, _ := e.Element(id)
	cp, _ := e.Element(pasted)
	assert.Equal(t, "copy me", cp.Text())
	assert.NotEqual(t, orig.Children[0].ID, cp.Children[0].ID)
	assert.Equal(t, pasted, cp.Children[0].ParentID)
}

func TestAddElement_DuplicateIDsInSubtree(t *testing.T) {
	h := newHarness(t)
	e := h.ed
	node := &models.ElementNode{ID: "box", TagName: "div", Children: []*models.ElementNode{
		{ID: "box", TagName: "span"},
		{ID: "dup", TagName: "span"},
		{ID: "dup", TagName: "span", Children: []*models.ElementNode{{ID: "dup", TagName: "b"}}},
	}}

	id, err := e.AddElement(node)
	require.NoError(t, err)
	assert.Equal(t, "box", id)

	seen := map[string]bool{}
	parents := map[string]string{}
	for _, n := range doctree.Flatten(e.Document().Elements) {
		assert.False(t, seen[n.ID], "id %s used twice", n.ID)
		seen[n.ID] = true
		for _, c := range n.Children {
			parents[c.ID] = n.ID
		}
	}
	assert.Len(t, seen, 5)
	for child, parent := range parents {
		el, err := e.Element(child)
		require.NoError(t, err)
		assert.Equal(t, parent, el.ParentID)
	}
	root, _ := e.Element("box")
	assert.NotEqual(t, "box", root.Children[0].ID)
	assert.Equal(t, "dup", root.Children[1].ID, "first use of an id is kept")
}

func TestQueue_SavesLatestDocument(t *testing.T) {
	h := newHarness(t)
	e := h.ed
	id, _ := e.AddElement(div(nil))
	require.NoError(t, e.UpdateStyleField(id, "color", "red"))
	require.NoError(t, e.UpdateStyleField(id, "color", "blue"))
	assert.Equal(t, IndicatorIdle, e.Status().Sync.Indicator)

	h.clock.Advance(1500 * time.Millisecond)
	saved := h.persist.saved()
	require.Len(t, saved, 1, "burst coalesced into one save")
	assert.Equal(t, "design-1", saved[0].ID)
	assert.Equal(t, "blue", saved[0].Elements[0].Styles["color"])

	st := e.Status()
	assert.False(t, e.pending.HasChanges())
	assert.Equal(t, models.SyncSuccess, st.Sync.Status)
	assert.Equal(t, IndicatorSaved, st.Sync.Indicator)
	require.NotNil(t, st.Sync.LastSavedAt)
}

func TestQueue_TerminalFailureNotifies(t *testing.T) {
	h := newHarness(t)
	e := h.ed
	h.persist.fail(errors.New("offline"))
	_, _ = e.AddElement(div(nil))

	h.clock.Advance(1500 * time.Millisecond)
	assert.Equal(t, models.SyncError, e.Status().Sync.Status)
	for _, d := range []time.Duration{1, 2, 4, 8} {
		h.clock.Advance(d * time.Second)
	}
	assert.Equal(t, []string{"Failed to save changes after multiple attempts"}, h.events.notices(LevelError))
	st := e.Status()
	require.Len(t, st.Queue.Queue, 1)
	assert.Equal(t, models.OpFailed, st.Queue.Queue[0].Status)
}

func TestSave_Flushes(t *testing.T) {
	h := newHarness(t)
	e := h.ed
	_, _ = e.AddElement(div(nil))
	require.NoError(t, e.Save(context.Background()))
	assert.Len(t, h.persist.saved(), 1)

	d, err := e.drafts.LoadDraft()
	require.NoError(t, err)
	assert.Len(t, d.Document.Elements, 1)
}

func TestImportHTML_ReplacesAndWarns(t *testing.T) {
	h := newHarness(t)
	e := h.ed
	id, _ := e.AddElement(div(nil))
	require.NoError(t, e.UpdateStyleField(id, "color", "red"))

	doc, err := e.ImportHTML(`<html><head><title>Imported</title></head><body><h1>Hi</h1></body></html>`)
	require.NoError(t, err)
	assert.Equal(t, "design-1", doc.ID)
	assert.Equal(t, "Imported", e.Document().Name)
	assert.False(t, e.Undo(), "history does not survive a document swap")
	assert.Equal(t, []string{"Unsaved changes were discarded"}, h.events.notices(LevelWarning))
	assert.Empty(t, e.Selection())

	_, err = e.ImportHTML("")
	require.ErrorIs(t, err, apperr.ErrInvalidInput)
	assert.Equal(t, "Imported", e.Document().Name, "failed import leaves the document")
}

func TestClearCanvas(t *testing.T) {
	h := newHarness(t)
	e := h.ed
	_, _ = e.AddElement(div(nil))
	e.ClearCanvas()
	assert.Nil(t, e.Document())
	assert.Empty(t, e.Status().Queue.Queue)
	_, err := e.ExportHTML("html")
	assert.ErrorIs(t, err, apperr.ErrNoDocument)
}

func TestExportHTML(t *testing.T) {
	h := newHarness(t)
	e := h.ed
	_, _ = e.AddElement(paragraph("hello"))

	page, err := e.ExportHTML("html")
	require.NoError(t, err)
	assert.Contains(t, page, "<p>hello</p>")
	md, err := e.ExportHTML("markdown")
	require.NoError(t, err)
	assert.Equal(t, "hello", md)
	_, err = e.ExportHTML("pdf")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestResolveRemoteText(t *testing.T) {
	h := newHarness(t)
	e := h.ed
	id, _ := e.AddElement(paragraph("hello"))
	h.clock.Advance(2 * time.Second)

	info, err := e.ResolveRemoteText(id, models.PendingChange{Content: "hello world", Timestamp: h.clock.Now()})
	require.NoError(t, err)
	assert.Equal(t, models.ResolvedRemote, info.Resolution)
	el, _ := e.Element(id)
	assert.Equal(t, "hello world", el.Text())
	require.Len(t, info.Operations, 1)
	assert.Equal(t, ot.Insert, info.Operations[0].Type)
	assert.Equal(t, 5, info.Operations[0].Position)
	assert.Equal(t, " world", info.Operations[0].Text)
	assert.Equal(t, "hello world", ot.ApplyAll("hello", info.Operations))

	stale := models.PendingChange{Content: "bye", Timestamp: h.clock.Now().Add(-time.Minute)}
	info, err = e.ResolveRemoteText(id, stale)
	require.NoError(t, err)
	assert.Equal(t, models.ResolvedLocal, info.Resolution)
	el, _ = e.Element(id)
	assert.Equal(t, "hello world", el.Text())
}

func TestResolveRemoteText_IgnoresNewerStyleChange(t *testing.T) {
	h := newHarness(t)
	e := h.ed
	id, _ := e.AddElement(paragraph("hello"))
	h.clock.Advance(2 * time.Second)

	remoteAt := h.clock.Now().Add(5 * time.Second)
	h.clock.Advance(10 * time.Second)
	require.NoError(t, e.UpdateStyleField(id, "color", "red"))

	info, err := e.ResolveRemoteText(id, models.PendingChange{Content: "hello there", Timestamp: remoteAt})
	require.NoError(t, err)
	assert.Equal(t, models.ResolvedRemote, info.Resolution)
	assert.Equal(t, models.ChangeText, info.LocalChange.Type)
	el, _ := e.Element(id)
	assert.Equal(t, "hello there", el.Text())
	assert.Equal(t, "red", el.Styles["color"])
}

func TestHandleKey(t *testing.T) {
	h := newHarness(t)
	e := h.ed
	ctx := context.Background()
	id, _ := e.AddElement(paragraph("text"))

	act, ok, err := e.HandleKey(ctx, keymap.Event{Key: "ArrowRight", Shift: true})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, keymap.Nudge, act.Command)
	el, _ := e.Element(id)
	assert.Equal(t, "10px", el.Styles["left"])

	_, ok, _ = e.HandleKey(ctx, keymap.Event{Key: "z", Ctrl: true})
	require.True(t, ok)
	el, _ = e.Element(id)
	assert.NotContains(t, el.Styles, "left")

	require.NoError(t, e.StartTextEditing(id))
	_, ok, _ = e.HandleKey(ctx, keymap.Event{Key: "Backspace"})
	assert.False(t, ok, "delete is suppressed while editing")
	_, ok, _ = e.HandleKey(ctx, keymap.Event{Key: "Escape"})
	assert.True(t, ok)
	_, editing := e.editing.Active()
	assert.False(t, editing)
	assert.Empty(t, e.Selection())
}
