package workspace_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/starford/sowilo/internal/apperr"
	"github.com/starford/sowilo/internal/clock"
	"github.com/starford/sowilo/internal/docstore"
	"github.com/starford/sowilo/internal/models"
	"github.com/starford/sowilo/internal/storage"
	"github.com/starford/sowilo/internal/testutil"
	"github.com/starford/sowilo/internal/workspace"
)

type fixture struct {
	ws    *workspace.Workspace
	db    *docstore.DB
	store *storage.Memory
	clock *clock.Fake
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := testutil.TestDB(t)

	fx := &fixture{
		db:    db,
		store: storage.NewMemory(0),
		clock: clock.NewFake(time.Now().Add(time.Hour)),
	}
	fx.ws = workspace.New(db, fx.store,
		workspace.WithClock(fx.clock),
		workspace.WithLogger(testutil.Logger()),
	)
	t.Cleanup(func() { fx.ws.CloseAll(context.Background()) })
	return fx
}

func storedDoc(id, name string) *models.DesignDocument {
	doc := models.NewDocument()
	doc.ID = id
	doc.Name = name
	doc.Elements = []*models.ElementNode{{
		ID: "el-1", TagName: "h1",
		Attributes: map[string]string{}, Styles: map[string]string{},
		Children: []*models.ElementNode{models.NewTextNode("el-2", "el-1", "Stored")},
	}}
	return doc
}

func TestOpen_NewDesign(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	ed, err := fx.ws.Open(ctx, "poster")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if ed.Document() != nil {
		t.Error("expected no document for a new design")
	}
	again, _ := fx.ws.Open(ctx, "poster")
	if again != ed {
		t.Error("expected the same editor on second open")
	}
	if ids := fx.ws.IDs(); len(ids) != 1 || ids[0] != "poster" {
		t.Errorf("IDs = %v", ids)
	}
}

func TestOpen_EmptyID(t *testing.T) {
	fx := setup(t)
	_, err := fx.ws.Open(context.Background(), "  ")
	if !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestOpen_LoadsStoredDocument(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	if _, err := fx.db.SaveDocument(ctx, storedDoc("poster", "Stored")); err != nil {
		t.Fatalf("SaveDocument: %v", err)
	}

	ed, err := fx.ws.Open(ctx, "poster")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	doc := ed.Document()
	if doc == nil || doc.Name != "Stored" {
		t.Fatalf("document = %+v", doc)
	}
	if el, err := ed.Element("el-1"); err != nil || el.Text() != "Stored" {
		t.Errorf("element = %v, %v", el, err)
	}
}

func TestOpen_NewerDraftWins(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	if _, err := fx.db.SaveDocument(ctx, storedDoc("poster", "Stored")); err != nil {
		t.Fatalf("SaveDocument: %v", err)
	}
	draft := models.LocalDraft{
		DesignID:  "poster",
		Document:  storedDoc("poster", "Draft"),
		Timestamp: fx.clock.Now(),
		ExpiresAt: fx.clock.Now().Add(24 * time.Hour),
	}
	data, _ := json.Marshal(draft)
	if err := fx.store.Set(storage.DraftKey("poster"), data); err != nil {
		t.Fatal(err)
	}

	ed, err := fx.ws.Open(ctx, "poster")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := ed.Document().Name; got != "Draft" {
		t.Errorf("name = %q, want Draft", got)
	}
}

func TestClose_PersistsEdits(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	ed, _ := fx.ws.Open(ctx, "poster")
	if _, err := ed.AddElement(&models.ElementNode{TagName: "section"}); err != nil {
		t.Fatalf("AddElement: %v", err)
	}
	if err := fx.ws.Close(ctx, "poster"); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := fx.ws.Get("poster"); ok {
		t.Error("editor still open after Close")
	}

	doc, row, err := fx.db.GetDocument(ctx, "poster")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if len(doc.Elements) != 1 || doc.Elements[0].TagName != "section" {
		t.Errorf("stored elements = %+v", doc.Elements)
	}
	if row.Revision != 1 {
		t.Errorf("revision = %d, want 1", row.Revision)
	}
}

func TestSweep_RemovesExpiredDrafts(t *testing.T) {
	fx := setup(t)
	expired := models.LocalDraft{DesignID: "old", ExpiresAt: fx.clock.Now().Add(-time.Minute)}
	data, _ := json.Marshal(expired)
	fx.store.Set(storage.DraftKey("old"), data)

	n, err := fx.ws.Sweep()
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Errorf("removed = %d, want 1", n)
	}
}

func TestDelete(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	fx.db.SaveDocument(ctx, storedDoc("poster", "Stored"))
	if _, err := fx.ws.Open(ctx, "poster"); err != nil {
		t.Fatal(err)
	}

	if err := fx.ws.Delete(ctx, "poster"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, _, err := fx.db.GetDocument(ctx, "poster"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := fx.store.Get(storage.DraftKey("poster")); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("draft still present: %v", err)
	}
}

func TestOpen_SavesRestoredPendingChanges(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	draft := models.LocalDraft{
		DesignID:  "poster",
		Document:  storedDoc("poster", "Draft"),
		Timestamp: fx.clock.Now(),
		ExpiresAt: fx.clock.Now().Add(24 * time.Hour),
	}
	data, _ := json.Marshal(draft)
	if err := fx.store.Set(storage.DraftKey("poster"), data); err != nil {
		t.Fatal(err)
	}
	backup, _ := json.Marshal([]models.PendingChange{
		{ElementID: "el-2", Content: "Stored", Type: models.ChangeText, Timestamp: fx.clock.Now()},
	})
	if err := fx.store.Set(storage.PendingChangesKey("poster"), backup); err != nil {
		t.Fatal(err)
	}

	ed, err := fx.ws.Open(ctx, "poster")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if n := len(ed.Status().Queue.Queue); n != 1 {
		t.Fatalf("queued = %d, want 1", n)
	}

	fx.clock.Advance(2 * time.Second)

	doc, _, err := fx.db.GetDocument(ctx, "poster")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if doc.Name != "Draft" {
		t.Errorf("stored name = %q, want Draft", doc.Name)
	}
	st := ed.Status()
	if st.Sync.Status != models.SyncSuccess {
		t.Errorf("sync status = %q, want success", st.Sync.Status)
	}
	if st.Pending.Count != 0 {
		t.Errorf("pending = %d, want 0", st.Pending.Count)
	}
	if _, err := fx.store.Get(storage.PendingChangesKey("poster")); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("backup still present: %v", err)
	}
}

func TestFind(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	if _, err := fx.ws.Find(ctx, "ghost"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown design: expected ErrNotFound, got %v", err)
	}
	if ids := fx.ws.IDs(); len(ids) != 0 {
		t.Errorf("Find opened %v", ids)
	}

	if _, err := fx.db.SaveDocument(ctx, storedDoc("poster", "Stored")); err != nil {
		t.Fatal(err)
	}
	ed, err := fx.ws.Find(ctx, "poster")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if ed.Document().Name != "Stored" {
		t.Errorf("name = %q", ed.Document().Name)
	}

	fresh, _ := fx.ws.Open(ctx, "blank")
	if got, err := fx.ws.Find(ctx, "blank"); err != nil || got != fresh {
		t.Errorf("open design without document: %v, %v", got, err)
	}
}
