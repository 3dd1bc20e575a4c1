package pending

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/starford/sowilo/internal/clock"
	"github.com/starford/sowilo/internal/models"
	"github.com/starford/sowilo/internal/storage"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newLayer(t *testing.T, store Store, opts ...Option) (*Layer, *clock.Fake) {
	t.Helper()
	c := clock.NewFake(time.Unix(1_700_000_000, 0))
	opts = append([]Option{WithClock(c), WithLogger(quietLogger())}, opts...)
	l := New("design-1", store, opts...)
	t.Cleanup(l.Close)
	return l, c
}

func change(id, content string) models.PendingChange {
	return models.PendingChange{ElementID: id, Content: content, Type: models.ChangeText}
}

func TestAddChange_CoalescesPerElement(t *testing.T) {
	l, _ := newLayer(t, storage.NewMemory(0))
	l.AddChange(change("a", "one"))
	l.AddChange(change("b", "x"))
	l.AddChange(change("a", "two"))

	got := l.Changes()
	if len(got) != 2 {
		t.Fatalf("changes = %d, want 2", len(got))
	}
	if got[0].ElementID != "a" || got[0].Content != "two" {
		t.Errorf("latest change for a should win in place, got %+v", got[0])
	}
	if !l.HasChanges() || !l.State().IsDirty {
		t.Error("layer should be dirty")
	}
}

func TestAddChange_WritesBackupImmediately(t *testing.T) {
	store := storage.NewMemory(0)
	l, _ := newLayer(t, store)
	l.AddChange(change("a", "one"))

	data, err := store.Get(storage.PendingChangesKey("design-1"))
	if err != nil {
		t.Fatalf("backup missing before debounce: %v", err)
	}
	var entries []models.PendingChange
	if err := json.Unmarshal(data, &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Content != "one" {
		t.Errorf("backup = %s", data)
	}
}

func TestDebounce_ReadyAfterQuietPeriod(t *testing.T) {
	ready := 0
	l, c := newLayer(t, storage.NewMemory(0), OnReady(func(n int) { ready = n }))

	l.AddChange(change("a", "1"))
	c.Advance(1000 * time.Millisecond)
	l.AddChange(change("b", "2"))
	c.Advance(1000 * time.Millisecond)
	if ready != 0 || l.State().Ready {
		t.Fatal("window should restart on every change")
	}
	c.Advance(500 * time.Millisecond)
	if ready != 2 || !l.State().Ready {
		t.Errorf("ready = %d, state = %+v", ready, l.State())
	}
}

func TestClear(t *testing.T) {
	store := storage.NewMemory(0)
	l, _ := newLayer(t, store)
	l.AddChange(change("a", "1"))
	l.Clear()

	st := l.State()
	if l.HasChanges() || st.IsDirty || st.SyncStatus != models.SyncSuccess || st.LastSyncedAt.IsZero() {
		t.Errorf("state after clear = %+v", st)
	}
	if keys, _ := store.Keys(storage.PendingChangesPrefix); len(keys) != 0 {
		t.Errorf("backup should be removed, keys = %v", keys)
	}
}

func TestRestoreOnConstruction(t *testing.T) {
	store := storage.NewMemory(0)
	first, _ := newLayer(t, store)
	first.AddChange(change("a", "1"))
	first.AddChange(change("b", "2"))
	first.Close()

	second, _ := newLayer(t, store)
	if got := second.Changes(); len(got) != 2 || got[1].ElementID != "b" {
		t.Fatalf("restored = %+v", got)
	}
	if !second.State().IsDirty {
		t.Error("restored layer should be dirty")
	}
}

func TestRestore_CorruptBackupIgnored(t *testing.T) {
	store := storage.NewMemory(0)
	_ = store.Set(storage.PendingChangesKey("design-1"), []byte("{not json"))
	l, _ := newLayer(t, store)
	if l.HasChanges() {
		t.Error("corrupt backup should be ignored")
	}
}

func TestSetSyncStatus(t *testing.T) {
	l, _ := newLayer(t, storage.NewMemory(0))
	l.SetSyncStatus(models.SyncSyncing)
	if l.SyncStatus() != models.SyncSyncing {
		t.Errorf("status = %s", l.SyncStatus())
	}
	l.SetSyncStatus(models.SyncSuccess)
	if l.State().LastSyncedAt.IsZero() {
		t.Error("success should stamp LastSyncedAt")
	}
}
