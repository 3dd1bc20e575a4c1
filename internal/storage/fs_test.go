package storage

import (
	"errors"
	"testing"

	"github.com/starford/sowilo/internal/apperr"
)

func tempStore(t *testing.T, quota int64) *FS {
	t.Helper()
	s, err := NewFS(t.TempDir(), quota)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestFS_SetGetDelete(t *testing.T) {
	s := tempStore(t, 0)
	if err := s.Set(DraftKey("d1"), []byte(`{"a":1}`)); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(DraftKey("d1"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `{"a":1}` {
		t.Errorf("got %q", got)
	}
	if err := s.Delete(DraftKey("d1")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(DraftKey("d1")); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.Delete(DraftKey("d1")); err != nil {
		t.Errorf("deleting a missing key should succeed: %v", err)
	}
}

func TestFS_KeysByPrefix(t *testing.T) {
	s := tempStore(t, 0)
	for _, k := range []string{DraftKey("b"), DraftKey("a/../x"), PendingChangesKey("a")} {
		if err := s.Set(k, []byte("{}")); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}
	keys, err := s.Keys(DraftPrefix)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 || keys[0] != "draft_a/../x" || keys[1] != "draft_b" {
		t.Errorf("keys = %v", keys)
	}
}

func TestFS_RejectsEmptyKey(t *testing.T) {
	s := tempStore(t, 0)
	if err := s.Set("", []byte("x")); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestFS_Quota(t *testing.T) {
	s := tempStore(t, 10)
	if err := s.Set("a", []byte("123456")); err != nil {
		t.Fatal(err)
	}
	if err := s.Set("b", []byte("123456")); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if err := s.Set("a", []byte("1234567890")); err != nil {
		t.Errorf("overwriting a key should only count the new size: %v", err)
	}
}

func TestMemory_Quota(t *testing.T) {
	m := NewMemory(4)
	if err := m.Set("a", []byte("12")); err != nil {
		t.Fatal(err)
	}
	if err := m.Set("b", []byte("123")); !errors.Is(err, ErrQuotaExceeded) {
		t.Errorf("expected ErrQuotaExceeded, got %v", err)
	}
}
