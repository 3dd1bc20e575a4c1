// Package testutil provides shared test helpers for databases and workspaces.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/starford/sowilo/internal/docstore"
	"github.com/starford/sowilo/internal/storage"
	"github.com/starford/sowilo/internal/workspace"
)

// Logger returns a logger that drops everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestDB creates a temporary document database that is automatically cleaned up.
func TestDB(t *testing.T) *docstore.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "sowilo-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := docstore.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestWorkspace creates a workspace over a temporary database and an
// in-memory draft store. Open editors are flushed before the database
// closes.
func TestWorkspace(t *testing.T, opts ...workspace.Option) (*workspace.Workspace, *docstore.DB) {
	t.Helper()
	db := TestDB(t)
	opts = append([]workspace.Option{workspace.WithLogger(Logger())}, opts...)
	ws := workspace.New(db, storage.NewMemory(0), opts...)
	t.Cleanup(func() { ws.CloseAll(context.Background()) })
	return ws, db
}
