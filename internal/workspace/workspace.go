// Package workspace keeps the open editors of a process, one per design id.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/starford/sowilo/internal/apperr"
	"github.com/starford/sowilo/internal/autosave"
	"github.com/starford/sowilo/internal/clock"
	"github.com/starford/sowilo/internal/docstore"
	"github.com/starford/sowilo/internal/editor"
	"github.com/starford/sowilo/internal/models"
	"github.com/starford/sowilo/internal/storage"
)

// Workspace opens editors lazily and shares the stores between them.
type Workspace struct {
	mu      sync.Mutex
	editors map[string]*editor.Editor

	db       docstore.Store
	store    storage.Store
	cfg      editor.Config
	ctx      context.Context
	clock    clock.Clock
	logger   *slog.Logger
	notifier editor.Notifier
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithEditorConfig sets the layer timings of every editor.
func WithEditorConfig(c editor.Config) Option { return func(w *Workspace) { w.cfg = c } }

// WithClock sets the time source.
func WithClock(c clock.Clock) Option { return func(w *Workspace) { w.clock = c } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(w *Workspace) { w.logger = l } }

// WithNotifier sets the receiver of every editor's events.
func WithNotifier(n editor.Notifier) Option { return func(w *Workspace) { w.notifier = n } }

// WithContext sets the context of timer-driven saves.
func WithContext(ctx context.Context) Option { return func(w *Workspace) { w.ctx = ctx } }

// New creates a workspace persisting through db and backing up drafts in store.
func New(db docstore.Store, store storage.Store, opts ...Option) *Workspace {
	w := &Workspace{
		editors:  make(map[string]*editor.Editor),
		db:       db,
		store:    store,
		ctx:      context.Background(),
		clock:    clock.Real{},
		logger:   slog.Default(),
		notifier: editor.NotifierFunc(func(editor.Event) {}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Open returns the editor of id, creating it on first use. The document is
// loaded from the database; a local draft newer than the stored revision
// wins so unsynced work survives a restart.
func (w *Workspace) Open(ctx context.Context, id string) (*editor.Editor, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("workspace: empty design id: %w", apperr.ErrInvalidInput)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.open(ctx, id, false)
}

// Find returns the editor of an existing design: one that is open, stored
// or has a local draft. Unknown ids yield ErrNotFound and open nothing.
func (w *Workspace) Find(ctx context.Context, id string) (*editor.Editor, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("workspace: empty design id: %w", apperr.ErrInvalidInput)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.open(ctx, id, true)
}

// open must be called with w.mu held.
func (w *Workspace) open(ctx context.Context, id string, mustExist bool) (*editor.Editor, error) {
	if ed, ok := w.editors[id]; ok {
		return ed, nil
	}

	doc, err := w.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil && mustExist {
		return nil, fmt.Errorf("workspace: design %s: %w", id, apperr.ErrNotFound)
	}
	ed := editor.New(id, w.store, w.db,
		editor.WithConfig(w.cfg),
		editor.WithClock(w.clock),
		editor.WithLogger(w.logger),
		editor.WithNotifier(w.notifier),
		editor.WithContext(w.ctx),
		editor.WithDocument(doc),
	)
	w.editors[id] = ed
	w.logger.Info("workspace: design opened", slog.String("design_id", id), slog.Bool("has_document", doc != nil))
	return ed, nil
}

func (w *Workspace) load(ctx context.Context, id string) (*models.DesignDocument, error) {
	doc, row, err := w.db.GetDocument(ctx, id)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("workspace: load %s: %w", id, err)
	}

	draft, derr := autosave.LoadDraft(w.store, id, w.clock.Now())
	switch {
	case derr == nil && draft.Document != nil && (doc == nil || draft.Timestamp.After(row.UpdatedAt)):
		w.logger.Info("workspace: restoring local draft", slog.String("design_id", id))
		return draft.Document, nil
	case derr != nil && !errors.Is(derr, apperr.ErrNotFound):
		w.logger.Warn("workspace: draft unreadable", slog.String("design_id", id), slog.String("error", derr.Error()))
	}
	return doc, nil
}

// Get returns the editor of id if it is open.
func (w *Workspace) Get(id string) (*editor.Editor, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ed, ok := w.editors[id]
	return ed, ok
}

// IDs returns the ids of the open designs, sorted.
func (w *Workspace) IDs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	ids := make([]string, 0, len(w.editors))
	for id := range w.editors {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// List returns the stored designs.
func (w *Workspace) List(ctx context.Context, limit, offset int) ([]docstore.Row, int, error) {
	return w.db.ListDocuments(ctx, limit, offset)
}

// Search delegates full-text search to the database.
func (w *Workspace) Search(query string, limit int) ([]docstore.SearchResult, error) {
	return w.db.Search(query, limit)
}

// Delete closes the editor of id and removes the design with its draft.
func (w *Workspace) Delete(ctx context.Context, id string) error {
	if err := w.Close(ctx, id); err != nil {
		w.logger.Warn("workspace: close before delete", slog.String("design_id", id), slog.String("error", err.Error()))
	}
	if err := w.store.Delete(storage.DraftKey(id)); err != nil {
		w.logger.Warn("workspace: delete draft", slog.String("design_id", id), slog.String("error", err.Error()))
	}
	return w.db.DeleteDocument(ctx, id)
}

// Close flushes and forgets the editor of id.
func (w *Workspace) Close(ctx context.Context, id string) error {
	w.mu.Lock()
	ed, ok := w.editors[id]
	delete(w.editors, id)
	w.mu.Unlock()
	if !ok {
		return nil
	}
	return ed.Close(ctx)
}

// CloseAll closes every open editor.
func (w *Workspace) CloseAll(ctx context.Context) error {
	var errs []error
	for _, id := range w.IDs() {
		if err := w.Close(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Sweep removes expired drafts of every design.
func (w *Workspace) Sweep() (int, error) {
	n, err := autosave.SweepExpired(w.store, w.clock.Now())
	if err != nil {
		return n, fmt.Errorf("workspace: sweep: %w", err)
	}
	if n > 0 {
		w.logger.Info("workspace: expired drafts removed", slog.Int("count", n))
	}
	return n, nil
}
