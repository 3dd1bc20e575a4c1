// Package editor wires the editing layers of one design around a single
// document tree.
//
// Every structured update follows the same path: a history snapshot is
// pushed, the tree is patched incrementally, the change is recorded in the
// pending layer and a save operation is enqueued. Text typed into an element
// stays in the editing layer until the edit stops.
package editor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/starford/sowilo/internal/apperr"
	"github.com/starford/sowilo/internal/autosave"
	"github.com/starford/sowilo/internal/clock"
	"github.com/starford/sowilo/internal/docstore"
	"github.com/starford/sowilo/internal/doctree"
	"github.com/starford/sowilo/internal/editing"
	"github.com/starford/sowilo/internal/history"
	"github.com/starford/sowilo/internal/metrics"
	"github.com/starford/sowilo/internal/models"
	"github.com/starford/sowilo/internal/pending"
	"github.com/starford/sowilo/internal/queue"
	"github.com/starford/sowilo/internal/storage"
)

// Persister is the persistence boundary. SaveDocument must be idempotent.
type Persister interface {
	SaveDocument(ctx context.Context, doc *models.DesignDocument) (docstore.Row, error)
}

// Zoom bounds.
const (
	MinZoom = 0.1
	MaxZoom = 3.0
)

// Point is a canvas offset in pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Config holds the layer timings. Zero fields keep the layer defaults.
type Config struct {
	PendingDebounce  time.Duration
	QueueDebounce    time.Duration
	MaxRetries       int
	RetryBase        time.Duration
	RetryMax         time.Duration
	AutosaveInterval time.Duration
	DraftTTL         time.Duration
	HistoryDepth     int
	SanitizeImport   bool
}

// Editor is the controller of one design.
type Editor struct {
	mu        sync.Mutex
	designID  string
	doc       *models.DesignDocument
	index     *doctree.Index
	selected  []string
	hovered   string
	zoom      float64
	pan       Point
	clipboard *models.ElementNode
	outbox    []Event
	closed    bool

	latest      atomic.Pointer[models.DesignDocument]
	lastSavedAt atomic.Pointer[time.Time]

	editing *editing.Layer
	pending *pending.Layer
	queue   *queue.Queue
	drafts  *autosave.Saver
	history *history.History

	persist  Persister
	store    storage.Store
	cfg      Config
	ctx      context.Context
	clock    clock.Clock
	logger   *slog.Logger
	metrics  *metrics.Tracker
	notifier Notifier
	initial  *models.DesignDocument
}

// Option configures an Editor.
type Option func(*Editor)

// WithConfig sets the layer timings.
func WithConfig(c Config) Option { return func(e *Editor) { e.cfg = c } }

// WithClock sets the time source of every layer.
func WithClock(c clock.Clock) Option { return func(e *Editor) { e.clock = c } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(e *Editor) { e.logger = l } }

// WithMetrics sets the timing tracker shared by every layer.
func WithMetrics(t *metrics.Tracker) Option { return func(e *Editor) { e.metrics = t } }

// WithNotifier sets the receiver of editor events.
func WithNotifier(n Notifier) Option { return func(e *Editor) { e.notifier = n } }

// WithContext sets the context of timer-driven saves.
func WithContext(ctx context.Context) Option { return func(e *Editor) { e.ctx = ctx } }

// WithDocument sets the document the editor starts with.
func WithDocument(doc *models.DesignDocument) Option { return func(e *Editor) { e.initial = doc } }

// New returns an editor for designID. Drafts and pending-change backups
// are kept in store; saves go through persist.
func New(designID string, store storage.Store, persist Persister, opts ...Option) *Editor {
	e := &Editor{
		designID: designID,
		zoom:     1,
		persist:  persist,
		store:    store,
		ctx:      context.Background(),
		clock:    clock.Real{},
		logger:   slog.Default(),
		notifier: NotifierFunc(func(Event) {}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(slog.String("design_id", designID))
	if e.metrics == nil {
		e.metrics = metrics.New(metrics.WithClock(e.clock), metrics.WithLogger(e.logger))
	}

	e.editing = editing.New()

	popts := []pending.Option{pending.WithClock(e.clock), pending.WithLogger(e.logger), pending.WithMetrics(e.metrics),
		pending.OnReady(func(n int) { e.logger.Debug("editor: pending changes ready", slog.Int("count", n)) })}
	if e.cfg.PendingDebounce > 0 {
		popts = append(popts, pending.WithDebounce(e.cfg.PendingDebounce))
	}
	e.pending = pending.New(designID, store, popts...)

	qopts := []queue.Option{queue.WithClock(e.clock), queue.WithLogger(e.logger), queue.WithMetrics(e.metrics),
		queue.WithContext(e.ctx), queue.OnError(e.saveFailed), queue.OnFailed(e.saveAbandoned)}
	if e.cfg.QueueDebounce > 0 {
		qopts = append(qopts, queue.WithDebounce(e.cfg.QueueDebounce))
	}
	if e.cfg.MaxRetries > 0 {
		qopts = append(qopts, queue.WithMaxRetries(e.cfg.MaxRetries))
	}
	if e.cfg.RetryBase > 0 && e.cfg.RetryMax > 0 {
		qopts = append(qopts, queue.WithBackoff(e.cfg.RetryBase, e.cfg.RetryMax))
	}
	e.queue = queue.New(e.save, qopts...)

	aopts := []autosave.Option{autosave.WithClock(e.clock), autosave.WithLogger(e.logger), autosave.WithMetrics(e.metrics),
		autosave.OnWarning(func(msg string, _ error) { e.publish(e.notice(LevelWarning, msg)) })}
	if e.cfg.AutosaveInterval > 0 {
		aopts = append(aopts, autosave.WithInterval(e.cfg.AutosaveInterval))
	}
	if e.cfg.DraftTTL > 0 {
		aopts = append(aopts, autosave.WithTTL(e.cfg.DraftTTL))
	}
	e.drafts = autosave.New(designID, store, aopts...)

	e.history = history.New(e.replay, history.WithClock(e.clock), history.WithMaxDepth(e.cfg.HistoryDepth))

	if e.initial != nil {
		e.doc = e.initial
		e.latest.Store(e.initial)
		e.initial = nil
	}
	// Changes restored from a crash backup still need a save.
	if e.pending.HasChanges() {
		for _, c := range e.pending.Changes() {
			e.queue.Enqueue(models.QueuedOperation{Type: models.OpSave, Payload: c})
		}
	}
	return e
}

// DesignID returns the id of the edited design.
func (e *Editor) DesignID() string { return e.designID }

// Document returns the current document without taking the editor lock.
func (e *Editor) Document() *models.DesignDocument { return e.latest.Load() }

// Metrics returns the timing tracker.
func (e *Editor) Metrics() *metrics.Tracker { return e.metrics }

// Element returns the node with id.
func (e *Editor) Element(id string) (*models.ElementNode, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.doc == nil {
		return nil, apperr.ErrNoDocument
	}
	n := e.lookup(id)
	if n == nil {
		return nil, fmt.Errorf("editor: element %s: %w", id, apperr.ErrNotFound)
	}
	return n, nil
}

// unlock releases e.mu and publishes the events queued while it was held.
func (e *Editor) unlock() {
	events := e.outbox
	e.outbox = nil
	e.mu.Unlock()
	for _, ev := range events {
		e.notifier.Publish(ev)
	}
}

// emit queues ev for delivery once e.mu is released.
func (e *Editor) emit(ev Event) { e.outbox = append(e.outbox, ev) }

func (e *Editor) publish(ev Event) { e.notifier.Publish(ev) }

// lookup must be called with e.mu held.
func (e *Editor) lookup(id string) *models.ElementNode {
	if e.doc == nil {
		return nil
	}
	if !e.index.Covers(e.doc.Elements) {
		e.index = doctree.NewIndex(e.doc.Elements)
	}
	n, _ := e.index.Lookup(id)
	return n
}

// setDoc must be called with e.mu held.
func (e *Editor) setDoc(doc *models.DesignDocument) {
	e.doc = doc
	e.latest.Store(doc)
	if doc != nil {
		e.drafts.SaveDraft(doc)
	}
	e.emit(Event{Type: EventDocumentChanged, DesignID: e.designID})
}

// record adds a pending change for id and enqueues its save. It must be
// called with e.mu held.
func (e *Editor) record(id string, kind models.ChangeType, after, before any) {
	c := models.PendingChange{
		ElementID:       id,
		Content:         encode(after),
		PreviousContent: encode(before),
		Timestamp:       e.clock.Now(),
		Type:            kind,
	}
	e.pending.AddChange(c)
	e.queue.Enqueue(models.QueuedOperation{Type: models.OpSave, Payload: c})
}

func encode(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

// save is the queue's save callback. It persists the latest document, so
// one successful call covers every change in the batch.
func (e *Editor) save(ctx context.Context, changes []models.PendingChange) error {
	doc := e.latest.Load()
	if doc == nil {
		return nil
	}
	e.pending.SetSyncStatus(models.SyncSyncing)
	e.publish(e.syncEvent())

	e.metrics.Start(metrics.SaveToDB)
	persisted := doc
	if persisted.ID != e.designID {
		persisted = docWithID(doc, e.designID)
	}
	row, err := e.persist.SaveDocument(ctx, persisted)
	e.metrics.End(metrics.SaveToDB)
	if err != nil {
		e.pending.SetSyncStatus(models.SyncError)
		e.publish(e.syncEvent())
		return err
	}

	now := e.clock.Now()
	for _, c := range changes {
		if !c.Timestamp.IsZero() {
			e.metrics.Record(metrics.KeystrokeToPersist, now.Sub(c.Timestamp))
		}
	}
	e.pending.Clear()
	e.lastSavedAt.Store(&now)
	e.logger.Debug("editor: saved", slog.Int("changes", len(changes)), slog.Int("revision", row.Revision))
	e.publish(e.syncEvent())
	return nil
}

func docWithID(doc *models.DesignDocument, id string) *models.DesignDocument {
	c := *doc
	c.ID = id
	return &c
}

func (e *Editor) saveFailed(err error) {
	e.logger.Warn("editor: save failed", slog.String("error", err.Error()))
}

func (e *Editor) saveAbandoned(op models.QueuedOperation) {
	e.publish(e.notice(LevelError, "Failed to save changes after multiple attempts"))
}

// Save flushes queued saves and the local draft now.
func (e *Editor) Save(ctx context.Context) error {
	if err := e.drafts.Flush(); err != nil {
		e.logger.Warn("editor: flush draft", slog.String("error", err.Error()))
	}
	if err := e.queue.Flush(ctx); err != nil {
		return fmt.Errorf("editor: save: %w", err)
	}
	return nil
}

// Close commits any active text edit, flushes saves and stops every timer.
func (e *Editor) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	if c, ok := e.editing.Stop(); ok {
		e.commitText(c)
	}
	e.closed = true
	e.unlock()

	err := e.queue.Flush(ctx)
	e.queue.Close()
	e.pending.Close()
	if derr := e.drafts.Close(); derr != nil && err == nil {
		err = derr
	}
	if err != nil {
		return fmt.Errorf("editor: close: %w", err)
	}
	return nil
}
