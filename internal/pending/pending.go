// Package pending accumulates the latest unsynced change per element and
// keeps a durable copy so a crash does not lose it.
package pending

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/sowilo/internal/apperr"
	"github.com/starford/sowilo/internal/clock"
	"github.com/starford/sowilo/internal/metrics"
	"github.com/starford/sowilo/internal/models"
	"github.com/starford/sowilo/internal/storage"
)

// DefaultDebounce is the quiet period after which changes are ready to sync.
const DefaultDebounce = 1500 * time.Millisecond

// Store is the backup the layer writes through to.
type Store interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error
}

// State is an observable snapshot of the layer.
type State struct {
	Count        int               `json:"count"`
	IsDirty      bool              `json:"isDirty"`
	Ready        bool              `json:"ready"`
	SyncStatus   models.SyncStatus `json:"syncStatus"`
	LastSyncedAt time.Time         `json:"lastSyncedAt,omitempty"`
}

// Layer coalesces changes keyed by element id.
type Layer struct {
	mu       sync.Mutex
	designID string
	store    Store
	clock    clock.Clock
	debounce time.Duration
	logger   *slog.Logger
	metrics  *metrics.Tracker
	onReady  func(n int)

	changes map[string]models.PendingChange
	order   []string
	timer   clock.Timer
	state   State
}

// Option configures a Layer.
type Option func(*Layer)

// WithClock sets the time source.
func WithClock(c clock.Clock) Option { return func(l *Layer) { l.clock = c } }

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option { return func(l *Layer) { l.debounce = d } }

// WithLogger sets the logger.
func WithLogger(lg *slog.Logger) Option { return func(l *Layer) { l.logger = lg } }

// WithMetrics sets the timing tracker.
func WithMetrics(t *metrics.Tracker) Option { return func(l *Layer) { l.metrics = t } }

// OnReady registers a callback run when the debounce window closes with
// changes pending.
func OnReady(fn func(n int)) Option { return func(l *Layer) { l.onReady = fn } }

// New returns a layer for designID and restores any backup left behind.
func New(designID string, store Store, opts ...Option) *Layer {
	l := &Layer{
		designID: designID,
		store:    store,
		clock:    clock.Real{},
		debounce: DefaultDebounce,
		logger:   slog.Default(),
		changes:  make(map[string]models.PendingChange),
		state:    State{SyncStatus: models.SyncIdle},
	}
	for _, opt := range opts {
		opt(l)
	}
	l.restore()
	return l
}

func (l *Layer) key() string { return storage.PendingChangesKey(l.designID) }

func (l *Layer) restore() {
	data, err := l.store.Get(l.key())
	if errors.Is(err, apperr.ErrNotFound) {
		return
	}
	if err != nil {
		l.logger.Warn("pending: restore failed", slog.String("design_id", l.designID), slog.String("error", err.Error()))
		return
	}
	var entries []models.PendingChange
	if err := json.Unmarshal(data, &entries); err != nil {
		l.logger.Warn("pending: backup is corrupt", slog.String("design_id", l.designID), slog.String("error", err.Error()))
		return
	}
	for _, c := range entries {
		l.put(c)
	}
	if len(l.changes) > 0 {
		l.state.IsDirty = true
		l.logger.Info("pending: restored changes", slog.String("design_id", l.designID), slog.Int("count", len(l.changes)))
	}
}

// put must be called with l.mu held (or before the layer is shared).
func (l *Layer) put(c models.PendingChange) {
	if _, ok := l.changes[c.ElementID]; !ok {
		l.order = append(l.order, c.ElementID)
	}
	l.changes[c.ElementID] = c
}

// AddChange records c as the latest change of its element, writes the
// backup and restarts the debounce window.
func (l *Layer) AddChange(c models.PendingChange) {
	l.metrics.Start(metrics.PendingAdd)
	defer l.metrics.End(metrics.PendingAdd)

	l.mu.Lock()
	if c.Timestamp.IsZero() {
		c.Timestamp = l.clock.Now()
	}
	l.put(c)
	l.state.IsDirty = true
	l.state.Ready = false
	l.persist()

	if l.timer != nil {
		l.timer.Stop()
	}
	l.timer = l.clock.AfterFunc(l.debounce, l.settle)
	l.mu.Unlock()
}

// settle runs when the debounce window closes.
func (l *Layer) settle() {
	l.mu.Lock()
	n := len(l.changes)
	l.timer = nil
	l.state.Ready = n > 0
	l.state.IsDirty = n > 0
	cb := l.onReady
	l.mu.Unlock()

	if n > 0 {
		l.logger.Debug("pending: ready to sync", slog.String("design_id", l.designID), slog.Int("count", n))
		if cb != nil {
			cb(n)
		}
	}
}

// persist must be called with l.mu held.
func (l *Layer) persist() {
	data, err := json.Marshal(l.snapshot())
	if err == nil {
		err = l.store.Set(l.key(), data)
	}
	if err != nil {
		l.logger.Warn("pending: backup failed", slog.String("design_id", l.designID), slog.String("error", err.Error()))
	}
}

// snapshot must be called with l.mu held.
func (l *Layer) snapshot() []models.PendingChange {
	out := make([]models.PendingChange, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.changes[id])
	}
	return out
}

// Changes returns the pending changes in first-touched order.
func (l *Layer) Changes() []models.PendingChange {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshot()
}

// Clear empties the layer, drops the backup and marks the sync successful.
func (l *Layer) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reset()
	l.state = State{SyncStatus: models.SyncSuccess, LastSyncedAt: l.clock.Now()}
}

// Discard empties the layer without marking a sync. Used when the document
// is replaced.
func (l *Layer) Discard() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reset()
	l.state = State{SyncStatus: models.SyncIdle, LastSyncedAt: l.state.LastSyncedAt}
}

// reset must be called with l.mu held.
func (l *Layer) reset() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.changes = make(map[string]models.PendingChange)
	l.order = nil
	if err := l.store.Delete(l.key()); err != nil {
		l.logger.Warn("pending: clearing backup failed", slog.String("design_id", l.designID), slog.String("error", err.Error()))
	}
}

// HasChanges reports whether any change is pending.
func (l *Layer) HasChanges() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.changes) > 0
}

// SyncStatus returns the current sync status.
func (l *Layer) SyncStatus() models.SyncStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.SyncStatus
}

// SetSyncStatus updates the sync status. Success also stamps LastSyncedAt.
func (l *Layer) SetSyncStatus(s models.SyncStatus) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.SyncStatus = s
	if s == models.SyncSuccess {
		l.state.LastSyncedAt = l.clock.Now()
	}
}

// State returns a snapshot of the layer.
func (l *Layer) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := l.state
	st.Count = len(l.changes)
	return st
}

// Close stops the debounce timer. The backup is kept.
func (l *Layer) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}
