// Package autosave periodically backs up the whole document to the local
// store and garbage-collects expired drafts.
package autosave

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/sowilo/internal/apperr"
	"github.com/starford/sowilo/internal/clock"
	"github.com/starford/sowilo/internal/metrics"
	"github.com/starford/sowilo/internal/models"
	"github.com/starford/sowilo/internal/storage"
)

// Defaults of the draft timings.
const (
	DefaultInterval = 5 * time.Second
	DefaultTTL      = 7 * 24 * time.Hour
)

// State is an observable snapshot of the saver.
type State struct {
	HasUnsavedChanges bool      `json:"hasUnsavedChanges"`
	LastSavedAt       time.Time `json:"lastSavedAt,omitempty"`
	LastError         string    `json:"lastError,omitempty"`
}

// Saver writes drafts of one design.
type Saver struct {
	mu       sync.Mutex
	designID string
	store    storage.Store
	clock    clock.Clock
	interval time.Duration
	ttl      time.Duration
	logger   *slog.Logger
	metrics  *metrics.Tracker
	onWarn   func(msg string, err error)

	doc    *models.DesignDocument
	dirty  bool
	state  State
	timer  clock.Timer
	closed bool
}

// Option configures a Saver.
type Option func(*Saver)

// WithClock sets the time source.
func WithClock(c clock.Clock) Option { return func(s *Saver) { s.clock = c } }

// WithInterval overrides DefaultInterval.
func WithInterval(d time.Duration) Option { return func(s *Saver) { s.interval = d } }

// WithTTL overrides DefaultTTL.
func WithTTL(d time.Duration) Option { return func(s *Saver) { s.ttl = d } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *Saver) { s.logger = l } }

// WithMetrics sets the timing tracker.
func WithMetrics(t *metrics.Tracker) Option { return func(s *Saver) { s.metrics = t } }

// OnWarning registers a callback for user-visible storage warnings.
func OnWarning(fn func(msg string, err error)) Option { return func(s *Saver) { s.onWarn = fn } }

// New sweeps expired drafts of every design and starts the save interval.
func New(designID string, store storage.Store, opts ...Option) *Saver {
	s := &Saver{
		designID: designID,
		store:    store,
		clock:    clock.Real{},
		interval: DefaultInterval,
		ttl:      DefaultTTL,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if n, err := SweepExpired(store, s.clock.Now()); err != nil {
		s.logger.Warn("autosave: sweep failed", slog.String("error", err.Error()))
	} else if n > 0 {
		s.logger.Info("autosave: removed expired drafts", slog.Int("count", n))
	}
	s.mu.Lock()
	s.arm()
	s.mu.Unlock()
	return s
}

// arm must be called with s.mu held.
func (s *Saver) arm() {
	if s.closed || s.interval <= 0 {
		return
	}
	s.timer = s.clock.AfterFunc(s.interval, s.tick)
}

func (s *Saver) tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.dirty {
		s.write()
	}
	s.arm()
}

// SaveDraft records doc as the latest document. The write happens on the
// next interval.
func (s *Saver) SaveDraft(doc *models.DesignDocument) {
	if doc == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = doc
	s.dirty = true
	s.state.HasUnsavedChanges = true
}

// Flush writes the latest document now if it has unsaved changes.
func (s *Saver) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}
	return s.write()
}

// write must be called with s.mu held.
func (s *Saver) write() error {
	s.metrics.Start(metrics.DraftSave)
	defer s.metrics.End(metrics.DraftSave)

	now := s.clock.Now()
	draft := models.LocalDraft{
		DesignID:  s.designID,
		Document:  s.doc,
		Timestamp: now,
		ExpiresAt: now.Add(s.ttl),
	}
	data, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("autosave: encode draft: %w", err)
	}
	if err := s.store.Set(storage.DraftKey(s.designID), data); err != nil {
		s.state.LastError = err.Error()
		if errors.Is(err, storage.ErrQuotaExceeded) {
			s.warn("Local storage is full. Older drafts are being removed.", err)
			if _, serr := SweepExpired(s.store, now); serr != nil {
				s.logger.Warn("autosave: sweep failed", slog.String("error", serr.Error()))
			}
		} else {
			s.logger.Error("autosave: save draft", slog.String("design_id", s.designID), slog.String("error", err.Error()))
		}
		return fmt.Errorf("autosave: save draft %s: %w", s.designID, err)
	}
	s.dirty = false
	s.state = State{LastSavedAt: now}
	s.logger.Debug("autosave: draft saved", slog.String("design_id", s.designID), slog.Int("bytes", len(data)))
	return nil
}

func (s *Saver) warn(msg string, err error) {
	s.logger.Warn("autosave: "+msg, slog.String("design_id", s.designID), slog.String("error", err.Error()))
	if s.onWarn != nil {
		s.onWarn(msg, err)
	}
}

// LoadDraft returns the draft of the saver's design.
func (s *Saver) LoadDraft() (models.LocalDraft, error) {
	return LoadDraft(s.store, s.designID, s.clock.Now())
}

// ClearDraft removes the stored draft and forgets unsaved changes.
func (s *Saver) ClearDraft() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = false
	s.doc = nil
	s.state.HasUnsavedChanges = false
	return s.store.Delete(storage.DraftKey(s.designID))
}

// State returns a snapshot of the saver.
func (s *Saver) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close stops the interval and makes a final save if changes are pending.
func (s *Saver) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	if s.dirty {
		return s.write()
	}
	return nil
}

// LoadDraft reads the draft of designID. An expired draft is removed and
// reported as not found.
func LoadDraft(store storage.Store, designID string, now time.Time) (models.LocalDraft, error) {
	key := storage.DraftKey(designID)
	data, err := store.Get(key)
	if err != nil {
		return models.LocalDraft{}, err
	}
	var d models.LocalDraft
	if err := json.Unmarshal(data, &d); err != nil {
		return models.LocalDraft{}, fmt.Errorf("autosave: decode draft %s: %w", designID, err)
	}
	if d.Expired(now) {
		if err := store.Delete(key); err != nil {
			return models.LocalDraft{}, err
		}
		return models.LocalDraft{}, fmt.Errorf("autosave: draft %s expired: %w", designID, apperr.ErrNotFound)
	}
	return d, nil
}

// SweepExpired removes every draft that expired before now, and every
// draft that can no longer be decoded. It returns the number removed.
func SweepExpired(store storage.Store, now time.Time) (int, error) {
	keys, err := store.Keys(storage.DraftPrefix)
	if err != nil {
		return 0, fmt.Errorf("autosave: list drafts: %w", err)
	}
	removed := 0
	for _, key := range keys {
		data, err := store.Get(key)
		if errors.Is(err, apperr.ErrNotFound) {
			continue
		}
		if err != nil {
			return removed, err
		}
		var d struct {
			ExpiresAt time.Time `json:"expiresAt"`
		}
		if json.Unmarshal(data, &d) == nil && !d.ExpiresAt.Before(now) {
			continue
		}
		if err := store.Delete(key); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
