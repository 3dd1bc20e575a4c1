// Package history keeps bounded undo and redo stacks of element snapshots.
package history

import (
	"sync"

	"github.com/google/uuid"

	"github.com/starford/sowilo/internal/clock"
	"github.com/starford/sowilo/internal/models"
)

// DefaultMaxDepth bounds each stack.
const DefaultMaxDepth = 50

// ApplyFunc applies a snapshot to the document. undo is true when the
// snapshot's Before side must be restored.
type ApplyFunc func(s models.HistorySnapshot, undo bool)

// History is a double stack of snapshots. The apply callback runs without
// the history lock held.
type History struct {
	mu     sync.Mutex
	past   []models.HistorySnapshot
	future []models.HistorySnapshot
	max    int
	apply  ApplyFunc
	clock  clock.Clock
}

// Option configures a History.
type Option func(*History)

// WithMaxDepth overrides DefaultMaxDepth.
func WithMaxDepth(n int) Option {
	return func(h *History) {
		if n > 0 {
			h.max = n
		}
	}
}

// WithClock sets the clock used to stamp snapshots.
func WithClock(c clock.Clock) Option {
	return func(h *History) { h.clock = c }
}

// New returns an empty history.
func New(apply ApplyFunc, opts ...Option) *History {
	h := &History{max: DefaultMaxDepth, apply: apply, clock: clock.Real{}}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Push records a snapshot and drops the redo branch. Missing id and
// timestamp are filled in.
func (h *History) Push(s models.HistorySnapshot) models.HistorySnapshot {
	if s.ID == "" {
		s.ID = uuid.Must(uuid.NewV7()).String()
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = h.clock.Now()
	}
	h.mu.Lock()
	h.past = append(h.past, s)
	if len(h.past) > h.max {
		h.past = h.past[len(h.past)-h.max:]
	}
	h.future = nil
	h.mu.Unlock()
	return s
}

// Undo reverts the most recent snapshot. It reports false when there is
// nothing to undo.
func (h *History) Undo() bool {
	h.mu.Lock()
	if len(h.past) == 0 {
		h.mu.Unlock()
		return false
	}
	s := h.past[len(h.past)-1]
	h.past = h.past[:len(h.past)-1]
	h.future = append([]models.HistorySnapshot{s}, h.future...)
	if len(h.future) > h.max {
		h.future = h.future[:h.max]
	}
	h.mu.Unlock()

	h.apply(s, true)
	return true
}

// Redo reapplies the most recently undone snapshot.
func (h *History) Redo() bool {
	h.mu.Lock()
	if len(h.future) == 0 {
		h.mu.Unlock()
		return false
	}
	s := h.future[0]
	h.future = h.future[1:]
	h.past = append(h.past, s)
	h.mu.Unlock()

	h.apply(s, false)
	return true
}

// Clear empties both stacks.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.past = nil
	h.future = nil
}

// CanUndo reports whether Undo would do anything.
func (h *History) CanUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.past) > 0
}

// CanRedo reports whether Redo would do anything.
func (h *History) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.future) > 0
}

// Depth returns the sizes of the undo and redo stacks.
func (h *History) Depth() (past, future int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.past), len(h.future)
}

// Past returns a copy of the undo stack, oldest first.
func (h *History) Past() []models.HistorySnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]models.HistorySnapshot(nil), h.past...)
}

// Future returns a copy of the redo stack, next redo first.
func (h *History) Future() []models.HistorySnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]models.HistorySnapshot(nil), h.future...)
}
