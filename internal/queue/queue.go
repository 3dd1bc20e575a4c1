// Package queue batches save operations behind a debounce window and
// retries failed batches with exponential backoff.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/sowilo/internal/clock"
	"github.com/starford/sowilo/internal/metrics"
	"github.com/starford/sowilo/internal/models"
)

// Defaults of the queue timings.
const (
	DefaultDebounce   = 1500 * time.Millisecond
	DefaultMaxRetries = 5
	DefaultBaseDelay  = time.Second
	DefaultMaxDelay   = 30 * time.Second
)

// ErrSaveFailed wraps the error returned by the save callback.
var ErrSaveFailed = errors.New("queue: save failed")

// SaveFunc persists one batch of changes. It must be idempotent: a batch
// may be retried after a partial failure.
type SaveFunc func(ctx context.Context, changes []models.PendingChange) error

// State is an observable snapshot of the queue.
type State struct {
	Queue           []models.QueuedOperation `json:"queue"`
	IsProcessing    bool                     `json:"isProcessing"`
	LastProcessedAt time.Time                `json:"lastProcessedAt,omitempty"`
	ErrorCount      int                      `json:"errorCount"`
}

// Queue holds queued operations until they are saved.
type Queue struct {
	mu              sync.Mutex
	ops             []*models.QueuedOperation
	processing      bool
	rerun           bool
	lastProcessedAt time.Time
	errorCount      int
	debounceTimer   clock.Timer
	retryTimers     map[int]clock.Timer
	retrySeq        int
	closed          bool

	save       SaveFunc
	ctx        context.Context
	clock      clock.Clock
	debounce   time.Duration
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	logger     *slog.Logger
	metrics    *metrics.Tracker
	onError    func(error)
	onFailed   func(models.QueuedOperation)
}

// Option configures a Queue.
type Option func(*Queue)

// WithContext sets the context used by timer-driven processing.
func WithContext(ctx context.Context) Option { return func(q *Queue) { q.ctx = ctx } }

// WithClock sets the time source.
func WithClock(c clock.Clock) Option { return func(q *Queue) { q.clock = c } }

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option { return func(q *Queue) { q.debounce = d } }

// WithMaxRetries overrides DefaultMaxRetries.
func WithMaxRetries(n int) Option { return func(q *Queue) { q.maxRetries = n } }

// WithBackoff overrides the base and cap of the retry delay.
func WithBackoff(base, maxDelay time.Duration) Option {
	return func(q *Queue) {
		q.baseDelay = base
		q.maxDelay = maxDelay
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(q *Queue) { q.logger = l } }

// WithMetrics sets the timing tracker.
func WithMetrics(t *metrics.Tracker) Option { return func(q *Queue) { q.metrics = t } }

// OnError is called after every failed batch.
func OnError(fn func(error)) Option { return func(q *Queue) { q.onError = fn } }

// OnFailed is called for every operation that ran out of retries.
func OnFailed(fn func(models.QueuedOperation)) Option { return func(q *Queue) { q.onFailed = fn } }

// New returns an empty queue that saves through save.
func New(save SaveFunc, opts ...Option) *Queue {
	q := &Queue{
		save:        save,
		ctx:         context.Background(),
		clock:       clock.Real{},
		debounce:    DefaultDebounce,
		maxRetries:  DefaultMaxRetries,
		baseDelay:   DefaultBaseDelay,
		maxDelay:    DefaultMaxDelay,
		logger:      slog.Default(),
		retryTimers: make(map[int]clock.Timer),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Backoff returns min(base * 2^retry, maxDelay).
func Backoff(retry int, base, maxDelay time.Duration) time.Duration {
	d := base
	for i := 0; i < retry; i++ {
		d *= 2
		if d >= maxDelay {
			return maxDelay
		}
	}
	return min(d, maxDelay)
}

// Enqueue appends op as pending and restarts the debounce window. It
// returns the operation id.
func (q *Queue) Enqueue(op models.QueuedOperation) string {
	if op.ID == "" {
		op.ID = "op_" + uuid.Must(uuid.NewV7()).String()
	}
	if op.Type == "" {
		op.Type = models.OpSave
	}
	if op.MaxRetries == 0 {
		op.MaxRetries = q.maxRetries
	}
	op.CreatedAt = q.clock.Now()
	op.Status = models.OpPending

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return op.ID
	}
	q.ops = append(q.ops, &op)
	q.armDebounce()
	q.logger.Debug("queue: enqueued", slog.String("id", op.ID), slog.String("type", string(op.Type)))
	return op.ID
}

// armDebounce must be called with q.mu held.
func (q *Queue) armDebounce() {
	if q.debounceTimer != nil {
		q.debounceTimer.Stop()
	}
	q.debounceTimer = q.clock.AfterFunc(q.debounce, func() {
		if err := q.Process(q.ctx); err != nil {
			q.logger.Debug("queue: debounced flush failed", slog.String("error", err.Error()))
		}
	})
}

// Process saves every pending save operation as one batch. A call made
// while another batch is in flight returns immediately; the in-flight batch
// re-reads nothing, and operations enqueued meanwhile are picked up by a
// debounced run once it resolves.
func (q *Queue) Process(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	if q.processing {
		q.rerun = true
		q.mu.Unlock()
		return nil
	}
	var batch []*models.QueuedOperation
	now := q.clock.Now()
	for _, op := range q.ops {
		if op.Status == models.OpPending && op.Type == models.OpSave {
			op.Status = models.OpProcessing
			op.LastAttemptAt = now
			batch = append(batch, op)
		}
	}
	if len(batch) == 0 {
		q.mu.Unlock()
		return nil
	}
	q.processing = true
	changes := make([]models.PendingChange, len(batch))
	for i, op := range batch {
		changes[i] = op.Payload
	}
	q.mu.Unlock()

	q.metrics.Start(metrics.QueueProcessing)
	err := q.save(ctx, changes)
	q.metrics.End(metrics.QueueProcessing)

	q.mu.Lock()
	if err == nil {
		q.evictProcessing(batch)
		q.lastProcessedAt = q.clock.Now()
		q.errorCount = 0
		q.processing = false
		q.rearm()
		q.mu.Unlock()
		q.logger.Debug("queue: batch saved", slog.Int("count", len(changes)))
		return nil
	}

	q.errorCount++
	var failed []models.QueuedOperation
	retry := -1
	for _, op := range batch {
		if op.Status != models.OpProcessing {
			continue
		}
		op.RetryCount++
		if op.RetryCount >= op.MaxRetries {
			op.Status = models.OpFailed
			failed = append(failed, *op)
			continue
		}
		op.Status = models.OpPending
		retry = max(retry, op.RetryCount-1)
	}
	if retry >= 0 && !q.closed {
		q.scheduleRetry(Backoff(retry, q.baseDelay, q.maxDelay))
		q.rerun = false
	}
	q.processing = false
	q.rearm()
	onError, onFailed := q.onError, q.onFailed
	q.mu.Unlock()

	q.logger.Warn("queue: batch failed", slog.Int("count", len(changes)), slog.String("error", err.Error()))
	if onError != nil {
		onError(err)
	}
	for _, op := range failed {
		q.logger.Error("queue: operation failed after retries",
			slog.String("id", op.ID), slog.String("element_id", op.Payload.ElementID), slog.Int("retries", op.RetryCount))
		if onFailed != nil {
			onFailed(op)
		}
	}
	return fmt.Errorf("%w: %w", ErrSaveFailed, err)
}

// rearm must be called with q.mu held. It starts a debounced run when a
// call was skipped during the batch and save operations are still pending.
func (q *Queue) rearm() {
	if !q.rerun || q.closed {
		return
	}
	q.rerun = false
	for _, op := range q.ops {
		if op.Status == models.OpPending && op.Type == models.OpSave {
			q.armDebounce()
			return
		}
	}
}

// evictProcessing must be called with q.mu held. Operations dropped by
// Clear while the batch was in flight are already gone.
func (q *Queue) evictProcessing(batch []*models.QueuedOperation) {
	done := make(map[*models.QueuedOperation]bool, len(batch))
	for _, op := range batch {
		op.Status = models.OpCompleted
		done[op] = true
	}
	kept := q.ops[:0]
	for _, op := range q.ops {
		if !done[op] {
			kept = append(kept, op)
		}
	}
	q.ops = kept
}

// scheduleRetry must be called with q.mu held.
func (q *Queue) scheduleRetry(delay time.Duration) {
	id := q.retrySeq
	q.retrySeq++
	q.logger.Info("queue: scheduling retry", slog.Duration("delay", delay))
	q.retryTimers[id] = q.clock.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.retryTimers, id)
		q.mu.Unlock()
		if err := q.Process(q.ctx); err != nil {
			q.logger.Debug("queue: retry failed", slog.String("error", err.Error()))
		}
	})
}

// Flush cancels the debounce window and processes immediately.
func (q *Queue) Flush(ctx context.Context) error {
	q.mu.Lock()
	if q.debounceTimer != nil {
		q.debounceTimer.Stop()
		q.debounceTimer = nil
	}
	q.mu.Unlock()
	return q.Process(ctx)
}

// Clear drops every operation without saving and cancels all timers.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stopTimers()
	q.ops = nil
	q.errorCount = 0
	q.rerun = false
}

// stopTimers must be called with q.mu held.
func (q *Queue) stopTimers() {
	if q.debounceTimer != nil {
		q.debounceTimer.Stop()
		q.debounceTimer = nil
	}
	for id, t := range q.retryTimers {
		t.Stop()
		delete(q.retryTimers, id)
	}
}

// Len returns the number of queued operations, failed ones included.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// Processing reports whether a batch is in flight.
func (q *Queue) Processing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.processing
}

// State returns a snapshot of the queue.
func (q *Queue) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	ops := make([]models.QueuedOperation, len(q.ops))
	for i, op := range q.ops {
		ops[i] = *op
	}
	return State{
		Queue:           ops,
		IsProcessing:    q.processing,
		LastProcessedAt: q.lastProcessedAt,
		ErrorCount:      q.errorCount,
	}
}

// Close cancels every timer. Later enqueues are ignored.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stopTimers()
	q.closed = true
}
