// Package metrics times editing operations and warns when latency budgets
// are exceeded. A Tracker is created by the owner of an editor and passed
// to every layer that reports timings.
package metrics

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/starford/sowilo/internal/clock"
)

// MaxEntriesPerMetric bounds the samples kept for one metric.
const MaxEntriesPerMetric = 100

// Well-known metric names.
const (
	KeystrokeToState   = "keystroke_to_state"
	KeystrokeToDisplay = "keystroke_to_display"
	KeystrokeToPersist = "keystroke_to_persisted"
	IncrementalUpdate  = "incremental_update"
	BatchUpdate        = "batch_incremental_update"
	PendingAdd         = "pending_changes_add"
	QueueProcessing    = "queue_processing"
	SaveToDB           = "save_to_db"
	DraftSave          = "draft_save"
)

// Thresholds are the latency budgets checked when a timing ends.
type Thresholds struct {
	KeystrokeToDisplay   time.Duration `json:"keystrokeToDisplay"`
	KeystrokeToPersisted time.Duration `json:"keystrokeToPersisted"`
	WarningMultiplier    float64       `json:"warningMultiplier"`
}

// DefaultThresholds returns 100ms display and 500ms persistence budgets.
func DefaultThresholds() Thresholds {
	return Thresholds{
		KeystrokeToDisplay:   100 * time.Millisecond,
		KeystrokeToPersisted: 500 * time.Millisecond,
		WarningMultiplier:    1.5,
	}
}

// Summary aggregates the completed samples of one metric.
type Summary struct {
	Average time.Duration `json:"average"`
	Min     time.Duration `json:"min"`
	Max     time.Duration `json:"max"`
	Count   int           `json:"count"`
}

// Tracker records timings.
type Tracker struct {
	mu         sync.Mutex
	started    map[string]time.Time
	samples    map[string][]time.Duration
	thresholds Thresholds
	clock      clock.Clock
	logger     *slog.Logger
	disabled   bool
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock sets the time source.
func WithClock(c clock.Clock) Option { return func(t *Tracker) { t.clock = c } }

// WithLogger sets the logger used for threshold warnings.
func WithLogger(l *slog.Logger) Option { return func(t *Tracker) { t.logger = l } }

// WithThresholds overrides DefaultThresholds.
func WithThresholds(th Thresholds) Option { return func(t *Tracker) { t.thresholds = th } }

// New returns an enabled tracker.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		started:    make(map[string]time.Time),
		samples:    make(map[string][]time.Duration),
		thresholds: DefaultThresholds(),
		clock:      clock.Real{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetEnabled turns recording on or off.
func (t *Tracker) SetEnabled(on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disabled = !on
}

// Start begins timing name, replacing an unfinished timing of the same name.
func (t *Tracker) Start(name string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.disabled {
		return
	}
	t.started[name] = t.clock.Now()
}

// End finishes the timing of name and records it. ok is false when no
// timing was running.
func (t *Tracker) End(name string) (time.Duration, bool) {
	if t == nil {
		return 0, false
	}
	t.mu.Lock()
	start, running := t.started[name]
	if !running || t.disabled {
		t.mu.Unlock()
		return 0, false
	}
	delete(t.started, name)
	d := t.clock.Now().Sub(start)
	t.record(name, d)
	t.mu.Unlock()

	t.check(name, d)
	return d, true
}

// Record adds an externally measured sample.
func (t *Tracker) Record(name string, d time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	if t.disabled {
		t.mu.Unlock()
		return
	}
	t.record(name, d)
	t.mu.Unlock()
	t.check(name, d)
}

// Measure times fn under name.
func (t *Tracker) Measure(name string, fn func()) time.Duration {
	t.Start(name)
	fn()
	d, _ := t.End(name)
	return d
}

// record must be called with t.mu held.
func (t *Tracker) record(name string, d time.Duration) {
	s := append(t.samples[name], d)
	if len(s) > MaxEntriesPerMetric {
		s = s[len(s)-MaxEntriesPerMetric:]
	}
	t.samples[name] = s
}

func (t *Tracker) check(name string, d time.Duration) {
	var budget time.Duration
	switch {
	case strings.Contains(name, "keystroke") && strings.Contains(name, "display"):
		budget = t.thresholds.KeystrokeToDisplay
	case strings.Contains(name, "keystroke") && strings.Contains(name, "persist"):
		budget = t.thresholds.KeystrokeToPersisted
	default:
		return
	}
	limit := time.Duration(float64(budget) * t.thresholds.WarningMultiplier)
	switch {
	case d > limit:
		t.logger.Warn("metric exceeded threshold",
			slog.String("metric", name), slog.Duration("duration", d), slog.Duration("threshold", budget))
	case d > budget:
		t.logger.Info("metric approaching threshold",
			slog.String("metric", name), slog.Duration("duration", d), slog.Duration("threshold", budget))
	}
}

// Summary returns the aggregate of name.
func (t *Tracker) Summary(name string) (Summary, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return summarize(t.samples[name])
}

// Summaries returns the aggregate of every metric with samples.
func (t *Tracker) Summaries() map[string]Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]Summary, len(t.samples))
	for name, s := range t.samples {
		if sum, ok := summarize(s); ok {
			out[name] = sum
		}
	}
	return out
}

func summarize(samples []time.Duration) (Summary, bool) {
	if len(samples) == 0 {
		return Summary{}, false
	}
	sum := Summary{Min: samples[0], Max: samples[0], Count: len(samples)}
	var total time.Duration
	for _, d := range samples {
		total += d
		sum.Min = min(sum.Min, d)
		sum.Max = max(sum.Max, d)
	}
	sum.Average = total / time.Duration(len(samples))
	return sum, true
}

// Report renders the summaries as one line per metric, sorted by name.
func (t *Tracker) Report() string {
	summaries := t.Summaries()
	names := make([]string, 0, len(summaries))
	for name := range summaries {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		s := summaries[name]
		fmt.Fprintf(&b, "%s: avg=%s min=%s max=%s n=%d\n", name, s.Average, s.Min, s.Max, s.Count)
	}
	return b.String()
}

type export struct {
	Summary    map[string]Summary `json:"summary"`
	Thresholds Thresholds         `json:"thresholds"`
	Timestamp  time.Time          `json:"timestamp"`
}

// Export returns the summaries and thresholds as indented JSON.
func (t *Tracker) Export() ([]byte, error) {
	data, err := json.MarshalIndent(export{
		Summary:    t.Summaries(),
		Thresholds: t.thresholds,
		Timestamp:  t.clock.Now(),
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("metrics: export: %w", err)
	}
	return data, nil
}

// Clear drops every sample and running timing.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.started = make(map[string]time.Time)
	t.samples = make(map[string][]time.Duration)
}
