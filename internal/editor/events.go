package editor

import (
	"time"

	"github.com/starford/sowilo/internal/autosave"
	"github.com/starford/sowilo/internal/editing"
	"github.com/starford/sowilo/internal/models"
	"github.com/starford/sowilo/internal/pending"
	"github.com/starford/sowilo/internal/queue"
)

// EventType names an editor event.
type EventType string

const (
	EventDocumentChanged EventType = "document.changed"
	EventSyncStatus      EventType = "sync.status"
	EventNotification    EventType = "notification"
)

// Level is the severity of a notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Event is published to the notifier after the editor lock is released.
type Event struct {
	Type     EventType `json:"type"`
	DesignID string    `json:"designId"`
	Level    Level     `json:"level,omitempty"`
	Message  string    `json:"message,omitempty"`
	Sync     *Sync     `json:"sync,omitempty"`
}

// Notifier receives editor events.
type Notifier interface {
	Publish(ev Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ev Event)

func (f NotifierFunc) Publish(ev Event) { f(ev) }

// Indicator is the coarse save state shown to the user.
type Indicator string

const (
	IndicatorSaving Indicator = "saving"
	IndicatorIdle   Indicator = "idle"
	IndicatorSaved  Indicator = "saved"
)

// Sync describes persistence progress.
type Sync struct {
	Indicator   Indicator         `json:"indicator"`
	Status      models.SyncStatus `json:"status"`
	LastSavedAt *time.Time        `json:"lastSavedAt,omitempty"`
}

// HistoryState is the depth of both history stacks.
type HistoryState struct {
	Past    int  `json:"past"`
	Future  int  `json:"future"`
	CanUndo bool `json:"canUndo"`
	CanRedo bool `json:"canRedo"`
}

// Status is a snapshot of every layer.
type Status struct {
	DesignID    string           `json:"designId"`
	HasDocument bool             `json:"hasDocument"`
	Sync        Sync             `json:"sync"`
	Pending     pending.State    `json:"pending"`
	Queue       queue.State      `json:"queue"`
	History     HistoryState     `json:"history"`
	Autosave    autosave.State   `json:"autosave"`
	Editing     editing.Snapshot `json:"editing"`
	Selection   []string         `json:"selection"`
	Hovered     string           `json:"hovered,omitempty"`
	Zoom        float64          `json:"zoom"`
	Pan         Point            `json:"pan"`
}

func (e *Editor) notice(level Level, msg string) Event {
	return Event{Type: EventNotification, DesignID: e.designID, Level: level, Message: msg}
}

func (e *Editor) syncEvent() Event {
	s := e.sync()
	return Event{Type: EventSyncStatus, DesignID: e.designID, Sync: &s}
}

func (e *Editor) sync() Sync {
	s := Sync{Indicator: IndicatorSaved, Status: e.pending.SyncStatus(), LastSavedAt: e.lastSavedAt.Load()}
	switch {
	case e.queue.Processing():
		s.Indicator = IndicatorSaving
	case e.pending.HasChanges():
		s.Indicator = IndicatorIdle
	}
	return s
}

// Status returns a snapshot of the editor and its layers.
func (e *Editor) Status() Status {
	e.mu.Lock()
	st := Status{
		DesignID:    e.designID,
		HasDocument: e.doc != nil,
		Selection:   append([]string{}, e.selected...),
		Hovered:     e.hovered,
		Zoom:        e.zoom,
		Pan:         e.pan,
	}
	e.mu.Unlock()

	past, future := e.history.Depth()
	st.History = HistoryState{Past: past, Future: future, CanUndo: past > 0, CanRedo: future > 0}
	st.Sync = e.sync()
	st.Pending = e.pending.State()
	st.Queue = e.queue.State()
	st.Autosave = e.drafts.State()
	st.Editing = e.editing.Snapshot()
	return st
}
