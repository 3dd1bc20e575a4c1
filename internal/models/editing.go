package models

import (
	"time"

	"github.com/starford/sowilo/internal/ot"
)

// ChangeType classifies a pending change. ChangeDocument covers structural
// edits such as created, deleted or imported elements and font imports.
type ChangeType string

const (
	ChangeText      ChangeType = "text"
	ChangeStyle     ChangeType = "style"
	ChangeAttribute ChangeType = "attribute"
	ChangePosition  ChangeType = "position"
	ChangeDocument  ChangeType = "document"
)

// PendingChange is the latest unsynced change of one element.
type PendingChange struct {
	ElementID       string         `json:"elementId"`
	Content         string         `json:"content"`
	PreviousContent string         `json:"previousContent"`
	Timestamp       time.Time      `json:"timestamp"`
	Type            ChangeType     `json:"type"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// Stamp returns the change time.
func (c PendingChange) Stamp() time.Time { return c.Timestamp }

// SyncStatus is the state of the pending changes layer.
type SyncStatus string

const (
	SyncIdle    SyncStatus = "idle"
	SyncSyncing SyncStatus = "syncing"
	SyncError   SyncStatus = "error"
	SyncSuccess SyncStatus = "success"
)

// Action is the kind of a history snapshot.
type Action string

const (
	ActionUpdate Action = "update"
	ActionCreate Action = "create"
	ActionDelete Action = "delete"
	ActionBatch  Action = "batch"
)

// HistorySnapshot records one undoable edit. Batch snapshots carry their
// parts in Batch and leave Before/After empty.
type HistorySnapshot struct {
	ID          string            `json:"id"`
	Timestamp   time.Time         `json:"timestamp"`
	ElementID   string            `json:"elementId"`
	Before      Patch             `json:"before"`
	After       Patch             `json:"after"`
	Action      Action            `json:"action"`
	Description string            `json:"description,omitempty"`
	Batch       []HistorySnapshot `json:"batch,omitempty"`
}

// OpType is the kind of a queued operation.
type OpType string

const (
	OpSave   OpType = "save"
	OpDelete OpType = "delete"
	OpBatch  OpType = "batch"
)

// OpStatus is the lifecycle state of a queued operation.
type OpStatus string

const (
	OpPending    OpStatus = "pending"
	OpProcessing OpStatus = "processing"
	OpFailed     OpStatus = "failed"
	OpCompleted  OpStatus = "completed"
)

// QueuedOperation is one unit of work in the editing queue.
type QueuedOperation struct {
	ID            string        `json:"id"`
	Type          OpType        `json:"type"`
	Payload       PendingChange `json:"payload"`
	RetryCount    int           `json:"retryCount"`
	MaxRetries    int           `json:"maxRetries"`
	CreatedAt     time.Time     `json:"createdAt"`
	LastAttemptAt time.Time     `json:"lastAttemptAt,omitempty"`
	Status        OpStatus      `json:"status"`
}

// LocalDraft is a full-document backup.
type LocalDraft struct {
	DesignID  string          `json:"designId"`
	Document  *DesignDocument `json:"document"`
	Timestamp time.Time       `json:"timestamp"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

// Expired reports whether the draft is past its expiry at now.
func (d LocalDraft) Expired(now time.Time) bool {
	return d.ExpiresAt.Before(now)
}

// Resolution names the side that won a conflict.
type Resolution string

const (
	ResolvedLocal  Resolution = "local"
	ResolvedRemote Resolution = "remote"
	ResolvedMerged Resolution = "merged"
)

// ConflictInfo describes a local/remote conflict on one element.
// Operations turn the local text into the remote one when the remote wins.
type ConflictInfo struct {
	ElementID    string         `json:"elementId"`
	LocalChange  PendingChange  `json:"localChange"`
	RemoteChange PendingChange  `json:"remoteChange"`
	ResolvedAt   time.Time      `json:"resolvedAt"`
	Resolution   Resolution     `json:"resolution"`
	Operations   []ot.Operation `json:"operations,omitempty"`
}
