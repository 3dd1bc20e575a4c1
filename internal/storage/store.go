// Package storage provides the durable local key-value backup used for
// drafts and pending-change snapshots.
package storage

import "errors"

// Key prefixes of the values kept by the editing layers.
const (
	DraftPrefix          = "draft_"
	PendingChangesPrefix = "pending_changes_"
)

// ErrQuotaExceeded is returned when a write would exceed the store capacity.
var ErrQuotaExceeded = errors.New("storage: quota exceeded")

// Store is a string-keyed byte store.
type Store interface {
	// Get returns the value of key, or an error wrapping apperr.ErrNotFound.
	Get(key string) ([]byte, error)
	// Set replaces the value of key.
	Set(key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error
	// Keys returns every key with the given prefix, sorted.
	Keys(prefix string) ([]string, error)
}

// DraftKey returns the key of a design's auto-saved draft.
func DraftKey(designID string) string { return DraftPrefix + designID }

// PendingChangesKey returns the key of a design's pending-change backup.
func PendingChangesKey(designID string) string { return PendingChangesPrefix + designID }
