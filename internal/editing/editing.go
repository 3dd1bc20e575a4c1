// Package editing holds the content of the element being text-edited
// outside the document tree.
//
// At most one element is edited at a time. Starting an edit on another
// element commits the active one first and hands the commit back to the
// caller (auto-commit-and-switch).
package editing

import (
	"sync"
	"unicode/utf8"
)

// Commit is the result of finishing an edit.
type Commit struct {
	ElementID string
	Content   string
	// Initial is the content captured when the edit started.
	Initial string
}

// Changed reports whether the content differs from the captured snapshot.
func (c Commit) Changed() bool { return c.Content != c.Initial }

// Snapshot describes the active edit.
type Snapshot struct {
	Active         bool   `json:"active"`
	ElementID      string `json:"elementId,omitempty"`
	Content        string `json:"content,omitempty"`
	Initial        string `json:"initial,omitempty"`
	CursorPosition int    `json:"cursorPosition"`
}

// Layer is the editing state machine: idle or editing one element.
type Layer struct {
	mu      sync.Mutex
	active  bool
	id      string
	content string
	initial string
	cursor  int
}

// New returns an idle layer.
func New() *Layer { return &Layer{} }

// Start enters editing for id. If another element is being edited, its
// content is committed and returned with switched set. Restarting on the
// element already being edited keeps the in-progress content.
func (l *Layer) Start(id, initial string) (prev Commit, switched bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active && l.id == id {
		return Commit{}, false
	}
	if l.active {
		prev, switched = l.commit(), true
	}
	l.active = true
	l.id = id
	l.content = initial
	l.initial = initial
	l.cursor = utf8.RuneCountInString(initial)
	return prev, switched
}

// UpdateContent replaces the in-progress content. It is ignored when idle.
func (l *Layer) UpdateContent(content string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.active {
		return false
	}
	l.content = content
	if n := utf8.RuneCountInString(content); l.cursor > n {
		l.cursor = n
	}
	return true
}

// SetCursor moves the cursor, clamped to the content length in runes.
func (l *Layer) SetCursor(pos int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.active {
		return
	}
	l.cursor = max(0, min(pos, utf8.RuneCountInString(l.content)))
}

// Content returns the in-progress content of the active edit.
func (l *Layer) Content() (id, content string, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.id, l.content, l.active
}

// Active returns the id of the element being edited.
func (l *Layer) Active() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.id, l.active
}

// Stop leaves editing and returns the final content. ok is false when the
// layer was idle.
func (l *Layer) Stop() (c Commit, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.active {
		return Commit{}, false
	}
	return l.commit(), true
}

// Discard leaves editing and drops the in-progress content.
func (l *Layer) Discard() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reset()
}

// Snapshot returns the current state.
func (l *Layer) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Snapshot{
		Active:         l.active,
		ElementID:      l.id,
		Content:        l.content,
		Initial:        l.initial,
		CursorPosition: l.cursor,
	}
}

// commit must be called with l.mu held.
func (l *Layer) commit() Commit {
	c := Commit{ElementID: l.id, Content: l.content, Initial: l.initial}
	l.reset()
	return c
}

func (l *Layer) reset() {
	l.active = false
	l.id = ""
	l.content = ""
	l.initial = ""
	l.cursor = 0
}
