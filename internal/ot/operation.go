// Package ot implements operational transformation over plain text.
// Positions and counts are measured in runes.
package ot

import "time"

// Kind is the type of a text operation.
type Kind string

const (
	Insert Kind = "insert"
	Delete Kind = "delete"
	Retain Kind = "retain"
)

// Operation is a single text edit.
type Operation struct {
	Type      Kind      `json:"type"`
	Position  int       `json:"position"`
	Text      string    `json:"text,omitempty"`
	Count     int       `json:"count,omitempty"`
	UserID    string    `json:"userId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Stamp returns the operation time.
func (o Operation) Stamp() time.Time { return o.Timestamp }

// NewInsert returns an insert of text at pos.
func NewInsert(pos int, text, userID string) Operation {
	return Operation{Type: Insert, Position: pos, Text: text, UserID: userID, Timestamp: time.Now()}
}

// NewDelete returns a delete of count runes starting at pos.
func NewDelete(pos, count int, userID string) Operation {
	return Operation{Type: Delete, Position: pos, Count: count, UserID: userID, Timestamp: time.Now()}
}

// NewRetain returns a retain, which only tracks position.
func NewRetain(pos, count int) Operation {
	return Operation{Type: Retain, Position: pos, Count: count, Timestamp: time.Now()}
}

func (o Operation) textLen() int {
	return len([]rune(o.Text))
}
