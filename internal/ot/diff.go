package ot

import "time"

// Diff returns the operations turning oldText into newText: at most one
// delete followed by one insert, both at the end of the common prefix.
// Several disjoint edits collapse into a single replaced span.
func Diff(oldText, newText, userID string) []Operation {
	o, n := []rune(oldText), []rune(newText)

	prefix := 0
	for prefix < len(o) && prefix < len(n) && o[prefix] == n[prefix] {
		prefix++
	}
	oEnd, nEnd := len(o), len(n)
	for oEnd > prefix && nEnd > prefix && o[oEnd-1] == n[nEnd-1] {
		oEnd--
		nEnd--
	}

	now := time.Now()
	var ops []Operation
	if deleted := oEnd - prefix; deleted > 0 {
		ops = append(ops, Operation{Type: Delete, Position: prefix, Count: deleted, UserID: userID, Timestamp: now})
	}
	if nEnd > prefix {
		ops = append(ops, Operation{Type: Insert, Position: prefix, Text: string(n[prefix:nEnd]), UserID: userID, Timestamp: now})
	}
	return ops
}
