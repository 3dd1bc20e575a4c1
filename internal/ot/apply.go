package ot

import "log/slog"

// Apply returns text with op applied. Out-of-range operations are logged
// and leave the text unchanged.
func Apply(text string, op Operation) string {
	switch op.Type {
	case Insert:
		if op.Text == "" {
			return text
		}
		r := []rune(text)
		if op.Position < 0 || op.Position > len(r) {
			slog.Warn("ot: insert position out of bounds",
				slog.Int("position", op.Position), slog.Int("length", len(r)))
			return text
		}
		return string(r[:op.Position]) + op.Text + string(r[op.Position:])

	case Delete:
		if op.Count <= 0 {
			return text
		}
		r := []rune(text)
		if op.Position < 0 || op.Position >= len(r) {
			slog.Warn("ot: delete position out of bounds",
				slog.Int("position", op.Position), slog.Int("length", len(r)))
			return text
		}
		end := min(op.Position+op.Count, len(r))
		return string(r[:op.Position]) + string(r[end:])
	}
	return text
}

// ApplyAll applies ops in order.
func ApplyAll(text string, ops []Operation) string {
	for _, op := range ops {
		text = Apply(text, op)
	}
	return text
}

// Compose shifts each operation by the net length change of the ones before
// it, producing positions as if the sequence were applied in order.
func Compose(ops []Operation) []Operation {
	if len(ops) <= 1 {
		return ops
	}
	out := make([]Operation, 0, len(ops))
	offset := 0
	for _, op := range ops {
		switch op.Type {
		case Insert:
			op.Position += offset
			offset += op.textLen()
		case Delete:
			op.Position += offset
			offset -= op.Count
		}
		out = append(out, op)
	}
	return out
}
