package ot

// Transform rewrites two concurrent operations generated from the same base
// so that applying a after b' and b after a' yields the same text:
//
//	Apply(Apply(base, a), b') == Apply(Apply(base, b), a')
//
// Operations from the same user are returned unchanged. When both inserts
// land on the same position, a is ordered first.
func Transform(a, b Operation) (aPrime, bPrime Operation) {
	if a.UserID != "" && a.UserID == b.UserID {
		return a, b
	}
	switch {
	case a.Type == Insert && b.Type == Insert:
		return transformInsertInsert(a, b)
	case a.Type == Delete && b.Type == Delete:
		return transformDeleteDelete(a, b)
	case a.Type == Insert && b.Type == Delete:
		return transformInsertDelete(a, b)
	case a.Type == Delete && b.Type == Insert:
		bp, ap := transformInsertDelete(b, a)
		return ap, bp
	}
	return a, b
}

func transformInsertInsert(a, b Operation) (Operation, Operation) {
	if a.Position <= b.Position {
		b.Position += a.textLen()
		return a, b
	}
	a.Position += b.textLen()
	return a, b
}

func transformDeleteDelete(a, b Operation) (Operation, Operation) {
	aEnd := a.Position + a.Count
	bEnd := b.Position + b.Count

	switch {
	case aEnd <= b.Position:
		b.Position -= a.Count
		return a, b
	case bEnd <= a.Position:
		a.Position -= b.Count
		return a, b
	}

	overlap := min(aEnd, bEnd) - max(a.Position, b.Position)
	if a.Position <= b.Position {
		a.Count = max(0, a.Count-overlap)
		b.Count = max(0, b.Count-overlap)
		b.Position = a.Position
		return a, b
	}
	b.Count = max(0, b.Count-overlap)
	a.Count = max(0, a.Count-overlap)
	a.Position = b.Position
	return a, b
}

// transformInsertDelete handles ins against a concurrent del. An insert
// inside the deleted range is swallowed: the delete grows to cover it and
// the insert collapses to an empty insert at the delete start.
func transformInsertDelete(ins, del Operation) (Operation, Operation) {
	delEnd := del.Position + del.Count
	switch {
	case ins.Position <= del.Position:
		del.Position += ins.textLen()
	case ins.Position >= delEnd:
		ins.Position -= del.Count
	default:
		del.Count += ins.textLen()
		ins.Position = del.Position
		ins.Text = ""
	}
	return ins, del
}
