package ot

import "time"

// Stamped is anything carrying a timestamp.
type Stamped interface {
	Stamp() time.Time
}

// ResolveLWW picks the later of local and remote. Ties go to local.
func ResolveLWW[T Stamped](local, remote T) (winner T, isLocal bool) {
	if !local.Stamp().Before(remote.Stamp()) {
		return local, true
	}
	return remote, false
}
