package kstream

import "fmt"

// EndOfStreamError is raised by every stream read that would run past the
// end of the backing byte region. Pos is the position at which the read
// was attempted; Requested is the number of bytes/bits asked for, or -1
// when not applicable (e.g. a terminator that was never found).
type EndOfStreamError struct {
	Pos       int64
	Requested int64
}

func (e *EndOfStreamError) Error() string {
	if e.Requested >= 0 {
		return fmt.Sprintf("kstream: end of stream at position %d (requested %d bytes)", e.Pos, e.Requested)
	}
	return fmt.Sprintf("kstream: end of stream at position %d", e.Pos)
}
