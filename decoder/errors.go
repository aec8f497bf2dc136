package decoder

import (
	"fmt"

	"github.com/augustyn-net/iso7816-logic-decoder/channel"
)

// ResetError is raised whenever a channel advance would cross a RST
// transition. It is always session-fatal: the orchestrator unwinds to
// RST-edge discovery.
type ResetError struct {
	Pos channel.Position
}

func (e *ResetError) Error() string {
	return fmt.Sprintf("RST transition encountered at sample %d", e.Pos)
}

// ParityError is raised when a sampled character's parity bit disagrees
// with the even-parity of its 8 data bits (TS is exempt, see BitDecoder).
type ParityError struct {
	Pos channel.Position
}

func (e *ParityError) Error() string {
	return fmt.Sprintf("parity mismatch at sample %d", e.Pos)
}

// ErrorSignalError is raised when I/O is held LOW through the guard
// window following a sampled character, i.e. the receiver is signalling
// a parity failure per ISO 7816-3 §7.3.
type ErrorSignalError struct {
	Pos channel.Position
}

func (e *ErrorSignalError) Error() string {
	return fmt.Sprintf("error signal (I/O low during guard time) at sample %d", e.Pos)
}

// OutOfSyncError is raised when the anticipated start-bit position does
// not find I/O LOW; the inner sampling loop may continue past it.
type OutOfSyncError struct {
	Pos channel.Position
}

func (e *OutOfSyncError) Error() string {
	return fmt.Sprintf("expected start bit not found at sample %d", e.Pos)
}
