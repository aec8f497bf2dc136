package session

import "fmt"

// FormatError is raised whenever a byte cannot be reconciled with the
// protocol state currently expected: an unrecognised TS pattern, a
// malformed ATR/PPS checksum, or a PPS response that does not match its
// request. Bytes pushed after the session has given up (State ==
// Unknown) are emitted as-is and raise no error. It is the catch-all in
// place of the original decoder's generic protocol exception.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("protocol format error: %s", e.Reason)
}
