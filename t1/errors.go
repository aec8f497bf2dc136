package t1

import "errors"

// ErrAlreadyComplete is returned by PushByte once the block's LRC has
// already been received.
var ErrAlreadyComplete = errors.New("t1: already complete")
