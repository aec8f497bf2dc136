package simio

import "errors"

// ErrBackwardSeek is returned by Channel.AdvanceToAbsolute when asked
// to move to a position before the channel's current one.
var ErrBackwardSeek = errors.New("simio: cannot advance to a position behind current")
