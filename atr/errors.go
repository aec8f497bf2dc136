package atr

import "errors"

// ErrAlreadyComplete is returned by PushByte once the ATR has already
// reached its TCK (or its last historical byte, if no TCK is needed).
var ErrAlreadyComplete = errors.New("atr: already complete")

// ErrOutOfSync is returned if PushByte is called in the Txi position
// with no TA/TB/TC/TD bit left pending, which cannot happen through
// normal use of PushByte and indicates a caller bug.
var ErrOutOfSync = errors.New("atr: no interface byte expected")
