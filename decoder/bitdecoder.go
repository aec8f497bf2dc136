// Package decoder implements the sample-driven bit/character decoder:
// the layer that turns four raw edge-sampled channels into one raw
// 8-bit character per start-bit cycle, given a known elementary time
// unit (ETU).
//
// It is grounded on original_source/source/Iso7816BitDecoder.{h,cpp},
// translating the original's thrown DecoderException hierarchy into the
// typed (value, error) results the rest of this module uses.
package decoder

import (
	"github.com/augustyn-net/iso7816-logic-decoder/byteutil"
	"github.com/augustyn-net/iso7816-logic-decoder/channel"
	"github.com/augustyn-net/iso7816-logic-decoder/logging"
)

// DefaultETU is the ISO 7816-3 default elementary time unit, in CLK
// cycles.
const DefaultETU = 372

// ColdResetIdleCycles is the minimum number of idle CLK cycles (tc, per
// ISO 7816-3 §6.2.1) that must elapse after a cold reset before the TS
// start bit.
const ColdResetIdleCycles = 400

// BitDecoder drives edge iteration across IO/RST/VCC/CLK with RST-change
// detection, measures the ETU on the first start bit, and samples
// subsequent 10-bit characters (start + 8 data + parity + guard) once
// the ETU is known.
type BitDecoder struct {
	io, reset, vcc, clk channel.Provider
	log                 logging.Logger
}

// New constructs a BitDecoder over the four given channels. log may be
// nil, in which case a no-op logger is used.
func New(io, reset, vcc, clk channel.Provider, log logging.Logger) *BitDecoder {
	if log == nil {
		log = logging.NoOp()
	}
	return &BitDecoder{io: io, reset: reset, vcc: vcc, clk: clk, log: log}
}

// Sync advances all four channels to pos. Any RST transition strictly
// between a channel's current position and pos raises a ResetError
// carrying the position of that transition.
func (d *BitDecoder) Sync(pos channel.Position) error {
	for _, ch := range []channel.Provider{d.io, d.reset, d.vcc, d.clk} {
		if ch != d.reset && d.reset.WouldCrossTransition(pos) {
			return &ResetError{Pos: d.reset.PositionOfNextEdge()}
		}
		if err := ch.AdvanceToAbsolute(pos); err != nil {
			return err
		}
	}
	return nil
}

// SeekResetEdge advances RST to its next edge and reports the new
// level.
func (d *BitDecoder) SeekResetEdge() (pos channel.Position, high bool) {
	d.log.Debug("looking for RST edge")
	pos = d.reset.AdvanceToNextEdge()
	return pos, d.reset.CurrentState() == channel.High
}

// SeekIoFallingEdge advances I/O until it is HIGH, then takes one more
// edge, which is guaranteed to be falling. Every internal advance
// watches RST and raises ResetError if a reset transition would be
// crossed.
func (d *BitDecoder) SeekIoFallingEdge() (channel.Position, error) {
	for d.io.CurrentState() != channel.High {
		if err := d.advanceWithResetWatch(d.io); err != nil {
			return 0, err
		}
	}
	if err := d.advanceWithResetWatch(d.io); err != nil {
		return 0, err
	}
	return d.io.CurrentPosition(), nil
}

// SkipClkCycles advances CLK through n full periods (2n edges), RST
// watched throughout, and returns the ending position.
func (d *BitDecoder) SkipClkCycles(n int) (channel.Position, error) {
	for i := 0; i < n; i++ {
		if err := d.advanceWithResetWatch(d.clk); err != nil {
			return 0, err
		}
		if err := d.advanceWithResetWatch(d.clk); err != nil {
			return 0, err
		}
	}
	return d.clk.CurrentPosition(), nil
}

// CountClkCyclesUntil counts the number of full CLK periods consumed
// advancing CLK up to (but not past) pos.
func (d *BitDecoder) CountClkCyclesUntil(pos channel.Position) (int, error) {
	count := 0
	for d.clk.PositionOfNextEdge() < pos {
		if err := d.advanceWithResetWatch(d.clk); err != nil {
			return count, err
		}
		if err := d.advanceWithResetWatch(d.clk); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// MeasureETU measures the ETU (in CLK cycles) of the start bit that
// begins at the I/O falling edge position fallingEdge: the duration, in
// full CLK periods, from fallingEdge to the next I/O rising edge.
func (d *BitDecoder) MeasureETU(fallingEdge channel.Position) (int, error) {
	if err := d.syncClkTo(fallingEdge); err != nil {
		return 0, err
	}
	risingEdge := d.io.AdvanceToNextEdge()
	clocks, err := d.CountClkCyclesUntil(risingEdge)
	if err != nil {
		return 0, err
	}
	return clocks, nil
}

func (d *BitDecoder) syncClkTo(pos channel.Position) error {
	if d.reset.WouldCrossTransition(pos) {
		return &ResetError{Pos: d.reset.PositionOfNextEdge()}
	}
	return d.clk.AdvanceToAbsolute(pos)
}

// SampleCharacter samples one 10-bit character (start + 8 data bits +
// parity + guard) given a start bit that began at t0 and a known etu.
// markers is optional and may be nil; when non-nil the start bit, each
// sampled bit, a parity failure and the guard result are annotated on
// chl via markers.
//
// CLK is first brought up to t0. If CLK is already past t0 (MeasureETU
// leaves it at the end of the TS start bit), sampling instead begins
// half an ETU later, in the middle of the first data bit, and the Start
// marker is placed there.
//
// The returned byte is the raw 8 bits accumulated MSB-first on the wire,
// exactly as physically transmitted; the Convention transform (applied
// by the session layer) recovers the logical value.
func (d *BitDecoder) SampleCharacter(t0 channel.Position, etu int, suppressParity bool, markers channel.Sink, chl channel.Kind) (raw byte, end channel.Position, err error) {
	pastStartBit := d.clk.CurrentPosition() > t0
	if !pastStartBit {
		if err := d.syncClkTo(t0); err != nil {
			return 0, 0, err
		}
	}
	startPos, err := d.SkipClkCycles(etu / 2)
	if err != nil {
		return 0, 0, err
	}
	if err := d.Sync(startPos); err != nil {
		return 0, 0, err
	}
	if markers != nil {
		markers.EmitMarker(chl, channel.MarkerStart, d.io.CurrentPosition())
	}

	var acc uint16
	for i := 0; i < 8; i++ {
		if i > 0 || !pastStartBit {
			bitPos, err := d.SkipClkCycles(etu)
			if err != nil {
				return 0, 0, err
			}
			if err := d.Sync(bitPos); err != nil {
				return 0, 0, err
			}
		}

		bit := uint16(0)
		if d.io.CurrentState() == channel.High {
			bit = 1
		}
		if markers != nil {
			if bit == 1 {
				markers.EmitMarker(chl, channel.MarkerOne, d.io.CurrentPosition())
			} else {
				markers.EmitMarker(chl, channel.MarkerZero, d.io.CurrentPosition())
			}
		}
		acc = (acc << 1) | bit
	}
	raw = byte(acc)

	parityPos, err := d.SkipClkCycles(etu)
	if err != nil {
		return raw, 0, err
	}
	if err := d.Sync(parityPos); err != nil {
		return raw, 0, err
	}
	// Even parity: the parity bit makes the total count of set bits
	// across data+parity even, so a valid parity bit is HIGH exactly
	// when the data byte itself has an odd number of set bits.
	parityBit := d.io.CurrentState() == channel.High
	if !suppressParity && byteutil.EvenParity(raw) == parityBit {
		if markers != nil {
			markers.EmitMarker(chl, channel.MarkerErrorDot, d.io.CurrentPosition())
		}
		return raw, d.io.CurrentPosition(), &ParityError{Pos: d.io.CurrentPosition()}
	}

	guardPos, err := d.SkipClkCycles(etu)
	if err != nil {
		return raw, 0, err
	}
	if err := d.Sync(guardPos); err != nil {
		return raw, 0, err
	}
	if d.io.CurrentState() != channel.High {
		if markers != nil {
			markers.EmitMarker(chl, channel.MarkerErrorDot, d.io.CurrentPosition())
		}
		return raw, d.io.CurrentPosition(), &ErrorSignalError{Pos: d.io.CurrentPosition()}
	}
	if markers != nil {
		markers.EmitMarker(chl, channel.MarkerStop, d.io.CurrentPosition())
	}

	return raw, d.io.CurrentPosition(), nil
}

// CheckStartBit reports whether I/O reads LOW at its current position,
// as required at the anticipated start of the next character. If not,
// the caller should raise OutOfSyncError.
func (d *BitDecoder) CheckStartBit() bool {
	return d.io.CurrentState() == channel.Low
}

// AdvanceIo advances I/O to its next edge, watching RST throughout, and
// returns the new position. Unlike SeekIoFallingEdge (which hunts until
// it finds a genuine falling edge), this advances by exactly one edge
// and leaves it to the caller to check the resulting level with
// CheckStartBit; used by the inner per-character loop once a session's
// ETU is already known, per ISO 7816-3's "check the next transition,
// resync on failure" out-of-sync recovery.
func (d *BitDecoder) AdvanceIo() (channel.Position, error) {
	if err := d.advanceWithResetWatch(d.io); err != nil {
		return 0, err
	}
	return d.io.CurrentPosition(), nil
}

// IoPosition returns the current I/O channel position.
func (d *BitDecoder) IoPosition() channel.Position {
	return d.io.CurrentPosition()
}

// IoState returns the current I/O channel level.
func (d *BitDecoder) IoState() channel.BitState {
	return d.io.CurrentState()
}

func (d *BitDecoder) advanceWithResetWatch(ch channel.Provider) error {
	pos := ch.PositionOfNextEdge()
	if d.reset.WouldCrossTransition(pos) {
		return &ResetError{Pos: d.reset.PositionOfNextEdge()}
	}
	ch.AdvanceToNextEdge()
	return nil
}
