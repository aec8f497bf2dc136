// Package pps implements Protocol-and-Parameter-Selection framing and
// the Fi/Di ETU recalculation it triggers, per ISO/IEC 7816-3 §9.
//
// It is grounded on original_source/source/Iso7816Session.cpp's OnPps
// (frame recognition, the "first byte isn't PPSS" early-exit to
// Transmission, and the erase-consumed-bytes buffering pattern) and
// spec.md §4.5/§3 for the Fi/Di tables, since ISO7816Pps.hpp was not
// present in the retrieved original source.
package pps

import (
	"errors"
)

// PPSS is the mandatory PPS request/response header byte.
const PPSS = 0xFF

// Presence bits of PPS0, indicating which of PPS1/PPS2/PPS3 follow.
const (
	presencePPS1 = 0x10
	presencePPS2 = 0x20
	presencePPS3 = 0x40
	t0Mask       = 0x0F
)

// ErrIncomplete is returned by Decode when buf does not yet hold enough
// bytes to determine the full frame length; the caller should retry
// once more bytes have arrived, without consuming anything.
var ErrIncomplete = errors.New("pps: incomplete frame")

// ErrNotAPps is returned by Decode when the byte at offset is not
// PPSS, meaning this exchange is not a PPS request/response at all and
// the caller should hand the buffered bytes to the T=0/T=1 layer
// instead.
var ErrNotAPps = errors.New("pps: not a PPS frame")

// Frame is one fully decoded PPS request or response.
type Frame struct {
	PPS0 byte
	T    byte // protocol requested/selected, PPS0 & 0x0F

	HasPPS1 bool
	PPS1    byte // Fi/Di byte, meaningful only if HasPPS1

	HasPPS2 bool
	PPS2    byte

	HasPPS3 bool
	PPS3    byte

	PCK byte
}

// Fi is the clock rate conversion integer table, indexed by the high
// nibble of PPS1. A zero entry marks a value reserved for future use
// (RFU) by ISO 7816-3 table 7.
var Fi = [16]int{372, 372, 558, 744, 1116, 1488, 1860, 0, 0, 512, 768, 1024, 1536, 2048, 0, 0}

// Di is the baud rate adjustment integer table, indexed by the low
// nibble of PPS1.
var Di = [16]int{0, 1, 2, 4, 8, 16, 32, 64, 12, 20, 0, 0, 0, 0, 0, 0}

// Decode attempts to decode one PPS frame starting at buf[offset]. On
// success it returns the frame and the number of bytes consumed
// (PPSS, PPS0, present PPSi, PCK). If buf[offset] is not PPSS it
// returns ErrNotAPps. If PPS0 has not yet arrived, or a PPS0 previously
// seen announces PPSi bytes or a PCK that have not yet arrived, it
// returns ErrIncomplete.
func Decode(buf []byte, offset int) (Frame, int, error) {
	if offset >= len(buf) {
		return Frame{}, 0, ErrIncomplete
	}
	if buf[offset] != PPSS {
		return Frame{}, 0, ErrNotAPps
	}
	if offset+1 >= len(buf) {
		return Frame{}, 0, ErrIncomplete
	}
	pps0 := buf[offset+1]

	need := 2
	if pps0&presencePPS1 != 0 {
		need++
	}
	if pps0&presencePPS2 != 0 {
		need++
	}
	if pps0&presencePPS3 != 0 {
		need++
	}
	need++ // PCK

	if offset+need > len(buf) {
		return Frame{}, 0, ErrIncomplete
	}

	f := Frame{PPS0: pps0, T: pps0 & t0Mask}
	i := offset + 2
	if pps0&presencePPS1 != 0 {
		f.HasPPS1 = true
		f.PPS1 = buf[i]
		i++
	}
	if pps0&presencePPS2 != 0 {
		f.HasPPS2 = true
		f.PPS2 = buf[i]
		i++
	}
	if pps0&presencePPS3 != 0 {
		f.HasPPS3 = true
		f.PPS3 = buf[i]
		i++
	}
	f.PCK = buf[i]

	return f, need, nil
}

// Equal reports whether two frames carry the same field values,
// matching the request/response comparison the session layer performs
// to confirm the card accepted the proposed parameters.
func (f Frame) Equal(other Frame) bool {
	return f.PPS0 == other.PPS0 &&
		f.HasPPS1 == other.HasPPS1 && f.PPS1 == other.PPS1 &&
		f.HasPPS2 == other.HasPPS2 && f.PPS2 == other.PPS2 &&
		f.HasPPS3 == other.HasPPS3 && f.PPS3 == other.PPS3
}

// CheckPCK reports whether the frame's PCK is the XOR of PPSS, PPS0 and
// every present PPSi, as required by ISO 7816-3 §9.3.
func (f Frame) CheckPCK() bool {
	x := byte(PPSS) ^ f.PPS0
	if f.HasPPS1 {
		x ^= f.PPS1
	}
	if f.HasPPS2 {
		x ^= f.PPS2
	}
	if f.HasPPS3 {
		x ^= f.PPS3
	}
	return x == f.PCK
}

// CalculateETU derives the new ETU, in CLK cycles, from a frame's PPS1
// byte: Fi/Di, rounded per ISO 7816-3 §7.1's elementary time unit
// formula. If PPS1 is absent, or either nibble is RFU, the default ETU
// of 372 applies (ISO 7816-3 §8.3).
func CalculateETU(f Frame) int {
	if !f.HasPPS1 {
		return 372
	}
	fi := Fi[f.PPS1>>4]
	di := Di[f.PPS1&0x0F]
	if fi == 0 || di == 0 {
		return 372
	}
	return fi / di
}
