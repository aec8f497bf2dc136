package session

import (
	"testing"

	"github.com/augustyn-net/iso7816-logic-decoder/byteutil"
	"github.com/augustyn-net/iso7816-logic-decoder/channel"
)

type recordedByte struct {
	name  string
	value byte
}

type recorder struct {
	bytes     []recordedByte
	textFrame []string
}

func (r *recorder) EmitByteFrame(chl channel.Kind, name string, value byte, start, end channel.Position) {
	r.bytes = append(r.bytes, recordedByte{name, value})
}

func (r *recorder) EmitTextFrame(chl channel.Kind, short, medium, detailed string, start, end channel.Position) {
	r.textFrame = append(r.textFrame, short)
}

func (r *recorder) EmitMarker(chl channel.Kind, kind channel.Marker, pos channel.Position) {}

func rawDirect(logical byte) byte { return byteutil.Reverse8(logical) }

func TestSupervisorDirectConventionMinimalAtrThenT0Transmission(t *testing.T) {
	rec := &recorder{}
	s := NewSupervisor(rec)

	// TS announces DIRECT convention: raw 0xDC.
	if err := s.PushByte(rawDirect(0x3B), 0, 1); err != nil {
		t.Fatalf("TS: %v", err)
	}
	if s.Convention() != Direct {
		t.Fatalf("Convention() = %v, want Direct", s.Convention())
	}
	if s.State() != Atr {
		t.Fatalf("State() after TS = %v, want Atr", s.State())
	}

	// T0 = 0x00: no interface bytes, no historical bytes -> ATR
	// completes immediately, no TA2 -> falls through to Pps.
	if err := s.PushByte(rawDirect(0x00), 1, 2); err != nil {
		t.Fatalf("T0: %v", err)
	}
	if s.State() != Pps {
		t.Fatalf("State() after T0 = %v, want Pps", s.State())
	}

	// First post-ATR byte isn't PPSS -> no PPS exchange, straight to
	// Transmission, and this byte is itself the first T=0 byte.
	if err := s.PushByte(rawDirect(0xA0), 2, 3); err != nil {
		t.Fatalf("post-ATR byte: %v", err)
	}
	if s.State() != Transmission {
		t.Fatalf("State() = %v, want Transmission", s.State())
	}
	if s.Protocol() != T0 {
		t.Fatalf("Protocol() = %v, want T0", s.Protocol())
	}

	last := rec.bytes[len(rec.bytes)-1]
	if last.value != 0xA0 {
		t.Errorf("last emitted byte = %#x, want 0xA0", last.value)
	}
}

func TestSupervisorUnrecognisedTSIsFormatError(t *testing.T) {
	rec := &recorder{}
	s := NewSupervisor(rec)
	err := s.PushByte(0x00, 0, 1)
	if _, ok := err.(*FormatError); !ok {
		t.Fatalf("PushByte(bad TS) = %T, want *FormatError", err)
	}
	if s.State() != Unknown {
		t.Errorf("State() = %v, want Unknown", s.State())
	}
}

func TestSupervisorResetReturnsToStart(t *testing.T) {
	rec := &recorder{}
	s := NewSupervisor(rec)
	_ = s.PushByte(rawDirect(0x3B), 0, 1)
	s.Reset()
	if s.State() != Start {
		t.Errorf("State() after Reset = %v, want Start", s.State())
	}
	if s.ETU() != defaultETU {
		t.Errorf("ETU() after Reset = %d, want default %d", s.ETU(), defaultETU)
	}
}

func TestSupervisorInverseConvention(t *testing.T) {
	rec := &recorder{}
	s := NewSupervisor(rec)
	// Inverse convention: raw TS is the bitwise complement of logical 0x3F.
	if err := s.PushByte(^byte(0x3F), 0, 1); err != nil {
		t.Fatalf("TS: %v", err)
	}
	if s.Convention() != Inverse {
		t.Fatalf("Convention() = %v, want Inverse", s.Convention())
	}
}
