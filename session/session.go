// Package session owns one card session's protocol state machine:
// convention detection, ATR ownership, PPS negotiation, and routing of
// post-negotiation bytes to either raw T=0 byte emission or a T=1 block
// parser. It is the Go counterpart of a host-side transaction log, not
// a re-implementation of the card itself.
//
// Grounded on original_source/source/Iso7816Session.{h,cpp}: the same
// Convention/State/Protocol enums, the same Start-falls-straight-into-
// Atr-in-the-same-call dispatch, the same TA2-specific-mode shortcut
// past PPS, and the same buff.size()==1-and-not-PPSS shortcut straight
// to Transmission.
package session

import (
	"strings"

	"github.com/augustyn-net/iso7816-logic-decoder/atr"
	"github.com/augustyn-net/iso7816-logic-decoder/byteutil"
	"github.com/augustyn-net/iso7816-logic-decoder/channel"
	"github.com/augustyn-net/iso7816-logic-decoder/pps"
	"github.com/augustyn-net/iso7816-logic-decoder/t1"
)

// Convention is the byte-transmission convention announced by TS.
type Convention int

const (
	// ConventionUnknown is the zero value, before TS has been seen.
	ConventionUnknown Convention = iota
	Direct
	Inverse
)

// Raw TS byte patterns that announce each convention (ISO 7816-3
// §8.1), matching the original's Mode{INVERSE=0xC0, DIRECT=0xDC}.
const (
	rawTSDirect  = 0xDC
	rawTSInverse = 0xC0
)

func (c Convention) String() string {
	switch c {
	case Direct:
		return "direct"
	case Inverse:
		return "inverse"
	default:
		return "unknown"
	}
}

// Transform recovers the logical value of a raw, MSB-first sampled
// byte under this convention: bit-reversal for Direct, bitwise
// complement for Inverse.
func (c Convention) Transform(raw byte) byte {
	if c == Inverse {
		return ^raw
	}
	return byteutil.Reverse8(raw)
}

// Protocol is the transmission protocol in effect during Transmission.
type Protocol int

const (
	T0 Protocol = 0
	T1 Protocol = 1
)

func (p Protocol) String() string {
	if p == T1 {
		return "T=1"
	}
	return "T=0"
}

// State is the session's current phase.
type State int

const (
	Start State = iota
	Atr
	Pps
	Transmission
	Unknown
)

func (s State) String() string {
	switch s {
	case Start:
		return "Start"
	case Atr:
		return "Atr"
	case Pps:
		return "Pps"
	case Transmission:
		return "Transmission"
	default:
		return "Unknown"
	}
}

// defaultETU is the ISO 7816-3 default, used until an ATR interface
// byte or a PPS exchange changes it.
const defaultETU = 372

// Supervisor drives one card session from TS through however many
// Transmission blocks follow. It owns the lifetime of its ATR, PPS and
// T=1 sub-parsers and reports decoded elements to a channel.Sink.
type Supervisor struct {
	state      State
	convention Convention
	protocol   Protocol
	etu        int

	sink channel.Sink

	atrParser *atr.Parser

	ppsBuf      []byte
	ppsRequest  *pps.Frame
	specificETU int // ETU fixed by TA2 specific mode, overrides PPS entirely when > 0

	t1Parser *t1.Parser
}

// NewSupervisor returns a Supervisor in State Start, ready to receive
// the TS byte. sink receives every decoded byte/text/marker event.
func NewSupervisor(sink channel.Sink) *Supervisor {
	return &Supervisor{state: Start, etu: defaultETU, sink: sink}
}

// State, Convention, Protocol and ETU expose the supervisor's current
// understanding of the session, for the orchestrator's character
// sampling and status reporting.
func (s *Supervisor) State() State           { return s.state }
func (s *Supervisor) Convention() Convention { return s.convention }
func (s *Supervisor) Protocol() Protocol     { return s.protocol }
func (s *Supervisor) ETU() int               { return s.etu }

// Sink returns the channel.Sink this supervisor reports decoded
// elements to, for callers (the orchestrator) that also want to pass
// it to BitDecoder.SampleCharacter for bit-level marker annotation.
func (s *Supervisor) Sink() channel.Sink { return s.sink }

// String renders the session's convention announcement ahead of its
// ATR, e.g. "DIRECT(3Bh) TS(3Bh) T0(00h)", for the "A"/"ATR" text
// frame a completed ATR emits.
func (s *Supervisor) String() string {
	token := strings.ToUpper(s.convention.String())
	if s.atrParser == nil {
		return token
	}
	return byteutil.Token(token, s.atrParser.TS()) + " " + s.atrParser.String()
}

// Reset returns the supervisor to State Start, discarding all
// in-progress sub-parsers. Called by the orchestrator whenever RST is
// observed mid-session.
func (s *Supervisor) Reset() {
	*s = Supervisor{state: Start, etu: defaultETU, sink: s.sink}
}

// PushByte feeds one raw (not yet convention-transformed) sampled byte
// into the state machine.
func (s *Supervisor) PushByte(raw byte, start, end channel.Position) error {
	switch s.state {
	case Start:
		return s.onStart(raw, start, end)
	case Atr:
		return s.onAtr(raw, start, end)
	case Pps:
		return s.onPps(raw, start, end)
	case Transmission:
		return s.onTransmission(raw, start, end)
	default:
		return s.onUnknown(raw, start, end)
	}
}

func (s *Supervisor) onStart(raw byte, start, end channel.Position) error {
	switch raw {
	case rawTSDirect:
		s.convention = Direct
	case rawTSInverse:
		s.convention = Inverse
	default:
		s.state = Unknown
		return &FormatError{Reason: "unrecognised TS pattern"}
	}
	s.atrParser = atr.NewParser()
	s.state = Atr
	// Start dispatches straight into Atr within the same call: the TS
	// byte just consumed is also the ATR's first byte.
	return s.onAtr(raw, start, end)
}

func (s *Supervisor) onAtr(raw byte, start, end channel.Position) error {
	logical := s.convention.Transform(raw)
	err := s.atrParser.PushByte(logical)
	s.sink.EmitByteFrame(channel.IO, s.atrParser.LastElementName(), logical, start, end)
	if err != nil {
		s.state = Unknown
		return &FormatError{Reason: err.Error()}
	}
	if !s.atrParser.Completed() {
		return nil
	}
	if !s.atrParser.Valid() {
		s.state = Unknown
		return &FormatError{Reason: "ATR checksum mismatch"}
	}

	s.sink.EmitTextFrame(channel.IO, s.String(), "", "", start, end)

	s.etu = etuFromTA1(s.atrParser)
	if ta2, ok := s.atrParser.InterfaceByteValue('A', 2); ok {
		// TA2 bit 0x10 clear means specific mode: negotiation is
		// pre-determined by the ATR, and no PPS exchange follows.
		if ta2&0x10 == 0 {
			s.protocol = Protocol(ta2 & 0x0F)
			s.specificETU = s.etu
			s.state = Transmission
			return nil
		}
	}
	s.state = Pps
	return nil
}

// etuFromTA1 derives the ETU a negotiable-mode ATR announces via TA1's
// Fi/Di nibbles, defaulting to 372 when TA1 is absent or RFU.
func etuFromTA1(p *atr.Parser) int {
	ta1, ok := p.InterfaceByteValue('A', 1)
	if !ok {
		return defaultETU
	}
	fi := pps.Fi[ta1>>4]
	di := pps.Di[ta1&0x0F]
	if fi == 0 || di == 0 {
		return defaultETU
	}
	return fi / di
}

func (s *Supervisor) onPps(raw byte, start, end channel.Position) error {
	logical := s.convention.Transform(raw)

	if len(s.ppsBuf) == 0 && s.ppsRequest == nil && logical != pps.PPSS {
		// Not a PPS exchange at all: this byte is the first
		// Transmission byte instead.
		s.state = Transmission
		return s.onTransmission(raw, start, end)
	}

	s.ppsBuf = append(s.ppsBuf, logical)

	frame, consumed, err := pps.Decode(s.ppsBuf, 0)
	switch err {
	case pps.ErrIncomplete:
		s.sink.EmitByteFrame(channel.IO, "PPS", logical, start, end)
		return nil
	case pps.ErrNotAPps:
		s.state = Unknown
		return &FormatError{Reason: "expected PPS request"}
	case nil:
		// fall through
	default:
		s.state = Unknown
		return &FormatError{Reason: err.Error()}
	}

	s.ppsBuf = s.ppsBuf[consumed:]

	if !frame.CheckPCK() {
		s.state = Unknown
		return &FormatError{Reason: "PPS checksum mismatch"}
	}

	if s.ppsRequest == nil {
		req := frame
		s.ppsRequest = &req
		s.sink.EmitTextFrame(channel.IO, "PPS request", "", "", start, end)
		return nil
	}

	s.sink.EmitTextFrame(channel.IO, "PPS response", "", "", start, end)
	if !s.ppsRequest.Equal(frame) {
		s.ppsRequest = nil
		s.state = Unknown
		return &FormatError{Reason: "PPS response does not match request"}
	}
	s.etu = pps.CalculateETU(frame)
	s.protocol = Protocol(frame.T)
	s.ppsRequest = nil
	s.state = Transmission
	return nil
}

func (s *Supervisor) onTransmission(raw byte, start, end channel.Position) error {
	logical := s.convention.Transform(raw)

	if s.protocol == T1 {
		if s.t1Parser == nil {
			s.t1Parser = t1.NewParser()
		}
		err := s.t1Parser.PushByte(logical)
		s.sink.EmitByteFrame(channel.IO, s.t1Parser.LastElementName(), logical, start, end)
		if err != nil {
			s.t1Parser = nil
			return &FormatError{Reason: err.Error()}
		}
		if s.t1Parser.Completed() {
			s.sink.EmitTextFrame(channel.IO, s.t1Parser.String(), "", "", start, end)
			s.t1Parser = nil
		}
		return nil
	}

	s.sink.EmitByteFrame(channel.IO, "", logical, start, end)
	return nil
}

func (s *Supervisor) onUnknown(raw byte, start, end channel.Position) error {
	s.sink.EmitByteFrame(channel.IO, "?", raw, start, end)
	return nil
}
