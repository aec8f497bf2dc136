// Package atr implements the Answer-to-Reset parser: the TS/T0/TAi-TDi/
// historical-bytes/TCK state machine defined by ISO/IEC 7816-3 §8.
//
// It is grounded on original_source/source/ISO7816Atr.hpp, translated
// from its hand-rolled position/tag enums into a small Go state machine
// that accumulates interface bytes per group and renders them the same
// way the original's ToString() does.
package atr

import (
	"strconv"
	"strings"

	"github.com/augustyn-net/iso7816-logic-decoder/byteutil"
)

// position names where in the ATR the next pushed byte is expected.
type position int

const (
	posTS position = iota
	posT0
	posTxi
	posHistorical
	posTCK
	posComplete
)

// txPresence is the TD/TA/TB/TC-present bitmask carried by T0 and each
// TDi, matching the original's Tx enum (bits 4-7 of the interface-byte
// indicator nibble).
type txPresence byte

const (
	txTA txPresence = 0x10
	txTB txPresence = 0x20
	txTC txPresence = 0x40
	txTD txPresence = 0x80
)

// MaxInterfaceGroups bounds the number of TAi/TBi/TCi/TDi groups a
// conforming ATR may carry (i=1..4).
const MaxInterfaceGroups = 4

// InterfaceByte is one sampled TAi/TBi/TCi/TDi value.
type InterfaceByte struct {
	Group int  // i, 1-based
	Kind  byte // 'A', 'B', 'C', or 'D'
	Value byte
}

// Parser accumulates one Answer-to-Reset. Push one raw (already
// convention-transformed) byte at a time with PushByte; Completed
// reports when the ATR is fully formed.
type Parser struct {
	pos position

	ts byte
	t0 byte

	group        int // next interface-byte group to process, 1-based
	pendingTx    txPresence
	interfaceBs  []InterfaceByte
	protocolsSet map[byte]bool // protocols named by any TDi (T=0 implicit unless overridden)

	historicalCount int
	historical      []byte

	tck byte

	lastElement string
	valid       bool
}

// NewParser returns a Parser ready to receive the TS byte.
func NewParser() *Parser {
	return &Parser{pos: posTS, protocolsSet: map[byte]bool{}}
}

// Completed reports whether the ATR has been fully parsed.
func (p *Parser) Completed() bool { return p.pos == posComplete }

// Valid reports whether the ATR parsed so far is well-formed. It only
// carries meaning once Completed is true.
func (p *Parser) Valid() bool { return p.valid }

// LastElementName names the element the most recently pushed byte was
// attributed to (e.g. "TS", "T0", "TA1", "H3", "TCK"), for EventSink
// byte-frame labeling.
func (p *Parser) LastElementName() string { return p.lastElement }

// NeedsTCK reports whether the ATR being parsed requires a checksum
// byte: required whenever any protocol other than T=0 has been
// announced by TD1, TD2, or TD3 (ISO 7816-3 §8.2.5).
func (p *Parser) NeedsTCK() bool {
	for proto := range p.protocolsSet {
		if proto != 0 {
			return true
		}
	}
	return false
}

// PushByte feeds the next raw byte into the state machine.
func (p *Parser) PushByte(b byte) error {
	switch p.pos {
	case posTS:
		return p.onTS(b)
	case posT0:
		return p.onT0(b)
	case posTxi:
		return p.onTxi(b)
	case posHistorical:
		return p.onHistorical(b)
	case posTCK:
		return p.onTCK(b)
	default:
		return ErrAlreadyComplete
	}
}

func (p *Parser) onTS(b byte) error {
	p.ts = b
	p.lastElement = "TS"
	p.pos = posT0
	return nil
}

func (p *Parser) onT0(b byte) error {
	p.t0 = b
	p.lastElement = "T0"
	p.historicalCount = int(b & 0x0F)
	p.pendingTx = txPresence(b) & 0xF0
	p.group = 1
	if p.pendingTx == 0 {
		p.pos = posHistorical
		if p.historicalCount == 0 {
			p.pos = posTCK
			if !p.NeedsTCK() {
				p.pos = posComplete
				p.valid = true
			}
		}
	} else {
		p.pos = posTxi
	}
	return nil
}

// onTxi processes one interface byte for the current group, following
// the TD-chains-to-the-next-group, TA/TB/TC-are-terminal-per-group
// structure of the original's ProcessTxi/ExpectedTx.
func (p *Parser) onTxi(b byte) error {
	var kind byte
	switch {
	case p.pendingTx&txTA != 0:
		kind = 'A'
		p.pendingTx &^= txTA
	case p.pendingTx&txTB != 0:
		kind = 'B'
		p.pendingTx &^= txTB
	case p.pendingTx&txTC != 0:
		kind = 'C'
		p.pendingTx &^= txTC
	case p.pendingTx&txTD != 0:
		kind = 'D'
		p.pendingTx &^= txTD
	default:
		return ErrOutOfSync
	}

	p.interfaceBs = append(p.interfaceBs, InterfaceByte{Group: p.group, Kind: kind, Value: b})
	p.lastElement = nameFor(kind, p.group)

	if kind == 'D' {
		proto := b & 0x0F
		// Only TD1-TD3 bear on TCK presence (ISO 7816-3 §8.2.5); a TD4,
		// if present, announces no further protocol requirement.
		if p.group <= 3 {
			p.protocolsSet[proto] = true
		}
		// A conforming ATR carries at most MaxInterfaceGroups groups;
		// stop chaining once the next group would exceed it.
		if p.group < MaxInterfaceGroups {
			p.pendingTx |= txPresence(b) & 0xF0
		}
		p.group++
	}

	if p.pendingTx == 0 {
		p.pos = posHistorical
		if p.historicalCount == 0 {
			p.pos = posTCK
			if !p.NeedsTCK() {
				p.pos = posComplete
				p.valid = true
			}
		}
	}
	return nil
}

func (p *Parser) onHistorical(b byte) error {
	p.historical = append(p.historical, b)
	p.lastElement = nameFor('H', len(p.historical))
	if len(p.historical) >= p.historicalCount {
		p.pos = posTCK
		if !p.NeedsTCK() {
			p.pos = posComplete
			p.valid = true
		}
	}
	return nil
}

func (p *Parser) onTCK(b byte) error {
	p.tck = b
	p.lastElement = "TCK"
	p.pos = posComplete
	p.valid = p.checksumOK()
	return nil
}

// checksumOK verifies that XOR of T0 through the last historical byte
// (inclusive), together with TCK, is zero, per ISO 7816-3 §8.2.5.
func (p *Parser) checksumOK() bool {
	x := p.t0
	for _, ib := range p.interfaceBs {
		x ^= ib.Value
	}
	for _, h := range p.historical {
		x ^= h
	}
	x ^= p.tck
	return x == 0
}

// InterfaceBytes returns every TAi/TBi/TCi/TDi sampled so far, in
// sampled order.
func (p *Parser) InterfaceBytes() []InterfaceByte {
	out := make([]InterfaceByte, len(p.interfaceBs))
	copy(out, p.interfaceBs)
	return out
}

// InterfaceByteValue looks up a specific interface byte (kind 'A'..'D',
// group 1-based), returning ok=false if it was not present in this ATR.
func (p *Parser) InterfaceByteValue(kind byte, group int) (value byte, ok bool) {
	for _, ib := range p.interfaceBs {
		if ib.Kind == kind && ib.Group == group {
			return ib.Value, true
		}
	}
	return 0, false
}

// HistoricalBytes returns the historical bytes sampled so far.
func (p *Parser) HistoricalBytes() []byte {
	out := make([]byte, len(p.historical))
	copy(out, p.historical)
	return out
}

// TCK returns the checksum byte, valid once Completed is true and
// NeedsTCK is true.
func (p *Parser) TCK() byte { return p.tck }

// TS returns the (convention-transformed) TS byte this ATR started
// with.
func (p *Parser) TS() byte { return p.ts }

// String renders the ATR the way the original's ToString() does: a
// space-separated sequence of NAME(XXh) tokens in sampled order.
func (p *Parser) String() string {
	var sb strings.Builder
	sb.WriteString(byteutil.Token("TS", p.ts))
	sb.WriteByte(' ')
	sb.WriteString(byteutil.Token("T0", p.t0))
	hIdx := 0
	for _, ib := range p.interfaceBs {
		sb.WriteByte(' ')
		sb.WriteString(byteutil.Token(nameFor(ib.Kind, ib.Group), ib.Value))
	}
	for _, h := range p.historical {
		hIdx++
		sb.WriteByte(' ')
		sb.WriteString(byteutil.Token(nameFor('H', hIdx), h))
	}
	if p.pos == posComplete && p.NeedsTCK() {
		sb.WriteByte(' ')
		sb.WriteString(byteutil.Token("TCK", p.tck))
	}
	return sb.String()
}

func nameFor(kind byte, group int) string {
	return string(kind) + strconv.Itoa(group)
}
