// Package t1 implements T=1 block framing (NAD/PCB/LEN/INF/LRC), per
// ISO/IEC 7816-3 §11.3.
//
// It is grounded on original_source/source/T1Frame.h: the same
// BLOCK_MASK/tag classification, the same NAD/PCB/LEN/INF/LRC position
// sequence, and the same LRC-OK/LRC-ERR last-element naming used by the
// original's ToString()/GetLastElementName().
package t1

import (
	"fmt"

	"github.com/augustyn-net/iso7816-logic-decoder/byteutil"
)

// Block classification tags, matching T1Frame.h's Definitions enum.
const (
	blockMask  = 0xC0
	tagIBlock1 = 0x00
	tagIBlock2 = 0x40
	tagRBlock  = 0x80
	tagSBlock  = 0xC0
)

// BlockType classifies a T=1 block by its PCB byte.
type BlockType int

const (
	Unknown BlockType = iota
	IBlock
	RBlock
	SBlock
)

func (t BlockType) String() string {
	switch t {
	case IBlock:
		return "I-block"
	case RBlock:
		return "R-block"
	case SBlock:
		return "S-block"
	default:
		return "unknown"
	}
}

func classify(pcb byte) BlockType {
	switch pcb & blockMask {
	case tagIBlock1, tagIBlock2:
		return IBlock
	case tagRBlock:
		return RBlock
	case tagSBlock:
		return SBlock
	default:
		return Unknown
	}
}

type position int

const (
	posNAD position = iota
	posPCB
	posLEN
	posINF
	posLRC
	posComplete
)

// Parser accumulates one T=1 block.
type Parser struct {
	pos position

	nad byte
	pcb byte
	len byte
	inf []byte
	lrc byte

	lastElement string
	lrcOK       bool
}

// NewParser returns a Parser ready to receive the NAD byte.
func NewParser() *Parser {
	return &Parser{pos: posNAD}
}

// Completed reports whether the block has been fully parsed.
func (p *Parser) Completed() bool { return p.pos == posComplete }

// Valid reports whether the block's LRC checked out. Only meaningful
// once Completed is true.
func (p *Parser) Valid() bool { return p.lrcOK }

// LastElementName names the element the most recently pushed byte was
// attributed to. The LRC byte is named "LRC-OK" or "LRC-ERR" depending
// on whether it validated, matching the original's rendering.
func (p *Parser) LastElementName() string { return p.lastElement }

// Type classifies the block by its PCB. Valid once PCB has been pushed.
func (p *Parser) Type() BlockType { return classify(p.pcb) }

// NAD, PCB, INF and LRC expose the block's fields once pushed.
func (p *Parser) NAD() byte    { return p.nad }
func (p *Parser) PCB() byte    { return p.pcb }
func (p *Parser) INF() []byte  { return append([]byte(nil), p.inf...) }
func (p *Parser) LRC() byte    { return p.lrc }
func (p *Parser) LEN() byte    { return p.len }

// PushByte feeds the next raw byte into the state machine.
func (p *Parser) PushByte(b byte) error {
	switch p.pos {
	case posNAD:
		p.nad = b
		p.lastElement = "NAD"
		p.pos = posPCB
		return nil
	case posPCB:
		p.pcb = b
		p.lastElement = "PCB"
		p.pos = posLEN
		return nil
	case posLEN:
		p.len = b
		p.lastElement = "LEN"
		if p.len == 0 {
			p.pos = posLRC
		} else {
			p.pos = posINF
		}
		return nil
	case posINF:
		p.inf = append(p.inf, b)
		p.lastElement = fmt.Sprintf("INF%d", len(p.inf))
		if len(p.inf) >= int(p.len) {
			p.pos = posLRC
		}
		return nil
	case posLRC:
		p.lrc = b
		p.lrcOK = p.checkLRC()
		if p.lrcOK {
			p.lastElement = "LRC-OK"
		} else {
			p.lastElement = "LRC-ERR"
		}
		p.pos = posComplete
		return nil
	default:
		return ErrAlreadyComplete
	}
}

// checkLRC verifies the longitudinal redundancy check: the XOR of
// NAD, PCB, LEN, every INF byte and LRC itself must be zero.
func (p *Parser) checkLRC() bool {
	x := p.nad ^ p.pcb ^ p.len
	for _, b := range p.inf {
		x ^= b
	}
	x ^= p.lrc
	return x == 0
}

// String renders the block as a leading block-type token followed by a
// space-separated sequence of NAME(XXh) tokens, in the style of the
// original's ToString()/RenderBlockType().
func (p *Parser) String() string {
	s := p.Type().String() + " " + byteutil.Token("NAD", p.nad) + " " + byteutil.Token("PCB", p.pcb) + " " + byteutil.Token("LEN", p.len)
	for i, b := range p.inf {
		s += " " + byteutil.Token(fmt.Sprintf("INF%d", i+1), b)
	}
	if p.pos == posComplete {
		name := "LRC-ERR"
		if p.lrcOK {
			name = "LRC-OK"
		}
		s += " " + byteutil.Token(name, p.lrc)
	}
	return s
}
