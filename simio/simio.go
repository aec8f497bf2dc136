// Package simio provides a synthetic channel.Provider implementation
// and a fixture builder for constructing whole ISO 7816-3 captures in
// memory, for use by tests and by the CLI harness's demo mode.
//
// It plays the role the teacher's common.MemoryAccessor and its
// removed mem_buffer.go fixture played for CoreSight traces: an
// edge-list-backed implementation of the host-facing interface that
// needs no real acquisition hardware.
package simio

import (
	"github.com/augustyn-net/iso7816-logic-decoder/channel"
)

// Channel is an edge-list-backed channel.Provider: a sorted list of
// transition positions plus the level the channel starts at.
type Channel struct {
	edges []channel.Position // strictly increasing
	pos   channel.Position
	start channel.BitState
}

// NewChannel returns a Channel starting at level start, with a
// transition at each position in edges (which must be strictly
// increasing).
func NewChannel(start channel.BitState, edges []channel.Position) *Channel {
	return &Channel{edges: edges, start: start}
}

func (c *Channel) levelAt(pos channel.Position) channel.BitState {
	level := c.start
	for _, e := range c.edges {
		if e > pos {
			break
		}
		level = !level
	}
	return level
}

func (c *Channel) CurrentPosition() channel.Position { return c.pos }
func (c *Channel) CurrentState() channel.BitState     { return c.levelAt(c.pos) }

func (c *Channel) PositionOfNextEdge() channel.Position {
	for _, e := range c.edges {
		if e > c.pos {
			return e
		}
	}
	return c.pos
}

func (c *Channel) AdvanceToNextEdge() channel.Position {
	c.pos = c.PositionOfNextEdge()
	return c.pos
}

func (c *Channel) WouldCrossTransition(pos channel.Position) bool {
	for _, e := range c.edges {
		if e > c.pos && e <= pos {
			return true
		}
	}
	return false
}

func (c *Channel) AdvanceToAbsolute(pos channel.Position) error {
	if pos < c.pos {
		return ErrBackwardSeek
	}
	c.pos = pos
	return nil
}

// Builder accumulates the four ISO 7816-3 signal waveforms for one
// synthetic capture, at a tick resolution of 2 ticks per CLK cycle
// (CLK toggles twice per cycle).
type Builder struct {
	cursor channel.Position

	ioEdges    []channel.Position
	ioLevel    channel.BitState
	ioInitial  channel.BitState
	resetEdges []channel.Position
	vccEdges   []channel.Position
	haveIO     bool
	haveReset  bool
	haveVcc    bool
}

// NewBuilder returns a Builder with VCC and RST high and I/O high
// (idle) from tick 0, matching a card already powered and out of
// reset.
func NewBuilder() *Builder {
	return &Builder{ioLevel: channel.High, ioInitial: channel.High}
}

// ticksPerCycle converts a CLK-cycle count to this builder's tick
// resolution.
const ticksPerCycle = 2

// HoldResetLow appends cycles CLK cycles of RST held LOW starting at
// the current cursor (a cold reset pulse), then returns the cursor to
// HIGH.
func (b *Builder) HoldResetLow(cycles int) *Builder {
	start := b.cursor
	end := start + channel.Position(cycles*ticksPerCycle)
	b.resetEdges = append(b.resetEdges, start, end)
	b.haveReset = true
	b.cursor = end
	return b
}

// IdleCycles advances the cursor by cycles CLK cycles without changing
// any signal, modeling the guard time ISO 7816-3 requires between RST
// going high and TS appearing.
func (b *Builder) IdleCycles(cycles int) *Builder {
	b.cursor += channel.Position(cycles * ticksPerCycle)
	return b
}

// PushRawByte appends one raw (already convention-encoded) byte to the
// I/O waveform at the given ETU (in CLK cycles), starting with a start
// bit at the current cursor and ending after the guard time. It
// returns the tick position of the start bit's falling edge, useful
// for orchestrator tests that need to hand that position to
// BitDecoder.SeekIoFallingEdge callers directly.
func (b *Builder) PushRawByte(raw byte, parityBit bool, etu int) (startEdge channel.Position) {
	cell := channel.Position(etu * ticksPerCycle)
	bits := make([]channel.BitState, 0, 11)
	bits = append(bits, channel.Low) // start bit
	for i := 7; i >= 0; i-- {
		bits = append(bits, channel.BitState(raw&(1<<uint(i)) != 0))
	}
	bits = append(bits, channel.BitState(parityBit))
	bits = append(bits, channel.High) // guard/stop

	startEdge = b.cursor
	if !b.haveIO {
		b.ioInitial = channel.High
		b.haveIO = true
	}
	prev := b.ioLevel
	for i, lvl := range bits {
		if i == 0 {
			if lvl != prev {
				b.ioEdges = append(b.ioEdges, b.cursor)
			}
		} else if lvl != bits[i-1] {
			b.ioEdges = append(b.ioEdges, b.cursor)
		}
		b.cursor += cell
	}
	b.ioLevel = bits[len(bits)-1]
	return startEdge
}

// Build freezes the accumulated waveforms into four channel.Provider
// implementations, in IO, RST, VCC, CLK order.
func (b *Builder) Build() (io, reset, vcc, clk channel.Provider) {
	ioInitial := channel.High
	if b.haveIO {
		ioInitial = b.ioInitial
	}
	io = NewChannel(ioInitial, b.ioEdges)

	resetInitial := channel.High
	reset = NewChannel(resetInitial, b.resetEdges)

	vcc = NewChannel(channel.High, b.vccEdges)

	clkEdges := make([]channel.Position, 0, b.cursor+2)
	for t := channel.Position(1); t <= b.cursor+2; t++ {
		clkEdges = append(clkEdges, t)
	}
	clk = NewChannel(channel.Low, clkEdges)

	return io, reset, vcc, clk
}
