package t1

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/augustyn-net/iso7816-logic-decoder/byteutil"
)

func pushAll(t *testing.T, p *Parser, bytes []byte) {
	t.Helper()
	for _, b := range bytes {
		require.NoErrorf(t, p.PushByte(b), "PushByte(%#x)", b)
	}
}

func TestIBlockWithINFAndGoodLRC(t *testing.T) {
	nad, pcb, length := byte(0x00), byte(0x00), byte(2)
	inf := []byte{0xAA, 0xBB}
	lrc := nad ^ pcb ^ length ^ inf[0] ^ inf[1]

	p := NewParser()
	pushAll(t, p, []byte{nad, pcb, length, inf[0]})
	require.Equal(t, "INF1", p.LastElementName())
	pushAll(t, p, []byte{inf[1], lrc})

	require.True(t, p.Completed())
	require.True(t, p.Valid(), "LRC should check out")
	require.Equal(t, IBlock, p.Type())
	require.Equal(t, "LRC-OK", p.LastElementName())
	require.Equal(t, "I-block NAD(00h) PCB(00h) LEN(02h) INF1(AAh) INF2(BBh) LRC-OK("+byteutil.HexByte(lrc)+")", p.String())
}

func TestSBlockZeroLengthSkipsINF(t *testing.T) {
	nad, pcb, length := byte(0x00), byte(0xC0), byte(0) // S-block tag
	lrc := nad ^ pcb ^ length

	p := NewParser()
	pushAll(t, p, []byte{nad, pcb, length, lrc})

	require.True(t, p.Completed())
	require.True(t, p.Valid())
	require.Equal(t, SBlock, p.Type())
	require.Empty(t, p.INF())
}

func TestRBlockBadLRCIsInvalid(t *testing.T) {
	nad, pcb, length := byte(0x00), byte(0x80), byte(0)
	p := NewParser()
	pushAll(t, p, []byte{nad, pcb, length, 0xFF})

	require.True(t, p.Completed())
	require.False(t, p.Valid(), "corrupt LRC")
	require.Equal(t, RBlock, p.Type())
	require.Equal(t, "LRC-ERR", p.LastElementName())
}

// TestScenarioIBlockLength3 is the "NAD=00 PCB=00 LEN=03 INF='ABC'"
// I-block case, with LRC computed as NAD^PCB^LEN^INF.
func TestScenarioIBlockLength3(t *testing.T) {
	nad, pcb, length := byte(0x00), byte(0x00), byte(3)
	inf := []byte{'A', 'B', 'C'}
	lrc := nad ^ pcb ^ length ^ inf[0] ^ inf[1] ^ inf[2]
	frame := []byte{nad, pcb, length, inf[0], inf[1], inf[2], lrc}

	p := NewParser()
	pushAll(t, p, frame)

	require.True(t, p.Completed())
	require.Equal(t, IBlock, p.Type())
	require.True(t, p.Valid())
}

// TestValidIffLRCInvariant checks invariant 3: a completed T=1 frame
// is Valid() iff NAD^PCB^LEN^(XOR of INF)^LRC == 0.
func TestValidIffLRCInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		nad := byte(rapid.IntRange(0, 255).Draw(t, "nad"))
		pcb := byte(rapid.IntRange(0, 255).Draw(t, "pcb"))
		length := byte(rapid.IntRange(0, 20).Draw(t, "length"))
		inf := make([]byte, length)
		for i := range inf {
			inf[i] = byte(rapid.IntRange(0, 255).Draw(t, "inf"))
		}
		corrupt := rapid.Bool().Draw(t, "corrupt")

		lrc := nad ^ pcb ^ length
		for _, b := range inf {
			lrc ^= b
		}
		if corrupt {
			lrc ^= 0x01
		}

		p := NewParser()
		frame := append([]byte{nad, pcb, length}, inf...)
		frame = append(frame, lrc)
		for _, b := range frame {
			if err := p.PushByte(b); err != nil {
				t.Fatalf("PushByte(%#x): %v", b, err)
			}
		}

		if !p.Completed() {
			t.Fatal("expected Completed")
		}
		if p.Valid() == corrupt {
			t.Fatalf("Valid() = %v, want %v (corrupt=%v)", p.Valid(), !corrupt, corrupt)
		}
	})
}

func TestPushByteAfterCompleteIsError(t *testing.T) {
	p := NewParser()
	pushAll(t, p, []byte{0x00, 0xC0, 0x00, 0x00})
	require.ErrorIs(t, p.PushByte(0x00), ErrAlreadyComplete)
}
