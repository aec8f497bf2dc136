package atr

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func pushAll(t *testing.T, p *Parser, bytes []byte) {
	t.Helper()
	for _, b := range bytes {
		require.NoErrorf(t, p.PushByte(b), "PushByte(%#x)", b)
	}
}

func TestParserMinimalT0OnlyNoTCK(t *testing.T) {
	p := NewParser()
	pushAll(t, p, []byte{0x3B, 0x00})

	require.True(t, p.Completed(), "expected Completed after T0=0x00 (no interface bytes, no historical bytes)")
	require.True(t, p.Valid(), "T=0-only ATR needs no TCK")
	require.False(t, p.NeedsTCK(), "T0=0x00 announces no TDi, should not need TCK")
}

func TestParserWithTD1AnnouncingT1RequiresTCK(t *testing.T) {
	p := NewParser()
	pushAll(t, p, []byte{0x3B, 0x80, 0x01}) // TS, T0(TD1 present, 0 historical), TD1=T1

	require.False(t, p.Completed(), "should not be complete before TCK, protocol T=1 was announced")
	require.True(t, p.NeedsTCK(), "TD1 announced T=1, TCK should be required")

	tck := byte(0x80 ^ 0x01) // XOR of T0 and TD1 must cancel TCK
	pushAll(t, p, []byte{tck})

	require.True(t, p.Completed())
	require.True(t, p.Valid(), "TCK XORs to zero")

	v, ok := p.InterfaceByteValue('D', 1)
	require.True(t, ok)
	require.Equal(t, byte(0x01), v)
}

func TestParserBadTCKIsInvalid(t *testing.T) {
	p := NewParser()
	pushAll(t, p, []byte{0x3B, 0x80, 0x01, 0xFF})

	require.True(t, p.Completed())
	require.False(t, p.Valid(), "TCK does not XOR to zero")
}

func TestParserHistoricalBytesAndString(t *testing.T) {
	p := NewParser()
	// T0 = 0x02: no interface bytes, 2 historical bytes.
	pushAll(t, p, []byte{0x3B, 0x02, 0xAA, 0xBB})

	require.True(t, p.Completed())
	require.True(t, p.Valid())
	require.Equal(t, []byte{0xAA, 0xBB}, p.HistoricalBytes())
	require.Equal(t, "TS(3Bh) T0(02h) H1(AAh) H2(BBh)", p.String())
}

// TestParserChainedInterfaceGroups covers a TD1 chaining into a second
// interface-byte group (TA2), comparing the accumulated InterfaceBytes
// against the expected sequence structurally.
func TestParserChainedInterfaceGroups(t *testing.T) {
	p := NewParser()
	// T0: TA1+TD1 present, K=0. TD1=0x10: chains to TA2, protocol T=0.
	pushAll(t, p, []byte{0x3B, 0x90, 0x11, 0x10, 0x85})

	require.True(t, p.Completed())
	require.True(t, p.Valid())
	require.False(t, p.NeedsTCK(), "only T=0 was announced across both groups")

	want := []InterfaceByte{
		{Group: 1, Kind: 'A', Value: 0x11},
		{Group: 1, Kind: 'D', Value: 0x10},
		{Group: 2, Kind: 'A', Value: 0x85},
	}
	if diff := cmp.Diff(want, p.InterfaceBytes()); diff != "" {
		t.Errorf("InterfaceBytes() mismatch (-want +got):\n%s", diff)
	}
}

// TestTD4ProtocolDoesNotRequireTCK covers a TD1->TD2->TD3->TD4 chain
// where only TD4 announces a non-T=0 protocol: TCK presence depends
// only on TD1-TD3 (ISO 7816-3 §8.2.5), so this ATR must not require
// one.
func TestTD4ProtocolDoesNotRequireTCK(t *testing.T) {
	p := NewParser()
	// T0: TD1 present, K=0.
	// TD1=0x80: chains to TD2, protocol T=0.
	// TD2=0x80: chains to TD3, protocol T=0.
	// TD3=0x80: chains to TD4, protocol T=0.
	// TD4=0x01: protocol T=1, no further chaining.
	pushAll(t, p, []byte{0x3B, 0x80, 0x80, 0x80, 0x80, 0x01})

	require.True(t, p.Completed())
	require.True(t, p.Valid())
	require.False(t, p.NeedsTCK(), "TD4 announcing T=1 must not force a TCK requirement")

	want := []InterfaceByte{
		{Group: 1, Kind: 'D', Value: 0x80},
		{Group: 2, Kind: 'D', Value: 0x80},
		{Group: 3, Kind: 'D', Value: 0x80},
		{Group: 4, Kind: 'D', Value: 0x01},
	}
	if diff := cmp.Diff(want, p.InterfaceBytes()); diff != "" {
		t.Errorf("InterfaceBytes() mismatch (-want +got):\n%s", diff)
	}
}

// TestValidIffTCKInvariant checks invariant 2: an ATR with only TD1
// announcing T=1 needs a TCK, and is Valid() iff it XORs every
// preceding byte to zero; an ATR with no TDi at all never needs one
// and is always Valid().
func TestValidIffTCKInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		announceT1 := rapid.Bool().Draw(t, "announceT1")
		historicalCount := rapid.IntRange(0, 5).Draw(t, "historicalCount")
		historical := make([]byte, historicalCount)
		for i := range historical {
			historical[i] = byte(rapid.IntRange(0, 255).Draw(t, "h"))
		}
		corrupt := rapid.Bool().Draw(t, "corrupt")

		p := NewParser()
		push := func(b byte) {
			if err := p.PushByte(b); err != nil {
				t.Fatalf("PushByte(%#x): %v", b, err)
			}
		}
		push(0x3B) // TS

		var t0 byte = byte(historicalCount)
		if announceT1 {
			t0 |= 0x80 // TD1 present
		}
		push(t0)

		var td1 byte
		if announceT1 {
			td1 = 0x01 // T=1, no further chained group
			push(td1)
		}

		for _, h := range historical {
			push(h)
		}

		if !p.NeedsTCK() {
			if announceT1 {
				t.Fatal("TD1 announcing T=1 must require TCK")
			}
			if !p.Completed() || !p.Valid() {
				t.Fatal("ATR announcing only T=0 should complete valid without a TCK")
			}
			return
		}

		tck := t0
		if announceT1 {
			tck ^= td1
		}
		for _, h := range historical {
			tck ^= h
		}
		if corrupt {
			tck ^= 0x01
		}
		push(tck)

		if !p.Completed() {
			t.Fatal("expected Completed after TCK")
		}
		if p.Valid() == corrupt {
			t.Fatalf("Valid() = %v, want %v (corrupt=%v)", p.Valid(), !corrupt, corrupt)
		}
	})
}

func TestPushByteAfterCompleteIsError(t *testing.T) {
	p := NewParser()
	pushAll(t, p, []byte{0x3B, 0x00})
	require.ErrorIs(t, p.PushByte(0x00), ErrAlreadyComplete)
}
