// Package byteutil holds the small, dependency-free byte-level helpers
// shared by the decoder, atr, pps and t1 packages: MSB/LSB bit reversal,
// even-parity lookup, and hex rendering.
package byteutil

import "fmt"

// Reverse8 reverses the bit order of b (bit 7 <-> bit 0, bit 6 <-> bit 1,
// ...). Used to translate a DIRECT-convention byte sampled MSB-first on
// the wire into its logical LSB-first value.
//
// Reverse8(Reverse8(x)) == x for every x.
func Reverse8(b byte) byte {
	b = (b&0xF0)>>4 | (b&0x0F)<<4
	b = (b&0xCC)>>2 | (b&0x33)<<2
	b = (b&0xAA)>>1 | (b&0x55)<<1
	return b
}

// parityTable[b] is true iff b has an even number of set bits.
var parityTable [256]bool

func init() {
	for i := 0; i < 256; i++ {
		parityTable[i] = evenParity(byte(i))
	}
}

func evenParity(b byte) bool {
	count := 0
	for b != 0 {
		count += int(b & 1)
		b >>= 1
	}
	return count%2 == 0
}

// EvenParity reports whether data has an even number of set bits.
func EvenParity(data byte) bool {
	return parityTable[data]
}

// HexByte renders b as two uppercase hex digits with no leading "0x",
// e.g. "3B", matching the teacher/original convention of rendering
// interface-byte tokens as "NAME(XXh)".
func HexByte(b byte) string {
	return fmt.Sprintf("%02X", b)
}

// Token renders name and value as "name(XXh)", the rendering used
// throughout the original ATR/T=1 ToString() implementations.
func Token(name string, value byte) string {
	return fmt.Sprintf("%s(%sh)", name, HexByte(value))
}
