// Package printer renders decoded ISO 7816-3 elements as human-readable
// text, the channel.Sink a command-line tool wires up in place of a
// GUI's waveform view.
//
// Grounded on awmorgan-OpenCSD's printer package: one small format
// function per element kind, each producing a single aligned text
// line (plus an indented line each for a text frame's medium and
// detailed forms), with no intermediate buffering.
package printer

import (
	"fmt"
	"io"

	"github.com/augustyn-net/iso7816-logic-decoder/channel"
)

// Writer renders every decoded byte frame, text frame and marker as a
// line of text to an underlying io.Writer.
type Writer struct {
	w io.Writer
}

// New returns a Writer printing to w.
func New(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (p *Writer) EmitByteFrame(chl channel.Kind, name string, value byte, start, end channel.Position) {
	label := name
	if label == "" {
		label = "byte"
	}
	fmt.Fprintf(p.w, "[%8d-%8d] %-4s %-8s %02Xh\n", start, end, chl, label, value)
}

func (p *Writer) EmitTextFrame(chl channel.Kind, short, medium, detailed string, start, end channel.Position) {
	fmt.Fprintf(p.w, "[%8d-%8d] %-4s %s\n", start, end, chl, short)
	if medium != "" {
		fmt.Fprintf(p.w, "%30s%s\n", "", medium)
	}
	if detailed != "" {
		fmt.Fprintf(p.w, "%30s%s\n", "", detailed)
	}
}

func (p *Writer) EmitMarker(chl channel.Kind, kind channel.Marker, pos channel.Position) {
	fmt.Fprintf(p.w, "[%8d] %-4s marker %s\n", pos, chl, kind)
}
