// Command iso7816decode decodes an ISO 7816-3 asynchronous smart-card
// session from four logic-analyzer channels (I/O, RST, Vcc, CLK) and
// prints the resulting ATR, PPS negotiation and T=0/T=1 traffic as
// text.
//
// Grounded on awmorgan-OpenCSD's cmd/trc_pkt_lister: a small flag set,
// a loaded Config, and a decode loop that writes through a
// text-rendering Sink. This binary has no real acquisition-hardware
// input path (channel acquisition is out of scope, see
// SPEC_FULL.md §1); -demo runs a built-in synthetic capture
// through the same orchestrator a real capture would use, so the
// whole pipeline can be exercised without one.
package main

import (
	"context"
	"fmt"
	"os"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/augustyn-net/iso7816-logic-decoder/byteutil"
	"github.com/augustyn-net/iso7816-logic-decoder/channel"
	"github.com/augustyn-net/iso7816-logic-decoder/config"
	"github.com/augustyn-net/iso7816-logic-decoder/logging"
	"github.com/augustyn-net/iso7816-logic-decoder/orchestrator"
	"github.com/augustyn-net/iso7816-logic-decoder/printer"
	"github.com/augustyn-net/iso7816-logic-decoder/simio"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := pflag.NewFlagSet("iso7816decode", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "path to a capture config YAML file (defaults built in if omitted)")
	demo := fs.Bool("demo", false, "decode a built-in synthetic capture instead of reading live channels")
	verbose := fs.BoolP("verbose", "v", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		cfg = loaded
	}

	level := charmlog.InfoLevel
	if *verbose {
		level = charmlog.DebugLevel
	}
	log := logging.New(os.Stderr, level)

	if !*demo {
		fmt.Fprintln(os.Stderr, "iso7816decode: no live acquisition backend is wired in this build; pass -demo")
		return 2
	}

	io, reset, vcc, clk := buildDemoCapture(cfg)
	out := printer.New(os.Stdout)
	orch := orchestrator.New(io, reset, vcc, clk, out, cfg, log)

	if err := orch.RunOnce(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

// buildDemoCapture synthesizes a direct-convention, T=0, default-ETU
// session: a cold reset, TS, a minimal ATR, and two transmission
// bytes, using the same simio.Builder the test suite exercises.
func buildDemoCapture(cfg config.Config) (io, reset, vcc, clk channel.Provider) {
	const etu = 372

	b := simio.NewBuilder()
	b.HoldResetLow(200)
	b.IdleCycles(cfg.MaxColdResetCycles + 50)

	b.PushRawByte(0xDC, true, etu) // TS, direct convention

	t0Raw, t0Parity := directRaw(0x00) // T0: no interface bytes, no historical bytes
	b.PushRawByte(t0Raw, t0Parity, etu)

	byte1Raw, byte1Parity := directRaw(0xA0)
	b.PushRawByte(byte1Raw, byte1Parity, etu)

	byte2Raw, byte2Parity := directRaw(0x3F)
	b.PushRawByte(byte2Raw, byte2Parity, etu)

	return b.Build()
}

// directRaw returns the raw, MSB-first wire byte a direct-convention
// session carries for logical value v, along with its correct
// even-parity bit.
func directRaw(v byte) (raw byte, parityBit bool) {
	raw = byteutil.Reverse8(v)
	parityBit = !byteutil.EvenParity(raw)
	return
}
