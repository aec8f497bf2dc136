// Package orchestrator drives one continuous capture: discovering cold
// resets, measuring the session's ETU off the TS start bit, handing
// every subsequent character to a session.Supervisor, and recovering
// from the typed decoder/session errors by unwinding back to RST
// discovery.
//
// Grounded on original_source/source/iso7816Analyzer.cpp's
// _WorkerThread: the same RST-high wait, cold-reset idle wait, TS
// falling-edge search with ETU validation, and inner per-character loop
// that treats a RST transition as always restarting the whole
// discovery sequence.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/augustyn-net/iso7816-logic-decoder/channel"
	"github.com/augustyn-net/iso7816-logic-decoder/config"
	"github.com/augustyn-net/iso7816-logic-decoder/decoder"
	"github.com/augustyn-net/iso7816-logic-decoder/logging"
	"github.com/augustyn-net/iso7816-logic-decoder/session"
)

// Orchestrator is the top-level driver: it owns a BitDecoder over the
// four signal channels and a session.Supervisor, and reports every
// decoded element to a channel.Sink.
type Orchestrator struct {
	bd  *decoder.BitDecoder
	sup *session.Supervisor
	cfg config.Config
	log logging.Logger
}

// New constructs an Orchestrator. log may be nil, in which case a
// no-op logger is used.
func New(io, reset, vcc, clk channel.Provider, sink channel.Sink, cfg config.Config, log logging.Logger) *Orchestrator {
	if log == nil {
		log = logging.NoOp()
	}
	return &Orchestrator{
		bd:  decoder.New(io, reset, vcc, clk, log),
		sup: session.NewSupervisor(sink),
		cfg: cfg,
		log: log,
	}
}

// Run drives the capture until ctx is cancelled; it does not return
// when the underlying channels run out of transitions. It never returns
// a non-nil error for protocol-level problems (bad ETU, parity errors,
// malformed frames): those are logged and recovered from by restarting
// discovery at the next RST edge. It returns ctx.Err() once cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := o.awaitSession(ctx); err != nil {
			if err == context.Canceled || err == context.DeadlineExceeded {
				return err
			}
			o.log.Warn("session discovery failed, restarting", "error", err)
		}
	}
}

// RunOnce drives exactly one session to completion (through RST
// discovery, TS/ETU measurement, and Transmission until RST or the
// channels are exhausted), then returns. Useful for one-shot tools
// that decode a single fixed capture rather than a live, indefinite
// stream.
func (o *Orchestrator) RunOnce(ctx context.Context) error {
	return o.awaitSession(ctx)
}

// awaitSession waits for RST to go high, measures the ETU off the next
// TS start bit, and then drives characters into the session supervisor
// until a reset or an unrecoverable decoder error ends the session.
func (o *Orchestrator) awaitSession(ctx context.Context) error {
	for {
		_, high := o.bd.SeekResetEdge()
		if high {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	if _, err := o.bd.SkipClkCycles(o.cfg.MaxColdResetCycles); err != nil {
		return fmt.Errorf("cold reset wait: %w", err)
	}

	fallingEdge, err := o.bd.SeekIoFallingEdge()
	if err != nil {
		return fmt.Errorf("TS search: %w", err)
	}
	o.sup.Sink().EmitMarker(channel.IO, channel.MarkerDownArrow, fallingEdge)

	etu, err := o.bd.MeasureETU(fallingEdge)
	if err != nil {
		return fmt.Errorf("ETU measurement: %w", err)
	}
	o.sup.Sink().EmitMarker(channel.IO, channel.MarkerUpArrow, o.bd.IoPosition())
	if etu <= o.cfg.MinETU || etu >= o.cfg.MaxETU {
		return fmt.Errorf("measured ETU %d cycles outside acceptance window (%d,%d)", etu, o.cfg.MinETU, o.cfg.MaxETU)
	}

	o.sup.Reset()

	ts, end, err := o.bd.SampleCharacter(fallingEdge, etu, true, o.sup.Sink(), channel.IO)
	if err != nil {
		return fmt.Errorf("TS sample: %w", err)
	}
	if err := o.sup.PushByte(ts, fallingEdge, end); err != nil {
		o.log.Warn("TS rejected", "error", err)
		return err
	}

	return o.runTransmission(ctx, etu)
}

// runTransmission samples characters until a reset, a rejected
// character or the end of the capture ends the session. It samples at
// etu, the ETU measured on TS, until the supervisor's ETU differs from
// the value it held on entry (an ATR or PPS exchange changing it), and
// at the supervisor's ETU from then on. Each character's start bit is
// found by advancing I/O one edge at a time and checking the resulting
// level, resyncing on an OutOfSyncError rather than re-hunting for a
// falling edge the way the initial TS search does.
func (o *Orchestrator) runTransmission(ctx context.Context, etu int) error {
	sessionETU := o.sup.ETU()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		before := o.bd.IoPosition()
		pos, err := o.bd.AdvanceIo()
		if err != nil {
			if _, ok := err.(*decoder.ResetError); ok {
				o.log.Info("RST observed, restarting session discovery")
				return nil
			}
			return err
		}
		if pos == before {
			// The channel has no further transitions buffered: a live
			// acquisition would block here, but a finite source (a
			// fixture, or a closed capture) has genuinely ended.
			return nil
		}
		if !o.bd.CheckStartBit() {
			err := &decoder.OutOfSyncError{Pos: pos}
			o.sup.Sink().EmitMarker(channel.IO, channel.MarkerErrorDot, pos)
			o.log.Warn("expected start bit not found, resynchronizing", "error", err)
			continue
		}

		if cur := o.sup.ETU(); cur != sessionETU {
			sessionETU, etu = cur, cur
		}
		raw, end, err := o.bd.SampleCharacter(pos, etu, false, o.sup.Sink(), channel.IO)
		if err != nil {
			switch err.(type) {
			case *decoder.ResetError:
				o.log.Info("RST observed mid-character, restarting session discovery")
				return nil
			case *decoder.ParityError, *decoder.ErrorSignalError:
				o.log.Warn("character rejected, restarting session discovery", "error", err)
				return nil
			default:
				return err
			}
		}

		if err := o.sup.PushByte(raw, pos, end); err != nil {
			o.log.Warn("protocol error", "error", err)
		}
	}
}
