// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package lin

import (
	"fmt"
	"time"

	"github.com/ZaparooProject/go-lin/internal/frame"
)

// State is the protocol state of an Engine.
type State uint8

const (
	// StateIdle means no transaction is in flight.
	StateIdle State = iota
	// StateBreak means the break byte went out at half rate and the engine is
	// waiting for it to clear the wire.
	StateBreak
	// StateBody means the rest of the frame went out and the engine is
	// waiting for the echo or the slave response.
	StateBody
	// StateDone means the transaction finished, with or without errors.
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateBreak:
		return "BREAK"
	case StateBody:
		return "BODY"
	case StateDone:
		return "DONE"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Engine is the master side of one LIN bus.
//
// Thread Safety: Engine is NOT thread-safe and never blocks. It must be
// driven from a single goroutine that calls Poll until the transaction
// reaches StateDone.
type Engine struct {
	transport Transport
	clock     Clock
	indicator Indicator
	trace     *TraceBuffer
	err       error
	ioErr     error
	name      string
	tx        []byte
	rx        []byte
	config    Config
	timing    Timing
	req       Request
	timeStart time.Duration
	timeBreak time.Duration
	elapsed   time.Duration
	rxLen     int
	txBuf     [frame.MaxFrameLen]byte
	rxBuf     [frame.MaxFrameLen]byte
	state     State
	errors    ErrorMask
	slowed    bool
}

// sendBreak performs IDLE -> BREAK: drop stale input, halve the line rate
// and write the break byte.
func (e *Engine) sendBreak() {
	if e.state != StateIdle {
		e.misuse("sendBreak")
		return
	}

	e.indicator.SetTx(true)
	if err := e.transport.Flush(); err != nil {
		e.failIO("flush", err)
		return
	}
	if err := e.transport.DiscardInput(); err != nil {
		e.failIO("discard input", err)
		return
	}

	e.slowed = true
	if err := e.transport.SetBaudRate(e.config.BaudRate >> 1); err != nil {
		e.failIO("set break baud rate", err)
		return
	}

	e.state = StateBreak
	if err := e.write(e.tx[:1]); err != nil {
		e.failIO("write break", err)
		return
	}
	e.timeBreak = e.clock.Now()
	e.trace.RecordTX(e.tx[:1], fmt.Sprintf("break @ %d baud", e.config.BaudRate>>1))
	debugStep(e.name, "break sent, id=0x%02X %s", e.req.ID, e.req.Direction)
}

// sendFrame performs BREAK -> BODY once the break has had time to clear the
// wire: restore the nominal rate and write SYNC, PID and any master data.
func (e *Engine) sendFrame() {
	if e.state != StateBreak {
		e.misuse("sendFrame")
		return
	}

	now := e.clock.Now()
	if now-e.timeBreak <= e.timing.BreakDuration {
		e.checkTimeout(now, "break not cleared")
		return
	}

	e.slowed = false
	if err := e.transport.SetBaudRate(e.config.BaudRate); err != nil {
		e.failIO("restore baud rate", err)
		return
	}
	if err := e.write(e.tx[1:]); err != nil {
		e.failIO("write frame", err)
		return
	}
	e.trace.RecordTX(e.tx[1:], "")
	e.indicator.SetTx(false)
	e.indicator.SetRx(true)
	e.state = StateBody
	debugStep(e.name, "frame sent after %v, awaiting %d bytes", now-e.timeBreak, e.rxLen)
}

// receiveFrame performs BODY -> DONE once the expected bytes are buffered.
func (e *Engine) receiveFrame() {
	if e.state != StateBody {
		e.misuse("receiveFrame")
		return
	}

	n, err := e.transport.BytesAvailable()
	if err != nil {
		e.failIO("bytes available", err)
		return
	}
	if n < e.rxLen {
		e.checkTimeout(e.clock.Now(), fmt.Sprintf("%d of %d bytes received", n, e.rxLen))
		return
	}

	rx := e.rxBuf[:e.rxLen]
	if err := e.transport.ReadExactly(rx); err != nil {
		e.failIO("read response", err)
		return
	}
	e.rx = rx
	e.trace.RecordRX(rx, "")
	e.errors |= ErrorMask(frame.ValidateResponse(e.tx, rx, e.req.Direction, e.req.Checksum))
	e.finish()
}

func (e *Engine) checkTimeout(now time.Duration, note string) {
	if now-e.timeStart <= e.timing.Timeout {
		return
	}
	e.trace.RecordTimeout(note)
	e.errors |= ErrorTimeout
	e.finish()
}

func (e *Engine) misuse(step string) {
	debugStep(e.name, "%s called in state %s", step, e.state)
	e.errors |= ErrorState
	e.complete()
}

func (e *Engine) write(p []byte) error {
	n, err := e.transport.Write(p)
	if err != nil {
		return err
	}
	if n != len(p) {
		return fmt.Errorf("%w: short write %d of %d bytes", ErrTransportWrite, n, len(p))
	}
	return nil
}

func (e *Engine) failIO(op string, err error) {
	e.errors |= ErrorTransport
	if e.ioErr == nil {
		e.ioErr = fmt.Errorf("%s: %w", op, err)
	}
	e.trace.RecordTX(nil, "I/O error: "+op)
	e.finish()
}

// restoreBaud puts the line back to the nominal rate after an aborted break.
func (e *Engine) restoreBaud() error {
	if !e.slowed {
		return nil
	}
	e.slowed = false
	if err := e.transport.SetBaudRate(e.config.BaudRate); err != nil {
		return fmt.Errorf("restore baud rate: %w", err)
	}
	return nil
}

func (e *Engine) finish() {
	if err := e.restoreBaud(); err != nil {
		e.errors |= ErrorTransport
		if e.ioErr == nil {
			e.ioErr = err
		}
	}
	e.complete()
}

// complete moves to DONE and builds the result error. It does not touch the
// transport.
func (e *Engine) complete() {
	e.indicator.SetTx(false)
	e.indicator.SetRx(false)
	e.state = StateDone
	e.elapsed = e.clock.Now() - e.timeStart

	if e.errors == 0 {
		e.err = nil
		debugStep(e.name, "done in %v", e.elapsed)
		return
	}

	var cause error = e.errors
	if e.ioErr != nil {
		cause = fmt.Errorf("%w: %w", e.errors, e.ioErr)
	}
	e.err = e.trace.WrapError(cause)
	debugStep(e.name, "done in %v with %s", e.elapsed, e.errors.String())
}
