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
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-lin/clock"
	"github.com/ZaparooProject/go-lin/internal/frame"
)

// traceDepth is the number of wire operations kept per transaction; a
// transaction makes at most a break write, a frame write and one read.
const traceDepth = 8

// Option is a functional option for New
type Option func(*Engine) error

// WithConfig sets the line parameters and timing policy
func WithConfig(cfg Config) Option {
	return func(e *Engine) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		e.config = cfg
		return nil
	}
}

// WithClock sets the time source. The default is the system monotonic clock.
func WithClock(c Clock) Option {
	return func(e *Engine) error {
		if c == nil {
			return errors.New("clock is nil")
		}
		e.clock = c
		return nil
	}
}

// WithIndicator sets the activity indicator driven during transactions
func WithIndicator(ind Indicator) Option {
	return func(e *Engine) error {
		if ind == nil {
			ind = nopIndicator{}
		}
		e.indicator = ind
		return nil
	}
}

// WithName labels the engine in debug output and wire traces
func WithName(name string) Option {
	return func(e *Engine) error {
		e.name = name
		return nil
	}
}

// New creates an engine on transport t and sets the nominal line rate.
func New(t Transport, opts ...Option) (*Engine, error) {
	if t == nil {
		return nil, errors.New("transport is nil")
	}
	e := &Engine{
		transport: t,
		clock:     clock.NewSystem(),
		indicator: nopIndicator{},
		config:    DefaultConfig(),
		name:      "lin",
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	e.trace = NewTraceBuffer(string(transportType(t)), e.name, traceDepth)
	if err := t.SetBaudRate(e.config.BaudRate); err != nil {
		return nil, fmt.Errorf("set baud rate %d: %w", e.config.BaudRate, err)
	}
	return e, nil
}

// Request describes one transaction.
type Request struct {
	// Data is sent by the master for a MasterRequest and ignored otherwise.
	Data []byte
	// Length is the number of data bytes expected from the slave for a
	// SlaveResponse and ignored otherwise.
	Length int
	// Direction selects who sends the data part of the frame.
	Direction Direction
	// Checksum selects the checksum model of the frame.
	Checksum ChecksumMode
	// ID is the unprotected 6-bit frame identifier.
	ID byte
}

// Request starts a transaction and sends the break. It returns ErrorState
// without touching the transaction in flight when the engine is busy, and a
// wrapped ErrInvalidID or ErrDataTooLarge for a malformed request. Transport
// failures while sending the break do not reject the request; they end the
// transaction with ErrorTransport, visible through Result.
func (e *Engine) Request(req Request) error {
	if e.state == StateBreak || e.state == StateBody {
		debugStep(e.name, "request for id=0x%02X rejected, engine in %s", req.ID, e.state)
		return ErrorState
	}

	var buf [frame.MaxFrameLen]byte
	tx, rxLen, err := frame.BuildRequest(buf[:], req.ID, req.Data, req.Length, req.Direction, req.Checksum)
	if err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}

	e.txBuf = buf
	e.tx = e.txBuf[:len(tx)]
	e.rxLen = rxLen
	e.rx = nil
	e.req = req
	e.req.Data = nil
	e.state = StateIdle
	e.errors = 0
	e.err = nil
	e.ioErr = nil
	e.slowed = false
	e.elapsed = 0
	e.timing = e.config.timing(rxLen)
	e.trace.Clear()
	e.timeStart = e.clock.Now()
	e.timeBreak = e.timeStart

	e.sendBreak()
	return nil
}

// Poll advances the transaction by at most one step and returns the new
// state. It never blocks; in IDLE and DONE it does nothing.
func (e *Engine) Poll() State {
	switch e.state {
	case StateBreak:
		e.sendFrame()
	case StateBody:
		e.receiveFrame()
	case StateIdle, StateDone:
	}
	return e.state
}

// Result is the outcome of the last transaction.
type Result struct {
	err error
	// Data holds the data bytes of a slave response.
	Data []byte
	// Raw holds every byte read back from the bus, echo included.
	Raw []byte
	// Elapsed is the time from Request to DONE.
	Elapsed   time.Duration
	Direction Direction
	State     State
	Errors    ErrorMask
	ID        byte
}

// Err returns nil for a successful transaction. Otherwise it returns a
// *TraceableError wrapping the error mask and any transport error.
func (r Result) Err() error {
	return r.err
}

// OK reports whether the transaction finished without errors.
func (r Result) OK() bool {
	return r.State == StateDone && r.Errors == 0
}

// Result returns the outcome of the last transaction. Data and Raw are only
// set once the state is DONE and the expected bytes were read.
func (e *Engine) Result() Result {
	r := Result{
		State:     e.state,
		Errors:    e.errors,
		ID:        e.req.ID,
		Direction: e.req.Direction,
	}
	if e.state != StateDone {
		return r
	}
	r.err = e.err
	r.Elapsed = e.elapsed
	if e.rx != nil {
		r.Raw = append([]byte(nil), e.rx...)
		if e.req.Direction == SlaveResponse {
			r.Data = append([]byte{}, frame.ResponseData(e.rx)...)
		}
	}
	return r
}

// Reset abandons any transaction in flight and returns to IDLE. If the
// engine was left at the break rate, the nominal rate is restored.
func (e *Engine) Reset() error {
	err := e.restoreBaud()
	e.indicator.SetTx(false)
	e.indicator.SetRx(false)
	e.state = StateIdle
	e.errors = 0
	e.err = nil
	e.ioErr = nil
	e.rx = nil
	e.trace.Clear()
	return err
}

// State returns the current protocol state
func (e *Engine) State() State {
	return e.state
}

// Timing returns the timing derived for the current transaction
func (e *Engine) Timing() Timing {
	return e.timing
}

// Config returns the engine configuration
func (e *Engine) Config() Config {
	return e.config
}

// BaudRate returns the nominal line rate
func (e *Engine) BaudRate() int {
	return e.config.BaudRate
}

// Name returns the engine label
func (e *Engine) Name() string {
	return e.name
}
