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

// Package testing provides a virtual LIN bus for exercising the engine and
// the tools built on it without hardware.
//
// The VirtualBus implements lin.Transport and models the wire byte by byte:
// every written byte occupies the line for one byte period at the current
// baud rate, is echoed back once it has been sent, and virtual slaves answer
// headers after the identifier byte has crossed the wire. Time comes from a
// lin.Clock, normally a clock.Manual, so tests are reproducible.
package testing

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	lin "github.com/ZaparooProject/go-lin"
	"github.com/ZaparooProject/go-lin/internal/frame"
	"github.com/ZaparooProject/go-lin/internal/syncutil"
)

// ErrShortRead is returned by ReadExactly when fewer bytes have arrived than requested.
var ErrShortRead = errors.New("virtual bus: not enough bytes received")

// JitterConfig adds random delay to bytes arriving from the bus, the way a
// USB-UART bridge batches them.
type JitterConfig struct {
	// MaxDelay bounds the extra delay added to each received byte.
	MaxDelay time.Duration
	// Seed makes the delays reproducible. Zero picks a random seed.
	Seed uint64
}

type parserState int

const (
	waitBreak parserState = iota
	waitSync
	waitPID
	waitBody
)

type timedByte struct {
	at time.Duration
	b  byte
}

// VirtualBus is a simulated single-wire LIN bus seen from the master's UART.
type VirtualBus struct {
	clock         lin.Clock
	rng           *rand.Rand
	listener      *VirtualSlave
	slaves        []*VirtualSlave
	rx            []timedByte
	body          []byte
	jitter        JitterConfig
	responseSpace time.Duration
	lineFree      time.Duration
	mu            syncutil.Mutex
	nominal       int
	baud          int
	bitsPerByte   int
	bodyLen       int
	parser        parserState
	pid           byte
	collideNext   bool
	closed        bool
}

// NewVirtualBus creates a bus running at nominal baud. clk is shared with
// the engine under test.
func NewVirtualBus(clk lin.Clock, nominal int) *VirtualBus {
	return &VirtualBus{
		clock:       clk,
		nominal:     nominal,
		baud:        nominal,
		bitsPerByte: 10,
	}
}

// AddSlave attaches a slave node to the bus.
func (v *VirtualBus) AddSlave(s *VirtualSlave) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.slaves = append(v.slaves, s)
}

// RemoveAllSlaves detaches every slave; headers then go unanswered.
func (v *VirtualBus) RemoveAllSlaves() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.slaves = nil
}

// SetJitter configures random delays on received bytes.
func (v *VirtualBus) SetJitter(cfg JitterConfig) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.jitter = cfg
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64() //nolint:gosec // Test code, not crypto
	}
	v.rng = rand.New(rand.NewPCG(seed, seed^0xDEADBEEF)) //nolint:gosec // Test code, not crypto
}

// SetResponseSpace sets the gap between the end of a header and the first
// response byte of a slave.
func (v *VirtualBus) SetResponseSpace(d time.Duration) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.responseSpace = d
}

// InjectCollision makes the master read back a different identifier byte
// than it sent, as if another node drove the bus at the same time. Slaves
// still see the identifier the master sent.
func (v *VirtualBus) InjectCollision() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.collideNext = true
}

// Close makes every further call fail with lin.ErrTransportClosed.
func (v *VirtualBus) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	return nil
}

// Type implements lin.TransportTyper
func (*VirtualBus) Type() lin.TransportType {
	return lin.TransportVirtual
}

// Flush implements lin.Transport. Bytes go on the wire as soon as they are written.
func (v *VirtualBus) Flush() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return lin.ErrTransportClosed
	}
	return nil
}

// DiscardInput implements lin.Transport. Bytes still in flight are kept.
func (v *VirtualBus) DiscardInput() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return lin.ErrTransportClosed
	}
	now := v.clock.Now()
	kept := v.rx[:0]
	for _, tb := range v.rx {
		if tb.at > now {
			kept = append(kept, tb)
		}
	}
	v.rx = kept
	return nil
}

// SetBaudRate implements lin.Transport
func (v *VirtualBus) SetBaudRate(baud int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return lin.ErrTransportClosed
	}
	if baud <= 0 {
		return fmt.Errorf("virtual bus: invalid baud rate %d", baud)
	}
	v.baud = baud
	return nil
}

// BytesAvailable implements lin.Transport
func (v *VirtualBus) BytesAvailable() (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return 0, lin.ErrTransportClosed
	}
	return v.arrived(v.clock.Now()), nil
}

// ReadExactly implements lin.Transport
func (v *VirtualBus) ReadExactly(p []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return lin.ErrTransportClosed
	}
	if v.arrived(v.clock.Now()) < len(p) {
		return ErrShortRead
	}
	for i := range p {
		p[i] = v.rx[i].b
	}
	v.rx = v.rx[len(p):]
	return nil
}

// Write implements lin.Transport. Each byte is scheduled on the wire after
// the previous one and echoed when it has been sent.
func (v *VirtualBus) Write(p []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return 0, lin.ErrTransportClosed
	}

	period := v.period(v.baud)
	start := max(v.clock.Now(), v.lineFree)
	for _, b := range p {
		end := start + period
		v.receive(b, end)
		start = end
	}
	v.lineFree = max(v.lineFree, start)
	return len(p), nil
}

// receive runs one byte sent by the master through the slave-side parser
// and schedules its echo. end is when the byte has left the wire.
func (v *VirtualBus) receive(b byte, end time.Duration) {
	echo := b
	// A byte sent at half rate or slower holds the line low long enough to
	// be seen as a break by every node.
	if v.baud*2 <= v.nominal {
		if b == frame.BreakByte {
			v.parser = waitSync
		} else {
			v.parser = waitBreak
		}
		v.push(echo, end)
		return
	}

	switch v.parser {
	case waitBreak:
	case waitSync:
		if b == frame.SyncByte {
			v.parser = waitPID
		} else {
			v.parser = waitBreak
		}
	case waitPID:
		if v.collideNext {
			echo ^= 0x01
			v.collideNext = false
		}
		v.header(b, end)
	case waitBody:
		v.body = append(v.body, b)
		if len(v.body) == v.bodyLen+1 {
			v.listener.deliver(v.pid, v.body)
			v.listener = nil
			v.parser = waitBreak
		}
	}
	v.push(echo, end)
}

// header handles the identifier byte as the slaves saw it.
func (v *VirtualBus) header(pid byte, end time.Duration) {
	v.parser = waitBreak
	if frame.ProtectedID(pid&frame.MaxID) != pid {
		return
	}
	v.pid = pid

	for _, s := range v.slaves {
		if resp := s.response(pid); resp != nil {
			v.respond(resp, end)
			return
		}
	}
	for _, s := range v.slaves {
		if n := s.listens(pid); n >= 0 {
			v.listener = s
			v.bodyLen = n
			v.body = v.body[:0]
			v.parser = waitBody
			return
		}
	}
}

// respond schedules a slave response after the header ending at end. Slaves
// always send at the nominal rate.
func (v *VirtualBus) respond(resp []byte, end time.Duration) {
	period := v.period(v.nominal)
	at := end + v.responseSpace
	for _, b := range resp {
		at += period
		v.push(b, at)
	}
	v.lineFree = max(v.lineFree, at)
}

func (v *VirtualBus) push(b byte, at time.Duration) {
	if v.rng != nil && v.jitter.MaxDelay > 0 {
		at += time.Duration(v.rng.Int64N(int64(v.jitter.MaxDelay) + 1))
	}
	// Bytes arrive in order even when jitter would reorder them.
	if n := len(v.rx); n > 0 && v.rx[n-1].at > at {
		at = v.rx[n-1].at
	}
	v.rx = append(v.rx, timedByte{at: at, b: b})
}

func (v *VirtualBus) arrived(now time.Duration) int {
	n := 0
	for n < len(v.rx) && v.rx[n].at <= now {
		n++
	}
	return n
}

func (v *VirtualBus) period(baud int) time.Duration {
	return time.Duration(v.bitsPerByte) * time.Second / time.Duration(baud)
}
