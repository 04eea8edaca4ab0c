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
	"sync"
	"time"
)

// Transport is the byte-stream device the engine drives. Every method must
// return without waiting on the bus: Write queues bytes, BytesAvailable
// reports what has already been received, and ReadExactly is only called once
// BytesAvailable reports at least len(p) bytes.
//
// Implementations: transport/uart (serial port) and internal/testing
// (virtual bus).
type Transport interface {
	// Flush pushes any queued output towards the wire.
	Flush() error

	// DiscardInput drops received bytes that have not been read yet.
	DiscardInput() error

	// Write queues p for transmission.
	Write(p []byte) (int, error)

	// BytesAvailable reports how many received bytes can be read.
	BytesAvailable() (int, error)

	// ReadExactly fills p from the receive queue.
	ReadExactly(p []byte) error

	// SetBaudRate changes the line rate for bytes written afterwards without
	// reopening the link.
	SetBaudRate(baud int) error
}

// TransportType represents the type of transport
type TransportType string

const (
	// TransportUART represents a UART/serial transport.
	TransportUART TransportType = "uart"
	// TransportVirtual represents the simulated bus.
	TransportVirtual TransportType = "virtual"
	// TransportMock represents a mock transport for testing
	TransportMock TransportType = "mock"
)

// TransportTyper is implemented by transports that report their type. It is
// used to label wire traces.
type TransportTyper interface {
	Type() TransportType
}

func transportType(t Transport) TransportType {
	if typer, ok := t.(TransportTyper); ok {
		return typer.Type()
	}
	return "unknown"
}

// Clock is a monotonic time source with at least microsecond resolution.
// Values are only compared with each other.
type Clock interface {
	Now() time.Duration
}

// Indicator shows bus activity, typically on a pair of LEDs.
type Indicator interface {
	SetTx(on bool)
	SetRx(on bool)
}

type nopIndicator struct{}

func (nopIndicator) SetTx(bool) {}
func (nopIndicator) SetRx(bool) {}

// MockTransport is a scripted Transport for tests. Bytes queued with QueueRx
// become readable immediately; with echo enabled every write is also copied to
// the receive queue, like a transceiver on an idle bus.
type MockTransport struct {
	errorMap  map[string]error
	callCount map[string]int
	writes    [][]byte
	bauds     []int
	rx        []byte
	mu        sync.Mutex
	baud      int
	echo      bool
}

// NewMockTransport creates a new mock transport
func NewMockTransport() *MockTransport {
	return &MockTransport{
		errorMap:  make(map[string]error),
		callCount: make(map[string]int),
	}
}

// SetEcho makes every subsequent write readable as received bytes.
func (m *MockTransport) SetEcho(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.echo = on
}

// QueueRx appends bytes to the receive queue.
func (m *MockTransport) QueueRx(data ...byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rx = append(m.rx, data...)
}

// SetError injects an error for the named operation ("Flush", "DiscardInput",
// "Write", "BytesAvailable", "ReadExactly", "SetBaudRate"). A nil err clears it.
func (m *MockTransport) SetError(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.errorMap, op)
		return
	}
	m.errorMap[op] = err
}

// CallCount returns the number of times op was called
func (m *MockTransport) CallCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount[op]
}

// Writes returns a copy of every write, in order.
func (m *MockTransport) Writes() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.writes))
	for i, w := range m.writes {
		out[i] = append([]byte(nil), w...)
	}
	return out
}

// BaudChanges returns every rate passed to SetBaudRate, in order.
func (m *MockTransport) BaudChanges() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.bauds...)
}

// BaudRate returns the current line rate.
func (m *MockTransport) BaudRate() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.baud
}

// Reset clears the receive queue, the recorded calls and injected errors.
func (m *MockTransport) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMap = make(map[string]error)
	m.callCount = make(map[string]int)
	m.writes = nil
	m.bauds = nil
	m.rx = nil
}

// call records a call and returns the injected error for op, if any.
// Must be called with m.mu held.
func (m *MockTransport) call(op string) error {
	m.callCount[op]++
	return m.errorMap[op]
}

// Flush implements Transport
func (m *MockTransport) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.call("Flush")
}

// DiscardInput implements Transport
func (m *MockTransport) DiscardInput() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("DiscardInput"); err != nil {
		return err
	}
	m.rx = nil
	return nil
}

// Write implements Transport
func (m *MockTransport) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("Write"); err != nil {
		return 0, err
	}
	m.writes = append(m.writes, append([]byte(nil), p...))
	if m.echo {
		m.rx = append(m.rx, p...)
	}
	return len(p), nil
}

// BytesAvailable implements Transport
func (m *MockTransport) BytesAvailable() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("BytesAvailable"); err != nil {
		return 0, err
	}
	return len(m.rx), nil
}

// ReadExactly implements Transport
func (m *MockTransport) ReadExactly(p []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("ReadExactly"); err != nil {
		return err
	}
	if len(m.rx) < len(p) {
		return errors.New("mock: read past end of receive queue")
	}
	n := copy(p, m.rx)
	m.rx = m.rx[n:]
	return nil
}

// SetBaudRate implements Transport
func (m *MockTransport) SetBaudRate(baud int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("SetBaudRate"); err != nil {
		return err
	}
	m.baud = baud
	m.bauds = append(m.bauds, baud)
	return nil
}

// Type implements TransportTyper
func (*MockTransport) Type() TransportType {
	return TransportMock
}
