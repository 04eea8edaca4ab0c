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

// Package uart drives a LIN bus through a serial port with a LIN
// transceiver, such as a USB-LIN adapter or a UART wired to a TJA1020.
//
// The serial port is read by a background goroutine into a buffer, so the
// engine-facing methods never block on the bus. The break is produced by
// switching the port to half rate and writing 0x00.
package uart

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	lin "github.com/ZaparooProject/go-lin"
	"github.com/ZaparooProject/go-lin/internal/syncutil"
	"go.bug.st/serial"
)

// readChunk is the size of a single read from the port
const readChunk = 64

// Transport implements lin.Transport on a serial port.
type Transport struct {
	port     serial.Port
	readErr  error
	done     chan struct{}
	portName string
	rx       bytes.Buffer
	wg       sync.WaitGroup
	mu       syncutil.Mutex
	baud     int
	closed   bool
}

// isWindows returns true if running on Windows
func isWindows() bool {
	return runtime.GOOS == "windows"
}

// readPollTimeout returns how long a port read may block before the reader
// goroutine checks for shutdown. Windows drivers round short timeouts up, so
// it gets a longer one.
func readPollTimeout() time.Duration {
	if isWindows() {
		return 20 * time.Millisecond
	}
	return 5 * time.Millisecond
}

func lineMode(baud int) *serial.Mode {
	return &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// New opens portName at the given nominal baud rate and starts reading.
func New(portName string, baud int) (*Transport, error) {
	port, err := serial.Open(portName, lineMode(baud))
	if err != nil {
		return nil, openError(portName, err)
	}

	t, err := newTransport(port, portName, baud)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	lin.Debugf("UART %s opened at %d baud", portName, baud)
	return t, nil
}

// openError marks a missing port with lin.ErrDeviceNotFound. Open failures
// are permanent: retrying the same path rarely helps.
func openError(portName string, err error) error {
	var perr *serial.PortError
	if errors.Is(err, os.ErrNotExist) || (errors.As(err, &perr) && perr.Code() == serial.PortNotFound) {
		err = fmt.Errorf("%w: %w", lin.ErrDeviceNotFound, err)
	}
	return lin.NewTransportError("open", portName, err, lin.ErrorTypePermanent)
}

// newTransport wraps an already opened port.
func newTransport(port serial.Port, portName string, baud int) (*Transport, error) {
	if err := port.SetReadTimeout(readPollTimeout()); err != nil {
		return nil, fmt.Errorf("failed to set UART read timeout: %w", err)
	}

	t := &Transport{
		port:     port,
		portName: portName,
		baud:     baud,
		done:     make(chan struct{}),
	}
	t.wg.Add(1)
	go t.readLoop()
	return t, nil
}

// readLoop moves received bytes into the receive buffer until Close is
// called or the port fails.
func (t *Transport) readLoop() {
	defer t.wg.Done()
	buf := make([]byte, readChunk)

	for {
		select {
		case <-t.done:
			return
		default:
		}

		n, err := t.port.Read(buf)
		if n > 0 {
			t.mu.Lock()
			_, _ = t.rx.Write(buf[:n])
			t.mu.Unlock()
		}
		if err == nil {
			continue
		}
		if isInterruptedSystemCall(err) {
			continue
		}

		t.mu.Lock()
		if !t.closed {
			t.readErr = lin.NewTransportError("read", t.portName, err, errorType(err))
			lin.Debugf("UART %s reader stopped: %v", t.portName, err)
		}
		t.mu.Unlock()
		return
	}
}

func errorType(err error) lin.ErrorType {
	if lin.IsFatal(err) {
		return lin.ErrorTypePermanent
	}
	return lin.ErrorTypeTransient
}

// Flush waits until queued output has been transmitted.
func (t *Transport) Flush() error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	return t.drainWithRetry("flush")
}

// DiscardInput drops everything received so far.
func (t *Transport) DiscardInput() error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	if err := t.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("UART reset input buffer failed: %w", err)
	}
	t.mu.Lock()
	t.rx.Reset()
	t.mu.Unlock()
	return nil
}

// Write hands p to the serial driver.
func (t *Transport) Write(p []byte) (int, error) {
	if err := t.checkOpen(); err != nil {
		return 0, err
	}
	n, err := t.port.Write(p)
	if err != nil {
		return n, lin.NewTransportError("write", t.portName, err, errorType(err))
	}
	if n != len(p) {
		return n, lin.NewTransportWriteError("write", t.portName)
	}
	return n, nil
}

// BytesAvailable reports buffered received bytes. A failed reader is
// reported here, since this is what the engine polls.
func (t *Transport) BytesAvailable() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, lin.ErrTransportClosed
	}
	if t.readErr != nil {
		return 0, t.readErr
	}
	return t.rx.Len(), nil
}

// ReadExactly takes len(p) bytes from the receive buffer.
func (t *Transport) ReadExactly(p []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return lin.ErrTransportClosed
	}
	if t.rx.Len() < len(p) {
		return fmt.Errorf("%d of %d bytes buffered: %w", t.rx.Len(), len(p), lin.NewTransportReadError("read", t.portName))
	}
	_, _ = t.rx.Read(p)
	return nil
}

// SetBaudRate reconfigures the line rate without reopening the port.
func (t *Transport) SetBaudRate(baud int) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	if err := t.port.SetMode(lineMode(baud)); err != nil {
		return lin.NewTransportError("set baud rate", t.portName, err, errorType(err))
	}
	t.mu.Lock()
	t.baud = baud
	t.mu.Unlock()
	return nil
}

// BaudRate returns the rate last set on the port
func (t *Transport) BaudRate() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.baud
}

// Close stops the reader and closes the port
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	close(t.done)
	err := t.port.Close()
	t.wg.Wait()
	lin.Debugf("UART %s closed", t.portName)
	if err != nil {
		return fmt.Errorf("UART close failed: %w", err)
	}
	return nil
}

// Type returns the transport type
func (*Transport) Type() lin.TransportType {
	return lin.TransportUART
}

// PortName returns the serial port path
func (t *Transport) PortName() string {
	return t.portName
}

func (t *Transport) checkOpen() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return lin.ErrTransportClosed
	}
	return nil
}

// isInterruptedSystemCall checks if an error is caused by an interrupted system call
func isInterruptedSystemCall(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "interrupted system call") ||
		strings.Contains(errStr, "eintr")
}

// drainWithRetry performs port drain with retry logic for interrupted system calls
func (t *Transport) drainWithRetry(operation string) error {
	const maxRetries = 3
	var lastErr error

	for range maxRetries {
		err := t.port.Drain()
		if err == nil {
			return nil
		}
		if !isInterruptedSystemCall(err) {
			return fmt.Errorf("UART %s drain failed: %w", operation, err)
		}
		lastErr = err
	}

	return lin.NewTransportError(operation, t.portName,
		fmt.Errorf("%w: drain interrupted %d times: %v", lin.ErrTransportTimeout, maxRetries, lastErr),
		lin.ErrorTypeTimeout)
}
