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

// Package gpio drives the bus activity LEDs of a LIN master from GPIO pins
// through periph.io. It implements lin.Indicator.
package gpio

import (
	"fmt"

	lin "github.com/ZaparooProject/go-lin"
	"github.com/ZaparooProject/go-lin/internal/syncutil"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// LEDs lights one pin while the master transmits and another while it waits
// for the bus to answer. Either pin may be absent.
type LEDs struct {
	tx        gpio.PinOut
	rx        gpio.PinOut
	mu        syncutil.Mutex
	activeLow bool
}

// Open initializes the host drivers and looks up the named pins, for
// example "GPIO17". An empty name leaves that LED out.
func Open(txName, rxName string, activeLow bool) (*LEDs, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	tx, err := lookup(txName)
	if err != nil {
		return nil, err
	}
	rx, err := lookup(rxName)
	if err != nil {
		return nil, err
	}
	return New(tx, rx, activeLow)
}

func lookup(name string) (gpio.PinOut, error) {
	if name == "" {
		return nil, nil
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("GPIO pin %q not found", name)
	}
	return pin, nil
}

// New wraps already opened pins and turns both LEDs off.
func New(tx, rx gpio.PinOut, activeLow bool) (*LEDs, error) {
	l := &LEDs{tx: tx, rx: rx, activeLow: activeLow}
	if err := l.set(l.tx, false); err != nil {
		return nil, fmt.Errorf("TX LED: %w", err)
	}
	if err := l.set(l.rx, false); err != nil {
		return nil, fmt.Errorf("RX LED: %w", err)
	}
	return l, nil
}

// SetTx implements lin.Indicator
func (l *LEDs) SetTx(on bool) {
	if err := l.set(l.tx, on); err != nil {
		lin.Debugf("TX LED: %v", err)
	}
}

// SetRx implements lin.Indicator
func (l *LEDs) SetRx(on bool) {
	if err := l.set(l.rx, on); err != nil {
		lin.Debugf("RX LED: %v", err)
	}
}

// Off turns both LEDs off
func (l *LEDs) Off() error {
	if err := l.set(l.tx, false); err != nil {
		return err
	}
	return l.set(l.rx, false)
}

func (l *LEDs) set(pin gpio.PinOut, on bool) error {
	if pin == nil {
		return nil
	}
	level := gpio.Level(on != l.activeLow)

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := pin.Out(level); err != nil {
		return fmt.Errorf("set %s %s: %w", pin, level, err)
	}
	return nil
}
