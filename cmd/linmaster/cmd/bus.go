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

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	lin "github.com/ZaparooProject/go-lin"
	"github.com/ZaparooProject/go-lin/clock"
	"github.com/ZaparooProject/go-lin/detection"
	_ "github.com/ZaparooProject/go-lin/detection/uart"
	"github.com/ZaparooProject/go-lin/indicator/gpio"
	lintest "github.com/ZaparooProject/go-lin/internal/testing"
	"github.com/ZaparooProject/go-lin/polling"
	"github.com/ZaparooProject/go-lin/transport/uart"
	"github.com/avast/retry-go"
)

const simPort = "sim"

// bus is an open engine together with whatever has to be released after it.
type bus struct {
	engine *lin.Engine
	leds   *gpio.LEDs
	port   *uart.Transport
	sim    *lintest.VirtualBus
	// reopen is nil for the simulated bus
	reopen polling.ReopenFunc
	name   string
}

func openBus(ctx context.Context) (*bus, error) {
	cfg, err := engineConfig()
	if err != nil {
		return nil, err
	}

	b := &bus{}
	if ledTx != "" || ledRx != "" {
		leds, err := gpio.Open(ledTx, ledRx, ledActiveLow)
		if err != nil {
			return nil, err
		}
		b.leds = leds
	}

	path := portName
	if path == "" {
		path, err = findAdapter(ctx)
		if err != nil {
			_ = b.Close()
			return nil, err
		}
	}
	b.name = path

	if strings.EqualFold(path, simPort) {
		b.sim = newSimBus(cfg.BaudRate)
		b.engine, err = b.newEngine(b.sim, cfg, clock.NewSystem())
	} else {
		b.reopen = func() (*lin.Engine, error) {
			if b.port != nil {
				_ = b.port.Close()
				b.port = nil
			}
			return b.openUART(ctx, path, cfg)
		}
		b.engine, err = b.openUART(ctx, path, cfg)
	}
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	return b, nil
}

func (b *bus) openUART(ctx context.Context, path string, cfg lin.Config) (*lin.Engine, error) {
	var t *uart.Transport
	err := retry.Do(func() error {
		var err error
		t, err = uart.New(path, cfg.BaudRate)
		return err
	},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.RetryIf(func(err error) bool { return !lin.IsFatal(err) }),
		retry.OnRetry(func(n uint, err error) {
			log.Printf("open %s attempt %d: %v", path, n+1, err)
		}),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	eng, err := b.newEngine(t, cfg, nil)
	if err != nil {
		_ = t.Close()
		return nil, err
	}
	b.port = t
	return eng, nil
}

func (b *bus) newEngine(t lin.Transport, cfg lin.Config, clk lin.Clock) (*lin.Engine, error) {
	opts := []lin.Option{lin.WithConfig(cfg), lin.WithName(b.name)}
	if clk != nil {
		opts = append(opts, lin.WithClock(clk))
	}
	if b.leds != nil {
		opts = append(opts, lin.WithIndicator(b.leds))
	}
	eng, err := lin.New(t, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to start engine: %w", err)
	}
	return eng, nil
}

// Close releases the port and turns the LEDs off.
func (b *bus) Close() error {
	var errs []error
	if b.port != nil {
		errs = append(errs, b.port.Close())
	}
	if b.sim != nil {
		errs = append(errs, b.sim.Close())
	}
	if b.leds != nil {
		errs = append(errs, b.leds.Off())
	}
	return errors.Join(errs...)
}

func findAdapter(ctx context.Context) (string, error) {
	opts := detection.DefaultOptions()
	opts.BaudRate = baudRate
	devices, err := detection.DetectAll(ctx, &opts)
	if err != nil {
		return "", fmt.Errorf("no port given and auto-detection failed: %w", err)
	}
	dev := devices[0]
	log.Printf("using %s", dev)
	return dev.Path, nil
}

// newSimBus builds the demo bus behind --port sim: a door module answering
// 0x22 and 0x23, a mirror module listening on 0x10 and a LIN 1.x seat
// module answering 0x30 with the classic checksum.
func newSimBus(baud int) *lintest.VirtualBus {
	vb := lintest.NewVirtualBus(clock.NewSystem(), baud)

	door := lintest.NewVirtualSlave("door", lin.ChecksumEnhanced)
	door.Publish(0x22, []byte{0x01, 0x00, 0x5A, 0x00})
	door.Publish(0x23, []byte{0x80, 0x12, 0x00, 0x00})
	door.Subscribe(0x3C, 8)
	vb.AddSlave(door)

	mirror := lintest.NewVirtualSlave("mirror", lin.ChecksumEnhanced)
	mirror.Subscribe(0x10, 2)
	mirror.Publish(0x11, []byte{0x00, 0x7F})
	vb.AddSlave(mirror)

	seat := lintest.NewVirtualSlave("seat", lin.ChecksumClassic)
	seat.Publish(0x30, []byte{0x10, 0x20, 0x30, 0x40, 0x50, 0x60, 0x70, 0x80})
	vb.AddSlave(seat)

	return vb
}
