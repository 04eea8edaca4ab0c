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
)

// Config contains the line parameters and timing policy of an Engine.
type Config struct {
	// BaudRate is the nominal line rate. LIN uses 1000 to 20000 baud.
	BaudRate int
	// BitsPerByte is the number of bit times one byte occupies on the
	// wire, start and stop bits included (10 for 8N1).
	BitsPerByte int
	// BreakThreshold is how many nominal byte periods to wait after the
	// half-rate break byte before switching back and sending the header.
	BreakThreshold float64
	// TimeoutFactor scales the nominal frame duration into the transaction
	// deadline. LIN allows a frame to take up to 1.4 times its nominal time.
	TimeoutFactor float64
	// MinTimeout is a floor for the transaction deadline, for hosts whose
	// scheduler or USB latency dwarfs the frame time. Zero disables it.
	MinTimeout time.Duration
}

// DefaultConfig returns the configuration for a 19200 baud 8N1 bus.
func DefaultConfig() Config {
	return Config{
		BaudRate:       19200,
		BitsPerByte:    10,
		BreakThreshold: 2.0,
		TimeoutFactor:  1.4,
	}
}

// Validate reports whether c can drive an engine.
func (c Config) Validate() error {
	switch {
	case c.BaudRate <= 1:
		return fmt.Errorf("%w: baud rate %d", ErrInvalidConfig, c.BaudRate)
	case c.BitsPerByte < 10:
		return fmt.Errorf("%w: %d bits per byte, need at least 10", ErrInvalidConfig, c.BitsPerByte)
	case c.BreakThreshold <= 0:
		return fmt.Errorf("%w: break threshold %v", ErrInvalidConfig, c.BreakThreshold)
	case c.TimeoutFactor < 1:
		return fmt.Errorf("%w: timeout factor %v below 1", ErrInvalidConfig, c.TimeoutFactor)
	case c.MinTimeout < 0:
		return fmt.Errorf("%w: negative minimum timeout %v", ErrInvalidConfig, c.MinTimeout)
	}
	return nil
}

// BytePeriod returns the time one byte takes on the wire at the nominal rate.
func (c Config) BytePeriod() time.Duration {
	return time.Duration(c.BitsPerByte) * time.Second / time.Duration(c.BaudRate)
}

// BreakDuration returns how long the engine stays in BREAK.
func (c Config) BreakDuration() time.Duration {
	return time.Duration(c.BreakThreshold * float64(c.BytePeriod()))
}

// Timeout returns the transaction deadline when expected bytes are awaited,
// the break byte included. The nominal time is the break wait, never less
// than the two byte periods the half-rate break byte occupies, plus one
// byte period for every byte sent after it.
func (c Config) Timeout(expected int) time.Duration {
	period := c.BytePeriod()
	nominal := max(c.BreakDuration(), 2*period) + time.Duration(max(expected-1, 0))*period
	d := time.Duration(c.TimeoutFactor * float64(nominal))
	if d < c.MinTimeout {
		return c.MinTimeout
	}
	return d
}

// Timing is the timing derived for the transaction in flight.
type Timing struct {
	BytePeriod    time.Duration
	BreakDuration time.Duration
	Timeout       time.Duration
}

func (c Config) timing(expected int) Timing {
	return Timing{
		BytePeriod:    c.BytePeriod(),
		BreakDuration: c.BreakDuration(),
		Timeout:       c.Timeout(expected),
	}
}
