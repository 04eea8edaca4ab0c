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

package gpio

import (
	"testing"
	"time"

	lin "github.com/ZaparooProject/go-lin"
	"github.com/ZaparooProject/go-lin/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

func TestLEDs_Levels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		activeLow bool
		on        gpio.Level
		off       gpio.Level
	}{
		{name: "active high", activeLow: false, on: gpio.High, off: gpio.Low},
		{name: "active low", activeLow: true, on: gpio.Low, off: gpio.High},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tx := &gpiotest.Pin{N: "TX", Num: 17}
			rx := &gpiotest.Pin{N: "RX", Num: 27}

			leds, err := New(tx, rx, tt.activeLow)
			require.NoError(t, err)
			assert.Equal(t, tt.off, tx.Read())
			assert.Equal(t, tt.off, rx.Read())

			leds.SetTx(true)
			assert.Equal(t, tt.on, tx.Read())
			assert.Equal(t, tt.off, rx.Read())

			leds.SetRx(true)
			assert.Equal(t, tt.on, rx.Read())

			require.NoError(t, leds.Off())
			assert.Equal(t, tt.off, tx.Read())
			assert.Equal(t, tt.off, rx.Read())
		})
	}
}

func TestLEDs_MissingPin(t *testing.T) {
	t.Parallel()
	rx := &gpiotest.Pin{N: "RX", Num: 27}

	leds, err := New(nil, rx, false)
	require.NoError(t, err)
	leds.SetTx(true)
	leds.SetRx(true)
	assert.Equal(t, gpio.High, rx.Read())
}

func TestLEDs_FollowEngine(t *testing.T) {
	t.Parallel()
	tx := &gpiotest.Pin{N: "TX", Num: 17}
	rx := &gpiotest.Pin{N: "RX", Num: 27}
	leds, err := New(tx, rx, false)
	require.NoError(t, err)

	mock := lin.NewMockTransport()
	mock.SetEcho(true)
	clk := clock.NewManual(0)
	eng, err := lin.New(mock, lin.WithClock(clk), lin.WithIndicator(leds))
	require.NoError(t, err)

	require.NoError(t, eng.Request(lin.Request{ID: 0x01, Data: []byte{0xAA}, Direction: lin.MasterRequest}))
	assert.Equal(t, gpio.High, tx.Read())
	assert.Equal(t, gpio.Low, rx.Read())

	clk.Advance(eng.Timing().BreakDuration + time.Microsecond)
	require.Equal(t, lin.StateBody, eng.Poll())
	assert.Equal(t, gpio.Low, tx.Read())
	assert.Equal(t, gpio.High, rx.Read())

	require.Equal(t, lin.StateDone, eng.Poll())
	assert.Equal(t, gpio.Low, tx.Read())
	assert.Equal(t, gpio.Low, rx.Read())
}
