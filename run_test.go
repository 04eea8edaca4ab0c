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
	"context"
	"testing"
	"time"

	"github.com/ZaparooProject/go-lin/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRunEngine(t *testing.T, cfg Config) (*Engine, *MockTransport) {
	t.Helper()
	mock := NewMockTransport()
	eng, err := New(mock, WithClock(clock.NewSystem()), WithConfig(cfg), WithName("run"))
	require.NoError(t, err)
	return eng, mock
}

func TestRun_CompletesWithEcho(t *testing.T) {
	t.Parallel()

	eng, mock := newRunEngine(t, DefaultConfig())
	mock.SetEcho(true)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := eng.Run(ctx, Request{ID: 0x10, Data: []byte{1, 2}, Direction: MasterRequest}, 0)
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, StateDone, eng.State())
	assert.GreaterOrEqual(t, res.Elapsed, eng.Timing().BreakDuration)
}

func TestRun_SilentBusTimesOut(t *testing.T) {
	t.Parallel()

	eng, _ := newRunEngine(t, DefaultConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := eng.Run(ctx, Request{ID: 0x10, Length: 2, Direction: SlaveResponse}, time.Millisecond)
	require.NoError(t, err)
	assert.True(t, res.Errors.Has(ErrorTimeout))
	assert.ErrorIs(t, res.Err(), ErrorTimeout)
}

func TestRun_ContextEndsFirst(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.MinTimeout = time.Minute
	eng, mock := newRunEngine(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res, err := eng.Run(ctx, Request{ID: 0x10, Length: 2, Direction: SlaveResponse}, time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateIdle, res.State)
	assert.Equal(t, StateIdle, eng.State())
	assert.Equal(t, cfg.BaudRate, mock.BaudRate())
}

func TestRun_RejectsInvalidRequest(t *testing.T) {
	t.Parallel()

	eng, mock := newRunEngine(t, DefaultConfig())

	_, err := eng.Run(context.Background(), Request{ID: 0x40}, 0)
	require.ErrorIs(t, err, ErrInvalidID)
	assert.Empty(t, mock.Writes())
}
