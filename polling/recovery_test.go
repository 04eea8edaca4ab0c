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

package polling

import (
	"context"
	"errors"
	"testing"
	"time"

	lin "github.com/ZaparooProject/go-lin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockEngine(t *testing.T, name string) (*lin.Engine, *lin.MockTransport) {
	t.Helper()
	mock := lin.NewMockTransport()
	eng, err := lin.New(mock, lin.WithName(name))
	require.NoError(t, err)
	return eng, mock
}

func TestNewDefaultRecoverer_Defaults(t *testing.T) {
	t.Parallel()

	eng, _ := newMockEngine(t, "a")
	r := NewDefaultRecoverer(eng, nil, 0, 0)
	assert.Equal(t, 3, r.maxAttempts)
	assert.Equal(t, 500*time.Millisecond, r.backoff)
	assert.Same(t, eng, r.Engine())
}

func TestDefaultRecoverer_SoftReset(t *testing.T) {
	t.Parallel()

	eng, _ := newMockEngine(t, "a")
	reopened := false
	r := NewDefaultRecoverer(eng, func() (*lin.Engine, error) {
		reopened = true
		return nil, errors.New("unused")
	}, time.Millisecond, 2)

	require.NoError(t, r.Recover(context.Background(), nil))
	assert.False(t, reopened)
	assert.Equal(t, lin.StateIdle, eng.State())
}

func TestDefaultRecoverer_FatalCause(t *testing.T) {
	t.Parallel()

	gone := lin.NewTransportError("read", "/dev/ttyUSB0", errors.New("unplugged"), lin.ErrorTypePermanent)

	t.Run("without reopen", func(t *testing.T) {
		t.Parallel()
		eng, _ := newMockEngine(t, "a")
		r := NewDefaultRecoverer(eng, nil, time.Millisecond, 3)
		assert.Same(t, gone, r.Recover(context.Background(), gone))
	})

	t.Run("reopen succeeds", func(t *testing.T) {
		t.Parallel()
		eng, _ := newMockEngine(t, "a")
		next, _ := newMockEngine(t, "b")
		r := NewDefaultRecoverer(eng, func() (*lin.Engine, error) { return next, nil }, time.Millisecond, 3)
		require.NoError(t, r.Recover(context.Background(), gone))
		assert.Same(t, next, r.Engine())
	})

	t.Run("reopen keeps failing", func(t *testing.T) {
		t.Parallel()
		eng, _ := newMockEngine(t, "a")
		calls := 0
		notYet := errors.New("port not back yet")
		r := NewDefaultRecoverer(eng, func() (*lin.Engine, error) {
			calls++
			return nil, notYet
		}, time.Millisecond, 3)
		require.ErrorIs(t, r.Recover(context.Background(), gone), notYet)
		assert.Equal(t, 3, calls)
		assert.Same(t, eng, r.Engine())
	})
}

func TestDefaultRecoverer_ResetFailsThenReopens(t *testing.T) {
	t.Parallel()

	eng, mock := newMockEngine(t, "a")
	mock.SetEcho(true)
	require.NoError(t, eng.Request(lin.Request{ID: 1, Direction: lin.SlaveResponse, Length: 2}))
	mock.SetError("SetBaudRate", errors.New("ioctl failed"))

	next, _ := newMockEngine(t, "b")
	r := NewDefaultRecoverer(eng, func() (*lin.Engine, error) { return next, nil }, time.Millisecond, 1)
	require.NoError(t, r.Recover(context.Background(), nil))
	assert.Same(t, next, r.Engine())
}

func TestDefaultRecoverer_ContextDuringBackoff(t *testing.T) {
	t.Parallel()

	eng, _ := newMockEngine(t, "a")
	r := NewDefaultRecoverer(eng, func() (*lin.Engine, error) {
		return nil, errors.New("still gone")
	}, time.Hour, 3)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := r.Recover(ctx, lin.ErrTransportClosed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
