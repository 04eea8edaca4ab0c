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
	"sync"
	"testing"
	"time"

	lin "github.com/ZaparooProject/go-lin"
	"github.com/ZaparooProject/go-lin/clock"
	lintest "github.com/ZaparooProject/go-lin/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rig struct {
	clk    *clock.Manual
	bus    *lintest.VirtualBus
	slave  *lintest.VirtualSlave
	engine *lin.Engine
}

func newRig(t *testing.T) *rig {
	t.Helper()
	clk := clock.NewManual(0)
	bus := lintest.NewVirtualBus(clk, 19200)
	slave := lintest.NewVirtualSlave("node", lin.ChecksumEnhanced)
	bus.AddSlave(slave)
	eng, err := lin.New(bus, lin.WithClock(clk), lin.WithName("sched"))
	require.NoError(t, err)
	return &rig{clk: clk, bus: bus, slave: slave, engine: eng}
}

// manualSleep advances the rig clock instead of waiting.
func (r *rig) manualSleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.clk.Advance(d)
	return nil
}

func (r *rig) session(t *testing.T, table *Table, cfg *Config) *Session {
	t.Helper()
	s, err := NewSession(r.engine, table, cfg)
	require.NoError(t, err)
	s.SetClock(r.clk, r.manualSleep)
	return s
}

func testConfig(cycles int) *Config {
	cfg := DefaultConfig()
	cfg.Cycles = cycles
	return cfg
}

func bodyTable() *Table {
	return &Table{
		Name: "body",
		Entries: []Entry{
			{Name: "lights", ID: 0x21, Direction: lin.MasterRequest, Data: []byte{0xAA, 0x55},
				Checksum: lin.ChecksumEnhanced, Slot: 10 * time.Millisecond},
			{Name: "switches", ID: 0x22, Direction: lin.SlaveResponse, Length: 4,
				Checksum: lin.ChecksumEnhanced, Slot: 10 * time.Millisecond},
		},
	}
}

func TestNewSession_Rejects(t *testing.T) {
	t.Parallel()
	r := newRig(t)

	_, err := NewSession(nil, bodyTable(), nil)
	require.Error(t, err)

	_, err = NewSession(r.engine, nil, nil)
	require.ErrorIs(t, err, ErrEmptyTable)

	short := bodyTable()
	short.Entries[1].Slot = time.Millisecond
	_, err = NewSession(r.engine, short, nil)
	require.ErrorContains(t, err, "shorter than frame timeout")
}

func TestSession_RunsTableInOrder(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	r.slave.Subscribe(0x21, 2)
	r.slave.Publish(0x22, []byte{1, 2, 3, 4})

	s := r.session(t, bodyTable(), testConfig(3))

	var labels []string
	var starts []time.Duration
	s.SetOnFrame(func(e Entry, res lin.Result) error {
		labels = append(labels, e.Label())
		starts = append(starts, r.clk.Now()-res.Elapsed)
		assert.True(t, res.OK(), "%s: %v", e.Label(), res.Err())
		if e.Direction == lin.SlaveResponse {
			assert.Equal(t, []byte{1, 2, 3, 4}, res.Data)
		}
		return nil
	})

	require.NoError(t, s.Run(context.Background()))

	assert.Equal(t, []string{"lights", "switches", "lights", "switches", "lights", "switches"}, labels)
	for i := 1; i < len(starts); i++ {
		assert.GreaterOrEqual(t, starts[i]-starts[i-1], 10*time.Millisecond, "slot %d", i)
	}

	got, ok := r.slave.Received(0x21)
	require.True(t, ok)
	assert.Equal(t, []byte{0xAA, 0x55}, got)

	stats := s.Stats()
	assert.Equal(t, int64(3), stats.Cycles)
	assert.Equal(t, int64(6), stats.Frames)
	assert.Equal(t, int64(6), stats.OK)
	assert.Zero(t, stats.Failed())
	assert.GreaterOrEqual(t, r.clk.Now(), 3*bodyTable().CycleTime())
}

func TestSession_NodePresence(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	r.slave.Publish(0x10, []byte{7, 8})

	table := &Table{Name: "one", Entries: []Entry{
		{ID: 0x10, Direction: lin.SlaveResponse, Length: 2, Checksum: lin.ChecksumEnhanced, Slot: 10 * time.Millisecond},
	}}
	cfg := testConfig(5)
	cfg.MissLimit = 2
	s := r.session(t, table, cfg)

	var found, lost []NodeState
	s.SetOnNodeFound(func(n NodeState) { found = append(found, n) })
	s.SetOnNodeLost(func(n NodeState) { lost = append(lost, n) })
	frames := 0
	s.SetOnFrame(func(Entry, lin.Result) error {
		frames++
		if frames == 2 {
			r.slave.SetSilent(true)
		}
		return nil
	})

	require.NoError(t, s.Run(context.Background()))

	require.Len(t, found, 1)
	assert.Equal(t, []byte{7, 8}, found[0].LastData)
	require.Len(t, lost, 1)
	assert.Equal(t, 2, lost[0].Misses)

	node, ok := s.Node(0x10)
	require.True(t, ok)
	assert.Equal(t, NodeLost, node.Presence)
	assert.Equal(t, 3, node.Misses)

	stats := s.Stats()
	assert.Equal(t, int64(2), stats.OK)
	assert.Equal(t, int64(3), stats.Timeout)

	_, ok = s.Node(0x3F)
	assert.False(t, ok)
}

func TestSession_CallbackFailureStops(t *testing.T) {
	t.Parallel()

	boom := errors.New("sink full")
	tests := []struct {
		callback FrameHandler
		check    func(t *testing.T, err error)
		name     string
	}{
		{
			name:     "error",
			callback: func(Entry, lin.Result) error { return boom },
			check:    func(t *testing.T, err error) { assert.ErrorIs(t, err, boom) },
		},
		{
			name:     "panic",
			callback: func(Entry, lin.Result) error { panic("bad handler") },
			check:    func(t *testing.T, err error) { assert.ErrorContains(t, err, "frame callback panicked: bad handler") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := newRig(t)
			s := r.session(t, bodyTable(), testConfig(0))
			s.SetOnFrame(tt.callback)

			err := s.Run(context.Background())
			require.Error(t, err)
			tt.check(t, err)
			assert.Equal(t, int64(1), s.Stats().Frames)
		})
	}
}

func TestSession_ContextCancel(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	s := r.session(t, bodyTable(), testConfig(0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.SetOnFrame(func(Entry, lin.Result) error {
		if s.Stats().Frames == 3 {
			cancel()
		}
		return nil
	})

	err := s.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(3), s.Stats().Frames)
	assert.NotEqual(t, lin.StateBreak, r.engine.State())
	assert.NotEqual(t, lin.StateBody, r.engine.State())

	// the session can run again once stopped
	s.SetOnFrame(nil)
	s.config.Cycles = 1
	require.NoError(t, s.Run(context.Background()))
}

func TestSession_RunTwice(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	s := r.session(t, bodyTable(), testConfig(0))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	require.Eventually(t, s.running.Load, time.Second, time.Millisecond)
	assert.ErrorIs(t, s.Run(context.Background()), ErrSessionRunning)

	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
}

func TestSession_SleepRestartsCycle(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	r.slave.Publish(0x22, []byte{1, 2, 3, 4})
	s := r.session(t, bodyTable(), testConfig(2))

	var found int
	s.SetOnNodeFound(func(NodeState) { found++ })
	s.SetOnFrame(func(e Entry, _ lin.Result) error {
		if e.Name == "switches" && s.Stats().Frames == 2 {
			r.clk.Advance(30 * time.Second)
		}
		return nil
	})

	require.NoError(t, s.Run(context.Background()))

	stats := s.Stats()
	assert.Equal(t, int64(1), stats.Sleeps)
	assert.Equal(t, int64(1), stats.Recoveries)
	assert.Equal(t, int64(2), stats.Cycles)
	assert.Equal(t, int64(4), stats.Frames)
	assert.Equal(t, 2, found, "node state is forgotten after a sleep")
}

func TestSession_SleepDetectionDisabled(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	cfg := testConfig(2)
	cfg.SleepRecovery.Enabled = false
	s := r.session(t, bodyTable(), cfg)
	s.SetOnFrame(func(Entry, lin.Result) error {
		r.clk.Advance(time.Minute)
		return nil
	})

	require.NoError(t, s.Run(context.Background()))
	assert.Zero(t, s.Stats().Sleeps)
}

func TestSession_Exec(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	r.slave.Publish(0x30, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	s := r.session(t, bodyTable(), testConfig(0))

	_, err := s.Exec(context.Background(), lin.Request{ID: 0x30})
	require.ErrorIs(t, err, ErrSessionStopped)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()
	require.Eventually(t, s.running.Load, time.Second, time.Millisecond)

	execCtx, execCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer execCancel()
	res, err := s.Exec(execCtx, lin.Request{
		ID: 0x30, Direction: lin.SlaveResponse, Length: 8, Checksum: lin.ChecksumEnhanced,
	})
	require.NoError(t, err)
	assert.True(t, res.OK(), "%v", res.Err())
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, res.Data)

	cancel()
	require.ErrorIs(t, <-errc, context.Canceled)
	assert.Equal(t, int64(1), s.Stats().Sporadic)

	_, err = s.Exec(context.Background(), lin.Request{ID: 0x30})
	assert.ErrorIs(t, err, ErrSessionStopped)
}

type stubRecoverer struct {
	engine *lin.Engine
	reopen func() (*lin.Engine, error)
	causes []error
	mu     sync.Mutex
}

func (s *stubRecoverer) Recover(_ context.Context, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.causes = append(s.causes, cause)
	if s.reopen == nil {
		return cause
	}
	eng, err := s.reopen()
	if err != nil {
		return err
	}
	s.engine = eng
	return nil
}

func (s *stubRecoverer) Engine() *lin.Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine
}

func TestSession_TransportLost(t *testing.T) {
	t.Parallel()

	t.Run("unrecoverable", func(t *testing.T) {
		t.Parallel()
		r := newRig(t)
		s := r.session(t, bodyTable(), testConfig(0))
		rec := &stubRecoverer{engine: r.engine}
		s.SetRecoverer(rec)
		s.SetOnFrame(func(Entry, lin.Result) error {
			_ = r.bus.Close()
			return nil
		})

		err := s.Run(context.Background())
		require.ErrorIs(t, err, lin.ErrTransportClosed)
		assert.ErrorContains(t, err, "bus recovery failed")
		require.Len(t, rec.causes, 1)
		assert.Equal(t, int64(1), s.Stats().Transport)
	})

	t.Run("reopened", func(t *testing.T) {
		t.Parallel()
		r := newRig(t)
		s := r.session(t, bodyTable(), testConfig(2))
		rec := &stubRecoverer{engine: r.engine, reopen: func() (*lin.Engine, error) {
			bus := lintest.NewVirtualBus(r.clk, 19200)
			return lin.New(bus, lin.WithClock(r.clk), lin.WithName("reopened"))
		}}
		s.SetRecoverer(rec)
		closed := false
		s.SetOnFrame(func(Entry, lin.Result) error {
			if !closed {
				closed = true
				_ = r.bus.Close()
			}
			return nil
		})

		require.NoError(t, s.Run(context.Background()))
		assert.Equal(t, "reopened", s.Engine().Name())
		stats := s.Stats()
		assert.Equal(t, int64(1), stats.Recoveries)
		assert.Equal(t, int64(4), stats.Frames)
		assert.Equal(t, int64(1), stats.Transport)
	})
}
