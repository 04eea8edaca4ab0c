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

// Package polling runs a LIN schedule table: it issues the table's frames
// one slot at a time, drives the engine's Poll loop, and reports each
// result to the caller.
package polling

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	lin "github.com/ZaparooProject/go-lin"
	"github.com/ZaparooProject/go-lin/clock"
	"github.com/ZaparooProject/go-lin/internal/syncutil"
)

var (
	// ErrSessionRunning is returned by Run when the session is already running
	ErrSessionRunning = errors.New("session already running")
	// ErrSessionStopped is returned by Exec when no Run loop is active
	ErrSessionStopped = errors.New("session not running")
)

// errRestartCycle ends the current cycle after a time discontinuity.
var errRestartCycle = errors.New("restart cycle")

// SleepFunc pauses the session for d or until ctx ends.
type SleepFunc func(ctx context.Context, d time.Duration) error

// FrameHandler receives every finished frame, scheduled or sporadic.
// Returning an error stops the session.
type FrameHandler func(entry Entry, res lin.Result) error

// NodeHandler receives presence changes of slave nodes.
type NodeHandler func(node NodeState)

type sporadicRequest struct {
	reply chan sporadicReply
	req   lin.Request
}

type sporadicReply struct {
	err error
	res lin.Result
}

// Session runs a schedule table on an engine.
type Session struct {
	recoverer   Recoverer
	clock       lin.Clock
	sleep       SleepFunc
	table       *Table
	config      *Config
	OnFrame     FrameHandler
	OnNodeFound NodeHandler
	OnNodeLost  NodeHandler
	nodes       map[byte]*NodeState
	sporadic    chan sporadicRequest
	stopped     chan struct{}
	stats       counters
	lastStart   time.Duration
	lastSlot    time.Duration
	mu          syncutil.RWMutex
	running     atomic.Bool
}

// NewSession checks table against the engine's timing and creates a session.
func NewSession(engine *lin.Engine, table *Table, config *Config) (*Session, error) {
	if engine == nil {
		return nil, errors.New("engine cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if table == nil {
		return nil, ErrEmptyTable
	}
	if err := table.Validate(engine.Config()); err != nil {
		return nil, fmt.Errorf("schedule table %q: %w", table.Name, err)
	}

	recovery := config.SleepRecovery
	s := &Session{
		recoverer: NewDefaultRecoverer(engine, nil, recovery.RecoveryBackoff, recovery.MaxRecoveryAttempts),
		clock:     clock.NewSystem(),
		sleep:     sleepContext,
		table:     table,
		config:    config,
		nodes:     make(map[byte]*NodeState),
		sporadic:  make(chan sporadicRequest),
	}
	for _, e := range table.Entries {
		if e.Direction == lin.SlaveResponse {
			s.nodes[e.ID] = &NodeState{ID: e.ID}
		}
	}
	return s, nil
}

// sleepContext waits on a timer.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SetClock replaces the time source and the sleep function. Both must
// describe the same time, for example a manual clock advanced by sleep.
func (s *Session) SetClock(clk lin.Clock, sleep SleepFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clk
	s.sleep = sleep
}

// SetRecoverer replaces the default soft-reset recoverer.
func (s *Session) SetRecoverer(r Recoverer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recoverer = r
}

// SetOnFrame sets the frame callback
func (s *Session) SetOnFrame(callback FrameHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.OnFrame = callback
}

// SetOnNodeFound sets the callback for a slave starting to respond
func (s *Session) SetOnNodeFound(callback NodeHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.OnNodeFound = callback
}

// SetOnNodeLost sets the callback for a slave that stopped responding
func (s *Session) SetOnNodeLost(callback NodeHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.OnNodeLost = callback
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	return s.stats.snapshot()
}

// Node returns the presence state of the slave publishing id.
func (s *Session) Node(id byte) (NodeState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return NodeState{}, false
	}
	return *n, true
}

// Engine returns the engine in use, which changes after a reopen.
func (s *Session) Engine() *lin.Engine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recoverer.Engine()
}

// Run issues the table's frames until ctx ends, Config.Cycles passes are
// done, a frame callback fails, or the bus cannot be recovered. It returns
// nil after the configured number of cycles and ctx.Err() on cancellation.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrSessionRunning
	}
	s.mu.Lock()
	s.stopped = make(chan struct{})
	stopped := s.stopped
	s.lastSlot = 0
	s.mu.Unlock()
	defer func() {
		close(stopped)
		s.running.Store(false)
	}()

	for done := 0; s.config.Cycles == 0 || done < s.config.Cycles; {
		err := s.runCycle(ctx)
		if errors.Is(err, errRestartCycle) {
			continue
		}
		if err != nil {
			return err
		}
		done++
		s.stats.cycles.Add(1)
	}
	return nil
}

func (s *Session) runCycle(ctx context.Context) error {
	for _, entry := range s.table.Entries {
		if err := s.runSlot(ctx, entry); err != nil {
			return err
		}
		if err := s.serveSporadic(ctx); err != nil {
			return err
		}
	}
	return nil
}

// runSlot issues one scheduled frame and waits for the end of its slot.
func (s *Session) runSlot(ctx context.Context, entry Entry) error {
	start := s.now()
	if err := s.checkDiscontinuity(ctx, start); err != nil {
		return err
	}
	s.lastStart, s.lastSlot = start, entry.Slot

	res, err := s.transact(ctx, entry.Request())
	if err != nil {
		return err
	}
	if err := s.handleResult(ctx, entry, res); err != nil {
		return err
	}
	return s.waitUntil(ctx, start+entry.Slot)
}

// checkDiscontinuity compares the gap since the previous slot start with
// that slot's length. A gap far beyond it means the host slept: node state
// is stale and the engine may have been interrupted mid-frame.
func (s *Session) checkDiscontinuity(ctx context.Context, now time.Duration) error {
	if s.lastSlot == 0 {
		return nil
	}
	gap := now - s.lastStart
	if !s.config.SleepRecovery.DetectSleep(gap, s.lastSlot) {
		return nil
	}

	lin.Debugf("schedule %q: %v gap where %v was expected, restarting cycle", s.table.Name, gap, s.lastSlot)
	s.stats.sleeps.Add(1)
	s.lastSlot = 0

	s.mu.Lock()
	for _, n := range s.nodes {
		n.reset()
	}
	s.mu.Unlock()

	if err := s.recover(ctx, nil); err != nil {
		return err
	}
	return errRestartCycle
}

func (s *Session) recover(ctx context.Context, cause error) error {
	s.mu.RLock()
	r := s.recoverer
	s.mu.RUnlock()

	if err := r.Recover(ctx, cause); err != nil {
		return fmt.Errorf("bus recovery failed: %w", err)
	}
	s.stats.recoveries.Add(1)
	return nil
}

// transact runs one request to DONE, polling between sleeps. When ctx ends
// mid-frame the engine is reset so it does not stay at half baud.
func (s *Session) transact(ctx context.Context, req lin.Request) (lin.Result, error) {
	eng := s.Engine()
	if err := eng.Request(req); err != nil {
		return lin.Result{}, fmt.Errorf("frame 0x%02X rejected: %w", req.ID, err)
	}

	for eng.Poll() != lin.StateDone {
		if err := s.pause(ctx, s.config.PollInterval); err != nil {
			_ = eng.Reset()
			return lin.Result{}, err
		}
	}
	res := eng.Result()
	s.stats.record(res)
	return res, nil
}

// handleResult updates node state, runs callbacks, and recovers the bus
// after a fatal transport error.
func (s *Session) handleResult(ctx context.Context, entry Entry, res lin.Result) error {
	s.trackNode(entry, res)

	s.mu.RLock()
	onFrame := s.OnFrame
	s.mu.RUnlock()
	if onFrame != nil {
		if err := safeCall(func() error { return onFrame(entry, res) }, "frame"); err != nil {
			return err
		}
	}

	if res.Errors.Has(lin.ErrorTransport) && lin.IsFatal(res.Err()) {
		lin.Debugf("schedule %q: fatal transport error on %s: %v", s.table.Name, entry.Label(), res.Err())
		return s.recover(ctx, res.Err())
	}
	return nil
}

func (s *Session) trackNode(entry Entry, res lin.Result) {
	if entry.Direction != lin.SlaveResponse {
		return
	}

	now := s.now()

	s.mu.Lock()
	node, ok := s.nodes[entry.ID]
	if !ok {
		node = &NodeState{ID: entry.ID}
		s.nodes[entry.ID] = node
	}
	var change transition
	if res.OK() {
		change = node.recordResponse(res.Data, now)
	} else {
		change = node.recordMiss(max(s.config.MissLimit, 1))
	}
	snapshot := *node
	onFound, onLost := s.OnNodeFound, s.OnNodeLost
	s.mu.Unlock()

	switch {
	case change == becameFound && onFound != nil:
		_ = safeCall(func() error { onFound(snapshot); return nil }, "node found")
	case change == becameLost && onLost != nil:
		_ = safeCall(func() error { onLost(snapshot); return nil }, "node lost")
	}
}

// Exec runs req in the next gap between scheduled slots, the way a
// sporadic frame takes a slot, and returns its result. It must not be
// called from a session callback.
func (s *Session) Exec(ctx context.Context, req lin.Request) (lin.Result, error) {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if !s.running.Load() || stopped == nil {
		return lin.Result{}, ErrSessionStopped
	}

	sr := sporadicRequest{req: req, reply: make(chan sporadicReply, 1)}
	select {
	case s.sporadic <- sr:
	case <-stopped:
		return lin.Result{}, ErrSessionStopped
	case <-ctx.Done():
		return lin.Result{}, ctx.Err()
	}

	select {
	case reply := <-sr.reply:
		return reply.res, reply.err
	case <-ctx.Done():
		return lin.Result{}, ctx.Err()
	}
}

// serveSporadic runs at most one pending Exec request in its own slot.
func (s *Session) serveSporadic(ctx context.Context) error {
	var sr sporadicRequest
	select {
	case sr = <-s.sporadic:
	default:
		return nil
	}

	start := s.now()
	s.stats.sporadic.Add(1)
	res, err := s.transact(ctx, sr.req)
	sr.reply <- sporadicReply{res: res, err: err}
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		return nil
	}

	entry := Entry{
		Name:      "sporadic",
		ID:        sr.req.ID,
		Data:      sr.req.Data,
		Length:    sr.req.Length,
		Direction: sr.req.Direction,
		Checksum:  sr.req.Checksum,
	}
	if err := s.handleResult(ctx, entry, res); err != nil {
		return err
	}
	slot := s.Engine().Config().Timeout(entry.expectedBytes())
	s.lastStart, s.lastSlot = start, slot
	return s.waitUntil(ctx, start+slot)
}

func (s *Session) waitUntil(ctx context.Context, deadline time.Duration) error {
	for {
		remaining := deadline - s.now()
		if remaining <= 0 {
			return nil
		}
		if err := s.pause(ctx, remaining); err != nil {
			return err
		}
	}
}

func (s *Session) now() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clock.Now()
}

func (s *Session) pause(ctx context.Context, d time.Duration) error {
	s.mu.RLock()
	sleep := s.sleep
	s.mu.RUnlock()
	return sleep(ctx, d)
}

// safeCall runs a callback with panic recovery
func safeCall(fn func() error, name string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s callback panicked: %v", name, r)
		}
	}()
	if err := fn(); err != nil {
		return fmt.Errorf("%s callback failed: %w", name, err)
	}
	return nil
}
