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

// Package clock provides the monotonic time sources the LIN engine measures
// BREAK duration and transaction deadlines against.
package clock

import (
	"sync/atomic"
	"time"
)

// System is a monotonic clock backed by the operating system. Readings are
// offsets from an arbitrary origin and are only meaningful relative to each other.
type System struct{}

// NewSystem returns the system monotonic clock.
func NewSystem() *System {
	return &System{}
}

// Now returns the current monotonic time.
func (*System) Now() time.Duration {
	return monotonicNow()
}

// Manual is a clock that only moves when told to. It is used by tests and by
// the virtual bus, where wire timing must be reproducible.
type Manual struct {
	now atomic.Int64
}

// NewManual returns a manual clock starting at start.
func NewManual(start time.Duration) *Manual {
	m := &Manual{}
	m.now.Store(int64(start))
	return m
}

// Now returns the current manual time.
func (m *Manual) Now() time.Duration {
	return time.Duration(m.now.Load())
}

// Advance moves the clock forward by d and returns the new time.
// Negative values are ignored; the clock never runs backwards.
func (m *Manual) Advance(d time.Duration) time.Duration {
	if d < 0 {
		d = 0
	}
	return time.Duration(m.now.Add(int64(d)))
}

// Set moves the clock to t if t is not before the current time.
func (m *Manual) Set(t time.Duration) {
	for {
		cur := m.now.Load()
		if int64(t) <= cur || m.now.CompareAndSwap(cur, int64(t)) {
			return
		}
	}
}
