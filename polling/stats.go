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
	"fmt"
	"sync/atomic"
	"time"

	lin "github.com/ZaparooProject/go-lin"
)

// Stats is a snapshot of session counters.
type Stats struct {
	Cycles      int64
	Frames      int64
	OK          int64
	Sporadic    int64
	Sleeps      int64
	Recoveries  int64
	State       int64
	Timeout     int64
	Echo        int64
	Checksum    int64
	Transport   int64
	LastElapsed time.Duration
}

// Failed returns the number of frames that ended with any error.
func (s Stats) Failed() int64 {
	return s.Frames - s.OK
}

// String returns a one-line summary
func (s Stats) String() string {
	return fmt.Sprintf(
		"cycles=%d frames=%d ok=%d failed=%d (state=%d timeout=%d echo=%d chk=%d transport=%d) sleeps=%d",
		s.Cycles, s.Frames, s.OK, s.Failed(), s.State, s.Timeout, s.Echo, s.Checksum, s.Transport, s.Sleeps)
}

type counters struct {
	cycles      atomic.Int64
	frames      atomic.Int64
	ok          atomic.Int64
	sporadic    atomic.Int64
	sleeps      atomic.Int64
	recoveries  atomic.Int64
	state       atomic.Int64
	timeout     atomic.Int64
	echo        atomic.Int64
	checksum    atomic.Int64
	transport   atomic.Int64
	lastElapsed atomic.Int64
}

// record counts one finished transaction. Each error flag is counted on its
// own, so a frame with TIMEOUT|ECHO adds to both.
func (c *counters) record(res lin.Result) {
	c.frames.Add(1)
	c.lastElapsed.Store(int64(res.Elapsed))
	if res.Errors == 0 {
		c.ok.Add(1)
		return
	}
	for _, f := range []struct {
		n    *atomic.Int64
		flag lin.ErrorMask
	}{
		{&c.state, lin.ErrorState},
		{&c.timeout, lin.ErrorTimeout},
		{&c.echo, lin.ErrorEcho},
		{&c.checksum, lin.ErrorChecksum},
		{&c.transport, lin.ErrorTransport},
	} {
		if res.Errors.Has(f.flag) {
			f.n.Add(1)
		}
	}
}

func (c *counters) snapshot() Stats {
	return Stats{
		Cycles:      c.cycles.Load(),
		Frames:      c.frames.Load(),
		OK:          c.ok.Load(),
		Sporadic:    c.sporadic.Load(),
		Sleeps:      c.sleeps.Load(),
		Recoveries:  c.recoveries.Load(),
		State:       c.state.Load(),
		Timeout:     c.timeout.Load(),
		Echo:        c.echo.Load(),
		Checksum:    c.checksum.Load(),
		Transport:   c.transport.Load(),
		LastElapsed: time.Duration(c.lastElapsed.Load()),
	}
}
