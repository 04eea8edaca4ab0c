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
	"time"

	lin "github.com/ZaparooProject/go-lin"
	"github.com/ZaparooProject/go-lin/internal/syncutil"
)

// Recoverer brings the bus back after a host sleep or a transport failure.
type Recoverer interface {
	// Recover returns nil once the engine is usable again. cause is the
	// error that triggered recovery, nil after a sleep.
	Recover(ctx context.Context, cause error) error
	// Engine returns the current engine, which may change after a reopen.
	Engine() *lin.Engine
}

// ReopenFunc closes whatever is left of the old transport and returns an
// engine on a freshly opened one.
type ReopenFunc func() (*lin.Engine, error)

// DefaultRecoverer tries a soft reset of the engine first, which restores
// the nominal baud rate, and then a full reopen when a ReopenFunc is set.
// A fatal cause, such as an unplugged adapter, skips the soft reset.
type DefaultRecoverer struct {
	engine      *lin.Engine
	reopenFunc  ReopenFunc
	backoff     time.Duration
	maxAttempts int
	mu          syncutil.Mutex
}

// NewDefaultRecoverer creates a recoverer. If reopenFunc is nil only the
// soft reset is attempted.
func NewDefaultRecoverer(
	engine *lin.Engine,
	reopenFunc ReopenFunc,
	backoff time.Duration,
	maxAttempts int,
) *DefaultRecoverer {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &DefaultRecoverer{
		engine:      engine,
		reopenFunc:  reopenFunc,
		backoff:     backoff,
		maxAttempts: maxAttempts,
	}
}

// Recover implements Recoverer.
func (r *DefaultRecoverer) Recover(ctx context.Context, cause error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	lastErr := cause
	soft := !lin.IsFatal(cause)
	if !soft && r.reopenFunc == nil {
		return cause
	}
	for attempt := range r.maxAttempts {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.backoff):
			}
		}

		if soft {
			err := r.engine.Reset()
			if err == nil {
				return nil
			}
			lastErr = err
		}

		if r.reopenFunc != nil {
			engine, reopenErr := r.reopenFunc()
			if reopenErr == nil {
				lin.Debugf("%s: transport reopened", engine.Name())
				r.engine = engine
				return nil
			}
			lastErr = reopenErr
		}
	}
	return lastErr
}

// Engine implements Recoverer.
func (r *DefaultRecoverer) Engine() *lin.Engine {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engine
}
