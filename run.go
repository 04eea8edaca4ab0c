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
	"time"
)

// DefaultPollInterval is the pause between Poll calls used by Run when the
// caller passes zero. It is well under one byte period at 19200 baud.
const DefaultPollInterval = 100 * time.Microsecond

// Run starts req and polls the engine until the transaction is DONE,
// pausing interval between polls. It is a convenience for callers that can
// afford to block; the engine itself never does.
//
// When ctx ends first the engine is reset and ctx.Err() is returned. The
// returned Result always reflects the engine's state; a failed transaction
// is reported through Result.Err, not through the error return.
func (e *Engine) Run(ctx context.Context, req Request, interval time.Duration) (Result, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if err := e.Request(req); err != nil {
		return e.Result(), err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for e.Poll() != StateDone {
		select {
		case <-ctx.Done():
			debugStep(e.name, "run for id=0x%02X abandoned: %v", req.ID, ctx.Err())
			_ = e.Reset()
			return e.Result(), ctx.Err()
		case <-ticker.C:
		}
	}
	return e.Result(), nil
}
