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

package mqtt

import (
	"context"
	"sync/atomic"

	lin "github.com/ZaparooProject/go-lin"
	"github.com/ZaparooProject/go-lin/polling"
)

// DefaultQueueSize is the number of frames a FrameQueue buffers.
const DefaultQueueSize = 256

type queuedFrame struct {
	res   lin.Result
	entry polling.Entry
}

// FrameQueue decouples the schedule loop from the broker. Handler never
// blocks: frames are buffered and published by Run, and dropped when the
// buffer is full.
type FrameQueue struct {
	pub     *Publisher
	frames  chan queuedFrame
	dropped atomic.Int64
	sent    atomic.Int64
}

// NewFrameQueue creates a queue holding up to size frames, DefaultQueueSize
// when size is not positive.
func (p *Publisher) NewFrameQueue(size int) *FrameQueue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &FrameQueue{pub: p, frames: make(chan queuedFrame, size)}
}

// Handler returns a session callback that enqueues every frame.
func (q *FrameQueue) Handler() polling.FrameHandler {
	return func(entry polling.Entry, res lin.Result) error {
		select {
		case q.frames <- queuedFrame{entry: entry, res: res}:
		default:
			if n := q.dropped.Add(1); n == 1 || n%100 == 0 {
				lin.Debugf("mqtt queue full, %d frames dropped", n)
			}
		}
		return nil
	}
}

// Run publishes queued frames until ctx ends. Each publish is bounded by
// the publisher's PublishTimeout; failures are logged and skipped.
func (q *FrameQueue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case f := <-q.frames:
			if err := q.pub.publishBounded(ctx, func(ctx context.Context) error {
				return q.pub.PublishFrame(ctx, f.entry, f.res)
			}); err != nil {
				lin.Debugf("mqtt publish of frame 0x%02X failed: %v", f.entry.ID, err)
				continue
			}
			q.sent.Add(1)
		}
	}
}

// Dropped returns the number of frames discarded on a full queue.
func (q *FrameQueue) Dropped() int64 {
	return q.dropped.Load()
}

// Sent returns the number of frames the broker acknowledged.
func (q *FrameQueue) Sent() int64 {
	return q.sent.Load()
}
