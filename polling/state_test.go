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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNodeState_Transitions(t *testing.T) {
	t.Parallel()

	n := &NodeState{ID: 0x10}
	assert.Equal(t, NodeUnknown, n.Presence)

	assert.Equal(t, noChange, n.recordMiss(2), "an unseen node is never lost")
	assert.Equal(t, NodeUnknown, n.Presence)

	data := []byte{1, 2}
	assert.Equal(t, becameFound, n.recordResponse(data, time.Second))
	data[0] = 9
	assert.Equal(t, []byte{1, 2}, n.LastData, "data is copied")
	assert.Zero(t, n.Misses)
	assert.Equal(t, time.Second, n.LastSeen)

	assert.Equal(t, noChange, n.recordResponse([]byte{1, 2}, 2*time.Second))
	assert.Equal(t, dataChanged, n.recordResponse([]byte{1, 3}, 3*time.Second))

	assert.Equal(t, noChange, n.recordMiss(2))
	assert.Equal(t, NodePresent, n.Presence)
	assert.Equal(t, becameLost, n.recordMiss(2))
	assert.Equal(t, NodeLost, n.Presence)
	assert.Equal(t, noChange, n.recordMiss(2))
	assert.Equal(t, 3, n.Misses)

	assert.Equal(t, becameFound, n.recordResponse(nil, 4*time.Second))

	n.reset()
	assert.Equal(t, NodeState{ID: 0x10}, *n)
}

func TestNodePresence_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "unknown", NodeUnknown.String())
	assert.Equal(t, "present", NodePresent.String())
	assert.Equal(t, "lost", NodeLost.String())
	assert.Equal(t, "unknown", NodePresence(42).String())
}
