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
	"bytes"
	"slices"
	"time"
)

// NodePresence is the presence state of the slave publishing an identifier.
type NodePresence int

const (
	// NodeUnknown means no response has been seen yet
	NodeUnknown NodePresence = iota
	// NodePresent means the last response arrived, or fewer than MissLimit were missed
	NodePresent
	// NodeLost means MissLimit consecutive responses failed
	NodeLost
)

// String returns the presence name
func (p NodePresence) String() string {
	switch p {
	case NodePresent:
		return "present"
	case NodeLost:
		return "lost"
	default:
		return "unknown"
	}
}

// NodeState tracks the responses to one SlaveResponse identifier.
type NodeState struct {
	LastSeen time.Duration
	LastData []byte
	Misses   int
	Presence NodePresence
	ID       byte
}

// transition is the presence change caused by one result.
type transition int

const (
	noChange transition = iota
	becameFound
	becameLost
	dataChanged
)

// recordResponse updates the node for a successful response received at now.
func (n *NodeState) recordResponse(data []byte, now time.Duration) transition {
	prev := n.Presence
	changed := !bytes.Equal(n.LastData, data)

	n.Presence = NodePresent
	n.Misses = 0
	n.LastSeen = now
	n.LastData = slices.Clone(data)

	switch {
	case prev != NodePresent:
		return becameFound
	case changed:
		return dataChanged
	default:
		return noChange
	}
}

// recordMiss counts a failed response and reports the node lost once
// limit consecutive misses are reached.
func (n *NodeState) recordMiss(limit int) transition {
	n.Misses++
	if n.Presence == NodePresent && n.Misses >= limit {
		n.Presence = NodeLost
		return becameLost
	}
	return noChange
}

// reset forgets the node, as after a host sleep.
func (n *NodeState) reset() {
	*n = NodeState{ID: n.ID}
}
