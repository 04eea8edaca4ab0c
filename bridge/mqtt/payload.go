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
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	lin "github.com/ZaparooProject/go-lin"
	"github.com/ZaparooProject/go-lin/polling"
)

// FrameMessage is the JSON payload of a finished frame.
type FrameMessage struct {
	Time      time.Time `json:"time"`
	Name      string    `json:"name,omitempty"`
	ID        string    `json:"id"`
	PID       string    `json:"pid"`
	Direction string    `json:"direction"`
	Checksum  string    `json:"checksum"`
	Data      string    `json:"data,omitempty"`
	Errors    string    `json:"errors"`
	Error     string    `json:"error,omitempty"`
	ElapsedUS int64     `json:"elapsed_us"`
	OK        bool      `json:"ok"`
}

// NewFrameMessage builds the payload for res. Data is hex encoded: the
// received bytes of a slave response, or the bytes sent for a request.
func NewFrameMessage(entry polling.Entry, res lin.Result, at time.Time) FrameMessage {
	msg := FrameMessage{
		Time:      at.UTC(),
		Name:      entry.Name,
		ID:        fmt.Sprintf("0x%02X", entry.ID),
		PID:       fmt.Sprintf("0x%02X", lin.ProtectedID(entry.ID)),
		Direction: entry.Direction.String(),
		Checksum:  entry.Checksum.String(),
		Errors:    res.Errors.String(),
		ElapsedUS: res.Elapsed.Microseconds(),
		OK:        res.OK(),
	}
	switch entry.Direction {
	case lin.SlaveResponse:
		msg.Data = hex.EncodeToString(res.Data)
	case lin.MasterRequest:
		msg.Data = hex.EncodeToString(entry.Data)
	}
	if err := res.Err(); err != nil {
		msg.Error = err.Error()
	}
	return msg
}

// NodeMessage is the JSON payload of a presence change.
type NodeMessage struct {
	Time     time.Time `json:"time"`
	ID       string    `json:"id"`
	Presence string    `json:"presence"`
	Data     string    `json:"data,omitempty"`
	Misses   int       `json:"misses"`
}

// NewNodeMessage builds the payload for node.
func NewNodeMessage(node polling.NodeState, at time.Time) NodeMessage {
	return NodeMessage{
		Time:     at.UTC(),
		ID:       fmt.Sprintf("0x%02X", node.ID),
		Presence: node.Presence.String(),
		Data:     hex.EncodeToString(node.LastData),
		Misses:   node.Misses,
	}
}

// StatsMessage is the JSON payload of a statistics snapshot.
type StatsMessage struct {
	Time time.Time `json:"time"`
	polling.Stats
}

// NewStatsMessage wraps stats with a timestamp.
func NewStatsMessage(stats polling.Stats, at time.Time) StatsMessage {
	return StatsMessage{Time: at.UTC(), Stats: stats}
}

func encode(msg any) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode mqtt payload: %w", err)
	}
	return payload, nil
}
