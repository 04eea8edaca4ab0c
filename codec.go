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
	"fmt"
	"strings"

	"github.com/ZaparooProject/go-lin/internal/frame"
)

// ChecksumMode selects which bytes the frame checksum covers.
type ChecksumMode = frame.ChecksumMode

// Direction tells who transmits the data part of a frame.
type Direction = frame.Direction

const (
	// ChecksumClassic covers the data bytes only (LIN 1.x).
	ChecksumClassic = frame.ChecksumClassic
	// ChecksumEnhanced covers the protected identifier and the data bytes (LIN 2.x).
	ChecksumEnhanced = frame.ChecksumEnhanced

	// MasterRequest frames carry data written by the master.
	MasterRequest = frame.MasterRequest
	// SlaveResponse frames carry data written by a slave after the header.
	SlaveResponse = frame.SlaveResponse
)

// Frame limits and reserved identifiers
const (
	MaxID           = frame.MaxID
	MaxData         = frame.MaxData
	MasterRequestID = frame.MasterRequestID
	SlaveResponseID = frame.SlaveResponseID
)

// ProtectedID returns id with its two parity bits in bits 6 and 7.
func ProtectedID(id byte) byte {
	return frame.ProtectedID(id)
}

// Checksum computes the frame checksum of data. pid is only covered in
// enhanced mode.
func Checksum(pid byte, data []byte, mode ChecksumMode) byte {
	return frame.Checksum(pid, data, mode)
}

// DefaultLength returns the data length LIN 1.x encodes in bits 4 and 5 of
// the identifier.
func DefaultLength(id byte) int {
	return frame.DefaultLength(id)
}

// ParseChecksumMode parses "classic" or "enhanced", case-insensitively.
func ParseChecksumMode(s string) (ChecksumMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "classic", "1.x", "lin1":
		return ChecksumClassic, nil
	case "enhanced", "2.x", "lin2":
		return ChecksumEnhanced, nil
	default:
		return 0, fmt.Errorf("unknown checksum model %q", s)
	}
}

// ParseDirection parses "request" (or "master") and "response" (or "slave").
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "request", "master":
		return MasterRequest, nil
	case "response", "slave":
		return SlaveResponse, nil
	default:
		return 0, fmt.Errorf("unknown frame direction %q", s)
	}
}
