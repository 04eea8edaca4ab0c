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

// Package frame implements the LIN frame codec: identifier parity, checksum
// calculation, request construction and response validation. Everything in
// this package is pure and allocation-light so it can run inside the
// engine's polling step.
package frame

import "errors"

// Wire constants
const (
	BreakByte = 0x00 // Byte sent at half baud rate to produce the BREAK
	SyncByte  = 0x55 // SYNC field following the BREAK
)

// Frame size limits
const (
	MaxID       = 0x3F // Largest 6-bit frame identifier
	MaxData     = 8    // Maximum number of data bytes in a frame
	HeaderLen   = 3    // BREAK artifact + SYNC + protected ID
	MaxFrameLen = HeaderLen + MaxData + 1
)

// Diagnostic frame identifiers. LIN 2.x always uses the classic checksum on these.
const (
	MasterRequestID = 0x3C
	SlaveResponseID = 0x3D
)

// ChecksumMode selects which bytes the frame checksum covers.
type ChecksumMode int

const (
	// ChecksumClassic covers the data bytes only (LIN 1.x).
	ChecksumClassic ChecksumMode = iota
	// ChecksumEnhanced covers the protected identifier and the data bytes (LIN 2.x).
	ChecksumEnhanced
)

// String returns the checksum model name
func (m ChecksumMode) String() string {
	switch m {
	case ChecksumClassic:
		return "classic"
	case ChecksumEnhanced:
		return "enhanced"
	default:
		return "unknown"
	}
}

// Direction tells who transmits the response part of a frame.
type Direction int

const (
	// MasterRequest frames carry data written by the master after the header.
	MasterRequest Direction = iota
	// SlaveResponse frames carry data written by a slave after the master's header.
	SlaveResponse
)

// String returns the direction name
func (d Direction) String() string {
	switch d {
	case MasterRequest:
		return "request"
	case SlaveResponse:
		return "response"
	default:
		return "unknown"
	}
}

// Codec errors
var (
	ErrInvalidID    = errors.New("frame identifier out of range")
	ErrDataTooLarge = errors.New("frame data too large")
)
