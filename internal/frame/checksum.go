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

package frame

// Parity returns the two LIN identifier parity bits for id, P0 in bit 0 and
// P1 in bit 1. Bits above the 6-bit identifier are ignored.
func Parity(id byte) byte {
	id &= MaxID
	bit := func(n uint) byte { return (id >> n) & 1 }

	p0 := bit(0) ^ bit(1) ^ bit(2) ^ bit(4)
	p1 := ^(bit(1) ^ bit(3) ^ bit(4) ^ bit(5)) & 1
	return p0 | p1<<1
}

// ProtectedID packs id and its parity bits into the byte sent on the wire.
func ProtectedID(id byte) byte {
	return id&MaxID | Parity(id)<<6
}

// Checksum computes the frame checksum: the inverted 8-bit sum with
// end-around carry of data, plus pid when mode is ChecksumEnhanced.
func Checksum(pid byte, data []byte, mode ChecksumMode) byte {
	var sum uint16
	if mode == ChecksumEnhanced {
		sum = uint16(pid)
	}
	for _, b := range data {
		sum += uint16(b)
		if sum > 0xFF {
			sum -= 0xFF
		}
	}
	return ^byte(sum)
}

// DefaultLength returns the data length LIN 1.x encodes in the identifier:
// IDs 0-31 carry 2 bytes, 32-47 carry 4 and 48-63 carry 8.
func DefaultLength(id byte) int {
	switch (id & MaxID) >> 4 {
	case 0, 1:
		return 2
	case 2:
		return 4
	default:
		return 8
	}
}
