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

import "fmt"

// Fault is a bitmask of validation failures. The bit positions match the
// engine's error flags so they can be OR'd in directly.
type Fault uint8

const (
	// FaultEcho means the bytes read back differ from the bytes sent.
	FaultEcho Fault = 1 << 2
	// FaultChecksum means the received checksum does not match the data.
	FaultChecksum Fault = 1 << 3
)

// BuildRequest writes the transmit buffer for a frame into buf and returns the
// used part of it along with the number of bytes the master must read back.
// buf must hold at least MaxFrameLen bytes.
//
// For a MasterRequest the buffer is BREAK, SYNC, PID, DATA..., CHK and the
// whole frame is expected back as echo. For a SlaveResponse only the header
// is sent and the echo plus length data bytes and a checksum are expected.
func BuildRequest(
	buf []byte, id byte, data []byte, length int, dir Direction, mode ChecksumMode,
) (tx []byte, rxLen int, err error) {
	if id > MaxID {
		return nil, 0, fmt.Errorf("%w: 0x%02X", ErrInvalidID, id)
	}
	if len(buf) < MaxFrameLen {
		return nil, 0, fmt.Errorf("%w: buffer holds %d bytes", ErrDataTooLarge, len(buf))
	}

	pid := ProtectedID(id)
	buf[0] = BreakByte
	buf[1] = SyncByte
	buf[2] = pid

	switch dir {
	case MasterRequest:
		if len(data) > MaxData {
			return nil, 0, fmt.Errorf("%w: %d bytes", ErrDataTooLarge, len(data))
		}
		n := copy(buf[HeaderLen:], data)
		buf[HeaderLen+n] = Checksum(pid, data, mode)
		txLen := HeaderLen + n + 1
		return buf[:txLen], txLen, nil
	case SlaveResponse:
		if length < 0 || length > MaxData {
			return nil, 0, fmt.Errorf("%w: %d bytes", ErrDataTooLarge, length)
		}
		return buf[:HeaderLen], HeaderLen + length + 1, nil
	default:
		return nil, 0, fmt.Errorf("unknown frame direction %d", dir)
	}
}

// ValidateResponse checks the bytes read back from the bus against the frame
// that was sent. Master requests must echo exactly; slave responses must echo
// the header and carry a checksum matching their data.
func ValidateResponse(tx, rx []byte, dir Direction, mode ChecksumMode) Fault {
	var fault Fault

	if dir == MasterRequest {
		if !echoMatches(tx, rx, len(tx)) {
			fault |= FaultEcho
		}
		return fault
	}

	if !echoMatches(tx, rx, HeaderLen) {
		fault |= FaultEcho
	}
	if len(rx) < HeaderLen+1 || len(tx) < HeaderLen {
		return fault | FaultChecksum
	}
	data := rx[HeaderLen : len(rx)-1]
	if Checksum(tx[2], data, mode) != rx[len(rx)-1] {
		fault |= FaultChecksum
	}
	return fault
}

// ResponseData returns the data bytes of a slave response read back from the bus.
func ResponseData(rx []byte) []byte {
	if len(rx) < HeaderLen+1 {
		return nil
	}
	return rx[HeaderLen : len(rx)-1]
}

func echoMatches(tx, rx []byte, n int) bool {
	if len(tx) < n || len(rx) < n {
		return false
	}
	for i := range n {
		if tx[i] != rx[i] {
			return false
		}
	}
	return true
}
