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

// Package lin implements the master side of a LIN bus as a non-blocking,
// polled protocol engine.
//
// A transaction is started with Request and driven by calling Poll from the
// caller's control loop until it returns StateDone:
//
//	eng, err := lin.New(port)
//	if err != nil {
//		return err
//	}
//	if err := eng.Request(lin.Request{
//		ID:        0x21,
//		Length:    4,
//		Direction: lin.SlaveResponse,
//		Checksum:  lin.ChecksumEnhanced,
//	}); err != nil {
//		return err
//	}
//	for eng.Poll() != lin.StateDone {
//		// other work
//	}
//	res := eng.Result()
//
// The engine writes a BREAK byte at half the line rate, waits for it to
// clear the wire, then sends SYNC, the protected identifier and, for master
// requests, the data and checksum. It reads back the echo of what it sent
// plus any slave response and reports failures as an ErrorMask.
//
// Transports live in sub-packages: transport/uart drives a serial port and
// internal/testing provides a virtual bus. Schedule tables are run by the
// polling package.
package lin
