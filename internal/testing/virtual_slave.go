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

package testing

import (
	"github.com/ZaparooProject/go-lin/internal/frame"
	"github.com/ZaparooProject/go-lin/internal/syncutil"
)

// VirtualSlave is a simulated LIN slave node. It publishes responses for
// some identifiers and subscribes to master requests on others.
type VirtualSlave struct {
	publish     map[byte][]byte
	subscribe   map[byte]int
	received    map[byte][]byte
	Name        string
	mu          syncutil.Mutex
	mode        frame.ChecksumMode
	silent      bool
	corruptNext bool
}

// NewVirtualSlave creates a slave using checksum model mode for all its frames.
func NewVirtualSlave(name string, mode frame.ChecksumMode) *VirtualSlave {
	return &VirtualSlave{
		Name:      name,
		mode:      mode,
		publish:   make(map[byte][]byte),
		subscribe: make(map[byte]int),
		received:  make(map[byte][]byte),
	}
}

// Publish makes the slave answer headers for id with data.
func (s *VirtualSlave) Publish(id byte, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publish[id&frame.MaxID] = append([]byte(nil), data...)
}

// Subscribe makes the slave accept master requests for id carrying length
// data bytes.
func (s *VirtualSlave) Subscribe(id byte, length int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribe[id&frame.MaxID] = length
}

// Received returns the data of the last valid master request for id.
func (s *VirtualSlave) Received(id byte) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.received[id&frame.MaxID]
	return append([]byte(nil), data...), ok
}

// SetSilent stops the slave from answering any header, as if unplugged.
func (s *VirtualSlave) SetSilent(silent bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.silent = silent
}

// CorruptNextChecksum makes the next published response carry a bad checksum.
func (s *VirtualSlave) CorruptNextChecksum() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.corruptNext = true
}

// response returns the bytes the slave sends after a header with pid, or nil.
func (s *VirtualSlave) response(pid byte) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.silent {
		return nil
	}
	data, ok := s.publish[pid&frame.MaxID]
	if !ok {
		return nil
	}
	chk := frame.Checksum(pid, data, s.mode)
	if s.corruptNext {
		chk ^= 0xFF
		s.corruptNext = false
	}
	out := make([]byte, 0, len(data)+1)
	out = append(out, data...)
	return append(out, chk)
}

// listens returns the data length the slave expects after pid, or -1.
func (s *VirtualSlave) listens(pid byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.silent {
		return -1
	}
	if n, ok := s.subscribe[pid&frame.MaxID]; ok {
		return n
	}
	return -1
}

// deliver hands a master request body (data and checksum) to the slave. It
// is stored only if the checksum is valid.
func (s *VirtualSlave) deliver(pid byte, body []byte) {
	if len(body) == 0 {
		return
	}
	data := body[:len(body)-1]
	if frame.Checksum(pid, data, s.mode) != body[len(body)-1] {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received[pid&frame.MaxID] = append([]byte(nil), data...)
}
