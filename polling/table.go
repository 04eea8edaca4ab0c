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
	"errors"
	"fmt"
	"os"
	"time"

	lin "github.com/ZaparooProject/go-lin"
	"gopkg.in/yaml.v3"
)

// DefaultSlot is the slot length used when neither the entry nor the table
// sets one.
const DefaultSlot = 10 * time.Millisecond

// ErrEmptyTable is returned for a schedule table without entries.
var ErrEmptyTable = errors.New("schedule table has no entries")

// Entry is one frame slot of a schedule table.
type Entry struct {
	Name string
	// Data is sent for a MasterRequest
	Data []byte
	// Length is the response length expected for a SlaveResponse
	Length    int
	Slot      time.Duration
	Direction lin.Direction
	Checksum  lin.ChecksumMode
	ID        byte
}

// Request returns the engine request for the entry.
func (e Entry) Request() lin.Request {
	return lin.Request{
		ID:        e.ID,
		Data:      e.Data,
		Length:    e.Length,
		Direction: e.Direction,
		Checksum:  e.Checksum,
	}
}

// Label returns the entry name, or its identifier when unnamed.
func (e Entry) Label() string {
	if e.Name != "" {
		return e.Name
	}
	return fmt.Sprintf("0x%02X", e.ID)
}

// expectedBytes is the number of bytes the engine waits for on this entry.
func (e Entry) expectedBytes() int {
	if e.Direction == lin.SlaveResponse {
		return 3 + e.Length + 1
	}
	return 3 + len(e.Data) + 1
}

// Table is an ordered schedule of frames, repeated cyclically.
type Table struct {
	Name    string
	Entries []Entry
}

// CycleTime returns the sum of all slots.
func (t *Table) CycleTime() time.Duration {
	var total time.Duration
	for _, e := range t.Entries {
		total += e.Slot
	}
	return total
}

// Validate checks every entry against the frame limits and makes sure each
// slot is long enough for the frame to time out inside it at cfg's timing.
func (t *Table) Validate(cfg lin.Config) error {
	if len(t.Entries) == 0 {
		return ErrEmptyTable
	}
	for i, e := range t.Entries {
		if e.ID > lin.MaxID {
			return fmt.Errorf("entry %d: %w: 0x%02X", i, lin.ErrInvalidID, e.ID)
		}
		if len(e.Data) > lin.MaxData || e.Length < 0 || e.Length > lin.MaxData {
			return fmt.Errorf("entry %d (%s): %w", i, e.Label(), lin.ErrDataTooLarge)
		}
		if need := cfg.Timeout(e.expectedBytes()); e.Slot < need {
			return fmt.Errorf("entry %d (%s): slot %v shorter than frame timeout %v",
				i, e.Label(), e.Slot, need)
		}
	}
	return nil
}

type rawTable struct {
	Name     string     `yaml:"name"`
	Checksum string     `yaml:"checksum"`
	Slot     string     `yaml:"slot"`
	Entries  []rawEntry `yaml:"entries"`
}

type rawEntry struct {
	ID        *int   `yaml:"id"`
	Length    *int   `yaml:"length"`
	Name      string `yaml:"name"`
	Direction string `yaml:"direction"`
	Checksum  string `yaml:"checksum"`
	Slot      string `yaml:"slot"`
	Data      []int  `yaml:"data"`
}

// LoadTable reads a YAML schedule table from path.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schedule table: %w", err)
	}
	table, err := ParseTable(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return table, nil
}

// ParseTable parses a YAML schedule table:
//
//	name: body
//	checksum: enhanced   # table default, "classic" or "enhanced"
//	slot: 10ms           # table default
//	entries:
//	  - id: 0x21
//	    direction: request
//	    data: [0x01, 0x80]
//	  - id: 0x22
//	    direction: response
//	    length: 4        # defaults to the LIN 1.x length of the id
//	    slot: 15ms
//
// Identifiers 0x3C and 0x3D default to the classic checksum.
func ParseTable(data []byte) (*Table, error) {
	var raw rawTable
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid schedule table: %w", err)
	}

	defaultMode := lin.ChecksumEnhanced
	if raw.Checksum != "" {
		mode, err := lin.ParseChecksumMode(raw.Checksum)
		if err != nil {
			return nil, err
		}
		defaultMode = mode
	}
	defaultSlot, err := parseSlot(raw.Slot, DefaultSlot)
	if err != nil {
		return nil, err
	}

	table := &Table{Name: raw.Name, Entries: make([]Entry, 0, len(raw.Entries))}
	for i := range raw.Entries {
		entry, err := raw.Entries[i].entry(defaultMode, defaultSlot)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		table.Entries = append(table.Entries, entry)
	}
	if len(table.Entries) == 0 {
		return nil, ErrEmptyTable
	}
	return table, nil
}

func (r *rawEntry) entry(defaultMode lin.ChecksumMode, defaultSlot time.Duration) (Entry, error) {
	if r.ID == nil {
		return Entry{}, errors.New("missing id")
	}
	if *r.ID < 0 || *r.ID > lin.MaxID {
		return Entry{}, fmt.Errorf("%w: %d", lin.ErrInvalidID, *r.ID)
	}
	e := Entry{Name: r.Name, ID: byte(*r.ID)}

	dir, err := lin.ParseDirection(r.Direction)
	if err != nil {
		return Entry{}, err
	}
	e.Direction = dir

	e.Checksum = defaultMode
	if e.ID == lin.MasterRequestID || e.ID == lin.SlaveResponseID {
		e.Checksum = lin.ChecksumClassic
	}
	if r.Checksum != "" {
		if e.Checksum, err = lin.ParseChecksumMode(r.Checksum); err != nil {
			return Entry{}, err
		}
	}

	if e.Slot, err = parseSlot(r.Slot, defaultSlot); err != nil {
		return Entry{}, err
	}

	switch dir {
	case lin.MasterRequest:
		if len(r.Data) > lin.MaxData {
			return Entry{}, fmt.Errorf("%w: %d bytes", lin.ErrDataTooLarge, len(r.Data))
		}
		e.Data = make([]byte, len(r.Data))
		for i, b := range r.Data {
			if b < 0 || b > 0xFF {
				return Entry{}, fmt.Errorf("data byte %d out of range: %d", i, b)
			}
			e.Data[i] = byte(b)
		}
	case lin.SlaveResponse:
		e.Length = lin.DefaultLength(e.ID)
		if r.Length != nil {
			e.Length = *r.Length
		}
		if e.Length < 0 || e.Length > lin.MaxData {
			return Entry{}, fmt.Errorf("%w: %d bytes", lin.ErrDataTooLarge, e.Length)
		}
	}
	return e, nil
}

func parseSlot(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid slot %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid slot %q: must be positive", s)
	}
	return d, nil
}
