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
	"os"
	"path/filepath"
	"testing"
	"time"

	lin "github.com/ZaparooProject/go-lin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bodyYAML = `
name: body
checksum: enhanced
slot: 20ms
entries:
  - name: lights
    id: 0x21
    direction: request
    data: [0x01, 0x80]
  - id: 0x22
    direction: response
    length: 4
    slot: 15ms
  - id: 0x32
    direction: slave
  - id: 0x3C
    direction: master
    data: [0x7F, 0x06, 0xB2, 0x00, 0xFF, 0x7F, 0xFF, 0xFF]
  - id: 0x3D
    direction: response
    checksum: enhanced
`

func TestParseTable(t *testing.T) {
	t.Parallel()

	table, err := ParseTable([]byte(bodyYAML))
	require.NoError(t, err)
	assert.Equal(t, "body", table.Name)
	require.Len(t, table.Entries, 5)

	lights := table.Entries[0]
	assert.Equal(t, "lights", lights.Label())
	assert.Equal(t, byte(0x21), lights.ID)
	assert.Equal(t, lin.MasterRequest, lights.Direction)
	assert.Equal(t, []byte{0x01, 0x80}, lights.Data)
	assert.Equal(t, lin.ChecksumEnhanced, lights.Checksum)
	assert.Equal(t, 20*time.Millisecond, lights.Slot)

	resp := table.Entries[1]
	assert.Equal(t, "0x22", resp.Label())
	assert.Equal(t, lin.SlaveResponse, resp.Direction)
	assert.Equal(t, 4, resp.Length)
	assert.Equal(t, 15*time.Millisecond, resp.Slot)

	assert.Equal(t, 8, table.Entries[2].Length, "length follows the identifier when omitted")
	assert.Equal(t, lin.ChecksumClassic, table.Entries[3].Checksum, "diagnostic frames default to classic")
	assert.Equal(t, lin.ChecksumEnhanced, table.Entries[4].Checksum, "explicit checksum wins")

	assert.Equal(t, 95*time.Millisecond, table.CycleTime())
	require.NoError(t, table.Validate(lin.DefaultConfig()))

	req := lights.Request()
	assert.Equal(t, lin.Request{ID: 0x21, Data: []byte{0x01, 0x80}, Direction: lin.MasterRequest,
		Checksum: lin.ChecksumEnhanced}, req)
}

func TestParseTable_Defaults(t *testing.T) {
	t.Parallel()

	table, err := ParseTable([]byte("entries:\n  - id: 5\n    direction: response\n"))
	require.NoError(t, err)
	e := table.Entries[0]
	assert.Equal(t, DefaultSlot, e.Slot)
	assert.Equal(t, lin.ChecksumEnhanced, e.Checksum)
	assert.Equal(t, 2, e.Length)
}

func TestParseTable_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		wantIs  error
		name    string
		yaml    string
		wantMsg string
	}{
		{name: "invalid yaml", yaml: "entries: [", wantMsg: "invalid schedule table"},
		{name: "no entries", yaml: "name: empty\n", wantIs: ErrEmptyTable},
		{name: "missing id", yaml: "entries:\n  - direction: request\n", wantMsg: "entry 0: missing id"},
		{name: "id too large", yaml: "entries:\n  - id: 64\n    direction: request\n", wantIs: lin.ErrInvalidID},
		{name: "bad direction", yaml: "entries:\n  - id: 1\n    direction: up\n", wantMsg: "unknown frame direction"},
		{name: "bad table checksum", yaml: "checksum: crc\nentries:\n  - id: 1\n", wantMsg: "unknown checksum model"},
		{
			name:    "bad entry checksum",
			yaml:    "entries:\n  - id: 1\n    direction: request\n    checksum: sum\n",
			wantMsg: "unknown checksum model",
		},
		{
			name:   "too much data",
			yaml:   "entries:\n  - id: 1\n    direction: request\n    data: [1,2,3,4,5,6,7,8,9]\n",
			wantIs: lin.ErrDataTooLarge,
		},
		{
			name:    "data byte out of range",
			yaml:    "entries:\n  - id: 1\n    direction: request\n    data: [256]\n",
			wantMsg: "data byte 0 out of range",
		},
		{
			name:   "response too long",
			yaml:   "entries:\n  - id: 1\n    direction: response\n    length: 9\n",
			wantIs: lin.ErrDataTooLarge,
		},
		{name: "bad slot", yaml: "slot: soon\nentries:\n  - id: 1\n    direction: request\n", wantMsg: `invalid slot "soon"`},
		{
			name:    "negative slot",
			yaml:    "entries:\n  - id: 1\n    direction: request\n    slot: -5ms\n",
			wantMsg: "must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseTable([]byte(tt.yaml))
			require.Error(t, err)
			if tt.wantIs != nil {
				require.ErrorIs(t, err, tt.wantIs)
			}
			if tt.wantMsg != "" {
				assert.ErrorContains(t, err, tt.wantMsg)
			}
		})
	}
}

func TestLoadTable(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "body.yaml")
	require.NoError(t, os.WriteFile(path, []byte(bodyYAML), 0o600))

	table, err := LoadTable(path)
	require.NoError(t, err)
	assert.Len(t, table.Entries, 5)

	_, err = LoadTable(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "failed to read schedule table")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("entries: []\n"), 0o600))
	_, err = LoadTable(bad)
	require.ErrorIs(t, err, ErrEmptyTable)
	assert.ErrorContains(t, err, bad)
}

func TestTable_Validate(t *testing.T) {
	t.Parallel()

	cfg := lin.DefaultConfig()
	tests := []struct {
		wantIs  error
		name    string
		wantMsg string
		entries []Entry
	}{
		{name: "empty", wantIs: ErrEmptyTable},
		{
			name:    "id out of range",
			entries: []Entry{{ID: 0x40, Slot: time.Second}},
			wantIs:  lin.ErrInvalidID,
		},
		{
			name:    "data too large",
			entries: []Entry{{ID: 1, Data: make([]byte, 9), Slot: time.Second}},
			wantIs:  lin.ErrDataTooLarge,
		},
		{
			name:    "slot too short for an 8 byte response",
			entries: []Entry{{ID: 1, Direction: lin.SlaveResponse, Length: 8, Slot: 5 * time.Millisecond}},
			wantMsg: "shorter than frame timeout",
		},
		{
			name:    "slot fits",
			entries: []Entry{{ID: 1, Direction: lin.SlaveResponse, Length: 8, Slot: cfg.Timeout(12)}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			table := &Table{Entries: tt.entries}
			err := table.Validate(cfg)
			switch {
			case tt.wantIs != nil:
				require.ErrorIs(t, err, tt.wantIs)
			case tt.wantMsg != "":
				require.ErrorContains(t, err, tt.wantMsg)
			default:
				require.NoError(t, err)
			}
		})
	}
}
