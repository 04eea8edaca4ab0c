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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecWrappers(t *testing.T) {
	t.Parallel()

	assert.Equal(t, byte(0x50), ProtectedID(0x10))
	assert.Equal(t, byte(0xC1), ProtectedID(0x01))
	assert.Equal(t, byte(0xFC), Checksum(0x50, []byte{1, 2}, ChecksumClassic))
	assert.Equal(t, 8, DefaultLength(0x3C))
}

func TestParseChecksumMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    ChecksumMode
		wantErr bool
	}{
		{in: "classic", want: ChecksumClassic},
		{in: " Enhanced ", want: ChecksumEnhanced},
		{in: "lin1", want: ChecksumClassic},
		{in: "2.x", want: ChecksumEnhanced},
		{in: "crc", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseChecksumMode(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDirection(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Direction{
		"request":  MasterRequest,
		"MASTER":   MasterRequest,
		"response": SlaveResponse,
		"slave":    SlaveResponse,
	} {
		got, err := ParseDirection(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseDirection("sideways")
	assert.Error(t, err)
}
