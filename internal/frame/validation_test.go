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

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRequest(t *testing.T) {
	t.Parallel()

	t.Run("MasterRequest", func(t *testing.T) {
		t.Parallel()
		buf := make([]byte, MaxFrameLen)
		tx, rxLen, err := BuildRequest(buf, 0x10, []byte{0x01, 0x02}, 2, MasterRequest, ChecksumClassic)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x00, 0x55, 0x50, 0x01, 0x02, 0xFC}, tx)
		assert.Equal(t, len(tx), rxLen)
	})

	t.Run("MasterRequestNoData", func(t *testing.T) {
		t.Parallel()
		buf := make([]byte, MaxFrameLen)
		tx, rxLen, err := BuildRequest(buf, 0x10, nil, 0, MasterRequest, ChecksumEnhanced)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x00, 0x55, 0x50, ^byte(0x50)}, tx)
		assert.Equal(t, 4, rxLen)
	})

	t.Run("SlaveResponse", func(t *testing.T) {
		t.Parallel()
		buf := make([]byte, MaxFrameLen)
		tx, rxLen, err := BuildRequest(buf, 0x21, nil, 4, SlaveResponse, ChecksumEnhanced)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x00, 0x55, 0x61}, tx)
		assert.Equal(t, HeaderLen+4+1, rxLen)
	})

	t.Run("InvalidID", func(t *testing.T) {
		t.Parallel()
		buf := make([]byte, MaxFrameLen)
		_, _, err := BuildRequest(buf, 0x40, nil, 0, MasterRequest, ChecksumClassic)
		require.ErrorIs(t, err, ErrInvalidID)
	})

	t.Run("DataTooLarge", func(t *testing.T) {
		t.Parallel()
		buf := make([]byte, MaxFrameLen)
		_, _, err := BuildRequest(buf, 0x01, make([]byte, 9), 9, MasterRequest, ChecksumClassic)
		require.ErrorIs(t, err, ErrDataTooLarge)
		_, _, err = BuildRequest(buf, 0x01, nil, 9, SlaveResponse, ChecksumClassic)
		require.ErrorIs(t, err, ErrDataTooLarge)
	})

	t.Run("ShortBuffer", func(t *testing.T) {
		t.Parallel()
		_, _, err := BuildRequest(make([]byte, 4), 0x01, nil, 0, MasterRequest, ChecksumClassic)
		require.Error(t, err)
	})
}

func TestValidateResponse(t *testing.T) {
	t.Parallel()

	request := []byte{0x00, 0x55, 0x50, 0x01, 0x02, 0xFC}
	header := []byte{0x00, 0x55, 0x50}

	tests := []struct {
		name string
		tx   []byte
		rx   []byte
		dir  Direction
		mode ChecksumMode
		want Fault
	}{
		{
			name: "request echo ok",
			tx:   request,
			rx:   []byte{0x00, 0x55, 0x50, 0x01, 0x02, 0xFC},
			dir:  MasterRequest,
			want: 0,
		},
		{
			name: "request data collision",
			tx:   request,
			rx:   []byte{0x00, 0x55, 0x50, 0x01, 0x00, 0xFC},
			dir:  MasterRequest,
			want: FaultEcho,
		},
		{
			name: "request sync collision",
			tx:   request,
			rx:   []byte{0x00, 0x54, 0x50, 0x01, 0x02, 0xFC},
			dir:  MasterRequest,
			want: FaultEcho,
		},
		{
			name: "request short echo",
			tx:   request,
			rx:   []byte{0x00, 0x55, 0x50},
			dir:  MasterRequest,
			want: FaultEcho,
		},
		{
			name: "response ok",
			tx:   header,
			rx:   []byte{0x00, 0x55, 0x50, 0x7F, 0x30},
			dir:  SlaveResponse,
			mode: ChecksumEnhanced,
			want: 0,
		},
		{
			name: "response bad checksum",
			tx:   header,
			rx:   []byte{0x00, 0x55, 0x50, 0x7F, 0x31},
			dir:  SlaveResponse,
			mode: ChecksumEnhanced,
			want: FaultChecksum,
		},
		{
			name: "response classic slave read as enhanced",
			tx:   header,
			rx:   []byte{0x00, 0x55, 0x50, 0x7F, 0x80},
			dir:  SlaveResponse,
			mode: ChecksumEnhanced,
			want: FaultChecksum,
		},
		{
			name: "response header collision",
			tx:   header,
			rx:   []byte{0x00, 0x55, 0x51, 0x7F, 0x30},
			dir:  SlaveResponse,
			mode: ChecksumEnhanced,
			want: FaultEcho,
		},
		{
			name: "response collision and bad checksum",
			tx:   header,
			rx:   []byte{0x00, 0x15, 0x50, 0x7F, 0x00},
			dir:  SlaveResponse,
			mode: ChecksumEnhanced,
			want: FaultEcho | FaultChecksum,
		},
		{
			name: "response truncated",
			tx:   header,
			rx:   []byte{0x00, 0x55},
			dir:  SlaveResponse,
			mode: ChecksumClassic,
			want: FaultEcho | FaultChecksum,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ValidateResponse(tt.tx, tt.rx, tt.dir, tt.mode))
		})
	}
}

func TestResponseData(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []byte{0x7F}, ResponseData([]byte{0x00, 0x55, 0x50, 0x7F, 0x30}))
	assert.Empty(t, ResponseData([]byte{0x00, 0x55, 0x50, 0xAF}))
	assert.Nil(t, ResponseData([]byte{0x00, 0x55}))
}
