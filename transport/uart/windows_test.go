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

package uart

import (
	"errors"
	"runtime"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWindowsPlatformDetection(t *testing.T) {
	t.Parallel()
	assert.Equal(t, runtime.GOOS == "windows", isWindows())
}

func TestReadPollTimeout(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		assert.Equal(t, 20*time.Millisecond, readPollTimeout())
	} else {
		assert.Equal(t, 5*time.Millisecond, readPollTimeout())
	}
}

func TestIsInterruptedSystemCall(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "errno", err: syscall.EINTR, want: true},
		{name: "text", err: errors.New("read /dev/ttyUSB0: interrupted system call"), want: true},
		{name: "other", err: errors.New("device not configured"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, isInterruptedSystemCall(tt.err))
		})
	}
}
