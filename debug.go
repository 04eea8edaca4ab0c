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
	"fmt"
	"os"
)

// debugEnabled controls whether debug lines also go to the console
var debugEnabled = false

func init() {
	if os.Getenv("LIN_DEBUG") != "" || os.Getenv("DEBUG") != "" {
		debugEnabled = true
	}
}

// Debugf logs a formatted debug line. It always goes to the session log,
// if one is open, and to the console only in debug mode.
func Debugf(format string, args ...any) {
	emitDebug(fmt.Sprintf(format, args...))
}

// Debugln logs its operands like fmt.Sprint, same destinations as Debugf.
func Debugln(args ...any) {
	emitDebug(fmt.Sprint(args...))
}

func emitDebug(message string) {
	writeSessionLine("DEBUG: " + message)
	if debugEnabled {
		_, _ = fmt.Printf("DEBUG: %s\n", message)
	}
}

// SetDebugEnabled turns console debug output on or off
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// debugStep logs a state machine step. It returns before formatting when
// nobody is listening, since the engine calls it on every poll.
func debugStep(name string, format string, args ...any) {
	if !debugEnabled && !sessionLogOpen() {
		return
	}
	Debugf("LIN[%s] "+format, append([]any{name}, args...)...)
}
