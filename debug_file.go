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
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/ZaparooProject/go-lin/internal/frame"
	"github.com/ZaparooProject/go-lin/internal/syncutil"
)

// Session log state
var (
	sessionLogFile   *os.File
	sessionLogWriter io.Writer
	sessionLogPath   string
	sessionLogMu     syncutil.Mutex
)

const stampLayout = "15:04:05.000"

// InitSessionLog creates lin_<timestamp>.log in dir, or in the current
// directory when dir is empty, and returns its path. A log that is already
// open is closed first.
func InitSessionLog(dir string) (string, error) {
	if err := CloseSessionLog(); err != nil {
		return "", err
	}

	filename := filepath.Join(dir, fmt.Sprintf("lin_%s.log", time.Now().Format("20060102_150405")))
	logFile, err := os.Create(filename) //nolint:gosec // filename is constructed internally, not user input
	if err != nil {
		return "", fmt.Errorf("failed to create session log: %w", err)
	}

	sessionLogMu.Lock()
	defer sessionLogMu.Unlock()
	sessionLogFile = logFile
	sessionLogPath = filename
	sessionLogWriter = logFile
	writeSessionHeader(logFile)
	return filename, nil
}

// CloseSessionLog writes the footer and closes the session log, if any.
func CloseSessionLog() error {
	sessionLogMu.Lock()
	defer sessionLogMu.Unlock()
	if sessionLogFile == nil {
		return nil
	}

	_, _ = fmt.Fprintf(sessionLogWriter, "\n%s === Session ended ===\n", time.Now().Format(stampLayout))
	err := sessionLogFile.Close()
	sessionLogFile = nil
	sessionLogPath = ""
	sessionLogWriter = nil
	if err != nil {
		return fmt.Errorf("failed to close session log: %w", err)
	}
	return nil
}

// LogSessionInfo appends an untimestamped "key: value" line to the session
// log, for setup details such as the port name.
func LogSessionInfo(key string, value any) {
	sessionLogMu.Lock()
	defer sessionLogMu.Unlock()
	if sessionLogWriter == nil {
		return
	}
	_, _ = fmt.Fprintf(sessionLogWriter, "%s: %v\n", key, value)
}

// LogSessionConfig records the line settings and the timing they produce
// for the largest frame.
func LogSessionConfig(cfg Config) {
	LogSessionInfo("Baud Rate", cfg.BaudRate)
	LogSessionInfo("Bits Per Byte", cfg.BitsPerByte)
	LogSessionInfo("Byte Period", cfg.BytePeriod())
	LogSessionInfo("Break", fmt.Sprintf("%v (%.2f byte periods)", cfg.BreakDuration(), cfg.BreakThreshold))
	LogSessionInfo("Max Frame Timeout", fmt.Sprintf("%v (factor %.2f, floor %v)",
		cfg.Timeout(frame.MaxFrameLen), cfg.TimeoutFactor, cfg.MinTimeout))
}

// GetSessionLogPath returns the current session log file path.
func GetSessionLogPath() string {
	sessionLogMu.Lock()
	defer sessionLogMu.Unlock()
	return sessionLogPath
}

func sessionLogOpen() bool {
	sessionLogMu.Lock()
	defer sessionLogMu.Unlock()
	return sessionLogWriter != nil
}

func writeSessionLine(line string) {
	sessionLogMu.Lock()
	defer sessionLogMu.Unlock()
	if sessionLogWriter == nil {
		return
	}
	_, _ = fmt.Fprintf(sessionLogWriter, "%s %s\n", time.Now().Format(stampLayout), line)
}

func writeSessionHeader(w io.Writer) {
	_, _ = fmt.Fprint(w, "=== LIN Master Debug Session Log ===\n")
	_, _ = fmt.Fprintf(w, "Started: %s\n", time.Now().Format(time.RFC3339))
	_, _ = fmt.Fprintf(w, "PID: %d\n", os.Getpid())
	_, _ = fmt.Fprintf(w, "OS: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	_, _ = fmt.Fprintf(w, "Go Version: %s\n", runtime.Version())
	if exe, err := os.Executable(); err == nil {
		_, _ = fmt.Fprintf(w, "Executable: %s\n", exe)
	}
	_, _ = fmt.Fprintf(w, "Command Line: %s\n", strings.Join(os.Args, " "))
	_, _ = fmt.Fprint(w, "====================================\n\n")
}
