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

// Package cmd holds the linmaster command tree.
package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	lin "github.com/ZaparooProject/go-lin"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "linmaster",
	Short: "LIN bus master",
	Long: `Drive a LIN bus as master through a serial adapter.

Use --port sim to talk to a simulated bus with a few demo slaves, or leave
--port empty to pick the best adapter found on this host.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(*cobra.Command, []string) {
		if logPath != "" {
			_ = lin.CloseSessionLog()
		}
	},
}

var (
	portName       string
	logDir         string
	ledTx          string
	ledRx          string
	baudRate       int
	timeoutFactor  float64
	breakThreshold float64
	minTimeout     time.Duration
	debug          bool
	sessionLog     bool
	ledActiveLow   bool

	logPath string
)

// Execute runs the command tree and returns the process exit code.
func Execute(ctx context.Context) int {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}

func init() {
	log.SetFlags(0)
	defaults := lin.DefaultConfig()
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&portName, "port", "p", "", "serial port, \"sim\" for the simulated bus, empty to auto-detect")
	pf.IntVarP(&baudRate, "baudrate", "b", defaults.BaudRate, "nominal bus baud rate")
	pf.Float64Var(&timeoutFactor, "timeout-factor", defaults.TimeoutFactor, "frame deadline as a multiple of the nominal frame time")
	pf.Float64Var(&breakThreshold, "break-threshold", defaults.BreakThreshold, "byte periods to wait after the break byte")
	pf.DurationVar(&minTimeout, "min-timeout", defaults.MinTimeout, "floor for the frame deadline, for slow USB adapters")
	pf.BoolVarP(&debug, "debug", "d", false, "print engine steps")
	pf.BoolVar(&sessionLog, "log", false, "write a session log file")
	pf.StringVar(&logDir, "log-dir", "", "directory for the session log")
	pf.StringVar(&ledTx, "led-tx", "", "GPIO pin lit while transmitting, e.g. GPIO17")
	pf.StringVar(&ledRx, "led-rx", "", "GPIO pin lit while waiting for the bus")
	pf.BoolVar(&ledActiveLow, "led-active-low", false, "drive the LED pins low to light them")
}

func setup(*cobra.Command, []string) error {
	if debug {
		lin.SetDebugEnabled(true)
	}
	if sessionLog {
		path, err := lin.InitSessionLog(logDir)
		if err != nil {
			return err
		}
		logPath = path
		lin.LogSessionInfo("Port", portName)
		if cfg, err := engineConfig(); err == nil {
			lin.LogSessionConfig(cfg)
		}
		log.Printf("session log: %s", path)
	}
	return nil
}

func engineConfig() (lin.Config, error) {
	cfg := lin.DefaultConfig()
	cfg.BaudRate = baudRate
	cfg.TimeoutFactor = timeoutFactor
	cfg.BreakThreshold = breakThreshold
	cfg.MinTimeout = minTimeout
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("bad line settings: %w", err)
	}
	return cfg, nil
}
