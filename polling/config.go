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

import "time"

// SleepRecoveryConfig configures recovery after the host sleeps or the
// process is stalled long enough to break the schedule.
type SleepRecoveryConfig struct {
	// Enabled enables time discontinuity detection
	Enabled bool

	// TimeDiscontinuityThreshold is how far past its slot an entry may start
	// before the gap counts as a sleep. Default: 2 seconds
	TimeDiscontinuityThreshold time.Duration

	// MaxRecoveryAttempts is the number of recovery attempts before the
	// session gives up. Default: 3
	MaxRecoveryAttempts int

	// RecoveryBackoff is the delay between recovery attempts
	RecoveryBackoff time.Duration
}

// DefaultSleepRecoveryConfig returns the default sleep recovery settings
func DefaultSleepRecoveryConfig() SleepRecoveryConfig {
	return SleepRecoveryConfig{
		Enabled:                    true,
		TimeDiscontinuityThreshold: 2 * time.Second,
		MaxRecoveryAttempts:        3,
		RecoveryBackoff:            500 * time.Millisecond,
	}
}

// DetectSleep reports whether elapsed exceeds expected by more than the
// discontinuity threshold.
func (cfg SleepRecoveryConfig) DetectSleep(elapsed, expected time.Duration) bool {
	if !cfg.Enabled {
		return false
	}
	return elapsed > expected+cfg.TimeDiscontinuityThreshold
}

// Config holds session options.
type Config struct {
	// PollInterval is the pause between engine polls while a frame is on
	// the bus. It should stay well below one byte period.
	PollInterval time.Duration
	// Cycles stops the session after this many passes over the table.
	// Zero runs until the context ends.
	Cycles int
	// MissLimit is the number of consecutive failed responses after which
	// a node is reported lost. Default: 3
	MissLimit int
	// SleepRecovery configures time discontinuity handling
	SleepRecovery SleepRecoveryConfig
}

// DefaultConfig returns the default session configuration
func DefaultConfig() *Config {
	return &Config{
		PollInterval:  200 * time.Microsecond,
		MissLimit:     3,
		SleepRecovery: DefaultSleepRecoveryConfig(),
	}
}
