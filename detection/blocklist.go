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

package detection

import (
	"path/filepath"
	"slices"
	"strings"
)

// DefaultBlocklist returns USB devices that must never be probed.
// Format: VID:PID in hexadecimal, case-insensitive.
func DefaultBlocklist() []string {
	return []string{
		// Arduino boards reset when DTR toggles on open
		"2341:0043",
		"2341:0001",
		"2A03:0043",
		// Sierra Wireless and Quectel cellular modems expose AT ports
		"1199:9071",
		"2C7C:0125",
	}
}

// IsBlocked reports whether vidpid is in the blocklist.
func IsBlocked(vidpid string, blocklist []string) bool {
	vidpid = normalizeVIDPID(vidpid)
	if vidpid == "" {
		return false
	}
	return slices.ContainsFunc(blocklist, func(blocked string) bool {
		return normalizeVIDPID(blocked) == vidpid
	})
}

func normalizeVIDPID(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// ParseVIDPID extracts "VID:PID" from a USB descriptor string. Accepted
// forms are "VID:1234 PID:5678", "vendor=1234 product=5678", "VID=1234 PID=5678",
// "USB VID:PID=0403:6001" and plain "1234:5678". It returns "" when no pair is found.
func ParseVIDPID(descriptor string) string {
	descriptor = strings.ToUpper(descriptor)

	if idx := strings.Index(descriptor, "VID:PID="); idx >= 0 {
		if fields := strings.Fields(descriptor[idx+8:]); len(fields) > 0 {
			return ParseVIDPID(fields[0])
		}
		return ""
	}

	vid := hexAfter(descriptor, "VID:", "VENDOR=", "VID=", "VID_")
	pid := hexAfter(descriptor, "PID:", "PRODUCT=", "PID=", "PID_")
	if vid != "" && pid != "" {
		return vid + ":" + pid
	}

	parts := strings.Split(strings.TrimSpace(descriptor), ":")
	if len(parts) == 2 && isHex(parts[0]) && isHex(parts[1]) {
		return parts[0] + ":" + parts[1]
	}
	return ""
}

// hexAfter returns the hex run following the first key present in s.
func hexAfter(s string, keys ...string) string {
	for _, key := range keys {
		if idx := strings.Index(s, key); idx >= 0 {
			return extractHex(s[idx+len(key):])
		}
	}
	return ""
}

// extractHex extracts the leading run of upper-case hex digits.
func extractHex(s string) string {
	end := strings.IndexFunc(s, func(r rune) bool {
		return (r < '0' || r > '9') && (r < 'A' || r > 'F')
	})
	if end < 0 {
		return s
	}
	return s[:end]
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'A' || r > 'F') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// IsPathIgnored reports whether devicePath matches an entry of ignorePaths,
// comparing cleaned paths case-insensitively.
func IsPathIgnored(devicePath string, ignorePaths []string) bool {
	if devicePath == "" {
		return false
	}

	device := normalizedPath(devicePath)
	for _, ignorePath := range ignorePaths {
		if ignorePath == "" {
			continue
		}
		if ignorePath == devicePath || normalizedPath(ignorePath) == device {
			return true
		}
	}
	return false
}

// normalizedPath cleans the path and lower-cases it for Windows port names.
func normalizedPath(path string) string {
	return strings.ToLower(filepath.Clean(path))
}
