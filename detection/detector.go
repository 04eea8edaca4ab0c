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

// Package detection finds serial adapters that can drive a LIN bus.
//
// Transport specific detectors register themselves on import:
//
//	import _ "github.com/ZaparooProject/go-lin/detection/uart"
//
//	devices, err := detection.DetectAll(ctx, &opts)
package detection

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"
)

// Mode sets how far detection may go to confirm an adapter.
type Mode int

const (
	// Passive only inspects USB descriptors and never opens a port.
	Passive Mode = iota
	// Probe opens each candidate port and sends one frame header to check
	// that the adapter echoes it back, as a LIN transceiver does.
	Probe
)

// String returns the mode name
func (m Mode) String() string {
	switch m {
	case Passive:
		return "passive"
	case Probe:
		return "probe"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Confidence is how sure detection is that a port reaches a LIN bus.
type Confidence int

const (
	// Low: a generic USB-serial adapter.
	Low Confidence = iota
	// Medium: the descriptor matches a known LIN interface.
	Medium
	// High: the port echoed a probe frame.
	High
)

// String returns the confidence name
func (c Confidence) String() string {
	switch c {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	default:
		return "unknown"
	}
}

// DeviceInfo describes a detected adapter.
type DeviceInfo struct {
	// Metadata holds descriptor details such as "vidpid", "chip",
	// "product" and "serial".
	Metadata map[string]string
	// Transport type, e.g. "uart"
	Transport string
	// Path to open, e.g. "/dev/ttyUSB0" or "COM3"
	Path       string
	Name       string
	Confidence Confidence
}

// String returns a human-readable representation of the device
func (d DeviceInfo) String() string {
	return fmt.Sprintf("%s device at %s (confidence: %s)", d.Transport, d.Path, d.Confidence)
}

// Options configures detection.
type Options struct {
	// USB VID:PID pairs to skip (e.g., ["1234:5678", "ABCD:EF01"])
	Blocklist []string
	// Device paths to skip (e.g., ["/dev/ttyUSB0", "COM2"])
	IgnorePaths []string
	// Transports to check, empty means all
	Transports []string
	CacheTTL   time.Duration
	// Timeout bounds a single probe
	Timeout time.Duration
	// BaudRate used when probing
	BaudRate    int
	Mode        Mode
	EnableCache bool
}

// DefaultOptions returns passive detection with caching.
func DefaultOptions() Options {
	return Options{
		Mode:        Passive,
		Timeout:     time.Second,
		BaudRate:    19200,
		Blocklist:   DefaultBlocklist(),
		EnableCache: true,
		CacheTTL:    30 * time.Second,
	}
}

// Detector searches one transport type for adapters.
type Detector interface {
	Detect(ctx context.Context, opts *Options) ([]DeviceInfo, error)
	Transport() string
}

var (
	// ErrNoDevicesFound indicates no LIN adapters were detected
	ErrNoDevicesFound = errors.New("no LIN adapters found")
	// ErrDetectionTimeout indicates the context ended before every detector finished
	ErrDetectionTimeout = errors.New("detection timeout")
	// ErrNoDetectors indicates no registered detector matches Options.Transports
	ErrNoDetectors = errors.New("no detectors available for specified transports")
)

var registry []Detector

// RegisterDetector adds a detector to the registry
func RegisterDetector(d Detector) {
	registry = append(registry, d)
}

func getDetectors(transports []string) []Detector {
	if len(transports) == 0 {
		return registry
	}

	var filtered []Detector
	for _, d := range registry {
		if slices.Contains(transports, d.Transport()) {
			filtered = append(filtered, d)
		}
	}
	return filtered
}

type detectionResult struct {
	err     error
	devices []DeviceInfo
}

// DetectAll runs every matching detector in parallel. Devices are returned
// best confidence first; a detector failure is only reported when nothing
// was found at all.
func DetectAll(ctx context.Context, opts *Options) ([]DeviceInfo, error) {
	return detectWith(ctx, getDetectors(opts.Transports), opts)
}

func detectWith(ctx context.Context, detectors []Detector, opts *Options) ([]DeviceInfo, error) {
	if len(detectors) == 0 {
		return nil, ErrNoDetectors
	}

	results := make(chan detectionResult, len(detectors))
	for _, d := range detectors {
		go func() {
			results <- runSingleDetector(ctx, d, opts)
		}()
	}

	var devices []DeviceInfo
	var errs []error
	for range detectors {
		select {
		case res := <-results:
			if res.err != nil {
				errs = append(errs, res.err)
				continue
			}
			devices = append(devices, res.devices...)
		case <-ctx.Done():
			return nil, ErrDetectionTimeout
		}
	}

	if len(devices) == 0 {
		if len(errs) > 0 {
			return nil, errs[0]
		}
		return nil, ErrNoDevicesFound
	}

	slices.SortStableFunc(devices, func(a, b DeviceInfo) int {
		return int(b.Confidence) - int(a.Confidence)
	})
	return devices, nil
}

func runSingleDetector(ctx context.Context, d Detector, opts *Options) detectionResult {
	if opts.EnableCache {
		if cached, found := cache.get(d.Transport(), opts.CacheTTL); found {
			// cached entries were filtered with the options of an earlier call
			return detectionResult{devices: filterDevices(cached, opts)}
		}
	}

	devices, err := d.Detect(ctx, opts)
	if err != nil && !errors.Is(err, ErrNoDevicesFound) {
		return detectionResult{err: fmt.Errorf("%s detection: %w", d.Transport(), err)}
	}

	if opts.EnableCache {
		if len(devices) > 0 {
			cache.set(d.Transport(), devices)
		} else {
			// an unplugged adapter must not linger until the TTL expires
			cache.clearTransport(d.Transport())
		}
	}

	return detectionResult{devices: devices}
}

// filterDevices applies IgnorePaths and Blocklist to a device list.
func filterDevices(devices []DeviceInfo, opts *Options) []DeviceInfo {
	if len(opts.IgnorePaths) == 0 && len(opts.Blocklist) == 0 {
		return devices
	}

	var filtered []DeviceInfo
	for _, device := range devices {
		if IsPathIgnored(device.Path, opts.IgnorePaths) {
			continue
		}
		if vidpid, ok := device.Metadata["vidpid"]; ok && IsBlocked(vidpid, opts.Blocklist) {
			continue
		}
		filtered = append(filtered, device)
	}
	return filtered
}

// ClearDetectionCache removes all cached detection results
func ClearDetectionCache() {
	cache.clear()
}

// ClearDetectionCacheForTransport removes cached results for one transport
func ClearDetectionCacheForTransport(transport string) {
	cache.clearTransport(transport)
}
