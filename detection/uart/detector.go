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

// Package uart finds USB-serial LIN adapters. Importing it registers the
// detector with the detection package.
package uart

import (
	"context"
	"fmt"
	"strings"

	lin "github.com/ZaparooProject/go-lin"
	"github.com/ZaparooProject/go-lin/detection"
	"github.com/ZaparooProject/go-lin/transport/uart"
	"go.bug.st/serial/enumerator"
)

// ProbeID is the frame identifier used when probing. 0x3F is reserved, so
// no slave acts on it.
const ProbeID = 0x3F

// knownChips are USB-serial bridges found in LIN adapters.
var knownChips = map[string]string{
	"0403:6001": "FTDI FT232R",
	"0403:6010": "FTDI FT2232",
	"0403:6014": "FTDI FT232H",
	"0403:6015": "FTDI FT230X",
	"10C4:EA60": "Silicon Labs CP210x",
	"1A86:7523": "QinHeng CH340",
	"1A86:55D3": "QinHeng CH343",
	"067B:2303": "Prolific PL2303",
}

// probeDeviceFn is replaced in tests.
var probeDeviceFn = probeDevice

type detector struct {
	list func() ([]*enumerator.PortDetails, error)
}

// New creates a UART detector backed by the OS port enumerator.
func New() detection.Detector {
	return &detector{list: enumerator.GetDetailedPortsList}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return string(lin.TransportUART)
}

// Detect lists USB serial ports and keeps those that look like LIN adapters.
// In probe mode a candidate is only kept when it echoes a probe frame.
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	ports, err := d.list()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	var devices []detection.DeviceInfo
	for _, port := range filterPorts(ports, opts) {
		if ctx.Err() != nil {
			break
		}
		if device, ok := processPort(ctx, port, opts); ok {
			devices = append(devices, device)
		}
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

// filterPorts drops non-USB, blocked and ignored ports.
func filterPorts(ports []*enumerator.PortDetails, opts *detection.Options) []*enumerator.PortDetails {
	var filtered []*enumerator.PortDetails
	for _, port := range ports {
		if port == nil || !port.IsUSB {
			continue
		}
		if detection.IsBlocked(vidpid(port), opts.Blocklist) {
			continue
		}
		if detection.IsPathIgnored(port.Name, opts.IgnorePaths) {
			continue
		}
		filtered = append(filtered, port)
	}
	return filtered
}

// processPort rates a port and probes it when asked to. A failed probe
// discards the port whatever its descriptor says.
func processPort(
	ctx context.Context, port *enumerator.PortDetails, opts *detection.Options,
) (detection.DeviceInfo, bool) {
	confidence, ok := rate(port)
	if !ok {
		return detection.DeviceInfo{}, false
	}

	device := newDeviceInfo(port, confidence)
	if opts.Mode != detection.Probe {
		return device, true
	}

	if !probeDeviceFn(ctx, port.Name, opts) {
		lin.Debugf("probe of %s got no LIN echo", port.Name)
		return detection.DeviceInfo{}, false
	}
	device.Confidence = detection.High
	return device, true
}

// rate returns the descriptor confidence, or false for unrelated USB devices.
func rate(port *enumerator.PortDetails) (detection.Confidence, bool) {
	if hasLINKeyword(port.Product) {
		return detection.Medium, true
	}
	if _, ok := knownChips[vidpid(port)]; ok {
		return detection.Low, true
	}
	return detection.Low, false
}

// hasLINKeyword matches product strings of LIN interfaces and transceivers,
// such as "USB-LIN", "LIN Bus Adapter" or "TJA1021 board".
func hasLINKeyword(product string) bool {
	words := strings.FieldsFunc(strings.ToLower(product), func(r rune) bool {
		return (r < 'a' || r > 'z') && (r < '0' || r > '9')
	})
	for _, w := range words {
		switch {
		case w == "lin", w == "linbus":
			return true
		case strings.HasPrefix(w, "tja10"), strings.HasPrefix(w, "mcp20"):
			return true
		}
	}
	return false
}

func vidpid(port *enumerator.PortDetails) string {
	if port.VID == "" || port.PID == "" {
		return ""
	}
	return strings.ToUpper(port.VID + ":" + port.PID)
}

func newDeviceInfo(port *enumerator.PortDetails, confidence detection.Confidence) detection.DeviceInfo {
	device := detection.DeviceInfo{
		Transport:  string(lin.TransportUART),
		Path:       port.Name,
		Name:       port.Product,
		Confidence: confidence,
		Metadata:   make(map[string]string),
	}
	if id := vidpid(port); id != "" {
		device.Metadata["vidpid"] = id
		if chip, ok := knownChips[id]; ok {
			device.Metadata["chip"] = chip
		}
	}
	if port.Product != "" {
		device.Metadata["product"] = port.Product
	}
	if port.SerialNumber != "" {
		device.Metadata["serial"] = port.SerialNumber
	}
	if device.Name == "" {
		device.Name = port.Name
	}
	return device
}

// probeDevice opens the port and sends one header-only master request on
// ProbeID. A LIN transceiver reads back everything it drives, so a clean
// echo confirms one is attached. A plain serial port without a transceiver
// times out.
//
// Only one attempt is made per port.
func probeDevice(ctx context.Context, path string, opts *detection.Options) bool {
	cfg := lin.DefaultConfig()
	if opts.BaudRate > 0 {
		cfg.BaudRate = opts.BaudRate
	}

	transport, err := uart.New(path, cfg.BaudRate)
	if err != nil {
		return false
	}
	defer func() { _ = transport.Close() }()

	eng, err := lin.New(transport, lin.WithConfig(cfg), lin.WithName("probe"))
	if err != nil {
		return false
	}

	probeCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	res, err := eng.Run(probeCtx, lin.Request{
		ID:        ProbeID,
		Direction: lin.MasterRequest,
		Checksum:  lin.ChecksumClassic,
	}, 0)
	if err != nil {
		return false
	}
	return res.OK()
}
