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

package cmd

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	lin "github.com/ZaparooProject/go-lin"
	"github.com/fatih/color"
)

var (
	green  = color.New(color.FgGreen).SprintfFunc()
	red    = color.New(color.FgRed).SprintfFunc()
	yellow = color.New(color.FgYellow).SprintfFunc()
)

var errNoData = errors.New("no data bytes")

// parseID accepts a frame identifier in hex, with or without a 0x prefix.
func parseID(s string) (byte, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0, fmt.Errorf("bad frame id %q: %w", s, err)
	}
	if v > lin.MaxID {
		return 0, fmt.Errorf("%w: 0x%02X", lin.ErrInvalidID, v)
	}
	return byte(v), nil
}

// parseData turns hex arguments into bytes. Arguments may be single bytes
// ("01 0x02") or runs of bytes ("0102", "01:02", "01-02").
func parseData(args []string) ([]byte, error) {
	var out []byte
	for _, arg := range args {
		s := strings.NewReplacer(":", "", "-", "", " ", "").Replace(arg)
		s = strings.TrimPrefix(strings.ToLower(s), "0x")
		if len(s)%2 == 1 {
			s = "0" + s
		}
		b, err := hex.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("bad data %q: %w", arg, err)
		}
		out = append(out, b...)
	}
	if len(out) > lin.MaxData {
		return nil, fmt.Errorf("%w: %d bytes", lin.ErrDataTooLarge, len(out))
	}
	return out, nil
}

// checksumModel reports which checksum model validates raw, the bytes read
// back for a slave response: break, sync, protected id, data, checksum.
func checksumModel(raw []byte) (lin.ChecksumMode, error) {
	if len(raw) < 5 {
		return 0, errNoData
	}
	pid := raw[2]
	data := raw[3 : len(raw)-1]
	chk := raw[len(raw)-1]
	switch chk {
	case lin.Checksum(pid, data, lin.ChecksumEnhanced):
		return lin.ChecksumEnhanced, nil
	case lin.Checksum(pid, data, lin.ChecksumClassic):
		return lin.ChecksumClassic, nil
	}
	return 0, fmt.Errorf("checksum 0x%02X matches neither model", chk)
}

func hexBytes(data []byte) string {
	if len(data) == 0 {
		return "-"
	}
	return strings.ToUpper(hex.EncodeToString(data))
}

// formatResult renders one finished transaction on a single line.
func formatResult(res lin.Result) string {
	head := fmt.Sprintf("0x%02X %-8s", res.ID, res.Direction)
	if !res.OK() {
		return fmt.Sprintf("%s %s %s", head, red("%-8s", res.Errors.String()), res.Elapsed)
	}
	data := res.Data
	if res.Direction == lin.MasterRequest {
		data = nil
	}
	return fmt.Sprintf("%s %s %s %s", head, green("%-8s", "OK"), hexBytes(data), res.Elapsed)
}
