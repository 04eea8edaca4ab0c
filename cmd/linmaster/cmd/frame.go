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
	"context"
	"fmt"
	"time"

	lin "github.com/ZaparooProject/go-lin"
	"github.com/avast/retry-go"
	"github.com/spf13/cobra"
)

var (
	checksumName string
	readLength   int
	retries      uint
)

var sendCmd = &cobra.Command{
	Use:   "send ID [DATA...]",
	Short: "send a master request frame",
	Long: `Send a header followed by data bytes from the master. ID and DATA are hex,
for example: linmaster send 10 01 FF`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		data, err := parseData(args[1:])
		if err != nil {
			return err
		}
		return runSingle(cmd.Context(), lin.Request{
			ID:        id,
			Data:      data,
			Direction: lin.MasterRequest,
		})
	},
}

var readCmd = &cobra.Command{
	Use:   "read ID",
	Short: "read a slave response frame",
	Long: `Send a header and read the response of the slave publishing ID. Without
--length the length follows the identifier range (2, 4 or 8 bytes).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		length := readLength
		if length <= 0 {
			length = lin.DefaultLength(id)
		}
		return runSingle(cmd.Context(), lin.Request{
			ID:        id,
			Length:    length,
			Direction: lin.SlaveResponse,
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{sendCmd, readCmd} {
		c.Flags().StringVarP(&checksumName, "checksum", "c", "enhanced", "checksum model: classic or enhanced")
		c.Flags().UintVarP(&retries, "retries", "r", 3, "attempts for frames that fail on the bus")
		rootCmd.AddCommand(c)
	}
	readCmd.Flags().IntVarP(&readLength, "length", "l", 0, "expected data bytes")
}

func runSingle(ctx context.Context, req lin.Request) error {
	mode, err := lin.ParseChecksumMode(checksumName)
	if err != nil {
		return err
	}
	req.Checksum = mode

	b, err := openBus(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = b.Close() }()

	res, err := transact(ctx, b.engine, req, retries)
	fmt.Println(formatResult(res))
	return err
}

// transact runs req until it succeeds, fails for a reason another frame
// cannot fix, or attempts run out.
func transact(ctx context.Context, eng *lin.Engine, req lin.Request, attempts uint) (lin.Result, error) {
	var res lin.Result
	err := retry.Do(func() error {
		var err error
		res, err = eng.Run(ctx, req, lin.DefaultPollInterval)
		if err != nil {
			return err
		}
		return res.Err()
	},
		retry.Context(ctx),
		retry.Attempts(max(attempts, 1)),
		retry.Delay(5*time.Millisecond),
		retry.RetryIf(lin.IsRetryable),
		retry.OnRetry(func(n uint, err error) {
			lin.Debugf("id=0x%02X attempt %d: %v", req.ID, n+1, err)
		}),
		retry.LastErrorOnly(true),
	)
	return res, err
}
