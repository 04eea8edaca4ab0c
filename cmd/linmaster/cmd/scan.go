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
	"errors"
	"fmt"

	lin "github.com/ZaparooProject/go-lin"
	"github.com/k0kubun/go-ansi"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	scanFrom string
	scanTo   string
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "find which identifiers have a publishing slave",
	Long: `Send a header for every identifier in range and report the ones a slave
answers, together with the checksum model the slave uses.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		from, err := parseID(scanFrom)
		if err != nil {
			return err
		}
		to, err := parseID(scanTo)
		if err != nil {
			return err
		}
		if from > to {
			return fmt.Errorf("empty range 0x%02X..0x%02X", from, to)
		}

		b, err := openBus(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = b.Close() }()

		found, err := scan(cmd.Context(), b.engine, from, to, newBar(int(to-from)+1, "scanning"))
		fmt.Println()
		for _, f := range found {
			fmt.Printf("0x%02X %-8s %s\n", f.id, f.mode, hexBytes(f.data))
		}
		if len(found) == 0 && err == nil {
			fmt.Println(yellow("no slave answered"))
		}
		return err
	},
}

func init() {
	scanCmd.Flags().StringVar(&scanFrom, "from", "00", "first identifier")
	scanCmd.Flags().StringVar(&scanTo, "to", "3B", "last identifier")
	rootCmd.AddCommand(scanCmd)
}

type scanHit struct {
	data []byte
	mode lin.ChecksumMode
	id   byte
}

// stepper advances once per identifier tried.
type stepper interface {
	Add(n int) error
}

func scan(ctx context.Context, eng *lin.Engine, from, to byte, bar stepper) ([]scanHit, error) {
	var found []scanHit
	for id := int(from); id <= int(to); id++ {
		if id == lin.MasterRequestID {
			_ = bar.Add(1)
			continue
		}
		req := lin.Request{
			ID:        byte(id),
			Length:    lin.DefaultLength(byte(id)),
			Direction: lin.SlaveResponse,
			Checksum:  lin.ChecksumEnhanced,
		}
		res, err := eng.Run(ctx, req, lin.DefaultPollInterval)
		if err != nil {
			return found, err
		}
		_ = bar.Add(1)

		switch {
		case res.OK():
			found = append(found, scanHit{id: res.ID, mode: lin.ChecksumEnhanced, data: res.Data})
		case res.Errors == lin.ErrorChecksum:
			mode, err := checksumModel(res.Raw)
			if err != nil {
				lin.Debugf("id=0x%02X: %v", id, err)
				continue
			}
			found = append(found, scanHit{id: res.ID, mode: mode, data: res.Data})
		case errors.Is(res.Err(), lin.ErrorTransport):
			return found, res.Err()
		}
	}
	return found, nil
}

func newBar(length int, text string) *progressbar.ProgressBar {
	return progressbar.NewOptions(
		length,
		progressbar.OptionSetWriter(ansi.NewAnsiStdout()),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(20),
		progressbar.OptionSetDescription(text),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
