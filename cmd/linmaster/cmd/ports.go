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
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/ZaparooProject/go-lin/detection"
	"github.com/spf13/cobra"
)

var (
	probePorts bool
	ignore     []string
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "list serial adapters that may carry a LIN bus",
	Long: `List USB serial adapters that look like LIN interfaces. With --probe each
candidate is opened and must echo a header before it is listed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		opts := detection.DefaultOptions()
		opts.BaudRate = baudRate
		opts.IgnorePaths = ignore
		opts.EnableCache = false
		if probePorts {
			opts.Mode = detection.Probe
		}

		devices, err := detection.DetectAll(cmd.Context(), &opts)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "PATH\tCONFIDENCE\tVID:PID\tCHIP\tPRODUCT")
		for _, d := range devices {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				d.Path, d.Confidence, d.Metadata["vidpid"], d.Metadata["chip"], d.Metadata["product"])
		}
		return w.Flush()
	},
}

func init() {
	portsCmd.Flags().BoolVar(&probePorts, "probe", false, "open each candidate and check that it echoes a header")
	portsCmd.Flags().StringSliceVar(&ignore, "ignore", nil, "device paths to skip")
	rootCmd.AddCommand(portsCmd)
}
