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
	"log"
	"time"

	lin "github.com/ZaparooProject/go-lin"
	"github.com/ZaparooProject/go-lin/bridge/mqtt"
	"github.com/ZaparooProject/go-lin/polling"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	brokerURL     string
	cycles        int
	statsInterval time.Duration
	quiet         bool
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule TABLE",
	Short: "run a schedule table",
	Long: `Run the frames of a YAML schedule table in a loop, report slaves that
appear or go quiet and optionally publish everything to an MQTT broker, e.g.
--mqtt mqtt://broker:1883/car/lin?qos=1`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := polling.LoadTable(args[0])
		if err != nil {
			return err
		}

		var pub *mqtt.Publisher
		if brokerURL != "" {
			pub, err = mqtt.NewPublisherFromURL(brokerURL)
			if err != nil {
				return err
			}
			if err := pub.Connect(cmd.Context()); err != nil {
				return err
			}
			defer func() { _ = pub.Close() }()
		}

		b, err := openBus(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = b.Close() }()

		err = runSchedule(cmd.Context(), b, table, pub)
		if errors.Is(err, context.Canceled) && cmd.Context().Err() != nil {
			return nil
		}
		return err
	},
}

func init() {
	f := scheduleCmd.Flags()
	f.StringVar(&brokerURL, "mqtt", "", "broker URL to publish frames, nodes and stats to")
	f.IntVarP(&cycles, "cycles", "n", 0, "stop after this many cycles, 0 runs until interrupted")
	f.DurationVar(&statsInterval, "stats", 10*time.Second, "how often to report statistics")
	f.BoolVarP(&quiet, "quiet", "q", false, "only print node changes and statistics")
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(ctx context.Context, b *bus, table *polling.Table, pub *mqtt.Publisher) error {
	cfg := polling.DefaultConfig()
	cfg.Cycles = cycles

	sess, err := polling.NewSession(b.engine, table, cfg)
	if err != nil {
		return err
	}
	if b.reopen != nil {
		sess.SetRecoverer(polling.NewDefaultRecoverer(
			b.engine, b.reopen, cfg.SleepRecovery.RecoveryBackoff, cfg.SleepRecovery.MaxRecoveryAttempts))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	var queue *mqtt.FrameQueue
	if pub != nil {
		queue = pub.NewFrameQueue(mqtt.DefaultQueueSize)
		g.Go(func() error {
			return queue.Run(gctx)
		})
	}
	wireSession(gctx, sess, pub, queue)
	log.Printf("running %q, %d frames, cycle %v", table.Name, len(table.Entries), table.CycleTime())

	g.Go(func() error {
		defer cancel()
		return sess.Run(gctx)
	})
	g.Go(func() error {
		return reportStats(gctx, sess, pub)
	})
	err = g.Wait()
	if queue != nil && queue.Dropped() > 0 {
		log.Printf("mqtt: %d frames dropped while the broker lagged", queue.Dropped())
	}
	return err
}

func wireSession(ctx context.Context, sess *polling.Session, pub *mqtt.Publisher, queue *mqtt.FrameQueue) {
	var publishFrame polling.FrameHandler
	var publishNode polling.NodeHandler
	if queue != nil {
		publishFrame = queue.Handler()
	}
	if pub != nil {
		publishNode = pub.NodeHandler(ctx)
	}

	sess.SetOnFrame(func(entry polling.Entry, res lin.Result) error {
		if !quiet {
			fmt.Printf("%-12s %s\n", entry.Label(), formatResult(res))
		}
		if publishFrame != nil {
			return publishFrame(entry, res)
		}
		return nil
	})
	sess.SetOnNodeFound(func(node polling.NodeState) {
		fmt.Println(green("0x%02X present %s", node.ID, hexBytes(node.LastData)))
		if publishNode != nil {
			publishNode(node)
		}
	})
	sess.SetOnNodeLost(func(node polling.NodeState) {
		fmt.Println(red("0x%02X lost after %d misses", node.ID, node.Misses))
		if publishNode != nil {
			publishNode(node)
		}
	})
}

// reportStats prints statistics every statsInterval and once more when ctx ends.
func reportStats(ctx context.Context, sess *polling.Session, pub *mqtt.Publisher) error {
	report := func() {
		stats := sess.Stats()
		log.Println(stats)
		if pub != nil {
			// ctx may already be done here; the final report gets its own deadline
			pctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := pub.PublishStats(pctx, stats); err != nil {
				log.Printf("stats: %v", err)
			}
		}
	}

	if statsInterval <= 0 {
		<-ctx.Done()
		report()
		return nil
	}
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			report()
			return nil
		case <-ticker.C:
			report()
		}
	}
}
