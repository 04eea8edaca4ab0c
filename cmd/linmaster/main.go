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

// Command linmaster drives a LIN bus from a serial adapter: single frames,
// identifier scans, schedule tables and adapter discovery.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ZaparooProject/go-lin/cmd/linmaster/cmd"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	quitChan := make(chan os.Signal, 1)
	signal.Notify(quitChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		s := <-quitChan
		log.Printf("got %v, exiting", s)
		cancel()
		// Failsafe if the bus never lets go
		<-time.After(10 * time.Second)
		log.Fatal("took too long to shut down, forcefully exiting")
	}()

	code := cmd.Execute(ctx)
	cancel()
	os.Exit(code)
}
