//go:build deadlock

// Package syncutil provides the mutex types used by the transports and the
// virtual bus, with lock-order and timeout reporting from go-deadlock.
package syncutil

import deadlock "github.com/sasha-s/go-deadlock"

// Mutex is a deadlock-detecting mutex.
type Mutex struct {
	deadlock.Mutex
}

// RWMutex is a deadlock-detecting read/write mutex.
type RWMutex struct {
	deadlock.RWMutex
}
