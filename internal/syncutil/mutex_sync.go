//go:build !deadlock

// Package syncutil provides the mutex types used by the transports and the
// virtual bus. Plain sync mutexes are used unless the module is built with
// -tags=deadlock, which swaps in github.com/sasha-s/go-deadlock.
package syncutil

import "sync"

// Mutex is a sync.Mutex.
//
//nolint:gocritic // Embedding exposes Lock/Unlock directly
type Mutex struct {
	sync.Mutex
}

// RWMutex is a sync.RWMutex.
//
//nolint:gocritic // Embedding exposes the locking methods directly
type RWMutex struct {
	sync.RWMutex
}
