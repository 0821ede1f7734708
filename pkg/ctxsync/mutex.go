// Package ctxsync contains synchronization primitives that can be abandoned
// when a context is done.
package ctxsync

import (
	"context"
)

// Mutex is a mutual exclusion lock whose acquisition honors context
// cancellation. The zero value is not usable, use [NewMutex].
type Mutex struct {
	sem chan struct{}
}

// NewMutex returns an unlocked Mutex.
func NewMutex() *Mutex {
	return &Mutex{sem: make(chan struct{}, 1)}
}

// Lock locks m, waiting as long as needed.
func (m *Mutex) Lock() {
	m.sem <- struct{}{}
}

// LockWithContext locks m or returns the context error if ctx is done first.
// An already cancelled context never acquires the lock.
func (m *Mutex) LockWithContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case m.sem <- struct{}{}:
		return nil
	}
}

// TryLock tries to lock m and reports whether it succeeded.
func (m *Mutex) TryLock() bool {
	select {
	case m.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

// Unlock unlocks m. It panics if m is not locked.
func (m *Mutex) Unlock() {
	select {
	case <-m.sem:
	default:
		panic("ctxsync: unlock of unlocked mutex")
	}
}
