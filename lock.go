package simcore

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// lockWeight is the full weight of a type lock's semaphore. A writer acquires
// all of it; each reader acquires one unit, so up to lockWeight readers may
// overlap.
const lockWeight = 1 << 30

// typeLock is the reader/writer lock guarding one component type. It is built
// on a weighted semaphore so acquisition can be bounded by a timeout: the
// semaphore's FIFO wait queue also keeps writers from starving under a steady
// stream of readers.
type typeLock struct {
	sem *semaphore.Weighted

	mu         sync.Mutex
	readers    int
	writerHeld bool
	writeSince time.Time
}

func newTypeLock() *typeLock {
	return &typeLock{sem: semaphore.NewWeighted(lockWeight)}
}

// tryRLockNow attempts an uncontended read acquisition without waiting.
func (l *typeLock) tryRLockNow() bool {
	if !l.sem.TryAcquire(1) {
		return false
	}
	l.noteReader(1)
	return true
}

// RLock blocks until a shared acquisition succeeds.
func (l *typeLock) RLock() {
	// Acquire with a background context never returns an error.
	_ = l.sem.Acquire(context.Background(), 1)
	l.noteReader(1)
}

// TryRLock waits up to timeout for a shared acquisition.
func (l *typeLock) TryRLock(timeout time.Duration) bool {
	if l.tryRLockNow() {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return false
	}
	l.noteReader(1)
	return true
}

// RUnlock releases one shared acquisition.
func (l *typeLock) RUnlock() {
	l.noteReader(-1)
	l.sem.Release(1)
}

// tryLockNow attempts an uncontended exclusive acquisition without waiting.
func (l *typeLock) tryLockNow() bool {
	if !l.sem.TryAcquire(lockWeight) {
		return false
	}
	l.noteWriter(true)
	return true
}

// Lock blocks until the exclusive acquisition succeeds.
func (l *typeLock) Lock() {
	_ = l.sem.Acquire(context.Background(), lockWeight)
	l.noteWriter(true)
}

// TryLock waits up to timeout for an exclusive acquisition.
func (l *typeLock) TryLock(timeout time.Duration) bool {
	if l.tryLockNow() {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := l.sem.Acquire(ctx, lockWeight); err != nil {
		return false
	}
	l.noteWriter(true)
	return true
}

// Unlock releases the exclusive acquisition.
func (l *typeLock) Unlock() {
	l.noteWriter(false)
	l.sem.Release(lockWeight)
}

func (l *typeLock) noteReader(delta int) {
	l.mu.Lock()
	l.readers += delta
	l.mu.Unlock()
}

func (l *typeLock) noteWriter(held bool) {
	l.mu.Lock()
	l.writerHeld = held
	if held {
		l.writeSince = time.Now()
	}
	l.mu.Unlock()
}

// Readers reports the number of shared holders.
func (l *typeLock) Readers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readers
}

// Writer reports whether the exclusive side is held and since when.
func (l *typeLock) Writer() (bool, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writerHeld, l.writeSince
}
