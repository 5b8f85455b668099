package simcore

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// AccessManager owns one reader/writer lock per component type and issues
// scoped guards over the external entity store. Locks are created lazily on
// first access and live as long as the manager. There is no implicit global
// lock: the LockAll escape hatch is the only whole-state acquisition, and it
// must not be interleaved with per-type guards without a fixed ordering.
type AccessManager struct {
	store  EntityStore
	logger Logger

	mu    sync.RWMutex
	locks map[ComponentType]*typeLock

	stats      *AccessStats
	monitoring atomic.Bool

	// holdWarn is the diagnostic threshold after which a held write lock is
	// reported by DetectPotentialDeadlock.
	holdWarn time.Duration

	allMu        sync.Mutex
	allHeld      []ComponentType
	allExclusive bool
}

// AccessOption configures an AccessManager.
type AccessOption func(*AccessManager)

// WithAccessLogger supplies a logger for diagnostics.
func WithAccessLogger(logger Logger) AccessOption {
	return func(m *AccessManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithHoldWarnThreshold overrides the lock-hold duration after which the
// deadlock diagnostics flag a component.
func WithHoldWarnThreshold(d time.Duration) AccessOption {
	return func(m *AccessManager) {
		if d > 0 {
			m.holdWarn = d
		}
	}
}

// NewAccessManager constructs a manager over the provided store.
func NewAccessManager(store EntityStore, opts ...AccessOption) (*AccessManager, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	m := &AccessManager{
		store:    store,
		logger:   noopLogger{},
		locks:    make(map[ComponentType]*typeLock),
		stats:    NewAccessStats(),
		holdWarn: time.Second,
	}
	m.monitoring.Store(true)
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Store exposes the backing entity store collaborator.
func (m *AccessManager) Store() EntityStore {
	return m.store
}

// Statistics exposes the access counters.
func (m *AccessManager) Statistics() *AccessStats {
	return m.stats
}

// EnableMonitoring toggles contention-time accounting.
func (m *AccessManager) EnableMonitoring(enable bool) {
	m.monitoring.Store(enable)
}

// MonitoringEnabled reports whether contention accounting is active.
func (m *AccessManager) MonitoringEnabled() bool {
	return m.monitoring.Load()
}

// ResetStatistics clears all access counters.
func (m *AccessManager) ResetStatistics() {
	m.stats.Reset()
}

func (m *AccessManager) lockFor(t ComponentType) *typeLock {
	m.mu.RLock()
	l, ok := m.locks[t]
	m.mu.RUnlock()
	if ok {
		return l
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok = m.locks[t]; ok {
		return l
	}
	l = newTypeLock()
	m.locks[t] = l
	return l
}

// acquireRead takes the shared side of the type's lock, recording contention
// when the fast path misses.
func (m *AccessManager) acquireRead(t ComponentType) *typeLock {
	l := m.lockFor(t)
	if !l.tryRLockNow() {
		start := time.Now()
		l.RLock()
		if m.monitoring.Load() {
			m.stats.RecordContention(t, time.Since(start))
		}
	}
	m.stats.RecordRead(t)
	return l
}

// acquireWrite takes the exclusive side of the type's lock.
func (m *AccessManager) acquireWrite(t ComponentType) *typeLock {
	l := m.lockFor(t)
	if !l.tryLockNow() {
		start := time.Now()
		l.Lock()
		if m.monitoring.Load() {
			m.stats.RecordContention(t, time.Since(start))
		}
	}
	m.stats.RecordWrite(t)
	return l
}

// TryLockForRead attempts a shared acquisition, waiting at most timeout.
// On success it returns a release function and true; the caller must invoke
// the release exactly once. On timeout it returns (nil, false) instead of
// blocking, leaving deadlock avoidance to the caller.
func (m *AccessManager) TryLockForRead(t ComponentType, timeout time.Duration) (func(), bool) {
	l := m.lockFor(t)
	start := time.Now()
	if !l.TryRLock(timeout) {
		if m.monitoring.Load() {
			m.stats.RecordContention(t, time.Since(start))
		}
		return nil, false
	}
	m.stats.RecordRead(t)
	var once sync.Once
	return func() { once.Do(l.RUnlock) }, true
}

// TryLockForWrite attempts an exclusive acquisition, waiting at most timeout.
func (m *AccessManager) TryLockForWrite(t ComponentType, timeout time.Duration) (func(), bool) {
	l := m.lockFor(t)
	start := time.Now()
	if !l.TryLock(timeout) {
		if m.monitoring.Load() {
			m.stats.RecordContention(t, time.Since(start))
		}
		return nil, false
	}
	m.stats.RecordWrite(t)
	var once sync.Once
	return func() { once.Do(l.Unlock) }, true
}

func (m *AccessManager) knownTypes() []ComponentType {
	m.mu.RLock()
	types := make([]ComponentType, 0, len(m.locks))
	for t := range m.locks {
		types = append(types, t)
	}
	m.mu.RUnlock()
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// LockAllComponentsForRead acquires every known type lock in sorted order.
// Intended for whole-state operations such as a full save; callers must not
// hold per-type guards while invoking it.
func (m *AccessManager) LockAllComponentsForRead() {
	types := m.knownTypes()
	for _, t := range types {
		m.lockFor(t).RLock()
	}
	m.allMu.Lock()
	m.allHeld = types
	m.allExclusive = false
	m.allMu.Unlock()
}

// LockAllComponentsForWrite acquires every known type lock exclusively, in
// sorted order.
func (m *AccessManager) LockAllComponentsForWrite() {
	types := m.knownTypes()
	for _, t := range types {
		m.lockFor(t).Lock()
	}
	m.allMu.Lock()
	m.allHeld = types
	m.allExclusive = true
	m.allMu.Unlock()
}

// UnlockAllComponents releases the locks taken by the last LockAll call, in
// reverse order. Calling it without a prior LockAll is a no-op.
func (m *AccessManager) UnlockAllComponents() {
	m.allMu.Lock()
	held := m.allHeld
	exclusive := m.allExclusive
	m.allHeld = nil
	m.allMu.Unlock()

	for i := len(held) - 1; i >= 0; i-- {
		l := m.lockFor(held[i])
		if exclusive {
			l.Unlock()
		} else {
			l.RUnlock()
		}
	}
}

// DetectPotentialDeadlock reports components whose write lock has been held
// longer than the warning threshold. It is diagnostic only: it neither
// prevents nor resolves a deadlock, and it cannot see orderings a caller
// violates across multiple types.
func (m *AccessManager) DetectPotentialDeadlock() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var report []string
	now := time.Now()
	for t, l := range m.locks {
		held, since := l.Writer()
		if held && now.Sub(since) > m.holdWarn {
			report = append(report, fmt.Sprintf("component %s: write lock held for %s", t, now.Sub(since).Round(time.Millisecond)))
		}
	}
	sort.Strings(report)
	return report
}

// HasDeadlocks reports whether the diagnostics flagged any component.
func (m *AccessManager) HasDeadlocks() bool {
	return len(m.DetectPotentialDeadlock()) > 0
}

// LockedComponents lists component types with at least one active holder.
func (m *AccessManager) LockedComponents() []ComponentType {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ComponentType
	for t, l := range m.locks {
		held, _ := l.Writer()
		if held || l.Readers() > 0 {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ActiveReadLocks returns the number of shared holders for a type.
func (m *AccessManager) ActiveReadLocks(t ComponentType) int {
	return m.lockFor(t).Readers()
}

// HasWriteLock reports whether a type's exclusive side is held.
func (m *AccessManager) HasWriteLock(t ComponentType) bool {
	held, _ := m.lockFor(t).Writer()
	return held
}

// PerformanceReport renders the statistics table as human-readable lines.
func (m *AccessManager) PerformanceReport() []string {
	snapshots := m.stats.Snapshot()
	report := make([]string, 0, len(snapshots))
	for _, snap := range snapshots {
		line := fmt.Sprintf("%s - Reads: %d, Writes: %d", snap.Type, snap.Reads, snap.Writes)
		if snap.ContentionEvents > 0 {
			line += fmt.Sprintf(", Contention: %d events / %s", snap.ContentionEvents, snap.ContentionTime.Round(time.Microsecond))
		}
		report = append(report, line)
	}
	return report
}
