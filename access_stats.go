package simcore

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// componentStats holds per-type access counters. Counts are atomic so the
// read/write hot paths never take a lock; the contention-time accumulator is
// a float under its own mutex because repeated atomic float addition would
// drift.
type componentStats struct {
	reads            atomic.Uint64
	writes           atomic.Uint64
	contentionEvents atomic.Uint64

	timeMu         sync.Mutex
	contentionTime float64 // milliseconds
}

// AccessStats aggregates access counters per component type.
type AccessStats struct {
	mu    sync.RWMutex
	stats map[ComponentType]*componentStats
}

// NewAccessStats constructs an empty statistics table.
func NewAccessStats() *AccessStats {
	return &AccessStats{stats: make(map[ComponentType]*componentStats)}
}

func (s *AccessStats) statsFor(t ComponentType) *componentStats {
	s.mu.RLock()
	cs, ok := s.stats[t]
	s.mu.RUnlock()
	if ok {
		return cs
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cs, ok = s.stats[t]; ok {
		return cs
	}
	cs = &componentStats{}
	s.stats[t] = cs
	return cs
}

// RecordRead counts one successful shared access.
func (s *AccessStats) RecordRead(t ComponentType) {
	s.statsFor(t).reads.Add(1)
}

// RecordWrite counts one successful exclusive access.
func (s *AccessStats) RecordWrite(t ComponentType) {
	s.statsFor(t).writes.Add(1)
}

// RecordContention counts one contended acquisition and accumulates the time
// spent waiting for the lock.
func (s *AccessStats) RecordContention(t ComponentType, wait time.Duration) {
	cs := s.statsFor(t)
	cs.contentionEvents.Add(1)
	cs.timeMu.Lock()
	cs.contentionTime += float64(wait) / float64(time.Millisecond)
	cs.timeMu.Unlock()
}

// ReadCount returns the number of shared accesses recorded for a type.
func (s *AccessStats) ReadCount(t ComponentType) uint64 {
	return s.statsFor(t).reads.Load()
}

// WriteCount returns the number of exclusive accesses recorded for a type.
func (s *AccessStats) WriteCount(t ComponentType) uint64 {
	return s.statsFor(t).writes.Load()
}

// ContentionCount returns the number of contended acquisitions for a type.
func (s *AccessStats) ContentionCount(t ComponentType) uint64 {
	return s.statsFor(t).contentionEvents.Load()
}

// AverageContentionTime returns the mean wait per contended acquisition.
func (s *AccessStats) AverageContentionTime(t ComponentType) time.Duration {
	cs := s.statsFor(t)
	events := cs.contentionEvents.Load()
	if events == 0 {
		return 0
	}
	cs.timeMu.Lock()
	total := cs.contentionTime
	cs.timeMu.Unlock()
	return time.Duration(total / float64(events) * float64(time.Millisecond))
}

// MostContended lists component types ordered by accumulated contention time,
// worst first. Types with no contention are omitted.
func (s *AccessStats) MostContended() []ComponentType {
	type entry struct {
		t    ComponentType
		time float64
	}

	s.mu.RLock()
	entries := make([]entry, 0, len(s.stats))
	for t, cs := range s.stats {
		cs.timeMu.Lock()
		total := cs.contentionTime
		cs.timeMu.Unlock()
		if total > 0 {
			entries = append(entries, entry{t: t, time: total})
		}
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].time == entries[j].time {
			return entries[i].t < entries[j].t
		}
		return entries[i].time > entries[j].time
	})

	out := make([]ComponentType, len(entries))
	for i, e := range entries {
		out[i] = e.t
	}
	return out
}

// ComponentSnapshot is a point-in-time copy of one type's counters.
type ComponentSnapshot struct {
	Type             ComponentType
	Reads            uint64
	Writes           uint64
	ContentionEvents uint64
	ContentionTime   time.Duration
}

// Snapshot copies all counters, sorted by component type.
func (s *AccessStats) Snapshot() []ComponentSnapshot {
	s.mu.RLock()
	out := make([]ComponentSnapshot, 0, len(s.stats))
	for t, cs := range s.stats {
		cs.timeMu.Lock()
		total := cs.contentionTime
		cs.timeMu.Unlock()
		out = append(out, ComponentSnapshot{
			Type:             t,
			Reads:            cs.reads.Load(),
			Writes:           cs.writes.Load(),
			ContentionEvents: cs.contentionEvents.Load(),
			ContentionTime:   time.Duration(total * float64(time.Millisecond)),
		})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// Reset clears every counter.
func (s *AccessStats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cs := range s.stats {
		cs.reads.Store(0)
		cs.writes.Store(0)
		cs.contentionEvents.Store(0)
		cs.timeMu.Lock()
		cs.contentionTime = 0
		cs.timeMu.Unlock()
	}
}
