package simcore_test

import (
	"sync"
	"time"

	"github.com/antonzymin-eng/simcore"
)

type position struct {
	X, Y float64
}

type velocity struct {
	DX, DY float64
}

type health struct {
	HP int
}

// fakeStore is a minimal EntityStore for tests. The access manager serializes
// guard access, but tests also poke it directly, so it carries its own mutex.
type fakeStore struct {
	mu         sync.Mutex
	components map[simcore.ComponentType]map[simcore.EntityID]any
	order      map[simcore.ComponentType][]simcore.EntityID
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		components: make(map[simcore.ComponentType]map[simcore.EntityID]any),
		order:      make(map[simcore.ComponentType][]simcore.EntityID),
	}
}

func (s *fakeStore) put(t simcore.ComponentType, id simcore.EntityID, c any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.components[t]
	if !ok {
		bucket = make(map[simcore.EntityID]any)
		s.components[t] = bucket
	}
	if _, exists := bucket[id]; !exists {
		s.order[t] = append(s.order[t], id)
	}
	bucket[id] = c
}

func (s *fakeStore) Component(id simcore.EntityID, t simcore.ComponentType) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.components[t]
	if !ok {
		return nil, false
	}
	c, ok := bucket[id]
	return c, ok
}

func (s *fakeStore) Entities(t simcore.ComponentType) []simcore.EntityID {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.order[t]
	out := make([]simcore.EntityID, len(ids))
	copy(out, ids)
	return out
}

func putComponent[T any](s *fakeStore, id simcore.EntityID, c *T) {
	s.put(simcore.TypeKeyFor[T](), id, c)
}

func newManagerWithStore(t interface{ Fatalf(string, ...any) }) (*simcore.AccessManager, *fakeStore) {
	store := newFakeStore()
	m, err := simcore.NewAccessManager(store)
	if err != nil {
		t.Fatalf("NewAccessManager: %v", err)
	}
	return m, store
}

// stubSystem is a configurable System for manager tests.
type stubSystem struct {
	name     string
	strategy simcore.ThreadingStrategy

	mu        sync.Mutex
	updates   int
	shutdowns int

	initErr  error
	updateFn func(delta time.Duration) error
}

func (s *stubSystem) Initialize() error { return s.initErr }

func (s *stubSystem) Update(delta time.Duration) error {
	s.mu.Lock()
	s.updates++
	s.mu.Unlock()
	if s.updateFn != nil {
		return s.updateFn(delta)
	}
	return nil
}

func (s *stubSystem) Shutdown() error {
	s.mu.Lock()
	s.shutdowns++
	s.mu.Unlock()
	return nil
}

func (s *stubSystem) Name() string { return s.name }

func (s *stubSystem) DefaultStrategy() simcore.ThreadingStrategy { return s.strategy }

func (s *stubSystem) updateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

func (s *stubSystem) shutdownCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdowns
}

// recordingObserver captures frame summaries.
type recordingObserver struct {
	mu        sync.Mutex
	summaries []simcore.FrameSummary
}

func (o *recordingObserver) FrameCompleted(summary simcore.FrameSummary) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.summaries = append(o.summaries, summary)
}

func (o *recordingObserver) last() (simcore.FrameSummary, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.summaries) == 0 {
		return simcore.FrameSummary{}, false
	}
	return o.summaries[len(o.summaries)-1], true
}

func (o *recordingObserver) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.summaries)
}

// captureLogger records messages for assertions.
type captureLogger struct {
	mu   sync.Mutex
	msgs []string
}

func (l *captureLogger) With(string, any) simcore.Logger { return l }

func (l *captureLogger) Info(msg string, _ ...any) {
	l.mu.Lock()
	l.msgs = append(l.msgs, msg)
	l.mu.Unlock()
}

func (l *captureLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.msgs = append(l.msgs, msg)
	l.mu.Unlock()
}

func (l *captureLogger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.msgs)
}
