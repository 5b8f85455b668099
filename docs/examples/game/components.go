package game

import (
	"sync"

	"github.com/antonzymin-eng/simcore"
)

// Position is a world-space location.
type Position struct {
	X, Y float64
}

// Velocity is movement per second.
type Velocity struct {
	DX, DY float64
}

// Health tracks hit points for combat.
type Health struct {
	Current int
	Max     int
}

// MemoryStore is a minimal in-memory EntityStore for the examples. The access
// manager serializes component access through its per-type locks, so the
// store's own mutex only guards entity creation against in-flight frames.
type MemoryStore struct {
	mu         sync.Mutex
	next       uint32
	components map[simcore.ComponentType]map[simcore.EntityID]any
	order      map[simcore.ComponentType][]simcore.EntityID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		components: make(map[simcore.ComponentType]map[simcore.EntityID]any),
		order:      make(map[simcore.ComponentType][]simcore.EntityID),
	}
}

// Spawn mints an entity and attaches the given components. Component values
// must be pointers so guards observe mutations.
func (s *MemoryStore) Spawn(components map[simcore.ComponentType]any) simcore.EntityID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	id := simcore.EntityIDFromParts(s.next, 1)
	for t, c := range components {
		bucket, ok := s.components[t]
		if !ok {
			bucket = make(map[simcore.EntityID]any)
			s.components[t] = bucket
		}
		bucket[id] = c
		s.order[t] = append(s.order[t], id)
	}
	return id
}

func (s *MemoryStore) Component(id simcore.EntityID, t simcore.ComponentType) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.components[t][id]
	return c, ok
}

func (s *MemoryStore) Entities(t simcore.ComponentType) []simcore.EntityID {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]simcore.EntityID, len(s.order[t]))
	copy(ids, s.order[t])
	return ids
}
