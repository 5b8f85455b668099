package simcore

import "reflect"

// TypeKeyFor derives the ComponentType key for a Go component type. The key
// is the type's package-qualified name, so distinct component types never
// collide on one lock.
func TypeKeyFor[T any]() ComponentType {
	var p *T
	return ComponentType(reflect.TypeOf(p).Elem().String())
}

// ReadGuard is a scoped shared acquisition over a single component. The guard
// owns the lock acquisition for its lifetime; it must not be copied, and
// Release must run on every exit path (typically via defer). A guard may be
// invalid when the entity lacks the component: that is not an error, and the
// lock is still held until Release.
type ReadGuard[T any] struct {
	component *T
	lock      *typeLock
	released  bool
}

// ReadComponent acquires the shared lock for T and resolves the entity's
// component. Check Valid before dereferencing.
func ReadComponent[T any](m *AccessManager, id EntityID) *ReadGuard[T] {
	t := TypeKeyFor[T]()
	l := m.acquireRead(t)
	g := &ReadGuard[T]{lock: l}
	if v, ok := m.store.Component(id, t); ok {
		if c, ok := v.(*T); ok {
			g.component = c
		}
	}
	return g
}

// Valid reports whether the entity carried the component.
func (g *ReadGuard[T]) Valid() bool { return g.component != nil }

// Get returns the component, or nil for an invalid guard. The value must be
// treated as read-only while the guard is held.
func (g *ReadGuard[T]) Get() *T { return g.component }

// Release returns the lock acquisition. Releasing twice is a no-op.
func (g *ReadGuard[T]) Release() {
	if g.released {
		return
	}
	g.released = true
	g.component = nil
	g.lock.RUnlock()
}

// WriteGuard is the exclusive single-component counterpart of ReadGuard.
type WriteGuard[T any] struct {
	component *T
	lock      *typeLock
	released  bool
}

// WriteComponent acquires the exclusive lock for T and resolves the entity's
// component for mutation. Check Valid before dereferencing.
func WriteComponent[T any](m *AccessManager, id EntityID) *WriteGuard[T] {
	t := TypeKeyFor[T]()
	l := m.acquireWrite(t)
	g := &WriteGuard[T]{lock: l}
	if v, ok := m.store.Component(id, t); ok {
		if c, ok := v.(*T); ok {
			g.component = c
		}
	}
	return g
}

// Valid reports whether the entity carried the component.
func (g *WriteGuard[T]) Valid() bool { return g.component != nil }

// Get returns the mutable component, or nil for an invalid guard.
func (g *WriteGuard[T]) Get() *T { return g.component }

// Release returns the lock acquisition. Releasing twice is a no-op.
func (g *WriteGuard[T]) Release() {
	if g.released {
		return
	}
	g.released = true
	g.component = nil
	g.lock.Unlock()
}

// ReadSetGuard holds the shared lock for a component type across an entire
// iteration. The lock is acquired once at construction and not re-acquired
// per element, so the backing storage cannot be mutated mid-iteration by
// another thread. Entities are resolved lazily against the store.
type ReadSetGuard[T any] struct {
	typ      ComponentType
	store    EntityStore
	entities []EntityID
	lock     *typeLock
	released bool
}

// ReadAll acquires the shared lock for T once and exposes every entity
// currently carrying the component.
func ReadAll[T any](m *AccessManager) *ReadSetGuard[T] {
	t := TypeKeyFor[T]()
	l := m.acquireRead(t)
	return &ReadSetGuard[T]{typ: t, store: m.store, entities: m.store.Entities(t), lock: l}
}

// ReadBatch acquires the shared lock for T once over an explicit id subset.
func ReadBatch[T any](m *AccessManager, ids []EntityID) *ReadSetGuard[T] {
	t := TypeKeyFor[T]()
	l := m.acquireRead(t)
	entities := append([]EntityID(nil), ids...)
	return &ReadSetGuard[T]{typ: t, store: m.store, entities: entities, lock: l}
}

// Len reports how many entities the guard spans.
func (g *ReadSetGuard[T]) Len() int { return len(g.entities) }

// Entities returns the ids the guard spans. The slice is owned by the guard.
func (g *ReadSetGuard[T]) Entities() []EntityID { return g.entities }

// Get resolves one entity's component under the held lock.
func (g *ReadSetGuard[T]) Get(id EntityID) (*T, bool) {
	v, ok := g.store.Component(id, g.typ)
	if !ok {
		return nil, false
	}
	c, ok := v.(*T)
	return c, ok
}

// Each visits every resolvable component under the held lock. Returning false
// from fn stops the iteration. Entities whose component disappeared resolve
// to nothing and are skipped.
func (g *ReadSetGuard[T]) Each(fn func(EntityID, *T) bool) {
	for _, id := range g.entities {
		c, ok := g.Get(id)
		if !ok {
			continue
		}
		if !fn(id, c) {
			return
		}
	}
}

// Release returns the lock acquisition. Releasing twice is a no-op.
func (g *ReadSetGuard[T]) Release() {
	if g.released {
		return
	}
	g.released = true
	g.lock.RUnlock()
}

// WriteSetGuard is the exclusive counterpart of ReadSetGuard.
type WriteSetGuard[T any] struct {
	typ      ComponentType
	store    EntityStore
	entities []EntityID
	lock     *typeLock
	released bool
}

// WriteAll acquires the exclusive lock for T once and exposes every entity
// currently carrying the component for mutation.
func WriteAll[T any](m *AccessManager) *WriteSetGuard[T] {
	t := TypeKeyFor[T]()
	l := m.acquireWrite(t)
	return &WriteSetGuard[T]{typ: t, store: m.store, entities: m.store.Entities(t), lock: l}
}

// WriteBatch acquires the exclusive lock for T once over an explicit subset.
func WriteBatch[T any](m *AccessManager, ids []EntityID) *WriteSetGuard[T] {
	t := TypeKeyFor[T]()
	l := m.acquireWrite(t)
	entities := append([]EntityID(nil), ids...)
	return &WriteSetGuard[T]{typ: t, store: m.store, entities: entities, lock: l}
}

// Len reports how many entities the guard spans.
func (g *WriteSetGuard[T]) Len() int { return len(g.entities) }

// Entities returns the ids the guard spans. The slice is owned by the guard.
func (g *WriteSetGuard[T]) Entities() []EntityID { return g.entities }

// Get resolves one entity's component for mutation under the held lock.
func (g *WriteSetGuard[T]) Get(id EntityID) (*T, bool) {
	v, ok := g.store.Component(id, g.typ)
	if !ok {
		return nil, false
	}
	c, ok := v.(*T)
	return c, ok
}

// Each visits every resolvable component for mutation under the held lock.
func (g *WriteSetGuard[T]) Each(fn func(EntityID, *T) bool) {
	for _, id := range g.entities {
		c, ok := g.Get(id)
		if !ok {
			continue
		}
		if !fn(id, c) {
			return
		}
	}
}

// Release returns the lock acquisition. Releasing twice is a no-op.
func (g *WriteSetGuard[T]) Release() {
	if g.released {
		return
	}
	g.released = true
	g.lock.Unlock()
}
