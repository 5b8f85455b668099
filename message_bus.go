package simcore

import (
	"container/heap"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// MessagePriority orders queued message delivery. Higher priorities drain
// fully before lower ones.
type MessagePriority uint8

const (
	PriorityLow MessagePriority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p MessagePriority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// Subscription identifies one registered handler so it can be removed
// individually.
type Subscription struct {
	typ reflect.Type
	id  uuid.UUID
}

type handlerEntry struct {
	id uuid.UUID
	fn func(any)
}

type queuedMessage struct {
	typ      reflect.Type
	payload  any
	priority MessagePriority
	seq      uint64
}

// messageQueue is a heap ordered by priority descending, then sequence
// ascending, so equal-priority messages keep arrival order.
type messageQueue []queuedMessage

func (q messageQueue) Len() int { return len(q) }

func (q messageQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority > q[j].priority
	}
	return q[i].seq < q[j].seq
}

func (q messageQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *messageQueue) Push(x any) { *q = append(*q, x.(queuedMessage)) }

func (q *messageQueue) Pop() any {
	old := *q
	n := len(old)
	msg := old[n-1]
	*q = old[:n-1]
	return msg
}

// MessageBus is a typed publish/subscribe channel between systems. The
// handler table sits behind a reader/writer lock so many publishers can look
// up handlers concurrently; the queue has its own mutex, keeping the enqueue
// hot path clear of subscription churn. Publishing with no subscribers is a
// silent no-op.
type MessageBus struct {
	handlersMu sync.RWMutex
	handlers   map[reflect.Type][]handlerEntry

	queueMu sync.Mutex
	queue   messageQueue

	seq    atomic.Uint64
	logger Logger
}

// BusOption configures a MessageBus.
type BusOption func(*MessageBus)

// WithBusLogger supplies a logger for handler diagnostics.
func WithBusLogger(logger Logger) BusOption {
	return func(b *MessageBus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewMessageBus constructs an empty bus.
func NewMessageBus(opts ...BusOption) *MessageBus {
	b := &MessageBus{
		handlers: make(map[reflect.Type][]handlerEntry),
		logger:   noopLogger{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a handler for messages of type T. Handlers for one type
// dispatch in registration order. The returned subscription removes exactly
// this handler.
func Subscribe[T any](b *MessageBus, handler func(T)) Subscription {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	entry := handlerEntry{
		id: uuid.New(),
		fn: func(payload any) {
			handler(payload.(T))
		},
	}

	b.handlersMu.Lock()
	b.handlers[typ] = append(b.handlers[typ], entry)
	b.handlersMu.Unlock()

	return Subscription{typ: typ, id: entry.id}
}

// Unsubscribe removes the handler registered under the subscription. Unknown
// or already-removed subscriptions are ignored.
func (b *MessageBus) Unsubscribe(sub Subscription) {
	if sub.typ == nil {
		return
	}
	b.handlersMu.Lock()
	defer b.handlersMu.Unlock()

	entries := b.handlers[sub.typ]
	for i, entry := range entries {
		if entry.id == sub.id {
			b.handlers[sub.typ] = append(entries[:i:i], entries[i+1:]...)
			break
		}
	}
	if len(b.handlers[sub.typ]) == 0 {
		delete(b.handlers, sub.typ)
	}
}

// UnsubscribeAll removes every handler for message type T.
func UnsubscribeAll[T any](b *MessageBus) {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	b.handlersMu.Lock()
	delete(b.handlers, typ)
	b.handlersMu.Unlock()
}

// Publish dispatches a message synchronously, in-line, to the current
// subscribers of T.
func Publish[T any](b *MessageBus, msg T) {
	b.dispatch(reflect.TypeOf((*T)(nil)).Elem(), msg)
}

// Enqueue places a message in the priority queue at normal priority for the
// next ProcessQueuedMessages call.
func Enqueue[T any](b *MessageBus, msg T) {
	EnqueueWithPriority(b, msg, PriorityNormal)
}

// EnqueueWithPriority places a message in the priority queue. Sequence
// numbers are monotonically increasing and never reused, so equal-priority
// messages drain in arrival order.
func EnqueueWithPriority[T any](b *MessageBus, msg T, priority MessagePriority) {
	qm := queuedMessage{
		typ:      reflect.TypeOf((*T)(nil)).Elem(),
		payload:  msg,
		priority: priority,
		seq:      b.seq.Add(1),
	}
	b.queueMu.Lock()
	heap.Push(&b.queue, qm)
	b.queueMu.Unlock()
}

// ProcessQueuedMessages drains the queue and dispatches each message to its
// type's handlers in priority order. It snapshots the queue first: only
// messages enqueued before the call began are guaranteed to run in it, so a
// handler republishing on every invocation cannot live-lock the drain.
func (b *MessageBus) ProcessQueuedMessages() int {
	b.queueMu.Lock()
	snapshot := make([]queuedMessage, 0, len(b.queue))
	for b.queue.Len() > 0 {
		snapshot = append(snapshot, heap.Pop(&b.queue).(queuedMessage))
	}
	b.queueMu.Unlock()

	for _, msg := range snapshot {
		b.dispatch(msg.typ, msg.payload)
	}
	return len(snapshot)
}

func (b *MessageBus) dispatch(typ reflect.Type, payload any) {
	b.handlersMu.RLock()
	entries := b.handlers[typ]
	handlers := make([]func(any), len(entries))
	for i, entry := range entries {
		handlers[i] = entry.fn
	}
	b.handlersMu.RUnlock()

	for _, fn := range handlers {
		b.invoke(typ, fn, payload)
	}
}

// invoke shields the bus from a panicking handler; the fault is logged and
// remaining handlers still run.
func (b *MessageBus) invoke(typ reflect.Type, fn func(any), payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("message handler panic", "type", typ.String(), "panic", r)
		}
	}()
	fn(payload)
}

// HandlerCount returns the number of registered handlers across all types.
func (b *MessageBus) HandlerCount() int {
	b.handlersMu.RLock()
	defer b.handlersMu.RUnlock()
	count := 0
	for _, entries := range b.handlers {
		count += len(entries)
	}
	return count
}

// QueuedMessages returns the number of messages waiting to be processed.
func (b *MessageBus) QueuedMessages() int {
	b.queueMu.Lock()
	defer b.queueMu.Unlock()
	return len(b.queue)
}

// Clear drops every handler and queued message.
func (b *MessageBus) Clear() {
	b.handlersMu.Lock()
	b.handlers = make(map[reflect.Type][]handlerEntry)
	b.handlersMu.Unlock()

	b.queueMu.Lock()
	b.queue = nil
	b.queueMu.Unlock()
}
