package simcore

import "sync"

// FrameBarrier is a cyclic rendezvous synchronizing dedicated-thread systems
// to frame boundaries. All participants block in Await until the last one
// arrives; then every waiter is released together and the epoch advances
// exactly once. The epoch comparison is what makes reuse safe: a thread
// arriving early for cycle k+1 waits on a different epoch value and cannot be
// folded into cycle k's release.
type FrameBarrier struct {
	mu           sync.Mutex
	cond         *sync.Cond
	participants int
	waiting      int
	epoch        uint64
}

// NewFrameBarrier constructs a barrier for the given participant count.
func NewFrameBarrier(participants int) *FrameBarrier {
	b := &FrameBarrier{participants: participants}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// SetParticipants fixes the rendezvous size. If enough threads are already
// waiting to satisfy the new count, the current cycle completes immediately.
func (b *FrameBarrier) SetParticipants(n int) {
	if n < 0 {
		n = 0
	}
	b.mu.Lock()
	b.participants = n
	if n > 0 && b.waiting >= n {
		b.advanceLocked()
	}
	b.mu.Unlock()
}

// Participants returns the configured rendezvous size.
func (b *FrameBarrier) Participants() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.participants
}

// Epoch returns the number of completed cycles.
func (b *FrameBarrier) Epoch() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.epoch
}

// Await blocks the caller until every participant has arrived for the
// current epoch, then releases all of them together.
func (b *FrameBarrier) Await() {
	b.mu.Lock()
	arrival := b.epoch
	b.waiting++
	if b.participants > 0 && b.waiting >= b.participants {
		b.advanceLocked()
		b.mu.Unlock()
		return
	}
	for b.epoch == arrival {
		b.cond.Wait()
	}
	b.mu.Unlock()
}

// advanceLocked completes the current cycle: waiters reset, the epoch moves
// forward once, and everyone blocked on the old epoch wakes.
func (b *FrameBarrier) advanceLocked() {
	b.waiting = 0
	b.epoch++
	b.cond.Broadcast()
}

// Release force-completes the current cycle regardless of arrival count.
// Used during shutdown so threads parked in Await never outlive the frame
// loop that would have released them.
func (b *FrameBarrier) Release() {
	b.mu.Lock()
	if b.waiting > 0 {
		b.advanceLocked()
	}
	b.mu.Unlock()
}

// BeginFrame brackets the orchestrator's side of one cycle.
func (b *FrameBarrier) BeginFrame() {}

// EndFrame brackets the orchestrator's side of one cycle. The barrier
// advances automatically when all participants arrive; the method exists so
// callers can mirror BeginFrame.
func (b *FrameBarrier) EndFrame() {}
