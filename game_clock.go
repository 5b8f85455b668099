package simcore

import (
	"sync"
	"sync/atomic"
	"time"
)

// GameClock tracks simulated time. Readers are lock-free; Update and Reset
// serialize on a small mutex guarding the wall-clock anchors.
type GameClock struct {
	mu        sync.Mutex
	start     time.Time
	lastFrame time.Time

	gameTimeNs atomic.Int64
	deltaNs    atomic.Int64
	frame      atomic.Uint64
}

// NewGameClock constructs a clock anchored at the current instant.
func NewGameClock() *GameClock {
	now := time.Now()
	return &GameClock{start: now, lastFrame: now}
}

// Update advances the clock by the wall time elapsed since the previous
// Update and increments the frame number.
func (c *GameClock) Update() {
	c.mu.Lock()
	now := time.Now()
	delta := now.Sub(c.lastFrame)
	c.lastFrame = now
	c.mu.Unlock()

	c.deltaNs.Store(int64(delta))
	c.gameTimeNs.Add(int64(delta))
	c.frame.Add(1)
}

// Reset rewinds the clock to zero and re-anchors it at the current instant.
func (c *GameClock) Reset() {
	c.mu.Lock()
	now := time.Now()
	c.start = now
	c.lastFrame = now
	c.mu.Unlock()

	c.gameTimeNs.Store(0)
	c.deltaNs.Store(0)
	c.frame.Store(0)
}

// GameTime returns the accumulated simulated time.
func (c *GameClock) GameTime() time.Duration {
	return time.Duration(c.gameTimeNs.Load())
}

// Delta returns the duration of the last frame.
func (c *GameClock) Delta() time.Duration {
	return time.Duration(c.deltaNs.Load())
}

// Frame returns the current frame number.
func (c *GameClock) Frame() uint64 {
	return c.frame.Load()
}

// FPS derives the instantaneous frame rate from the last delta.
func (c *GameClock) FPS() float64 {
	delta := c.deltaNs.Load()
	if delta <= 0 {
		return 0
	}
	return float64(time.Second) / float64(delta)
}
