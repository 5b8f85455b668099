package simcore

import (
	"sort"
	"sync"
	"time"
)

// emaWindow bounds the smoothing window: the moving average weighs the
// newest sample at 1/min(n, emaWindow).
const emaWindow = 100

// fpsWindow smooths the frame-rate average over roughly one second at 60fps.
const fpsWindow = 60

type systemTiming struct {
	last    time.Duration
	avgNs   float64
	peak    time.Duration
	updates uint64
}

// PerformanceMonitor keeps per-system timing history and frame statistics.
type PerformanceMonitor struct {
	mu        sync.Mutex
	systems   map[string]*systemTiming
	frameTime time.Duration
	avgFPS    float64
	frames    uint64
}

// NewPerformanceMonitor constructs an empty monitor.
func NewPerformanceMonitor() *PerformanceMonitor {
	return &PerformanceMonitor{systems: make(map[string]*systemTiming)}
}

// RecordSystemUpdate folds one execution duration into a system's history
// using an exponential moving average.
func (m *PerformanceMonitor) RecordSystemUpdate(name string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	timing, ok := m.systems[name]
	if !ok {
		timing = &systemTiming{}
		m.systems[name] = timing
	}

	timing.last = d
	if d > timing.peak {
		timing.peak = d
	}
	timing.updates++

	n := float64(timing.updates)
	if n > emaWindow {
		n = emaWindow
	}
	alpha := 1.0 / n
	timing.avgNs = alpha*float64(d) + (1.0-alpha)*timing.avgNs
}

// RecordFrameTime folds one frame duration into the frame statistics.
func (m *PerformanceMonitor) RecordFrameTime(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.frameTime = d
	m.frames++
	if d <= 0 {
		return
	}

	fps := float64(time.Second) / float64(d)
	n := float64(m.frames)
	if n > fpsWindow {
		n = fpsWindow
	}
	alpha := 1.0 / n
	m.avgFPS = alpha*fps + (1.0-alpha)*m.avgFPS
}

// SystemAverage returns the smoothed execution time for a system.
func (m *PerformanceMonitor) SystemAverage(name string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if timing, ok := m.systems[name]; ok {
		return time.Duration(timing.avgNs)
	}
	return 0
}

// SystemPeak returns the worst execution time observed for a system.
func (m *PerformanceMonitor) SystemPeak(name string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if timing, ok := m.systems[name]; ok {
		return timing.peak
	}
	return 0
}

// SystemUpdates returns how many executions were recorded for a system.
func (m *PerformanceMonitor) SystemUpdates(name string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if timing, ok := m.systems[name]; ok {
		return timing.updates
	}
	return 0
}

// AverageFPS returns the smoothed frame rate.
func (m *PerformanceMonitor) AverageFPS() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.avgFPS
}

// LastFrameTime returns the most recent frame duration.
func (m *PerformanceMonitor) LastFrameTime() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frameTime
}

// TotalFrames returns how many frames were recorded.
func (m *PerformanceMonitor) TotalFrames() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frames
}

// MonitoredSystems lists the known system names, sorted.
func (m *PerformanceMonitor) MonitoredSystems() []string {
	m.mu.Lock()
	names := make([]string, 0, len(m.systems))
	for name := range m.systems {
		names = append(names, name)
	}
	m.mu.Unlock()
	sort.Strings(names)
	return names
}

// Reset clears all timing history.
func (m *PerformanceMonitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, timing := range m.systems {
		*timing = systemTiming{}
	}
	m.frameTime = 0
	m.avgFPS = 0
	m.frames = 0
}
