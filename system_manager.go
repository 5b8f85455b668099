package simcore

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/antonzymin-eng/simcore/config"
)

// systemState is the manager's per-system bookkeeping. The strategy field is
// guarded by the manager mutex; timing fields by the state's own mutex; fault
// history by errMu.
type systemState struct {
	system   System
	declared ThreadingStrategy
	strategy ThreadingStrategy

	mu            sync.Mutex
	lastStart     time.Time
	lastDuration  time.Duration
	promoteStreak int
	demoteStreak  int

	disabled atomic.Bool

	errMu      sync.Mutex
	errCount   int
	firstErrAt time.Time
	lastErrAt  time.Time
	lastErr    string

	stop chan struct{}
	done chan struct{}
}

// SystemManager drives every registered system once per frame under its
// threading strategy, adapts strategies from timing history, and isolates
// faulting systems so one bad update cannot take the simulation down.
type SystemManager struct {
	access  *AccessManager
	bus     *MessageBus
	pool    *ThreadPool
	barrier *FrameBarrier
	clock   *GameClock
	monitor *PerformanceMonitor
	logger  Logger

	// cfg holds the active tuning; ApplyTuning swaps it atomically so frame
	// and dedicated-loop code always reads a consistent snapshot.
	cfg atomic.Pointer[config.Config]

	mu      sync.Mutex
	systems map[string]*systemState
	order   []string
	loops   int

	observers []FrameObserver

	initialized bool
	running     atomic.Bool
	paused      atomic.Bool
	shutdown    atomic.Bool

	frameErrors atomic.Int64
}

// ManagerOption customizes a SystemManager.
type ManagerOption func(*SystemManager)

// WithManagerLogger attaches a logger to the manager.
func WithManagerLogger(logger Logger) ManagerOption {
	return func(m *SystemManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithManagerConfig replaces the default tuning.
func WithManagerConfig(cfg *config.Config) ManagerOption {
	return func(m *SystemManager) {
		if cfg != nil {
			m.cfg.Store(cfg.Clone())
		}
	}
}

// WithFrameObserver registers an observer for per-frame summaries.
func WithFrameObserver(obs FrameObserver) ManagerOption {
	return func(m *SystemManager) {
		if obs != nil {
			m.observers = append(m.observers, obs)
		}
	}
}

// WithObservation wires the built-in observer integrations described by the
// settings (structured frame logging, metrics collection, span export).
func WithObservation(settings ObservationSettings) ManagerOption {
	return func(m *SystemManager) {
		if obs := buildFrameObserverChain(settings); obs != nil {
			m.observers = append(m.observers, obs)
		}
	}
}

// NewSystemManager constructs a manager around the given access manager and
// message bus. A nil bus gets a fresh one.
func NewSystemManager(access *AccessManager, bus *MessageBus, opts ...ManagerOption) *SystemManager {
	m := &SystemManager{
		access:  access,
		bus:     bus,
		clock:   NewGameClock(),
		monitor: NewPerformanceMonitor(),
		logger:  noopLogger{},
		systems: make(map[string]*systemState),
	}
	m.cfg.Store(config.DefaultConfig())
	for _, opt := range opts {
		opt(m)
	}
	cfg := m.cfg.Load()
	if m.bus == nil {
		m.bus = NewMessageBus(WithBusLogger(m.logger))
	}
	m.pool = NewThreadPool(cfg.Workers,
		WithPoolLogger(m.logger),
		WithQueueCapacity(cfg.QueueCapacity))
	m.barrier = NewFrameBarrier(1)
	if access != nil {
		access.EnableMonitoring(cfg.Monitoring)
	}
	return m
}

// Tuning returns the active configuration snapshot.
func (m *SystemManager) Tuning() *config.Config {
	return m.cfg.Load()
}

// ApplyTuning swaps in new thresholds and toggles, typically from a config
// hot-reload. Pool sizing is fixed at construction and ignored here.
func (m *SystemManager) ApplyTuning(cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("simcore: nil tuning")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.cfg.Store(cfg.Clone())
	if m.access != nil {
		m.access.EnableMonitoring(cfg.Monitoring)
	}
	m.logger.Info("tuning applied",
		"target_interval_ms", cfg.TargetIntervalMS, "monitoring", cfg.Monitoring)
	return nil
}

// AddSystem registers a system under its default strategy.
func (m *SystemManager) AddSystem(sys System) error {
	if sys == nil {
		return ErrNilSystem
	}
	return m.AddSystemWithStrategy(sys, sys.DefaultStrategy())
}

// AddSystemWithStrategy registers a system under an explicit strategy.
func (m *SystemManager) AddSystemWithStrategy(sys System, strategy ThreadingStrategy) error {
	if sys == nil {
		return ErrNilSystem
	}
	if m.shutdown.Load() {
		return ErrManagerShutdown
	}
	name := sys.Name()

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.systems[name]; exists {
		return fmt.Errorf("%w: %s", ErrSystemExists, name)
	}
	st := &systemState{system: sys, declared: strategy, strategy: strategy}
	m.systems[name] = st
	m.order = append(m.order, name)

	if m.running.Load() && strategy == StrategyDedicated {
		m.startDedicatedLocked(st)
	}
	m.logger.Info("system registered", "system", name, "strategy", strategy.String())
	return nil
}

// GetSystem returns a registered system by name.
func (m *SystemManager) GetSystem(name string) (System, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.systems[name]
	if !ok {
		return nil, false
	}
	return st.system, true
}

// RemoveSystem unregisters a system, stopping its dedicated loop and calling
// its Shutdown hook.
func (m *SystemManager) RemoveSystem(name string) error {
	m.mu.Lock()
	st, ok := m.systems[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSystemNotFound, name)
	}
	m.stopDedicatedLocked(st)
	delete(m.systems, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	if err := safeShutdown(st.system); err != nil {
		m.logger.Error("system shutdown failed", "system", name, "error", err.Error())
		return err
	}
	return nil
}

// SystemNames lists registered systems in registration order.
func (m *SystemManager) SystemNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, len(m.order))
	copy(names, m.order)
	return names
}

// SystemCount returns the number of registered systems.
func (m *SystemManager) SystemCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.order)
}

// Initialize calls every system's Initialize hook in registration order. An
// initialization failure disables that system and moves on; the joined error
// reports everything that went wrong without keeping healthy systems from
// running.
func (m *SystemManager) Initialize() error {
	m.mu.Lock()
	states := m.snapshotLocked()
	m.mu.Unlock()

	var errs []error
	for _, st := range states {
		name := st.system.Name()
		if err := safeInitialize(st.system); err != nil {
			m.logger.Error("system initialization failed", "system", name, "error", err.Error())
			st.disabled.Store(true)
			st.errMu.Lock()
			st.errCount++
			st.firstErrAt = time.Now()
			st.lastErrAt = st.firstErrAt
			st.lastErr = err.Error()
			st.errMu.Unlock()
			errs = append(errs, fmt.Errorf("simcore: initialize %s: %w", name, err))
		}
	}

	m.mu.Lock()
	m.initialized = true
	m.mu.Unlock()
	m.logger.Info("systems initialized",
		"count", len(states), "failed", len(errs))
	return errors.Join(errs...)
}

// Start begins frame execution: dedicated loops launch and Update becomes
// live. Systems registered later join the running schedule immediately. A
// returned error reports systems that failed to initialize; those are
// disabled, and the manager starts anyway.
func (m *SystemManager) Start() error {
	if m.shutdown.Load() {
		return ErrManagerShutdown
	}
	var initErr error
	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		initErr = m.Initialize()
		m.mu.Lock()
	}
	if m.running.Swap(true) {
		m.mu.Unlock()
		return initErr
	}
	for _, name := range m.order {
		st := m.systems[name]
		if st.strategy == StrategyDedicated {
			m.startDedicatedLocked(st)
		}
	}
	m.mu.Unlock()
	m.logger.Info("system manager started")
	return initErr
}

// Stop halts frame execution and joins every dedicated loop. Systems stay
// registered and initialized; Start resumes them.
func (m *SystemManager) Stop() {
	if !m.running.Swap(false) {
		return
	}
	m.mu.Lock()
	for _, name := range m.order {
		m.stopDedicatedLocked(m.systems[name])
	}
	m.mu.Unlock()
	m.logger.Info("system manager stopped")
}

// Pause suspends system updates without tearing down loops.
func (m *SystemManager) Pause() { m.paused.Store(true) }

// Resume reverses Pause.
func (m *SystemManager) Resume() { m.paused.Store(false) }

// IsPaused reports whether updates are suspended.
func (m *SystemManager) IsPaused() bool { return m.paused.Load() }

// IsRunning reports whether the manager is between Start and Stop.
func (m *SystemManager) IsRunning() bool { return m.running.Load() }

// Update runs one frame: main-thread systems inline in registration order,
// pooled systems joined before the frame ends, background systems fired
// without joining, and dedicated loops met at the frame barrier.
func (m *SystemManager) Update(delta time.Duration) {
	if !m.running.Load() || m.paused.Load() || m.shutdown.Load() {
		return
	}
	frameStart := time.Now()
	m.frameErrors.Store(0)
	m.clock.Update()
	m.barrier.BeginFrame()

	m.mu.Lock()
	states := m.snapshotLocked()
	strategies := make([]ThreadingStrategy, len(states))
	for i, st := range states {
		strategies[i] = m.effectiveStrategyLocked(st)
	}
	m.mu.Unlock()

	var summary FrameSummary
	var futures []*TaskFuture
	for i, st := range states {
		if st.disabled.Load() {
			summary.SystemsSkipped++
			continue
		}
		st := st
		switch strategies[i] {
		case StrategyMainThread:
			summary.MainSystems++
			m.runSystem(st, delta)
		case StrategyPool:
			summary.PooledSystems++
			futures = append(futures, m.pool.Submit(func() error {
				m.runSystem(st, delta)
				return nil
			}))
		case StrategyBackground:
			summary.BackgroundSystems++
			m.pool.Submit(func() error {
				m.runSystem(st, delta)
				return nil
			})
		case StrategyDedicated:
			summary.DedicatedSystems++
		}
	}

	for _, f := range futures {
		f.Wait()
	}
	m.barrier.Await()
	m.barrier.EndFrame()

	m.rebalance(states)

	frameTime := time.Since(frameStart)
	if m.cfg.Load().Monitoring {
		m.monitor.RecordFrameTime(frameTime)
	}

	summary.Frame = m.clock.Frame()
	summary.Duration = frameTime
	summary.Errors = int(m.frameErrors.Load())
	for _, obs := range m.observers {
		obs.FrameCompleted(summary)
	}
}

// Shutdown stops the frame loop, drains the worker pool, then shuts systems
// down in reverse registration order. The pool drain comes first so no
// system's Shutdown hook can overlap its own in-flight pooled or background
// update. Idempotent.
func (m *SystemManager) Shutdown() {
	if m.shutdown.Swap(true) {
		return
	}
	m.Stop()
	m.pool.Shutdown()

	m.mu.Lock()
	order := make([]string, len(m.order))
	copy(order, m.order)
	systems := m.systems
	m.mu.Unlock()

	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]
		if err := safeShutdown(systems[name].system); err != nil {
			m.logger.Error("system shutdown failed", "system", name, "error", err.Error())
		}
	}
	m.logger.Info("system manager shut down")
}

// snapshotLocked returns the states in registration order.
func (m *SystemManager) snapshotLocked() []*systemState {
	states := make([]*systemState, 0, len(m.order))
	for _, name := range m.order {
		states = append(states, m.systems[name])
	}
	return states
}

// effectiveStrategyLocked resolves hybrid systems for the current frame.
func (m *SystemManager) effectiveStrategyLocked(st *systemState) ThreadingStrategy {
	if st.strategy != StrategyHybrid {
		return st.strategy
	}
	return m.resolveHybrid(st.system.Name())
}

// resolveHybrid picks between inline and pooled execution for a hybrid
// system. Name hints catch systems that must stay near the render thread;
// otherwise cheap systems run inline and everything else goes to the pool.
func (m *SystemManager) resolveHybrid(name string) ThreadingStrategy {
	lower := strings.ToLower(name)
	for _, hint := range []string{"render", "ui", "input"} {
		if strings.Contains(lower, hint) {
			return StrategyMainThread
		}
	}
	avg := m.monitor.SystemAverage(name)
	if avg > 0 && avg < m.cfg.Load().DemoteBelow() {
		return StrategyMainThread
	}
	return StrategyPool
}

// OptimalStrategy reports the strategy the manager would use for the system
// on the next frame, resolving hybrids through name hints and timing history.
func (m *SystemManager) OptimalStrategy(name string) (ThreadingStrategy, error) {
	m.mu.Lock()
	st, ok := m.systems[name]
	var strategy ThreadingStrategy
	if ok {
		strategy = st.strategy
	}
	m.mu.Unlock()
	if !ok {
		return StrategyMainThread, fmt.Errorf("%w: %s", ErrSystemNotFound, name)
	}
	if strategy == StrategyHybrid {
		return m.resolveHybrid(name), nil
	}
	return strategy, nil
}

// runSystem executes one update with panic containment and records its timing.
func (m *SystemManager) runSystem(st *systemState, delta time.Duration) {
	start := time.Now()
	err := safeUpdate(st.system, delta)
	elapsed := time.Since(start)

	name := st.system.Name()
	if m.cfg.Load().Monitoring {
		m.monitor.RecordSystemUpdate(name, elapsed)
	}
	st.mu.Lock()
	st.lastStart = start
	st.lastDuration = elapsed
	st.mu.Unlock()

	if err != nil {
		m.handleSystemError(st, err)
	}
}

// handleSystemError records one fault. Faults accumulate within a sliding
// window; crossing the limit disables the system until its errors are reset.
func (m *SystemManager) handleSystemError(st *systemState, err error) {
	m.frameErrors.Add(1)
	cfg := m.cfg.Load()
	name := st.system.Name()
	now := time.Now()

	st.errMu.Lock()
	if st.errCount == 0 || now.Sub(st.firstErrAt) > cfg.ErrorWindow() {
		st.errCount = 0
		st.firstErrAt = now
	}
	st.errCount++
	st.lastErrAt = now
	st.lastErr = err.Error()
	count := st.errCount
	st.errMu.Unlock()

	m.logger.Error("system update failed",
		"system", name, "error", err.Error(), "count", count)

	if count >= cfg.ErrorLimit && !st.disabled.Swap(true) {
		m.logger.Error("system disabled after repeated failures",
			"system", name, "count", count)
	}
}

// SystemErrors returns the fault history for a system.
func (m *SystemManager) SystemErrors(name string) (SystemErrorInfo, error) {
	m.mu.Lock()
	st, ok := m.systems[name]
	m.mu.Unlock()
	if !ok {
		return SystemErrorInfo{}, fmt.Errorf("%w: %s", ErrSystemNotFound, name)
	}
	st.errMu.Lock()
	defer st.errMu.Unlock()
	return SystemErrorInfo{
		Count:     st.errCount,
		Disabled:  st.disabled.Load(),
		LastError: st.lastErr,
		FirstAt:   st.firstErrAt,
		LastAt:    st.lastErrAt,
	}, nil
}

// ResetSystemErrors clears a system's fault history and re-enables it.
func (m *SystemManager) ResetSystemErrors(name string) error {
	m.mu.Lock()
	st, ok := m.systems[name]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSystemNotFound, name)
	}
	st.errMu.Lock()
	st.errCount = 0
	st.lastErr = ""
	st.firstErrAt = time.Time{}
	st.lastErrAt = time.Time{}
	st.errMu.Unlock()
	st.disabled.Store(false)
	m.logger.Info("system errors reset", "system", name)
	return nil
}

// rebalance evaluates promotion and demotion streaks for every system once
// per frame. Pooled systems whose smoothed time stays above the promotion
// threshold for the configured streak move to a dedicated thread; systems the
// manager promoted move back once their smoothed time stays below the
// demotion threshold long enough. Declared-dedicated systems are never
// demoted.
func (m *SystemManager) rebalance(states []*systemState) {
	cfg := m.cfg.Load()
	promoteAbove := cfg.PromoteAbove()
	demoteBelow := cfg.DemoteBelow()

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, st := range states {
		if st.disabled.Load() {
			continue
		}
		name := st.system.Name()
		avg := m.monitor.SystemAverage(name)

		switch st.strategy {
		case StrategyPool:
			st.mu.Lock()
			if avg > promoteAbove {
				st.promoteStreak++
			} else {
				st.promoteStreak = 0
			}
			promote := st.promoteStreak >= cfg.PromoteStreak
			if promote {
				st.promoteStreak = 0
				st.demoteStreak = 0
			}
			st.mu.Unlock()
			if promote {
				st.strategy = StrategyDedicated
				if m.running.Load() {
					m.startDedicatedLocked(st)
				}
				m.logger.Info("system promoted to dedicated thread",
					"system", name, "avg_ms", float64(avg)/float64(time.Millisecond))
			}
		case StrategyDedicated:
			if st.declared == StrategyDedicated {
				continue
			}
			st.mu.Lock()
			if avg > 0 && avg < demoteBelow {
				st.demoteStreak++
			} else {
				st.demoteStreak = 0
			}
			demote := st.demoteStreak >= cfg.DemoteStreak
			if demote {
				st.promoteStreak = 0
				st.demoteStreak = 0
			}
			st.mu.Unlock()
			if demote {
				m.stopDedicatedLocked(st)
				st.strategy = StrategyPool
				m.logger.Info("system demoted to worker pool",
					"system", name, "avg_ms", float64(avg)/float64(time.Millisecond))
			}
		}
	}
}

// startDedicatedLocked launches the frame-synchronized loop for one system.
func (m *SystemManager) startDedicatedLocked(st *systemState) {
	if st.stop != nil {
		return
	}
	st.stop = make(chan struct{})
	st.done = make(chan struct{})
	m.loops++
	m.barrier.SetParticipants(m.loops + 1)
	go m.dedicatedLoop(st, st.stop, st.done)
}

// stopDedicatedLocked joins one dedicated loop. The barrier is released so a
// loop parked in Await wakes up to observe the stop signal.
func (m *SystemManager) stopDedicatedLocked(st *systemState) {
	if st.stop == nil {
		return
	}
	close(st.stop)
	m.loops--
	m.barrier.SetParticipants(m.loops + 1)
	m.barrier.Release()
	<-st.done
	st.stop = nil
	st.done = nil
}

// dedicatedLoop drives one system on its own goroutine. Every cycle opens at
// the frame barrier whether or not the update runs, so the rendezvous count
// stays stable while the system is paused or disabled, and the first update
// waits for the first frame instead of firing with a zero delta at launch.
func (m *SystemManager) dedicatedLoop(st *systemState, stop, done chan struct{}) {
	defer close(done)
	for {
		m.barrier.Await()
		select {
		case <-stop:
			return
		default:
		}

		start := time.Now()
		if m.running.Load() && !m.paused.Load() && !st.disabled.Load() {
			m.runSystem(st, m.clock.Delta())
		}
		cfg := m.cfg.Load()
		if cfg.FrameLimiting {
			if rem := cfg.TargetInterval() - time.Since(start); rem > 0 {
				select {
				case <-stop:
					return
				case <-time.After(rem):
				}
			}
		}
	}
}

// SystemInfo returns a snapshot of a system's threading record.
func (m *SystemManager) SystemInfo(name string) (SystemInfo, error) {
	m.mu.Lock()
	st, ok := m.systems[name]
	var strategy ThreadingStrategy
	if ok {
		strategy = st.strategy
	}
	m.mu.Unlock()
	if !ok {
		return SystemInfo{}, fmt.Errorf("%w: %s", ErrSystemNotFound, name)
	}

	st.mu.Lock()
	lastStart := st.lastStart
	st.mu.Unlock()

	cfg := m.cfg.Load()
	avg := m.monitor.SystemAverage(name)
	return SystemInfo{
		Strategy:            strategy,
		AverageTime:         avg,
		PeakTime:            m.monitor.SystemPeak(name),
		Executions:          m.monitor.SystemUpdates(name),
		LastExecution:       lastStart,
		TargetInterval:      cfg.TargetInterval(),
		PerformanceCritical: avg > cfg.PromoteAbove(),
	}, nil
}

// PoolInfo returns the worker pool's load metrics.
func (m *SystemManager) PoolInfo() PoolInfo { return m.pool.Info() }

// FrameTime returns the most recent frame duration.
func (m *SystemManager) FrameTime() time.Duration { return m.monitor.LastFrameTime() }

// FPS returns the smoothed frame rate.
func (m *SystemManager) FPS() float64 { return m.monitor.AverageFPS() }

// Clock exposes the manager's game clock.
func (m *SystemManager) Clock() *GameClock { return m.clock }

// Bus exposes the manager's message bus.
func (m *SystemManager) Bus() *MessageBus { return m.bus }

// Access exposes the manager's component access manager.
func (m *SystemManager) Access() *AccessManager { return m.access }

// Monitor exposes the manager's performance monitor.
func (m *SystemManager) Monitor() *PerformanceMonitor { return m.monitor }

// ResetPerformanceCounters clears timing history and access statistics.
func (m *SystemManager) ResetPerformanceCounters() {
	m.monitor.Reset()
	if m.access != nil {
		m.access.ResetStatistics()
	}
}

// PerformanceReport renders a human-readable snapshot of frame, system, pool,
// and lock statistics.
func (m *SystemManager) PerformanceReport() string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== System Manager Performance ===\n")
	fmt.Fprintf(&b, "frames: %d  fps: %.1f  frame time: %v\n",
		m.monitor.TotalFrames(), m.monitor.AverageFPS(), m.monitor.LastFrameTime())

	names := m.SystemNames()
	sort.Strings(names)
	for _, name := range names {
		info, err := m.SystemInfo(name)
		if err != nil {
			continue
		}
		marker := ""
		if info.PerformanceCritical {
			marker = "  [critical]"
		}
		fmt.Fprintf(&b, "  %-24s %-10s avg=%v peak=%v runs=%d%s\n",
			name, info.Strategy.String(), info.AverageTime, info.PeakTime,
			info.Executions, marker)
	}

	pi := m.pool.Info()
	fmt.Fprintf(&b, "pool: workers=%d queued=%d active=%d avg task=%v\n",
		pi.Workers, pi.QueuedTasks, pi.ActiveTasks, pi.AverageTaskTime)

	if m.access != nil {
		for _, line := range m.access.PerformanceReport() {
			b.WriteString("  ")
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func safeInitialize(s System) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("simcore: system panic: %v", r)
		}
	}()
	return s.Initialize()
}

func safeUpdate(s System, delta time.Duration) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("simcore: system panic: %v", r)
		}
	}()
	return s.Update(delta)
}

func safeShutdown(s System) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("simcore: system panic: %v", r)
		}
	}()
	return s.Shutdown()
}
