// Package simcore is the thread-safe data-access and scheduling layer of the
// simulation. It arbitrates concurrent reads and writes to typed component
// storage through scoped guards, routes prioritized messages between systems,
// and drives every registered system each frame under an adaptive threading
// strategy. Entity and component storage itself is an external collaborator
// reached through the EntityStore interface.
package simcore

import (
	"io"
	"time"
)

// ThreadingStrategy selects how the manager drives a system's updates.
type ThreadingStrategy uint8

const (
	// StrategyMainThread runs the system synchronously on the orchestrator
	// thread, in registration order.
	StrategyMainThread ThreadingStrategy = iota
	// StrategyPool submits the system to the shared worker pool; the frame
	// blocks on its completion.
	StrategyPool
	// StrategyDedicated gives the system its own worker goroutine
	// synchronized to frame boundaries through the frame barrier.
	StrategyDedicated
	// StrategyBackground submits the system to the pool without joining at
	// the frame boundary. Results may lag the frame by up to one full cycle.
	StrategyBackground
	// StrategyHybrid lets the manager pick between main-thread and pooled
	// execution based on the system's timing history.
	StrategyHybrid
)

func (s ThreadingStrategy) String() string {
	switch s {
	case StrategyMainThread:
		return "main"
	case StrategyPool:
		return "pool"
	case StrategyDedicated:
		return "dedicated"
	case StrategyBackground:
		return "background"
	case StrategyHybrid:
		return "hybrid"
	default:
		return "unknown"
	}
}

// ParseStrategy converts a configuration string into a ThreadingStrategy.
func ParseStrategy(name string) (ThreadingStrategy, bool) {
	switch name {
	case "main":
		return StrategyMainThread, true
	case "pool":
		return StrategyPool, true
	case "dedicated":
		return StrategyDedicated, true
	case "background":
		return StrategyBackground, true
	case "hybrid":
		return StrategyHybrid, true
	default:
		return StrategyPool, false
	}
}

// System is executable simulation logic owned by the SystemManager. Update is
// called once per frame with the elapsed simulated time; it may run on the
// orchestrator thread, a pool worker, or a dedicated goroutine depending on
// the system's strategy, but never on two threads at once.
type System interface {
	Initialize() error
	Update(delta time.Duration) error
	Shutdown() error
	Name() string
	DefaultStrategy() ThreadingStrategy
}

// StateSerializer is an optional capability for systems that can capture and
// restore their state, keyed by a schema version. Persistence of the produced
// bytes is outside this package.
type StateSerializer interface {
	Serialize(version int) ([]byte, error)
	Deserialize(data []byte, version int) error
}

// ComponentType identifies a component lock and statistics bucket.
type ComponentType string

// EntityStore is the opaque storage collaborator. Component resolves an
// entity and component type to the stored component instance; Entities lists
// the entities currently carrying the component type. The per-type locks
// serialize access within one component type only: guards over different
// types call into the store concurrently, and host mutations such as
// spawning happen outside the locks entirely, so implementations must be
// safe for concurrent use.
type EntityStore interface {
	Component(id EntityID, t ComponentType) (any, bool)
	Entities(t ComponentType) []EntityID
}

// Logger captures structured log output from the core.
type Logger interface {
	With(key string, value any) Logger
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// SystemInfo is a snapshot of a system's threading record.
type SystemInfo struct {
	Strategy            ThreadingStrategy
	AverageTime         time.Duration
	PeakTime            time.Duration
	Executions          uint64
	LastExecution       time.Time
	TargetInterval      time.Duration
	PerformanceCritical bool
}

// PoolInfo is a snapshot of the worker pool's load metrics.
type PoolInfo struct {
	Workers         int
	QueuedTasks     int
	ActiveTasks     int
	AverageTaskTime time.Duration
}

// SystemErrorInfo records fault history for one system.
type SystemErrorInfo struct {
	Count     int
	Disabled  bool
	LastError string
	FirstAt   time.Time
	LastAt    time.Time
}

// FrameSummary captures execution metadata for one frame.
type FrameSummary struct {
	Frame             uint64
	Duration          time.Duration
	MainSystems       int
	PooledSystems     int
	DedicatedSystems  int
	BackgroundSystems int
	SystemsSkipped    int
	Errors            int
}

// FrameObserver receives summaries after each frame completes.
type FrameObserver interface {
	FrameCompleted(summary FrameSummary)
}

// MetricsCollector handles frame summaries for scrape-style metrics.
type MetricsCollector interface {
	ObserveFrame(summary FrameSummary)
}

// CollectorOptions configures the built-in metrics collector.
type CollectorOptions struct {
	Writer          io.Writer
	DurationBuckets []time.Duration
}

// SpanExporter handles frame summaries for span-based tooling.
type SpanExporter interface {
	ExportFrame(summary FrameSummary)
}

// ExporterOptions configures the built-in span exporter.
type ExporterOptions struct {
	Writer      io.Writer
	ServiceName string
}

// ObservationSettings toggles built-in observer integrations.
type ObservationSettings struct {
	EnableStructuredLogging bool
	LoggingFormat           ObservationLogFormat
	StructuredLogger        Logger
	EnableMetrics           bool
	MetricsCollector        MetricsCollector
	MetricsOptions          *CollectorOptions
	EnableSpans             bool
	SpanExporter            SpanExporter
	SpanOptions             *ExporterOptions
}

// ObservationLogFormat controls structured logging encoding.
type ObservationLogFormat uint8

const (
	ObservationLogFormatJSON ObservationLogFormat = iota
	ObservationLogFormatKeyValue
)

// noopLogger is used until a real logger is supplied.
type noopLogger struct{}

func (noopLogger) With(string, any) Logger { return noopLogger{} }
func (noopLogger) Info(string, ...any)     {}
func (noopLogger) Error(string, ...any)    {}
