package simcore_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/antonzymin-eng/simcore"
)

type recordingCollector struct {
	mu       sync.Mutex
	observed []simcore.FrameSummary
}

func (c *recordingCollector) ObserveFrame(summary simcore.FrameSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observed = append(c.observed, summary)
}

func (c *recordingCollector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.observed)
}

type recordingExporter struct {
	mu       sync.Mutex
	exported []simcore.FrameSummary
}

func (e *recordingExporter) ExportFrame(summary simcore.FrameSummary) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.exported = append(e.exported, summary)
}

func (e *recordingExporter) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.exported)
}

func TestMetricsCollectorWritesExposition(t *testing.T) {
	collector := simcore.NewFrameMetricsCollector(&simcore.CollectorOptions{
		DurationBuckets: []time.Duration{10 * time.Millisecond, 100 * time.Millisecond},
	})
	collector.ObserveFrame(simcore.FrameSummary{
		Frame:         1,
		Duration:      5 * time.Millisecond,
		MainSystems:   2,
		PooledSystems: 1,
		Errors:        1,
	})

	var buf bytes.Buffer
	if err := collector.WriteMetrics(&buf); err != nil {
		t.Fatalf("WriteMetrics: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"sim_frame_duration_seconds_count 1",
		"sim_frame_systems_executed_total 3",
		"sim_frame_errors_total 1",
		`le="0.010000"`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("exposition missing %q:\n%s", want, out)
		}
	}
}

func TestSpanExporterWritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	exporter := simcore.NewFrameSpanExporter(&simcore.ExporterOptions{Writer: &buf})
	exporter.ExportFrame(simcore.FrameSummary{Frame: 7, Duration: 2 * time.Millisecond})

	line := strings.TrimSpace(buf.String())
	var span map[string]any
	if err := json.Unmarshal([]byte(line), &span); err != nil {
		t.Fatalf("span is not valid JSON: %v", err)
	}
	if span["name"] != "frame:7" {
		t.Fatalf("unexpected span name %v", span["name"])
	}
	if span["service_name"] != "simcore" {
		t.Fatalf("unexpected service name %v", span["service_name"])
	}
}

func TestSpanExporterWithoutWriterIsSilent(t *testing.T) {
	exporter := simcore.NewFrameSpanExporter(nil)
	exporter.ExportFrame(simcore.FrameSummary{Frame: 1})
}

func TestObservationChainFeedsAllSinks(t *testing.T) {
	logger := &captureLogger{}
	collector := &recordingCollector{}
	exporter := &recordingExporter{}

	mgr := newTestManager(t, fastConfig(), simcore.WithObservation(simcore.ObservationSettings{
		EnableStructuredLogging: true,
		LoggingFormat:           simcore.ObservationLogFormatKeyValue,
		StructuredLogger:        logger,
		EnableMetrics:           true,
		MetricsCollector:        collector,
		EnableSpans:             true,
		SpanExporter:            exporter,
	}))
	if err := mgr.AddSystem(&stubSystem{name: "render", strategy: simcore.StrategyMainThread}); err != nil {
		t.Fatalf("AddSystem: %v", err)
	}
	if err := mgr.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	mgr.Update(16 * time.Millisecond)
	mgr.Update(16 * time.Millisecond)

	if logger.count() < 2 {
		t.Fatalf("expected structured log per frame, got %d entries", logger.count())
	}
	if collector.count() != 2 {
		t.Fatalf("expected 2 collected frames, got %d", collector.count())
	}
	if exporter.count() != 2 {
		t.Fatalf("expected 2 exported frames, got %d", exporter.count())
	}
}

func TestObservationJSONLoggingIsValid(t *testing.T) {
	logger := &jsonCaptureLogger{}
	mgr := newTestManager(t, fastConfig(), simcore.WithObservation(simcore.ObservationSettings{
		EnableStructuredLogging: true,
		LoggingFormat:           simcore.ObservationLogFormatJSON,
		StructuredLogger:        logger,
	}))
	if err := mgr.AddSystem(&stubSystem{name: "render", strategy: simcore.StrategyMainThread}); err != nil {
		t.Fatalf("AddSystem: %v", err)
	}
	if err := mgr.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	mgr.Update(16 * time.Millisecond)

	msg, ok := logger.lastInfo()
	if !ok {
		t.Fatal("expected a frame log entry")
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(msg), &payload); err != nil {
		t.Fatalf("frame log should be JSON: %v", err)
	}
	if payload["frame"] != float64(1) {
		t.Fatalf("unexpected frame in payload: %v", payload["frame"])
	}
	if payload["main_systems"] != float64(1) {
		t.Fatalf("unexpected main_systems in payload: %v", payload["main_systems"])
	}
}

// jsonCaptureLogger records only info-level messages verbatim.
type jsonCaptureLogger struct {
	mu    sync.Mutex
	infos []string
}

func (l *jsonCaptureLogger) With(string, any) simcore.Logger { return l }

func (l *jsonCaptureLogger) Info(msg string, _ ...any) {
	l.mu.Lock()
	l.infos = append(l.infos, msg)
	l.mu.Unlock()
}

func (l *jsonCaptureLogger) Error(string, ...any) {}

func (l *jsonCaptureLogger) lastInfo() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.infos) == 0 {
		return "", false
	}
	return l.infos[len(l.infos)-1], true
}
