package simcore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

type noopObserver struct{}

func (noopObserver) FrameCompleted(FrameSummary) {}

type compositeObserver struct {
	observers []FrameObserver
}

func (c compositeObserver) FrameCompleted(summary FrameSummary) {
	for _, observer := range c.observers {
		observer.FrameCompleted(summary)
	}
}

type loggingObserver struct {
	logger Logger
	format ObservationLogFormat
}

func newLoggingObserver(logger Logger, format ObservationLogFormat) FrameObserver {
	if logger == nil {
		return noopObserver{}
	}
	if format != ObservationLogFormatKeyValue {
		format = ObservationLogFormatJSON
	}
	return loggingObserver{logger: logger, format: format}
}

func (o loggingObserver) FrameCompleted(summary FrameSummary) {
	switch o.format {
	case ObservationLogFormatKeyValue:
		o.logKeyValue(summary)
	default:
		o.logJSON(summary)
	}
}

func (o loggingObserver) logJSON(summary FrameSummary) {
	payload := map[string]any{
		"frame":              summary.Frame,
		"duration_ms":        float64(summary.Duration) / float64(time.Millisecond),
		"main_systems":       summary.MainSystems,
		"pooled_systems":     summary.PooledSystems,
		"dedicated_systems":  summary.DedicatedSystems,
		"background_systems": summary.BackgroundSystems,
		"systems_skipped":    summary.SystemsSkipped,
		"errors":             summary.Errors,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		o.logger.With("frame", summary.Frame).Error("frame summary marshal error", "err", err)
		return
	}
	o.logger.Info(string(data))
}

func (o loggingObserver) logKeyValue(summary FrameSummary) {
	builder := o.logger.With("frame", summary.Frame)
	builder.Info("frame summary",
		"duration", summary.Duration,
		"main_systems", summary.MainSystems,
		"pooled_systems", summary.PooledSystems,
		"dedicated_systems", summary.DedicatedSystems,
		"background_systems", summary.BackgroundSystems,
		"systems_skipped", summary.SystemsSkipped,
		"errors", summary.Errors,
	)
}

type metricsObserver struct {
	collector MetricsCollector
}

func newMetricsObserver(collector MetricsCollector) FrameObserver {
	if collector == nil {
		return noopObserver{}
	}
	return metricsObserver{collector: collector}
}

func (o metricsObserver) FrameCompleted(summary FrameSummary) {
	o.collector.ObserveFrame(summary)
}

type spanObserver struct {
	exporter SpanExporter
}

func newSpanObserver(exporter SpanExporter) FrameObserver {
	if exporter == nil {
		return noopObserver{}
	}
	return spanObserver{exporter: exporter}
}

func (o spanObserver) FrameCompleted(summary FrameSummary) {
	o.exporter.ExportFrame(summary)
}

// buildFrameObserverChain assembles the configured integrations into a single
// observer. Returns nil when nothing is enabled.
func buildFrameObserverChain(settings ObservationSettings) FrameObserver {
	var observers []FrameObserver

	if settings.EnableStructuredLogging {
		observers = append(observers, newLoggingObserver(settings.StructuredLogger, settings.LoggingFormat))
	}

	if settings.EnableMetrics {
		collector := settings.MetricsCollector
		if collector == nil {
			collector = NewFrameMetricsCollector(settings.MetricsOptions)
		}
		observers = append(observers, newMetricsObserver(collector))
	}

	if settings.EnableSpans {
		exporter := settings.SpanExporter
		if exporter == nil {
			exporter = NewFrameSpanExporter(settings.SpanOptions)
		}
		observers = append(observers, newSpanObserver(exporter))
	}

	if len(observers) == 0 {
		return nil
	}
	if len(observers) == 1 {
		return observers[0]
	}
	return compositeObserver{observers: observers}
}

// FrameMetricsCollector accumulates frame statistics and renders them in the
// text exposition format scrape endpoints expect.
type FrameMetricsCollector struct {
	options *CollectorOptions
	mu      sync.Mutex
	sample  frameSample
}

type frameSample struct {
	durationSum   float64
	durationCount float64
	buckets       []float64
	executed      float64
	skipped       float64
	errors        float64
}

func NewFrameMetricsCollector(opts *CollectorOptions) *FrameMetricsCollector {
	if opts == nil {
		opts = &CollectorOptions{}
	}
	c := &FrameMetricsCollector{options: opts}
	if buckets := opts.DurationBuckets; len(buckets) > 0 {
		c.sample.buckets = make([]float64, len(buckets))
	}
	return c
}

func (c *FrameMetricsCollector) ObserveFrame(summary FrameSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()

	durSeconds := summary.Duration.Seconds()
	c.sample.durationSum += durSeconds
	c.sample.durationCount++
	for i := range c.sample.buckets {
		if durSeconds <= c.options.DurationBuckets[i].Seconds() {
			c.sample.buckets[i]++
		}
	}
	executed := summary.MainSystems + summary.PooledSystems +
		summary.DedicatedSystems + summary.BackgroundSystems
	c.sample.executed += float64(executed)
	c.sample.skipped += float64(summary.SystemsSkipped)
	c.sample.errors += float64(summary.Errors)

	if writer := c.options.Writer; writer != nil {
		_ = c.writeMetricsLocked(writer)
	}
}

func (c *FrameMetricsCollector) WriteMetrics(w io.Writer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeMetricsLocked(w)
}

func (c *FrameMetricsCollector) writeMetricsLocked(w io.Writer) error {
	if w == nil {
		return nil
	}
	var buf bytes.Buffer
	buf.WriteString("# HELP sim_frame_duration_seconds Frame execution duration.\n")
	buf.WriteString("# TYPE sim_frame_duration_seconds summary\n")
	buf.WriteString(fmt.Sprintf("sim_frame_duration_seconds_sum %f\n", c.sample.durationSum))
	buf.WriteString(fmt.Sprintf("sim_frame_duration_seconds_count %f\n", c.sample.durationCount))
	for i, bucket := range c.sample.buckets {
		le := c.options.DurationBuckets[i].Seconds()
		buf.WriteString(fmt.Sprintf("sim_frame_duration_seconds_bucket{le=\"%.6f\"} %f\n", le, bucket))
	}

	buf.WriteString("# HELP sim_frame_systems_executed_total Systems executed per frame.\n")
	buf.WriteString("# TYPE sim_frame_systems_executed_total counter\n")
	buf.WriteString(fmt.Sprintf("sim_frame_systems_executed_total %f\n", c.sample.executed))

	buf.WriteString("# HELP sim_frame_systems_skipped_total Systems skipped per frame.\n")
	buf.WriteString("# TYPE sim_frame_systems_skipped_total counter\n")
	buf.WriteString(fmt.Sprintf("sim_frame_systems_skipped_total %f\n", c.sample.skipped))

	buf.WriteString("# HELP sim_frame_errors_total System errors per frame.\n")
	buf.WriteString("# TYPE sim_frame_errors_total counter\n")
	buf.WriteString(fmt.Sprintf("sim_frame_errors_total %f\n", c.sample.errors))

	_, err := w.Write(buf.Bytes())
	return err
}

// FrameSpanExporter writes one JSON span per frame to the configured writer.
type FrameSpanExporter struct {
	opts *ExporterOptions
	mu   sync.Mutex
}

func NewFrameSpanExporter(opts *ExporterOptions) *FrameSpanExporter {
	if opts == nil {
		opts = &ExporterOptions{}
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "simcore"
	}
	return &FrameSpanExporter{opts: opts}
}

func (e *FrameSpanExporter) ExportFrame(summary FrameSummary) {
	if e.opts.Writer == nil {
		return
	}
	span := map[string]any{
		"service_name": e.opts.ServiceName,
		"name":         fmt.Sprintf("frame:%d", summary.Frame),
		"timestamp":    time.Now().UnixNano(),
		"duration_ms":  float64(summary.Duration) / float64(time.Millisecond),
		"attributes": map[string]any{
			"frame":              summary.Frame,
			"main_systems":       summary.MainSystems,
			"pooled_systems":     summary.PooledSystems,
			"dedicated_systems":  summary.DedicatedSystems,
			"background_systems": summary.BackgroundSystems,
			"systems_skipped":    summary.SystemsSkipped,
			"errors":             summary.Errors,
		},
	}
	payload, err := json.Marshal(span)
	if err != nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	_, _ = e.opts.Writer.Write(append(payload, '\n'))
}
