package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Run outcomes recorded on claimgraph.run.count.
const (
	OutcomePassed = "passed"
	OutcomeFailed = "audit_failed"
	OutcomeError  = "error"
)

// MetricsRecorder records claimgraph metrics.
// Use NewMetricsRecorder for OpenTelemetry or NoopMetrics when disabled.
type MetricsRecorder interface {
	// RecordStage records one stage invocation.
	RecordStage(ctx context.Context, stage string, duration time.Duration, failed bool)

	// RecordRun records a finished run with its outcome.
	RecordRun(ctx context.Context, outcome string, duration time.Duration)

	// RecordRetry records an audit failure that triggered a retry.
	RecordRetry(ctx context.Context)

	// RecordCheckpoint records a saved snapshot.
	RecordCheckpoint(ctx context.Context, stage string, sizeBytes int64)
}

type otelMetrics struct {
	stageExecutions metric.Int64Counter
	stageLatency    metric.Float64Histogram
	stageFailures   metric.Int64Counter
	runs            metric.Int64Counter
	runLatency      metric.Float64Histogram
	retries         metric.Int64Counter
	checkpointSize  metric.Int64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("claimgraph")

	stageExecutions, err := meter.Int64Counter("claimgraph.stage.executions",
		metric.WithDescription("Number of stage invocations"),
	)
	if err != nil {
		return nil, err
	}

	stageLatency, err := meter.Float64Histogram("claimgraph.stage.latency_ms",
		metric.WithDescription("Stage latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	stageFailures, err := meter.Int64Counter("claimgraph.stage.failures",
		metric.WithDescription("Number of stage invocations that ended the run with an error"),
	)
	if err != nil {
		return nil, err
	}

	runs, err := meter.Int64Counter("claimgraph.run.count",
		metric.WithDescription("Number of pipeline runs by outcome"),
	)
	if err != nil {
		return nil, err
	}

	runLatency, err := meter.Float64Histogram("claimgraph.run.latency_ms",
		metric.WithDescription("Pipeline run latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	retries, err := meter.Int64Counter("claimgraph.audit.retries",
		metric.WithDescription("Number of failed audits sent back to coding"),
	)
	if err != nil {
		return nil, err
	}

	checkpointSize, err := meter.Int64Histogram("claimgraph.checkpoint.size_bytes",
		metric.WithDescription("Checkpoint size in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		stageExecutions: stageExecutions,
		stageLatency:    stageLatency,
		stageFailures:   stageFailures,
		runs:            runs,
		runLatency:      runLatency,
		retries:         retries,
		checkpointSize:  checkpointSize,
	}, nil
}

// NewMetricsRecorder returns an OpenTelemetry backed recorder using the
// global meter provider, or NoopMetrics if the instruments cannot be created.
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

func (m *otelMetrics) RecordStage(ctx context.Context, stage string, duration time.Duration, failed bool) {
	attrs := metric.WithAttributes(attribute.String("stage", stage))

	m.stageExecutions.Add(ctx, 1, attrs)
	m.stageLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
	if failed {
		m.stageFailures.Add(ctx, 1, attrs)
	}
}

func (m *otelMetrics) RecordRun(ctx context.Context, outcome string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.runs.Add(ctx, 1, attrs)
	m.runLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
}

func (m *otelMetrics) RecordRetry(ctx context.Context) {
	m.retries.Add(ctx, 1)
}

func (m *otelMetrics) RecordCheckpoint(ctx context.Context, stage string, sizeBytes int64) {
	m.checkpointSize.Record(ctx, sizeBytes, metric.WithAttributes(attribute.String("stage", stage)))
}
