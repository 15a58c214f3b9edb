package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// setupMetricsTest installs a meter provider backed by a manual reader.
func setupMetricsTest(t *testing.T) *sdkmetric.ManualReader {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	original := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)

	t.Cleanup(func() {
		otel.SetMeterProvider(original)
		if err := provider.Shutdown(context.Background()); err != nil {
			t.Logf("shutting down meter provider: %v", err)
		}
	})
	return reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) *metricdata.ResourceMetrics {
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return &rm
}

func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func sumByAttr(t *testing.T, m *metricdata.Metrics, key, value string) int64 {
	t.Helper()
	require.NotNil(t, m)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "expected Sum[int64], got %T", m.Data)

	var total int64
	for _, dp := range sum.DataPoints {
		if key == "" {
			total += dp.Value
			continue
		}
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			total += dp.Value
		}
	}
	return total
}

func TestRecordStage(t *testing.T) {
	reader := setupMetricsTest(t)
	m, err := newOtelMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordStage(ctx, "code", 12*time.Millisecond, false)
	m.RecordStage(ctx, "code", 8*time.Millisecond, true)
	m.RecordStage(ctx, "audit", 3*time.Millisecond, false)

	rm := collectMetrics(t, reader)

	executions := findMetric(rm, "claimgraph.stage.executions")
	assert.Equal(t, int64(2), sumByAttr(t, executions, "stage", "code"))
	assert.Equal(t, int64(1), sumByAttr(t, executions, "stage", "audit"))

	failures := findMetric(rm, "claimgraph.stage.failures")
	assert.Equal(t, int64(1), sumByAttr(t, failures, "stage", "code"))

	latency := findMetric(rm, "claimgraph.stage.latency_ms")
	require.NotNil(t, latency)
	hist, ok := latency.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(3), count)
}

func TestRecordRun(t *testing.T) {
	reader := setupMetricsTest(t)
	m, err := newOtelMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordRun(ctx, OutcomePassed, time.Second)
	m.RecordRun(ctx, OutcomePassed, time.Second)
	m.RecordRun(ctx, OutcomeError, time.Second)
	m.RecordRetry(ctx)
	m.RecordCheckpoint(ctx, "audit", 512)

	rm := collectMetrics(t, reader)

	runs := findMetric(rm, "claimgraph.run.count")
	assert.Equal(t, int64(2), sumByAttr(t, runs, "outcome", OutcomePassed))
	assert.Equal(t, int64(1), sumByAttr(t, runs, "outcome", OutcomeError))
	assert.Equal(t, int64(0), sumByAttr(t, runs, "outcome", OutcomeFailed))

	assert.Equal(t, int64(1), sumByAttr(t, findMetric(rm, "claimgraph.audit.retries"), "", ""))
	assert.NotNil(t, findMetric(rm, "claimgraph.checkpoint.size_bytes"))
	assert.NotNil(t, findMetric(rm, "claimgraph.run.latency_ms"))
}

func TestNewMetricsRecorder_NotNoop(t *testing.T) {
	recorder := NewMetricsRecorder()
	require.NotNil(t, recorder)

	_, isNoop := recorder.(NoopMetrics)
	assert.False(t, isNoop)
}

// setupTracingTest installs a tracer provider recording into memory.
func setupTracingTest(t *testing.T) *tracetest.InMemoryExporter {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	original := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	tracer = otel.Tracer("claimgraph")

	t.Cleanup(func() {
		otel.SetTracerProvider(original)
		tracer = otel.Tracer("claimgraph")
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("shutting down tracer provider: %v", err)
		}
	})
	return exporter
}

func TestSpanManager_RunAndStageSpans(t *testing.T) {
	exporter := setupTracingTest(t)
	sm := NewSpanManager()

	ctx, runSpan := sm.StartRunSpan(context.Background(), "run-1", 2, 3)
	_, stageSpan := sm.StartStageSpan(ctx, "audit", 2)
	sm.EndSpan(stageSpan, "auditor down")
	sm.EndSpan(runSpan, "")

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)

	stage, run := spans[0], spans[1]
	assert.Equal(t, "claimgraph.stage.audit", stage.Name)
	assert.Equal(t, codes.Error, stage.Status.Code)
	assert.Equal(t, "auditor down", stage.Status.Description)
	assert.Equal(t, run.SpanContext.SpanID(), stage.Parent.SpanID())
	assert.Contains(t, stage.Attributes, attribute.Int("stage.attempt", 2))

	assert.Equal(t, "claimgraph.run", run.Name)
	assert.Equal(t, codes.Ok, run.Status.Code)
	assert.Contains(t, run.Attributes, attribute.String("run.id", "run-1"))
	assert.Contains(t, run.Attributes, attribute.Int("run.max_retries", 3))
}

func TestSpanManager_AddSpanEvent(t *testing.T) {
	exporter := setupTracingTest(t)
	sm := NewSpanManager()

	ctx, span := sm.StartRunSpan(context.Background(), "run-1", 1, 0)
	sm.AddSpanEvent(ctx, "retry", attribute.Int("retry", 1))
	sm.EndSpan(span, "")

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	require.Len(t, spans[0].Events, 1)
	assert.Equal(t, "retry", spans[0].Events[0].Name)
}

func TestNoopSpanManager(t *testing.T) {
	sm := NoopSpanManager{}
	ctx := context.Background()

	got, span := sm.StartRunSpan(ctx, "run-1", 1, 1)
	assert.Equal(t, ctx, got)
	assert.False(t, span.IsRecording())

	_, span = sm.StartStageSpan(ctx, "code", 1)
	sm.EndSpan(span, "err")
	sm.AddSpanEvent(ctx, "nothing")
}

func TestNoopMetrics(t *testing.T) {
	var m MetricsRecorder = NoopMetrics{}
	ctx := context.Background()
	m.RecordStage(ctx, "extract", time.Second, true)
	m.RecordRun(ctx, OutcomePassed, time.Second)
	m.RecordRetry(ctx)
	m.RecordCheckpoint(ctx, "extract", 10)
}

// logLines decodes JSON log output, one record per line.
func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		out = append(out, rec)
	}
	return out
}

func newBufferLogger() (*slog.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

func TestLogRunLifecycle(t *testing.T) {
	logger, buf := newBufferLogger()

	LogRunStart(logger, "run-1", 2, 3)
	LogRetry(logger, 1, 3)
	LogRunComplete(logger, "run-1", 42, 5, 1, true)
	LogRunError(logger, "run-2", "boom", 7, "code")

	lines := logLines(t, buf)
	require.Len(t, lines, 4)

	assert.Equal(t, "pipeline run starting", lines[0]["msg"])
	assert.Equal(t, "run-1", lines[0]["run_id"])
	assert.EqualValues(t, 3, lines[0]["max_retries"])

	assert.Equal(t, "WARN", lines[1]["level"])

	assert.Equal(t, "pipeline run completed", lines[2]["msg"])
	assert.Equal(t, true, lines[2]["audit_passed"])
	assert.EqualValues(t, 5, lines[2]["stages_executed"])

	assert.Equal(t, "ERROR", lines[3]["level"])
	assert.Equal(t, "boom", lines[3]["error"])
	assert.Equal(t, "code", lines[3]["last_stage"])
}

func TestLogStageAndCheckpoint(t *testing.T) {
	logger, buf := newBufferLogger()

	LogStageStart(logger, "extract", 1)
	LogStageComplete(logger, "extract", 3, "code")
	LogStageFailure(logger, "code", "inference unavailable")
	LogDefect(logger, "audit", errors.New("illegal next action"))
	LogCheckpoint(logger, "extract", 1, 256)
	LogCheckpointError(logger, "code", "save", errors.New("disk full"))

	lines := logLines(t, buf)
	require.Len(t, lines, 6)
	assert.Equal(t, "code", lines[1]["next_action"])
	assert.Equal(t, "inference unavailable", lines[2]["error"])
	assert.Equal(t, "pipeline invariant violated", lines[3]["msg"])
	assert.EqualValues(t, 256, lines[4]["size_bytes"])
	assert.Equal(t, "save", lines[5]["operation"])
}

func TestLogHelpers_NilLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		LogRunStart(nil, "r", 0, 0)
		LogRunComplete(nil, "r", 0, 0, 0, false)
		LogRunError(nil, "r", "e", 0, "")
		LogStageStart(nil, "s", 1)
		LogStageComplete(nil, "s", 0, "")
		LogStageFailure(nil, "s", "e")
		LogRetry(nil, 1, 1)
		LogDefect(nil, "s", errors.New("x"))
		LogCheckpoint(nil, "s", 1, 1)
		LogCheckpointError(nil, "s", "save", errors.New("x"))
	})
}

func TestTimedOperation(t *testing.T) {
	elapsed := TimedOperation()
	time.Sleep(5 * time.Millisecond)
	assert.GreaterOrEqual(t, elapsed(), float64(5))
}
