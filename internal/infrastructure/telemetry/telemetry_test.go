package telemetry

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestKafkaHeadersCarryTraceContext(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), "chainreport", "test", "")
	require.NoError(t, err)
	defer shutdown(context.Background())

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)

	headers := []kafka.Header{{Key: "Traceparent", Value: []byte("stale")}}
	InjectKafkaHeaders(ctx, &headers)
	require.Len(t, headers, 1, "existing header is overwritten case-insensitively")
	assert.Equal(t, "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", string(headers[0].Value))

	extracted := trace.SpanContextFromContext(ExtractKafkaHeaders(context.Background(), headers))
	assert.Equal(t, traceID, extracted.TraceID())
	assert.True(t, extracted.IsRemote())
}

func TestExporterOptions(t *testing.T) {
	assert.Len(t, exporterOptions("https://otel.example.com/v1/traces"), 2)
	assert.Len(t, exporterOptions("localhost:4318"), 3)
}
