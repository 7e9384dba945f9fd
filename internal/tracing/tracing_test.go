package tracing

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetTraceID(ctx))
	assert.Empty(t, GetPlanID(ctx))
	assert.Empty(t, GetClientID(ctx))

	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithPlanID(ctx, "plan-1")
	ctx = WithClientID(ctx, "client-1")

	tc := FromContext(ctx)
	assert.Equal(t, "trace-1", tc.TraceID)
	assert.Equal(t, "plan-1", tc.PlanID)
	assert.Equal(t, "client-1", tc.ClientID)
}

func TestNewRequestContext(t *testing.T) {
	a := GetTraceID(NewRequestContext(context.Background()))
	b := GetTraceID(NewRequestContext(context.Background()))
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := WithPlanID(WithTraceID(context.Background(), "trace-1"), "plan-1")
	logger := LoggerFromContext(ctx, base)
	logger.Info().Msg("hello")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "trace-1", entry["trace_id"])
	assert.Equal(t, "plan-1", entry["plan_id"])
	assert.NotContains(t, entry, "client_id")
}

func TestStartSpanSetsTraceID(t *testing.T) {
	require.NoError(t, InitOpenTelemetry("vesselplan-test"))
	defer ShutdownOpenTelemetry(context.Background())

	ctx, span := StartSpan(context.Background(), TracerPlanner, "plan")
	defer span.End()

	assert.True(t, span.SpanContext().IsValid())
	assert.Equal(t, span.SpanContext().TraceID().String(), GetTraceID(ctx))
}

func TestStartSpanKeepsExistingTraceID(t *testing.T) {
	ctx := WithTraceID(context.Background(), "request-trace")
	ctx, span := StartSpan(ctx, TracerGateway, "request")
	defer span.End()

	assert.Equal(t, "request-trace", GetTraceID(ctx))
}
