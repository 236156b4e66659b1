package telemetry

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/clawsync/clawsync/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_None(t *testing.T) {
	shutdown, err := Init(config.TelemetryConfig{Exporter: "none"}, "test", nil)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInit_Stdout(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := Init(config.TelemetryConfig{Exporter: "stdout", ServiceName: "clawsync-test"}, "v0.0.1", &buf)
	require.NoError(t, err)

	ctx, span := StartInvocation(context.Background(), "get_weather", "skill")
	RecordInvocation(ctx, "skill", "passed", 5*time.Millisecond)
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "tool.invoke")
}

func TestInit_UnknownExporter(t *testing.T) {
	_, err := Init(config.TelemetryConfig{Exporter: "zipkin"}, "test", nil)
	assert.Error(t, err)
}
