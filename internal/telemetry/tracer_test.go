package telemetry

import (
	"testing"
	"time"

	"github.com/orkutrevival/backend/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestSampler(t *testing.T) {
	assert.Equal(t, sdktrace.NeverSample().Description(), Sampler(0).Description())
	assert.Equal(t, sdktrace.NeverSample().Description(), Sampler(-1).Description())
	assert.Equal(t, sdktrace.AlwaysSample().Description(), Sampler(1).Description())
	assert.Equal(t, sdktrace.AlwaysSample().Description(), Sampler(3).Description())
	assert.Equal(t, sdktrace.TraceIDRatioBased(0.25).Description(), Sampler(0.25).Description())
}

func TestInitTracerDisabled(t *testing.T) {
	tp, err := InitTracer(config.TelemetryConfig{Enabled: false}, "orkut-backend", "test")
	require.NoError(t, err)
	assert.Nil(t, tp)
	assert.NoError(t, Shutdown(tp, time.Second))
}

func TestExporterOptions(t *testing.T) {
	assert.Len(t, exporterOptions("localhost:4318"), 2)
	assert.Len(t, exporterOptions("https://otel.orkut.app/v1/traces"), 1)
}
