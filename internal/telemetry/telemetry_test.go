package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInit_Disabled(t *testing.T) {
	p, err := Init(context.Background(), Config{Enabled: false}, nil)
	require.NoError(t, err)

	assert.False(t, p.Enabled())
	assert.Equal(t, otel.GetTracerProvider(), p.TracerProvider())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestProvider_NilIsNoop(t *testing.T) {
	var p *Provider
	assert.False(t, p.Enabled())
	assert.NotNil(t, p.TracerProvider())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInit_Enabled(t *testing.T) {
	// The gRPC exporter connects lazily, so no collector is needed.
	p, err := Init(context.Background(), Config{
		Enabled:     true,
		Endpoint:    "localhost:4317",
		ServiceName: "fractal-test",
		Insecure:    true,
		SampleRate:  1,
	}, nil)
	require.NoError(t, err)
	require.True(t, p.Enabled())

	_, span := p.TracerProvider().Tracer("test").Start(context.Background(), "span")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = p.Shutdown(ctx)
}
