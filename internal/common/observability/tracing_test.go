package observability

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTracing_RecordsSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tr, err := NewTracing("careerkit-credits-test", "", 1, sdktrace.WithSpanProcessor(rec))
	require.NoError(t, err)
	defer tr.Shutdown(context.Background())

	_, span := otel.Tracer("test").Start(context.Background(), "credits.consume")
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "credits.consume", ended[0].Name())
}

func TestNewTracing_BadRatioDefaultsToAlways(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tr, err := NewTracing("svc", "", 7, sdktrace.WithSpanProcessor(rec))
	require.NoError(t, err)
	defer tr.Shutdown(context.Background())

	_, span := tr.Tracer("test").Start(context.Background(), "op")
	span.End()
	assert.Len(t, rec.Ended(), 1)
}

func TestTracing_NilShutdown(t *testing.T) {
	var tr *Tracing
	assert.NoError(t, tr.Shutdown(context.Background()))
}
