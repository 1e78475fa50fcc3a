package otelhelper

import (
	"errors"
	"testing"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStoreSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := provider.Tracer("test")

	state := models.NewFlowState()
	state.Nodes = append(state.Nodes, &models.Node{ID: "a", Type: models.NodeTypeRichCard, Data: models.NewRichCardData("a")})

	_, span := StoreSpan(t.Context(), tracer, "save", "chatbot-flow-state", NodeAttributes("a", models.NodeTypeRichCard)...)
	span.SetAttributes(FlowAttributes(state, 42)...)
	Fail(span, errors.New("disk full"))
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)

	got := ended[0]
	assert.Equal(t, "store.save", got.Name())
	assert.Equal(t, codes.Error, got.Status().Code)
	assert.Equal(t, "disk full", got.Status().Description)
	assert.Subset(t, got.Attributes(), []attribute.KeyValue{
		attribute.String(StoreKey, "chatbot-flow-state"),
		attribute.String(NodeIDKey, "a"),
		attribute.String(NodeTypeKey, "richCard"),
		attribute.Int(NodeCountKey, 1),
		attribute.Int(EdgeCountKey, 0),
		attribute.Int(RecordSizeKey, 42),
	})
	require.Len(t, got.Events(), 1)
	assert.Equal(t, "exception", got.Events()[0].Name)
}

func TestTracer_NoopByDefault(t *testing.T) {
	_, span := Tracer("test").Start(t.Context(), "noop")
	defer span.End()

	assert.False(t, span.SpanContext().IsValid())
}
