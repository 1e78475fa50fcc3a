package otelhelper

import (
	"context"

	"github.com/dukex/chatflow/pkg/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	StoreKey      = "chatflow.store.key"
	NodeIDKey     = "chatflow.node.id"
	NodeTypeKey   = "chatflow.node.type"
	NodeCountKey  = "chatflow.flow.nodes"
	EdgeCountKey  = "chatflow.flow.edges"
	RecordSizeKey = "chatflow.store.bytes"
	BackupKey     = "chatflow.backup.key"
)

// StoreSpan starts a client span named store.<op> for the record under key.
// nolint:ireturn,spancheck // Returning interface is intentional for OpenTelemetry tracing
func StoreSpan(ctx context.Context, tracer trace.Tracer, op, key string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, "store."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String(StoreKey, key)),
		trace.WithAttributes(attrs...),
	)
}

// NodeAttributes describes the node a card edit targets.
func NodeAttributes(nodeID string, nodeType models.NodeType) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(NodeIDKey, nodeID),
		attribute.String(NodeTypeKey, string(nodeType)),
	}
}

// FlowAttributes describes a flow record by its node and edge counts and its
// encoded size.
func FlowAttributes(state *models.FlowState, size int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(NodeCountKey, len(state.Nodes)),
		attribute.Int(EdgeCountKey, len(state.Edges)),
		attribute.Int(RecordSizeKey, size),
	}
}

// Fail marks span failed. Store operations swallow their errors, so the span
// keeps them visible past the log line.
func Fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
