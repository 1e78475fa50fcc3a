package persistence

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/otelhelper"
	"go.opentelemetry.io/otel/trace"
)

// StateKey is the single slot the flow record lives in.
const StateKey = "chatbot-flow-state"

// Store reads and writes the flow record through a Persistence backend.
// No method returns an error: failures are logged and degrade to a no-op
// (Save, Clear, PatchNodeData) or a nil result (Load).
type Store struct {
	backend Persistence
	key     string
	logger  *slog.Logger
	tracer  trace.Tracer

	// serializes read-modify-write patches against whole-record saves
	mu sync.Mutex
}

type StoreOption func(*Store)

func WithKey(key string) StoreOption {
	return func(s *Store) {
		s.key = key
	}
}

func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

func WithTracer(tracer trace.Tracer) StoreOption {
	return func(s *Store) {
		s.tracer = tracer
	}
}

func NewStore(backend Persistence, opts ...StoreOption) *Store {
	s := &Store{
		backend: backend,
		key:     StateKey,
		logger:  slog.Default(),
		tracer:  otelhelper.Tracer("chatflow/persistence"),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.logger = s.logger.With("key", s.key)

	return s
}

func (s *Store) Key() string {
	return s.key
}

// Save writes the whole flow under the store key and reports whether it landed.
func (s *Store) Save(ctx context.Context, state *models.FlowState) bool {
	ctx, span := otelhelper.StoreSpan(ctx, s.tracer, "save", s.key)
	defer span.End()

	if state == nil {
		state = models.NewFlowState()
	}

	raw, err := json.Marshal(state)
	if err != nil {
		otelhelper.Fail(span, err)
		s.logger.ErrorContext(ctx, "Failed to encode flow state", "error", err)

		return false
	}

	span.SetAttributes(otelhelper.FlowAttributes(state, len(raw))...)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Put(ctx, s.key, raw); err != nil {
		otelhelper.Fail(span, err)
		s.logger.ErrorContext(ctx, "Failed to save flow state", "error", err)

		return false
	}

	s.logger.DebugContext(ctx, "Flow state saved", "nodes", len(state.Nodes), "edges", len(state.Edges))

	return true
}

// Load returns the persisted flow, or nil when the record is missing or unreadable.
// Whatever decodes is trusted as is.
func (s *Store) Load(ctx context.Context) *models.FlowState {
	ctx, span := otelhelper.StoreSpan(ctx, s.tracer, "load", s.key)
	defer span.End()

	s.mu.Lock()
	state, err := s.read(ctx)
	s.mu.Unlock()

	if err != nil {
		if IsRecordNotFound(err) {
			s.logger.DebugContext(ctx, "No persisted flow state")
		} else {
			otelhelper.Fail(span, err)
			s.logger.ErrorContext(ctx, "Failed to load flow state", "error", err)
		}

		return nil
	}

	return state
}

// Clear removes the record. Clearing an absent record is a no-op.
func (s *Store) Clear(ctx context.Context) {
	ctx, span := otelhelper.StoreSpan(ctx, s.tracer, "clear", s.key)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Delete(ctx, s.key); err != nil {
		otelhelper.Fail(span, err)
		s.logger.ErrorContext(ctx, "Failed to clear flow state", "error", err)

		return
	}

	s.logger.InfoContext(ctx, "Flow state cleared")
}

// PatchNodeData overwrites the data of one node inside the last persisted
// record and writes the record back immediately. It is a no-op when no record
// exists yet or the node is not in it. Reports whether a write happened.
func (s *Store) PatchNodeData(ctx context.Context, nodeID string, data models.CardPayload) bool {
	if data == nil {
		return false
	}

	ctx, span := otelhelper.StoreSpan(ctx, s.tracer, "patch_node", s.key, otelhelper.NodeAttributes(nodeID, data.NodeType())...)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.read(ctx)
	if err != nil {
		if IsRecordNotFound(err) {
			s.logger.DebugContext(ctx, "No persisted flow state to patch", "node_id", nodeID)
		} else {
			otelhelper.Fail(span, err)
			s.logger.ErrorContext(ctx, "Failed to read flow state for patch", "node_id", nodeID, "error", err)
		}

		return false
	}

	node := state.NodeByID(nodeID)
	if node == nil {
		s.logger.DebugContext(ctx, "Node not in persisted flow state", "node_id", nodeID)

		return false
	}

	if node.Type != data.NodeType() {
		s.logger.WarnContext(ctx, "Persisted node type differs from patch",
			"node_id", nodeID, "persisted", node.Type, "patch", data.NodeType())

		return false
	}

	node.Data = data.ClonePayload()

	raw, err := json.Marshal(state)
	if err != nil {
		otelhelper.Fail(span, err)
		s.logger.ErrorContext(ctx, "Failed to encode patched flow state", "node_id", nodeID, "error", err)

		return false
	}

	if err := s.backend.Put(ctx, s.key, raw); err != nil {
		otelhelper.Fail(span, err)
		s.logger.ErrorContext(ctx, "Failed to write patched flow state", "node_id", nodeID, "error", err)

		return false
	}

	return true
}

// HealthCheck reports the backend health. Unlike the data operations it returns the error.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.backend.HealthCheck(ctx)
}

func (s *Store) read(ctx context.Context) (*models.FlowState, error) {
	raw, err := s.backend.Get(ctx, s.key)
	if err != nil {
		return nil, NewRecordError("Get", s.key, err)
	}

	var state models.FlowState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, NewRecordError("Decode", s.key, err)
	}

	if state.Nodes == nil {
		state.Nodes = []*models.Node{}
	}

	if state.Edges == nil {
		state.Edges = []*models.Edge{}
	}

	for _, node := range state.Nodes {
		if data, ok := node.Data.(*models.OpaqueData); ok {
			s.logger.WarnContext(ctx, "Persisted node has an unknown type, keeping it as is",
				"node_id", node.ID, "type", data.Type)
		}
	}

	return &state, nil
}
