// Package flow holds the authoritative in-memory flow and applies canvas changes to it.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukex/chatflow/pkg/idgen"
	"github.com/dukex/chatflow/pkg/models"
)

type Listener func(Event)

// Model owns the node and edge sequences. Mutations are serialized and each
// one notifies listeners, in order, with a snapshot of the resulting state.
// Listeners must not call mutating Model methods.
type Model struct {
	ids    idgen.Generator
	logger *slog.Logger

	// held across a mutation and its notifications so listeners see changes in order
	writeMu sync.Mutex

	mu    sync.RWMutex
	state *models.FlowState
	mode  models.Mode

	listenersMu  sync.Mutex
	listeners    map[int]Listener
	nextListener int
}

type Option func(*Model)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Model) {
		m.logger = logger
	}
}

func WithMode(mode models.Mode) Option {
	return func(m *Model) {
		m.mode = mode
	}
}

func NewModel(ids idgen.Generator, opts ...Option) *Model {
	m := &Model{
		ids:       ids,
		logger:    slog.Default(),
		state:     models.NewFlowState(),
		mode:      models.ModeEdit,
		listeners: make(map[int]Listener),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Subscribe registers a listener and returns its unsubscribe function.
func (m *Model) Subscribe(listener Listener) func() {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()

	id := m.nextListener
	m.nextListener++
	m.listeners[id] = listener

	return func() {
		m.listenersMu.Lock()
		defer m.listenersMu.Unlock()

		delete(m.listeners, id)
	}
}

// Snapshot returns a deep copy of the current state.
func (m *Model) Snapshot() *models.FlowState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.state.Clone()
}

// Node returns a deep copy of one node.
func (m *Model) Node(id string) (*models.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	node := m.state.NodeByID(id)
	if node == nil {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}

	return node.Clone(), nil
}

func (m *Model) Mode() models.Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.mode
}

func (m *Model) SetMode(mode models.Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	_, err := m.mutate(func() (*Event, error) {
		if m.mode == mode {
			return nil, nil
		}

		m.mode = mode

		return &Event{Kind: EventMode}, nil
	})

	return err
}

// Replace swaps in a whole new state. The model keeps its own copy.
func (m *Model) Replace(state *models.FlowState) {
	if state == nil {
		state = models.NewFlowState()
	}

	next := state.Clone()
	if next.Nodes == nil {
		next.Nodes = []*models.Node{}
	}

	if next.Edges == nil {
		next.Edges = []*models.Edge{}
	}

	_, _ = m.mutate(func() (*Event, error) {
		m.state = next

		return &Event{Kind: EventReplaced}, nil
	})
}

// AddNode appends a node with the default content for its type.
// Existing nodes are left untouched.
func (m *Model) AddNode(nodeType models.NodeType, position models.Position) (*models.Node, error) {
	var data models.CardPayload

	id := m.ids.NodeID(nodeType)

	switch nodeType {
	case models.NodeTypeRichCard:
		data = models.NewRichCardData(id)
	case models.NodeTypeCarouselCard:
		data = models.NewCarouselCardData(m.ids.CardID())
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownNodeType, nodeType)
	}

	node := &models.Node{
		ID:       id,
		Type:     nodeType,
		Data:     data,
		Position: position,
	}

	_, err := m.mutate(func() (*Event, error) {
		m.state.Nodes = append(m.state.Nodes, node)

		return &Event{Kind: EventStructure, NodeIDs: []string{id}}, nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.Debug("Node added", "node_id", id, "type", nodeType)

	return m.Node(id)
}

// Connect appends an edge for a connect gesture. Parallel edges between the
// same pair are allowed; endpoints are not checked against existing nodes.
func (m *Model) Connect(conn Connection) (*models.Edge, error) {
	if conn.Source == "" || conn.Target == "" {
		return nil, ErrInvalidConnection
	}

	source, target := conn.Source, conn.Target
	if conn.SourceHandle != "" {
		source = conn.SourceHandle
	}

	if conn.TargetHandle != "" {
		target = conn.TargetHandle
	}

	edge := &models.Edge{
		ID:           m.ids.EdgeID(source, target),
		Source:       conn.Source,
		Target:       conn.Target,
		SourceHandle: conn.SourceHandle,
		TargetHandle: conn.TargetHandle,
	}

	_, err := m.mutate(func() (*Event, error) {
		if m.mode == models.ModeView {
			return nil, ErrViewMode
		}

		m.state.Edges = append(m.state.Edges, edge)

		return &Event{Kind: EventStructure}, nil
	})
	if err != nil {
		return nil, err
	}

	out := *edge

	return &out, nil
}

// ApplyNodeChanges applies moves and deletions. Unknown ids are skipped.
// Deleting a node leaves edges that reference it in place. The returned
// event is nil when nothing changed.
func (m *Model) ApplyNodeChanges(changes []NodeChange) (*Event, error) {
	for _, change := range changes {
		switch change.Type {
		case ChangePosition:
			if change.Position == nil {
				return nil, fmt.Errorf("%w: position change for %s without position", ErrInvalidChange, change.ID)
			}
		case ChangeRemove:
		default:
			return nil, fmt.Errorf("%w: node change type %q", ErrInvalidChange, change.Type)
		}
	}

	return m.mutate(func() (*Event, error) {
		if m.mode == models.ModeView {
			return nil, ErrViewMode
		}

		event := &Event{Kind: EventStructure}

		for _, change := range changes {
			switch change.Type {
			case ChangePosition:
				if node := m.state.NodeByID(change.ID); node != nil {
					node.Position = *change.Position
					event.NodeIDs = append(event.NodeIDs, change.ID)
				}
			case ChangeRemove:
				if m.removeNodeLocked(change.ID) {
					event.RemovedNodes = append(event.RemovedNodes, change.ID)
				}
			}
		}

		if len(event.NodeIDs) == 0 && len(event.RemovedNodes) == 0 {
			return nil, nil
		}

		return event, nil
	})
}

// ApplyEdgeChanges applies edge deletions. Unknown ids are skipped.
// The returned event is nil when nothing changed.
func (m *Model) ApplyEdgeChanges(changes []EdgeChange) (*Event, error) {
	for _, change := range changes {
		if change.Type != ChangeRemove {
			return nil, fmt.Errorf("%w: edge change type %q", ErrInvalidChange, change.Type)
		}
	}

	return m.mutate(func() (*Event, error) {
		if m.mode == models.ModeView {
			return nil, ErrViewMode
		}

		event := &Event{Kind: EventStructure}

		for _, change := range changes {
			for i, edge := range m.state.Edges {
				if edge.ID == change.ID {
					m.state.Edges = append(m.state.Edges[:i], m.state.Edges[i+1:]...)
					event.RemovedEdges = append(event.RemovedEdges, change.ID)

					break
				}
			}
		}

		if len(event.RemovedEdges) == 0 {
			return nil, nil
		}

		return event, nil
	})
}

// UpdateNodeData runs fn against the payload object held in the node list.
// The payload is edited in place, never replaced. On success it returns a
// copy of the edited payload.
func (m *Model) UpdateNodeData(id string, fn func(models.CardPayload) error) (models.CardPayload, error) {
	var updated models.CardPayload

	_, err := m.mutate(func() (*Event, error) {
		node := m.state.NodeByID(id)
		if node == nil {
			return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
		}

		err := fn(node.Data)
		if err != nil {
			return nil, err
		}

		updated = node.Data.ClonePayload()

		return &Event{Kind: EventContent, NodeIDs: []string{id}}, nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// Initial picks the starting state: the persisted flow when it has nodes,
// otherwise the fallback.
func Initial(
	ctx context.Context,
	load func(ctx context.Context) *models.FlowState,
	fallback func() (*models.FlowState, error),
) (*models.FlowState, bool, error) {
	if state := load(ctx); state != nil && len(state.Nodes) > 0 {
		return state, true, nil
	}

	state, err := fallback()
	if err != nil {
		return nil, false, fmt.Errorf("failed to build fallback flow: %w", err)
	}

	return state, false, nil
}

func (m *Model) removeNodeLocked(id string) bool {
	for i, node := range m.state.Nodes {
		if node.ID == id {
			m.state.Nodes = append(m.state.Nodes[:i], m.state.Nodes[i+1:]...)

			return true
		}
	}

	return false
}

// mutate runs fn under the write lock. A nil event means nothing changed.
func (m *Model) mutate(fn func() (*Event, error)) (*Event, error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()

	event, err := fn()
	if err != nil || event == nil {
		m.mu.Unlock()

		return nil, err
	}

	event.State = m.state.Clone()
	event.Mode = m.mode

	m.mu.Unlock()

	m.notify(*event)

	return event, nil
}

func (m *Model) notify(event Event) {
	m.listenersMu.Lock()

	listeners := make([]Listener, 0, len(m.listeners))
	for id := 0; id < m.nextListener; id++ {
		if listener, ok := m.listeners[id]; ok {
			listeners = append(listeners, listener)
		}
	}

	m.listenersMu.Unlock()

	for _, listener := range listeners {
		listener(event)
	}
}
