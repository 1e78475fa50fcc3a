package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dukex/chatflow/pkg/autosave"
	"github.com/dukex/chatflow/pkg/editor"
	"github.com/dukex/chatflow/pkg/eventbus"
	"github.com/dukex/chatflow/pkg/events"
	"github.com/dukex/chatflow/pkg/flow"
	"github.com/dukex/chatflow/pkg/idgen"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/dukex/chatflow/pkg/sample"
	"github.com/dukex/chatflow/pkg/schema"
)

// SampleSource builds the flow used when nothing usable is persisted.
type SampleSource func() (*models.FlowState, error)

// DefaultSample lays out the embedded sample document.
func DefaultSample() (*models.FlowState, error) {
	data, err := sample.Default()
	if err != nil {
		return nil, err
	}

	return data.Flow(), nil
}

// Flow is the editing session for one persisted flow. It owns the model,
// the open card editors and the autosave, and announces changes on the
// event bus when one is configured.
type Flow struct {
	logger    *slog.Logger
	store     *persistence.Store
	model     *flow.Model
	workspace *editor.Workspace
	autosave  *autosave.Autosave
	publisher eventbus.EventPublisher
	sample    SampleSource

	unsubscribe func()
}

type flowConfig struct {
	logger       *slog.Logger
	ids          idgen.Generator
	publisher    eventbus.EventPublisher
	sample       SampleSource
	mode         models.Mode
	autosaveOpts []autosave.Option
}

type FlowOption func(*flowConfig)

func WithLogger(logger *slog.Logger) FlowOption {
	return func(c *flowConfig) {
		c.logger = logger
	}
}

func WithIDs(ids idgen.Generator) FlowOption {
	return func(c *flowConfig) {
		c.ids = ids
	}
}

// WithPublisher announces flow changes on publisher.
func WithPublisher(publisher eventbus.EventPublisher) FlowOption {
	return func(c *flowConfig) {
		c.publisher = publisher
	}
}

func WithSample(source SampleSource) FlowOption {
	return func(c *flowConfig) {
		c.sample = source
	}
}

func WithMode(mode models.Mode) FlowOption {
	return func(c *flowConfig) {
		c.mode = mode
	}
}

func WithAutosave(opts ...autosave.Option) FlowOption {
	return func(c *flowConfig) {
		c.autosaveOpts = append(c.autosaveOpts, opts...)
	}
}

// NewFlow wires a session around store. Call Bootstrap before use.
func NewFlow(store *persistence.Store, opts ...FlowOption) *Flow {
	cfg := &flowConfig{
		logger: slog.Default(),
		ids:    idgen.New(),
		sample: DefaultSample,
		mode:   models.ModeEdit,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	f := &Flow{
		logger:    cfg.logger.With("module", "flow_service", "key", store.Key()),
		store:     store,
		publisher: cfg.publisher,
		sample:    cfg.sample,
	}

	f.model = flow.NewModel(cfg.ids, flow.WithLogger(f.logger), flow.WithMode(cfg.mode))

	autosaveOpts := append([]autosave.Option{
		autosave.WithLogger(f.logger),
		autosave.WithOnSave(f.saved),
	}, cfg.autosaveOpts...)
	f.autosave = autosave.New(store, autosaveOpts...)

	f.workspace = editor.NewWorkspace(editor.Deps{
		Model:   f.model,
		Patcher: &publishingPatcher{flow: f},
		IDs:     cfg.ids,
		Logger:  f.logger,
	})

	f.unsubscribe = f.model.Subscribe(f.onChange)

	return f
}

// Bootstrap loads the persisted flow, falling back to the sample when the
// record is missing, unreadable or has no nodes. It reports which one was used.
func (f *Flow) Bootstrap(ctx context.Context) (bool, error) {
	state, fromStore, err := flow.Initial(ctx, f.store.Load, f.sample)
	if err != nil {
		return false, newError("bootstrap", CodeSampleUnavailable, err)
	}

	f.model.Replace(state)

	f.logger.InfoContext(ctx, "Flow loaded",
		"from_store", fromStore, "nodes", len(state.Nodes), "edges", len(state.Edges))

	return fromStore, nil
}

// HealthCheck checks the health of the persistence layer.
func (f *Flow) HealthCheck(ctx context.Context) (string, bool) {
	err := f.store.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

func (f *Flow) Key() string {
	return f.store.Key()
}

func (f *Flow) State() *models.FlowState {
	return f.model.Snapshot()
}

func (f *Flow) Node(id string) (*models.Node, error) {
	return f.model.Node(id)
}

func (f *Flow) Mode() models.Mode {
	return f.model.Mode()
}

// Subscribe registers an extra model listener. The same rules as
// flow.Model.Subscribe apply.
func (f *Flow) Subscribe(listener flow.Listener) func() {
	return f.model.Subscribe(listener)
}

func (f *Flow) SetMode(ctx context.Context, mode models.Mode) error {
	before := f.model.Mode()

	err := f.model.SetMode(mode)
	if err != nil {
		return err
	}

	if before != mode {
		event := events.ModeChanged{
			BaseEvent: events.NewBaseEvent(events.ModeChangedEvent, f.Key()),
			Mode:      mode,
		}
		f.publish(ctx, event)
	}

	return nil
}

func (f *Flow) AddNode(ctx context.Context, nodeType models.NodeType, position models.Position) (*models.Node, error) {
	node, err := f.model.AddNode(nodeType, position)
	if err != nil {
		return nil, err
	}

	f.publish(ctx, events.NodeAdded{
		BaseEvent: events.NewBaseEvent(events.NodeAddedEvent, f.Key()),
		NodeID:    node.ID,
		NodeType:  node.Type,
		Position:  node.Position,
	})

	return node, nil
}

func (f *Flow) Connect(ctx context.Context, conn flow.Connection) (*models.Edge, error) {
	edge, err := f.model.Connect(conn)
	if err != nil {
		return nil, err
	}

	f.publish(ctx, events.EdgeAdded{
		BaseEvent: events.NewBaseEvent(events.EdgeAddedEvent, f.Key()),
		EdgeID:    edge.ID,
		Source:    edge.Source,
		Target:    edge.Target,
	})

	return edge, nil
}

// ApplyNodeChanges applies a batch of moves and deletions in one model update.
func (f *Flow) ApplyNodeChanges(ctx context.Context, changes []flow.NodeChange) error {
	applied, err := f.model.ApplyNodeChanges(changes)
	if err != nil || applied == nil {
		return err
	}

	f.publish(ctx, events.NodesChanged{
		BaseEvent:      events.NewBaseEvent(events.NodesChangedEvent, f.Key()),
		MovedNodeIDs:   applied.NodeIDs,
		RemovedNodeIDs: applied.RemovedNodes,
	})

	return nil
}

// ApplyEdgeChanges applies a batch of edge deletions in one model update.
func (f *Flow) ApplyEdgeChanges(ctx context.Context, changes []flow.EdgeChange) error {
	applied, err := f.model.ApplyEdgeChanges(changes)
	if err != nil || applied == nil {
		return err
	}

	f.publish(ctx, events.EdgesChanged{
		BaseEvent:      events.NewBaseEvent(events.EdgesChangedEvent, f.Key()),
		RemovedEdgeIDs: applied.RemovedEdges,
	})

	return nil
}

// Import replaces the whole flow with a document in the persisted record shape.
// The document is validated before anything changes.
func (f *Flow) Import(ctx context.Context, raw []byte) (*models.FlowState, error) {
	if len(raw) == 0 {
		return nil, newError("import", CodeEmptyDocument, ErrEmptyDocument)
	}

	err := schema.ValidateFlow(raw)
	if err != nil {
		return nil, newError("import", CodeInvalidDocument, err)
	}

	var state models.FlowState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, newError("import", CodeInvalidDocument, fmt.Errorf("%w: %w", schema.ErrInvalidDocument, err))
	}

	f.model.Replace(&state)

	f.logger.InfoContext(ctx, "Flow imported", "nodes", len(state.Nodes), "edges", len(state.Edges))
	f.publish(ctx, events.FlowImported{
		BaseEvent: events.NewBaseEvent(events.FlowImportedEvent, f.Key()),
		Nodes:     len(state.Nodes),
		Edges:     len(state.Edges),
	})

	return f.model.Snapshot(), nil
}

// Reset deletes the persisted record and starts over from the sample.
// The next autosave writes the sample back.
func (f *Flow) Reset(ctx context.Context) (*models.FlowState, error) {
	state, err := f.sample()
	if err != nil {
		return nil, newError("reset", CodeSampleUnavailable, err)
	}

	f.store.Clear(ctx)
	f.model.Replace(state)

	f.logger.InfoContext(ctx, "Flow reset to sample", "nodes", len(state.Nodes), "edges", len(state.Edges))
	f.publish(ctx, events.FlowReset{
		BaseEvent: events.NewBaseEvent(events.FlowResetEvent, f.Key()),
		Nodes:     len(state.Nodes),
		Edges:     len(state.Edges),
	})

	return f.model.Snapshot(), nil
}

// Save writes the current flow immediately, replacing any pending autosave.
func (f *Flow) Save(ctx context.Context) bool {
	f.autosave.Update(f.model.Snapshot())

	return f.autosave.Flush(ctx)
}

func (f *Flow) SetAutosave(enabled bool) {
	f.autosave.SetEnabled(enabled)
}

func (f *Flow) AutosaveEnabled() bool {
	return f.autosave.Enabled()
}

// RichCard returns the editor for a rich card node.
func (f *Flow) RichCard(nodeID string) (*editor.RichCard, error) {
	return f.workspace.RichCard(nodeID)
}

// Carousel returns the editor for a carousel node.
func (f *Flow) Carousel(nodeID string) (*editor.Carousel, error) {
	return f.workspace.Carousel(nodeID)
}

// CloseEditor closes the editor for nodeID, if one is open.
func (f *Flow) CloseEditor(nodeID string) {
	f.workspace.Release(nodeID)
}

// Close tears the session down. A pending autosave is discarded, not written.
func (f *Flow) Close() {
	f.unsubscribe()
	f.autosave.Close()
	f.workspace.Close()
}

func (f *Flow) onChange(event flow.Event) {
	f.workspace.HandleEvent(event)

	if event.Kind == flow.EventMode {
		return
	}

	f.autosave.Update(event.State)
}

func (f *Flow) saved(ctx context.Context, state *models.FlowState) {
	f.publish(ctx, events.FlowSaved{
		BaseEvent: events.NewBaseEvent(events.FlowSavedEvent, f.Key()),
		Nodes:     len(state.Nodes),
		Edges:     len(state.Edges),
	})
}

func (f *Flow) publish(ctx context.Context, event eventbus.Event) {
	if f.publisher == nil {
		return
	}

	err := f.publisher.Publish(ctx, event)
	if err != nil {
		f.logger.ErrorContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}

// publishingPatcher patches the persisted record and reports the edit.
type publishingPatcher struct {
	flow *Flow
}

func (p *publishingPatcher) PatchNodeData(ctx context.Context, nodeID string, data models.CardPayload) bool {
	persisted := p.flow.store.PatchNodeData(ctx, nodeID, data)

	p.flow.publish(ctx, events.CardUpdated{
		BaseEvent: events.NewBaseEvent(events.CardUpdatedEvent, p.flow.Key()),
		NodeID:    nodeID,
		NodeType:  data.NodeType(),
		Persisted: persisted,
	})

	return persisted
}
