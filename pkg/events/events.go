// Package events defines notifications emitted while a flow is edited.
package events

import (
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/google/uuid"
)

type EventType string

const Topic = "chatflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

// Types lists every event type in publishing order of the editing lifecycle.
var Types = []EventType{
	NodeAddedEvent,
	NodesChangedEvent,
	EdgeAddedEvent,
	EdgesChangedEvent,
	CardUpdatedEvent,
	FlowResetEvent,
	FlowImportedEvent,
	FlowSavedEvent,
	ModeChangedEvent,
}

const (
	// Canvas structure events.
	NodeAddedEvent    EventType = "flow.node.added"
	NodesChangedEvent EventType = "flow.nodes.changed"
	EdgeAddedEvent    EventType = "flow.edge.added"
	EdgesChangedEvent EventType = "flow.edges.changed"

	// Card content events.
	CardUpdatedEvent EventType = "flow.card.updated"

	// Whole-flow lifecycle events.
	FlowResetEvent    EventType = "flow.reset"
	FlowImportedEvent EventType = "flow.imported"
	FlowSavedEvent    EventType = "flow.saved"
	ModeChangedEvent  EventType = "flow.mode.changed"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	FlowKey   string         `json:"flow_key"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, flowKey string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		FlowKey:   flowKey,
		Metadata:  make(map[string]any),
	}
}

// GetFlowKey names the persisted flow the event belongs to.
func (e BaseEvent) GetFlowKey() string {
	return e.FlowKey
}

type NodeAdded struct {
	BaseEvent

	NodeID   string          `json:"node_id"`
	NodeType models.NodeType `json:"node_type"`
	Position models.Position `json:"position"`
}

func (e NodeAdded) GetType() EventType {
	return NodeAddedEvent
}

type NodesChanged struct {
	BaseEvent

	MovedNodeIDs   []string `json:"moved_node_ids,omitempty"`
	RemovedNodeIDs []string `json:"removed_node_ids,omitempty"`
}

func (e NodesChanged) GetType() EventType {
	return NodesChangedEvent
}

type EdgeAdded struct {
	BaseEvent

	EdgeID string `json:"edge_id"`
	Source string `json:"source"`
	Target string `json:"target"`
}

func (e EdgeAdded) GetType() EventType {
	return EdgeAddedEvent
}

type EdgesChanged struct {
	BaseEvent

	RemovedEdgeIDs []string `json:"removed_edge_ids"`
}

func (e EdgesChanged) GetType() EventType {
	return EdgesChangedEvent
}

// CardUpdated reports a sub-editor edit. Persisted tells whether the direct
// record patch landed or the change waits for the next autosave.
type CardUpdated struct {
	BaseEvent

	NodeID    string          `json:"node_id"`
	NodeType  models.NodeType `json:"node_type"`
	Persisted bool            `json:"persisted"`
}

func (e CardUpdated) GetType() EventType {
	return CardUpdatedEvent
}

type FlowReset struct {
	BaseEvent

	Nodes int `json:"nodes"`
	Edges int `json:"edges"`
}

func (e FlowReset) GetType() EventType {
	return FlowResetEvent
}

type FlowImported struct {
	BaseEvent

	Nodes int `json:"nodes"`
	Edges int `json:"edges"`
}

func (e FlowImported) GetType() EventType {
	return FlowImportedEvent
}

type FlowSaved struct {
	BaseEvent

	Nodes int `json:"nodes"`
	Edges int `json:"edges"`
}

func (e FlowSaved) GetType() EventType {
	return FlowSavedEvent
}

type ModeChanged struct {
	BaseEvent

	Mode models.Mode `json:"mode"`
}

func (e ModeChanged) GetType() EventType {
	return ModeChangedEvent
}
