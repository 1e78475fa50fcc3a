package flow

import "github.com/dukex/chatflow/pkg/models"

type ChangeType string

const (
	ChangePosition ChangeType = "position"
	ChangeRemove   ChangeType = "remove"
)

// NodeChange is a canvas gesture on one node: a move or a delete.
type NodeChange struct {
	Type     ChangeType       `json:"type"               validate:"required,oneof=position remove"`
	ID       string           `json:"id"                 validate:"required"`
	Position *models.Position `json:"position,omitempty"`
}

// EdgeChange is a canvas gesture on one edge. Only removal exists.
type EdgeChange struct {
	Type ChangeType `json:"type" validate:"required,oneof=remove"`
	ID   string     `json:"id"   validate:"required"`
}

// Connection is a connect gesture between two nodes or handles.
type Connection struct {
	Source       string `json:"source"                  validate:"required"`
	Target       string `json:"target"                  validate:"required"`
	SourceHandle string `json:"source_handle,omitempty"`
	TargetHandle string `json:"target_handle,omitempty"`
}

type EventKind string

const (
	// EventReplaced: the whole state was swapped (load, reset, import).
	EventReplaced EventKind = "replaced"
	// EventStructure: nodes or edges were added, moved or removed.
	EventStructure EventKind = "structure"
	// EventContent: a node payload was edited in place.
	EventContent EventKind = "content"
	EventMode    EventKind = "mode"
)

// Event is delivered to listeners after every change, outside the model lock.
// State is a private snapshot the listener may keep.
type Event struct {
	Kind         EventKind
	State        *models.FlowState
	Mode         models.Mode
	NodeIDs      []string
	RemovedNodes []string
	RemovedEdges []string
}
