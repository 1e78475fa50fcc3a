// Package models provides the core data structures for chatbot conversation flows.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownNodeType is returned when a node carries a type tag with no matching payload variant.
var ErrUnknownNodeType = errors.New("unknown node type")

type NodeType string

const (
	NodeTypeRichCard     NodeType = "richCard"
	NodeTypeCarouselCard NodeType = "carouselCard"
)

// Valid reports whether the node type has a payload variant.
func (t NodeType) Valid() bool {
	return t == NodeTypeRichCard || t == NodeTypeCarouselCard
}

// Tag is the short prefix used when generating node ids.
func (t NodeType) Tag() string {
	switch t {
	case NodeTypeRichCard:
		return "rich"
	case NodeTypeCarouselCard:
		return "carousel"
	default:
		return string(t)
	}
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// FlowState is the full graph: ordered nodes and ordered edges.
type FlowState struct {
	Nodes []*Node `json:"nodes"`
	Edges []*Edge `json:"edges"`
}

// NewFlowState returns an empty flow with non-nil sequences.
func NewFlowState() *FlowState {
	return &FlowState{
		Nodes: []*Node{},
		Edges: []*Edge{},
	}
}

// Node is a card placed on the canvas. Its Data variant always matches Type.
type Node struct {
	ID       string      `json:"id"`
	Type     NodeType    `json:"type"`
	Data     CardPayload `json:"data"`
	Position Position    `json:"position"`
}

type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
}

// UnmarshalJSON decodes data into the payload variant selected by the type tag.
// Unknown tags keep their data as *OpaqueData.
func (n *Node) UnmarshalJSON(raw []byte) error {
	var wire struct {
		ID       string          `json:"id"`
		Type     NodeType        `json:"type"`
		Data     json.RawMessage `json:"data"`
		Position Position        `json:"position"`
	}

	if err := json.Unmarshal(raw, &wire); err != nil {
		return err
	}

	var payload CardPayload = &OpaqueData{Type: wire.Type, Raw: wire.Data}

	if wire.Type.Valid() {
		var err error

		payload, err = DecodePayload(wire.Type, wire.Data)
		if err != nil {
			return fmt.Errorf("node %s: %w", wire.ID, err)
		}
	}

	n.ID = wire.ID
	n.Type = wire.Type
	n.Data = payload
	n.Position = wire.Position

	return nil
}

// DecodePayload decodes raw JSON into the payload variant for nodeType.
func DecodePayload(nodeType NodeType, raw json.RawMessage) (CardPayload, error) {
	var payload CardPayload

	switch nodeType {
	case NodeTypeRichCard:
		payload = &RichCardData{Buttons: []*ButtonData{}}
	case NodeTypeCarouselCard:
		payload = &CarouselCardData{Cards: []*RichCardData{}}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownNodeType, nodeType)
	}

	if len(raw) == 0 || string(raw) == "null" {
		return payload, nil
	}

	if err := json.Unmarshal(raw, payload); err != nil {
		return nil, fmt.Errorf("invalid %s payload: %w", nodeType, err)
	}

	return payload, nil
}

// Clone returns a deep copy of the flow.
func (s *FlowState) Clone() *FlowState {
	if s == nil {
		return nil
	}

	out := &FlowState{
		Nodes: make([]*Node, 0, len(s.Nodes)),
		Edges: make([]*Edge, 0, len(s.Edges)),
	}

	for _, node := range s.Nodes {
		out.Nodes = append(out.Nodes, node.Clone())
	}

	for _, edge := range s.Edges {
		e := *edge
		out.Edges = append(out.Edges, &e)
	}

	return out
}

// NodeByID returns the node with the given id, or nil.
func (s *FlowState) NodeByID(id string) *Node {
	for _, node := range s.Nodes {
		if node.ID == id {
			return node
		}
	}

	return nil
}

func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}

	out := *n
	if n.Data != nil {
		out.Data = n.Data.ClonePayload()
	}

	return &out
}
