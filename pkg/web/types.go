// Package web provides HTTP request and response types for the flow editor API.
package web

import (
	"github.com/dukex/chatflow/pkg/editor"
	"github.com/dukex/chatflow/pkg/flow"
	"github.com/dukex/chatflow/pkg/models"
)

// CreateNodeRequest adds a card from the toolbar.
type CreateNodeRequest struct {
	Type     string          `json:"type"     validate:"required,oneof=richCard carouselCard"`
	Position models.Position `json:"position"`
}

// ConnectRequest represents a connect gesture between two nodes.
type ConnectRequest struct {
	Source       string `json:"source"                  validate:"required"`
	Target       string `json:"target"                  validate:"required"`
	SourceHandle string `json:"source_handle,omitempty"`
	TargetHandle string `json:"target_handle,omitempty"`
}

func (r ConnectRequest) Connection() flow.Connection {
	return flow.Connection{
		Source:       r.Source,
		Target:       r.Target,
		SourceHandle: r.SourceHandle,
		TargetHandle: r.TargetHandle,
	}
}

// NodeChangesRequest is a batch of canvas gestures applied together.
type NodeChangesRequest struct {
	Changes []flow.NodeChange `json:"changes" validate:"required,min=1,dive"`
}

type EdgeChangesRequest struct {
	Changes []flow.EdgeChange `json:"changes" validate:"required,min=1,dive"`
}

// UpdateCardRequest represents a partial card update. Absent fields are left alone.
type UpdateCardRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	ImageURL    *string `json:"image_url,omitempty"   validate:"omitempty,url|startswith=data:image/"`
}

func (r UpdateCardRequest) Patch() editor.CardPatch {
	return editor.CardPatch{
		Title:       r.Title,
		Description: r.Description,
		ImageURL:    r.ImageURL,
	}
}

// UpdateButtonRequest represents a partial button update.
type UpdateButtonRequest struct {
	Label  *string `json:"label,omitempty"`
	Action *string `json:"action,omitempty"`
	Type   *string `json:"type,omitempty"`
	Title  *string `json:"title,omitempty"`
}

func (r UpdateButtonRequest) Patch() models.ButtonPatch {
	return models.ButtonPatch{
		Label:  r.Label,
		Action: r.Action,
		Type:   r.Type,
		Title:  r.Title,
	}
}

type ModeRequest struct {
	Mode string `json:"mode" validate:"required,oneof=edit view"`
}

type ModeResponse struct {
	Mode models.Mode `json:"mode"`
}

type SaveResponse struct {
	Saved bool `json:"saved"`
}

// UploadResponse acknowledges an image upload that finishes in the background.
type UploadResponse struct {
	NodeID string `json:"node_id"`
	CardID string `json:"card_id,omitempty"`
	Status string `json:"status"`
}
