package editor

import (
	"context"
	"fmt"
	"io"

	"github.com/dukex/chatflow/pkg/models"
)

// RichCard edits a single rich card node.
type RichCard struct {
	base

	local *models.RichCardData
}

func OpenRichCard(deps Deps, nodeID string) (*RichCard, error) {
	node, err := deps.Model.Node(nodeID)
	if err != nil {
		return nil, err
	}

	data, ok := node.Data.(*models.RichCardData)
	if !ok {
		return nil, fmt.Errorf("%w: %s is %s", ErrWrongCardType, nodeID, node.Type)
	}

	e := &RichCard{local: data}
	e.init(deps, nodeID)

	return e, nil
}

// Card returns a copy of the editor's local state.
func (e *RichCard) Card() *models.RichCardData {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.local.Clone()
}

func (e *RichCard) SetTitle(ctx context.Context, title string) error {
	return e.edit(ctx, setTitle(title))
}

func (e *RichCard) SetDescription(ctx context.Context, description string) error {
	return e.edit(ctx, setDescription(description))
}

func (e *RichCard) SetImageURL(ctx context.Context, url string) error {
	return e.edit(ctx, setImageURL(url))
}

// Update applies several field changes as one edit.
func (e *RichCard) Update(ctx context.Context, patch CardPatch) error {
	return e.edit(ctx, patch.edit())
}

// AddButton appends a button with the default label.
func (e *RichCard) AddButton(ctx context.Context) (*models.ButtonData, error) {
	button := newButton(e.IDs.ButtonID())

	err := e.edit(ctx, addButton(button))
	if err != nil {
		return nil, err
	}

	return button, nil
}

func (e *RichCard) UpdateButton(ctx context.Context, buttonID string, patch models.ButtonPatch) error {
	return e.edit(ctx, updateButton(buttonID, patch))
}

func (e *RichCard) RemoveButton(ctx context.Context, buttonID string) error {
	return e.edit(ctx, removeButton(buttonID))
}

// UploadImage converts r to a data URL in the background and stores it as
// the card image once done. Other edits may land meanwhile.
func (e *RichCard) UploadImage(r io.Reader) <-chan error {
	return e.upload(r, e.SetImageURL)
}

func (e *RichCard) edit(ctx context.Context, fn CardEdit) error {
	return e.commit(ctx,
		func(payload models.CardPayload) error {
			card, ok := payload.(*models.RichCardData)
			if !ok {
				return fmt.Errorf("%w: %s", ErrWrongCardType, e.nodeID)
			}

			return fn(card)
		},
		func(payload models.CardPayload) {
			e.local = payload.(*models.RichCardData)
		},
	)
}
