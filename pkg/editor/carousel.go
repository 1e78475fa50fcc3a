package editor

import (
	"context"
	"fmt"
	"io"

	"github.com/dukex/chatflow/pkg/models"
)

// Carousel edits a carousel node and the rich cards nested in it.
// Nested cards are not canvas nodes and have no position of their own.
type Carousel struct {
	base

	local *models.CarouselCardData
}

func OpenCarousel(deps Deps, nodeID string) (*Carousel, error) {
	node, err := deps.Model.Node(nodeID)
	if err != nil {
		return nil, err
	}

	data, ok := node.Data.(*models.CarouselCardData)
	if !ok {
		return nil, fmt.Errorf("%w: %s is %s", ErrWrongCardType, nodeID, node.Type)
	}

	e := &Carousel{local: data}
	e.init(deps, nodeID)

	return e, nil
}

// Cards returns a copy of the editor's local cards.
func (e *Carousel) Cards() []*models.RichCardData {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.local.Clone().Cards
}

// AddCard appends a default card titled "Card N", N being the new card count.
func (e *Carousel) AddCard(ctx context.Context) (*models.RichCardData, error) {
	id := e.IDs.CardID()

	var added *models.RichCardData

	err := e.edit(ctx, func(carousel *models.CarouselCardData) error {
		card := models.NewRichCardData(id)
		card.Title = fmt.Sprintf(models.DefaultCarouselCardFmt, len(carousel.Cards)+1)
		carousel.Cards = append(carousel.Cards, card)
		added = card.Clone()

		return nil
	})
	if err != nil {
		return nil, err
	}

	return added, nil
}

func (e *Carousel) RemoveCard(ctx context.Context, cardID string) error {
	return e.edit(ctx, func(carousel *models.CarouselCardData) error {
		if !carousel.RemoveCard(cardID) {
			return fmt.Errorf("%w: %s", ErrCardNotFound, cardID)
		}

		return nil
	})
}

func (e *Carousel) SetCardTitle(ctx context.Context, cardID, title string) error {
	return e.EditCard(ctx, cardID, setTitle(title))
}

func (e *Carousel) SetCardDescription(ctx context.Context, cardID, description string) error {
	return e.EditCard(ctx, cardID, setDescription(description))
}

func (e *Carousel) SetCardImageURL(ctx context.Context, cardID, url string) error {
	return e.EditCard(ctx, cardID, setImageURL(url))
}

func (e *Carousel) UpdateCard(ctx context.Context, cardID string, patch CardPatch) error {
	return e.EditCard(ctx, cardID, patch.edit())
}

func (e *Carousel) AddCardButton(ctx context.Context, cardID string) (*models.ButtonData, error) {
	button := newButton(e.IDs.ButtonID())

	err := e.EditCard(ctx, cardID, addButton(button))
	if err != nil {
		return nil, err
	}

	return button, nil
}

func (e *Carousel) UpdateCardButton(ctx context.Context, cardID, buttonID string, patch models.ButtonPatch) error {
	return e.EditCard(ctx, cardID, updateButton(buttonID, patch))
}

func (e *Carousel) RemoveCardButton(ctx context.Context, cardID, buttonID string) error {
	return e.EditCard(ctx, cardID, removeButton(buttonID))
}

// UploadCardImage is UploadImage for one nested card.
func (e *Carousel) UploadCardImage(cardID string, r io.Reader) <-chan error {
	return e.upload(r, func(ctx context.Context, url string) error {
		return e.SetCardImageURL(ctx, cardID, url)
	})
}

// EditCard applies fn to the nested card with the given id.
func (e *Carousel) EditCard(ctx context.Context, cardID string, fn CardEdit) error {
	return e.edit(ctx, func(carousel *models.CarouselCardData) error {
		card := carousel.Card(cardID)
		if card == nil {
			return fmt.Errorf("%w: %s", ErrCardNotFound, cardID)
		}

		return fn(card)
	})
}

func (e *Carousel) edit(ctx context.Context, fn func(*models.CarouselCardData) error) error {
	return e.commit(ctx,
		func(payload models.CardPayload) error {
			carousel, ok := payload.(*models.CarouselCardData)
			if !ok {
				return fmt.Errorf("%w: %s", ErrWrongCardType, e.nodeID)
			}

			return fn(carousel)
		},
		func(payload models.CardPayload) {
			e.local = payload.(*models.CarouselCardData)
		},
	)
}
