package editor

import (
	"fmt"

	"github.com/dukex/chatflow/pkg/models"
)

// CardEdit mutates one rich card, top-level or nested in a carousel.
type CardEdit func(card *models.RichCardData) error

// CardPatch carries optional card field updates.
type CardPatch struct {
	Title       *string
	Description *string
	ImageURL    *string
}

func (p CardPatch) edit() CardEdit {
	return func(card *models.RichCardData) error {
		if p.Title != nil {
			card.Title = *p.Title
		}

		if p.Description != nil {
			card.Description = *p.Description
		}

		if p.ImageURL != nil {
			card.ImageURL = *p.ImageURL
		}

		return nil
	}
}

func setTitle(title string) CardEdit {
	return CardPatch{Title: &title}.edit()
}

func setDescription(description string) CardEdit {
	return CardPatch{Description: &description}.edit()
}

func setImageURL(url string) CardEdit {
	return CardPatch{ImageURL: &url}.edit()
}

func addButton(button *models.ButtonData) CardEdit {
	return func(card *models.RichCardData) error {
		b := *button
		card.Buttons = append(card.Buttons, &b)

		return nil
	}
}

func updateButton(buttonID string, patch models.ButtonPatch) CardEdit {
	return func(card *models.RichCardData) error {
		button := card.Button(buttonID)
		if button == nil {
			return fmt.Errorf("%w: %s", ErrButtonNotFound, buttonID)
		}

		patch.Apply(button)

		return nil
	}
}

func removeButton(buttonID string) CardEdit {
	return func(card *models.RichCardData) error {
		if !card.RemoveButton(buttonID) {
			return fmt.Errorf("%w: %s", ErrButtonNotFound, buttonID)
		}

		return nil
	}
}

func newButton(id string) *models.ButtonData {
	return &models.ButtonData{
		ID:     id,
		Label:  models.DefaultButtonLabel,
		Action: "",
	}
}
