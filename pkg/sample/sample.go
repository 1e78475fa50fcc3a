// Package sample builds the fallback flow shown when nothing is persisted yet.
package sample

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/schema"
)

const (
	// Spacing is the horizontal distance between generated nodes.
	Spacing = 250

	richRowY     = 0
	carouselRowY = 300
)

//go:embed sample.json
var defaultSample []byte

// Data is the fallback document: loose rich cards and carousels.
type Data struct {
	RichCards     []*models.RichCardData `json:"richCards"`
	CarouselCards []*Carousel            `json:"carouselCards"`
}

// Carousel is a carousel entry with an optional explicit node id.
type Carousel struct {
	ID string `json:"id,omitempty"`
	models.CarouselCardData
}

// Default returns the embedded sample.
func Default() (*Data, error) {
	return Parse(defaultSample)
}

// FromFile reads a sample document from disk.
func FromFile(path string) (*Data, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sample file %s: %w", path, err)
	}

	return Parse(raw)
}

// Parse validates raw against the sample schema and decodes it.
func Parse(raw []byte) (*Data, error) {
	err := schema.ValidateSample(raw)
	if err != nil {
		return nil, err
	}

	var data Data
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode sample: %w", err)
	}

	return &data, nil
}

// Flow lays the sample out on the canvas: rich cards on the first row,
// carousels on the second, Spacing apart. Each carousel gets one edge to
// every nested card it holds.
func (d *Data) Flow() *models.FlowState {
	state := models.NewFlowState()

	for i, card := range d.RichCards {
		state.Nodes = append(state.Nodes, &models.Node{
			ID:       card.ID,
			Type:     models.NodeTypeRichCard,
			Data:     normalizeCard(card.Clone()),
			Position: models.Position{X: float64(i * Spacing), Y: richRowY},
		})
	}

	for i, carousel := range d.CarouselCards {
		id := carousel.ID
		if id == "" {
			id = fmt.Sprintf("carousel-%d", i+1)
		}

		data := carousel.CarouselCardData.Clone()
		for _, card := range data.Cards {
			normalizeCard(card)
		}

		state.Nodes = append(state.Nodes, &models.Node{
			ID:       id,
			Type:     models.NodeTypeCarouselCard,
			Data:     data,
			Position: models.Position{X: float64(i * Spacing), Y: carouselRowY},
		})

		for _, card := range data.Cards {
			state.Edges = append(state.Edges, &models.Edge{
				ID:     "e-" + id + "-" + card.ID,
				Source: id,
				Target: card.ID,
			})
		}
	}

	return state
}

func normalizeCard(card *models.RichCardData) *models.RichCardData {
	if card.Buttons == nil {
		card.Buttons = []*models.ButtonData{}
	}

	return card
}
