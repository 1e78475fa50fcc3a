package models

import (
	"encoding/json"
	"slices"
)

const (
	DefaultRichCardTitle   = "New Rich Card"
	DefaultDescription     = "Add a description here..."
	DefaultButtonLabel     = "New Action"
	DefaultCarouselCardFmt = "Card %d"
)

// CardPayload is the content of a node. It is implemented by *RichCardData,
// *CarouselCardData and, for types this build does not know, *OpaqueData;
// callers switch on the concrete type.
type CardPayload interface {
	NodeType() NodeType
	ClonePayload() CardPayload
	isCardPayload()
}

type RichCardData struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	ImageURL    string        `json:"imageUrl"`
	Buttons     []*ButtonData `json:"buttons"`
}

type CarouselCardData struct {
	Cards []*RichCardData `json:"cards"`
}

// ButtonData is an action on a card. Its id doubles as a connection handle.
type ButtonData struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Action string `json:"action"`
	Type   string `json:"type,omitempty"`
	Title  string `json:"title,omitempty"`
}

// NewRichCardData returns the default content of a freshly added rich card.
func NewRichCardData(id string) *RichCardData {
	return &RichCardData{
		ID:          id,
		Title:       DefaultRichCardTitle,
		Description: DefaultDescription,
		ImageURL:    "",
		Buttons:     []*ButtonData{},
	}
}

// NewCarouselCardData returns a carousel seeded with one nested card.
func NewCarouselCardData(firstCardID string) *CarouselCardData {
	first := NewRichCardData(firstCardID)
	first.Title = "Card 1"

	return &CarouselCardData{Cards: []*RichCardData{first}}
}

func (*RichCardData) NodeType() NodeType { return NodeTypeRichCard }

func (*RichCardData) isCardPayload() {}

func (d *RichCardData) ClonePayload() CardPayload { return d.Clone() }

func (d *RichCardData) Clone() *RichCardData {
	if d == nil {
		return nil
	}

	out := *d
	out.Buttons = make([]*ButtonData, 0, len(d.Buttons))

	for _, button := range d.Buttons {
		b := *button
		out.Buttons = append(out.Buttons, &b)
	}

	return &out
}

// Button returns the button with the given id, or nil.
func (d *RichCardData) Button(id string) *ButtonData {
	for _, button := range d.Buttons {
		if button.ID == id {
			return button
		}
	}

	return nil
}

// RemoveButton drops the button with the given id and reports whether it existed.
func (d *RichCardData) RemoveButton(id string) bool {
	for i, button := range d.Buttons {
		if button.ID == id {
			d.Buttons = append(d.Buttons[:i], d.Buttons[i+1:]...)

			return true
		}
	}

	return false
}

func (*CarouselCardData) NodeType() NodeType { return NodeTypeCarouselCard }

func (*CarouselCardData) isCardPayload() {}

func (d *CarouselCardData) ClonePayload() CardPayload { return d.Clone() }

func (d *CarouselCardData) Clone() *CarouselCardData {
	if d == nil {
		return nil
	}

	out := &CarouselCardData{Cards: make([]*RichCardData, 0, len(d.Cards))}
	for _, card := range d.Cards {
		out.Cards = append(out.Cards, card.Clone())
	}

	return out
}

// Card returns the nested card with the given id, or nil.
func (d *CarouselCardData) Card(id string) *RichCardData {
	for _, card := range d.Cards {
		if card.ID == id {
			return card
		}
	}

	return nil
}

// RemoveCard drops the nested card with the given id and reports whether it existed.
func (d *CarouselCardData) RemoveCard(id string) bool {
	for i, card := range d.Cards {
		if card.ID == id {
			d.Cards = append(d.Cards[:i], d.Cards[i+1:]...)

			return true
		}
	}

	return false
}

// ButtonPatch carries optional button field updates.
type ButtonPatch struct {
	Label  *string
	Action *string
	Type   *string
	Title  *string
}

// Apply writes the set fields of the patch onto b.
func (p ButtonPatch) Apply(b *ButtonData) {
	if p.Label != nil {
		b.Label = *p.Label
	}

	if p.Action != nil {
		b.Action = *p.Action
	}

	if p.Type != nil {
		b.Type = *p.Type
	}

	if p.Title != nil {
		b.Title = *p.Title
	}
}

// OpaqueData is the payload of a persisted node whose type has no variant
// here. It is written back byte for byte so the node survives a save.
type OpaqueData struct {
	Type NodeType
	Raw  json.RawMessage
}

func (d *OpaqueData) NodeType() NodeType { return d.Type }

func (*OpaqueData) isCardPayload() {}

func (d *OpaqueData) ClonePayload() CardPayload {
	return &OpaqueData{Type: d.Type, Raw: slices.Clone(d.Raw)}
}

func (d *OpaqueData) MarshalJSON() ([]byte, error) {
	if len(d.Raw) == 0 {
		return []byte("null"), nil
	}

	return d.Raw, nil
}
