package editor

import (
	"bytes"
	"strings"
	"testing"

	"github.com/dukex/chatflow/pkg/flow"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCarousel_AddCardAppendsNumberedCard(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)

	e, err := OpenCarousel(f.deps, "carousel")
	require.NoError(t, err)

	nodesBefore := len(f.model.Snapshot().Nodes)

	second, err := e.AddCard(t.Context())
	require.NoError(t, err)
	third, err := e.AddCard(t.Context())
	require.NoError(t, err)

	assert.Equal(t, "Card 2", second.Title)
	assert.Equal(t, "Card 3", third.Title)
	assert.Equal(t, "Add a description here...", third.Description)
	assert.NotEqual(t, second.ID, third.ID)

	cards := f.modelCarousel(t).Cards
	require.Len(t, cards, 3)
	assert.Equal(t, "card-1", cards[0].ID)
	assert.Equal(t, third.ID, cards[2].ID)

	assert.Len(t, f.model.Snapshot().Nodes, nodesBefore, "nested cards are not canvas nodes")

	stored := f.store.Load(t.Context()).NodeByID("carousel").Data.(*models.CarouselCardData)
	assert.Len(t, stored.Cards, 3)
	assert.Len(t, e.Cards(), 3)
}

func TestCarousel_NestedCardEdits(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)

	e, err := OpenCarousel(f.deps, "carousel")
	require.NoError(t, err)

	require.NoError(t, e.SetCardTitle(t.Context(), "card-1", "Headphones"))
	require.NoError(t, e.SetCardDescription(t.Context(), "card-1", "30h battery"))
	require.NoError(t, e.SetCardImageURL(t.Context(), "card-1", "https://example.com/h.png"))

	button, err := e.AddCardButton(t.Context(), "card-1")
	require.NoError(t, err)

	label := "Buy"
	require.NoError(t, e.UpdateCardButton(t.Context(), "card-1", button.ID, models.ButtonPatch{Label: &label}))

	want := &models.RichCardData{
		ID:          "card-1",
		Title:       "Headphones",
		Description: "30h battery",
		ImageURL:    "https://example.com/h.png",
		Buttons:     []*models.ButtonData{{ID: button.ID, Label: "Buy"}},
	}

	assert.Equal(t, want, e.Cards()[0])
	assert.Equal(t, want, f.modelCarousel(t).Cards[0])

	stored := f.store.Load(t.Context()).NodeByID("carousel").Data.(*models.CarouselCardData)
	assert.Equal(t, want, stored.Cards[0])

	require.NoError(t, e.RemoveCardButton(t.Context(), "card-1", button.ID))
	assert.Empty(t, f.modelCarousel(t).Cards[0].Buttons)
}

func TestCarousel_UpdateAndRemoveCard(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)

	e, err := OpenCarousel(f.deps, "carousel")
	require.NoError(t, err)

	added, err := e.AddCard(t.Context())
	require.NoError(t, err)

	title := "Speaker"
	require.NoError(t, e.UpdateCard(t.Context(), added.ID, CardPatch{Title: &title}))
	assert.Equal(t, "Speaker", f.modelCarousel(t).Cards[1].Title)

	require.NoError(t, e.RemoveCard(t.Context(), "card-1"))

	cards := f.modelCarousel(t).Cards
	require.Len(t, cards, 1)
	assert.Equal(t, added.ID, cards[0].ID)

	assert.ErrorIs(t, e.RemoveCard(t.Context(), "card-1"), ErrCardNotFound)
	assert.ErrorIs(t, e.SetCardTitle(t.Context(), "missing", "x"), ErrCardNotFound)
	assert.ErrorIs(t, e.RemoveCardButton(t.Context(), added.ID, "missing"), ErrButtonNotFound)
}

func TestCarousel_UploadCardImage(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)

	e, err := OpenCarousel(f.deps, "carousel")
	require.NoError(t, err)

	require.NoError(t, <-e.UploadCardImage("card-1", bytes.NewReader(pngPixel)))
	assert.True(t, strings.HasPrefix(f.modelCarousel(t).Cards[0].ImageURL, "data:image/png;base64,"))

	assert.ErrorIs(t, <-e.UploadCardImage("missing", bytes.NewReader(pngPixel)), ErrCardNotFound)
}

func TestWorkspace_ReusesEditors(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	w := NewWorkspace(f.deps)

	first, err := w.RichCard("rich")
	require.NoError(t, err)

	again, err := w.RichCard("rich")
	require.NoError(t, err)
	assert.Same(t, first, again)

	_, err = w.Carousel("rich")
	require.ErrorIs(t, err, ErrWrongCardType)

	_, err = w.Carousel("carousel")
	require.NoError(t, err)
	assert.Equal(t, 2, w.OpenCount())

	_, err = w.RichCard("missing")
	require.ErrorIs(t, err, flow.ErrNodeNotFound)
	assert.Equal(t, 2, w.OpenCount())
}

func TestWorkspace_ClosesEditorsOnModelEvents(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	w := NewWorkspace(f.deps)
	f.model.Subscribe(w.HandleEvent)

	rich, err := w.RichCard("rich")
	require.NoError(t, err)

	carousel, err := w.Carousel("carousel")
	require.NoError(t, err)

	_, err = f.model.ApplyNodeChanges([]flow.NodeChange{{Type: flow.ChangeRemove, ID: "rich"}})
	require.NoError(t, err)

	assert.True(t, rich.Closed())
	assert.False(t, carousel.Closed())
	assert.Equal(t, 1, w.OpenCount())

	f.model.Replace(models.NewFlowState())

	assert.True(t, carousel.Closed())
	assert.Zero(t, w.OpenCount())
}

func TestWorkspace_ReleaseAndClose(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	w := NewWorkspace(f.deps)

	rich, err := w.RichCard("rich")
	require.NoError(t, err)

	w.Release("rich")
	w.Release("rich")
	assert.True(t, rich.Closed())

	reopened, err := w.RichCard("rich")
	require.NoError(t, err)
	assert.NotSame(t, rich, reopened)

	w.Close()
	assert.True(t, reopened.Closed())
}
