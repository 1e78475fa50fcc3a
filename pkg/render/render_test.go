package render

import (
	"bytes"
	"image/png"
	"math"
	"testing"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/sample"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPNG_Sample(t *testing.T) {
	t.Parallel()

	data, err := sample.Default()
	require.NoError(t, err)

	raw, err := PNG(data.Flow())
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)

	// two nodes per row, Spacing apart, plus margins on both sides
	assert.Equal(t, int(sample.Spacing+nodeWidth+2*margin), img.Bounds().Dx())
	assert.Greater(t, img.Bounds().Dy(), 300)
}

func TestPNG_NegativePositions(t *testing.T) {
	t.Parallel()

	state := &models.FlowState{
		Nodes: []*models.Node{
			{ID: "a", Type: models.NodeTypeRichCard, Data: models.NewRichCardData("a"), Position: models.Position{X: -500, Y: -80}},
			{ID: "b", Type: models.NodeTypeRichCard, Data: models.NewRichCardData("b"), Position: models.Position{X: 100, Y: 40}},
		},
		Edges: []*models.Edge{
			{ID: "e-a-b", Source: "a", Target: "b"},
			{ID: "e-a-gone", Source: "a", Target: "gone"},
		},
	}

	img, err := Image(state)
	require.NoError(t, err)
	assert.Equal(t, int(600+nodeWidth+2*margin), img.Bounds().Dx())
}

func TestPNG_Empty(t *testing.T) {
	t.Parallel()

	_, err := PNG(models.NewFlowState())
	require.ErrorIs(t, err, ErrNothingToRender)

	_, err = PNG(nil)
	assert.ErrorIs(t, err, ErrNothingToRender)
}

func TestPNG_FarApartNodesAreScaledDown(t *testing.T) {
	t.Parallel()

	state := &models.FlowState{
		Nodes: []*models.Node{
			{ID: "a", Type: models.NodeTypeRichCard, Data: models.NewRichCardData("a")},
			{ID: "b", Type: models.NodeTypeRichCard, Data: models.NewRichCardData("b"), Position: models.Position{X: 1e10, Y: 1e10}},
			{ID: "c", Type: models.NodeTypeCarouselCard, Data: models.NewCarouselCardData("card-1"), Position: models.Position{X: 1e10}},
		},
		Edges: []*models.Edge{{ID: "e-a-b", Source: "a", Target: "b"}},
	}

	raw, err := PNG(state)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, MaxSide, img.Bounds().Dx())
	assert.Equal(t, MaxSide, img.Bounds().Dy())

	state.Nodes[1].Position = models.Position{X: 1e10}
	state.Nodes[2].Position = models.Position{X: 5e9}

	img2, err := Image(state)
	require.NoError(t, err)
	assert.Equal(t, MaxSide, img2.Bounds().Dx())
	assert.GreaterOrEqual(t, img2.Bounds().Dy(), 1)
}

func TestPNG_UnboundedPositions(t *testing.T) {
	t.Parallel()

	state := &models.FlowState{
		Nodes: []*models.Node{
			{ID: "a", Type: models.NodeTypeRichCard, Data: models.NewRichCardData("a"), Position: models.Position{X: -math.MaxFloat64}},
			{ID: "b", Type: models.NodeTypeRichCard, Data: models.NewRichCardData("b"), Position: models.Position{X: math.MaxFloat64}},
		},
		Edges: []*models.Edge{},
	}

	_, err := PNG(state)
	assert.ErrorIs(t, err, ErrOutOfRange)
}
