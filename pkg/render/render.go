// Package render draws a flow as a PNG image.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
)

var (
	ErrNothingToRender = errors.New("nothing to render")
	ErrOutOfRange      = errors.New("node positions out of range")
)

// MaxSide caps the width and height of a rendered image. Larger flows are
// scaled down to fit.
const MaxSide = 4096

const (
	nodeWidth  = 200.0
	lineHeight = 16.0
	padding    = 8.0
	margin     = 40.0
	fontSize   = 12.0
	arrowSize  = 6.0
	arrowAngle = 0.5
)

var (
	richColor     = color.RGBA{R: 0xE3, G: 0xF2, B: 0xFD, A: 0xFF}
	carouselColor = color.RGBA{R: 0xFF, G: 0xF3, B: 0xE0, A: 0xFF}
	edgeColor     = color.RGBA{R: 0x60, G: 0x60, B: 0x60, A: 0xFF}
)

// box is a laid out node. rows holds the text lines in drawing order;
// anchors maps nested card ids to the row that shows them.
type box struct {
	node    *models.Node
	x, y    float64
	w, h    float64
	rows    []string
	anchors map[string]int
}

// Image lays the flow out at node positions and draws it.
func Image(state *models.FlowState) (image.Image, error) {
	if state == nil || len(state.Nodes) == 0 {
		return nil, ErrNothingToRender
	}

	face, err := loadFace()
	if err != nil {
		return nil, err
	}

	boxes := layout(state)
	minX, minY, maxX, maxY := bounds(boxes)

	width, height := maxX-minX+2*margin, maxY-minY+2*margin
	if !finite(width) || !finite(height) {
		return nil, fmt.Errorf("%w: %g x %g", ErrOutOfRange, width, height)
	}

	scale := math.Min(1, math.Min(MaxSide/width, MaxSide/height))

	dc := gg.NewContext(side(width*scale), side(height*scale))
	dc.SetColor(color.White)
	dc.Clear()
	dc.SetFontFace(face)
	dc.Scale(scale, scale)
	dc.Translate(margin-minX, margin-minY)

	byNode := make(map[string]*box, len(boxes))
	byCard := make(map[string]*box)

	for _, b := range boxes {
		byNode[b.node.ID] = b

		for cardID := range b.anchors {
			byCard[cardID] = b
		}
	}

	// edges first so boxes sit on top
	for _, edge := range state.Edges {
		drawEdge(dc, edge, byNode, byCard)
	}

	for _, b := range boxes {
		drawBox(dc, b)
	}

	return dc.Image(), nil
}

// EncodePNG writes the rendered flow to w.
func EncodePNG(w io.Writer, state *models.FlowState) error {
	img, err := Image(state)
	if err != nil {
		return err
	}

	return png.Encode(w, img)
}

// PNG returns the rendered flow as PNG bytes.
func PNG(state *models.FlowState) ([]byte, error) {
	var buf bytes.Buffer

	err := EncodePNG(&buf, state)
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func loadFace() (font.Face, error) {
	ttf, err := truetype.Parse(gomono.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}

	return truetype.NewFace(ttf, &truetype.Options{
		Size:    fontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	}), nil
}

func layout(state *models.FlowState) []*box {
	boxes := make([]*box, 0, len(state.Nodes))

	for _, node := range state.Nodes {
		b := &box{node: node, x: node.Position.X, y: node.Position.Y, w: nodeWidth}

		switch data := node.Data.(type) {
		case *models.RichCardData:
			b.rows = append(b.rows, data.Title)
			if data.Description != "" {
				b.rows = append(b.rows, data.Description)
			}

			for _, button := range data.Buttons {
				b.rows = append(b.rows, "[ "+button.Label+" ]")
			}
		case *models.CarouselCardData:
			b.rows = append(b.rows, fmt.Sprintf("Carousel (%d cards)", len(data.Cards)))
			b.anchors = make(map[string]int, len(data.Cards))

			for _, card := range data.Cards {
				b.anchors[card.ID] = len(b.rows)
				b.rows = append(b.rows, "- "+card.Title)
			}
		default:
			b.rows = append(b.rows, node.ID)
		}

		b.h = float64(len(b.rows))*lineHeight + 2*padding
		boxes = append(boxes, b)
	}

	return boxes
}

func bounds(boxes []*box) (minX, minY, maxX, maxY float64) {
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)

	for _, b := range boxes {
		minX = math.Min(minX, b.x)
		minY = math.Min(minY, b.y)
		maxX = math.Max(maxX, b.x+b.w)
		maxY = math.Max(maxY, b.y+b.h)
	}

	return minX, minY, maxX, maxY
}

func finite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}

func side(v float64) int {
	return max(1, min(MaxSide, int(math.Ceil(v))))
}

func drawBox(dc *gg.Context, b *box) {
	fill := richColor
	if b.node.Type == models.NodeTypeCarouselCard {
		fill = carouselColor
	}

	dc.DrawRoundedRectangle(b.x, b.y, b.w, b.h, 6)
	dc.SetColor(fill)
	dc.FillPreserve()
	dc.SetColor(color.Black)
	dc.SetLineWidth(1)
	dc.Stroke()

	for i, row := range b.rows {
		dc.DrawStringAnchored(fit(dc, row, b.w-2*padding), b.x+padding, b.y+padding+float64(i)*lineHeight, 0, 1)
	}
}

// drawEdge connects the right side of the source to the left side of the
// target. Targets that are nested carousel cards point at their row.
func drawEdge(dc *gg.Context, edge *models.Edge, byNode, byCard map[string]*box) {
	source, ok := byNode[edge.Source]
	if !ok {
		return
	}

	var tx, ty float64

	if target, ok := byNode[edge.Target]; ok {
		tx, ty = target.x, target.y+target.h/2
	} else if carousel, ok := byCard[edge.Target]; ok {
		row := carousel.anchors[edge.Target]
		tx, ty = carousel.x+carousel.w, carousel.y+padding+(float64(row)+0.5)*lineHeight
	} else {
		return
	}

	sx, sy := source.x+source.w, source.y+source.h/2
	if byCard[edge.Target] == source {
		// a carousel pointing at its own card: loop out from the header
		sx, sy = source.x+source.w, source.y+padding+lineHeight/2
		dc.SetColor(edgeColor)
		dc.SetLineWidth(1)
		dc.MoveTo(sx, sy)
		dc.CubicTo(sx+30, sy, tx+30, ty, tx, ty)
		dc.Stroke()
		drawArrow(dc, tx+10, ty, tx, ty)

		return
	}

	dc.SetColor(edgeColor)
	dc.SetLineWidth(1)
	dc.DrawLine(sx, sy, tx, ty)
	dc.Stroke()
	drawArrow(dc, sx, sy, tx, ty)
}

func drawArrow(dc *gg.Context, fx, fy, tx, ty float64) {
	dx, dy := tx-fx, ty-fy

	length := math.Hypot(dx, dy)
	if length < 0.1 {
		return
	}

	dx /= length
	dy /= length

	dc.MoveTo(tx, ty)
	dc.LineTo(tx-arrowSize*dx+arrowSize*dy*arrowAngle, ty-arrowSize*dy-arrowSize*dx*arrowAngle)
	dc.LineTo(tx-arrowSize*dx-arrowSize*dy*arrowAngle, ty-arrowSize*dy+arrowSize*dx*arrowAngle)
	dc.ClosePath()
	dc.Fill()
}

// fit trims s with an ellipsis until it is at most width wide.
func fit(dc *gg.Context, s string, width float64) string {
	if w, _ := dc.MeasureString(s); w <= width {
		return s
	}

	runes := []rune(s)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]

		candidate := string(runes) + "..."
		if w, _ := dc.MeasureString(candidate); w <= width {
			return candidate
		}
	}

	return ""
}
