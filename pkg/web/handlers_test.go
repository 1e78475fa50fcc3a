package web_test

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image/png"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dukex/chatflow/pkg/autosave"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/dukex/chatflow/pkg/persistence/memory"
	"github.com/dukex/chatflow/pkg/render"
	"github.com/dukex/chatflow/pkg/services"
	"github.com/dukex/chatflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngPixel, _ = base64.StdEncoding.DecodeString(
	"iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg==",
)

type testApp struct {
	app     *fiber.App
	service *services.Flow
	store   *persistence.Store
}

func setupTestApp(t *testing.T) *testApp {
	t.Helper()

	store := persistence.NewStore(memory.NewPersistence())
	service := services.NewFlow(store, services.WithAutosave(autosave.WithClock(clockwork.NewFakeClock())))
	t.Cleanup(service.Close)

	_, err := service.Bootstrap(t.Context())
	require.NoError(t, err)

	handlers := web.NewAPIHandlers(service, validator.New(validator.WithRequiredStructEnabled()), slog.Default())

	app := fiber.New()
	handlers.Register(app)

	return &testApp{app: app, service: service, store: store}
}

func (ta *testApp) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader

	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)

		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return ta.send(t, req)
}

func (ta *testApp) send(t *testing.T, req *http.Request) (int, []byte) {
	t.Helper()

	resp, err := ta.app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, raw
}

func (ta *testApp) richCard(t *testing.T, id string) *models.RichCardData {
	t.Helper()

	node, err := ta.service.Node(id)
	require.NoError(t, err)

	return node.Data.(*models.RichCardData)
}

func problemType(t *testing.T, body []byte) string {
	t.Helper()

	var problem struct {
		Type string `json:"type"`
	}

	require.NoError(t, json.Unmarshal(body, &problem))

	return problem.Type
}

func TestAPIHandlers_GetFlow(t *testing.T) {
	t.Parallel()

	ta := setupTestApp(t)

	status, body := ta.do(t, http.MethodGet, "/flow", nil)
	require.Equal(t, http.StatusOK, status)

	var state models.FlowState
	require.NoError(t, json.Unmarshal(body, &state))
	assert.Len(t, state.Nodes, 3)
	assert.Len(t, state.Edges, 2)
	assert.IsType(t, &models.CarouselCardData{}, state.NodeByID("carousel-1").Data)
}

func TestAPIHandlers_CreateNode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		requestBody    any
		expectedStatus int
		expectedType   string
	}{
		{
			name:           "rich card",
			requestBody:    web.CreateNodeRequest{Type: "richCard", Position: models.Position{X: 10, Y: 20}},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "carousel",
			requestBody:    web.CreateNodeRequest{Type: "carouselCard"},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "unknown type",
			requestBody:    web.CreateNodeRequest{Type: "video"},
			expectedStatus: http.StatusBadRequest,
			expectedType:   "validation_error",
		},
		{
			name:           "invalid json",
			requestBody:    "{",
			expectedStatus: http.StatusBadRequest,
			expectedType:   "validation_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ta := setupTestApp(t)

			status, body := ta.do(t, http.MethodPost, "/flow/nodes", tt.requestBody)
			require.Equal(t, tt.expectedStatus, status, string(body))

			if tt.expectedType != "" {
				assert.Equal(t, tt.expectedType, problemType(t, body))

				return
			}

			var node models.Node
			require.NoError(t, json.Unmarshal(body, &node))
			assert.NotEmpty(t, node.ID)
			assert.Len(t, ta.service.State().Nodes, 4)
		})
	}
}

func TestAPIHandlers_RichCardEditing(t *testing.T) {
	t.Parallel()

	ta := setupTestApp(t)
	require.True(t, ta.service.Save(t.Context()))

	status, body := ta.do(t, http.MethodPatch, "/flow/nodes/welcome-card/card", map[string]string{"title": "Hi there"})
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, "Hi there", ta.richCard(t, "welcome-card").Title)

	stored := ta.store.Load(t.Context()).NodeByID("welcome-card").Data.(*models.RichCardData)
	assert.Equal(t, "Hi there", stored.Title)

	status, body = ta.do(t, http.MethodPost, "/flow/nodes/welcome-card/buttons", nil)
	require.Equal(t, http.StatusCreated, status)

	var button models.ButtonData
	require.NoError(t, json.Unmarshal(body, &button))
	assert.Equal(t, "New Action", button.Label)

	status, _ = ta.do(t, http.MethodPatch, "/flow/nodes/welcome-card/buttons/"+button.ID, map[string]string{"label": "Go"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Go", ta.richCard(t, "welcome-card").Button(button.ID).Label)

	status, _ = ta.do(t, http.MethodDelete, "/flow/nodes/welcome-card/buttons/"+button.ID, nil)
	require.Equal(t, http.StatusNoContent, status)
	assert.Nil(t, ta.richCard(t, "welcome-card").Button(button.ID))

	status, body = ta.do(t, http.MethodDelete, "/flow/nodes/welcome-card/buttons/"+button.ID, nil)
	require.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "button_not_found", problemType(t, body))
}

func TestAPIHandlers_CardErrors(t *testing.T) {
	t.Parallel()

	ta := setupTestApp(t)

	status, body := ta.do(t, http.MethodPatch, "/flow/nodes/carousel-1/card", map[string]string{"title": "x"})
	require.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "wrong_card_type", problemType(t, body))

	status, body = ta.do(t, http.MethodPatch, "/flow/nodes/missing/card", map[string]string{"title": "x"})
	require.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "node_not_found", problemType(t, body))

	status, body = ta.do(t, http.MethodPatch, "/flow/nodes/welcome-card/card", map[string]string{"image_url": "not a url"})
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation_error", problemType(t, body))
}

func TestAPIHandlers_CarouselEditing(t *testing.T) {
	t.Parallel()

	ta := setupTestApp(t)

	status, body := ta.do(t, http.MethodPost, "/flow/nodes/carousel-1/cards", nil)
	require.Equal(t, http.StatusCreated, status)

	var card models.RichCardData
	require.NoError(t, json.Unmarshal(body, &card))
	assert.Equal(t, "Card 3", card.Title)

	status, body = ta.do(t, http.MethodPatch, "/flow/nodes/carousel-1/cards/"+card.ID, map[string]string{"description": "New arrival"})
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &card))
	assert.Equal(t, "New arrival", card.Description)

	status, body = ta.do(t, http.MethodPost, "/flow/nodes/carousel-1/cards/"+card.ID+"/buttons", nil)
	require.Equal(t, http.StatusCreated, status)

	var button models.ButtonData
	require.NoError(t, json.Unmarshal(body, &button))

	status, _ = ta.do(t, http.MethodPatch, "/flow/nodes/carousel-1/cards/"+card.ID+"/buttons/"+button.ID,
		map[string]string{"action": "buy"})
	require.Equal(t, http.StatusOK, status)

	status, _ = ta.do(t, http.MethodDelete, "/flow/nodes/carousel-1/cards/"+card.ID+"/buttons/"+button.ID, nil)
	require.Equal(t, http.StatusNoContent, status)

	status, _ = ta.do(t, http.MethodDelete, "/flow/nodes/carousel-1/cards/product-speaker", nil)
	require.Equal(t, http.StatusNoContent, status)

	node, err := ta.service.Node("carousel-1")
	require.NoError(t, err)

	cards := node.Data.(*models.CarouselCardData).Cards
	require.Len(t, cards, 2)
	assert.Equal(t, "product-headphones", cards[0].ID)
	assert.Equal(t, card.ID, cards[1].ID)
	assert.Empty(t, cards[1].Buttons)

	status, body = ta.do(t, http.MethodPatch, "/flow/nodes/carousel-1/cards/missing", map[string]string{"title": "x"})
	require.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "card_not_found", problemType(t, body))
}

func multipartImage(t *testing.T, path string, content []byte) *http.Request {
	t.Helper()

	var buf bytes.Buffer

	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("image", "pixel.png")
	require.NoError(t, err)

	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return req
}

func TestAPIHandlers_UploadImage(t *testing.T) {
	t.Parallel()

	ta := setupTestApp(t)

	status, body := ta.send(t, multipartImage(t, "/flow/nodes/welcome-card/image", pngPixel))
	require.Equal(t, http.StatusAccepted, status, string(body))

	require.Eventually(t, func() bool {
		node, err := ta.service.Node("welcome-card")

		return err == nil && strings.HasPrefix(node.Data.(*models.RichCardData).ImageURL, "data:image/png;base64,")
	}, 2*time.Second, 10*time.Millisecond)

	status, _ = ta.send(t, multipartImage(t, "/flow/nodes/carousel-1/cards/product-speaker/image", pngPixel))
	require.Equal(t, http.StatusAccepted, status)

	require.Eventually(t, func() bool {
		node, err := ta.service.Node("carousel-1")
		if err != nil {
			return false
		}

		card := node.Data.(*models.CarouselCardData).Card("product-speaker")

		return strings.HasPrefix(card.ImageURL, "data:image/png;base64,")
	}, 2*time.Second, 10*time.Millisecond)

	status, body = ta.send(t, multipartImage(t, "/flow/nodes/carousel-1/cards/missing/image", pngPixel))
	require.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "card_not_found", problemType(t, body))

	status, body = ta.do(t, http.MethodPost, "/flow/nodes/welcome-card/image", nil)
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation_error", problemType(t, body))
}

func TestAPIHandlers_ModeAndCanvasChanges(t *testing.T) {
	t.Parallel()

	ta := setupTestApp(t)

	status, body := ta.do(t, http.MethodGet, "/flow/mode", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"mode":"edit"}`, string(body))

	status, body = ta.do(t, http.MethodPost, "/flow/edges", web.ConnectRequest{Source: "welcome-card", Target: "order-status-card"})
	require.Equal(t, http.StatusCreated, status)

	var edge models.Edge
	require.NoError(t, json.Unmarshal(body, &edge))

	status, _ = ta.do(t, http.MethodPut, "/flow/mode", web.ModeRequest{Mode: "view"})
	require.Equal(t, http.StatusOK, status)

	status, body = ta.do(t, http.MethodPatch, "/flow/nodes", map[string]any{
		"changes": []map[string]any{{"type": "remove", "id": "welcome-card"}},
	})
	require.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "view_mode", problemType(t, body))

	status, _ = ta.do(t, http.MethodPut, "/flow/mode", web.ModeRequest{Mode: "preview"})
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = ta.do(t, http.MethodPut, "/flow/mode", web.ModeRequest{Mode: "edit"})
	require.Equal(t, http.StatusOK, status)

	status, body = ta.do(t, http.MethodPatch, "/flow/nodes", map[string]any{
		"changes": []map[string]any{
			{"type": "position", "id": "order-status-card", "position": map[string]float64{"x": 900, "y": 50}},
			{"type": "remove", "id": "welcome-card"},
		},
	})
	require.Equal(t, http.StatusOK, status, string(body))

	var state models.FlowState
	require.NoError(t, json.Unmarshal(body, &state))
	assert.Nil(t, state.NodeByID("welcome-card"))
	assert.Equal(t, models.Position{X: 900, Y: 50}, state.NodeByID("order-status-card").Position)

	status, body = ta.do(t, http.MethodPatch, "/flow/edges", map[string]any{
		"changes": []map[string]any{{"type": "remove", "id": edge.ID}},
	})
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &state))
	assert.Len(t, state.Edges, 2)

	status, _ = ta.do(t, http.MethodPatch, "/flow/edges", map[string]any{"changes": []map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPIHandlers_ImportResetSave(t *testing.T) {
	t.Parallel()

	ta := setupTestApp(t)

	status, body := ta.do(t, http.MethodPut, "/flow", `{"nodes": "nope", "edges": []}`)
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_document", problemType(t, body))

	status, body = ta.do(t, http.MethodPut, "/flow", `{"nodes": [], "edges": []}`)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Empty(t, ta.service.State().Nodes)

	status, body = ta.do(t, http.MethodGet, "/flow/export.png", nil)
	require.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "empty_flow", problemType(t, body))

	status, _ = ta.do(t, http.MethodPost, "/flow/save", nil)
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, ta.store.Load(t.Context()))

	status, _ = ta.do(t, http.MethodPost, "/flow/reset", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Nil(t, ta.store.Load(t.Context()))
	assert.Len(t, ta.service.State().Nodes, 3)

	req := httptest.NewRequest(http.MethodGet, "/flow/export.png", nil)
	resp, err := ta.app.Test(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	t.Parallel()

	ta := setupTestApp(t)

	status, body := ta.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, status)

	var health map[string]any
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "healthy", health["status"])
}

func TestAPIHandlers_ExportFarApartNodes(t *testing.T) {
	t.Parallel()

	ta := setupTestApp(t)
	nodes := ta.service.State().Nodes

	status, body := ta.do(t, http.MethodPatch, "/flow/nodes", map[string]any{
		"changes": []map[string]any{
			{"type": "position", "id": nodes[0].ID, "position": map[string]float64{"x": 0, "y": 0}},
			{"type": "position", "id": nodes[1].ID, "position": map[string]float64{"x": 1e10, "y": 1e10}},
		},
	})
	require.Equal(t, http.StatusOK, status, string(body))

	status, body = ta.do(t, http.MethodGet, "/flow/export.png", nil)
	require.Equal(t, http.StatusOK, status)

	img, err := png.Decode(bytes.NewReader(body))
	require.NoError(t, err)
	assert.LessOrEqual(t, img.Bounds().Dx(), render.MaxSide)
	assert.LessOrEqual(t, img.Bounds().Dy(), render.MaxSide)

	status, body = ta.do(t, http.MethodPatch, "/flow/nodes", map[string]any{
		"changes": []map[string]any{
			{"type": "position", "id": nodes[0].ID, "position": map[string]float64{"x": -math.MaxFloat64, "y": 0}},
			{"type": "position", "id": nodes[1].ID, "position": map[string]float64{"x": math.MaxFloat64, "y": 0}},
		},
	})
	require.Equal(t, http.StatusOK, status, string(body))

	status, body = ta.do(t, http.MethodGet, "/flow/export.png", nil)
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "out_of_range", problemType(t, body))
}
