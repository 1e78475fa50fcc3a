package web

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukex/chatflow/pkg/editor"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/render"
	"github.com/dukex/chatflow/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

const imageField = "image"

var errNotSaved = errors.New("flow could not be saved")

type APIHandlers struct {
	flowService *services.Flow
	validator   *validator.Validate
	logger      *slog.Logger
}

func NewAPIHandlers(flowService *services.Flow, validator *validator.Validate, logger *slog.Logger) *APIHandlers {
	return &APIHandlers{
		flowService: flowService,
		validator:   validator,
		logger:      logger,
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.flowService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Chatflow API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "Chatflow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetFlow(c fiber.Ctx) error {
	return c.JSON(h.flowService.State())
}

// ImportFlow replaces the flow with the request body, a document in the
// persisted record shape.
func (h *APIHandlers) ImportFlow(c fiber.Ctx) error {
	state, err := h.flowService.Import(c.Context(), c.Body())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(state)
}

func (h *APIHandlers) ResetFlow(c fiber.Ctx) error {
	state, err := h.flowService.Reset(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(state)
}

func (h *APIHandlers) SaveFlow(c fiber.Ctx) error {
	if !h.flowService.Save(c.Context()) {
		return internalError(c, errNotSaved)
	}

	return c.JSON(SaveResponse{Saved: true})
}

func (h *APIHandlers) ExportPNG(c fiber.Ctx) error {
	raw, err := render.PNG(h.flowService.State())
	if err != nil {
		if errors.Is(err, render.ErrNothingToRender) {
			return notFound(c, "empty_flow", "flow has no nodes to render")
		}

		if errors.Is(err, render.ErrOutOfRange) {
			return invalid(c, "out_of_range", err.Error())
		}

		return internalError(c, err)
	}

	c.Set(fiber.HeaderContentType, "image/png")

	return c.Send(raw)
}

func (h *APIHandlers) GetMode(c fiber.Ctx) error {
	return c.JSON(ModeResponse{Mode: h.flowService.Mode()})
}

func (h *APIHandlers) SetMode(c fiber.Ctx) error {
	var req ModeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.flowService.SetMode(c.Context(), models.Mode(req.Mode)); err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(ModeResponse{Mode: h.flowService.Mode()})
}

func (h *APIHandlers) CreateNode(c fiber.Ctx) error {
	var req CreateNodeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	node, err := h.flowService.AddNode(c.Context(), models.NodeType(req.Type), req.Position)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(node)
}

func (h *APIHandlers) GetNode(c fiber.Ctx) error {
	node, err := h.flowService.Node(c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(node)
}

func (h *APIHandlers) ChangeNodes(c fiber.Ctx) error {
	var req NodeChangesRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.flowService.ApplyNodeChanges(c.Context(), req.Changes); err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(h.flowService.State())
}

func (h *APIHandlers) CreateEdge(c fiber.Ctx) error {
	var req ConnectRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	edge, err := h.flowService.Connect(c.Context(), req.Connection())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(edge)
}

func (h *APIHandlers) ChangeEdges(c fiber.Ctx) error {
	var req EdgeChangesRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.flowService.ApplyEdgeChanges(c.Context(), req.Changes); err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(h.flowService.State())
}

// UpdateCard edits the fields of a rich card node.
func (h *APIHandlers) UpdateCard(c fiber.Ctx) error {
	req, ok, err := h.bindCardUpdate(c)
	if !ok {
		return err
	}

	card, err := h.flowService.RichCard(c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	if err := card.Update(c.Context(), req.Patch()); err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(card.Card())
}

func (h *APIHandlers) CreateButton(c fiber.Ctx) error {
	card, err := h.flowService.RichCard(c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	button, err := card.AddButton(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(button)
}

func (h *APIHandlers) UpdateButton(c fiber.Ctx) error {
	var req UpdateButtonRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	card, err := h.flowService.RichCard(c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	if err := card.UpdateButton(c.Context(), c.Params("buttonId"), req.Patch()); err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(card.Card())
}

func (h *APIHandlers) DeleteButton(c fiber.Ctx) error {
	card, err := h.flowService.RichCard(c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	if err := card.RemoveButton(c.Context(), c.Params("buttonId")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// UploadImage accepts a multipart image for a rich card. The card picks it
// up once encoding finishes; the response does not wait for that.
func (h *APIHandlers) UploadImage(c fiber.Ctx) error {
	nodeID := c.Params("id")

	card, err := h.flowService.RichCard(nodeID)
	if err != nil {
		return handleServiceError(c, err)
	}

	raw, err := readImage(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	h.watchUpload(nodeID, "", card.UploadImage(bytes.NewReader(raw)))

	return c.Status(fiber.StatusAccepted).JSON(UploadResponse{NodeID: nodeID, Status: "processing"})
}

func (h *APIHandlers) CreateCarouselCard(c fiber.Ctx) error {
	carousel, err := h.flowService.Carousel(c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	card, err := carousel.AddCard(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(card)
}

func (h *APIHandlers) UpdateCarouselCard(c fiber.Ctx) error {
	req, ok, err := h.bindCardUpdate(c)
	if !ok {
		return err
	}

	carousel, err := h.flowService.Carousel(c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	if err := carousel.UpdateCard(c.Context(), c.Params("cardId"), req.Patch()); err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(carouselCard(carousel, c.Params("cardId")))
}

func (h *APIHandlers) DeleteCarouselCard(c fiber.Ctx) error {
	carousel, err := h.flowService.Carousel(c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	if err := carousel.RemoveCard(c.Context(), c.Params("cardId")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) CreateCarouselButton(c fiber.Ctx) error {
	carousel, err := h.flowService.Carousel(c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	button, err := carousel.AddCardButton(c.Context(), c.Params("cardId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(button)
}

func (h *APIHandlers) UpdateCarouselButton(c fiber.Ctx) error {
	var req UpdateButtonRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	carousel, err := h.flowService.Carousel(c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	cardID := c.Params("cardId")

	if err := carousel.UpdateCardButton(c.Context(), cardID, c.Params("buttonId"), req.Patch()); err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(carouselCard(carousel, cardID))
}

func (h *APIHandlers) DeleteCarouselButton(c fiber.Ctx) error {
	carousel, err := h.flowService.Carousel(c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	if err := carousel.RemoveCardButton(c.Context(), c.Params("cardId"), c.Params("buttonId")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) UploadCarouselImage(c fiber.Ctx) error {
	nodeID, cardID := c.Params("id"), c.Params("cardId")

	carousel, err := h.flowService.Carousel(nodeID)
	if err != nil {
		return handleServiceError(c, err)
	}

	if carouselCard(carousel, cardID) == nil {
		return handleServiceError(c, fmt.Errorf("%w: %s", editor.ErrCardNotFound, cardID))
	}

	raw, err := readImage(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	h.watchUpload(nodeID, cardID, carousel.UploadCardImage(cardID, bytes.NewReader(raw)))

	return c.Status(fiber.StatusAccepted).JSON(UploadResponse{NodeID: nodeID, CardID: cardID, Status: "processing"})
}

// bindCardUpdate parses the body. When ok is false the problem response
// has already been written and err is what the handler returns.
func (h *APIHandlers) bindCardUpdate(c fiber.Ctx) (req *UpdateCardRequest, ok bool, err error) {
	req = &UpdateCardRequest{}
	if err := c.Bind().JSON(req); err != nil {
		return nil, false, badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return nil, false, badRequest(c, err.Error())
	}

	return req, true, nil
}

// watchUpload logs the outcome of a background upload.
func (h *APIHandlers) watchUpload(nodeID, cardID string, done <-chan error) {
	go func() {
		err := <-done
		if err != nil {
			h.logger.Warn("Image upload not applied", "node_id", nodeID, "card_id", cardID, "error", err)

			return
		}

		h.logger.Info("Image upload applied", "node_id", nodeID, "card_id", cardID)
	}()
}

func carouselCard(carousel *editor.Carousel, cardID string) *models.RichCardData {
	for _, card := range carousel.Cards() {
		if card.ID == cardID {
			return card
		}
	}

	return nil
}

// readImage copies the uploaded file out of the request so it outlives the handler.
func readImage(c fiber.Ctx) ([]byte, error) {
	header, err := c.FormFile(imageField)
	if err != nil {
		return nil, fmt.Errorf("multipart field %q is required", imageField)
	}

	if header.Size > editor.MaxImageBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", editor.MaxImageBytes)
	}

	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return io.ReadAll(io.LimitReader(file, editor.MaxImageBytes+1))
}

// Register mounts every flow route on router.
func (h *APIHandlers) Register(router fiber.Router) {
	router.Get("/health", h.HealthCheck)

	f := router.Group("/flow")
	f.Get("/", h.GetFlow)
	f.Put("/", h.ImportFlow)
	f.Post("/reset", h.ResetFlow)
	f.Post("/save", h.SaveFlow)
	f.Get("/mode", h.GetMode)
	f.Put("/mode", h.SetMode)
	f.Get("/export.png", h.ExportPNG)

	f.Post("/nodes", h.CreateNode)
	f.Patch("/nodes", h.ChangeNodes)
	f.Get("/nodes/:id", h.GetNode)
	f.Post("/edges", h.CreateEdge)
	f.Patch("/edges", h.ChangeEdges)

	// Rich card endpoints:
	f.Patch("/nodes/:id/card", h.UpdateCard)
	f.Post("/nodes/:id/buttons", h.CreateButton)
	f.Patch("/nodes/:id/buttons/:buttonId", h.UpdateButton)
	f.Delete("/nodes/:id/buttons/:buttonId", h.DeleteButton)
	f.Post("/nodes/:id/image", h.UploadImage)

	// Carousel endpoints:
	f.Post("/nodes/:id/cards", h.CreateCarouselCard)
	f.Patch("/nodes/:id/cards/:cardId", h.UpdateCarouselCard)
	f.Delete("/nodes/:id/cards/:cardId", h.DeleteCarouselCard)
	f.Post("/nodes/:id/cards/:cardId/buttons", h.CreateCarouselButton)
	f.Patch("/nodes/:id/cards/:cardId/buttons/:buttonId", h.UpdateCarouselButton)
	f.Delete("/nodes/:id/cards/:cardId/buttons/:buttonId", h.DeleteCarouselButton)
	f.Post("/nodes/:id/cards/:cardId/image", h.UploadCarouselImage)
}
