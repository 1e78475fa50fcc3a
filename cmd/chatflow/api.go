// Package main provides the chatflow command line and API server.
package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/dukex/chatflow/pkg/services"
	"github.com/dukex/chatflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"
)

type API struct {
	logger   *slog.Logger
	flow     *services.Flow
	validate *validator.Validate
}

func NewAPI(logger *slog.Logger, flowService *services.Flow) *API {
	return &API{
		logger:   logger,
		flow:     flowService,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.flow, a.validate, a.logger)

	app := fiber.New()
	app.Use(recoverer.New())
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Chatflow API")
	})

	handlers.Register(app)

	return app
}

// Start serves until ctx is done.
func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()

	go func() {
		<-ctx.Done()

		if err := app.Shutdown(); err != nil {
			a.logger.Error("Failed to shut down API", "error", err)
		}
	}()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
