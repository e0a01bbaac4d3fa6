// Package main provides the Veriflow API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"go.opentelemetry.io/otel/trace"

	"github.com/ebarkov/veriflow/pkg/eventbus"
	"github.com/ebarkov/veriflow/pkg/persistence"
	"github.com/ebarkov/veriflow/pkg/services"
	"github.com/ebarkov/veriflow/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	tracer      trace.Tracer
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	tracer trace.Tracer,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		eventBus:    eventBus,
		tracer:      tracer,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	auditService := services.NewAudit(a.persistence, a.eventBus, a.logger, a.tracer)
	documentService := services.NewDocument(a.persistence, auditService, a.eventBus, a.logger, a.tracer)
	executionService := services.NewExecution(a.persistence, auditService, a.eventBus, a.logger, a.tracer)

	handlers := web.NewAPIHandlers(documentService, executionService, auditService, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Veriflow API")
	})

	d := app.Group("/documents")
	d.Get("/", handlers.GetDocuments)
	d.Post("/", handlers.CreateDocument)
	d.Post("/import", handlers.ImportDocuments)
	d.Get("/:id", handlers.GetDocument)
	d.Put("/:id/execution", handlers.SetAssignments)
	d.Patch("/:id/execution", handlers.AdvanceAssignment)

	app.Post("/tasks/:id/decision", handlers.DecideTask)

	s := app.Group("/audit-session")
	s.Post("/", handlers.StartAuditSession)
	s.Patch("/", handlers.CloseAuditSession)
	s.Get("/", handlers.GetActiveAuditSession)
	s.Get("/:id/trail", handlers.GetAuditTrail)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
