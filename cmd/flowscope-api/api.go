// Package main provides the Flowscope API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/dukex/flowscope/pkg/archiver"
	"github.com/dukex/flowscope/pkg/definitions"
	"github.com/dukex/flowscope/pkg/engine/rest"
	"github.com/dukex/flowscope/pkg/eventbus"
	"github.com/dukex/flowscope/pkg/importer"
	"github.com/dukex/flowscope/pkg/operations"
	"github.com/dukex/flowscope/pkg/readmodel"
	"github.com/dukex/flowscope/pkg/store"
	"github.com/dukex/flowscope/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger        *slog.Logger
	documentStore store.DocumentStore
	eventBus      eventbus.EventBus
	engineURL     string
	validate      *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	documentStore store.DocumentStore,
	eventBus eventbus.EventBus,
	engineURL string,
) *API {
	return &API{
		logger:        logger,
		documentStore: documentStore,
		eventBus:      eventBus,
		engineURL:     engineURL,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	engineClient := rest.NewClient(a.engineURL, a.logger)

	cache := definitions.NewCache(engineClient, a.logger)
	converter := importer.NewConverter(cache, a.logger)
	pipeline := importer.NewPipeline(engineClient, a.documentStore, converter, a.eventBus, a.logger, importer.DefaultConfig())

	archiverInstance := archiver.NewArchiver(a.documentStore, a.eventBus, a.logger, archiver.DefaultConfig())

	listReader := readmodel.NewListReader(a.documentStore, a.logger)
	writer := operations.NewWriter(a.documentStore, listReader, a.logger, operations.DefaultWriterConfig())

	handlers := web.NewAPIHandlers(
		listReader,
		readmodel.NewTreeReader(a.documentStore, a.logger),
		readmodel.NewIncidentReader(a.documentStore, a.logger),
		readmodel.NewVariableReader(a.documentStore, a.logger),
		writer,
		pipeline,
		archiverInstance,
		a.documentStore,
		a.validate,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Flowscope API")
	})

	instances := app.Group("/instances")
	instances.Get("/", handlers.GetInstances)
	instances.Get("/:id", handlers.GetInstance)
	instances.Get("/:id/activity-tree", handlers.GetActivityTree)
	instances.Get("/:id/incidents", handlers.GetIncidents)
	instances.Get("/:id/variables", handlers.GetVariables)

	app.Post("/operations/batch", handlers.CreateBatchOperation)

	app.Get("/import/status", handlers.GetImportStatus)
	app.Post("/import/reset", handlers.ResetImportCounters)
	app.Post("/archive/run", handlers.RunArchive)

	app.Get("/healthz", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
