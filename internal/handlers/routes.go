package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/jjenkins/lprwatch/internal/service"
	"github.com/jjenkins/lprwatch/internal/store"
)

// Register mounts the catalog browser routes on app
func Register(app *fiber.App, db *store.DB, logger *zap.Logger) {
	agencyStore := store.NewAgencyStore(db)
	metricsService := service.NewMetricsService(db)

	app.Get("/", HomeHandler(metricsService, logger))
	app.Get("/agencies", AgenciesHandler(agencyStore, logger))

	api := app.Group("/api")
	api.Get("/agencies", ListAgenciesAPI(agencyStore, logger))
	api.Get("/agencies/:id/scrapes", AgencyScrapesAPI(agencyStore, logger))
	api.Get("/scrapes/:id/files", ScrapeFilesAPI(agencyStore, logger))
	api.Get("/scrapes/:id/audits", ScrapeAuditsAPI(agencyStore, logger))
}
