package handlers

import (
	"github.com/a-h/templ"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"go.uber.org/zap"

	"github.com/jjenkins/lprwatch/internal/service"
	"github.com/jjenkins/lprwatch/internal/templates"
)

func HomeHandler(metricsService *service.MetricsService, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		metrics := templates.HomeMetrics{}

		m, err := metricsService.Calculate(ctx)
		if err != nil {
			logger.Error("failed to calculate catalog metrics", zap.Error(err))
		} else {
			metrics = templates.HomeMetrics{
				HasData:            m.TotalAgencies > 0,
				TotalAgencies:      m.TotalAgencies,
				TotalRegions:       m.TotalRegions,
				TotalScrapes:       m.TotalScrapes,
				ScrapesWithContent: m.ScrapesWithContent,
				TotalFiles:         m.TotalFiles,
				TotalBytes:         m.TotalBytes,
				TotalAudits:        m.TotalAudits,
				TotalVehicles:      m.TotalVehicles,
				TopAgency:          m.TopAgency,
				TopAgencySearches:  m.TopAgencySearches,
			}
		}

		page := templates.Home(metrics)
		handler := adaptor.HTTPHandler(templ.Handler(page))

		return handler(c)
	}
}
