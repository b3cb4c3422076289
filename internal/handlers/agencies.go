package handlers

import (
	"github.com/a-h/templ"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"go.uber.org/zap"

	"github.com/jjenkins/lprwatch/internal/store"
	"github.com/jjenkins/lprwatch/internal/templates"
)

func AgenciesHandler(agencyStore *store.AgencyStore, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		agencies, err := agencyStore.GetAll(c.UserContext())
		if err != nil {
			logger.Error("failed to load agencies", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).SendString("Error loading agencies")
		}

		page := templates.Agencies(agencies)
		handler := adaptor.HTTPHandler(templ.Handler(page))

		return handler(c)
	}
}
