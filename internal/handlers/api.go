package handlers

import (
	"database/sql"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/jjenkins/lprwatch/internal/model"
	"github.com/jjenkins/lprwatch/internal/store"
)

type agencyJSON struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Region      string  `json:"region"`
	ScrapeCount int64   `json:"scrape_count"`
	LatestDate  *string `json:"latest_date"`
}

type scrapeJSON struct {
	ID           int64   `json:"id"`
	AgencyID     int64   `json:"agency_id"`
	ScrapeDate   string  `json:"scrape_date"`
	OverviewText *string `json:"overview_text"`
	Vehicles     *int64  `json:"vehicles"`
	HotlistHits  *int64  `json:"hotlist_hits"`
	Searches30d  *int64  `json:"searches_30d"`
}

type fileJSON struct {
	ID        int64   `json:"id"`
	ScrapeID  int64   `json:"scrape_id"`
	Name      string  `json:"file_name"`
	Path      string  `json:"file_path"`
	Extension *string `json:"extension"`
	Size      int64   `json:"file_size"`
}

type auditJSON struct {
	ID          int64  `json:"id"`
	ScrapeID    int64  `json:"scrape_id"`
	SearchID    string `json:"search_id"`
	UserID      string `json:"user_id"`
	Timestamp   string `json:"search_timestamp"`
	CameraCount *int64 `json:"camera_count"`
	Reason      string `json:"reason"`
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func nullInt(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	return &ni.Int64
}

// paramID parses a numeric path parameter; ok is false after a 400 was sent
func paramID(c *fiber.Ctx, name string) (int64, bool, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid " + name})
	}
	return id, true, nil
}

func serverError(c *fiber.Ctx, logger *zap.Logger, msg string, err error) error {
	logger.Error(msg, zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": msg})
}

func notFound(c *fiber.Ctx, what string) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": what + " not found"})
}

// ListAgenciesAPI returns every agency with its snapshot count
func ListAgenciesAPI(agencyStore *store.AgencyStore, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		agencies, err := agencyStore.GetAll(c.UserContext())
		if err != nil {
			return serverError(c, logger, "failed to load agencies", err)
		}

		out := make([]agencyJSON, 0, len(agencies))
		for _, a := range agencies {
			out = append(out, agencyJSON{
				ID:          a.ID,
				Name:        a.Name,
				Region:      a.Region,
				ScrapeCount: a.ScrapeCount,
				LatestDate:  nullString(a.LatestDate),
			})
		}
		return c.JSON(out)
	}
}

// AgencyScrapesAPI returns the snapshots of one agency, newest first
func AgencyScrapesAPI(agencyStore *store.AgencyStore, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok, err := paramID(c, "id")
		if !ok {
			return err
		}
		ctx := c.UserContext()

		agency, err := agencyStore.GetByID(ctx, id)
		if err != nil {
			return serverError(c, logger, "failed to load agency", err)
		}
		if agency == nil {
			return notFound(c, "agency")
		}

		scrapes, err := agencyStore.GetScrapes(ctx, id)
		if err != nil {
			return serverError(c, logger, "failed to load scrapes", err)
		}

		out := make([]scrapeJSON, 0, len(scrapes))
		for _, s := range scrapes {
			out = append(out, toScrapeJSON(s))
		}
		return c.JSON(out)
	}
}

func toScrapeJSON(s model.Scrape) scrapeJSON {
	return scrapeJSON{
		ID:           s.ID,
		AgencyID:     s.AgencyID,
		ScrapeDate:   s.ScrapeDate,
		OverviewText: nullString(s.OverviewText),
		Vehicles:     nullInt(s.Vehicles),
		HotlistHits:  nullInt(s.HotlistHits),
		Searches30d:  nullInt(s.Searches30d),
	}
}

// ScrapeFilesAPI returns the files catalogued for a snapshot
func ScrapeFilesAPI(agencyStore *store.AgencyStore, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok, err := paramID(c, "id")
		if !ok {
			return err
		}
		ctx := c.UserContext()

		scrape, err := agencyStore.GetScrape(ctx, id)
		if err != nil {
			return serverError(c, logger, "failed to load scrape", err)
		}
		if scrape == nil {
			return notFound(c, "scrape")
		}

		files, err := agencyStore.GetFiles(ctx, id)
		if err != nil {
			return serverError(c, logger, "failed to load files", err)
		}

		out := make([]fileJSON, 0, len(files))
		for _, f := range files {
			out = append(out, fileJSON{
				ID:        f.ID,
				ScrapeID:  f.ScrapeID,
				Name:      f.Name,
				Path:      f.Path,
				Extension: nullString(f.Extension),
				Size:      f.Size,
			})
		}
		return c.JSON(out)
	}
}

// ScrapeAuditsAPI returns the search audit rows logged for a snapshot
func ScrapeAuditsAPI(agencyStore *store.AgencyStore, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok, err := paramID(c, "id")
		if !ok {
			return err
		}
		ctx := c.UserContext()

		scrape, err := agencyStore.GetScrape(ctx, id)
		if err != nil {
			return serverError(c, logger, "failed to load scrape", err)
		}
		if scrape == nil {
			return notFound(c, "scrape")
		}

		audits, err := agencyStore.GetAudits(ctx, id)
		if err != nil {
			return serverError(c, logger, "failed to load audits", err)
		}

		out := make([]auditJSON, 0, len(audits))
		for _, a := range audits {
			out = append(out, auditJSON{
				ID:          a.ID,
				ScrapeID:    a.ScrapeID,
				SearchID:    a.SearchID,
				UserID:      a.UserID,
				Timestamp:   a.Timestamp,
				CameraCount: nullInt(a.CameraCount),
				Reason:      a.Reason,
			})
		}
		return c.JSON(out)
	}
}
