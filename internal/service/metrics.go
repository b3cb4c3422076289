package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jjenkins/lprwatch/internal/store"
)

// MetricsService calculates catalog-wide totals
type MetricsService struct {
	db *store.DB
}

// NewMetricsService creates a new MetricsService
func NewMetricsService(db *store.DB) *MetricsService {
	return &MetricsService{db: db}
}

// CatalogMetrics represents catalog-wide totals
type CatalogMetrics struct {
	TotalAgencies      int
	TotalRegions       int
	TotalScrapes       int
	ScrapesWithContent int
	TotalFiles         int
	TotalBytes         int64
	TotalAudits        int
	TotalVehicles      int64
	TopAgency          string
	TopAgencySearches  int64
}

// Calculate computes the catalog metrics
func (m *MetricsService) Calculate(ctx context.Context) (*CatalogMetrics, error) {
	metrics := &CatalogMetrics{}

	err := m.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT region) FROM agencies
	`).Scan(&metrics.TotalAgencies, &metrics.TotalRegions)
	if err != nil {
		return nil, fmt.Errorf("failed to count agencies: %w", err)
	}

	err = m.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(CASE WHEN overview_text IS NOT NULL OR vehicles IS NOT NULL
				OR hotlist_hits IS NOT NULL OR searches_30d IS NOT NULL THEN 1 END),
			COALESCE(SUM(vehicles), 0)
		FROM scrapes
	`).Scan(&metrics.TotalScrapes, &metrics.ScrapesWithContent, &metrics.TotalVehicles)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate scrape metrics: %w", err)
	}

	err = m.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(file_size), 0) FROM files
	`).Scan(&metrics.TotalFiles, &metrics.TotalBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate file metrics: %w", err)
	}

	err = m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM search_audits`).Scan(&metrics.TotalAudits)
	if err != nil {
		return nil, fmt.Errorf("failed to count audits: %w", err)
	}

	// Agency with the most searches reported on any single snapshot
	err = m.db.QueryRowContext(ctx, `
		SELECT a.name, s.searches_30d
		FROM scrapes s
		JOIN agencies a ON a.id = s.agency_id
		WHERE s.searches_30d IS NOT NULL
		ORDER BY s.searches_30d DESC, a.name
		LIMIT 1
	`).Scan(&metrics.TopAgency, &metrics.TopAgencySearches)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to find top agency: %w", err)
	}

	return metrics, nil
}
