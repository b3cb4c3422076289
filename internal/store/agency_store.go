package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jjenkins/lprwatch/internal/model"
)

// AgencyStore handles read and delete operations on catalogued agencies
type AgencyStore struct {
	db *sqlx.DB
}

// NewAgencyStore creates a new AgencyStore
func NewAgencyStore(db *DB) *AgencyStore {
	return &AgencyStore{db: db.X()}
}

// GetAll retrieves all agencies with their scrape counts
func (s *AgencyStore) GetAll(ctx context.Context) ([]model.AgencySummary, error) {
	query := `
		SELECT a.id, a.name, a.region,
		       COUNT(s.id) AS scrape_count,
		       MAX(s.scrape_date) AS latest_date
		FROM agencies a
		LEFT JOIN scrapes s ON s.agency_id = a.id
		GROUP BY a.id, a.name, a.region
		ORDER BY a.region, a.name
	`

	var agencies []model.AgencySummary
	if err := s.db.SelectContext(ctx, &agencies, query); err != nil {
		return nil, fmt.Errorf("failed to get agencies: %w", err)
	}

	return agencies, nil
}

// GetByID retrieves an agency by its ID
func (s *AgencyStore) GetByID(ctx context.Context, id int64) (*model.Agency, error) {
	var a model.Agency
	err := s.db.GetContext(ctx, &a, `SELECT id, name, region FROM agencies WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agency %d: %w", id, err)
	}

	return &a, nil
}

// GetByNaturalKey retrieves an agency by name and region
func (s *AgencyStore) GetByNaturalKey(ctx context.Context, name, region string) (*model.Agency, error) {
	var a model.Agency
	err := s.db.GetContext(ctx, &a,
		`SELECT id, name, region FROM agencies WHERE name = $1 AND region = $2`, name, region)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agency %s (%s): %w", name, region, err)
	}

	return &a, nil
}

// GetScrapes retrieves all scrapes for an agency, newest first
func (s *AgencyStore) GetScrapes(ctx context.Context, agencyID int64) ([]model.Scrape, error) {
	query := `
		SELECT id, agency_id, scrape_date, overview_text, vehicles, hotlist_hits, searches_30d
		FROM scrapes
		WHERE agency_id = $1
		ORDER BY scrape_date DESC
	`

	var scrapes []model.Scrape
	if err := s.db.SelectContext(ctx, &scrapes, query, agencyID); err != nil {
		return nil, fmt.Errorf("failed to get scrapes for agency %d: %w", agencyID, err)
	}

	return scrapes, nil
}

// GetScrape retrieves a scrape by its ID
func (s *AgencyStore) GetScrape(ctx context.Context, id int64) (*model.Scrape, error) {
	query := `
		SELECT id, agency_id, scrape_date, overview_text, vehicles, hotlist_hits, searches_30d
		FROM scrapes
		WHERE id = $1
	`

	var sc model.Scrape
	err := s.db.GetContext(ctx, &sc, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scrape %d: %w", id, err)
	}

	return &sc, nil
}

// GetFiles retrieves the file records catalogued for a scrape
func (s *AgencyStore) GetFiles(ctx context.Context, scrapeID int64) ([]model.FileRecord, error) {
	query := `
		SELECT id, scrape_id, file_name, file_path, extension, file_size
		FROM files
		WHERE scrape_id = $1
		ORDER BY file_name, id
	`

	var files []model.FileRecord
	if err := s.db.SelectContext(ctx, &files, query, scrapeID); err != nil {
		return nil, fmt.Errorf("failed to get files for scrape %d: %w", scrapeID, err)
	}

	return files, nil
}

// GetAudits retrieves the search audits logged for a scrape
func (s *AgencyStore) GetAudits(ctx context.Context, scrapeID int64) ([]model.SearchAudit, error) {
	query := `
		SELECT id, scrape_id, search_id, user_id, search_timestamp, camera_count, reason
		FROM search_audits
		WHERE scrape_id = $1
		ORDER BY id
	`

	var audits []model.SearchAudit
	if err := s.db.SelectContext(ctx, &audits, query, scrapeID); err != nil {
		return nil, fmt.Errorf("failed to get audits for scrape %d: %w", scrapeID, err)
	}

	return audits, nil
}

// ListAuditEntries returns every catalogued search audit in insertion order
func (s *AgencyStore) ListAuditEntries(ctx context.Context) ([]model.AuditEntry, error) {
	query := `
		SELECT search_id, user_id, search_timestamp, reason
		FROM search_audits
		ORDER BY id
	`

	var entries []model.AuditEntry
	if err := s.db.SelectContext(ctx, &entries, query); err != nil {
		return nil, fmt.Errorf("failed to list audits: %w", err)
	}

	return entries, nil
}

// DeleteAgency removes an agency; its scrapes, files and audits cascade.
// Returns false if no such agency existed.
func (s *AgencyStore) DeleteAgency(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM agencies WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete agency %d: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete agency %d: %w", id, err)
	}

	return n > 0, nil
}

// CountAgencies returns the total number of agencies
func (s *AgencyStore) CountAgencies(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM agencies"); err != nil {
		return 0, fmt.Errorf("failed to count agencies: %w", err)
	}
	return count, nil
}
