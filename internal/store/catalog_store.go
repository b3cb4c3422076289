package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jjenkins/lprwatch/internal/model"
)

// CatalogStore writes imported scrape directories into the catalog
type CatalogStore struct {
	db *DB
	// skipExisting turns file and audit inserts into insert-if-absent keyed
	// by (scrape_id, file_path) and (scrape_id, search_id)
	skipExisting bool
}

// NewCatalogStore creates a new CatalogStore
func NewCatalogStore(db *DB) *CatalogStore {
	return &CatalogStore{db: db}
}

// SetSkipExisting enables upsert-or-skip semantics for files and audits so
// re-running an import does not duplicate them
func (s *CatalogStore) SetSkipExisting(skip bool) {
	s.skipExisting = skip
}

// SaveLeaf materializes one leaf directory in a single transaction.
// Agency and scrape rows are resolved by natural key; file and audit rows
// are appended; page content, when present, overwrites the scrape metrics.
func (s *CatalogStore) SaveLeaf(ctx context.Context, leaf *model.LeafImport) (*model.LeafResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result := &model.LeafResult{}

	result.AgencyID, err = resolveAgency(ctx, tx, leaf.AgencyName, leaf.Region)
	if err != nil {
		return nil, err
	}

	result.ScrapeID, err = resolveScrape(ctx, tx, result.AgencyID, leaf.ScrapeDate)
	if err != nil {
		return nil, err
	}

	for idx := range leaf.Files {
		f := &leaf.Files[idx]
		f.ScrapeID = result.ScrapeID
		inserted, err := s.insertFile(ctx, tx, f)
		if err != nil {
			return nil, err
		}
		if inserted {
			result.FilesInserted++
		}
	}

	if leaf.Content != nil {
		if err := updateScrapeContent(ctx, tx, result.ScrapeID, leaf.Content); err != nil {
			return nil, err
		}
	}

	if len(leaf.Audits) > 0 {
		n, err := s.insertAudits(ctx, tx, result.ScrapeID, leaf.Audits)
		if err != nil {
			return nil, err
		}
		result.AuditsLogged = n
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return result, nil
}

// resolveAgency inserts the agency if absent and reads back its id.
// Correct only with a single writer.
func resolveAgency(ctx context.Context, tx *sql.Tx, name, region string) (int64, error) {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO agencies (name, region)
		VALUES ($1, $2)
		ON CONFLICT (name, region) DO NOTHING
	`, name, region)
	if err != nil {
		return 0, fmt.Errorf("failed to insert agency %s (%s): %w", name, region, err)
	}

	var id int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM agencies WHERE name = $1 AND region = $2`, name, region,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to select agency %s (%s): %w", name, region, err)
	}

	return id, nil
}

// resolveScrape inserts the scrape if absent and reads back its id
func resolveScrape(ctx context.Context, tx *sql.Tx, agencyID int64, date string) (int64, error) {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO scrapes (agency_id, scrape_date)
		VALUES ($1, $2)
		ON CONFLICT (agency_id, scrape_date) DO NOTHING
	`, agencyID, date)
	if err != nil {
		return 0, fmt.Errorf("failed to insert scrape %d/%s: %w", agencyID, date, err)
	}

	var id int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM scrapes WHERE agency_id = $1 AND scrape_date = $2`, agencyID, date,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to select scrape %d/%s: %w", agencyID, date, err)
	}

	return id, nil
}

func (s *CatalogStore) insertFile(ctx context.Context, tx *sql.Tx, f *model.FileRecord) (bool, error) {
	query := `
		INSERT INTO files (scrape_id, file_name, file_path, extension, file_size)
		VALUES ($1, $2, $3, $4, $5)
	`
	if s.skipExisting {
		query = `
			INSERT INTO files (scrape_id, file_name, file_path, extension, file_size)
			SELECT CAST($1 AS BIGINT), CAST($2 AS TEXT), CAST($3 AS TEXT), CAST($4 AS TEXT), CAST($5 AS BIGINT)
			WHERE NOT EXISTS (
				SELECT 1 FROM files WHERE scrape_id = $1 AND file_path = $3
			)
		`
	}

	res, err := tx.ExecContext(ctx, query, f.ScrapeID, f.Name, f.Path, f.Extension, f.Size)
	if err != nil {
		return false, fmt.Errorf("failed to insert file %s: %w", f.Path, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to insert file %s: %w", f.Path, err)
	}

	return n > 0, nil
}

func updateScrapeContent(ctx context.Context, tx *sql.Tx, scrapeID int64, c *model.PageContent) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE scrapes
		SET overview_text = $2, vehicles = $3, hotlist_hits = $4, searches_30d = $5
		WHERE id = $1
	`, scrapeID, c.Overview, c.Vehicles, c.HotlistHits, c.Searches30d)
	if err != nil {
		return fmt.Errorf("failed to update content for scrape %d: %w", scrapeID, err)
	}
	return nil
}

func (s *CatalogStore) insertAudits(ctx context.Context, tx *sql.Tx, scrapeID int64, audits []model.SearchAudit) (int, error) {
	query := `
		INSERT INTO search_audits (scrape_id, search_id, user_id, search_timestamp, camera_count, reason)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if s.skipExisting {
		query = `
			INSERT INTO search_audits (scrape_id, search_id, user_id, search_timestamp, camera_count, reason)
			SELECT CAST($1 AS BIGINT), CAST($2 AS TEXT), CAST($3 AS TEXT), CAST($4 AS TEXT), CAST($5 AS BIGINT), CAST($6 AS TEXT)
			WHERE NOT EXISTS (
				SELECT 1 FROM search_audits WHERE scrape_id = $1 AND search_id = $2
			)
		`
	}

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare audit insert: %w", err)
	}
	defer stmt.Close()

	logged := 0
	for idx := range audits {
		a := &audits[idx]
		a.ScrapeID = scrapeID
		res, err := stmt.ExecContext(ctx, scrapeID, a.SearchID, a.UserID, a.Timestamp, a.CameraCount, a.Reason)
		if err != nil {
			return 0, fmt.Errorf("failed to insert audit %s: %w", a.SearchID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to insert audit %s: %w", a.SearchID, err)
		}
		logged += int(n)
	}

	return logged, nil
}
