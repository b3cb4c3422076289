package store

import (
	"context"
	"fmt"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS agencies (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		region TEXT NOT NULL,
		UNIQUE (name, region)
	)`,
	`CREATE TABLE IF NOT EXISTS scrapes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		agency_id INTEGER NOT NULL REFERENCES agencies (id) ON DELETE CASCADE,
		scrape_date TEXT NOT NULL,
		overview_text TEXT,
		vehicles INTEGER,
		hotlist_hits INTEGER,
		searches_30d INTEGER,
		UNIQUE (agency_id, scrape_date)
	)`,
	`CREATE TABLE IF NOT EXISTS files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		scrape_id INTEGER NOT NULL REFERENCES scrapes (id) ON DELETE CASCADE,
		file_name TEXT NOT NULL,
		file_path TEXT NOT NULL,
		extension TEXT,
		file_size INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS search_audits (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		scrape_id INTEGER NOT NULL REFERENCES scrapes (id) ON DELETE CASCADE,
		search_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		search_timestamp TEXT NOT NULL,
		camera_count INTEGER,
		reason TEXT NOT NULL
	)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS agencies (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		region TEXT NOT NULL,
		UNIQUE (name, region)
	)`,
	`CREATE TABLE IF NOT EXISTS scrapes (
		id BIGSERIAL PRIMARY KEY,
		agency_id BIGINT NOT NULL REFERENCES agencies (id) ON DELETE CASCADE,
		scrape_date TEXT NOT NULL,
		overview_text TEXT,
		vehicles BIGINT,
		hotlist_hits BIGINT,
		searches_30d BIGINT,
		UNIQUE (agency_id, scrape_date)
	)`,
	`CREATE TABLE IF NOT EXISTS files (
		id BIGSERIAL PRIMARY KEY,
		scrape_id BIGINT NOT NULL REFERENCES scrapes (id) ON DELETE CASCADE,
		file_name TEXT NOT NULL,
		file_path TEXT NOT NULL,
		extension TEXT,
		file_size BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS search_audits (
		id BIGSERIAL PRIMARY KEY,
		scrape_id BIGINT NOT NULL REFERENCES scrapes (id) ON DELETE CASCADE,
		search_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		search_timestamp TEXT NOT NULL,
		camera_count BIGINT,
		reason TEXT NOT NULL
	)`,
}

// indexes are created once bulk loading is done
var indexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_agencies_region ON agencies (region)`,
	`CREATE INDEX IF NOT EXISTS idx_scrapes_date ON scrapes (scrape_date)`,
	`CREATE INDEX IF NOT EXISTS idx_files_extension ON files (extension)`,
	`CREATE INDEX IF NOT EXISTS idx_search_audits_scrape_id ON search_audits (scrape_id)`,
}

// tables in drop order, children first
var tables = []string{"search_audits", "files", "scrapes", "agencies"}

// EnsureSchema creates the catalog tables if they do not exist
func (d *DB) EnsureSchema(ctx context.Context) error {
	stmts := sqliteSchema
	if d.Dialect == DialectPostgres {
		stmts = postgresSchema
	}

	for _, stmt := range stmts {
		if _, err := d.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// CreateIndexes builds the lookup indexes. Safe to call repeatedly.
func (d *DB) CreateIndexes(ctx context.Context) error {
	for _, stmt := range indexes {
		if _, err := d.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// Reset drops every catalog table and recreates an empty schema.
// It never prompts; confirmation belongs to the caller.
func (d *DB) Reset(ctx context.Context) error {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range tables {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return fmt.Errorf("failed to drop %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return d.EnsureSchema(ctx)
}
