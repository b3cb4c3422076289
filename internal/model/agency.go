package model

import "database/sql"

// Agency is a law enforcement agency operating an LPR transparency portal.
// Identity is the (Name, Region) pair.
type Agency struct {
	ID     int64  `db:"id"`
	Name   string `db:"name"`
	Region string `db:"region"`
}

// AgencySummary is an agency with roll-up counts for listing
type AgencySummary struct {
	Agency
	ScrapeCount int64          `db:"scrape_count"`
	LatestDate  sql.NullString `db:"latest_date"`
}

// Scrape is one snapshot of an agency portal taken on a calendar date
type Scrape struct {
	ID           int64          `db:"id"`
	AgencyID     int64          `db:"agency_id"`
	ScrapeDate   string         `db:"scrape_date"`
	OverviewText sql.NullString `db:"overview_text"`
	Vehicles     sql.NullInt64  `db:"vehicles"`
	HotlistHits  sql.NullInt64  `db:"hotlist_hits"`
	Searches30d  sql.NullInt64  `db:"searches_30d"`
}

// FileRecord catalogs one file found in a scrape directory
type FileRecord struct {
	ID        int64          `db:"id"`
	ScrapeID  int64          `db:"scrape_id"`
	Name      string         `db:"file_name"`
	Path      string         `db:"file_path"`
	Extension sql.NullString `db:"extension"`
	Size      int64          `db:"file_size"`
}

// SearchAudit is one row of an agency's search_audit.csv
type SearchAudit struct {
	ID          int64         `db:"id"`
	ScrapeID    int64         `db:"scrape_id"`
	SearchID    string        `db:"search_id"`
	UserID      string        `db:"user_id"`
	Timestamp   string        `db:"search_timestamp"`
	CameraCount sql.NullInt64 `db:"camera_count"`
	Reason      string        `db:"reason"`
}

// PageContent holds the metrics scraped from a portal's page_content.html.
// Every field is optional; a page with no recognizable structure leaves all
// of them invalid.
type PageContent struct {
	Overview    sql.NullString
	Vehicles    sql.NullInt64
	HotlistHits sql.NullInt64
	Searches30d sql.NullInt64
}

// LeafImport is everything the importer gathered for one
// <region>/<agency>/<date> directory, written in a single transaction.
type LeafImport struct {
	Region     string
	AgencyName string
	ScrapeDate string
	Files      []FileRecord
	Content    *PageContent // nil when the leaf has no page_content.html
	Audits     []SearchAudit
}

// LeafResult reports what the catalog writer stored for a leaf
type LeafResult struct {
	AgencyID      int64
	ScrapeID      int64
	FilesInserted int
	AuditsLogged  int
}
