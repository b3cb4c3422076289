package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jjenkins/lprwatch/internal/model"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewDB(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.EnsureSchema(context.Background()))
	return db
}

func sampleLeaf() *model.LeafImport {
	return &model.LeafImport{
		Region:     "CA",
		AgencyName: "Springfield PD",
		ScrapeDate: "2025-06-01",
		Files: []model.FileRecord{
			{Name: "page_content.html", Path: "scraped_data/CA/Springfield PD/2025-06-01/page_content.html", Extension: sql.NullString{String: "html", Valid: true}, Size: 2048},
			{Name: "search_audit.csv", Path: "scraped_data/CA/Springfield PD/2025-06-01/search_audit.csv", Extension: sql.NullString{String: "csv", Valid: true}, Size: 512},
		},
		Content: &model.PageContent{
			Overview:    sql.NullString{String: "Flock cameras", Valid: true},
			Vehicles:    sql.NullInt64{Int64: 1234, Valid: true},
			HotlistHits: sql.NullInt64{Int64: 0, Valid: true},
		},
		Audits: []model.SearchAudit{
			{SearchID: "g1", UserID: "u1", Timestamp: "2025-06-01T00:00:00", CameraCount: sql.NullInt64{Int64: 5, Valid: true}, Reason: "INVESTIGATION"},
			{SearchID: "g2", UserID: "u2", Timestamp: "2025-06-01T01:00:00", Reason: "Inv"},
		},
	}
}

func countRows(t *testing.T, db *DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestNewDB(t *testing.T) {
	t.Run("empty dsn", func(t *testing.T) {
		_, err := NewDB("")
		assert.Error(t, err)
	})

	t.Run("sqlite prefixes", func(t *testing.T) {
		dir := t.TempDir()
		for _, dsn := range []string{
			filepath.Join(dir, "a.db"),
			"sqlite://" + filepath.Join(dir, "b.db"),
			"file:" + filepath.Join(dir, "c.db") + "?cache=shared",
		} {
			db, err := NewDB(dsn)
			require.NoError(t, err, dsn)
			assert.Equal(t, DialectSQLite, db.Dialect)
			assert.False(t, strings.Contains(db.Path, "?"))
			db.Close()
		}
	})

	t.Run("caller parameters kept", func(t *testing.T) {
		path, params, err := parseSQLiteDSN("file:x.db?mode=ro&_pragma=journal_mode(DELETE)")
		require.NoError(t, err)
		assert.Equal(t, "x.db", path)

		dsn := sqliteDSN(path, params)
		assert.Contains(t, dsn, "mode=ro")
		assert.Contains(t, dsn, "foreign_keys")
		assert.Contains(t, dsn, "busy_timeout")
		assert.NotContains(t, dsn, "WAL")
		assert.NotContains(t, dsn, "synchronous")

		_, _, err = parseSQLiteDSN("file:?mode=memory")
		assert.Error(t, err)
	})

	t.Run("read only file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ro.db")
		db, err := NewDB(path)
		require.NoError(t, err)
		require.NoError(t, db.EnsureSchema(context.Background()))
		db.Close()

		ro, err := NewDB("file:" + path + "?mode=ro")
		require.NoError(t, err)
		defer ro.Close()

		assert.Equal(t, 0, countRows(t, ro, "agencies"))
		_, err = ro.Exec("INSERT INTO agencies (region, name) VALUES ('CA', 'x')")
		assert.Error(t, err)
	})

	t.Run("memory database shared across queries", func(t *testing.T) {
		ctx := context.Background()
		db, err := NewDB(":memory:")
		require.NoError(t, err)
		defer db.Close()

		assert.Empty(t, db.Path)
		require.NoError(t, db.EnsureSchema(ctx))
		_, err = NewCatalogStore(db).SaveLeaf(ctx, sampleLeaf())
		require.NoError(t, err)
		assert.Equal(t, 1, countRows(t, db, "agencies"))
		assert.Equal(t, 2, countRows(t, db, "search_audits"))

		size, err := db.Size(ctx)
		require.NoError(t, err)
		assert.Positive(t, size)
	})

	t.Run("foreign keys enabled", func(t *testing.T) {
		db := newTestDB(t)
		var on int
		require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&on))
		assert.Equal(t, 1, on)
	})
}

func TestSchemaIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db, err := NewDB(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	defer db.Close()

	exists, err := db.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, db.EnsureSchema(ctx))
	require.NoError(t, db.EnsureSchema(ctx))
	require.NoError(t, db.CreateIndexes(ctx))
	require.NoError(t, db.CreateIndexes(ctx))

	exists, err = db.Exists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)

	size, err := db.Size(ctx)
	require.NoError(t, err)
	assert.Positive(t, size)
}

func TestSaveLeaf(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	catalog := NewCatalogStore(db)

	first, err := catalog.SaveLeaf(ctx, sampleLeaf())
	require.NoError(t, err)
	assert.Equal(t, 2, first.FilesInserted)
	assert.Equal(t, 2, first.AuditsLogged)

	agencies := NewAgencyStore(db)
	scrape, err := agencies.GetScrape(ctx, first.ScrapeID)
	require.NoError(t, err)
	require.NotNil(t, scrape)
	assert.Equal(t, "Flock cameras", scrape.OverviewText.String)
	assert.Equal(t, int64(1234), scrape.Vehicles.Int64)
	assert.True(t, scrape.HotlistHits.Valid)
	assert.Equal(t, int64(0), scrape.HotlistHits.Int64)
	assert.False(t, scrape.Searches30d.Valid)

	t.Run("rerun reuses agency and scrape and appends rows", func(t *testing.T) {
		second, err := catalog.SaveLeaf(ctx, sampleLeaf())
		require.NoError(t, err)
		assert.Equal(t, first.AgencyID, second.AgencyID)
		assert.Equal(t, first.ScrapeID, second.ScrapeID)

		assert.Equal(t, 1, countRows(t, db, "agencies"))
		assert.Equal(t, 1, countRows(t, db, "scrapes"))
		assert.Equal(t, 4, countRows(t, db, "files"))
		assert.Equal(t, 4, countRows(t, db, "search_audits"))
	})

	t.Run("leaf without page keeps earlier statistics", func(t *testing.T) {
		leaf := sampleLeaf()
		leaf.Content = nil
		_, err := catalog.SaveLeaf(ctx, leaf)
		require.NoError(t, err)

		scrape, err := agencies.GetScrape(ctx, first.ScrapeID)
		require.NoError(t, err)
		assert.Equal(t, int64(1234), scrape.Vehicles.Int64)
	})

	t.Run("empty page clears statistics", func(t *testing.T) {
		leaf := sampleLeaf()
		leaf.Content = &model.PageContent{}
		_, err := catalog.SaveLeaf(ctx, leaf)
		require.NoError(t, err)

		scrape, err := agencies.GetScrape(ctx, first.ScrapeID)
		require.NoError(t, err)
		assert.False(t, scrape.OverviewText.Valid)
		assert.False(t, scrape.Vehicles.Valid)
	})
}

func TestSaveLeafSkipExisting(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	catalog := NewCatalogStore(db)
	catalog.SetSkipExisting(true)

	first, err := catalog.SaveLeaf(ctx, sampleLeaf())
	require.NoError(t, err)
	assert.Equal(t, 2, first.FilesInserted)
	assert.Equal(t, 2, first.AuditsLogged)

	second, err := catalog.SaveLeaf(ctx, sampleLeaf())
	require.NoError(t, err)
	assert.Zero(t, second.FilesInserted)
	assert.Zero(t, second.AuditsLogged)

	assert.Equal(t, 2, countRows(t, db, "files"))
	assert.Equal(t, 2, countRows(t, db, "search_audits"))
}

func TestSaveLeafSameAgencyDifferentRegion(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	catalog := NewCatalogStore(db)

	a, err := catalog.SaveLeaf(ctx, &model.LeafImport{Region: "CA", AgencyName: "Sheriff", ScrapeDate: "2025-06-01"})
	require.NoError(t, err)
	b, err := catalog.SaveLeaf(ctx, &model.LeafImport{Region: "TX", AgencyName: "Sheriff", ScrapeDate: "2025-06-01"})
	require.NoError(t, err)

	assert.NotEqual(t, a.AgencyID, b.AgencyID)
	assert.Equal(t, 2, countRows(t, db, "agencies"))
}

func TestDeleteAgencyCascades(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	catalog := NewCatalogStore(db)

	res, err := catalog.SaveLeaf(ctx, sampleLeaf())
	require.NoError(t, err)

	agencies := NewAgencyStore(db)
	deleted, err := agencies.DeleteAgency(ctx, res.AgencyID)
	require.NoError(t, err)
	assert.True(t, deleted)

	for _, table := range []string{"agencies", "scrapes", "files", "search_audits"} {
		assert.Zero(t, countRows(t, db, table), table)
	}

	deleted, err = agencies.DeleteAgency(ctx, res.AgencyID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	_, err := NewCatalogStore(db).SaveLeaf(ctx, sampleLeaf())
	require.NoError(t, err)
	require.NoError(t, db.CreateIndexes(ctx))

	require.NoError(t, db.Reset(ctx))

	exists, err := db.Exists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)
	for _, table := range []string{"agencies", "scrapes", "files", "search_audits"} {
		assert.Zero(t, countRows(t, db, table), table)
	}
}

func TestAgencyStoreReads(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	catalog := NewCatalogStore(db)

	res, err := catalog.SaveLeaf(ctx, sampleLeaf())
	require.NoError(t, err)
	later := sampleLeaf()
	later.ScrapeDate = "2025-07-01"
	later.Audits = nil
	_, err = catalog.SaveLeaf(ctx, later)
	require.NoError(t, err)
	_, err = catalog.SaveLeaf(ctx, &model.LeafImport{Region: "AZ", AgencyName: "Mesa PD", ScrapeDate: "2025-06-01"})
	require.NoError(t, err)

	agencies := NewAgencyStore(db)

	all, err := agencies.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "AZ", all[0].Region)
	assert.Equal(t, "Springfield PD", all[1].Name)
	assert.Equal(t, int64(2), all[1].ScrapeCount)
	assert.Equal(t, "2025-07-01", all[1].LatestDate.String)

	a, err := agencies.GetByNaturalKey(ctx, "Springfield PD", "CA")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, res.AgencyID, a.ID)

	missing, err := agencies.GetByID(ctx, 9999)
	require.NoError(t, err)
	assert.Nil(t, missing)

	scrapes, err := agencies.GetScrapes(ctx, res.AgencyID)
	require.NoError(t, err)
	require.Len(t, scrapes, 2)
	assert.Equal(t, "2025-07-01", scrapes[0].ScrapeDate)

	files, err := agencies.GetFiles(ctx, res.ScrapeID)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "page_content.html", files[0].Name)
	assert.Equal(t, "html", files[0].Extension.String)

	audits, err := agencies.GetAudits(ctx, res.ScrapeID)
	require.NoError(t, err)
	require.Len(t, audits, 2)
	assert.Equal(t, int64(5), audits[0].CameraCount.Int64)
	assert.False(t, audits[1].CameraCount.Valid)

	entries, err := agencies.ListAuditEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, model.AuditEntry{SearchGUID: "g1", UserGUID: "u1", Timestamp: "2025-06-01T00:00:00", Reason: "INVESTIGATION"}, entries[0])

	count, err := agencies.CountAgencies(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
