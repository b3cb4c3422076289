package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jjenkins/lprwatch/internal/model"
	"github.com/jjenkins/lprwatch/internal/store"
)

type fixture struct {
	app    *fiber.App
	db     *store.DB
	result *model.LeafResult
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := store.NewDB(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.EnsureSchema(ctx))

	result, err := store.NewCatalogStore(db).SaveLeaf(ctx, &model.LeafImport{
		Region:     "CA",
		AgencyName: "Springfield <PD>",
		ScrapeDate: "2025-06-01",
		Files: []model.FileRecord{
			{Name: "page_content.html", Path: "scraped_data/CA/Springfield <PD>/2025-06-01/page_content.html", Extension: sql.NullString{String: "html", Valid: true}, Size: 10},
			{Name: "README", Path: "scraped_data/CA/Springfield <PD>/2025-06-01/README", Size: 3},
		},
		Content: &model.PageContent{
			Vehicles:    sql.NullInt64{Int64: 1234, Valid: true},
			Searches30d: sql.NullInt64{Int64: 56, Valid: true},
		},
		Audits: []model.SearchAudit{
			{SearchID: "g1", UserID: "u1", Timestamp: "2025-06-01T00:00:00", CameraCount: sql.NullInt64{Int64: 5, Valid: true}, Reason: "INVESTIGATION"},
		},
	})
	require.NoError(t, err)

	app := fiber.New()
	Register(app, db, zap.NewNop())

	return &fixture{app: app, db: db, result: result}
}

func (f *fixture) get(t *testing.T, path string) (int, string) {
	t.Helper()
	resp, err := f.app.Test(httptest.NewRequest(http.MethodGet, path, nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestHomePage(t *testing.T) {
	f := newFixture(t)

	status, body := f.get(t, "/")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "LPR Portal Catalog")
	assert.Contains(t, body, "1,234")
	assert.Contains(t, body, "Springfield &lt;PD&gt;")
}

func TestHomePageEmptyCatalog(t *testing.T) {
	db, err := store.NewDB(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.EnsureSchema(context.Background()))

	app := fiber.New()
	Register(app, db, zap.NewNop())

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "lprwatch import")
}

func TestAgenciesPage(t *testing.T) {
	f := newFixture(t)

	status, body := f.get(t, "/agencies")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "Springfield &lt;PD&gt;")
	assert.NotContains(t, body, "Springfield <PD>")
	assert.Contains(t, body, "2025-06-01")
}

func TestListAgenciesAPI(t *testing.T) {
	f := newFixture(t)

	status, body := f.get(t, "/api/agencies")
	require.Equal(t, http.StatusOK, status)

	var agencies []agencyJSON
	require.NoError(t, json.Unmarshal([]byte(body), &agencies))
	require.Len(t, agencies, 1)
	assert.Equal(t, f.result.AgencyID, agencies[0].ID)
	assert.Equal(t, int64(1), agencies[0].ScrapeCount)
	require.NotNil(t, agencies[0].LatestDate)
	assert.Equal(t, "2025-06-01", *agencies[0].LatestDate)
}

func TestAgencyScrapesAPI(t *testing.T) {
	f := newFixture(t)

	status, body := f.get(t, fmt.Sprintf("/api/agencies/%d/scrapes", f.result.AgencyID))
	require.Equal(t, http.StatusOK, status)

	var scrapes []map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &scrapes))
	require.Len(t, scrapes, 1)
	assert.Equal(t, float64(1234), scrapes[0]["vehicles"])
	assert.Nil(t, scrapes[0]["hotlist_hits"])
	assert.Nil(t, scrapes[0]["overview_text"])

	status, _ = f.get(t, "/api/agencies/9999/scrapes")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = f.get(t, "/api/agencies/abc/scrapes")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestScrapeFilesAPI(t *testing.T) {
	f := newFixture(t)

	status, body := f.get(t, fmt.Sprintf("/api/scrapes/%d/files", f.result.ScrapeID))
	require.Equal(t, http.StatusOK, status)

	var files []fileJSON
	require.NoError(t, json.Unmarshal([]byte(body), &files))
	require.Len(t, files, 2)
	assert.Equal(t, "README", files[0].Name)
	assert.Nil(t, files[0].Extension)
	require.NotNil(t, files[1].Extension)
	assert.Equal(t, "html", *files[1].Extension)

	status, _ = f.get(t, "/api/scrapes/9999/files")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = f.get(t, "/api/scrapes/-1/files")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestScrapeAuditsAPI(t *testing.T) {
	f := newFixture(t)

	status, body := f.get(t, fmt.Sprintf("/api/scrapes/%d/audits", f.result.ScrapeID))
	require.Equal(t, http.StatusOK, status)

	var audits []auditJSON
	require.NoError(t, json.Unmarshal([]byte(body), &audits))
	require.Len(t, audits, 1)
	assert.Equal(t, "g1", audits[0].SearchID)
	require.NotNil(t, audits[0].CameraCount)
	assert.Equal(t, int64(5), *audits[0].CameraCount)

	status, _ = f.get(t, "/api/scrapes/9999/audits")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestStoreErrorsReturn500(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Close())

	status, _ := f.get(t, "/api/agencies")
	assert.Equal(t, http.StatusInternalServerError, status)

	status, _ = f.get(t, fmt.Sprintf("/api/scrapes/%d/files", f.result.ScrapeID))
	assert.Equal(t, http.StatusInternalServerError, status)

	status, _ = f.get(t, "/agencies")
	assert.Equal(t, http.StatusInternalServerError, status)
}
