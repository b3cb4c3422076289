package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jjenkins/lprwatch/internal/model"
	"github.com/jjenkins/lprwatch/internal/store"
)

func TestMetricsEmptyCatalog(t *testing.T) {
	db := newTestStore(t)

	m, err := NewMetricsService(db).Calculate(context.Background())
	require.NoError(t, err)
	assert.Zero(t, m.TotalAgencies)
	assert.Empty(t, m.TopAgency)
}

func TestMetrics(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	catalog := store.NewCatalogStore(db)

	leaves := []*model.LeafImport{
		{
			Region: "CA", AgencyName: "Springfield PD", ScrapeDate: "2025-06-01",
			Files: []model.FileRecord{{Name: "a.pdf", Path: "a.pdf", Size: 1000}},
			Content: &model.PageContent{
				Vehicles:    sql.NullInt64{Int64: 100, Valid: true},
				Searches30d: sql.NullInt64{Int64: 7, Valid: true},
			},
			Audits: []model.SearchAudit{{SearchID: "g1", UserID: "u1", Timestamp: "t", Reason: "r"}},
		},
		{
			Region: "TX", AgencyName: "Austin PD", ScrapeDate: "2025-06-01",
			Files: []model.FileRecord{{Name: "b.csv", Path: "b.csv", Size: 24}},
			Content: &model.PageContent{
				Vehicles:    sql.NullInt64{Int64: 50, Valid: true},
				Searches30d: sql.NullInt64{Int64: 90, Valid: true},
			},
		},
		{Region: "TX", AgencyName: "Austin PD", ScrapeDate: "2025-07-01"},
	}
	for _, leaf := range leaves {
		_, err := catalog.SaveLeaf(ctx, leaf)
		require.NoError(t, err)
	}

	m, err := NewMetricsService(db).Calculate(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, m.TotalAgencies)
	assert.Equal(t, 2, m.TotalRegions)
	assert.Equal(t, 3, m.TotalScrapes)
	assert.Equal(t, 2, m.ScrapesWithContent)
	assert.Equal(t, 2, m.TotalFiles)
	assert.Equal(t, int64(1024), m.TotalBytes)
	assert.Equal(t, 1, m.TotalAudits)
	assert.Equal(t, int64(150), m.TotalVehicles)
	assert.Equal(t, "Austin PD", m.TopAgency)
	assert.Equal(t, int64(90), m.TopAgencySearches)
}
