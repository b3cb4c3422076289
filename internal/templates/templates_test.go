package templates

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jjenkins/lprwatch/internal/model"
)

func TestAgencies(t *testing.T) {
	var b strings.Builder
	err := Agencies([]model.AgencySummary{
		{Agency: model.Agency{ID: 7, Region: "CA", Name: "Springfield <PD>"}, ScrapeCount: 2, LatestDate: sql.NullString{String: "2025-06-01", Valid: true}},
		{Agency: model.Agency{ID: 8, Region: "TX", Name: "Austin PD"}, ScrapeCount: 1},
	}).Render(context.Background(), &b)
	require.NoError(t, err)

	page := b.String()
	assert.True(t, strings.HasPrefix(page, "<!doctype html>"))
	assert.Contains(t, page, "<title>Agencies | lprwatch</title>")
	assert.Contains(t, page, "2 agencies catalogued.")
	assert.Contains(t, page, `<a href="/api/agencies/7/scrapes">Springfield &lt;PD&gt;</a>`)
	assert.Contains(t, page, "<td>2025-06-01</td>")
	assert.Contains(t, page, "<td>-</td>")
	assert.True(t, strings.HasSuffix(page, "</main></body></html>"))
}

func TestHome(t *testing.T) {
	var b strings.Builder
	require.NoError(t, Home(HomeMetrics{}).Render(context.Background(), &b))
	assert.Contains(t, b.String(), "lprwatch import")
	assert.NotContains(t, b.String(), `class="cards"`)

	b.Reset()
	require.NoError(t, Home(HomeMetrics{
		HasData:           true,
		TotalAgencies:     1234,
		TotalBytes:        2048,
		TopAgency:         "Springfield PD",
		TopAgencySearches: 56,
	}).Render(context.Background(), &b))
	page := b.String()
	assert.Contains(t, page, `<div class="value">1,234</div><div class="label">Agencies</div>`)
	assert.Contains(t, page, "2.0 kB")
	assert.Contains(t, page, "<strong>Springfield PD</strong> (56)")
}
