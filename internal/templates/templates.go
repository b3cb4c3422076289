package templates

//go:generate templ generate

import "github.com/jjenkins/lprwatch/internal/model"

// HomeMetrics are the catalog totals shown on the overview page
type HomeMetrics struct {
	HasData            bool
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

const stylesheet = `body{font-family:system-ui,sans-serif;margin:0;color:#1f2933;background:#f5f7fa}
header{background:#102a43;color:#fff;padding:1rem 2rem}
header a{color:#d9e2ec;margin-right:1.5rem;text-decoration:none}
main{padding:2rem;max-width:1100px;margin:0 auto}
table{border-collapse:collapse;width:100%;background:#fff}
th,td{text-align:left;padding:.5rem .75rem;border-bottom:1px solid #d9e2ec}
th{background:#f0f4f8}
.cards{display:flex;flex-wrap:wrap;gap:1rem}
.card{background:#fff;border-radius:6px;padding:1rem 1.5rem;min-width:180px;box-shadow:0 1px 2px rgba(0,0,0,.08)}
.card .value{font-size:1.6rem;font-weight:600}
.card .label{color:#627d98;font-size:.85rem}
.empty{color:#627d98}`

func latestDate(a model.AgencySummary) string {
	if !a.LatestDate.Valid {
		return "-"
	}
	return a.LatestDate.String
}
