package service

import (
	"bytes"
	"database/sql"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jjenkins/lprwatch/internal/model"
)

// PageContentFile is the portal snapshot the harvester saves for every scrape
const PageContentFile = "page_content.html"

// Selectors for the portal layout
const (
	overviewSelector = "#overview div.box"
	usageSelector    = "#usage div.box .value"
	labelSelector    = "div.label"
)

// PageParseResult is the outcome of parsing one page_content.html
type PageParseResult struct {
	Content model.PageContent
	// Warnings lists recoverable problems, one per affected field
	Warnings []string
}

// PageParser extracts portal metrics from saved transparency pages
type PageParser struct{}

// NewPageParser creates a new PageParser
func NewPageParser() *PageParser {
	return &PageParser{}
}

// Parse reads an HTML snapshot and extracts the overview text and usage
// statistics. It only returns an error when the document cannot be read or
// decoded at all; callers treat that as an all-null record.
func (p *PageParser) Parse(r io.Reader) (*PageParseResult, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	result := &PageParseResult{}

	if box := doc.Find(overviewSelector).First(); box.Length() > 0 {
		overview, changed := cleanText(collapseSpace(box.Text()))
		if changed {
			result.Warnings = append(result.Warnings, "invalid bytes removed from overview text")
		}
		result.Content.Overview = sql.NullString{String: overview, Valid: true}
	}

	doc.Find(usageSelector).Each(func(_ int, value *goquery.Selection) {
		label := value.PrevAllFiltered(labelSelector).First()
		if label.Length() == 0 {
			return
		}

		labelText := strings.ToLower(strings.TrimSpace(label.Text()))
		var field *sql.NullInt64
		switch {
		case strings.Contains(labelText, "unique vehicles"):
			field = &result.Content.Vehicles
		case strings.Contains(labelText, "hotlist hits"):
			field = &result.Content.HotlistHits
		case strings.Contains(labelText, "searches"):
			field = &result.Content.Searches30d
		default:
			return
		}

		raw := strings.TrimSpace(value.Text())
		n, ok := parseCount(raw)
		if !ok {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("non-numeric value %q for %q", raw, labelText))
			*field = sql.NullInt64{}
			return
		}
		*field = sql.NullInt64{Int64: n, Valid: true}
	})

	return result, nil
}

// ParseBytes is Parse over an in-memory document
func (p *PageParser) ParseBytes(content []byte) (*PageParseResult, error) {
	return p.Parse(bytes.NewReader(content))
}

// parseCount strips thousands separators and accepts only plain digits
func parseCount(s string) (int64, bool) {
	s = strings.ReplaceAll(s, ",", "")
	if !isDigits(s) {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// cleanText drops invalid UTF-8 sequences and NUL bytes, neither of which
// PostgreSQL accepts in text columns. changed reports whether anything was
// removed.
func cleanText(s string) (clean string, changed bool) {
	clean = strings.ToValidUTF8(s, "")
	clean = strings.ReplaceAll(clean, "\x00", "")
	return clean, clean != s
}
