package service

import (
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/jjenkins/lprwatch/internal/model"
)

// SearchAuditFile is the per-scrape audit log exported by the portal
const SearchAuditFile = "search_audit.csv"

// auditColumns is the fixed width of a search_audit.csv row:
// search id, user id, timestamp, camera count, reason
const auditColumns = 5

var auditColumnNames = [auditColumns]string{"search_id", "user_id", "timestamp", "camera_count", "reason"}

// SkippedRow describes a CSV row the audit parser dropped
type SkippedRow struct {
	Line    int
	Columns int
	Reason  string
}

func (r SkippedRow) String() string {
	return fmt.Sprintf("line %d: %s", r.Line, r.Reason)
}

// AuditParseResult is the outcome of parsing one search_audit.csv
type AuditParseResult struct {
	Records []model.SearchAudit
	Skipped []SkippedRow
	// Warnings lists fields that were kept after invalid bytes were removed
	Warnings []string
}

// AuditParser reads search_audit.csv exports
type AuditParser struct{}

// NewAuditParser creates a new AuditParser
func NewAuditParser() *AuditParser {
	return &AuditParser{}
}

// Parse reads the audit CSV. The first row is a header and is discarded.
// Rows without exactly five columns, or with broken quoting, are dropped and
// reported in Skipped. Invalid UTF-8 and NUL bytes are stripped from the
// remaining fields and reported in Warnings. Only read failures of the
// underlying reader are returned as errors.
func (p *AuditParser) Parse(r io.Reader) (*AuditParseResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	result := &AuditParseResult{}

	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return result, nil
		}
		var parseErr *csv.ParseError
		if !errors.As(err, &parseErr) {
			return nil, fmt.Errorf("failed to read header: %w", err)
		}
	}

	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				result.Skipped = append(result.Skipped, SkippedRow{
					Line:   parseErr.StartLine,
					Reason: parseErr.Err.Error(),
				})
				continue
			}
			return nil, fmt.Errorf("failed to read row: %w", err)
		}

		line, _ := reader.FieldPos(0)
		if len(row) != auditColumns {
			result.Skipped = append(result.Skipped, SkippedRow{
				Line:    line,
				Columns: len(row),
				Reason:  fmt.Sprintf("expected %d columns, got %d", auditColumns, len(row)),
			})
			continue
		}

		for col, field := range row {
			clean, changed := cleanText(field)
			if changed {
				row[col] = clean
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("line %d: invalid bytes removed from %s", line, auditColumnNames[col]))
			}
		}

		audit := model.SearchAudit{
			SearchID:  row[0],
			UserID:    row[1],
			Timestamp: row[2],
			Reason:    row[4],
		}
		if isDigits(row[3]) {
			if n, err := strconv.ParseInt(row[3], 10, 64); err == nil {
				audit.CameraCount = sql.NullInt64{Int64: n, Valid: true}
			}
		}
		result.Records = append(result.Records, audit)
	}

	return result, nil
}
