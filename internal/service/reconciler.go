package service

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jszwec/csvutil"
	"go.uber.org/zap"

	"github.com/jjenkins/lprwatch/internal/model"
)

const (
	networkTimeLayout   = "1/2/2006, 3:04:05 PM UTC"
	canonicalTimeLayout = "2006-01-02 15:04:05"
)

// reasonSamples are the values that identify the search reason column
var reasonSamples = []string{"INVESTIGATION", "Inv", "inv"}

// NetworkColumns names the columns of a network audit export that the
// reconciler needs
type NetworkColumns struct {
	Timestamp string
	Reason    string
	Name      string
	Org       string
}

// NetworkAudit is a network audit export held in memory
type NetworkAudit struct {
	Header []string
	Rows   [][]string
}

// column returns the index of a named column, or -1
func (n *NetworkAudit) column(name string) int {
	return slices.Index(n.Header, name)
}

// Reconciler joins catalogued search audits against an agency's network
// audit export to recover which named user ran which search
type Reconciler struct {
	logger *zap.Logger
}

// NewReconciler creates a new Reconciler
func NewReconciler(logger *zap.Logger) *Reconciler {
	return &Reconciler{logger: logger}
}

// LoadAuditCSV reads an exported search_audits table
func LoadAuditCSV(path string) ([]model.AuditEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read audits %s: %w", path, err)
	}

	var entries []model.AuditEntry
	if err := csvutil.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse audits %s: %w", path, err)
	}
	return entries, nil
}

// ReadNetworkAudit reads a network audit CSV whose first row is a header
func ReadNetworkAudit(r io.Reader) (*NetworkAudit, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("network audit is empty")
		}
		return nil, fmt.Errorf("failed to read network audit header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	audit := &NetworkAudit{Header: header}
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read network audit: %w", err)
		}
		audit.Rows = append(audit.Rows, row)
	}

	return audit, nil
}

// DetectColumns guesses the timestamp, reason, user name and org columns
// from the first non-empty value of each column. Non-empty fields of
// override take precedence and must exist in the header.
func (rc *Reconciler) DetectColumns(audit *NetworkAudit, override NetworkColumns) (NetworkColumns, error) {
	cols := NetworkColumns{}

	for idx, name := range audit.Header {
		sample := firstValue(audit.Rows, idx)
		if sample == "" || isNumber(sample) {
			continue
		}

		switch {
		case cols.Timestamp == "" && looksLikeTimestamp(sample):
			cols.Timestamp = name
		case cols.Reason == "" && slices.Contains(reasonSamples, sample):
			cols.Reason = name
		case cols.Name == "" && len(sample) < 10 && strings.ContainsAny(sample, ". "):
			cols.Name = name
		case cols.Org == "" && len(sample) > 10 && strings.Contains(sample, "County"):
			cols.Org = name
		default:
			continue
		}
		rc.logger.Info("found column", zap.String("column", name), zap.String("sample", sample))
	}

	apply := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	apply(&cols.Timestamp, override.Timestamp)
	apply(&cols.Reason, override.Reason)
	apply(&cols.Name, override.Name)
	apply(&cols.Org, override.Org)

	for _, c := range []struct{ role, name string }{
		{"timestamp", cols.Timestamp},
		{"reason", cols.Reason},
		{"name", cols.Name},
		{"org", cols.Org},
	} {
		role, name := c.role, c.name
		if name == "" {
			return cols, fmt.Errorf("could not detect the %s column; name it explicitly", role)
		}
		if audit.column(name) < 0 {
			return cols, fmt.Errorf("%s column %q is not in the network audit", role, name)
		}
	}

	return cols, nil
}

// Reconcile inner-joins local audits with network audit rows on
// (timestamp to the second, reason) and returns the distinct identity
// mappings in order of first appearance
func (rc *Reconciler) Reconcile(local []model.AuditEntry, audit *NetworkAudit, cols NetworkColumns) []model.IdentityMapping {
	tsIdx := audit.column(cols.Timestamp)
	reasonIdx := audit.column(cols.Reason)
	nameIdx := audit.column(cols.Name)
	orgIdx := audit.column(cols.Org)

	type joinKey struct{ ts, reason string }
	byKey := make(map[joinKey][]int)
	unparsed := 0
	for i, row := range audit.Rows {
		ts, ok := ConvertNetworkTime(field(row, tsIdx))
		if !ok {
			unparsed++
			continue
		}
		k := joinKey{ts: ts, reason: field(row, reasonIdx)}
		byKey[k] = append(byKey[k], i)
	}
	if unparsed > 0 {
		rc.logger.Warn("network rows with unparseable timestamps excluded", zap.Int("count", unparsed))
	}

	seen := make(map[model.IdentityMapping]bool)
	var mappings []model.IdentityMapping
	for _, a := range local {
		k := joinKey{ts: ConvertLocalTime(a.Timestamp), reason: a.Reason}
		for _, i := range byKey[k] {
			row := audit.Rows[i]
			m := model.IdentityMapping{
				UserUUID:   a.UserGUID,
				UserName:   field(row, nameIdx),
				SearchUUID: a.SearchGUID,
				OrgName:    field(row, orgIdx),
			}
			if seen[m] {
				continue
			}
			seen[m] = true
			mappings = append(mappings, m)
		}
	}

	return mappings
}

// WriteMappings saves mappings as CSV with a header row
func WriteMappings(path string, mappings []model.IdentityMapping) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	enc := csvutil.NewEncoder(w)
	if err := enc.EncodeHeader(model.IdentityMapping{}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i := range mappings {
		if err := enc.Encode(&mappings[i]); err != nil {
			return fmt.Errorf("failed to write mapping: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return f.Close()
}

// ConvertNetworkTime turns "6/19/2025, 10:08:20 AM UTC" into
// "2025-06-19 10:08:20"
func ConvertNetworkTime(s string) (string, bool) {
	t, err := time.Parse(networkTimeLayout, strings.TrimSpace(s))
	if err != nil {
		return "", false
	}
	return t.Format(canonicalTimeLayout), true
}

// ConvertLocalTime truncates a catalogued timestamp to whole seconds in the
// same form ConvertNetworkTime produces
func ConvertLocalTime(s string) string {
	if len(s) > 19 {
		s = s[:19]
	}
	return strings.Replace(s, "T", " ", 1)
}

func looksLikeTimestamp(s string) bool {
	return strings.Contains(s, "/") && strings.Contains(s, ":") &&
		(strings.Contains(s, "AM") || strings.Contains(s, "PM"))
}

func isNumber(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

func firstValue(rows [][]string, idx int) string {
	for _, row := range rows {
		if v := strings.TrimSpace(field(row, idx)); v != "" {
			return v
		}
	}
	return ""
}

func field(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}
