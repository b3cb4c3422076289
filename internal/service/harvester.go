package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/jszwec/csvutil"
	"go.uber.org/zap"

	"github.com/jjenkins/lprwatch/internal/model"
)

// UncategorizedRegion is the folder used when no state code is found in an
// agency name
const UncategorizedRegion = "Uncategorized"

var usStates = map[string]bool{
	"AL": true, "AK": true, "AZ": true, "AR": true, "CA": true, "CO": true, "CT": true, "DE": true, "FL": true, "GA": true,
	"HI": true, "ID": true, "IL": true, "IN": true, "IA": true, "KS": true, "KY": true, "LA": true, "ME": true, "MD": true,
	"MA": true, "MI": true, "MN": true, "MS": true, "MO": true, "MT": true, "NE": true, "NV": true, "NH": true, "NJ": true,
	"NM": true, "NY": true, "NC": true, "ND": true, "OH": true, "OK": true, "OR": true, "PA": true, "RI": true, "SC": true,
	"SD": true, "TN": true, "TX": true, "UT": true, "VT": true, "VA": true, "WA": true, "WV": true, "WI": true, "WY": true,
}

var (
	twoLetterWord  = regexp.MustCompile(`\b([A-Z]{2})\b`)
	unsafePathRune = regexp.MustCompile(`[<>:"/\\|?*]+`)
)

// documentExtensions are the link targets downloaded next to the page
var documentExtensions = []string{".pdf", ".csv", ".zip", ".xlsx"}

const maxFolderNameLen = 150

// HarvestConfig controls a harvest run
type HarvestConfig struct {
	// URLsFile is a headerless CSV of "agency name,url" rows
	URLsFile string
	// ProgressFile stores the last successfully processed row number
	ProgressFile string
	// OutputDir is the root of the <REGION>/<agency>/<date> tree
	OutputDir string
	// Date names the leaf directories; defaults to today
	Date string
	// StartRow is the 1-based first row to process; 0 resumes after the
	// row recorded in ProgressFile
	StartRow int
	// Delay is slept between portals
	Delay time.Duration
}

// HarvestStats tracks harvest statistics
type HarvestStats struct {
	Total     int
	Processed int
	NotFound  int
	Failed    int
	Skipped   int
	Documents int
}

// Harvester downloads portal pages and their linked documents into the
// directory layout the importer reads
type Harvester struct {
	client *PortalClient
	cfg    HarvestConfig
	logger *zap.Logger
}

// NewHarvester creates a new Harvester
func NewHarvester(client *PortalClient, cfg HarvestConfig, logger *zap.Logger) *Harvester {
	if cfg.Date == "" {
		cfg.Date = time.Now().Format("2006-01-02")
	}
	return &Harvester{client: client, cfg: cfg, logger: logger}
}

// Run processes the URL list from the configured start row. It stops
// between rows when ctx is cancelled; progress is saved after every
// successful row so the next run resumes there.
func (h *Harvester) Run(ctx context.Context) (*HarvestStats, error) {
	rows, err := readURLRows(h.cfg.URLsFile)
	if err != nil {
		return nil, err
	}

	stats := &HarvestStats{Total: len(rows)}

	start := h.cfg.StartRow
	if start <= 0 {
		start = ReadProgress(h.cfg.ProgressFile, h.logger) + 1
	}

	h.logger.Info("starting scrape", zap.String("date", h.cfg.Date), zap.Int("start_row", start))

	historyDir := filepath.Join(h.cfg.OutputDir, "history")
	hits, err := openHistory(filepath.Join(historyDir, h.cfg.Date+"-hits.csv"), model.PortalHit{})
	if err != nil {
		return nil, err
	}
	defer hits.Close()

	missing, err := openHistory(filepath.Join(historyDir, "404.csv"), model.MissingPortal{})
	if err != nil {
		return nil, err
	}
	defer missing.Close()

	for idx, row := range rows {
		rowNumber := idx + 1
		if rowNumber < start {
			continue
		}

		select {
		case <-ctx.Done():
			h.logger.Info("harvest interrupted; run again to resume", zap.Int("row", rowNumber))
			return stats, ctx.Err()
		default:
		}

		if len(row) < 2 {
			h.logger.Warn("skipping malformed row: not enough columns", zap.Int("row", rowNumber))
			stats.Skipped++
			continue
		}

		target := model.PortalTarget{
			Row:        rowNumber,
			AgencyName: strings.TrimSpace(row[0]),
			URL:        strings.TrimSpace(row[1]),
		}

		hit, err := h.harvestTarget(ctx, target, missing, stats)
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			return stats, err
		}
		if err := hits.Write(hit); err != nil {
			return stats, err
		}

		if hit.Portal == 1 {
			if err := WriteProgress(h.cfg.ProgressFile, rowNumber); err != nil {
				return stats, err
			}
			stats.Processed++
			h.logger.Info("processed row; progress saved", zap.Int("row", rowNumber))

			if h.cfg.Delay > 0 {
				select {
				case <-ctx.Done():
				case <-time.After(h.cfg.Delay):
				}
			}
		}
	}

	h.logger.Info("scraping session ended")
	return stats, nil
}

// harvestTarget fetches one portal. Fetch failures are recorded in the hit
// row, not returned; only local write failures are errors.
func (h *Harvester) harvestTarget(ctx context.Context, t model.PortalTarget, missing *historyWriter, stats *HarvestStats) (*model.PortalHit, error) {
	hit := &model.PortalHit{AgencyName: t.AgencyName, URL: t.URL}
	log := h.logger.With(zap.Int("row", t.Row), zap.String("agency", t.AgencyName))

	if !strings.HasPrefix(t.URL, "http://") && !strings.HasPrefix(t.URL, "https://") {
		log.Warn("skipping invalid URL", zap.String("url", t.URL))
		stats.Skipped++
		return hit, nil
	}

	log.Info("processing portal", zap.String("url", t.URL), zap.Int("of", stats.Total))

	body, err := h.client.Fetch(ctx, t.URL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if IsNotFound(err) {
			log.Warn("404 Not Found", zap.String("url", t.URL))
			stats.NotFound++
			if werr := missing.Write(&model.MissingPortal{
				AgencyName: t.AgencyName,
				URL:        t.URL,
				Timestamp:  time.Now().Format(time.RFC3339),
			}); werr != nil {
				return nil, werr
			}
		} else {
			log.Error("failed to fetch page", zap.String("url", t.URL), zap.Error(err))
			stats.Failed++
		}
		return hit, nil
	}
	hit.Portal = 1

	dir := filepath.Join(h.cfg.OutputDir, RegionForAgency(t.AgencyName), SanitizeForPath(t.AgencyName), h.cfg.Date)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}
	log.Info("saving data", zap.String("dir", dir))

	if err := os.WriteFile(filepath.Join(dir, PageContentFile), body, 0o644); err != nil {
		return nil, fmt.Errorf("failed to save page for %s: %w", t.AgencyName, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		log.Warn("could not scan page for links", zap.Error(err))
		return hit, nil
	}

	base, err := url.Parse(t.URL)
	if err != nil {
		return hit, nil
	}

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		if ctx.Err() != nil {
			return
		}
		href, _ := a.Attr("href")
		preferred, ok := a.Attr("download")
		if !ok || strings.TrimSpace(preferred) == "" {
			preferred = strings.TrimSpace(a.Text())
		}

		lower := strings.ToLower(href)
		switch {
		case hasDocumentExtension(lower):
			ref, err := url.Parse(href)
			if err != nil {
				return
			}
			fileURL := base.ResolveReference(ref).String()
			name := documentFileName(preferred, fileURL)
			if h.download(ctx, fileURL, dir, name, log) {
				stats.Documents++
				markHit(hit, strings.ToLower(fileURL))
			}

		case strings.HasPrefix(href, "data:"):
			if preferred == "" {
				preferred = "data_file"
			}
			if h.saveDataURI(href, dir, preferred, log) {
				stats.Documents++
				switch {
				case strings.Contains(href, "application/pdf"):
					hit.PDF = 1
				case strings.Contains(href, "text/csv"):
					hit.CSV = 1
				default:
					hit.Other = 1
				}
			}
		}
	})

	return hit, nil
}

func (h *Harvester) download(ctx context.Context, fileURL, dir, name string, log *zap.Logger) bool {
	dest := filepath.Join(dir, name)
	if _, err := os.Stat(dest); err == nil {
		log.Info("file already exists; skipping download", zap.String("file", name))
		return true
	}

	if err := h.client.Download(ctx, fileURL, dest); err != nil {
		log.Error("error downloading", zap.String("url", fileURL), zap.Error(err))
		return false
	}
	log.Info("downloaded", zap.String("file", name))
	return true
}

func (h *Harvester) saveDataURI(uri, dir, preferred string, log *zap.Logger) bool {
	name := SanitizeForPath(preferred)
	dest := filepath.Join(dir, name)
	if _, err := os.Stat(dest); err == nil {
		log.Info("file already exists; skipping save", zap.String("file", name))
		return true
	}

	data, err := DecodeDataURI(uri)
	if err != nil {
		log.Error("error saving data URI", zap.String("file", name), zap.Error(err))
		return false
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		log.Error("error saving data URI", zap.String("file", name), zap.Error(err))
		return false
	}

	log.Info("saved data URI", zap.String("file", name))
	return true
}

func markHit(hit *model.PortalHit, lowerURL string) {
	switch {
	case strings.HasSuffix(lowerURL, ".pdf"):
		hit.PDF = 1
	case strings.HasSuffix(lowerURL, ".csv"):
		hit.CSV = 1
	default:
		hit.Other = 1
	}
}

func hasDocumentExtension(lowerHref string) bool {
	for _, ext := range documentExtensions {
		if strings.HasSuffix(lowerHref, ext) {
			return true
		}
	}
	return false
}

// documentFileName picks the saved name for a linked document: the
// download attribute or link text, falling back to the URL's last path
// segment. The URL's extension is appended when the chosen name lacks it.
func documentFileName(preferred, fileURL string) string {
	urlName := ""
	if u, err := url.Parse(fileURL); err == nil {
		urlName = path.Base(u.Path)
		if unescaped, err := url.PathUnescape(urlName); err == nil {
			urlName = unescaped
		}
		if urlName == "/" || urlName == "." {
			urlName = ""
		}
	}

	name := preferred
	if name == "" {
		name = urlName
	}
	if name == "" {
		name = "downloaded_file"
	}

	if ext := path.Ext(urlName); ext != "" && !strings.EqualFold(path.Ext(name), ext) {
		name += ext
	}

	return SanitizeForPath(name)
}

// DecodeDataURI returns the payload of a data: URI, base64 or
// percent-encoded
func DecodeDataURI(uri string) ([]byte, error) {
	header, encoded, ok := strings.Cut(uri, ",")
	if !ok {
		return nil, errors.New("data URI has no payload separator")
	}

	if strings.Contains(header, ";base64") {
		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 payload: %w", err)
		}
		return data, nil
	}

	text, err := url.PathUnescape(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to unescape payload: %w", err)
	}
	return []byte(text), nil
}

// RegionForAgency finds the first two-letter word in an agency name that is
// a US state code
func RegionForAgency(agencyName string) string {
	for _, m := range twoLetterWord.FindAllStringSubmatch(strings.ToUpper(agencyName), -1) {
		if usStates[m[1]] {
			return m[1]
		}
	}
	return UncategorizedRegion
}

// SanitizeForPath replaces characters not allowed in file names and bounds
// the length
func SanitizeForPath(name string) string {
	name = unsafePathRune.ReplaceAllString(name, "_")
	name = strings.TrimSpace(name)
	if name == "" {
		name = "untitled"
	}
	if r := []rune(name); len(r) > maxFolderNameLen {
		name = string(r[:maxFolderNameLen])
	}
	return name
}

// ReadProgress returns the last processed row, or 0 if there is none
func ReadProgress(path string, logger *zap.Logger) int {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("could not read progress file; starting from the beginning", zap.Error(err))
		}
		return 0
	}

	content := strings.TrimSpace(string(data))
	if content == "" {
		return 0
	}
	n, err := strconv.Atoi(content)
	if err != nil {
		logger.Warn("could not read progress file; starting from the beginning", zap.Error(err))
		return 0
	}
	return n
}

// WriteProgress records the last processed row
func WriteProgress(path string, row int) error {
	if err := os.WriteFile(path, []byte(strconv.Itoa(row)), 0o644); err != nil {
		return fmt.Errorf("failed to save progress: %w", err)
	}
	return nil
}

func readURLRows(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open URL list %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows [][]string
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read URL list %s: %w", path, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// historyWriter appends records to a CSV that gets its header only when new
type historyWriter struct {
	f   *os.File
	w   *csv.Writer
	enc *csvutil.Encoder
}

func openHistory(path string, sample any) (*historyWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	enc := csvutil.NewEncoder(w)
	enc.AutoHeader = false
	if info.Size() == 0 {
		if err := enc.EncodeHeader(sample); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write header to %s: %w", path, err)
		}
		w.Flush()
	}

	return &historyWriter{f: f, w: w, enc: enc}, nil
}

func (h *historyWriter) Write(v any) error {
	if err := h.enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write history row: %w", err)
	}
	h.w.Flush()
	return h.w.Error()
}

func (h *historyWriter) Close() error {
	h.w.Flush()
	return h.f.Close()
}
