package service

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/jjenkins/lprwatch/internal/model"
	"github.com/jjenkins/lprwatch/internal/store"
)

// ImportStats tracks import statistics
type ImportStats struct {
	Leaves         int
	FilesCataloged int
	AuditsLogged   int
	PagesParsed    int
	RowsDropped    int
	Warnings       int
}

// Importer walks a harvest tree and catalogs it into the store
type Importer struct {
	walker      *Walker
	pageParser  *PageParser
	auditParser *AuditParser
	catalog     *store.CatalogStore
	db          *store.DB
	logger      *zap.Logger
}

// NewImporter creates a new Importer
func NewImporter(db *store.DB, catalog *store.CatalogStore, logger *zap.Logger) *Importer {
	return &Importer{
		walker:      NewWalker(logger),
		pageParser:  NewPageParser(),
		auditParser: NewAuditParser(),
		catalog:     catalog,
		db:          db,
		logger:      logger,
	}
}

// Import catalogs every leaf directory under root, committing once per
// leaf, then builds the lookup indexes. Parse problems are logged and
// counted; store failures and an unreadable root abort the run. Leaves
// committed before an abort stay committed.
func (i *Importer) Import(ctx context.Context, root string) (*ImportStats, error) {
	stats := &ImportStats{}

	root, err := filepath.Abs(root)
	if err != nil {
		return stats, fmt.Errorf("%w: %v", ErrRootUnreadable, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return stats, fmt.Errorf("%w: %v", ErrRootUnreadable, err)
	}
	if !info.IsDir() {
		return stats, fmt.Errorf("%w: %s is not a directory", ErrRootUnreadable, root)
	}

	i.logger.Info("starting directory processing", zap.String("root", root))

	err = i.walker.Walk(ctx, root, func(leaf Leaf) error {
		return i.importLeaf(ctx, root, leaf, stats)
	})
	if err != nil {
		return stats, err
	}

	i.logger.Info("creating database indexes")
	if err := i.db.CreateIndexes(ctx); err != nil {
		return stats, err
	}

	return stats, nil
}

func (i *Importer) importLeaf(ctx context.Context, root string, leaf Leaf, stats *ImportStats) error {
	log := i.logger.With(
		zap.String("region", leaf.Region),
		zap.String("agency", leaf.AgencyName),
		zap.String("date", leaf.ScrapeDate),
	)
	log.Info("processing leaf")

	in := i.collectLeaf(root, leaf, stats, log)

	result, err := i.catalog.SaveLeaf(ctx, in)
	if err != nil {
		return fmt.Errorf("failed to save %s/%s/%s: %w", leaf.Region, leaf.AgencyName, leaf.ScrapeDate, err)
	}

	stats.Leaves++
	stats.FilesCataloged += result.FilesInserted
	stats.AuditsLogged += result.AuditsLogged

	if result.AuditsLogged > 0 {
		log.Info("logged audit records", zap.Int("count", result.AuditsLogged))
	}

	return nil
}

// collectLeaf stats every file of a leaf and runs the parsers on the two
// recognized ones. Nothing here is fatal.
func (i *Importer) collectLeaf(root string, leaf Leaf, stats *ImportStats, log *zap.Logger) *model.LeafImport {
	in := &model.LeafImport{
		Region:     leaf.Region,
		AgencyName: leaf.AgencyName,
		ScrapeDate: leaf.ScrapeDate,
	}
	base := filepath.Dir(root)

	for _, name := range leaf.Files {
		full := filepath.Join(leaf.Dir, name)

		info, err := os.Stat(full)
		if err != nil {
			log.Warn("skipping unreadable file", zap.String("file", name), zap.Error(err))
			stats.Warnings++
			continue
		}

		rel, err := filepath.Rel(base, full)
		if err != nil {
			rel = full
		}

		in.Files = append(in.Files, model.FileRecord{
			Name:      name,
			Path:      filepath.ToSlash(rel),
			Extension: fileExtension(name),
			Size:      info.Size(),
		})

		switch {
		case strings.EqualFold(name, PageContentFile):
			content, ok := i.parsePage(full, stats, log)
			in.Content = content
			if ok {
				stats.PagesParsed++
			}
		case strings.EqualFold(name, SearchAuditFile):
			in.Audits = append(in.Audits, i.parseAudits(full, stats, log)...)
		}
	}

	return in
}

// parsePage never fails: an unreadable document becomes an all-null record
// and ok is false
func (i *Importer) parsePage(path string, stats *ImportStats, log *zap.Logger) (content *model.PageContent, ok bool) {
	f, err := os.Open(path)
	if err != nil {
		log.Warn("could not read HTML file", zap.String("file", filepath.Base(path)), zap.Error(err))
		stats.Warnings++
		return &model.PageContent{}, false
	}
	defer f.Close()

	result, err := i.pageParser.Parse(f)
	if err != nil {
		log.Warn("could not parse HTML file", zap.String("file", filepath.Base(path)), zap.Error(err))
		stats.Warnings++
		return &model.PageContent{}, false
	}

	for _, w := range result.Warnings {
		log.Warn("page content field left empty", zap.String("reason", w))
		stats.Warnings++
	}

	log.Info("parsed page content")
	return &result.Content, true
}

func (i *Importer) parseAudits(path string, stats *ImportStats, log *zap.Logger) []model.SearchAudit {
	f, err := os.Open(path)
	if err != nil {
		log.Warn("could not read CSV file", zap.String("file", filepath.Base(path)), zap.Error(err))
		stats.Warnings++
		return nil
	}
	defer f.Close()

	result, err := i.auditParser.Parse(f)
	if err != nil {
		log.Warn("could not process CSV file", zap.String("file", filepath.Base(path)), zap.Error(err))
		stats.Warnings++
		return nil
	}

	for _, row := range result.Skipped {
		log.Warn("dropped audit row",
			zap.String("file", filepath.Base(path)),
			zap.Int("line", row.Line),
			zap.String("reason", row.Reason),
		)
		stats.RowsDropped++
		stats.Warnings++
	}
	for _, w := range result.Warnings {
		log.Warn("audit field sanitized", zap.String("file", filepath.Base(path)), zap.String("reason", w))
		stats.Warnings++
	}

	return result.Records
}

// fileExtension returns the text after the last dot, or NULL for names
// without one (dotfiles included)
func fileExtension(name string) sql.NullString {
	idx := strings.LastIndexByte(name, '.')
	if idx <= 0 || idx == len(name)-1 {
		return sql.NullString{}
	}
	return sql.NullString{String: name[idx+1:], Valid: true}
}

// PrintSummary prints the import statistics
func (i *Importer) PrintSummary(ctx context.Context, stats *ImportStats) {
	log := i.logger.Sugar()
	log.Info("")
	log.Info("=== Import Summary ===")
	log.Infof("Leaves processed: %s", humanize.Comma(int64(stats.Leaves)))
	log.Infof("Pages parsed:     %s", humanize.Comma(int64(stats.PagesParsed)))
	log.Infof("Rows dropped:     %s", humanize.Comma(int64(stats.RowsDropped)))
	log.Infof("Warnings:         %s", humanize.Comma(int64(stats.Warnings)))
	log.Infof("Success! Cataloged %s files and logged %s audit records.",
		humanize.Comma(int64(stats.FilesCataloged)), humanize.Comma(int64(stats.AuditsLogged)))

	size, err := i.db.Size(ctx)
	if err != nil {
		log.Warnf("Could not determine database size: %v", err)
		return
	}
	log.Infof("Final database size: %s", humanize.Bytes(uint64(size)))
}
