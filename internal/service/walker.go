package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrRootUnreadable is returned when the scan root cannot be walked at all
var ErrRootUnreadable = errors.New("scan root is unreadable")

// Leaf is one <region>/<agency>/<date> directory found under the scan root
type Leaf struct {
	Region     string
	AgencyName string
	ScrapeDate string
	// Dir is the absolute directory path
	Dir string
	// Files are the names of the regular files directly inside Dir
	Files []string
}

// Walker enumerates leaf directories below a scan root
type Walker struct {
	logger *zap.Logger
}

// NewWalker creates a new Walker
func NewWalker(logger *zap.Logger) *Walker {
	return &Walker{logger: logger}
}

// Walk visits every directory under root in lexical order and calls fn for
// each valid leaf. Directories at other depths, or whose region or date
// segment does not validate, are skipped silently. An error from fn stops
// the walk and is returned as is.
func (w *Walker) Walk(ctx context.Context, root string, fn func(Leaf) error) error {
	root, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRootUnreadable, err)
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return fmt.Errorf("%w: %v", ErrRootUnreadable, err)
			}
			w.logger.Warn("skipping unreadable path", zap.String("path", path), zap.Error(err))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.IsDir() {
			return nil
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		parts := strings.Split(rel, string(filepath.Separator))
		if len(parts) != 3 {
			return nil
		}

		// Nothing below a leaf can be another leaf
		region, agency, date := parts[0], parts[1], parts[2]
		if !validRegion(region) || !validDate(date) {
			return filepath.SkipDir
		}

		files, err := listFiles(path)
		if err != nil {
			w.logger.Warn("skipping unreadable leaf", zap.String("path", path), zap.Error(err))
			return filepath.SkipDir
		}

		if err := fn(Leaf{
			Region:     region,
			AgencyName: agency,
			ScrapeDate: date,
			Dir:        path,
			Files:      files,
		}); err != nil {
			return err
		}

		return filepath.SkipDir
	})
}

// listFiles returns the regular files directly inside dir, sorted by name
func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			files = append(files, e.Name())
			continue
		}
		// follow symlinks to regular files
		if e.Type()&fs.ModeSymlink != 0 {
			if info, err := os.Stat(filepath.Join(dir, e.Name())); err == nil && info.Mode().IsRegular() {
				files = append(files, e.Name())
			}
		}
	}
	return files, nil
}

// validRegion accepts exactly two upper-case ASCII letters
func validRegion(s string) bool {
	if len(s) != 2 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}

// validDate accepts a real calendar date in YYYY-MM-DD form
func validDate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}
