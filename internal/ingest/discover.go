// Package ingest expands command line arguments into the label images to check.
package ingest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/joseph-ayodele/label-checker/constants"
)

// Stats counts what a Discover walk looked at.
type Stats struct {
	Scanned int
	Matched int
	Skipped int
}

// Discover returns the image files named by paths. Files are taken as given;
// directories are walked recursively and only files with an accepted image
// extension are kept, skipping hidden entries. Directory results are sorted
// so repeated runs submit items in the same order.
func Discover(paths []string) ([]string, Stats, error) {
	var (
		out   []string
		stats Stats
	)
	for _, root := range paths {
		if strings.TrimSpace(root) == "" {
			return nil, stats, errors.New("empty path")
		}
		info, err := os.Stat(root)
		if err != nil {
			return nil, stats, err
		}
		if !info.IsDir() {
			stats.Scanned++
			stats.Matched++
			out = append(out, root)
			continue
		}

		var found []string
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if path != root && IsHidden(path) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return nil
			}
			stats.Scanned++
			if !AllowedExt(filepath.Ext(path)) {
				stats.Skipped++
				return nil
			}
			stats.Matched++
			found = append(found, path)
			return nil
		})
		if err != nil {
			return nil, stats, fmt.Errorf("walk %s: %w", root, err)
		}
		slices.Sort(found)
		out = append(out, found...)
	}
	return out, stats, nil
}

// AllowedExt reports whether ext maps to an accepted image content type.
func AllowedExt(ext string) bool {
	return constants.ContentTypeForExt(ext) != ""
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
