package pipeline

import (
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
)

const fileExtension = ".hcl"

// findFiles expands paths into the pipeline files they name or contain.
// Missing paths are skipped; every file is listed once, sorted.
func findFiles(paths []string) ([]string, error) {
	seen := make(map[string]bool)
	add := func(p string) {
		if filepath.Ext(p) == fileExtension {
			seen[filepath.Clean(p)] = true
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}
		if !info.IsDir() {
			add(path)
			continue
		}
		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				add(p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return slices.Sorted(maps.Keys(seen)), nil
}
