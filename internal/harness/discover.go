package harness

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ScenarioSuffix marks scenario files. Applications are YAML as well, so a
// directory scan only picks files ending in this suffix.
const ScenarioSuffix = ".scenario.yaml"

// ScenarioNotFoundError is returned when a named scenario path doesn't exist.
type ScenarioNotFoundError struct {
	Path string
}

// Error implements the error interface.
func (e *ScenarioNotFoundError) Error() string {
	return fmt.Sprintf("scenario path %q does not exist", e.Path)
}

// Discover expands paths into scenario files. Files are taken as given;
// directories are walked for files ending in ScenarioSuffix. The result is
// sorted and free of duplicates.
func Discover(paths ...string) ([]string, error) {
	seen := make(map[string]bool)
	for _, path := range paths {
		info, err := os.Stat(path)
		if os.IsNotExist(err) {
			return nil, &ScenarioNotFoundError{Path: path}
		}
		if err != nil {
			return nil, err
		}

		if !info.IsDir() {
			seen[path] = true
			continue
		}
		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(d.Name(), ScenarioSuffix) {
				seen[p] = true
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", path, err)
		}
	}

	files := make([]string, 0, len(seen))
	for p := range seen {
		files = append(files, p)
	}
	sort.Strings(files)
	return files, nil
}
