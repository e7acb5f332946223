package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FindEmailFiles recursively scans root for .eml files and returns their
// absolute paths in walk order. The extension match is case-insensitive,
// and hidden directories are skipped so scratch data living next to the
// consume tree is never picked up.
func FindEmailFiles(root string) ([]string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute root path: %w", err)
	}

	var emlFiles []string

	err = filepath.Walk(absRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("error accessing path %s: %w", path, err)
		}

		if info.IsDir() {
			if strings.HasPrefix(info.Name(), ".") && path != absRoot {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.ToLower(filepath.Ext(path)) == ".eml" {
			emlFiles = append(emlFiles, path)
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to scan directory: %w", err)
	}

	return emlFiles, nil
}
