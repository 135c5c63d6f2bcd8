package engine

import (
	"io/fs"
	"os"
	"path/filepath"
)

// osStat is a thin indirection over os.Stat so watcher tests can run
// against paths that no longer exist at inspection time (a fast
// create+delete) without special-casing every call site.
func osStat(name string) (os.FileInfo, error) {
	return os.Stat(name)
}

// relOrAbs returns name relative to root when possible, falling back to
// name itself (already absolute/unrelated) so a path outside root never
// panics the normalizer.
func relOrAbs(root, name string) string {
	rel, err := filepath.Rel(root, name)
	if err != nil {
		return name
	}

	return rel
}

// walkDirs calls fn for root and every directory beneath it.
func walkDirs(root string, fn func(dir string) error) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() {
			return nil
		}

		return fn(path)
	})
}
