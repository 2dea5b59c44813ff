// Package fsutil holds the small file helpers shared by the config loader and
// the crash report store: scoped reads and atomic replacement.
package fsutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ReadFileScoped reads a file through an os.Root opened at the file's
// directory, so a crafted name cannot escape it.
func ReadFileScoped(path string) ([]byte, error) {
	dir, base, err := split(path)
	if err != nil {
		return nil, err
	}

	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, err
	}
	defer root.Close()

	file, err := root.Open(base)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return io.ReadAll(file)
}

// WriteFileAtomic replaces path with data. Readers see either the old or the
// new content, never a partial file. Missing parent directories are created.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	if _, _, err := split(path); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	return writeFileAtomic(path, data, perm)
}

// ReplaceLink points link at target, replacing any existing link. Where
// symlinks are unavailable the link is a regular file holding target.
func ReplaceLink(target, link string) error {
	if _, _, err := split(link); err != nil {
		return err
	}
	return replaceLink(target, link)
}

func split(path string) (dir, base string, err error) {
	cleaned := filepath.Clean(path)
	base = filepath.Base(cleaned)
	if path == "" || base == "." || base == string(filepath.Separator) {
		return "", "", fmt.Errorf("invalid file path: %q", path)
	}
	return filepath.Dir(cleaned), base, nil
}
