//go:build windows

package fsutil

import (
	"os"
)

// renameio does not support Windows; a temp file renamed over the target is
// atomic when both are on the same volume.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// Symlinks need elevated privileges on Windows, so the link is a file naming
// the target.
func replaceLink(target, link string) error {
	return writeFileAtomic(link, []byte(target), 0o600)
}
