//go:build !unix && !windows

package monitor

// CountFDs is unavailable on this platform.
func CountFDs() (open, limit int) {
	return 0, 0
}
