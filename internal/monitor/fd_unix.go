//go:build unix && !darwin

package monitor

import (
	"os"
	"syscall"
)

// CountFDs returns the number of open file descriptors and the soft limit.
// Platforms without /proc/self/fd report zero open descriptors.
func CountFDs() (open, limit int) {
	if entries, err := os.ReadDir("/proc/self/fd"); err == nil {
		// The directory handle used by ReadDir is itself listed.
		open = len(entries) - 1
		if open < 0 {
			open = 0
		}
	}

	var rlim syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rlim); err == nil {
		// #nosec G115 -- rlimit values fit in int on supported platforms
		limit = int(rlim.Cur)
	}
	return open, limit
}
