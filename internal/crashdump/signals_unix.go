//go:build unix

package crashdump

import (
	"os"
	"syscall"
)

var signalNames = map[string]os.Signal{
	"SIGQUIT": syscall.SIGQUIT,
	"SIGUSR1": syscall.SIGUSR1,
	"SIGUSR2": syscall.SIGUSR2,
	"SIGHUP":  syscall.SIGHUP,
	"SIGINT":  os.Interrupt,
	"SIGTERM": syscall.SIGTERM,
}
