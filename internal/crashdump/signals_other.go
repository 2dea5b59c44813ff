//go:build !unix

package crashdump

import "os"

var signalNames = map[string]os.Signal{
	"SIGINT": os.Interrupt,
}
