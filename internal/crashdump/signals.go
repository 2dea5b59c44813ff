package crashdump

import (
	"fmt"
	"os"
	"strings"
)

// ParseSignals maps names such as "SIGQUIT" or "usr1" to signals. Names are
// case-insensitive and the SIG prefix is optional.
func ParseSignals(names []string) ([]os.Signal, error) {
	out := make([]os.Signal, 0, len(names))
	for _, name := range names {
		key := strings.ToUpper(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		if !strings.HasPrefix(key, "SIG") {
			key = "SIG" + key
		}
		sig, ok := signalNames[key]
		if !ok {
			return nil, fmt.Errorf("unsupported signal %q", name)
		}
		out = append(out, sig)
	}
	return out, nil
}
