package crashdump

import (
	"fmt"
	"io"
	"strings"

	"github.com/hugo-lorenzo-mato/crashdiag/internal/sink"
)

// Output selects where reports are printed.
type Output string

const (
	OutputStderr Output = "stderr"
	OutputFile   Output = "file"
	OutputBoth   Output = "both"
)

// ParseOutput validates an output name. The empty string means OutputBoth.
func ParseOutput(s string) (Output, error) {
	switch o := Output(strings.ToLower(strings.TrimSpace(s))); o {
	case "":
		return OutputBoth, nil
	case OutputStderr, OutputFile, OutputBoth:
		return o, nil
	default:
		return "", fmt.Errorf("unknown report output %q (want stderr, file or both)", s)
	}
}

// fanout writes to every target and succeeds while at least one target
// does. A failed target is dropped so the others keep receiving output.
type fanout struct {
	targets []io.Writer
}

func newFanout(targets ...io.Writer) *fanout {
	f := &fanout{}
	for _, t := range targets {
		if t != nil {
			f.targets = append(f.targets, t)
		}
	}
	return f
}

func (f *fanout) Write(p []byte) (int, error) {
	var firstErr error
	live := f.targets[:0]
	for _, t := range f.targets {
		if _, err := t.Write(p); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		live = append(live, t)
	}
	f.targets = live
	if len(live) == 0 {
		if firstErr == nil {
			firstErr = io.ErrClosedPipe
		}
		return 0, firstErr
	}
	return len(p), nil
}

// WriteString writes s to every target without converting it to a new slice.
func (f *fanout) WriteString(s string) (int, error) {
	return f.Write(sink.Bytes(s))
}
