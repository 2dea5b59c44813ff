// Package testutil holds helpers for comparing crash reports against golden
// files.
package testutil

import (
	"flag"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

var update = flag.Bool("update", false, "update golden files")

var (
	addrPattern = regexp.MustCompile(`0x[0-9a-f]{16}`)
	uuidPattern = regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	timePattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}[^\s]*`)
)

// Golden compares report text against files under a base directory.
type Golden struct {
	t       *testing.T
	baseDir string
}

// NewGolden creates a golden file helper. Run the test with -update to
// rewrite the files from the actual output.
func NewGolden(t *testing.T, baseDir string) *Golden {
	return &Golden{
		t:       t,
		baseDir: baseDir,
	}
}

// AssertString compares actual against name.golden after normalizing both.
func (g *Golden) AssertString(name, actual string) {
	g.t.Helper()

	path := filepath.Join(g.baseDir, name+".golden")
	actual = Normalize(actual)

	if *update {
		if err := os.MkdirAll(g.baseDir, 0o750); err != nil {
			g.t.Fatalf("creating golden directory: %v", err)
		}
		if err := os.WriteFile(path, []byte(actual+"\n"), 0o600); err != nil {
			g.t.Fatalf("writing golden file: %v", err)
		}
		g.t.Logf("updated golden file: %s", path)
		return
	}

	expected, err := os.ReadFile(path)
	if err != nil {
		g.t.Fatalf("reading golden file %s: %v", path, err)
	}
	if want := Normalize(string(expected)); actual != want {
		g.t.Errorf("output mismatch for %s:\n--- expected ---\n%s\n--- actual ---\n%s", name, want, actual)
	}
}

// Normalize converts line endings, trims trailing blanks from every line and
// drops trailing newlines.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

// ScrubAddresses replaces full-width hex addresses with [ADDR].
func ScrubAddresses(s string) string {
	return addrPattern.ReplaceAllString(s, "[ADDR]")
}

// ScrubUUIDs replaces report ids with [UUID].
func ScrubUUIDs(s string) string {
	return uuidPattern.ReplaceAllString(s, "[UUID]")
}

// ScrubTimestamps replaces RFC 3339 timestamps with [TIMESTAMP].
func ScrubTimestamps(s string) string {
	return timePattern.ReplaceAllString(s, "[TIMESTAMP]")
}

// Scrub applies every scrubber and normalizes the result.
func Scrub(s string) string {
	return Normalize(ScrubTimestamps(ScrubUUIDs(ScrubAddresses(s))))
}
