package sections

import (
	"os"
	"sort"
	"strings"

	"github.com/hugo-lorenzo-mato/crashdiag/internal/diagnostics"
)

const redacted = "[REDACTED]"

var sensitiveSubstrings = []string{
	"TOKEN", "KEY", "SECRET", "PASSWORD", "PASSWD", "CREDENTIAL",
	"AUTH", "PRIVATE", "COOKIE", "SESSION",
}

// Environment prints the process environment, sorted by name, with values of
// sensitive-looking variables replaced. The environment is read from environ,
// which defaults to os.Environ, when the section is built.
func Environment(environ func() []string) diagnostics.Section {
	if environ == nil {
		environ = os.Environ
	}
	env := RedactEnvironment(environ())
	return diagnostics.NewSection(NameEnvironment, 1, func(sink diagnostics.Sink, _ diagnostics.Snapshot, _ int) error {
		begin(sink, "Environment")
		defer end(sink)

		for _, kv := range env {
			sink.Line(kv)
		}
		return nil
	})
}

// RedactEnvironment returns KEY=VALUE pairs sorted by key, with sensitive
// values replaced by [REDACTED]. Malformed entries are dropped.
func RedactEnvironment(env []string) []string {
	out := make([]string, 0, len(env))
	for _, kv := range env {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			continue
		}
		if IsSensitiveKey(key) {
			value = redacted
		}
		out = append(out, key+"="+value)
	}
	sort.Strings(out)
	return out
}

// IsSensitiveKey reports whether an environment variable name suggests a
// secret.
func IsSensitiveKey(key string) bool {
	upper := strings.ToUpper(key)
	for _, s := range sensitiveSubstrings {
		if strings.Contains(upper, s) {
			return true
		}
	}
	return false
}
