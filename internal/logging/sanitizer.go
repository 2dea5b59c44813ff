package logging

import (
	"regexp"
)

// rule is a named secret pattern.
type rule struct {
	name string
	re   *regexp.Regexp
}

// Sanitizer redacts secrets from log records and report text.
type Sanitizer struct {
	rules    []rule
	redacted string
}

// NewSanitizer creates a sanitizer with the default rules.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{
		rules:    defaultRules(),
		redacted: "[REDACTED]",
	}
}

func defaultRules() []rule {
	exprs := []struct{ name, expr string }{
		{"github-token", `gh[pousr]_[A-Za-z0-9]{36}`},
		{"aws-access-key", `AKIA[0-9A-Z]{16}`},
		{"aws-secret-key", `(?i)aws[_-]?secret[_-]?access[_-]?key["'\s:=]+[A-Za-z0-9/+=]{40}`},
		{"slack-token", `xox[baprs]-[0-9a-zA-Z-]{10,}`},
		{"google-api-key", `AIza[a-zA-Z0-9_-]{35}`},
		{"prefixed-key", `sk-[A-Za-z0-9-]{20,}`},
		{"private-key", `-----BEGIN [A-Z ]*PRIVATE KEY-----`},
		{"url-credentials", `://[^/\s:@]+:[^/\s@]+@`},
		{"bearer", `(?i)bearer\s+[a-zA-Z0-9._-]{20,}`},
		{"api-key", `(?i)api[_-]?key["'\s:=]+[a-zA-Z0-9_-]{20,}`},
		{"secret", `(?i)secret["'\s:=]+[a-zA-Z0-9_-]{20,}`},
		{"password", `(?i)password["'\s:=]+[^\s"']{8,}`},
		{"token", `(?i)token["'\s:=]+[a-zA-Z0-9_-]{20,}`},
	}

	rules := make([]rule, 0, len(exprs))
	for _, e := range exprs {
		rules = append(rules, rule{name: e.name, re: regexp.MustCompile(e.expr)})
	}
	return rules
}

// Sanitize redacts every match of every rule.
func (s *Sanitizer) Sanitize(input string) string {
	result := input
	for _, r := range s.rules {
		result = r.re.ReplaceAllString(result, s.redacted)
	}
	return result
}

// Matches returns the names of the rules that match input.
func (s *Sanitizer) Matches(input string) []string {
	var names []string
	for _, r := range s.rules {
		if r.re.MatchString(input) {
			names = append(names, r.name)
		}
	}
	return names
}

// AddPattern adds a custom rule.
func (s *Sanitizer) AddPattern(name, pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	s.rules = append(s.rules, rule{name: name, re: re})
	return nil
}

// SetRedactedPlaceholder sets the text that replaces a match.
func (s *Sanitizer) SetRedactedPlaceholder(placeholder string) {
	s.redacted = placeholder
}
