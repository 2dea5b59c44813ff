// Package sections provides the built-in crash report sections.
//
// Every section prints a title line and indents its body. Sections with more
// than one attempt fall back to cheaper output on later attempts, so a fault in
// the full rendition still leaves something useful in the report.
package sections

import (
	"strings"

	"github.com/hugo-lorenzo-mato/crashdiag/internal/diagnostics"
	"github.com/hugo-lorenzo-mato/crashdiag/internal/eventlog"
)

// Section names, in report order.
const (
	NameRegisters        = "Registers"
	NameInstructions     = "Instructions"
	NameTopOfStack       = "TopOfStack"
	NameTopFrame         = "TopFrame"
	NameGoroutines       = "Goroutines"
	NameCurrentGoroutine = "CurrentGoroutine"
	NameBuildInfo        = "BuildInfo"
	NameMemory           = "Memory"
	NameEventLog         = "EventLog"
	NameResourceHistory  = "ResourceHistory"
	NameCounters         = "Counters"
	NameRawStack         = "RawStack"
	NameDecodedStack     = "DecodedStack"
	NameSystem           = "System"
	NameEnvironment      = "Environment"
)

// Options supplies the data sources used by Default. Nil sources produce a
// section that prints "unavailable".
type Options struct {
	Events   *eventlog.Log
	Counters *eventlog.Counters
	History  HistorySource
	System   *SystemCollector
	// IncludeEnv adds the Environment section.
	IncludeEnv bool
	// Disabled lists section names to leave out, case-insensitively.
	Disabled []string
	// GoroutineBuffer sizes the buffer for the all-goroutines trace.
	GoroutineBuffer int
}

// Default returns the built-in sections in report order, minus the disabled
// ones.
func Default(opts Options) []diagnostics.Section {
	all := []diagnostics.Section{
		Registers(),
		Instructions(),
		TopOfStack(),
		TopFrame(),
		Goroutines(opts.GoroutineBuffer),
		CurrentGoroutine(),
		BuildInfo(),
		Memory(),
		EventLog(opts.Events),
		ResourceHistory(opts.History),
		Counters(opts.Counters),
		RawStack(),
		DecodedStack(),
		System(opts.System),
	}
	if opts.IncludeEnv {
		all = append(all, Environment(nil))
	}

	if len(opts.Disabled) == 0 {
		return all
	}
	out := all[:0]
	for _, s := range all {
		if !isDisabled(s.Name(), opts.Disabled) {
			out = append(out, s)
		}
	}
	return out
}

// Names returns every built-in section name in report order.
func Names() []string {
	return []string{
		NameRegisters,
		NameInstructions,
		NameTopOfStack,
		NameTopFrame,
		NameGoroutines,
		NameCurrentGoroutine,
		NameBuildInfo,
		NameMemory,
		NameEventLog,
		NameResourceHistory,
		NameCounters,
		NameRawStack,
		NameDecodedStack,
		NameSystem,
		NameEnvironment,
	}
}

func isDisabled(name string, disabled []string) bool {
	for _, d := range disabled {
		if strings.EqualFold(strings.TrimSpace(d), name) {
			return true
		}
	}
	return false
}

// begin prints the section title and indents the body.
func begin(sink diagnostics.Sink, title string) {
	sink.String(title)
	sink.Line(":")
	sink.Indent(true)
}

// end undoes begin.
func end(sink diagnostics.Sink) {
	sink.Indent(false)
}

func unavailable(sink diagnostics.Sink, title, why string) {
	sink.String(title)
	sink.String(": unavailable (")
	sink.String(why)
	sink.Line(")")
}

// field prints "name: " followed by nothing; callers finish the line.
func field(sink diagnostics.Sink, name string) {
	sink.String(name)
	sink.String(": ")
}

func lines(sink diagnostics.Sink, text string) {
	for text != "" {
		line, rest, _ := strings.Cut(text, "\n")
		sink.Line(line)
		text = rest
	}
}
