// Copyright © 2024 The ELPS authors

package lint

import (
	"strings"

	"github.com/luthersystems/sniffer/mcfunction"
)

// A comment directly above a command suppresses its findings:
//
//	# nolint                   every analyzer
//	# nolint:unreachable,...   the named analyzers
//
// "# nolint-function" with the same optional list, written among the
// comments before the first command, applies to the whole function.
const (
	nolintLine     = "nolint"
	nolintFunction = "nolint-function"
)

// names selects analyzers: every one when all is set, otherwise those in
// set.
type names struct {
	all bool
	set map[string]bool
}

func (n names) has(analyzer string) bool {
	return n.all || n.set[analyzer]
}

// suppressions holds the nolint directives of one function.
type suppressions struct {
	function names

	// lines maps the 1-based line a directive applies to.
	lines map[int]names
}

func parseSuppressions(fn *mcfunction.Function) suppressions {
	sup := suppressions{lines: make(map[int]names)}
	header := true
	for i, raw := range fn.Lines {
		text := strings.TrimSpace(raw)
		if !strings.HasPrefix(text, "#") {
			if text != "" {
				header = false
			}
			continue
		}
		kind, list, ok := parseDirective(text)
		if !ok {
			continue
		}
		switch {
		case kind == nolintFunction && header:
			sup.function = list
		case kind == nolintLine:
			sup.lines[i+2] = list
		}
	}
	return sup
}

// parseDirective parses a "# nolint..." comment.
func parseDirective(comment string) (string, names, bool) {
	text := strings.TrimSpace(strings.TrimLeft(comment, "#"))
	for _, kind := range []string{nolintFunction, nolintLine} {
		if !strings.HasPrefix(text, kind) {
			continue
		}
		rest := text[len(kind):]
		if rest == "" {
			return kind, names{all: true}, true
		}
		if !strings.HasPrefix(rest, ":") {
			return "", names{}, false
		}
		set := make(map[string]bool)
		for _, name := range strings.Split(rest[1:], ",") {
			if name = strings.TrimSpace(name); name != "" {
				set[name] = true
			}
		}
		return kind, names{set: set}, true
	}
	return "", names{}, false
}

func (s suppressions) suppressed(d Diagnostic) bool {
	if s.function.has(d.Analyzer) {
		return true
	}
	n, ok := s.lines[d.Pos.Line]
	return ok && n.has(d.Analyzer)
}
