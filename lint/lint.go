// Copyright © 2024 The ELPS authors

// Package lint reports likely mistakes in datapack functions.
//
// Checks are independent analyzers in the manner of go vet. Each one is
// handed a single function and the library it was loaded into, and reports
// findings against the function's source lines.
package lint

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/luthersystems/sniffer/mcfunction"
	"github.com/pkg/errors"
)

// Severity of a finding. The zero value means the analyzer's default.
type Severity int

const (
	severityUnset Severity = iota
	SeverityError
	SeverityWarning
	SeverityInfo
)

var severityNames = map[Severity]string{
	SeverityError:   "error",
	SeverityWarning: "warning",
	SeverityInfo:    "info",
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return "unknown"
}

// effective maps an unset severity to warning.
func (s Severity) effective() Severity {
	if s == severityUnset {
		return SeverityWarning
	}
	return s
}

// MarshalJSON encodes the severity name. Unset encodes as "warning".
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.effective().String())
}

// UnmarshalJSON decodes a severity name.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for sev, n := range severityNames {
		if n == name {
			*s = sev
			return nil
		}
	}
	return errors.Errorf("unknown severity: %q", name)
}

// Analyzer is one check. The first line of Doc is its summary.
type Analyzer struct {
	Name     string
	Doc      string
	Severity Severity
	Run      func(pass *Pass) error
}

// Pass is the state of one analyzer run over one function.
type Pass struct {
	Analyzer *Analyzer
	Library  *mcfunction.Library
	Function *mcfunction.Function

	diagnostics []Diagnostic
}

// Report records d, filling in the analyzer and its default severity.
func (p *Pass) Report(d Diagnostic) {
	d.Analyzer = p.Analyzer.Name
	if d.Severity == severityUnset {
		d.Severity = p.Analyzer.Severity
	}
	p.diagnostics = append(p.diagnostics, d)
}

// ReportWithNotes records d with hint lines appended.
func (p *Pass) ReportWithNotes(d Diagnostic, notes ...string) {
	d.Notes = append(d.Notes, notes...)
	p.Report(d)
}

// Reportf reports a finding at cmd. col is the 1-based column within
// cmd.Text, or 0 to point at the whole command.
func (p *Pass) Reportf(cmd mcfunction.Command, col int, format string, args ...interface{}) {
	p.Report(Diagnostic{
		Pos:     p.Position(cmd, col),
		Message: fmt.Sprintf(format, args...),
	})
}

// Position maps a column of cmd.Text to the source file. A command joined
// from continuation lines, or a macro line with its "$" stripped, is
// located by searching the raw line; when that fails only the line is set.
func (p *Pass) Position(cmd mcfunction.Command, col int) Position {
	pos := Position{File: p.Function.Location.String(), Line: cmd.Line + 1}
	if col <= 0 || cmd.Line >= len(p.Function.Lines) {
		return pos
	}
	if i := strings.Index(p.Function.Lines[cmd.Line], cmd.Text); i >= 0 {
		pos.Col = i + col
	}
	return pos
}

// Diagnostic is a finding.
type Diagnostic struct {
	Pos      Position `json:"pos"`
	Message  string   `json:"message"`
	Analyzer string   `json:"analyzer"`
	Severity Severity `json:"severity"`
	Notes    []string `json:"notes,omitempty"`
}

// Position is a location in a function file. Col is 0 when unknown, and
// Line is 0 for findings about the whole file.
type Position struct {
	File string `json:"file"`
	Line int    `json:"line"`
	Col  int    `json:"col,omitempty"`
}

func (p Position) String() string {
	switch {
	case p.Line == 0:
		return p.File
	case p.Col == 0:
		return fmt.Sprintf("%s:%d", p.File, p.Line)
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Col)
}

// String formats d the way go vet does, "pos: message (analyzer)", with
// one indented line per note.
func (d Diagnostic) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s (%s)", d.Pos, d.Message, d.Analyzer)
	for _, n := range d.Notes {
		b.WriteString("\n  = note: ")
		b.WriteString(n)
	}
	return b.String()
}

// less orders diagnostics by file, line and column.
func less(a, b Diagnostic) bool {
	if a.Pos.File != b.Pos.File {
		return a.Pos.File < b.Pos.File
	}
	if a.Pos.Line != b.Pos.Line {
		return a.Pos.Line < b.Pos.Line
	}
	return a.Pos.Col < b.Pos.Col
}

// Linter runs analyzers over functions.
type Linter struct {
	Analyzers []*Analyzer
}

// LintLibrary checks every function of lib in id order.
func (l *Linter) LintLibrary(lib *mcfunction.Library) ([]Diagnostic, error) {
	var all []Diagnostic
	for _, id := range lib.IDs() {
		fn, ok := lib.Function(id)
		if !ok {
			continue
		}
		diags, err := l.LintFunction(lib, fn)
		if err != nil {
			return nil, err
		}
		all = append(all, diags...)
	}
	return all, nil
}

// LintFunction checks fn, resolving references against lib. Findings
// suppressed by nolint comments are dropped.
func (l *Linter) LintFunction(lib *mcfunction.Library, fn *mcfunction.Function) ([]Diagnostic, error) {
	sup := parseSuppressions(fn)
	var diags []Diagnostic
	for _, a := range l.Analyzers {
		pass := &Pass{Analyzer: a, Library: lib, Function: fn}
		if err := a.Run(pass); err != nil {
			return nil, errors.Wrapf(err, "%v: analyzer %s", fn.ID, a.Name)
		}
		for _, d := range pass.diagnostics {
			if !sup.suppressed(d) {
				diags = append(diags, d)
			}
		}
	}
	sort.SliceStable(diags, func(i, j int) bool { return less(diags[i], diags[j]) })
	return diags, nil
}

// Count returns the number of diagnostics as severe as sev or more. Unset
// severities count as warnings.
func Count(diags []Diagnostic, sev Severity) int {
	n := 0
	for _, d := range diags {
		if d.Severity.effective() <= sev {
			n++
		}
	}
	return n
}

// FormatText writes diags one per line in go vet format.
func FormatText(w io.Writer, diags []Diagnostic) {
	for _, d := range diags {
		fmt.Fprintln(w, d) //nolint:errcheck
	}
}

// FormatJSON writes diags as an indented JSON array.
func FormatJSON(w io.Writer, diags []Diagnostic) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(diags)
}

// DefaultAnalyzers returns the built-in checks.
func DefaultAnalyzers() []*Analyzer {
	return []*Analyzer{
		AnalyzerUnknownFunction,
		AnalyzerMacroArguments,
		AnalyzerUnreachable,
		AnalyzerEmptyFunction,
	}
}
