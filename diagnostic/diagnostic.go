// Copyright © 2024 The ELPS authors

// Package diagnostic renders annotated reports about function sources: a
// header, the offending source line with an underline, and trailing notes
// such as the call stack. File names may name a member of a zipped
// datapack as "archive!/member". The package does not depend on mcfunction.
package diagnostic

import "fmt"

// Severity of a diagnostic.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityNote
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityNote:
		return "note"
	}
	return "unknown"
}

// Span points at a region of one source line. Line and Col are 1-based.
// An EndCol of zero underlines the word at Col, or the whole bracketed
// value when Col is on an opening bracket.
type Span struct {
	File   string
	Line   int
	Col    int
	EndCol int
	Label  string
}

// Location formats the span as file:line:col, leaving out the parts that
// are unset.
func (s Span) Location() string {
	switch {
	case s.Line <= 0:
		return s.File
	case s.Col <= 0:
		return fmt.Sprintf("%s:%d", s.File, s.Line)
	}
	return fmt.Sprintf("%s:%d:%d", s.File, s.Line, s.Col)
}

// Diagnostic is a single report. Notes are rendered as "= note:" lines
// after the spans, in order.
type Diagnostic struct {
	Severity Severity
	Message  string
	Spans    []Span
	Notes    []string
}
