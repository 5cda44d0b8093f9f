// Copyright © 2024 The ELPS authors

package diagnostic

import (
	"os"

	"github.com/mattn/go-isatty"
)

// ColorMode controls when ANSI colors are used.
type ColorMode int

const (
	// ColorAuto colors output written to a terminal unless NO_COLOR is set.
	ColorAuto ColorMode = iota
	ColorAlways
	ColorNever
)

// palette holds the escape sequences used by the renderer. The zero
// palette renders plain text.
type palette struct {
	bold     string
	yellow   string
	boldRed  string
	boldBlue string
	boldCyan string
	reset    string
}

var ansiPalette = palette{
	bold:     "\033[1m",
	yellow:   "\033[33m",
	boldRed:  "\033[1;31m",
	boldBlue: "\033[1;34m",
	boldCyan: "\033[1;36m",
	reset:    "\033[0m",
}

// severity returns the style of a diagnostic header.
func (p palette) severity(s Severity) string {
	switch s {
	case SeverityError:
		return p.boldRed
	case SeverityWarning:
		return p.yellow + p.bold
	}
	return p.boldCyan
}

func choosePalette(mode ColorMode, f *os.File) palette {
	switch mode {
	case ColorAlways:
		return ansiPalette
	case ColorNever:
		return palette{}
	}
	if os.Getenv("NO_COLOR") != "" || !isTerminal(f) {
		return palette{}
	}
	return ansiPalette
}

// isTerminal reports whether f is a terminal, Cygwin and MSYS included.
func isTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
