// Copyright © 2024 The ELPS authors

package cmd

import (
	"io"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"github.com/luthersystems/sniffer/diagnostic"
	lintpkg "github.com/luthersystems/sniffer/lint"
	"github.com/luthersystems/sniffer/mcfunction"
	"github.com/pkg/errors"
)

func colorMode() diagnostic.ColorMode {
	switch colorFlag {
	case "always":
		return diagnostic.ColorAlways
	case "never":
		return diagnostic.ColorNever
	default:
		return diagnostic.ColorAuto
	}
}

func newRenderer() *diagnostic.Renderer {
	return &diagnostic.Renderer{Color: colorMode()}
}

// loadErrorDiagnostics converts the errors of loading the datapack at root
// to diagnostics, one per malformed file.
func loadErrorDiagnostics(root string, err error) []diagnostic.Diagnostic {
	var errs []error
	var merr *multierror.Error
	if errors.As(err, &merr) {
		errs = merr.Errors
	} else {
		errs = []error{err}
	}
	diags := make([]diagnostic.Diagnostic, 0, len(errs))
	for _, e := range errs {
		diags = append(diags, loadErrorToDiagnostic(root, e))
	}
	return diags
}

func loadErrorToDiagnostic(root string, err error) diagnostic.Diagnostic {
	d := diagnostic.Diagnostic{
		Severity: diagnostic.SeverityError,
		Message:  err.Error(),
	}
	var perr *mcfunction.ParseError
	if !errors.As(err, &perr) {
		return d
	}
	d.Message = perr.Msg
	file := perr.Path
	if file == "" {
		file = mcfunction.FunctionPath(perr.Function)
	}
	if isDir(root) {
		file = filepath.Join(root, filepath.FromSlash(file))
	} else if root != "" {
		file = mcfunction.Location{Archive: root, Path: file}.String()
	}
	d.Spans = append(d.Spans, diagnostic.Span{
		File:  file,
		Line:  perr.Line,
		Col:   1,
		Label: "in " + perr.Function.String(),
	})
	return d
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// renderLoadError renders the errors of loading root to stderr.
func renderLoadError(root string, err error) {
	_ = newRenderer().RenderAll(os.Stderr, loadErrorDiagnostics(root, err))
}

// renderError renders a single error to stderr.
func renderError(err error, notes ...string) {
	d := diagnostic.Diagnostic{
		Severity: diagnostic.SeverityError,
		Message:  err.Error(),
		Notes:    notes,
	}
	_ = newRenderer().Render(os.Stderr, d)
}

// lintDiagToDiagnostic converts a lint.Diagnostic to a diagnostic.Diagnostic.
func lintDiagToDiagnostic(ld lintpkg.Diagnostic) diagnostic.Diagnostic {
	d := diagnostic.Diagnostic{
		Severity: diagnostic.SeverityWarning,
		Message:  ld.Message + " (" + ld.Analyzer + ")",
	}
	switch ld.Severity {
	case lintpkg.SeverityError:
		d.Severity = diagnostic.SeverityError
	case lintpkg.SeverityInfo:
		d.Severity = diagnostic.SeverityNote
	}
	if ld.Pos.Line > 0 {
		d.Spans = append(d.Spans, diagnostic.Span{
			File: ld.Pos.File,
			Line: ld.Pos.Line,
			Col:  ld.Pos.Col,
		})
	}
	d.Notes = append(d.Notes, ld.Notes...)
	if ld.Pos.Line > 0 {
		d.Notes = append(d.Notes, "to suppress: add \"# nolint:"+ld.Analyzer+"\" on the line above")
	}
	return d
}

// renderLintDiagnostics renders lint diagnostics with diagnostic formatting to w.
func renderLintDiagnostics(w io.Writer, diags []lintpkg.Diagnostic) {
	ds := make([]diagnostic.Diagnostic, 0, len(diags))
	for _, ld := range diags {
		ds = append(ds, lintDiagToDiagnostic(ld))
	}
	_ = newRenderer().RenderAll(w, ds)
}
