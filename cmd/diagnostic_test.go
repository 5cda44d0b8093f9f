// Copyright © 2024 The ELPS authors

package cmd

import (
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/luthersystems/sniffer/diagnostic"
	"github.com/luthersystems/sniffer/lint"
	"github.com/luthersystems/sniffer/mcfunction"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseErr(line int, msg string) error {
	perr := &mcfunction.ParseError{
		Function: mcfunction.MustParseResourceID("ns:bad"),
		Path:     "data/ns/function/bad.mcfunction",
		Line:     line,
		Msg:      msg,
	}
	return errors.Wrap(perr, perr.Path)
}

func TestLoadErrorToDiagnostic_Directory(t *testing.T) {
	root := t.TempDir()
	d := loadErrorToDiagnostic(root, parseErr(2, "line continuation at end of file"))
	assert.Equal(t, diagnostic.SeverityError, d.Severity)
	assert.Equal(t, "line continuation at end of file", d.Message)
	require.Len(t, d.Spans, 1)
	assert.Equal(t, diagnostic.Span{
		File:  filepath.Join(root, "data", "ns", "function", "bad.mcfunction"),
		Line:  2,
		Col:   1,
		Label: "in ns:bad",
	}, d.Spans[0])
}

func TestLoadErrorToDiagnostic_Archive(t *testing.T) {
	root := filepath.Join(t.TempDir(), "pack.zip")
	d := loadErrorToDiagnostic(root, parseErr(1, "macro line without arguments"))
	require.Len(t, d.Spans, 1)
	assert.Equal(t, root+"!/data/ns/function/bad.mcfunction", d.Spans[0].File)
}

func TestLoadErrorToDiagnostic_Other(t *testing.T) {
	d := loadErrorToDiagnostic("pack", errors.New("data/ns/tags/function/t.json: invalid JSON"))
	assert.Equal(t, "data/ns/tags/function/t.json: invalid JSON", d.Message)
	assert.Empty(t, d.Spans)
}

func TestLoadErrorDiagnostics(t *testing.T) {
	var merr *multierror.Error
	merr = multierror.Append(merr, parseErr(1, "first"), errors.New("second"))
	diags := loadErrorDiagnostics("pack", merr.ErrorOrNil())
	require.Len(t, diags, 2)
	assert.Equal(t, "first", diags[0].Message)
	assert.Equal(t, "second", diags[1].Message)

	single := loadErrorDiagnostics("pack", errors.New("datapack: no such file"))
	require.Len(t, single, 1)
}

func TestLintDiagToDiagnostic(t *testing.T) {
	d := lintDiagToDiagnostic(lint.Diagnostic{
		Pos:      lint.Position{File: "main.mcfunction", Line: 3, Col: 10},
		Message:  "unknown function ns:gone",
		Analyzer: "unknown-function",
		Severity: lint.SeverityError,
		Notes:    []string{"functions are loaded from data/ns/function/gone.mcfunction"},
	})
	assert.Equal(t, diagnostic.SeverityError, d.Severity)
	assert.Equal(t, "unknown function ns:gone (unknown-function)", d.Message)
	assert.Equal(t, []diagnostic.Span{{File: "main.mcfunction", Line: 3, Col: 10}}, d.Spans)
	assert.Equal(t, []string{
		"functions are loaded from data/ns/function/gone.mcfunction",
		`to suppress: add "# nolint:unknown-function" on the line above`,
	}, d.Notes)

	info := lintDiagToDiagnostic(lint.Diagnostic{
		Pos:      lint.Position{File: "empty.mcfunction"},
		Message:  "function ns:empty has no commands",
		Analyzer: "empty-function",
		Severity: lint.SeverityInfo,
	})
	assert.Equal(t, diagnostic.SeverityNote, info.Severity)
	assert.Empty(t, info.Spans)
	assert.Empty(t, info.Notes)

	warn := lintDiagToDiagnostic(lint.Diagnostic{Analyzer: "unreachable", Severity: lint.SeverityWarning})
	assert.Equal(t, diagnostic.SeverityWarning, warn.Severity)
}
