// Copyright © 2024 The ELPS authors

package repl

import (
	"io"

	"github.com/luthersystems/sniffer/diagnostic"
	"github.com/luthersystems/sniffer/mcfunction"
	"github.com/pkg/errors"
)

// renderError renders err using the diagnostic renderer. Console input has
// no source file, so only errors raised while reading a function carry a
// span.
func renderError(w io.Writer, err error) {
	d := errorToDiag(err)
	if errors.Is(err, mcfunction.ErrUnknownFunction) {
		d.Notes = append(d.Notes, "press tab after \"function \" to list loaded functions")
	}
	r := &diagnostic.Renderer{Color: diagnostic.ColorAuto}
	_ = r.Render(w, d)
}

func errorToDiag(err error) diagnostic.Diagnostic {
	d := diagnostic.Diagnostic{
		Severity: diagnostic.SeverityError,
		Message:  err.Error(),
	}
	var perr *mcfunction.ParseError
	if errors.As(err, &perr) {
		d.Message = perr.Msg
		d.Spans = append(d.Spans, diagnostic.Span{
			File: mcfunction.FunctionPath(perr.Function),
			Line: perr.Line,
			Col:  1,
		})
	}
	return d
}
