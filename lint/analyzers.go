// Copyright © 2024 The ELPS authors

package lint

import (
	"fmt"
	"sort"
	"strings"

	"github.com/luthersystems/sniffer/mcfunction"
)

// AnalyzerUnknownFunction reports function references that resolve to
// nothing in the loaded library.
var AnalyzerUnknownFunction = &Analyzer{
	Name:     "unknown-function",
	Severity: SeverityError,
	Doc:      "Report references to functions and function tags that are not loaded.\n\nReferences built from macro arguments are skipped because they are only known at run time.",
	Run: func(pass *Pass) error {
		for _, cmd := range pass.Function.Commands {
			for _, ref := range Refs(cmd.Text) {
				if strings.Contains(ref.Text, "$(") {
					continue
				}
				checkRef(pass, cmd, ref)
			}
		}
		return nil
	},
}

func checkRef(pass *Pass, cmd mcfunction.Command, ref Ref) {
	id, err := mcfunction.ParseResourceID(strings.TrimPrefix(ref.Text, "#"))
	if err != nil {
		pass.Reportf(cmd, ref.Col, "invalid function id %q", ref.Text)
		return
	}
	if ref.Tag {
		if len(pass.Library.ExpandTag(id)) == 0 {
			pass.Reportf(cmd, ref.Col, "unknown function tag #%v", id)
		}
		return
	}
	if _, ok := pass.Library.Function(id); !ok {
		pass.ReportWithNotes(Diagnostic{
			Pos:     pass.Position(cmd, ref.Col),
			Message: "unknown function " + id.String(),
		}, "functions are loaded from "+mcfunction.FunctionPath(id))
	}
}

// AnalyzerMacroArguments reports calls to macro functions that pass no
// arguments.
var AnalyzerMacroArguments = &Analyzer{
	Name:     "macro-arguments",
	Severity: SeverityWarning,
	Doc:      "Report macro functions called without arguments.\n\nA macro line fails when a placeholder has no value, so a call without arguments fails at the first macro line.",
	Run: func(pass *Pass) error {
		for _, cmd := range pass.Function.Commands {
			for _, ref := range Refs(cmd.Text) {
				if ref.Tag || ref.Args {
					continue
				}
				id, err := mcfunction.ParseResourceID(ref.Text)
				if err != nil {
					continue
				}
				fn, ok := pass.Library.Function(id)
				if !ok || !fn.IsMacro() {
					continue
				}
				if ref.Scheduled {
					pass.Reportf(cmd, ref.Col, "scheduled function %v is a macro function", id)
					continue
				}
				pass.Reportf(cmd, ref.Col, "macro function %v called without arguments", id)
			}
		}
		return nil
	},
}

// AnalyzerUnreachable reports the first command after a return.
var AnalyzerUnreachable = &Analyzer{
	Name:     "unreachable",
	Severity: SeverityWarning,
	Doc:      "Report commands that follow an unconditional return.",
	Run: func(pass *Pass) error {
		cmds := pass.Function.Commands
		for i, cmd := range cmds {
			if Head(cmd.Text) != "return" || i+1 >= len(cmds) {
				continue
			}
			pass.Reportf(cmds[i+1], 0, "unreachable command after return on line %d", cmd.Line+1)
			return nil
		}
		return nil
	},
}

// AnalyzerEmptyFunction reports functions without commands.
var AnalyzerEmptyFunction = &Analyzer{
	Name:     "empty-function",
	Severity: SeverityInfo,
	Doc:      "Report functions that contain no commands.",
	Run: func(pass *Pass) error {
		if len(pass.Function.Commands) == 0 {
			pass.Report(Diagnostic{
				Pos:     Position{File: pass.Function.Location.String()},
				Message: "function " + pass.Function.ID.String() + " has no commands",
			})
		}
		return nil
	},
}

// AnalyzerNames returns the sorted names of the built-in checks.
func AnalyzerNames() []string {
	analyzers := DefaultAnalyzers()
	names := make([]string, len(analyzers))
	for i, a := range analyzers {
		names[i] = a.Name
	}
	sort.Strings(names)
	return names
}

// AnalyzerDoc returns a formatted documentation string for all analyzers.
func AnalyzerDoc() string {
	var b strings.Builder
	for _, a := range DefaultAnalyzers() {
		fmt.Fprintf(&b, "  %s\n", a.Name)
		lines := strings.Split(a.Doc, "\n")
		fmt.Fprintf(&b, "    %s\n\n", lines[0])
	}
	return b.String()
}
