// Copyright © 2018 The ELPS authors

package debugrepl

import (
	"fmt"
	"io"
	"strings"

	"github.com/luthersystems/sniffer/mcfunction"
	"github.com/luthersystems/sniffer/mcfunction/x/debugger"
	"github.com/luthersystems/sniffer/mcfunction/x/watcher"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/reflow/wrap"
)

const sourceContextLines = 5

// showSourceContext prints a window of the lines of fn around the
// 0-indexed line, with a --> marker on it. A cursor before the first
// command marks the first line.
func showSourceContext(w io.Writer, fn *mcfunction.Function, line int) {
	if line < 0 && len(fn.Commands) > 0 {
		line = fn.Commands[0].Line
	}
	fmt.Fprintf(w, "  at %v (%s)\n", fn.ID, fn.Location) //nolint:errcheck
	start := line - sourceContextLines
	if start < 0 {
		start = 0
	}
	end := line + sourceContextLines
	if end >= len(fn.Lines) {
		end = len(fn.Lines) - 1
	}
	for i := start; i <= end; i++ {
		marker := "   "
		if i == line {
			marker = "-->"
		}
		fmt.Fprintf(w, "%s %4d  %s\n", marker, i+1, fn.Lines[i]) //nolint:errcheck
	}
}

// showBacktrace prints scopes innermost first.
func showBacktrace(w io.Writer, scopes []*debugger.Scope) {
	if len(scopes) == 0 {
		fmt.Fprintln(w, "  (empty stack)") //nolint:errcheck
		return
	}
	for i, sc := range scopes {
		line := "entry"
		if sc.Line >= 0 {
			line = fmt.Sprintf("line %d", sc.Line+1)
		}
		fmt.Fprintf(w, "  #%d  %v  at %s  as %s\n", i, sc.Function, line, sc.Source.Name()) //nolint:errcheck
	}
}

// showBreakpoints prints every breakpoint grouped by path.
func showBreakpoints(w io.Writer, reg *debugger.Registry) {
	paths := reg.Paths()
	if len(paths) == 0 {
		fmt.Fprintln(w, "  (no breakpoints)") //nolint:errcheck
		return
	}
	for _, fb := range paths {
		for _, line := range fb.Lines() {
			id, _ := reg.IDAt(fb.Function, line)
			fmt.Fprintf(w, "  #%d  %s:%d  (%v)\n", id, fb.Path, line+1, fb.Function) //nolint:errcheck
		}
	}
}

// showVariables prints a variable tree, one node per line, children
// indented under their parent. Long values wrap at width.
func showVariables(w io.Writer, vars []*debugger.Variable, width int) {
	if len(vars) == 0 {
		fmt.Fprintln(w, "  (no variables)") //nolint:errcheck
		return
	}
	var sb strings.Builder
	for _, v := range vars {
		writeVariable(&sb, v, 0, width)
	}
	io.WriteString(w, indent.String(sb.String(), 2)) //nolint:errcheck
}

func writeVariable(sb *strings.Builder, v *debugger.Variable, depth, width int) {
	pad := uint(depth * 2)
	head := v.Name + " = "
	body := fold(v.Value, width-int(pad)-len(head)-2, uint(len(head)))
	sb.WriteString(indent.String(head+body, pad))
	sb.WriteString("\n")
	for _, c := range v.Children {
		writeVariable(sb, c, depth+1, width)
	}
}

// fold wraps s at width, breaking inside words longer than width, and
// indents continuation lines by hang.
func fold(s string, width int, hang uint) string {
	if width < 20 {
		width = 20
	}
	lines := strings.SplitN(wrap.String(wordwrap.String(s, width), width), "\n", 2)
	if len(lines) == 1 {
		return lines[0]
	}
	return lines[0] + "\n" + indent.String(lines[1], hang)
}

const helpText = `Debug commands:
  step [n]                Step into the next n commands
  step_over [n]           Step over function calls
  step_out [n]            Run until the current function returns
  continue                Resume execution
  get [expr]              Show the current scope, or evaluate expr as its executor
  stack                   Show the call stack
  break [<loc> <line>]    Set a breakpoint at a source path or function id, or list breakpoints
  clear [<loc>]           Remove the breakpoints of a location, or all of them
  on | off                Enable or disable the debugger
  run <function> [args]   Call a function as the server with optional macro arguments
  reload                  Reload the datapacks, drop breakpoints and run the load tag
  watch [start|stop]      Follow datapack directories for changes, or show pending changes
  watch auto [on|off]     Reload automatically when watched files change
  watch reload            Reload and list the changes applied
  help                    Show this help
  quit                    Resume execution and leave the console

Any other line runs as a server command, including "log <text {expr}>" and
"assert <expr>". An empty line repeats the last step command.`

// showChanges lists watched file changes under a heading.
func showChanges(w io.Writer, what string, changes []watcher.Change) {
	if len(changes) == 0 {
		fmt.Fprintf(w, "no changes %s\n", what) //nolint:errcheck
		return
	}
	fmt.Fprintf(w, "%d changes %s:\n", len(changes), what) //nolint:errcheck
	for _, c := range changes {
		fmt.Fprintf(w, "  %-8s %s\n", c.Kind, c.Path) //nolint:errcheck
	}
}

func showHelp(w io.Writer, width int) {
	fmt.Fprintln(w, wordwrap.String(helpText, width)) //nolint:errcheck
}
