// Copyright © 2018 The ELPS authors

package debugrepl

import (
	"github.com/luthersystems/sniffer/mcfunction"
	"github.com/luthersystems/sniffer/repl"
)

// debugCommands lists the debug command names for tab completion.
var debugCommands = []string{
	"break",
	"clear",
	"continue",
	"get",
	"help",
	"off",
	"on",
	"quit",
	"reload",
	"run",
	"stack",
	"step",
	"step_out",
	"step_over",
	"watch",
}

// debugCompleter completes debug commands and server commands as the
// first word, and function ids after run, break, clear and function.
type debugCompleter struct {
	lib *mcfunction.Library
}

func (c *debugCompleter) Do(line []rune, pos int) ([][]rune, int) {
	names := append(append([]string(nil), debugCommands...), repl.Commands...)
	text := string(line[:pos])
	for _, cmd := range []string{"run ", "break ", "clear "} {
		if len(text) >= len(cmd) && text[:len(cmd)] == cmd {
			text = "function " + text[len(cmd):]
			break
		}
	}
	return repl.Complete(text, names, c.lib)
}
