// Copyright © 2018 The ELPS authors

package repl

import (
	"sort"
	"strings"

	"github.com/luthersystems/sniffer/mcfunction"
)

// Commands lists the command names the console completes.
var Commands = []string{
	"assert",
	"data",
	"execute",
	"function",
	"log",
	"return",
	"say",
	"schedule",
	"scoreboard",
	"summon",
}

// commandCompleter implements readline.AutoCompleter over command names
// and the function ids of a library.
type commandCompleter struct {
	lib *mcfunction.Library
}

func (c *commandCompleter) Do(line []rune, pos int) ([][]rune, int) {
	return Complete(string(line[:pos]), Commands, c.lib)
}

// Complete returns the suffixes completing the last word of text. The
// first word completes against names, any word following "function"
// against the function ids of lib.
func Complete(text string, names []string, lib *mcfunction.Library) ([][]rune, int) {
	start := strings.LastIndexAny(text, " \t") + 1
	prefix := text[start:]
	before := strings.Fields(text[:start])

	var candidates []string
	switch {
	case len(before) == 0:
		if prefix == "" {
			return nil, 0
		}
		candidates = withPrefix(names, prefix)
	case before[len(before)-1] == "function" && lib != nil:
		ids := lib.IDs()
		all := make([]string, len(ids))
		for i, id := range ids {
			all[i] = id.String()
		}
		candidates = withPrefix(all, prefix)
	}
	if len(candidates) == 0 {
		return nil, 0
	}
	sort.Strings(candidates)
	result := make([][]rune, 0, len(candidates))
	for _, s := range candidates {
		result = append(result, []rune(s[len(prefix):]))
	}
	return result, len([]rune(prefix))
}

func withPrefix(all []string, prefix string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, s := range all {
		if strings.HasPrefix(s, prefix) && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
