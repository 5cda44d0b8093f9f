// Copyright © 2018 The ELPS authors

package repl

import (
	"testing"

	"github.com/luthersystems/sniffer/mcfunction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runes(ss ...string) [][]rune {
	out := make([][]rune, len(ss))
	for i, s := range ss {
		out[i] = []rune(s)
	}
	return out
}

func TestCommandCompleter(t *testing.T) {
	lib := mcfunction.NewLibrary()
	for _, id := range []string{"demo:main", "demo:tick", "other:main"} {
		_, err := lib.AddSource(mcfunction.MustParseResourceID(id), "say "+id)
		require.NoError(t, err)
	}
	c := &commandCompleter{lib: lib}

	candidates, offset := c.Do([]rune("sc"), 2)
	assert.Equal(t, 2, offset)
	assert.Equal(t, runes("hedule", "oreboard"), candidates)

	candidates, offset = c.Do([]rune("function demo:"), 14)
	assert.Equal(t, 5, offset)
	assert.Equal(t, runes("main", "tick"), candidates)

	candidates, offset = c.Do([]rune("execute as @s run function o"), 28)
	assert.Equal(t, 1, offset)
	assert.Equal(t, runes("ther:main"), candidates)

	candidates, _ = c.Do([]rune("zzz"), 3)
	assert.Empty(t, candidates)

	candidates, _ = c.Do([]rune(""), 0)
	assert.Empty(t, candidates)

	// Arguments of other commands are not completed.
	candidates, _ = c.Do([]rune("say d"), 5)
	assert.Empty(t, candidates)
}
