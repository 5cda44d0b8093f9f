// Copyright © 2018 The ELPS authors

package debugrepl

import (
	"testing"

	"github.com/luthersystems/sniffer/mcfunction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebugCompleter(t *testing.T) {
	t.Parallel()
	lib := mcfunction.NewLibrary()
	for id, src := range testSources {
		_, err := lib.AddSource(mcfunction.MustParseResourceID(id), src)
		require.NoError(t, err)
	}
	c := &debugCompleter{lib: lib}

	candidates, offset := c.Do([]rune("st"), 2)
	assert.Equal(t, 2, offset)
	assert.Equal(t, [][]rune{[]rune("ack"), []rune("ep"), []rune("ep_out"), []rune("ep_over")}, candidates)

	// Server commands complete too.
	candidates, _ = c.Do([]rune("sc"), 2)
	assert.Equal(t, [][]rune{[]rune("hedule"), []rune("oreboard")}, candidates)

	candidates, offset = c.Do([]rune("run demo:h"), 10)
	assert.Equal(t, 6, offset)
	assert.Equal(t, [][]rune{[]rune("elper")}, candidates)

	candidates, _ = c.Do([]rune("break demo:m"), 12)
	assert.Equal(t, [][]rune{[]rune("ain")}, candidates)

	candidates, _ = c.Do([]rune("get dem"), 7)
	assert.Empty(t, candidates)
}
