// Copyright © 2024 The ELPS authors

package docs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDebuggingGuide(t *testing.T) {
	assert.Contains(t, DebuggingGuide, "# Debugging datapack functions")
	for _, cmd := range []string{"step_over", "step_out", "continue"} {
		assert.Contains(t, DebuggingGuide, cmd)
	}
}
