// Copyright © 2018 The ELPS authors

package profiler_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/luthersystems/sniffer/mcfunction/x/profiler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCallgrind(t *testing.T) {
	srv := newServer(t)
	p := profiler.NewCallgrindProfiler(srv)
	assert.Error(t, p.Enable(), "no output set")

	var buf bytes.Buffer
	require.NoError(t, p.SetWriter(&buf))
	require.NoError(t, p.Enable())
	assert.Error(t, p.SetWriter(&buf))

	execute(t, srv, "ns:main")
	require.NoError(t, p.Complete())

	out := buf.String()
	assert.Contains(t, out, "events: Time_(ns) Commands\n")
	assert.Contains(t, out, "fl=(1) data/ns/function/helper.mcfunction\nfn=(2) ns:helper\n")
	assert.Contains(t, out, "fn=(4) ns:main\n")
	assert.Contains(t, out, "cfn=(2)\ncalls=1 1\n")
	assert.Contains(t, out, "fn=(6) ENTRYPOINT\n")
	assert.Regexp(t, `summary \d+ 5\n`, out)
}

func TestCallgrindFile(t *testing.T) {
	srv := newServer(t)
	p := profiler.NewCallgrindProfiler(srv, profiler.WithNamespaceFilter("ns"))
	name := filepath.Join(t.TempDir(), "callgrind.out")
	require.NoError(t, p.SetFile(name))
	require.NoError(t, p.Enable())
	execute(t, srv, "ns:main")
	require.NoError(t, p.Complete())

	data, err := os.ReadFile(name)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ns:main")
}
