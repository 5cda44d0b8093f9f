// Copyright © 2018 The ELPS authors

package profiler

import (
	"context"
	"runtime/pprof"
	"testing"

	"github.com/luthersystems/sniffer/mcfunction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPprofAnnotatorLabels(t *testing.T) {
	srv := mcfunction.NewServer(mcfunction.NewLibrary())
	outer, err := srv.Library.AddSource(mcfunction.MustParseResourceID("ns:outer"), "function ns:inner")
	require.NoError(t, err)
	inner, err := srv.Library.AddSource(mcfunction.MustParseResourceID("ns:inner"), "say hi")
	require.NoError(t, err)

	p := NewPprofAnnotator(srv, nil)
	require.NoError(t, p.Enable())
	defer p.Complete() //nolint:errcheck

	label := func() string {
		v, _ := pprof.Label(p.currentContext, "function")
		return v
	}
	p.Start(outer)
	assert.Equal(t, "ns:outer", label())
	p.Start(inner)
	assert.Equal(t, "ns:inner", label())
	p.End(inner)
	assert.Equal(t, "ns:outer", label())
	p.End(outer)
	assert.Empty(t, label())
	assert.Equal(t, context.Background(), p.currentContext)
}

func TestPprofAnnotatorRun(t *testing.T) {
	lib := mcfunction.NewLibrary()
	_, err := lib.AddSource(mcfunction.MustParseResourceID("ns:main"), "scoreboard objectives add x\nfunction ns:step\nfunction ns:step")
	require.NoError(t, err)
	_, err = lib.AddSource(mcfunction.MustParseResourceID("ns:step"), "scoreboard players add n x 1")
	require.NoError(t, err)
	srv := mcfunction.NewServer(lib)
	p := NewPprofAnnotator(srv, context.Background())
	require.NoError(t, p.Enable())

	run, err := srv.Execute(context.Background(), mcfunction.MustParseResourceID("ns:main"), mcfunction.ServerSource(), nil)
	require.NoError(t, err)
	assert.Equal(t, mcfunction.RunCompleted, run.Status())
	assert.Zero(t, p.contexts.len())
	assert.NoError(t, p.Complete())
}
