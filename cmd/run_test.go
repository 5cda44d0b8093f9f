// Copyright © 2018 The ELPS authors

package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/luthersystems/sniffer/mcfunction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServer(t *testing.T, sources map[string]string) (*mcfunction.Server, *bytes.Buffer) {
	t.Helper()
	lib := mcfunction.NewLibrary()
	for id, text := range sources {
		_, err := lib.AddSource(mcfunction.MustParseResourceID(id), text)
		require.NoError(t, err)
	}
	var out bytes.Buffer
	return mcfunction.NewServer(lib, mcfunction.WithOutput(&out)), &out
}

func TestParseMacroArgs(t *testing.T) {
	c, err := parseMacroArgs(`{name:"Steve",n:3}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "n"}, c.Keys())

	_, err = parseMacroArgs("[1,2]")
	assert.EqualError(t, err, "arguments must be a compound, got list")

	_, err = parseMacroArgs("{unclosed")
	assert.Error(t, err)
}

func TestRunFunction(t *testing.T) {
	srv, out := testServer(t, map[string]string{
		"demo:main":  "say start\nfunction demo:greet {name:\"Steve\"}\nschedule function demo:later 2t",
		"demo:greet": "$say hello $(name)",
		"demo:later": "say later",
	})
	runTicks = 2
	defer func() { runTicks = 0 }()

	err := runFunction(context.Background(), srv, mcfunction.MustParseResourceID("demo:main"), nil)
	require.NoError(t, err)
	assert.Equal(t, "[server] start\n[server] hello Steve\n[server] later\n", out.String())
}

func TestRunFunctionUnknown(t *testing.T) {
	srv, _ := testServer(t, nil)
	err := runFunction(context.Background(), srv, mcfunction.MustParseResourceID("demo:missing"), nil)
	assert.ErrorIs(t, err, errReported)
}

func TestRunFunctionCallgrindProfile(t *testing.T) {
	srv, _ := testServer(t, map[string]string{
		"demo:main":   "function demo:helper\nsay done",
		"demo:helper": "say helper",
	})
	file := filepath.Join(t.TempDir(), "callgrind.out")
	runProfile, runProfileFile = profileCallgrind, file
	defer func() { runProfile, runProfileFile = "", "" }()

	err := runFunction(context.Background(), srv, mcfunction.MustParseResourceID("demo:main"), nil)
	require.NoError(t, err)
	b, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(b), "version: 1\n"))
	assert.Contains(t, string(b), "demo:helper")
}

func TestStartProfiler(t *testing.T) {
	srv, _ := testServer(t, nil)
	finish, err := startProfiler(context.Background(), srv, "", "")
	require.NoError(t, err)
	assert.NoError(t, finish())
	assert.Nil(t, srv.Profiler)

	_, err = startProfiler(context.Background(), srv, "flamegraph", "")
	assert.ErrorContains(t, err, `unknown profile kind "flamegraph"`)
}

func TestStartProfilerOpenTelemetry(t *testing.T) {
	srv, out := testServer(t, map[string]string{"demo:main": "say traced"})
	finish, err := startProfiler(context.Background(), srv, profileOpenTelemetry, "")
	require.NoError(t, err)
	require.NotNil(t, srv.Profiler)
	assert.True(t, srv.Profiler.IsEnabled())

	_, err = srv.Execute(context.Background(), mcfunction.MustParseResourceID("demo:main"), mcfunction.ServerSource(), nil)
	require.NoError(t, err)
	assert.NoError(t, finish())
	assert.Equal(t, "[server] traced\n", out.String())
}
