// Copyright © 2018 The ELPS authors

package repl

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/luthersystems/sniffer/mcfunction"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *mcfunction.Server {
	t.Helper()
	lib := mcfunction.NewLibrary()
	_, err := lib.AddSource(mcfunction.MustParseResourceID("demo:hello"), "say hello from demo")
	require.NoError(t, err)
	return mcfunction.NewServer(lib)
}

func runWithString(t *testing.T, srv *mcfunction.Server, input string, opts ...Option) string {
	t.Helper()
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	go func() {
		defer inW.Close() //nolint:errcheck // test cleanup
		_, _ = io.WriteString(inW, input)
	}()

	go func() {
		opts = append([]Option{WithStdin(inR), WithStderr(outW), WithHistoryFile("")}, opts...)
		err := Run(context.Background(), srv, "> ", opts...)
		assert.NoError(t, err)
		inR.Close()  //nolint:errcheck,gosec // test cleanup
		outW.Close() //nolint:errcheck,gosec // test cleanup
	}()

	var output bytes.Buffer
	_, _ = io.Copy(&output, outR)
	outR.Close() //nolint:errcheck,gosec // test cleanup
	return output.String()
}

func TestEnsureHistoryFilePermissions_CreatesWithRestrictedMode(t *testing.T) {
	dir := t.TempDir()
	histFile := filepath.Join(dir, ".sniffer_history")

	ensureHistoryFilePermissions(histFile)

	info, err := os.Stat(histFile)
	require.NoError(t, err, "history file should be created")
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestEnsureHistoryFilePermissions_RestrictsExistingFile(t *testing.T) {
	dir := t.TempDir()
	histFile := filepath.Join(dir, ".sniffer_history")
	require.NoError(t, os.WriteFile(histFile, []byte("say hi"), 0644))

	ensureHistoryFilePermissions(histFile)

	info, err := os.Stat(histFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	data, err := os.ReadFile(histFile)
	require.NoError(t, err)
	assert.Equal(t, "say hi", string(data))
}

func TestEnsureHistoryFilePermissions_EmptyPathNoOp(t *testing.T) {
	ensureHistoryFilePermissions("")
}

func TestRun(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"Say", "say hello\n", "[server] hello"},
		{"SlashPrefix", "/say slashed\n", "[server] slashed"},
		{"Function", "function demo:hello\n", "[server] hello from demo"},
		{"UnknownCommand", "fnord\n", `unknown command "fnord"`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := runWithString(t, newTestServer(t), tc.input)
			assert.Contains(t, got, tc.expected)
		})
	}
}

func TestRunLineHandler(t *testing.T) {
	var seen []string
	handler := func(line string) (bool, error) {
		seen = append(seen, line)
		switch line {
		case "ping":
			return true, nil
		case "boom":
			return true, errors.New("handler exploded")
		case "bye":
			return true, ErrQuit
		}
		return false, nil
	}
	got := runWithString(t, newTestServer(t), "ping\nboom\nsay passed\nbye\nsay never\n", WithLineHandler(handler))

	assert.Equal(t, []string{"ping", "boom", "say passed", "bye"}, seen)
	assert.Contains(t, got, "error: handler exploded")
	assert.Contains(t, got, "[server] passed")
	assert.NotContains(t, got, "[server] never")
}

func TestRunDoneCh(t *testing.T) {
	done := make(chan struct{})
	handler := func(line string) (bool, error) {
		if line == "stop" {
			close(done)
			return true, nil
		}
		return false, nil
	}
	got := runWithString(t, newTestServer(t), "stop\nsay after\n", WithLineHandler(handler), WithDoneCh(done))
	assert.NotContains(t, got, "[server] after")
}

func TestErrorToDiag(t *testing.T) {
	err := errors.Wrap(&mcfunction.ParseError{
		Function: mcfunction.MustParseResourceID("demo:bad"),
		Line:     3,
		Msg:      "macro line without arguments",
	}, "load")
	d := errorToDiag(err)
	assert.Equal(t, "macro line without arguments", d.Message)
	require.Len(t, d.Spans, 1)
	assert.Equal(t, "data/demo/function/bad.mcfunction", d.Spans[0].File)
	assert.Equal(t, 3, d.Spans[0].Line)

	d = errorToDiag(mcfunction.ErrQuotaExceeded)
	assert.Equal(t, "command quota exceeded", d.Message)
	assert.Empty(t, d.Spans)
}
