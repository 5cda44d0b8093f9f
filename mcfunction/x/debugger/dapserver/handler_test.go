// Copyright © 2018 The ELPS authors

package dapserver

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/go-dap"
	"github.com/luthersystems/sniffer/mcfunction"
	"github.com/luthersystems/sniffer/mcfunction/x/debugger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mainPath = "data/ns/function/main.mcfunction"

var testSources = map[string]string{
	"ns:main":   "data merge storage ns:s {a:{b:1},c:2}\nsay l2\nfunction ns:helper\nsay l4\nsay l5\nsay l6",
	"ns:helper": "say helper",
}

// syncBuffer collects server output written from run goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type testClient struct {
	host    *mcfunction.Server
	session *debugger.Session
	out     *syncBuffer
	conn    net.Conn
	reader  *bufio.Reader
	done    chan error
	seq     int
}

func newTestClient(t *testing.T, opts ...Option) *testClient {
	t.Helper()
	lib := mcfunction.NewLibrary()
	for id, text := range testSources {
		_, err := lib.AddSource(mcfunction.MustParseResourceID(id), text)
		require.NoError(t, err)
	}
	out := &syncBuffer{}
	host := mcfunction.NewServer(lib, mcfunction.WithOutput(out))
	sess := debugger.New(host)
	host.Debugger = sess
	srv := New(host, sess, opts...)

	client, server := net.Pipe()
	t.Cleanup(func() { client.Close() }) //nolint:errcheck
	done := make(chan error, 1)
	go func() { done <- srv.ServeConn(server) }()
	return &testClient{
		host:    host,
		session: sess,
		out:     out,
		conn:    client,
		reader:  bufio.NewReader(client),
		done:    done,
	}
}

func (c *testClient) request(command string) dap.Request {
	c.seq++
	return dap.Request{
		ProtocolMessage: dap.ProtocolMessage{Seq: c.seq, Type: "request"},
		Command:         command,
	}
}

func (c *testClient) initialize(t *testing.T) {
	t.Helper()
	sendDAPRequest(t, c.conn, &dap.InitializeRequest{Request: c.request("initialize")})
	resp := expectMessage[*dap.InitializeResponse](t, c.reader)
	assert.True(t, resp.Success)
	expectMessage[*dap.InitializedEvent](t, c.reader)
}

func (c *testClient) setBreakpoint(t *testing.T, path string, line int) *dap.SetBreakpointsResponse {
	t.Helper()
	sendDAPRequest(t, c.conn, &dap.SetBreakpointsRequest{
		Request: c.request("setBreakpoints"),
		Arguments: dap.SetBreakpointsArguments{
			Source:      dap.Source{Path: path},
			Breakpoints: []dap.SourceBreakpoint{{Line: line}},
		},
	})
	return expectMessage[*dap.SetBreakpointsResponse](t, c.reader)
}

// execute starts id on the host. The returned channel yields the run once
// Execute returns, which happens when the run completes or pauses.
func (c *testClient) execute(t *testing.T, id string) <-chan *mcfunction.Run {
	t.Helper()
	ch := make(chan *mcfunction.Run, 1)
	go func() {
		run, err := c.host.Execute(context.Background(), mcfunction.MustParseResourceID(id), mcfunction.ServerSource(), nil)
		assert.NoError(t, err)
		ch <- run
	}()
	return ch
}

func (c *testClient) disconnect(t *testing.T) {
	t.Helper()
	sendDAPRequest(t, c.conn, &dap.DisconnectRequest{Request: c.request("disconnect")})
	resp := expectMessage[*dap.DisconnectResponse](t, c.reader)
	assert.True(t, resp.Success)
	expectMessage[*dap.TerminatedEvent](t, c.reader)
	expectMessage[*dap.ExitedEvent](t, c.reader)
	c.wait(t)
}

func (c *testClient) wait(t *testing.T) {
	t.Helper()
	select {
	case err := <-c.done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for ServeConn to return")
	}
}

func TestDAPServer_InitializeAndDisconnect(t *testing.T) {
	t.Parallel()
	c := newTestClient(t)

	sendDAPRequest(t, c.conn, &dap.InitializeRequest{
		Request: c.request("initialize"),
		Arguments: dap.InitializeRequestArguments{
			AdapterID:     "mcfunction",
			LinesStartAt1: true,
		},
	})
	resp := expectMessage[*dap.InitializeResponse](t, c.reader)
	assert.True(t, resp.Success)
	assert.Equal(t, 1, resp.RequestSeq)
	assert.True(t, resp.Body.SupportsConfigurationDoneRequest)
	assert.True(t, resp.Body.SupportsEvaluateForHovers)
	expectMessage[*dap.InitializedEvent](t, c.reader)

	c.disconnect(t)
}

func TestDAPServer_SetBreakpoints(t *testing.T) {
	t.Parallel()
	c := newTestClient(t)
	c.initialize(t)

	sendDAPRequest(t, c.conn, &dap.SetBreakpointsRequest{
		Request: c.request("setBreakpoints"),
		Arguments: dap.SetBreakpointsArguments{
			Source:      dap.Source{Path: "/home/me/pack/" + mainPath},
			Breakpoints: []dap.SourceBreakpoint{{Line: 5}, {Line: 2}},
		},
	})
	resp := expectMessage[*dap.SetBreakpointsResponse](t, c.reader)
	require.Len(t, resp.Body.Breakpoints, 2)
	assert.True(t, resp.Body.Breakpoints[0].Verified)
	assert.Equal(t, 1, resp.Body.Breakpoints[0].Id)
	assert.Equal(t, 5, resp.Body.Breakpoints[0].Line)
	assert.True(t, resp.Body.Breakpoints[1].Verified)
	assert.Equal(t, 2, resp.Body.Breakpoints[1].Id)
	assert.Equal(t, 2, resp.Body.Breakpoints[1].Line)

	// A file outside a function directory cannot hold breakpoints.
	bad := c.setBreakpoint(t, "/home/me/notes.txt", 3)
	require.Len(t, bad.Body.Breakpoints, 1)
	assert.False(t, bad.Body.Breakpoints[0].Verified)
	assert.Equal(t, 0, bad.Body.Breakpoints[0].Id)
	assert.Contains(t, bad.Body.Breakpoints[0].Message, "failed")

	var paths []*debugger.FunctionBreakpoints
	c.host.Invoke(func() { paths = c.session.Breakpoints().Paths() })
	require.Len(t, paths, 1)
	assert.Equal(t, mcfunction.MustParseResourceID("ns:main"), paths[0].Function)
	assert.Equal(t, []int{1, 4}, paths[0].Lines())

	c.disconnect(t)
}

func TestDAPServer_BreakpointSession(t *testing.T) {
	t.Parallel()
	c := newTestClient(t)
	c.initialize(t)

	bp := c.setBreakpoint(t, mainPath, 5)
	require.True(t, bp.Body.Breakpoints[0].Verified)

	runc := c.execute(t, "ns:main")
	stopped := expectMessage[*dap.StoppedEvent](t, c.reader)
	assert.Equal(t, "breakpoint", stopped.Body.Reason)
	assert.Equal(t, threadID, stopped.Body.ThreadId)
	assert.True(t, stopped.Body.AllThreadsStopped)
	assert.Equal(t, []int{bp.Body.Breakpoints[0].Id}, stopped.Body.HitBreakpointIds)
	run := <-runc
	assert.Equal(t, mcfunction.RunSuspended, run.Status())
	assert.Equal(t, "[server] l2\n[server] helper\n[server] l4\n", c.out.String())

	// threads
	sendDAPRequest(t, c.conn, &dap.ThreadsRequest{Request: c.request("threads")})
	threads := expectMessage[*dap.ThreadsResponse](t, c.reader)
	require.Len(t, threads.Body.Threads, 1)
	assert.Equal(t, threadID, threads.Body.Threads[0].Id)

	// stackTrace
	frames := c.stackTrace(t)
	require.Len(t, frames, 1)
	frame := frames[0]
	assert.Equal(t, "ns:main", frame.Name)
	assert.Equal(t, 5, frame.Line)
	assert.Equal(t, 1, frame.Column)
	require.NotNil(t, frame.Source)
	assert.Equal(t, mainPath, frame.Source.Path)
	assert.Equal(t, "main.mcfunction", frame.Source.Name)

	// scopes
	sendDAPRequest(t, c.conn, &dap.ScopesRequest{
		Request:   c.request("scopes"),
		Arguments: dap.ScopesArguments{FrameId: frame.Id},
	})
	scopes := expectMessage[*dap.ScopesResponse](t, c.reader)
	require.Len(t, scopes.Body.Scopes, 1)
	assert.Equal(t, "Function", scopes.Body.Scopes[0].Name)
	assert.Equal(t, frame.Id, scopes.Body.Scopes[0].VariablesReference)

	// variables
	vars := c.variables(t, frame.Id, 0, 0)
	require.Len(t, vars, 2)
	assert.Equal(t, "executor", vars[0].Name)
	assert.Equal(t, "server", vars[0].Value)
	assert.Equal(t, 0, vars[0].VariablesReference)
	assert.Equal(t, "location", vars[1].Name)
	assert.NotZero(t, vars[1].VariablesReference)
	assert.Equal(t, 3, vars[1].IndexedVariables)

	paged := c.variables(t, vars[1].VariablesReference, 1, 1)
	require.Len(t, paged, 1)
	assert.Equal(t, "rotation", paged[0].Name)

	// evaluate
	self := c.evaluate(t, "@s", frame.Id)
	assert.True(t, self.Success)
	assert.Equal(t, "server", self.Body.Result)
	assert.Equal(t, 0, self.Body.VariablesReference)

	storage := c.evaluate(t, "data storage ns:s", frame.Id)
	assert.Equal(t, evalRefBase, storage.Body.VariablesReference)
	assert.Equal(t, 2, storage.Body.NamedVariables)
	assert.Contains(t, storage.Body.Result, "b:1")
	children := c.variables(t, storage.Body.VariablesReference, 0, 0)
	require.Len(t, children, 2)
	assert.Equal(t, "a", children[0].Name)
	assert.Equal(t, evalRefBase+1, children[0].VariablesReference)
	assert.Equal(t, "c", children[1].Name)
	assert.Equal(t, "2", children[1].Value)

	// Evaluating the same expression again replaces the earlier tree.
	again := c.evaluate(t, "data storage ns:s", frame.Id)
	assert.Equal(t, evalRefBase+4, again.Body.VariablesReference)
	assert.Empty(t, c.variables(t, evalRefBase, 0, 0))

	bad := c.evaluate(t, "data storage", frame.Id)
	assert.True(t, bad.Success)
	assert.NotEmpty(t, bad.Body.Result)
	assert.Equal(t, 0, bad.Body.VariablesReference)

	// next
	sendDAPRequest(t, c.conn, &dap.NextRequest{Request: c.request("next")})
	expectMessage[*dap.NextResponse](t, c.reader)
	stepped := expectMessage[*dap.StoppedEvent](t, c.reader)
	assert.Equal(t, "step", stepped.Body.Reason)
	assert.Empty(t, stepped.Body.HitBreakpointIds)
	frames = c.stackTrace(t)
	require.Len(t, frames, 1)
	assert.Equal(t, 6, frames[0].Line)
	assert.Contains(t, c.out.String(), "l5")
	assert.NotContains(t, c.out.String(), "l6")

	// continue
	sendDAPRequest(t, c.conn, &dap.ContinueRequest{Request: c.request("continue")})
	cont := expectMessage[*dap.ContinueResponse](t, c.reader)
	assert.True(t, cont.Body.AllThreadsContinued)
	expectMessage[*dap.ContinuedEvent](t, c.reader)
	// The stack trace waits for the resumed run to finish.
	assert.Empty(t, c.stackTrace(t))
	assert.Equal(t, mcfunction.RunCompleted, run.Status())
	assert.Contains(t, c.out.String(), "l6")
	assert.False(t, c.host.Frozen())

	c.disconnect(t)
}

func TestDAPServer_StepInAndOut(t *testing.T) {
	t.Parallel()
	c := newTestClient(t)
	c.initialize(t)
	c.setBreakpoint(t, mainPath, 3)

	runc := c.execute(t, "ns:main")
	expectMessage[*dap.StoppedEvent](t, c.reader)
	<-runc

	sendDAPRequest(t, c.conn, &dap.StepInRequest{Request: c.request("stepIn")})
	expectMessage[*dap.StepInResponse](t, c.reader)
	stepped := expectMessage[*dap.StoppedEvent](t, c.reader)
	assert.Equal(t, "step", stepped.Body.Reason)
	frames := c.stackTrace(t)
	require.Len(t, frames, 2)
	assert.Equal(t, "ns:helper", frames[0].Name)
	assert.Equal(t, 1, frames[0].Line)
	assert.Equal(t, "ns:main", frames[1].Name)

	sendDAPRequest(t, c.conn, &dap.StepOutRequest{Request: c.request("stepOut")})
	expectMessage[*dap.StepOutResponse](t, c.reader)
	expectMessage[*dap.StoppedEvent](t, c.reader)
	frames = c.stackTrace(t)
	require.Len(t, frames, 1)
	assert.Equal(t, "ns:main", frames[0].Name)
	assert.Equal(t, 4, frames[0].Line)
	assert.Contains(t, c.out.String(), "helper")

	sendDAPRequest(t, c.conn, &dap.DisconnectRequest{Request: c.request("disconnect")})
	expectMessage[*dap.DisconnectResponse](t, c.reader)
	expectMessage[*dap.ContinuedEvent](t, c.reader)
	expectMessage[*dap.TerminatedEvent](t, c.reader)
	expectMessage[*dap.ExitedEvent](t, c.reader)
	c.wait(t)
	assert.Contains(t, c.out.String(), "l6")
}

func TestDAPServer_LaunchStopOnEntry(t *testing.T) {
	t.Parallel()
	c := newTestClient(t)
	c.initialize(t)

	sendDAPRequest(t, c.conn, &dap.LaunchRequest{
		Request:   c.request("launch"),
		Arguments: []byte(`{"stopOnEntry":true,"function":"ns:main"}`),
	})
	expectMessage[*dap.LaunchResponse](t, c.reader)
	sendDAPRequest(t, c.conn, &dap.ConfigurationDoneRequest{Request: c.request("configurationDone")})
	expectMessage[*dap.ConfigurationDoneResponse](t, c.reader)

	stopped := expectMessage[*dap.StoppedEvent](t, c.reader)
	assert.Equal(t, "entry", stopped.Body.Reason)
	frames := c.stackTrace(t)
	require.Len(t, frames, 1)
	assert.Equal(t, 1, frames[0].Line)
	assert.Empty(t, c.out.String())

	// Disconnecting lets the paused run finish.
	sendDAPRequest(t, c.conn, &dap.DisconnectRequest{Request: c.request("disconnect")})
	expectMessage[*dap.DisconnectResponse](t, c.reader)
	expectMessage[*dap.ContinuedEvent](t, c.reader)
	expectMessage[*dap.TerminatedEvent](t, c.reader)
	expectMessage[*dap.ExitedEvent](t, c.reader)
	c.wait(t)
	assert.Contains(t, c.out.String(), "l6")
	assert.False(t, c.host.Frozen())
}

func TestDAPServer_ConnectionLossReleasesHost(t *testing.T) {
	t.Parallel()
	c := newTestClient(t)
	c.initialize(t)
	c.setBreakpoint(t, mainPath, 2)

	runc := c.execute(t, "ns:main")
	expectMessage[*dap.StoppedEvent](t, c.reader)
	run := <-runc
	require.True(t, c.host.Frozen())

	require.NoError(t, c.conn.Close())
	c.wait(t)

	assert.Equal(t, mcfunction.RunCompleted, run.Status())
	assert.False(t, c.host.Frozen())
	assert.Contains(t, c.out.String(), "l6")
	var paths []*debugger.FunctionBreakpoints
	c.host.Invoke(func() { paths = c.session.Breakpoints().Paths() })
	assert.Empty(t, paths)
}

func TestDAPServer_Source(t *testing.T) {
	t.Parallel()
	c := newTestClient(t)
	c.initialize(t)

	sendDAPRequest(t, c.conn, &dap.SourceRequest{
		Request:   c.request("source"),
		Arguments: dap.SourceArguments{Source: &dap.Source{Path: mainPath}},
	})
	resp := expectMessage[*dap.SourceResponse](t, c.reader)
	assert.True(t, resp.Success)
	assert.Equal(t, testSources["ns:main"], resp.Body.Content)
	assert.Equal(t, mimeType, resp.Body.MimeType)

	sendDAPRequest(t, c.conn, &dap.SourceRequest{
		Request:   c.request("source"),
		Arguments: dap.SourceArguments{Source: &dap.Source{Path: "data/ns/function/missing.mcfunction"}},
	})
	missing := expectMessage[*dap.SourceResponse](t, c.reader)
	assert.True(t, missing.Success)
	assert.Equal(t, "source", missing.Command)
	assert.Empty(t, missing.Body.Content)

	c.disconnect(t)
}

func TestDAPServer_MalformedRequest(t *testing.T) {
	t.Parallel()
	c := newTestClient(t)
	c.initialize(t)

	writeRaw(t, c.conn, `{"seq":40,"type":"request","command":"bogus"}`)
	bogus := expectMessage[*dap.ErrorResponse](t, c.reader)
	assert.False(t, bogus.Success)
	assert.Equal(t, 40, bogus.RequestSeq)
	assert.Equal(t, "bogus", bogus.Command)

	writeRaw(t, c.conn, `{"seq":41,"type":"request","command":"setBreakpoints","arguments":{"source":{"path":5}}}`)
	broken := expectMessage[*dap.SetBreakpointsResponse](t, c.reader)
	assert.True(t, broken.Success)
	assert.Equal(t, 41, broken.RequestSeq)
	assert.Equal(t, "setBreakpoints", broken.Command)
	assert.Empty(t, broken.Body.Breakpoints)
	var paths []*debugger.FunctionBreakpoints
	c.host.Invoke(func() { paths = c.session.Breakpoints().Paths() })
	assert.Empty(t, paths)

	// The connection still serves requests.
	c.seq = 41
	sendDAPRequest(t, c.conn, &dap.ThreadsRequest{Request: c.request("threads")})
	threads := expectMessage[*dap.ThreadsResponse](t, c.reader)
	assert.Equal(t, 42, threads.RequestSeq)

	c.disconnect(t)
}

func TestDAPServer_StepWhileRunningIsIgnored(t *testing.T) {
	t.Parallel()
	c := newTestClient(t)
	c.initialize(t)

	sendDAPRequest(t, c.conn, &dap.NextRequest{Request: c.request("next")})
	resp := expectMessage[*dap.NextResponse](t, c.reader)
	assert.True(t, resp.Success)

	// The next message is the threads response, not a stopped event.
	sendDAPRequest(t, c.conn, &dap.ThreadsRequest{Request: c.request("threads")})
	expectMessage[*dap.ThreadsResponse](t, c.reader)

	c.disconnect(t)
}

func (c *testClient) stackTrace(t *testing.T) []dap.StackFrame {
	t.Helper()
	sendDAPRequest(t, c.conn, &dap.StackTraceRequest{
		Request:   c.request("stackTrace"),
		Arguments: dap.StackTraceArguments{ThreadId: threadID},
	})
	resp := expectMessage[*dap.StackTraceResponse](t, c.reader)
	assert.Equal(t, len(resp.Body.StackFrames), resp.Body.TotalFrames)
	return resp.Body.StackFrames
}

func (c *testClient) variables(t *testing.T, ref, start, count int) []dap.Variable {
	t.Helper()
	sendDAPRequest(t, c.conn, &dap.VariablesRequest{
		Request: c.request("variables"),
		Arguments: dap.VariablesArguments{
			VariablesReference: ref,
			Start:              start,
			Count:              count,
		},
	})
	return expectMessage[*dap.VariablesResponse](t, c.reader).Body.Variables
}

func (c *testClient) evaluate(t *testing.T, expr string, frameID int) *dap.EvaluateResponse {
	t.Helper()
	sendDAPRequest(t, c.conn, &dap.EvaluateRequest{
		Request: c.request("evaluate"),
		Arguments: dap.EvaluateArguments{
			Expression: expr,
			FrameId:    frameID,
			Context:    "watch",
		},
	})
	return expectMessage[*dap.EvaluateResponse](t, c.reader)
}

func sendDAPRequest(t *testing.T, w io.Writer, msg dap.Message) {
	t.Helper()
	err := dap.WriteProtocolMessage(w, msg)
	require.NoError(t, err)
}

func writeRaw(t *testing.T, w io.Writer, body string) {
	t.Helper()
	_, err := fmt.Fprintf(w, "Content-Length: %d\r\n\r\n%s", len(body), body)
	require.NoError(t, err)
}

func readDAPMessage(t *testing.T, r *bufio.Reader) dap.Message {
	t.Helper()
	done := make(chan dap.Message, 1)
	errCh := make(chan error, 1)
	go func() {
		msg, err := dap.ReadProtocolMessage(r)
		if err != nil {
			errCh <- err
			return
		}
		done <- msg
	}()
	select {
	case msg := <-done:
		return msg
	case err := <-errCh:
		t.Fatalf("read DAP message: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for DAP message")
	}
	return nil
}

func expectMessage[T dap.Message](t *testing.T, r *bufio.Reader) T {
	t.Helper()
	msg := readDAPMessage(t, r)
	typed, ok := msg.(T)
	require.True(t, ok, "expected %T, got %T", *new(T), msg)
	return typed
}
