// Copyright © 2018 The ELPS authors

package dapserver

import (
	"bufio"
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-dap"
	"github.com/gorilla/websocket"
	"github.com/luthersystems/sniffer/mcfunction"
	"github.com/luthersystems/sniffer/mcfunction/x/debugger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFrame(t *testing.T, ws *websocket.Conn, msg dap.Message) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, dap.WriteProtocolMessage(&buf, msg))
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, buf.Bytes()))
}

// readFrame reads one WebSocket message and decodes the single DAP message
// it carries.
func readFrame(t *testing.T, ws *websocket.Conn) dap.Message {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	kind, data, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)
	r := bufio.NewReader(bytes.NewReader(data))
	msg, err := dap.ReadProtocolMessage(r)
	require.NoError(t, err)
	assert.Zero(t, r.Buffered(), "frame holds more than one message")
	return msg
}

func TestWebSocketTransport(t *testing.T) {
	t.Parallel()
	lib := mcfunction.NewLibrary()
	host := mcfunction.NewServer(lib)
	sess := debugger.New(host)
	host.Debugger = sess
	srv := New(host, sess)

	ts := httptest.NewServer(srv.WebSocketHandler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close() //nolint:errcheck

	writeFrame(t, ws, &dap.InitializeRequest{
		Request: dap.Request{
			ProtocolMessage: dap.ProtocolMessage{Seq: 1, Type: "request"},
			Command:         "initialize",
		},
	})
	resp, ok := readFrame(t, ws).(*dap.InitializeResponse)
	require.True(t, ok)
	assert.True(t, resp.Success)
	_, ok = readFrame(t, ws).(*dap.InitializedEvent)
	assert.True(t, ok)

	writeFrame(t, ws, &dap.ThreadsRequest{
		Request: dap.Request{
			ProtocolMessage: dap.ProtocolMessage{Seq: 2, Type: "request"},
			Command:         "threads",
		},
	})
	threads, ok := readFrame(t, ws).(*dap.ThreadsResponse)
	require.True(t, ok)
	assert.Equal(t, 2, threads.RequestSeq)

	writeFrame(t, ws, &dap.DisconnectRequest{
		Request: dap.Request{
			ProtocolMessage: dap.ProtocolMessage{Seq: 3, Type: "request"},
			Command:         "disconnect",
		},
	})
	_, ok = readFrame(t, ws).(*dap.DisconnectResponse)
	assert.True(t, ok)
	_, ok = readFrame(t, ws).(*dap.TerminatedEvent)
	assert.True(t, ok)
	_, ok = readFrame(t, ws).(*dap.ExitedEvent)
	assert.True(t, ok)

	// The server closes the socket after a disconnect.
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = ws.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}
