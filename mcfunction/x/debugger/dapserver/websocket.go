// Copyright © 2018 The ELPS authors

package dapserver

import (
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// WebSocketHandler returns an HTTP handler that upgrades requests to
// WebSocket connections and serves DAP on them.
func (s *Server) WebSocketHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.WithError(err).Warn("WebSocket upgrade failed")
			return
		}
		log.WithField("remote", r.RemoteAddr).Info("DAP WebSocket client connected")
		if err := s.ServeConn(newWSConn(ws)); err != nil {
			log.WithError(err).Warn("DAP WebSocket connection failed")
		}
	})
}

// ServeWebSocket listens on addr and serves DAP over WebSocket at path.
func (s *Server) ServeWebSocket(addr, path string) error {
	mux := http.NewServeMux()
	mux.Handle("/"+strings.TrimPrefix(path, "/"), s.WebSocketHandler())
	log.Infof("DAP WebSocket server listening on ws://%s/%s", addr, strings.TrimPrefix(path, "/"))
	return errors.Wrap(http.ListenAndServe(addr, mux), "dap websocket") //nolint:gosec
}

// wsConn adapts a WebSocket to a byte stream. Every Write is sent as one
// text message; reads continue across message boundaries.
type wsConn struct {
	ws *websocket.Conn
	r  io.Reader

	wmu sync.Mutex
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{ws: ws}
}

func (c *wsConn) Read(p []byte) (int, error) {
	for {
		if c.r == nil {
			kind, r, err := c.ws.NextReader()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return 0, io.EOF
				}
				return 0, err
			}
			if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
				continue
			}
			c.r = r
		}
		n, err := c.r.Read(p)
		if err == io.EOF {
			c.r = nil
			if n == 0 {
				continue
			}
			return n, nil
		}
		return n, err
	}
}

func (c *wsConn) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.ws.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) Close() error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.ws.WriteMessage(websocket.CloseMessage, msg) //nolint:errcheck
	return c.ws.Close()
}
