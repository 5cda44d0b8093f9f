// Copyright © 2018 The ELPS authors

// Package dapserver implements a DAP (Debug Adapter Protocol) server for
// the mcfunction debugger. It translates between the DAP wire protocol and
// a debugger.Session attached to an mcfunction.Server.
//
// The server supports three transport modes:
//   - TCP: the server listens on a port and serves one client at a time.
//   - Stdio: for editors that launch the adapter as a child process.
//   - WebSocket: each DAP message travels in one text frame, for clients
//     that cannot open raw sockets.
package dapserver

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"sync"

	"github.com/google/go-dap"
	"github.com/luthersystems/sniffer/mcfunction"
	"github.com/luthersystems/sniffer/mcfunction/x/debugger"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Server is a DAP protocol server for one debugger session. Connections are
// served one after the other; each gets its own handler state while the
// breakpoints and step state belong to the session.
type Server struct {
	host        *mcfunction.Server
	session     *debugger.Session
	stopOnEntry bool
}

// Option configures a Server.
type Option func(*Server)

// WithStopOnEntry makes every client pause at the first command executed
// after configuration is done.
func WithStopOnEntry(stop bool) Option {
	return func(s *Server) { s.stopOnEntry = stop }
}

// New returns a server exposing session, which must be the debugger of
// host.
func New(host *mcfunction.Server, session *debugger.Session, opts ...Option) *Server {
	s := &Server{host: host, session: session}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ServeConn serves DAP messages on a single connection. It blocks until
// the connection is closed or a disconnect request is received.
func (s *Server) ServeConn(conn io.ReadWriteCloser) error {
	defer conn.Close() //nolint:errcheck // best-effort cleanup
	return s.serve(conn, conn)
}

// ServeStdio serves DAP messages on r and w, typically os.Stdin and
// os.Stdout.
func (s *Server) ServeStdio(r io.Reader, w io.Writer) error {
	return s.serve(r, w)
}

// ServeTCP listens on addr and serves clients until the listener fails.
func (s *Server) ServeTCP(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrap(err, "dap listen")
	}
	defer ln.Close() //nolint:errcheck // best-effort cleanup
	log.Infof("DAP server listening on %s", ln.Addr())
	return s.ServeListener(ln)
}

// ServeListener accepts connections from ln and serves them one at a
// time.
func (s *Server) ServeListener(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		log.WithField("remote", conn.RemoteAddr().String()).Info("DAP client connected")
		if err := s.ServeConn(conn); err != nil {
			log.WithError(err).Warn("DAP connection failed")
		}
	}
}

func (s *Server) serve(r io.Reader, w io.Writer) error {
	c := newConnection(w)
	h := newHandler(s, c)
	defer h.release()
	reader := bufio.NewReader(r)
	for {
		select {
		case <-c.done:
			return nil
		default:
		}
		content, err := dap.ReadBaseMessage(reader)
		if err != nil {
			select {
			case <-c.done:
				return nil
			default:
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return errors.Wrap(err, "dap read")
		}
		msg, err := dap.DecodeProtocolMessage(content)
		if err != nil {
			h.onMalformed(content, err)
			continue
		}
		h.handle(msg)
	}
}

// connection is the write side of one client.
type connection struct {
	mu   sync.Mutex
	seq  int
	w    io.Writer
	done chan struct{}
}

func newConnection(w io.Writer) *connection {
	return &connection{w: w, done: make(chan struct{})}
}

// send writes msg in a single write so that message-oriented transports
// carry one DAP message per frame.
func (c *connection) send(msg dap.Message) error {
	var buf bytes.Buffer
	if err := dap.WriteProtocolMessage(&buf, msg); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.w.Write(buf.Bytes())
	return err
}

func (c *connection) nextSeq() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// close signals the read loop to stop.
func (c *connection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}
