// Copyright © 2018 The ELPS authors

package dapserver

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/go-dap"
	"github.com/luthersystems/sniffer/mcfunction"
	"github.com/luthersystems/sniffer/mcfunction/x/debugger"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// handler dispatches the DAP messages of one connection. Session state is
// only touched inside host.Invoke.
type handler struct {
	conn    *connection
	host    *mcfunction.Server
	session *debugger.Session

	unsubscribe func()
	terminate   sync.Once

	// launch settings, applied at configurationDone
	stopOnEntry bool
	entry       string

	mu        sync.Mutex
	evalNext  int
	evalTrees map[string]*debugger.Variable
	evalNodes map[int]*debugger.Variable
}

func newHandler(s *Server, c *connection) *handler {
	h := &handler{
		conn:        c,
		host:        s.host,
		session:     s.session,
		stopOnEntry: s.stopOnEntry,
		evalNext:    evalRefBase,
		evalTrees:   make(map[string]*debugger.Variable),
		evalNodes:   make(map[int]*debugger.Variable),
	}
	h.unsubscribe = s.session.Subscribe(h)
	return h
}

// send sends a DAP message and logs any write error.
func (h *handler) send(msg dap.Message) {
	if err := h.conn.send(msg); err != nil {
		log.WithError(err).Debug("DAP send failed")
	}
}

func (h *handler) handle(msg dap.Message) {
	if log.IsLevelEnabled(log.DebugLevel) {
		log.Debugf("DAP message: %s", spew.Sdump(msg))
	}
	switch req := msg.(type) {
	case *dap.InitializeRequest:
		h.onInitialize(req)
	case *dap.LaunchRequest:
		h.onLaunch(req)
	case *dap.AttachRequest:
		h.onAttach(req)
	case *dap.ConfigurationDoneRequest:
		h.onConfigurationDone(req)
	case *dap.SetBreakpointsRequest:
		h.onSetBreakpoints(req)
	case *dap.SetExceptionBreakpointsRequest:
		resp := &dap.SetExceptionBreakpointsResponse{}
		resp.Response = h.newResponse(req.Seq, req.Command)
		h.send(resp)
	case *dap.ThreadsRequest:
		h.onThreads(req)
	case *dap.StackTraceRequest:
		h.onStackTrace(req)
	case *dap.ScopesRequest:
		h.onScopes(req)
	case *dap.VariablesRequest:
		h.onVariables(req)
	case *dap.EvaluateRequest:
		h.onEvaluate(req)
	case *dap.SourceRequest:
		h.onSource(req)
	case *dap.ContinueRequest:
		h.onContinue(req)
	case *dap.NextRequest:
		resp := &dap.NextResponse{}
		resp.Response = h.newResponse(req.Seq, req.Command)
		h.send(resp)
		h.step(debugger.StepOver)
	case *dap.StepInRequest:
		resp := &dap.StepInResponse{}
		resp.Response = h.newResponse(req.Seq, req.Command)
		h.send(resp)
		h.step(debugger.StepIn)
	case *dap.StepOutRequest:
		resp := &dap.StepOutResponse{}
		resp.Response = h.newResponse(req.Seq, req.Command)
		h.send(resp)
		h.step(debugger.StepOut)
	case *dap.PauseRequest:
		h.onPause(req)
	case *dap.DisconnectRequest:
		h.onDisconnect(req.Seq, req.Command)
	case *dap.TerminateRequest:
		h.onDisconnect(req.Seq, req.Command)
	case dap.RequestMessage:
		r := req.GetRequest()
		log.WithField("command", r.Command).Warn("Unsupported DAP request")
		h.sendError(r.Seq, r.Command, "unsupported request "+r.Command)
	default:
		log.Warnf("Unhandled DAP message type: %T", msg)
	}
}

// onMalformed answers a request that could not be decoded with an empty
// response of the type its command expects. Commands the protocol does not
// define get an error response. The message was read completely so the
// connection stays usable.
func (h *handler) onMalformed(content []byte, err error) {
	msg := gjson.ParseBytes(content)
	seq, command := int(msg.Get("seq").Int()), msg.Get("command").String()
	log.WithFields(log.Fields{
		"seq":     seq,
		"command": command,
	}).WithError(err).Warn("Malformed DAP message")
	if msg.Get("type").String() != "request" {
		return
	}
	if !h.sendDefault(seq, command) {
		h.sendError(seq, command, "unsupported request "+command)
	}
}

func (h *handler) onInitialize(req *dap.InitializeRequest) {
	resp := &dap.InitializeResponse{}
	resp.Response = h.newResponse(req.Seq, req.Command)
	resp.Body = dap.Capabilities{
		SupportsConfigurationDoneRequest: true,
		SupportsEvaluateForHovers:        true,
		SupportsDelayedStackTraceLoading: true,
		SupportsTerminateRequest:         true,
	}
	h.send(resp)
	h.send(&dap.InitializedEvent{Event: h.newEvent("initialized")})
}

func (h *handler) onLaunch(req *dap.LaunchRequest) {
	h.readLaunchArgs(req.Arguments)
	resp := &dap.LaunchResponse{}
	resp.Response = h.newResponse(req.Seq, req.Command)
	h.send(resp)
}

func (h *handler) onAttach(req *dap.AttachRequest) {
	h.readLaunchArgs(req.Arguments)
	resp := &dap.AttachResponse{}
	resp.Response = h.newResponse(req.Seq, req.Command)
	h.send(resp)
}

// readLaunchArgs reads the optional stopOnEntry and function settings of a
// launch or attach request.
func (h *handler) readLaunchArgs(raw []byte) {
	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return
	}
	args := gjson.ParseBytes(raw)
	if v := args.Get("stopOnEntry"); v.Exists() {
		h.stopOnEntry = v.Bool()
	}
	h.entry = args.Get("function").String()
}

func (h *handler) onConfigurationDone(req *dap.ConfigurationDoneRequest) {
	resp := &dap.ConfigurationDoneResponse{}
	resp.Response = h.newResponse(req.Seq, req.Command)
	h.send(resp)

	if h.stopOnEntry {
		h.host.Invoke(func() { h.session.RequestPause(debugger.StopEntry) })
	}
	if h.entry == "" {
		return
	}
	id, err := mcfunction.ParseResourceID(h.entry)
	if err != nil {
		h.output("stderr", err.Error()+"\n")
		return
	}
	go func() {
		run, err := h.host.Execute(context.Background(), id, mcfunction.ServerSource(), nil)
		if err != nil {
			h.output("stderr", err.Error()+"\n")
			return
		}
		log.WithFields(log.Fields{"function": id.String(), "status": run.Status().String()}).Debug("Launch function returned")
	}()
}

func (h *handler) onSetBreakpoints(req *dap.SetBreakpointsRequest) {
	src := req.Arguments.Source
	file := src.Path
	if file == "" {
		file = src.Name
	}
	lines := make([]int, len(req.Arguments.Breakpoints))
	for i, bp := range req.Arguments.Breakpoints {
		lines[i] = bp.Line - 1
	}
	var ids []int
	h.host.Invoke(func() { ids = h.session.Breakpoints().SetForPath(file, lines) })
	log.WithFields(log.Fields{"path": file, "lines": len(lines)}).Debug("Breakpoints set")

	resp := &dap.SetBreakpointsResponse{}
	resp.Response = h.newResponse(req.Seq, req.Command)
	resp.Body.Breakpoints = translateBreakpoints(src, req.Arguments.Breakpoints, ids)
	h.send(resp)
}

func (h *handler) onThreads(req *dap.ThreadsRequest) {
	resp := &dap.ThreadsResponse{}
	resp.Response = h.newResponse(req.Seq, req.Command)
	resp.Body.Threads = []dap.Thread{{Id: threadID, Name: "Main Thread"}}
	h.send(resp)
}

func (h *handler) onStackTrace(req *dap.StackTraceRequest) {
	var frames []frameInfo
	h.host.Invoke(func() { frames = snapshotFrames(h.session.CallStack().All()) })
	all := translateStackFrames(frames)

	resp := &dap.StackTraceResponse{}
	resp.Response = h.newResponse(req.Seq, req.Command)
	resp.Body.StackFrames = pageFrames(all, req.Arguments.StartFrame, req.Arguments.Levels)
	resp.Body.TotalFrames = len(all)
	h.send(resp)
}

func (h *handler) onScopes(req *dap.ScopesRequest) {
	var ok bool
	h.host.Invoke(func() { _, ok = h.session.CallStack().ScopeAt(req.Arguments.FrameId) })

	resp := &dap.ScopesResponse{}
	resp.Response = h.newResponse(req.Seq, req.Command)
	resp.Body.Scopes = []dap.Scope{}
	if ok {
		resp.Body.Scopes = append(resp.Body.Scopes, dap.Scope{
			Name:               "Function",
			PresentationHint:   "locals",
			VariablesReference: req.Arguments.FrameId,
		})
	}
	h.send(resp)
}

func (h *handler) onVariables(req *dap.VariablesRequest) {
	ref := req.Arguments.VariablesReference
	var vars []*debugger.Variable
	if ref >= evalRefBase {
		h.mu.Lock()
		if v, ok := h.evalNodes[ref]; ok {
			vars = v.Children
		}
		h.mu.Unlock()
	} else {
		h.host.Invoke(func() { vars, _ = h.session.CallStack().Variables(ref) })
	}

	resp := &dap.VariablesResponse{}
	resp.Response = h.newResponse(req.Seq, req.Command)
	resp.Body.Variables = translateVariables(vars, req.Arguments.Start, req.Arguments.Count)
	h.send(resp)
}

func (h *handler) onEvaluate(req *dap.EvaluateRequest) {
	expr := req.Arguments.Expression
	var v mcfunction.Value
	var err error
	h.host.Invoke(func() {
		src := mcfunction.ServerSource()
		if sc, ok := h.session.Scope(req.Arguments.FrameId); ok {
			src = sc.Source
		}
		v, err = h.host.Eval(expr, src)
	})

	resp := &dap.EvaluateResponse{}
	resp.Response = h.newResponse(req.Seq, req.Command)
	h.dropEval(expr)
	switch {
	case err != nil:
		log.WithField("expression", expr).WithError(err).Debug("Evaluate failed")
		resp.Body.Result = err.Error()
	case v.Kind() == mcfunction.KindCompound:
		root := h.storeEval(expr, v)
		resp.Body.Result = root.Value
		resp.Body.Type = v.Kind().String()
		resp.Body.VariablesReference = root.ID
		resp.Body.NamedVariables = len(root.Children)
	default:
		resp.Body.Result = mcfunction.Text(v)
		resp.Body.Type = v.Kind().String()
	}
	h.send(resp)
}

// dropEval forgets the tree produced by an earlier evaluation of expr.
func (h *handler) dropEval(expr string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	old, ok := h.evalTrees[expr]
	if !ok {
		return
	}
	delete(h.evalTrees, expr)
	old.Walk(func(n *debugger.Variable) { delete(h.evalNodes, n.ID) })
}

func (h *handler) storeEval(expr string, v mcfunction.Value) *debugger.Variable {
	h.mu.Lock()
	defer h.mu.Unlock()
	b := debugger.NewTreeBuilder(h.evalNext)
	root := b.Value("debug", v)
	h.evalNext = b.Next()
	h.evalTrees[expr] = root
	root.Walk(func(n *debugger.Variable) { h.evalNodes[n.ID] = n })
	return root
}

func (h *handler) onSource(req *dap.SourceRequest) {
	var name string
	if src := req.Arguments.Source; src != nil {
		name = src.Path
		if name == "" {
			name = src.Name
		}
	}
	id, ok := mcfunction.FunctionIDFromPath(name)
	var fn *mcfunction.Function
	if ok {
		fn, ok = h.host.Library.Function(id)
	}
	if !ok {
		log.WithField("source", name).Warn("Source not found")
		h.sendDefault(req.Seq, req.Command)
		return
	}
	resp := &dap.SourceResponse{}
	resp.Response = h.newResponse(req.Seq, req.Command)
	resp.Body.Content = fn.Source()
	resp.Body.MimeType = mimeType
	h.send(resp)
}

func (h *handler) onContinue(req *dap.ContinueRequest) {
	resp := &dap.ContinueResponse{}
	resp.Response = h.newResponse(req.Seq, req.Command)
	resp.Body.AllThreadsContinued = true
	h.send(resp)
	h.host.Invoke(h.session.Continue)
}

func (h *handler) step(mode debugger.StepMode) {
	var err error
	h.host.Invoke(func() { err = h.session.Step(mode, 1) })
	if err != nil {
		log.WithField("mode", mode.String()).WithError(err).Warn("Step ignored")
	}
}

func (h *handler) onPause(req *dap.PauseRequest) {
	h.host.Invoke(func() { h.session.RequestPause(debugger.StopPause) })
	resp := &dap.PauseResponse{}
	resp.Response = h.newResponse(req.Seq, req.Command)
	h.send(resp)
}

func (h *handler) onDisconnect(seq int, command string) {
	resp := &dap.DisconnectResponse{}
	resp.Response = h.newResponse(seq, command)
	h.send(resp)
	h.resume()
	h.sendTerminated()
	h.conn.close()
}

// resume runs every paused run to completion or its next stop.
func (h *handler) resume() {
	h.host.Invoke(func() {
		if h.session.Debugging() || h.session.Suspended() > 0 {
			h.session.Continue()
		}
	})
}

// release is called when the connection ends. The host must not stay
// frozen for a client that is gone.
func (h *handler) release() {
	h.unsubscribe()
	h.host.Invoke(func() { h.session.Breakpoints().ClearAll() })
	h.resume()
	h.sendTerminated()
	h.mu.Lock()
	h.evalTrees = make(map[string]*debugger.Variable)
	h.evalNodes = make(map[int]*debugger.Variable)
	h.mu.Unlock()
}

func (h *handler) sendTerminated() {
	h.terminate.Do(func() {
		h.send(&dap.TerminatedEvent{Event: h.newEvent("terminated")})
		exited := &dap.ExitedEvent{Event: h.newEvent("exited")}
		exited.Body.ExitCode = 0
		h.send(exited)
	})
}

func (h *handler) output(category, text string) {
	evt := &dap.OutputEvent{Event: h.newEvent("output")}
	evt.Body.Category = category
	evt.Body.Output = text
	h.send(evt)
}

func (h *handler) sendError(seq int, command, msg string) {
	resp := &dap.ErrorResponse{}
	resp.Response = h.newResponse(seq, command)
	resp.Success = false
	resp.Message = msg
	h.send(resp)
}

// OnStop implements debugger.Listener.
func (h *handler) OnStop(breakpointID int, reason debugger.StopReason) error {
	evt := &dap.StoppedEvent{Event: h.newEvent("stopped")}
	evt.Body.Reason = string(reason)
	evt.Body.ThreadId = threadID
	evt.Body.AllThreadsStopped = true
	if breakpointID > 0 {
		evt.Body.HitBreakpointIds = []int{breakpointID}
	}
	return errors.Wrap(h.conn.send(evt), "stopped event")
}

// OnContinue implements debugger.Listener.
func (h *handler) OnContinue() error {
	evt := &dap.ContinuedEvent{Event: h.newEvent("continued")}
	evt.Body.ThreadId = threadID
	evt.Body.AllThreadsContinued = true
	return errors.Wrap(h.conn.send(evt), "continued event")
}

// OnShutdown implements debugger.Listener.
func (h *handler) OnShutdown() error {
	h.sendTerminated()
	return nil
}

// OnOutput implements debugger.OutputListener.
func (h *handler) OnOutput(category, text string) error {
	h.output(category, text)
	return nil
}

// --- helpers ---

func (h *handler) newResponse(reqSeq int, command string) dap.Response {
	return dap.Response{
		ProtocolMessage: dap.ProtocolMessage{Seq: h.conn.nextSeq(), Type: "response"},
		RequestSeq:      reqSeq,
		Success:         true,
		Command:         command,
	}
}

// sendDefault answers seq with an empty successful response of the type
// command expects. It reports false when the protocol defines no response
// for command.
func (h *handler) sendDefault(seq int, command string) bool {
	raw, err := json.Marshal(&dap.Response{
		ProtocolMessage: dap.ProtocolMessage{Type: "response"},
		Success:         true,
		Command:         command,
	})
	if err != nil {
		return false
	}
	msg, err := dap.DecodeProtocolMessage(raw)
	if err != nil {
		return false
	}
	resp, ok := msg.(dap.ResponseMessage)
	if !ok {
		return false
	}
	*resp.GetResponse() = h.newResponse(seq, command)
	h.send(resp)
	return true
}

func (h *handler) newEvent(event string) dap.Event {
	return dap.Event{
		ProtocolMessage: dap.ProtocolMessage{Seq: h.conn.nextSeq(), Type: "event"},
		Event:           event,
	}
}
