// Copyright © 2018 The ELPS authors

package mcfunction

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ErrQuotaExceeded is returned when a run executes more commands than the
// server's MaxCommandChainLength.
var ErrQuotaExceeded = errors.New("command quota exceeded")

// ActionKind classifies a unit of work in a run.
type ActionKind int

const (
	// ActionCommand executes one command line.
	ActionCommand ActionKind = iota
	// ActionEnter marks the start of a function invocation.
	ActionEnter
	// ActionExit marks the end of a function invocation.
	ActionExit
)

func (k ActionKind) String() string {
	switch k {
	case ActionEnter:
		return "enter"
	case ActionExit:
		return "exit"
	default:
		return "command"
	}
}

// Frame is one function invocation. Frames of depth zero hold commands
// issued directly to the server and have no Function.
type Frame struct {
	Function *Function
	Source   CommandSource
	Args     *Compound
	Depth    int
	Result   Value
	// Line is the 0-indexed line of the command the frame executed last.
	Line int
}

// FunctionID returns the id of the invoked function, or the zero id for a
// frame of direct commands.
func (f *Frame) FunctionID() ResourceID {
	if f.Function == nil {
		return ResourceID{}
	}
	return f.Function.ID
}

// Entry is a unit of work queued in a run.
type Entry struct {
	Kind    ActionKind
	Depth   int
	Frame   *Frame
	Command Command
}

// IsMarker reports whether e is a function enter or exit marker.
func (e Entry) IsMarker() bool {
	return e.Kind != ActionCommand
}

// Line returns the 0-indexed source line of a command, or -1 for markers
// and direct commands.
func (e Entry) Line() int {
	if e.IsMarker() || e.Frame.Function == nil {
		return -1
	}
	return e.Command.Line
}

// FunctionID returns the id of the function owning e.
func (e Entry) FunctionID() ResourceID {
	return e.Frame.FunctionID()
}

func (e Entry) String() string {
	switch e.Kind {
	case ActionCommand:
		if e.Frame.Function == nil {
			return fmt.Sprintf("[%d] %s", e.Depth, e.Command.Text)
		}
		return fmt.Sprintf("[%d] %v:%d %s", e.Depth, e.FunctionID(), e.Command.Line+1, e.Command.Text)
	default:
		return fmt.Sprintf("[%d] %s %v", e.Depth, e.Kind, e.FunctionID())
	}
}

// RunStatus is the state of a run after draining.
type RunStatus int

const (
	RunPending RunStatus = iota
	RunCompleted
	RunSuspended
	RunAborted
)

func (s RunStatus) String() string {
	switch s {
	case RunCompleted:
		return "completed"
	case RunSuspended:
		return "suspended"
	case RunAborted:
		return "aborted"
	default:
		return "pending"
	}
}

// Run is a queue of pending work started by one server invocation. A run
// that was suspended by its Debugger keeps its queue intact and can be
// resumed with Drain, or driven one unit at a time with Poll and Execute.
//
// A run is not safe for concurrent use. Callers hold the server lock, see
// Server.Invoke.
type Run struct {
	id        int64
	server    *Server
	ctx       context.Context
	queue     []Entry
	remaining int
	depth     int
	frames    []*Frame
	status    RunStatus
	err       error
}

func newRun(ctx context.Context, s *Server) *Run {
	return &Run{
		id:        s.nextRunID.Add(1),
		server:    s,
		ctx:       ctx,
		remaining: s.MaxCommandChainLength,
	}
}

// ID returns the run's unique id.
func (r *Run) ID() int64 { return r.id }

// Server returns the server executing r.
func (r *Run) Server() *Server { return r.server }

// Status returns the state of r. A run stepped to its end by a debugger
// is completed even though Drain never saw it finish.
func (r *Run) Status() RunStatus {
	switch {
	case r.err != nil:
		return RunAborted
	case len(r.queue) == 0 && r.status != RunPending:
		return RunCompleted
	}
	return r.status
}

// Err returns the error that aborted r, if any.
func (r *Run) Err() error { return r.err }

// Depth returns the depth of the last executed unit.
func (r *Run) Depth() int { return r.depth }

// Frames returns the function invocations in progress, innermost first.
func (r *Run) Frames() []*Frame {
	out := make([]*Frame, 0, len(r.frames))
	for i := len(r.frames) - 1; i >= 0; i-- {
		out = append(out, r.frames[i])
	}
	return out
}

// Remaining returns the number of commands r may still execute.
func (r *Run) Remaining() int { return r.remaining }

// Len returns the number of queued units.
func (r *Run) Len() int { return len(r.queue) }

// Done reports whether r has no more work or was aborted.
func (r *Run) Done() bool {
	return r.err != nil || len(r.queue) == 0
}

// Peek returns the next unit without removing it.
func (r *Run) Peek() (Entry, bool) {
	if r.err != nil || len(r.queue) == 0 {
		return Entry{}, false
	}
	return r.queue[0], true
}

// Poll removes and returns the next unit.
func (r *Run) Poll() (Entry, bool) {
	e, ok := r.Peek()
	if !ok {
		return e, false
	}
	r.queue[0] = Entry{}
	r.queue = r.queue[1:]
	return e, true
}

// PushFront queues entries ahead of all pending work, in order.
func (r *Run) PushFront(entries ...Entry) {
	if len(entries) == 0 {
		return
	}
	q := make([]Entry, 0, len(entries)+len(r.queue))
	q = append(q, entries...)
	r.queue = append(q, r.queue...)
}

func (r *Run) pushBack(entries ...Entry) {
	r.queue = append(r.queue, entries...)
}

// invocation returns the units of one call of fn: the enter marker, every
// command and the exit marker, all at depth.
func invocation(fn *Function, src CommandSource, args *Compound, depth int) []Entry {
	f := &Frame{Function: fn, Source: src, Args: args, Depth: depth}
	entries := make([]Entry, 0, len(fn.Commands)+2)
	entries = append(entries, Entry{Kind: ActionEnter, Depth: depth, Frame: f})
	for _, cmd := range fn.Commands {
		entries = append(entries, Entry{Kind: ActionCommand, Depth: depth, Frame: f, Command: cmd})
	}
	return append(entries, Entry{Kind: ActionExit, Depth: depth, Frame: f})
}

func (r *Run) debugger() Debugger {
	if d := r.server.Debugger; d != nil && d.IsEnabled() {
		return d
	}
	return nil
}

// Drain executes queued units until the run completes, its debugger
// pauses it or it is aborted.
func (r *Run) Drain() (RunStatus, error) {
	for {
		if r.err != nil {
			r.status = RunAborted
			return r.status, r.err
		}
		if err := r.ctx.Err(); err != nil {
			r.fail(err)
			continue
		}
		e, ok := r.Poll()
		if !ok {
			r.status = RunCompleted
			return r.status, nil
		}
		if d := r.debugger(); d != nil && d.BeforeExecute(r, e) == Pause {
			r.PushFront(e)
			r.status = RunSuspended
			return r.status, nil
		}
		if err := r.Execute(e); err != nil {
			r.status = RunAborted
			return r.status, err
		}
	}
}

// Execute runs a single unit. Command failures are reported to the
// server output and do not stop the run. The returned error is non-nil
// only when the run was aborted.
func (r *Run) Execute(e Entry) error {
	if r.err != nil {
		return r.err
	}
	r.depth = e.Depth
	switch e.Kind {
	case ActionEnter:
		r.frames = append(r.frames, e.Frame)
		if p := r.server.profiler(); p != nil {
			p.Start(e.Frame.Function)
		}
		if d := r.debugger(); d != nil {
			d.OnFunctionEnter(r, e.Frame)
		}
	case ActionExit:
		if n := len(r.frames); n > 0 && r.frames[n-1] == e.Frame {
			r.frames = r.frames[:n-1]
		}
		if d := r.debugger(); d != nil {
			d.OnFunctionExit(r, e.Frame)
		}
		if p := r.server.profiler(); p != nil {
			p.End(e.Frame.Function)
		}
	default:
		if r.remaining <= 0 {
			err := errors.Wrapf(ErrQuotaExceeded, "%v line %d", e.FunctionID(), e.Command.Line+1)
			r.fail(err)
			if d := r.debugger(); d != nil {
				d.OnQuotaExceeded(r, e, err)
			}
			return err
		}
		r.remaining--
		e.Frame.Line = e.Command.Line
		invoked, err := r.command(e)
		if err != nil {
			log.WithFields(log.Fields{
				"function": e.FunctionID().String(),
				"line":     e.Command.Line + 1,
			}).Debugf("Command failed: %v", err)
			r.server.printf("%v\n", err)
		}
		if d := r.debugger(); d != nil {
			d.OnCommand(r, e, invoked)
		}
	}
	return nil
}

func (r *Run) fail(err error) {
	if r.err == nil {
		r.err = err
	}
	r.status = RunAborted
	r.queue = nil
}

// Abort stops r permanently with err.
func (r *Run) Abort(err error) {
	r.fail(err)
}

// command executes the text of e and queues the calls it makes.
func (r *Run) command(e Entry) (bool, error) {
	text, err := e.Command.Expand(e.Frame.Args)
	if err != nil {
		return false, err
	}
	cx := &commandContext{run: r, entry: e, frame: e.Frame, source: e.Frame.Source}
	err = r.server.dispatch(cx, text)
	if cx.returned {
		r.unwind(e.Frame)
	}
	r.PushFront(cx.calls...)
	return len(cx.calls) > 0, err
}

// unwind drops the pending commands of f after a return. Its exit marker
// stays queued.
func (r *Run) unwind(f *Frame) {
	i := 0
	for i < len(r.queue) && r.queue[i].Frame == f && r.queue[i].Kind == ActionCommand {
		i++
	}
	r.queue = r.queue[i:]
}
