// Copyright © 2018 The ELPS authors

// Package debugger implements a stepping debugger for mcfunction servers.
// It provides breakpoint management, stepping, call stack tracking and
// variable inspection without any protocol dependencies.
//
// A Session implements mcfunction.Debugger. When it pauses a run the run is
// kept in a LIFO of suspended runs and the server is frozen; the run is
// resumed by Step or Continue.
//
// Concurrency model: hooks are called by the server with its lock held.
// Every other Session method must be called with the same lock held, which
// consumers get by wrapping their calls in Server.Invoke. Only Subscribe
// and the listener list are safe to use without the lock.
package debugger

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/luthersystems/sniffer/diagnostic"
	"github.com/luthersystems/sniffer/mcfunction"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ErrNotDebugging is returned by Step when no run is paused.
var ErrNotDebugging = errors.New("not debugging")

// ErrNotApplicable is returned when an inspected value does not exist in
// the current context, such as the arguments of a call that had none.
var ErrNotApplicable = errors.New("not applicable")

// StopReason describes why execution paused.
type StopReason string

const (
	StopBreakpoint StopReason = "breakpoint"
	StopStep       StopReason = "step"
	StopPause      StopReason = "pause"
	StopEntry      StopReason = "entry"
)

// Host is the scheduler a session freezes while execution is paused.
type Host interface {
	Freeze()
	Unfreeze()
}

// Listener receives session events. Errors are logged and do not affect
// other listeners.
type Listener interface {
	// OnStop is called when execution pauses. breakpointID is -1 unless
	// a breakpoint was hit.
	OnStop(breakpointID int, reason StopReason) error
	OnContinue() error
	OnShutdown() error
}

// OutputListener is implemented by listeners that want diagnostics such as
// a command quota being exhausted.
type OutputListener interface {
	OnOutput(category, text string) error
}

// Session is the debugger state of one server process.
type Session struct {
	host     Host
	registry *Registry
	stack    *CallStack
	step     StepState

	enabled     bool
	debugging   bool
	stopped     bool
	closed      bool
	pauseReason StopReason
	handles     []*mcfunction.Run

	lmu       sync.Mutex
	listeners []Listener
}

var (
	_ mcfunction.Debugger = (*Session)(nil)
	_ mcfunction.Reloader = (*Session)(nil)
)

// Option configures a Session.
type Option func(*Session)

// WithEnabled sets whether the session starts enabled. The default is
// true.
func WithEnabled(enabled bool) Option {
	return func(s *Session) {
		s.enabled = enabled
	}
}

// WithListener subscribes l.
func WithListener(l Listener) Option {
	return func(s *Session) {
		s.listeners = append(s.listeners, l)
	}
}

// New returns a session freezing host while paused.
func New(host Host, opts ...Option) *Session {
	s := &Session{
		host:     host,
		registry: NewRegistry(),
		stack:    NewCallStack(),
		step:     StepState{Mode: StepIn, Anchor: -1},
		enabled:  true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Breakpoints returns the breakpoint registry.
func (s *Session) Breakpoints() *Registry { return s.registry }

// CallStack returns the call stack.
func (s *Session) CallStack() *CallStack { return s.stack }

// StepState returns the active step request.
func (s *Session) StepState() StepState { return s.step }

// IsEnabled implements mcfunction.Debugger.
func (s *Session) IsEnabled() bool {
	return s.enabled && !s.closed
}

// SetEnabled attaches or detaches the session from the server. Disabling
// a paused session runs the suspended runs to completion.
func (s *Session) SetEnabled(enabled bool) {
	s.enabled = enabled
	if enabled {
		return
	}
	if s.debugging || len(s.handles) > 0 {
		s.Continue()
	}
	s.stack.Clear()
}

// Debugging reports whether execution is paused or a step is in progress.
func (s *Session) Debugging() bool { return s.debugging }

// Suspended returns the number of suspended runs.
func (s *Session) Suspended() int { return len(s.handles) }

// Subscribe adds l to the session listeners and returns a function
// removing it.
func (s *Session) Subscribe(l Listener) func() {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	s.listeners = append(s.listeners, l)
	return func() {
		s.lmu.Lock()
		defer s.lmu.Unlock()
		for i, x := range s.listeners {
			if x == l {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// notify calls fn for every listener. A failing or panicking listener is
// logged and does not prevent the others from being called.
func (s *Session) notify(event string, fn func(Listener) error) error {
	s.lmu.Lock()
	listeners := append([]Listener(nil), s.listeners...)
	s.lmu.Unlock()
	var merr *multierror.Error
	for _, l := range listeners {
		if err := callListener(l, fn); err != nil {
			log.WithField("event", event).WithError(err).Error("Debugger listener failed")
			merr = multierror.Append(merr, err)
		}
	}
	return merr.ErrorOrNil()
}

func callListener(l Listener, fn func(Listener) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("listener panic: %v", r)
		}
	}()
	return fn(l)
}

// MustStop reports whether a breakpoint at line of fn should stop
// execution now. It does not stop again at the line the current scope is
// already paused on.
func (s *Session) MustStop(fn mcfunction.ResourceID, line int) bool {
	return s.mustStop(s.stack.Current(), fn, line)
}

func (s *Session) mustStop(sc *Scope, fn mcfunction.ResourceID, line int) bool {
	if !s.registry.Contains(fn, line) {
		return false
	}
	return sc == nil || sc.Function != fn || sc.Line != line
}

// BeforeExecute implements mcfunction.Debugger.
func (s *Session) BeforeExecute(run *mcfunction.Run, e mcfunction.Entry) mcfunction.Decision {
	if e.IsMarker() {
		return mcfunction.Proceed
	}
	if e.Depth > 0 {
		fn, line := e.FunctionID(), e.Line()
		sc := s.stack.ScopeFor(e.Frame)
		hit := s.mustStop(sc, fn, line)
		if sc != nil {
			sc.Line = line
		}
		if hit {
			id, _ := s.registry.IDAt(fn, line)
			log.WithFields(log.Fields{
				"function":   fn.String(),
				"line":       line + 1,
				"breakpoint": id,
			}).Debug("Breakpoint hit")
			s.suspend(run)
			s.triggerBreakpoint(id, StopBreakpoint)
			return mcfunction.Pause
		}
	}
	if s.debugging && e.Depth != 0 && s.step.Remaining == 0 {
		reason := StopStep
		if s.pauseReason != "" {
			reason, s.pauseReason = s.pauseReason, ""
		}
		s.suspend(run)
		s.stop(-1, reason)
		return mcfunction.Pause
	}
	return mcfunction.Proceed
}

// OnCommand implements mcfunction.Debugger.
func (s *Session) OnCommand(run *mcfunction.Run, e mcfunction.Entry, invoked bool) {
	s.consumeCommand(e, invoked)
}

// OnFunctionEnter implements mcfunction.Debugger.
func (s *Session) OnFunctionEnter(run *mcfunction.Run, f *mcfunction.Frame) {
	s.stack.Push(run.ID(), f)
	s.consumeEnter(f)
}

// OnFunctionExit implements mcfunction.Debugger.
func (s *Session) OnFunctionExit(run *mcfunction.Run, f *mcfunction.Frame) {
	s.consumeExit(f)
	s.stack.PopFrame(f)
}

// OnQuotaExceeded implements mcfunction.Debugger. The run is dropped and a
// diagnostic with its call stack is sent to output listeners.
func (s *Session) OnQuotaExceeded(run *mcfunction.Run, e mcfunction.Entry, err error) {
	d, src := s.quotaDiagnostic(run, e, err)
	r := &diagnostic.Renderer{
		Color: diagnostic.ColorNever,
		SourceReader: func(name string) ([]byte, error) {
			if src != nil && name == src.Location.String() {
				return []byte(src.Source()), nil
			}
			return nil, errors.Errorf("no source for %s", name)
		},
	}
	var buf bytes.Buffer
	if rerr := r.Render(&buf, d); rerr != nil {
		log.WithError(rerr).Warn("Unable to render quota diagnostic")
		buf.WriteString(err.Error() + "\n")
	}
	log.WithField("run", run.ID()).Error(err)
	s.stack.PopRun(run.ID())
	s.removeHandle(run)
	s.output("stderr", buf.String())
}

func (s *Session) quotaDiagnostic(run *mcfunction.Run, e mcfunction.Entry, err error) (diagnostic.Diagnostic, *mcfunction.Function) {
	d := diagnostic.Diagnostic{
		Severity: diagnostic.SeverityError,
		Message:  err.Error(),
	}
	fn := e.Frame.Function
	if fn != nil {
		d.Spans = append(d.Spans, diagnostic.Span{
			File:  fn.Location.String(),
			Line:  e.Command.Line + 1,
			Col:   1,
			Label: "command quota exhausted here",
		})
	}
	for _, sc := range s.stack.All() {
		if sc.RunID != run.ID() {
			continue
		}
		d.Notes = append(d.Notes, fmt.Sprintf("in %v at line %d", sc.Function, sc.Line+1))
	}
	return d, fn
}

func (s *Session) output(category, text string) {
	err := s.notify("output", func(l Listener) error {
		if ol, ok := l.(OutputListener); ok {
			return ol.OnOutput(category, text)
		}
		return nil
	})
	if err != nil {
		log.WithError(err).Debug("Output not delivered to every listener")
	}
}

// suspend keeps run so that it can be resumed.
func (s *Session) suspend(run *mcfunction.Run) {
	if n := len(s.handles); n > 0 && s.handles[n-1] == run {
		return
	}
	s.handles = append(s.handles, run)
}

func (s *Session) top() *mcfunction.Run {
	if len(s.handles) == 0 {
		return nil
	}
	return s.handles[len(s.handles)-1]
}

func (s *Session) removeHandle(run *mcfunction.Run) {
	for i := len(s.handles) - 1; i >= 0; i-- {
		if s.handles[i] == run {
			s.handles = append(s.handles[:i], s.handles[i+1:]...)
			return
		}
	}
}

// triggerBreakpoint freezes the host and reports a stop.
func (s *Session) triggerBreakpoint(id int, reason StopReason) {
	s.host.Freeze()
	s.debugging = true
	s.stopped = true
	if err := s.notify("stop", func(l Listener) error { return l.OnStop(id, reason) }); err != nil {
		log.WithError(err).Debug("Stop not delivered to every listener")
	}
}

func (s *Session) stop(id int, reason StopReason) {
	s.step.Remaining = 0
	s.triggerBreakpoint(id, reason)
}

// RequestPause makes the next command stop with reason. Use StopEntry to
// stop at the first command of the next run.
func (s *Session) RequestPause(reason StopReason) {
	s.debugging = true
	s.step.Remaining = 0
	s.pauseReason = reason
}

// Step resumes the most recently suspended run for n steps of the given
// mode. A run that finishes without stopping is dropped and the next
// suspended run stops at the command it was paused on. When nothing is left
// to step, execution continues.
func (s *Session) Step(mode StepMode, n int) error {
	if !s.debugging {
		return ErrNotDebugging
	}
	if n < 1 {
		n = 1
	}
	log.WithFields(log.Fields{"mode": mode.String(), "count": n}).Debug("Step")
	s.step.Mode = mode
	s.step.Remaining = n
	s.stopped = false
	for {
		run := s.top()
		if run == nil {
			s.Continue()
			return nil
		}
		s.stepRun(run)
		if s.stopped {
			return nil
		}
		s.removeHandle(run)
		// The next suspended run stops at its pending command.
		s.step = StepState{Mode: StepIn, Anchor: -1}
		s.debugging = true
	}
}

// Continue unfreezes the host and resumes every suspended run, oldest
// first, until all are done or one stops again.
func (s *Session) Continue() {
	s.host.Unfreeze()
	if err := s.notify("continue", func(l Listener) error { return l.OnContinue() }); err != nil {
		log.WithError(err).Debug("Continue not delivered to every listener")
	}
	s.debugging = false
	s.pauseReason = ""
	s.step.Remaining = 0
	s.step.reset()
	pending := s.handles
	s.handles = nil
	for i, run := range pending {
		if _, err := run.Drain(); err != nil {
			log.WithField("run", run.ID()).WithError(err).Debug("Resumed run aborted")
		}
		if s.debugging {
			s.handles = append(append([]*mcfunction.Run(nil), pending[i+1:]...), s.handles...)
			return
		}
	}
}

// Shutdown notifies listeners and then drops all state. Calls after the
// first do nothing.
func (s *Session) Shutdown() {
	if s.closed {
		return
	}
	s.closed = true
	if err := s.notify("shutdown", func(l Listener) error { return l.OnShutdown() }); err != nil {
		log.WithError(err).Debug("Shutdown not delivered to every listener")
	}
	s.clear()
	s.lmu.Lock()
	s.listeners = nil
	s.lmu.Unlock()
	s.host.Unfreeze()
}

// Reset drops breakpoints, suspended runs and the call stack without
// notifying listeners, and unfreezes the host.
func (s *Session) Reset() {
	s.clear()
	s.host.Unfreeze()
}

// OnReload resets the session when the server reloads its functions.
func (s *Session) OnReload() {
	log.Debug("Debugger reset on reload")
	s.Reset()
}

func (s *Session) clear() {
	s.registry.ClearAll()
	s.stack.Clear()
	s.handles = nil
	s.debugging = false
	s.stopped = false
	s.pauseReason = ""
	s.step = StepState{Mode: StepIn, Anchor: -1}
}

// Scope returns the scope with the given id, or the current scope when id
// is 0.
func (s *Session) Scope(id int) (*Scope, bool) {
	if id == 0 {
		sc := s.stack.Current()
		return sc, sc != nil
	}
	return s.stack.ScopeAt(id)
}

// Arguments returns the macro arguments of scope id.
func (s *Session) Arguments(id int) (*mcfunction.Compound, error) {
	sc, ok := s.Scope(id)
	if !ok {
		return nil, errors.Errorf("no scope %d", id)
	}
	if sc.Args == nil {
		log.WithField("scope", sc.ID).Debug("Scope has no macro arguments")
		return nil, ErrNotApplicable
	}
	return sc.Args, nil
}
