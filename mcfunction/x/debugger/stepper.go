// Copyright © 2018 The ELPS authors

package debugger

import (
	"github.com/luthersystems/sniffer/mcfunction"
)

// StepMode is the granularity of a step request.
type StepMode int

const (
	// StepIn stops at the next command, entering calls.
	StepIn StepMode = iota
	// StepOver stops at the next command at the same or a shallower depth.
	StepOver
	// StepOut stops at the first command after the current function
	// returns.
	StepOut
)

func (m StepMode) String() string {
	switch m {
	case StepOver:
		return "over"
	case StepOut:
		return "out"
	default:
		return "in"
	}
}

// StepState is the progress of the active step request. Anchor is the
// depth the request started at, or -1 while unset.
type StepState struct {
	Mode      StepMode
	Remaining int
	Anchor    int
}

func (st *StepState) reset() {
	st.Mode = StepIn
	st.Anchor = -1
}

// isLast reports whether e ends an outermost function of its run. A load
// or tick run may hold several outermost functions back to back, so a step
// that reaches the marker near its anchor becomes a plain step in that stops
// at the next command of the run, whatever function it belongs to.
func isLast(e mcfunction.Entry) bool {
	return e.Kind == mcfunction.ActionExit && e.Depth <= 1
}

// stepRun executes units of run until the step request completes and the
// run is suspended, or until the run has no more work.
func (s *Session) stepRun(run *mcfunction.Run) {
	st := &s.step
	for {
		// Over and out compare the depth of the peeked unit with the anchor
		// rather than the depth of the last executed one. The anchor is
		// recaptured on every unit while the step is debugging, not only
		// when debugging first turns on, so a step that climbs out of a
		// frame measures from where it landed.
		if st.Mode != StepIn && (st.Anchor == -1 || s.debugging) {
			st.Anchor = run.Depth()
		}
		e, ok := run.Peek()
		if !ok {
			return
		}
		if e.Kind == mcfunction.ActionCommand {
			if sc := s.stack.ScopeFor(e.Frame); sc != nil && e.Line() >= 0 {
				sc.Line = e.Line()
			}
		}
		last := isLast(e)
		if last && (st.Anchor == -1 || e.Depth >= st.Anchor-1) {
			st.reset()
			st.Remaining = 0
			s.debugging = true
		}
		switch st.Mode {
		case StepOver:
			s.debugging = e.Depth <= st.Anchor
		case StepOut:
			s.debugging = last || e.Depth < st.Anchor
		}
		if s.debugging && e.Depth != 0 && !e.IsMarker() && st.Remaining == 0 {
			s.suspend(run)
			if st.Mode != StepIn {
				st.reset()
			}
			s.stop(-1, StopStep)
			return
		}
		run.Poll()
		if err := run.Execute(e); err != nil {
			return
		}
	}
}

// consumeCommand counts an executed command against the step request. Call
// sites are not counted; the enter marker of the callee is.
func (s *Session) consumeCommand(e mcfunction.Entry, invoked bool) {
	st := &s.step
	if invoked || e.Depth == 0 || !s.debugging || st.Remaining <= 0 || st.Mode == StepOut {
		return
	}
	st.Remaining--
}

func (s *Session) consumeEnter(f *mcfunction.Frame) {
	st := &s.step
	if st.Remaining <= 0 || st.Mode == StepOut {
		return
	}
	if st.Mode == StepIn && !s.debugging {
		return
	}
	if st.Mode == StepOver && f.Depth != st.Anchor+1 {
		return
	}
	st.Remaining--
}

func (s *Session) consumeExit(f *mcfunction.Frame) {
	st := &s.step
	if st.Remaining > 0 && st.Mode == StepOut && f.Depth <= st.Anchor {
		st.Remaining--
	}
}
