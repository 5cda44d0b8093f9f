// Copyright © 2018 The ELPS authors

package mcfunction

// Decision is the answer of a Debugger to a unit of work about to run.
type Decision int

const (
	// Proceed executes the unit.
	Proceed Decision = iota
	// Pause pushes the unit back and suspends the run.
	Pause
)

// Debugger is called by a Run at key execution points to support
// breakpoints and stepping. When Server.Debugger is nil no hook calls are
// made.
//
// Hook calls use a two-check gate:
//
//	if d := s.Debugger; d != nil && d.IsEnabled() { ... }
//
// IsEnabled lets a debugger stay attached but dormant.
type Debugger interface {
	// IsEnabled returns true when the debugger wants hook calls.
	IsEnabled() bool

	// BeforeExecute is called by Run.Drain for every unit dequeued, before
	// it executes. Returning Pause leaves the unit at the front of the run
	// and suspends the run. The debugger is responsible for keeping the
	// run so that it can be resumed.
	BeforeExecute(run *Run, e Entry) Decision

	// OnCommand is called after a command unit executed. invoked reports
	// whether the command queued one or more function calls.
	OnCommand(run *Run, e Entry, invoked bool)

	// OnFunctionEnter is called when the enter marker of a frame executes.
	OnFunctionEnter(run *Run, f *Frame)

	// OnFunctionExit is called when the exit marker of a frame executes.
	OnFunctionExit(run *Run, f *Frame)

	// OnQuotaExceeded is called when run exhausted its command quota on
	// e. The run is already aborted.
	OnQuotaExceeded(run *Run, e Entry, err error)
}

// Reloader is implemented by a Debugger that drops its state when the
// server reloads its functions.
type Reloader interface {
	OnReload()
}

// Profiler observes function invocations.
type Profiler interface {
	// Is the profiler enabled?
	IsEnabled() bool
	// Enable the profiler
	Enable() error
	// End the profiling session
	Complete() error
	// Marks the start of a function invocation
	Start(fn *Function)
	// Marks the end of a function invocation
	End(fn *Function)
}
