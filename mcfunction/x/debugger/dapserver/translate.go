// Copyright © 2018 The ELPS authors

package dapserver

import (
	"path"
	"sort"

	"github.com/google/go-dap"
	"github.com/luthersystems/sniffer/mcfunction"
	"github.com/luthersystems/sniffer/mcfunction/x/debugger"
)

// threadID is the single thread reported to clients. Functions run on the
// server's one execution thread.
const threadID = 1

// evalRefBase is the first variables reference handed out for evaluate
// results. Call stack references stay below it.
const evalRefBase = 1_000_000_000

// defaultLevels is the stack trace depth returned when the client does not
// ask for a specific number of frames.
const defaultLevels = 1000

// mimeType is reported for function sources.
const mimeType = "text/mcfunction"

// frameInfo is a copy of the scope fields needed for a stack frame, taken
// while holding the server lock.
type frameInfo struct {
	id       int
	function mcfunction.ResourceID
	location mcfunction.Location
	line     int
}

func snapshotFrames(scopes []*debugger.Scope) []frameInfo {
	frames := make([]frameInfo, len(scopes))
	for i, sc := range scopes {
		frames[i] = frameInfo{id: sc.ID, function: sc.Function, location: sc.Location, line: sc.Line}
	}
	return frames
}

// translateStackFrames converts call stack scopes, innermost first, to DAP
// frames. Lines are 1-based.
func translateStackFrames(frames []frameInfo) []dap.StackFrame {
	out := make([]dap.StackFrame, len(frames))
	for i, f := range frames {
		line := f.line + 1
		if line < 1 {
			line = 1
		}
		out[i] = dap.StackFrame{
			Id:     f.id,
			Name:   f.function.String(),
			Source: translateSource(f.location),
			Line:   line,
			Column: 1,
		}
	}
	return out
}

// translateSource describes where a function's source lives. Archive
// members cannot be opened by path so the client fetches them with a
// source request.
func translateSource(loc mcfunction.Location) *dap.Source {
	if loc.InArchive() {
		return &dap.Source{
			Name:            loc.String(),
			SourceReference: 1,
		}
	}
	return &dap.Source{
		Name: path.Base(loc.Path),
		Path: loc.Path,
	}
}

// pageFrames applies the start and levels arguments of a stack trace
// request.
func pageFrames(frames []dap.StackFrame, start, levels int) []dap.StackFrame {
	if levels <= 0 {
		levels = defaultLevels
	}
	if start < 0 {
		start = 0
	}
	if start > len(frames) {
		start = len(frames)
	}
	end := len(frames)
	if start+levels < end {
		end = start + levels
	}
	return frames[start:end]
}

// translateVariables sorts vars by id, applies the start and count
// arguments of a variables request and converts the result.
func translateVariables(vars []*debugger.Variable, start, count int) []dap.Variable {
	sorted := append([]*debugger.Variable(nil), vars...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	if start < 0 {
		start = 0
	}
	if start > len(sorted) {
		start = len(sorted)
	}
	sorted = sorted[start:]
	if count > 0 && count < len(sorted) {
		sorted = sorted[:count]
	}
	out := make([]dap.Variable, len(sorted))
	for i, v := range sorted {
		out[i] = translateVariable(v)
	}
	return out
}

func translateVariable(v *debugger.Variable) dap.Variable {
	dv := dap.Variable{
		Name:  v.Name,
		Value: v.Value,
	}
	if v.HasChildren() {
		dv.VariablesReference = v.ID
		dv.IndexedVariables = len(v.Children)
	}
	return dv
}

// translateBreakpoints builds the setBreakpoints response entries. ids
// holds the registered id of each requested line or 0 when the path could
// not be mapped to a function.
func translateBreakpoints(src dap.Source, requested []dap.SourceBreakpoint, ids []int) []dap.Breakpoint {
	out := make([]dap.Breakpoint, len(requested))
	for i, bp := range requested {
		s := src
		out[i] = dap.Breakpoint{
			Id:       ids[i],
			Verified: ids[i] != 0,
			Source:   &s,
			Line:     bp.Line,
		}
		if ids[i] == 0 {
			out[i].Message = "failed: not a function source in data/<namespace>/function"
		}
	}
	return out
}
