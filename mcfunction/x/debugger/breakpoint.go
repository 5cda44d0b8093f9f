// Copyright © 2018 The ELPS authors

package debugger

import (
	"sort"
	"sync"

	"github.com/luthersystems/sniffer/mcfunction"
)

// Breakpoint is a line of a function at which execution pauses. Line is
// 0-indexed.
type Breakpoint struct {
	ID   int
	Line int
}

// FunctionBreakpoints are the breakpoints set for one source path.
type FunctionBreakpoints struct {
	Path     string
	Function mcfunction.ResourceID
	byLine   map[int]*Breakpoint
}

// Lines returns the breakpoint lines in ascending order.
func (fb *FunctionBreakpoints) Lines() []int {
	lines := make([]int, 0, len(fb.byLine))
	for line := range fb.byLine {
		lines = append(lines, line)
	}
	sort.Ints(lines)
	return lines
}

// Registry stores breakpoints per source path and answers lookups by
// function id and line in constant time. Ids are never reused. All methods
// are safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	byPath     map[string]*FunctionBreakpoints
	byFunction map[mcfunction.ResourceID]map[int]*Breakpoint
	nextID     int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byPath:     make(map[string]*FunctionBreakpoints),
		byFunction: make(map[mcfunction.ResourceID]map[int]*Breakpoint),
	}
}

// Register adds a breakpoint at line of the function stored at path. The
// result is false when path does not name a function source.
func (r *Registry) Register(path string, line int) (int, bool) {
	id, ok := mcfunction.FunctionIDFromPath(path)
	if !ok {
		return 0, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fb, ok := r.byPath[path]
	if !ok {
		fb = &FunctionBreakpoints{Path: path, Function: id, byLine: make(map[int]*Breakpoint)}
		r.byPath[path] = fb
	}
	if bp, ok := fb.byLine[line]; ok {
		return bp.ID, true
	}
	r.nextID++
	bp := &Breakpoint{ID: r.nextID, Line: line}
	fb.byLine[line] = bp
	lines := r.byFunction[id]
	if lines == nil {
		lines = make(map[int]*Breakpoint)
		r.byFunction[id] = lines
	}
	lines[line] = bp
	return bp.ID, true
}

// SetForPath replaces every breakpoint of path with one per line. The
// returned slice holds the id of each line, or 0 for lines that could not
// be registered.
func (r *Registry) SetForPath(path string, lines []int) []int {
	r.Clear(path)
	ids := make([]int, len(lines))
	for i, line := range lines {
		if id, ok := r.Register(path, line); ok {
			ids[i] = id
		}
	}
	return ids
}

// Contains reports whether a breakpoint is set at line of fn.
func (r *Registry) Contains(fn mcfunction.ResourceID, line int) bool {
	_, ok := r.IDAt(fn, line)
	return ok
}

// IDAt returns the id of the breakpoint at line of fn.
func (r *Registry) IDAt(fn mcfunction.ResourceID, line int) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bp, ok := r.byFunction[fn][line]
	if !ok {
		return 0, false
	}
	return bp.ID, true
}

// Clear removes every breakpoint of path.
func (r *Registry) Clear(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fb, ok := r.byPath[path]
	if !ok {
		return
	}
	delete(r.byPath, path)
	lines := r.byFunction[fb.Function]
	for line, bp := range fb.byLine {
		if lines[line] == bp {
			delete(lines, line)
		}
	}
	if len(lines) == 0 {
		delete(r.byFunction, fb.Function)
	}
}

// ClearAll removes every breakpoint. Ids keep increasing.
func (r *Registry) ClearAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byPath = make(map[string]*FunctionBreakpoints)
	r.byFunction = make(map[mcfunction.ResourceID]map[int]*Breakpoint)
}

// Paths returns a snapshot of the breakpoints of every path, sorted by
// path.
func (r *Registry) Paths() []*FunctionBreakpoints {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*FunctionBreakpoints, 0, len(r.byPath))
	for _, fb := range r.byPath {
		cp := &FunctionBreakpoints{Path: fb.Path, Function: fb.Function, byLine: make(map[int]*Breakpoint, len(fb.byLine))}
		for line, bp := range fb.byLine {
			cp.byLine[line] = bp
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
