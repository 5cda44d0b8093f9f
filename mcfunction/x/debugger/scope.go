// Copyright © 2018 The ELPS authors

package debugger

import (
	"github.com/luthersystems/sniffer/mcfunction"
)

// Scope is one function invocation on the call stack.
type Scope struct {
	ID        int
	Function  mcfunction.ResourceID
	Location  mcfunction.Location
	Source    mcfunction.CommandSource
	Args      *mcfunction.Compound
	Line      int // 0-indexed cursor, -1 before the first command
	Variables []*Variable
	Parent    *Scope
	RunID     int64

	frame *mcfunction.Frame
}

// Depth returns the number of scopes from the bottom of the stack to s,
// inclusive.
func (s *Scope) Depth() int {
	n := 0
	for sc := s; sc != nil; sc = sc.Parent {
		n++
	}
	return n
}

// CallStack tracks the scopes of running functions. Scope ids and variable
// ids come from one counter so they never collide. The counter only resets
// on Clear, so ids held by a client after a pop fail to resolve instead of
// naming a different node.
//
// A CallStack is not safe for concurrent use.
type CallStack struct {
	current *Scope
	scopes  map[int]*Scope
	nodes   map[int]*Variable
	next    int
}

// NewCallStack returns an empty call stack.
func NewCallStack() *CallStack {
	cs := &CallStack{}
	cs.Clear()
	return cs
}

// Clear drops every scope and resets the id counter.
func (cs *CallStack) Clear() {
	cs.current = nil
	cs.scopes = make(map[int]*Scope)
	cs.nodes = make(map[int]*Variable)
	cs.next = 1
}

// Push creates the scope of frame f executed by the run runID and makes it
// the current scope. The scope's variables are built immediately.
func (cs *CallStack) Push(runID int64, f *mcfunction.Frame) *Scope {
	sc := &Scope{
		ID:       cs.next,
		Function: f.FunctionID(),
		Source:   f.Source,
		Args:     f.Args,
		Line:     -1,
		Parent:   cs.current,
		RunID:    runID,
		frame:    f,
	}
	if f.Function != nil {
		sc.Location = f.Function.Location
	}
	b := NewTreeBuilder(cs.next + 1)
	sc.Variables = b.Context(f.Source, f.Args)
	cs.next = b.Next()
	for _, v := range sc.Variables {
		v.Walk(func(n *Variable) { cs.nodes[n.ID] = n })
	}
	cs.scopes[sc.ID] = sc
	cs.current = sc
	return sc
}

// Pop removes the current scope.
func (cs *CallStack) Pop() *Scope {
	sc := cs.current
	if sc == nil {
		return nil
	}
	cs.remove(sc)
	return sc
}

// PopFrame removes the scope of frame f wherever it is on the stack.
func (cs *CallStack) PopFrame(f *mcfunction.Frame) *Scope {
	sc := cs.ScopeFor(f)
	if sc != nil {
		cs.remove(sc)
	}
	return sc
}

// PopRun removes every scope pushed by the run runID.
func (cs *CallStack) PopRun(runID int64) {
	for _, sc := range cs.All() {
		if sc.RunID == runID {
			cs.remove(sc)
		}
	}
}

func (cs *CallStack) remove(sc *Scope) {
	if cs.current == sc {
		cs.current = sc.Parent
	} else {
		for child := cs.current; child != nil; child = child.Parent {
			if child.Parent == sc {
				child.Parent = sc.Parent
				break
			}
		}
	}
	delete(cs.scopes, sc.ID)
	for _, v := range sc.Variables {
		v.Walk(func(n *Variable) { delete(cs.nodes, n.ID) })
	}
}

// Current returns the innermost scope.
func (cs *CallStack) Current() *Scope {
	return cs.current
}

// ScopeAt returns the live scope with the given id.
func (cs *CallStack) ScopeAt(id int) (*Scope, bool) {
	sc, ok := cs.scopes[id]
	return sc, ok
}

// ScopeFor returns the scope of frame f.
func (cs *CallStack) ScopeFor(f *mcfunction.Frame) *Scope {
	for sc := cs.current; sc != nil; sc = sc.Parent {
		if sc.frame == f {
			return sc
		}
	}
	return nil
}

// All returns every scope, innermost first.
func (cs *CallStack) All() []*Scope {
	var out []*Scope
	for sc := cs.current; sc != nil; sc = sc.Parent {
		out = append(out, sc)
	}
	return out
}

// Len returns the number of scopes.
func (cs *CallStack) Len() int {
	return len(cs.scopes)
}

// Variables resolves a variables reference. The id of a scope yields its
// root variables; the id of a variable node yields its children.
func (cs *CallStack) Variables(id int) ([]*Variable, bool) {
	if sc, ok := cs.scopes[id]; ok {
		return sc.Variables, true
	}
	if v, ok := cs.nodes[id]; ok {
		return v.Children, true
	}
	return nil, false
}
