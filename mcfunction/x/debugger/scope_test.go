// Copyright © 2018 The ELPS authors

package debugger

import (
	"testing"

	"github.com/luthersystems/sniffer/mcfunction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFrame(t *testing.T, id string, depth int) *mcfunction.Frame {
	t.Helper()
	fn, err := mcfunction.NewLibrary().AddSource(mcfunction.MustParseResourceID(id), "say hi")
	require.NoError(t, err)
	return &mcfunction.Frame{Function: fn, Source: mcfunction.ServerSource(), Depth: depth}
}

func liveIDs(cs *CallStack) (scopes, vars map[int]bool) {
	scopes, vars = map[int]bool{}, map[int]bool{}
	for _, sc := range cs.All() {
		scopes[sc.ID] = true
		for _, v := range sc.Variables {
			v.Walk(func(n *Variable) { vars[n.ID] = true })
		}
	}
	return scopes, vars
}

func TestCallStackPushPop(t *testing.T) {
	cs := NewCallStack()
	a := cs.Push(1, testFrame(t, "ns:a", 1))
	b := cs.Push(1, testFrame(t, "ns:b", 2))
	assert.Equal(t, b, cs.Current())
	assert.Equal(t, a, b.Parent)
	assert.Equal(t, 2, b.Depth())
	assert.Equal(t, -1, b.Line)
	assert.Equal(t, "data/ns/function/b.mcfunction", b.Location.Path)

	all := cs.All()
	require.Len(t, all, 2)
	assert.Equal(t, "ns:b", all[0].Function.String())
	assert.Equal(t, "ns:a", all[1].Function.String())

	assert.Equal(t, b, cs.Pop())
	assert.Equal(t, a, cs.Current())
	_, ok := cs.ScopeAt(b.ID)
	assert.False(t, ok)
	assert.Equal(t, a, cs.Pop())
	assert.Nil(t, cs.Pop())
}

func TestCallStackIDsDisjoint(t *testing.T) {
	cs := NewCallStack()
	for i := 0; i < 4; i++ {
		cs.Push(1, testFrame(t, "ns:f", i+1))
	}
	cs.Pop()
	cs.Push(2, testFrame(t, "ns:g", 4))
	scopes, vars := liveIDs(cs)
	for id := range scopes {
		assert.False(t, vars[id], "id %d is both a scope and a variable", id)
	}
	assert.Len(t, scopes, 4)
}

func TestCallStackVariables(t *testing.T) {
	cs := NewCallStack()
	sc := cs.Push(1, testFrame(t, "ns:a", 1))

	roots, ok := cs.Variables(sc.ID)
	require.True(t, ok)
	require.Len(t, roots, 2)
	assert.Equal(t, "executor", roots[0].Name)

	loc := roots[1]
	children, ok := cs.Variables(loc.ID)
	require.True(t, ok)
	assert.Len(t, children, 3)

	cs.Pop()
	_, ok = cs.Variables(loc.ID)
	assert.False(t, ok, "popped ids do not resolve")

	next := cs.Push(1, testFrame(t, "ns:b", 1))
	assert.Greater(t, next.ID, loc.ID, "ids are not reused after a pop")
}

func TestCallStackPopRunAndFrame(t *testing.T) {
	cs := NewCallStack()
	outer := cs.Push(1, testFrame(t, "ns:a", 1))
	f := testFrame(t, "ns:b", 2)
	cs.Push(1, f)
	other := cs.Push(2, testFrame(t, "ns:c", 1))

	assert.Equal(t, "ns:b", cs.ScopeFor(f).Function.String())
	cs.PopFrame(f)
	assert.Nil(t, cs.ScopeFor(f))
	assert.Equal(t, outer, other.Parent)

	cs.PopRun(1)
	assert.Equal(t, []*Scope{other}, cs.All())
	assert.Nil(t, other.Parent)
}

func TestCallStackClearResetsCounter(t *testing.T) {
	cs := NewCallStack()
	first := cs.Push(1, testFrame(t, "ns:a", 1))
	cs.Clear()
	assert.Equal(t, 0, cs.Len())
	again := cs.Push(1, testFrame(t, "ns:a", 1))
	assert.Equal(t, first.ID, again.ID)
}
