// Copyright © 2018 The ELPS authors

package debugger

import (
	"testing"

	"github.com/luthersystems/sniffer/mcfunction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fooPath = "data/ns/function/foo.mcfunction"

var fooID = mcfunction.MustParseResourceID("ns:foo")

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry()
	id, ok := r.Register(fooPath, 4)
	require.True(t, ok)
	assert.Equal(t, 1, id)
	assert.True(t, r.Contains(fooID, 4))
	assert.False(t, r.Contains(fooID, 3))

	got, ok := r.IDAt(fooID, 4)
	require.True(t, ok)
	assert.Equal(t, id, got)

	again, ok := r.Register(fooPath, 4)
	require.True(t, ok)
	assert.Equal(t, id, again, "same line keeps its id")
}

func TestRegistryPathShapes(t *testing.T) {
	tests := []struct {
		path string
		fn   string
		ok   bool
	}{
		{"data/ns/function/foo.mcfunction", "ns:foo", true},
		{"/home/me/pack/data/ns/functions/a/b.mcfunction", "ns:a/b", true},
		{`C:\pack\data\ns\function\tick.mcfunction`, "ns:tick", true},
		{"pack.zip!/data/ns/function/foo.mcfunction", "ns:foo", true},
		{"data/ns/foo.mcfunction", "", false},
		{"data/ns/function/foo.txt", "", false},
		{"src/main.go", "", false},
	}
	for _, tc := range tests {
		r := NewRegistry()
		_, ok := r.Register(tc.path, 0)
		assert.Equal(t, tc.ok, ok, tc.path)
		if tc.ok {
			assert.True(t, r.Contains(mcfunction.MustParseResourceID(tc.fn), 0), tc.path)
		}
	}
}

func TestRegistryClear(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Register(fooPath, 4)
	require.True(t, ok)
	r.Clear(fooPath)
	assert.False(t, r.Contains(fooID, 4))
	assert.Empty(t, r.Paths())

	r.Clear("data/ns/function/unknown.mcfunction")
}

func TestRegistrySetForPathReplaces(t *testing.T) {
	r := NewRegistry()
	first := r.SetForPath(fooPath, []int{1, 2})
	second := r.SetForPath(fooPath, []int{5, 6})

	for _, id := range first {
		for _, line := range []int{1, 2, 5, 6} {
			got, ok := r.IDAt(fooID, line)
			if ok {
				assert.NotEqual(t, id, got)
			}
		}
	}
	assert.False(t, r.Contains(fooID, 1))
	assert.False(t, r.Contains(fooID, 2))
	assert.True(t, r.Contains(fooID, 5))
	assert.True(t, r.Contains(fooID, 6))
	assert.Equal(t, []int{3, 4}, second, "ids are never reused")

	paths := r.Paths()
	require.Len(t, paths, 1)
	assert.Equal(t, []int{5, 6}, paths[0].Lines())
	assert.Equal(t, fooID, paths[0].Function)
}

func TestRegistrySetForPathUnverified(t *testing.T) {
	r := NewRegistry()
	ids := r.SetForPath("notes/readme.md", []int{1, 2})
	assert.Equal(t, []int{0, 0}, ids)
	assert.Empty(t, r.Paths())
}

func TestRegistryClearAllKeepsCounting(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Register(fooPath, 1)
	require.True(t, ok)
	r.ClearAll()
	assert.False(t, r.Contains(fooID, 1))
	id, ok := r.Register(fooPath, 1)
	require.True(t, ok)
	assert.Equal(t, 2, id)
}

func TestRegistryClearKeepsOtherPaths(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Register(fooPath, 1)
	require.True(t, ok)
	bar := "data/ns/function/bar.mcfunction"
	_, ok = r.Register(bar, 1)
	require.True(t, ok)
	r.Clear(fooPath)
	assert.False(t, r.Contains(fooID, 1))
	assert.True(t, r.Contains(mcfunction.MustParseResourceID("ns:bar"), 1))
}
