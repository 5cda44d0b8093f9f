// Copyright © 2018 The ELPS authors

package mcfunction

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePath(t *testing.T) {
	p, err := ParsePath(`a.b[0]."odd key"[-1]`)
	require.NoError(t, err)
	assert.Equal(t, Path{
		{Key: "a"},
		{Key: "b"},
		{Index: 0, IsIndex: true},
		{Key: "odd key"},
		{Index: -1, IsIndex: true},
	}, p)
	assert.Equal(t, `a.b[0]."odd key"[-1]`, p.String())

	for _, text := range []string{"", "a.", "a[x]", "a b"} {
		_, err := ParsePath(text)
		assert.Error(t, err, text)
	}
}

func TestPathGet(t *testing.T) {
	root := MustParseSNBT(`{a:{b:[10,20,30]},arr:[L;7,8]}`)
	tests := []struct {
		path string
		want string
	}{
		{"a", "{b:[10,20,30]}"},
		{"a.b[1]", "20"},
		{"a.b[-1]", "30"},
		{"arr[1]", "8L"},
	}
	for _, tc := range tests {
		v, err := mustPath(t, tc.path).Get(root)
		if assert.NoError(t, err, tc.path) {
			assert.Equal(t, tc.want, v.String(), tc.path)
		}
	}

	for _, path := range []string{"missing", "a.b[3]", "a.b.c", "arr[-3]"} {
		_, err := mustPath(t, path).Get(root)
		assert.True(t, errors.Is(err, ErrNoSuchPath), path)
	}
}

func TestPathSet(t *testing.T) {
	root := NewCompound()
	require.NoError(t, mustPath(t, "a.b.c").Set(root, Int(1)))
	assert.Equal(t, "{a:{b:{c:1}}}", root.String())

	require.NoError(t, mustPath(t, "l").Set(root, MustParseSNBT("[1,2]")))
	require.NoError(t, mustPath(t, "l[0]").Set(root, Int(5)))
	assert.Equal(t, "{a:{b:{c:1}},l:[5,2]}", root.String())

	err := mustPath(t, "l[4]").Set(root, Int(5))
	assert.True(t, errors.Is(err, ErrNoSuchPath))
	err = mustPath(t, "missing[0].x").Set(root, Int(5))
	assert.True(t, errors.Is(err, ErrNoSuchPath))
}

func TestPathRemove(t *testing.T) {
	root := MustParseSNBT(`{a:1,l:[1,2,3]}`).(*Compound)
	require.NoError(t, mustPath(t, "l[1]").Remove(root))
	require.NoError(t, mustPath(t, "a").Remove(root))
	assert.Equal(t, "{l:[1,3]}", root.String())

	err := mustPath(t, "a").Remove(root)
	assert.True(t, errors.Is(err, ErrNoSuchPath))
}

func mustPath(t *testing.T, text string) Path {
	t.Helper()
	p, err := ParsePath(text)
	require.NoError(t, err, text)
	return p
}
