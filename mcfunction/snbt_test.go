// Copyright © 2018 The ELPS authors

package mcfunction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSNBTScalars(t *testing.T) {
	tests := []struct {
		text string
		want Value
	}{
		{"1", Int(1)},
		{"-5", Int(-5)},
		{"3b", Byte(3)},
		{"7s", Short(7)},
		{"9L", Long(9)},
		{"1.5", Double(1.5)},
		{"2f", Float(2)},
		{"true", Byte(1)},
		{"false", Byte(0)},
		{`"hello world"`, String("hello world")},
		{`'single'`, String("single")},
		{`"a\"b"`, String(`a"b`)},
		{"stone", String("stone")},
	}
	for _, tc := range tests {
		v, err := ParseSNBT(tc.text)
		if assert.NoError(t, err, tc.text) {
			assert.Equal(t, tc.want, v, tc.text)
		}
	}
}

func TestParseSNBTCompound(t *testing.T) {
	v, err := ParseSNBT(`{b:1b, a:"x", "odd key":[1,2,3], arr:[I;4,5], nested:{}}`)
	require.NoError(t, err)
	c, ok := v.(*Compound)
	require.True(t, ok)
	assert.Equal(t, []string{"b", "a", "odd key", "arr", "nested"}, c.Keys())
	assert.Equal(t, `{b:1b,a:"x","odd key":[1,2,3],arr:[I;4,5],nested:{}}`, c.String())

	arr, _ := c.Get("arr")
	assert.Equal(t, &Array{K: KindIntArray, Elems: []int64{4, 5}}, arr)
}

func TestParseSNBTArrays(t *testing.T) {
	v, err := ParseSNBT(`[B;1b,2b]`)
	require.NoError(t, err)
	assert.Equal(t, "[B;1b,2b]", v.String())

	v, err = ParseSNBT(`[L;]`)
	require.NoError(t, err)
	assert.Equal(t, KindLongArray, v.Kind())

	_, err = ParseSNBT(`[I;1.5]`)
	assert.Error(t, err)
}

func TestParseSNBTErrors(t *testing.T) {
	for _, text := range []string{
		``,
		`{a:1`,
		`{a:1} trailing`,
		`[1,"mixed"]`,
		`{a:[1,"mixed"]}`,
		`300b`,
	} {
		_, err := ParseSNBT(text)
		assert.Error(t, err, text)
	}
}

func TestCompoundMerge(t *testing.T) {
	dst := MustParseSNBT(`{a:1,b:{x:1,y:2}}`).(*Compound)
	dst.Merge(MustParseSNBT(`{b:{y:3,z:4},c:"new"}`).(*Compound))
	assert.Equal(t, `{a:1,b:{x:1,y:3,z:4},c:"new"}`, dst.String())
}

func TestCopyIsDeep(t *testing.T) {
	orig := MustParseSNBT(`{l:[{a:1}]}`).(*Compound)
	cp := Copy(orig).(*Compound)
	require.True(t, Equal(orig, cp))

	l, _ := cp.Get("l")
	l.(*List).Elems[0].(*Compound).Set("a", Int(2))
	assert.Equal(t, `{l:[{a:1}]}`, orig.String())
	assert.False(t, Equal(orig, cp))
}

func TestText(t *testing.T) {
	assert.Equal(t, "plain", Text(String("plain")))
	assert.Equal(t, "4b", Text(Byte(4)))
	assert.Equal(t, "", Text(nil))
}
