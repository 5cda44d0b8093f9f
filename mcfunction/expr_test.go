// Copyright © 2018 The ELPS authors

package mcfunction

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exprServer(t *testing.T) *Server {
	t.Helper()
	srv := NewServer(nil)
	srv.Storage.Open(MustParseResourceID("ns:s")).Merge(MustParseSNBT(`{a:{b:1},l:[1,2]}`).(*Compound))
	require.NoError(t, srv.Scoreboard.AddObjective("points", "dummy"))
	require.NoError(t, srv.Scoreboard.Set("alex", "points", 12))
	require.NoError(t, srv.Scoreboard.Set("Babe", "points", 3))
	return srv
}

func TestEvalOperators(t *testing.T) {
	srv := exprServer(t)
	tests := []struct {
		expr string
		want string
	}{
		{"1 + 2", "3"},
		{"1 + 2 * 3", "9"},
		{"(1 + 2) * 3", "9"},
		{"7 / 2", "3"},
		{"3 - 1", "2"},
		{"1.5 + 1", "2.5d"},
		{"2f * 2", "4f"},
		{"5L + 1", "6L"},
		{`"a" + 1`, `"a1"`},
		{"{a:1} + {b:2}", "{a:1,b:2}"},
		{"[1] + [2]", "[1,2]"},
		{"1 < 2", "1b"},
		{"2 >= 3", "0b"},
		{"2 == 2L", "1b"},
		{`"a" != "b"`, "1b"},
		{"!0", "1b"},
		{"1 && 0", "0b"},
		{"0 || 5", "1b"},
		{"0 && (1 / 0)", "0b"},
		{"1 is number", "1b"},
		{`"x" is string`, "1b"},
		{"[1] is compound", "0b"},
	}
	for _, tc := range tests {
		v, err := srv.Eval(tc.expr, ServerSource())
		if assert.NoError(t, err, tc.expr) {
			assert.Equal(t, tc.want, v.String(), tc.expr)
		}
	}
}

func TestEvalState(t *testing.T) {
	srv := exprServer(t)
	tests := []struct {
		expr string
		want string
	}{
		{"@s", `"server"`},
		{"name @s", `"server"`},
		{"score alex points", "12"},
		{"score alex points > 10", "1b"},
		{"data storage ns:s", "{a:{b:1},l:[1,2]}"},
		{"data storage ns:s a.b", "1"},
		{"data storage ns:s l[-1] + 1", "3"},
		{"data storage ns:empty", "{}"},
	}
	for _, tc := range tests {
		v, err := srv.Eval(tc.expr, ServerSource())
		if assert.NoError(t, err, tc.expr) {
			assert.Equal(t, tc.want, v.String(), tc.expr)
		}
	}
}

func TestEvalReadOnly(t *testing.T) {
	srv := exprServer(t)
	v, err := srv.Eval("data storage ns:s", ServerSource())
	require.NoError(t, err)
	v.(*Compound).Set("added", Int(1))
	assert.Equal(t, "{a:{b:1},l:[1,2]}", srv.Storage.Get(MustParseResourceID("ns:s")).String())
}

func TestEvalAsEntity(t *testing.T) {
	srv := exprServer(t)
	e := &Entity{
		Type: MustParseResourceID("pig"),
		Name: "Babe",
		UUID: uuid.MustParse("00000001-0002-0003-0004-000000000005"),
		Pos:  Vec3{X: 1, Y: 2, Z: 3},
	}
	srv.Summon(e)
	src := ServerSource().As(e)

	tests := []struct {
		expr string
		want string
	}{
		{"name @s", `"Babe"`},
		{"score @s points", "3"},
		{"data entity @s CustomName", `"Babe"`},
		{"data entity @s Pos[0]", "1d"},
		{"data entity @s id", `"minecraft:pig"`},
	}
	for _, tc := range tests {
		v, err := srv.Eval(tc.expr, src)
		if assert.NoError(t, err, tc.expr) {
			assert.Equal(t, tc.want, v.String(), tc.expr)
		}
	}
}

func TestEvalErrors(t *testing.T) {
	srv := exprServer(t)
	for _, text := range []string{
		"",
		"1 +",
		"7 / 0",
		`1 < "a"`,
		"score sam points",
		"score alex nothing",
		"data storage ns:s a.missing",
		"data entity @s",
		"{a:1} - 1",
	} {
		_, err := srv.Eval(text, ServerSource())
		assert.Error(t, err, text)
	}
}

func TestParseExprKeepsText(t *testing.T) {
	x, err := ParseExpr("1 + 1")
	require.NoError(t, err)
	assert.Equal(t, "1 + 1", x.String())
	v, err := x.Eval(NewServer(nil), ServerSource())
	require.NoError(t, err)
	assert.Equal(t, Int(2), v)
}
