// Copyright © 2018 The ELPS authors

/*
SNBT grammar accepted by ParseSNBT.

	value    := compound | array | list | string | number | bool | unquoted
	compound := '{' (key ':' value (',' key ':' value)*)? '}'
	array    := '[' ('B'|'I'|'L') ';' (number (',' number)*)? ']'
	list     := '[' (value (',' value)*)? ']'
	number   := /[+-]?[0-9.]+([eE][+-]?[0-9]+)?[bBsSlLfFdD]?/
	string   := '"' ... '"' | '\'' ... '\''
*/

package mcfunction

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	parsec "github.com/prataprc/goparsec"
)

var unquotedPattern = regexp.MustCompile(`^[A-Za-z0-9._+\-]+$`)

const (
	tokDouble   = `"(?:[^"\\]|\\.)*"`
	tokSingle   = `'(?:[^'\\]|\\.)*'`
	tokNumber   = `[+-]?(?:[0-9]+\.?[0-9]*|\.[0-9]+)(?:[eE][+-]?[0-9]+)?[bBsSlLfFdD]?\b`
	tokBool     = `(?:true|false)\b`
	tokUnquoted = `[A-Za-z0-9._+\-]+`
)

// ParseSNBT parses a single SNBT value from text.
func ParseSNBT(text string) (Value, error) {
	s := parsec.NewScanner([]byte(text))
	node, s := snbtParser()(s)
	if node == nil {
		return nil, fmt.Errorf("invalid SNBT: %s", abbrev(text))
	}
	v, err := snbtResult(node)
	if err != nil {
		return nil, err
	}
	_, s = s.SkipWS()
	if !s.Endof() {
		rest, _ := s.Match(`.{1,16}`)
		return nil, fmt.Errorf("invalid SNBT: unexpected text at %d: %s", s.GetCursor(), rest)
	}
	return v, nil
}

// MustParseSNBT is like ParseSNBT but panics on error. It is intended for
// tests and static initializers.
func MustParseSNBT(text string) Value {
	v, err := ParseSNBT(text)
	if err != nil {
		panic(err)
	}
	return v
}

func abbrev(s string) string {
	if len(s) > 16 {
		return s[:16] + "..."
	}
	return s
}

// snbtParser builds the SNBT value parser. Nodes produced by the parser are
// either Value or error.
func snbtParser() parsec.Parser {
	openC := parsec.Atom("{", "OPENC")
	closeC := parsec.Atom("}", "CLOSEC")
	openB := parsec.Atom("[", "OPENB")
	closeB := parsec.Atom("]", "CLOSEB")
	colon := parsec.Atom(":", "COLON")
	comma := parsec.Atom(",", "COMMA")
	arrayOpen := parsec.Token(`\[[BIL];`, "ARRAYOPEN")
	double := parsec.Token(tokDouble, "DQUOTE")
	single := parsec.Token(tokSingle, "SQUOTE")
	number := parsec.Token(tokNumber, "NUMBER")
	boolean := parsec.Token(tokBool, "BOOL")
	unquoted := parsec.Token(tokUnquoted, "UNQUOTED")

	var value parsec.Parser // forward declaration allows for recursive parsing

	key := parsec.OrdChoice(snbtKey, double, single, unquoted)
	entry := parsec.And(snbtEntry, key, colon, &value)
	compound := parsec.And(snbtCompound, openC, parsec.Kleene(nil, entry, comma), closeC)
	array := parsec.And(snbtArray, arrayOpen, parsec.Kleene(nil, number, comma), closeB)
	list := parsec.And(snbtList, openB, parsec.Kleene(nil, &value, comma), closeB)
	scalar := parsec.OrdChoice(snbtScalar, double, single, number, boolean, unquoted)
	value = parsec.OrdChoice(snbtValue, compound, array, list, scalar)
	return value
}

type snbtPair struct {
	key   string
	value Value
}

func snbtResult(node parsec.ParsecNode) (Value, error) {
	switch n := node.(type) {
	case Value:
		return n, nil
	case error:
		return nil, n
	case []parsec.ParsecNode:
		if len(n) == 1 {
			return snbtResult(n[0])
		}
	}
	return nil, fmt.Errorf("invalid SNBT node %T", node)
}

func snbtValue(nodes []parsec.ParsecNode) parsec.ParsecNode {
	return nodes[0]
}

func snbtKey(nodes []parsec.ParsecNode) parsec.ParsecNode {
	term := nodes[0].(*parsec.Terminal)
	switch term.Name {
	case "DQUOTE", "SQUOTE":
		s, err := unquoteSNBT(term.Value)
		if err != nil {
			return err
		}
		return s
	}
	return term.Value
}

func snbtEntry(nodes []parsec.ParsecNode) parsec.ParsecNode {
	key, ok := nodes[0].(string)
	if !ok {
		return nodes[0]
	}
	v, err := snbtResult(nodes[2])
	if err != nil {
		return err
	}
	return &snbtPair{key: key, value: v}
}

func snbtCompound(nodes []parsec.ParsecNode) parsec.ParsecNode {
	c := NewCompound()
	for _, n := range children(nodes[1]) {
		switch n := n.(type) {
		case *snbtPair:
			c.Set(n.key, n.value)
		case error:
			return n
		}
	}
	return c
}

func snbtList(nodes []parsec.ParsecNode) parsec.ParsecNode {
	l := &List{}
	var kind Kind
	for _, n := range children(nodes[1]) {
		v, err := snbtResult(n)
		if err != nil {
			return err
		}
		if kind != 0 && v.Kind() != kind {
			return fmt.Errorf("invalid SNBT: list mixes %v and %v", kind, v.Kind())
		}
		kind = v.Kind()
		l.Elems = append(l.Elems, v)
	}
	return l
}

func snbtArray(nodes []parsec.ParsecNode) parsec.ParsecNode {
	open := nodes[0].(*parsec.Terminal).Value
	a := &Array{}
	switch open[1] {
	case 'B':
		a.K = KindByteArray
	case 'L':
		a.K = KindLongArray
	default:
		a.K = KindIntArray
	}
	for _, n := range children(nodes[1]) {
		term, ok := n.(*parsec.Terminal)
		if !ok {
			continue
		}
		num, err := parseNumber(term.Value)
		if err != nil {
			return err
		}
		if !num.IsIntegral() {
			return fmt.Errorf("invalid SNBT: %s in %v", term.Value, a.K)
		}
		a.Elems = append(a.Elems, num.I)
	}
	return a
}

func snbtScalar(nodes []parsec.ParsecNode) parsec.ParsecNode {
	term := nodes[0].(*parsec.Terminal)
	switch term.Name {
	case "DQUOTE", "SQUOTE":
		s, err := unquoteSNBT(term.Value)
		if err != nil {
			return err
		}
		return String(s)
	case "NUMBER":
		n, err := parseNumber(term.Value)
		if err != nil {
			return err
		}
		return n
	case "BOOL":
		return Bool(term.Value == "true")
	}
	return String(term.Value)
}

// children flattens the output of a nil-callback Kleene.
func children(node parsec.ParsecNode) []parsec.ParsecNode {
	switch n := node.(type) {
	case []parsec.ParsecNode:
		return n
	case nil:
		return nil
	}
	return []parsec.ParsecNode{node}
}

func unquoteSNBT(quoted string) (string, error) {
	body := quoted[1 : len(quoted)-1]
	if !strings.ContainsRune(body, '\\') {
		return body, nil
	}
	var b strings.Builder
	escaped := false
	for _, r := range body {
		if escaped {
			switch r {
			case 'n':
				b.WriteRune('\n')
			case 't':
				b.WriteRune('\t')
			default:
				b.WriteRune(r)
			}
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		b.WriteRune(r)
	}
	if escaped {
		return "", fmt.Errorf("invalid SNBT: dangling escape in %s", quoted)
	}
	return b.String(), nil
}

func parseNumber(text string) (Number, error) {
	body := text
	var kind Kind
	switch text[len(text)-1] {
	case 'b', 'B':
		kind = KindByte
	case 's', 'S':
		kind = KindShort
	case 'l', 'L':
		kind = KindLong
	case 'f', 'F':
		kind = KindFloat
	case 'd', 'D':
		kind = KindDouble
	}
	if kind != 0 {
		body = text[:len(text)-1]
	} else if strings.ContainsAny(body, ".eE") {
		kind = KindDouble
	} else {
		kind = KindInt
	}
	if kind == KindFloat || kind == KindDouble {
		f, err := strconv.ParseFloat(body, 64)
		if err != nil {
			return Number{}, fmt.Errorf("bad number %s: %v", text, err)
		}
		return Number{K: kind, F: f}, nil
	}
	bits := map[Kind]int{KindByte: 8, KindShort: 16, KindInt: 32, KindLong: 64}[kind]
	i, err := strconv.ParseInt(body, 10, bits)
	if err != nil {
		return Number{}, fmt.Errorf("bad number %s: %v", text, err)
	}
	return Number{K: kind, I: i}, nil
}
