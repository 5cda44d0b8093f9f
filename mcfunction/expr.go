// Copyright © 2018 The ELPS authors

/*
Expressions are read-only queries against server state, used to inspect a
paused function.

	expr     := operand (op operand)*
	operand  := '(' expr ')' | '{' expr '}' | '!' operand | argument
	argument := '@s'
	          | 'name' '@s'
	          | 'score' holder objective
	          | 'data' 'storage' id path?
	          | 'data' 'entity' '@s' path?
	          | snbt
	op       := '+' | '-' | '*' | '/' | '<' | '>' | '<=' | '>=' | '==' | '!='
	          | 'is' | '&&' | '||'

Operators have no precedence and apply left to right. Operators must be
separated from their operands by spaces.
*/

package mcfunction

import (
	"math"
	"strings"

	"github.com/pkg/errors"
	parsec "github.com/prataprc/goparsec"
)

const tokNBTPath = `(?:[A-Za-z_][A-Za-z0-9_]*|"(?:[^"\\]|\\.)*")(?:\.(?:[A-Za-z_][A-Za-z0-9_]*|"(?:[^"\\]|\\.)*")|\[-?[0-9]+\])*`

// Expr is a parsed expression.
type Expr struct {
	text string
	root exprNode
}

// ParseExpr parses an expression.
func ParseExpr(text string) (*Expr, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("empty expression")
	}
	s := parsec.NewScanner([]byte(text))
	node, s := exprParser()(s)
	if node == nil {
		return nil, errors.Errorf("invalid expression: %s", text)
	}
	root, err := exprResult(node)
	if err != nil {
		return nil, err
	}
	_, s = s.SkipWS()
	if !s.Endof() {
		return nil, errors.Errorf("invalid expression: unexpected text at %d in %s", s.GetCursor(), text)
	}
	return &Expr{text: text, root: root}, nil
}

func (x *Expr) String() string { return x.text }

// Eval evaluates x against the state of s as seen by src.
func (x *Expr) Eval(s *Server, src CommandSource) (Value, error) {
	return x.root.eval(&evalEnv{server: s, source: src})
}

// Eval parses and evaluates text as src.
func (s *Server) Eval(text string, src CommandSource) (Value, error) {
	x, err := ParseExpr(text)
	if err != nil {
		return nil, err
	}
	return x.Eval(s, src)
}

type evalEnv struct {
	server *Server
	source CommandSource
}

type exprNode interface {
	eval(env *evalEnv) (Value, error)
}

func exprParser() parsec.Parser {
	openP := parsec.Atom("(", "OPENP")
	closeP := parsec.Atom(")", "CLOSEP")
	openC := parsec.Atom("{", "OPENC")
	closeC := parsec.Atom("}", "CLOSEC")
	bang := parsec.Atom("!", "NOT")
	self := parsec.Atom("@s", "SELF")
	kwName := parsec.Token(`name\b`, "NAME")
	kwScore := parsec.Token(`score\b`, "SCORE")
	kwData := parsec.Token(`data\b`, "DATA")
	kwStorage := parsec.Token(`storage\b`, "STORAGE")
	kwEntity := parsec.Token(`entity\b`, "ENTITY")
	holder := parsec.Token(`@s|[A-Za-z0-9_.#\-]+`, "HOLDER")
	objective := parsec.Token(`[A-Za-z0-9_.+\-]+`, "OBJECTIVE")
	resource := parsec.Token(`[a-z0-9_.\-]+:[a-z0-9_.\-/]+|[a-z0-9_.\-/]+`, "RESOURCE")
	path := parsec.Token(tokNBTPath, "PATH")
	op := parsec.Token(`&&|\|\||<=|>=|==|!=|<|>|\+|-|\*|/|is\b`, "OP")

	var expr, operand parsec.Parser // forward declarations for recursion

	arguments := []interface{}{
		parsec.And(exprName, kwName, self),
		parsec.And(exprScore, kwScore, holder, objective),
		parsec.And(exprStorage, kwData, kwStorage, resource, path),
		parsec.And(exprStorage, kwData, kwStorage, resource),
		parsec.And(exprEntity, kwData, kwEntity, self, path),
		parsec.And(exprEntity, kwData, kwEntity, self),
		parsec.And(exprSelf, self),
		parsec.And(exprLiteral, snbtParser()),
	}
	group := parsec.And(exprGroup, openP, &expr, closeP)
	braced := parsec.And(exprGroup, openC, &expr, closeC)
	not := parsec.And(exprNot, bang, &operand)
	operand = parsec.OrdChoice(exprOperand, append([]interface{}{group, braced, not}, arguments...)...)
	tail := parsec.Kleene(nil, parsec.And(exprTail, op, &operand))
	expr = parsec.And(exprChain, &operand, tail)
	return expr
}

func exprResult(node parsec.ParsecNode) (exprNode, error) {
	switch n := node.(type) {
	case exprNode:
		return n, nil
	case error:
		return nil, n
	case []parsec.ParsecNode:
		if len(n) == 1 {
			return exprResult(n[0])
		}
	}
	return nil, errors.Errorf("invalid expression node %T", node)
}

func terminal(node parsec.ParsecNode) string {
	if t, ok := node.(*parsec.Terminal); ok {
		return t.Value
	}
	return ""
}

func exprSelf(nodes []parsec.ParsecNode) parsec.ParsecNode { return selfArg{} }

func exprName(nodes []parsec.ParsecNode) parsec.ParsecNode { return nameArg{} }

func exprScore(nodes []parsec.ParsecNode) parsec.ParsecNode {
	return scoreArg{holder: terminal(nodes[1]), objective: terminal(nodes[2])}
}

func exprStorage(nodes []parsec.ParsecNode) parsec.ParsecNode {
	id, err := ParseResourceID(terminal(nodes[2]))
	if err != nil {
		return err
	}
	arg := storageArg{id: id}
	if len(nodes) > 3 {
		if arg.path, err = ParsePath(terminal(nodes[3])); err != nil {
			return err
		}
	}
	return arg
}

func exprEntity(nodes []parsec.ParsecNode) parsec.ParsecNode {
	var arg entityArg
	if len(nodes) > 3 {
		var err error
		if arg.path, err = ParsePath(terminal(nodes[3])); err != nil {
			return err
		}
	}
	return arg
}

func exprLiteral(nodes []parsec.ParsecNode) parsec.ParsecNode {
	v, err := snbtResult(nodes[0])
	if err != nil {
		return err
	}
	return literal{v}
}

func exprGroup(nodes []parsec.ParsecNode) parsec.ParsecNode { return nodes[1] }

func exprOperand(nodes []parsec.ParsecNode) parsec.ParsecNode { return nodes[0] }

func exprNot(nodes []parsec.ParsecNode) parsec.ParsecNode {
	x, err := exprResult(nodes[1])
	if err != nil {
		return err
	}
	return notExpr{x}
}

type opTerm struct {
	op string
	x  exprNode
}

func exprTail(nodes []parsec.ParsecNode) parsec.ParsecNode {
	x, err := exprResult(nodes[1])
	if err != nil {
		return err
	}
	return opTerm{op: terminal(nodes[0]), x: x}
}

func exprChain(nodes []parsec.ParsecNode) parsec.ParsecNode {
	first, err := exprResult(nodes[0])
	if err != nil {
		return err
	}
	c := chain{first: first}
	for _, n := range children(nodes[1]) {
		switch n := n.(type) {
		case opTerm:
			c.rest = append(c.rest, n)
		case error:
			return n
		}
	}
	if len(c.rest) == 0 {
		return first
	}
	return c
}

type literal struct{ v Value }

func (l literal) eval(*evalEnv) (Value, error) { return Copy(l.v), nil }

type selfArg struct{}

func (selfArg) eval(env *evalEnv) (Value, error) {
	if env.source.IsServer() {
		return String(env.source.Name()), nil
	}
	return env.source.Entity.NBT(), nil
}

type nameArg struct{}

func (nameArg) eval(env *evalEnv) (Value, error) {
	return String(env.source.Name()), nil
}

type scoreArg struct {
	holder    string
	objective string
}

func (a scoreArg) eval(env *evalEnv) (Value, error) {
	holder, err := env.server.scoreHolder(a.holder, env.source)
	if err != nil {
		return nil, err
	}
	v, err := env.server.Scoreboard.Get(holder, a.objective)
	if err != nil {
		return nil, err
	}
	return Int(v), nil
}

type storageArg struct {
	id   ResourceID
	path Path
}

func (a storageArg) eval(env *evalEnv) (Value, error) {
	root := env.server.Storage.Get(a.id)
	if a.path == nil {
		return Copy(root), nil
	}
	v, err := a.path.Get(root)
	if err != nil {
		return nil, err
	}
	return Copy(v), nil
}

type entityArg struct {
	path Path
}

func (a entityArg) eval(env *evalEnv) (Value, error) {
	if env.source.IsServer() {
		return nil, errors.New("no entity was found")
	}
	root := env.source.Entity.NBT()
	if a.path == nil {
		return root, nil
	}
	return a.path.Get(root)
}

type notExpr struct{ x exprNode }

func (n notExpr) eval(env *evalEnv) (Value, error) {
	v, err := n.x.eval(env)
	if err != nil {
		return nil, err
	}
	return Bool(!truthy(v)), nil
}

type chain struct {
	first exprNode
	rest  []opTerm
}

func (c chain) eval(env *evalEnv) (Value, error) {
	acc, err := c.first.eval(env)
	if err != nil {
		return nil, err
	}
	for _, t := range c.rest {
		switch {
		case t.op == "&&" && !truthy(acc):
			acc = Bool(false)
			continue
		case t.op == "||" && truthy(acc):
			acc = Bool(true)
			continue
		}
		rhs, err := t.x.eval(env)
		if err != nil {
			return nil, err
		}
		if acc, err = apply(t.op, acc, rhs); err != nil {
			return nil, err
		}
	}
	return acc, nil
}

func truthy(v Value) bool {
	switch v := v.(type) {
	case Number:
		if v.IsIntegral() {
			return v.I != 0
		}
		return v.F != 0
	case String:
		return v != ""
	}
	return v != nil
}

func apply(op string, a, b Value) (Value, error) {
	switch op {
	case "&&", "||":
		return Bool(truthy(b)), nil
	case "is":
		return Bool(isKind(a, Text(b))), nil
	case "==":
		return Bool(same(a, b)), nil
	case "!=":
		return Bool(!same(a, b)), nil
	case "<", ">", "<=", ">=":
		c, err := compare(a, b)
		if err != nil {
			return nil, err
		}
		switch op {
		case "<":
			return Bool(c < 0), nil
		case ">":
			return Bool(c > 0), nil
		case "<=":
			return Bool(c <= 0), nil
		}
		return Bool(c >= 0), nil
	case "+":
		if a.Kind() == KindString || b.Kind() == KindString {
			return String(Text(a) + Text(b)), nil
		}
		if ac, ok := a.(*Compound); ok {
			if bc, ok := b.(*Compound); ok {
				c := Copy(ac).(*Compound)
				c.Merge(Copy(bc).(*Compound))
				return c, nil
			}
		}
		if al, ok := a.(*List); ok {
			if bl, ok := b.(*List); ok {
				l := Copy(al).(*List)
				l.Elems = append(l.Elems, Copy(bl).(*List).Elems...)
				return l, nil
			}
		}
	}
	return arith(op, a, b)
}

func isKind(v Value, name string) bool {
	switch name {
	case "nbt":
		return true
	case "number":
		return v.Kind().IsNumeric()
	case "text":
		return false
	}
	return v.Kind().String() == name
}

var promotion = []Kind{KindInt, KindLong, KindFloat, KindDouble}

func rank(k Kind) int {
	switch k {
	case KindLong:
		return 1
	case KindFloat:
		return 2
	case KindDouble:
		return 3
	}
	return 0
}

func arith(op string, a, b Value) (Value, error) {
	x, ok := a.(Number)
	y, ok2 := b.(Number)
	if !ok || !ok2 {
		return nil, errors.Errorf("cannot apply %s to %v and %v", op, a.Kind(), b.Kind())
	}
	kind := promotion[max(rank(x.K), rank(y.K))]
	if kind == KindFloat || kind == KindDouble {
		f, g := x.Float64(), y.Float64()
		var r float64
		switch op {
		case "+":
			r = f + g
		case "-":
			r = f - g
		case "*":
			r = f * g
		case "/":
			r = f / g
		default:
			return nil, errors.Errorf("unknown operator %s", op)
		}
		if kind == KindFloat {
			return Float(float32(r)), nil
		}
		return Double(r), nil
	}
	i, j := x.Int64(), y.Int64()
	var r int64
	switch op {
	case "+":
		r = i + j
	case "-":
		r = i - j
	case "*":
		r = i * j
	case "/":
		if j == 0 {
			return nil, errors.New("division by zero")
		}
		r = i / j
	default:
		return nil, errors.Errorf("unknown operator %s", op)
	}
	if kind == KindLong {
		return Long(r), nil
	}
	return Int(int32(r)), nil
}

// same compares numbers by value regardless of kind and everything else
// structurally.
func same(a, b Value) bool {
	x, ok := a.(Number)
	y, ok2 := b.(Number)
	if ok && ok2 {
		c, _ := compare(x, y)
		return c == 0
	}
	return Equal(a, b)
}

func compare(a, b Value) (int, error) {
	x, ok := a.(Number)
	y, ok2 := b.(Number)
	if ok && ok2 {
		if x.IsIntegral() && y.IsIntegral() {
			return cmpInt(x.Int64(), y.Int64()), nil
		}
		f, g := x.Float64(), y.Float64()
		if math.IsNaN(f) || math.IsNaN(g) {
			return 0, errors.New("cannot compare NaN")
		}
		switch {
		case f < g:
			return -1, nil
		case f > g:
			return 1, nil
		}
		return 0, nil
	}
	s, ok := a.(String)
	t, ok2 := b.(String)
	if ok && ok2 {
		return strings.Compare(string(s), string(t)), nil
	}
	return 0, errors.Errorf("cannot compare %v and %v", a.Kind(), b.Kind())
}

func cmpInt(i, j int64) int {
	switch {
	case i < j:
		return -1
	case i > j:
		return 1
	}
	return 0
}
