// Copyright © 2018 The ELPS authors

package mcfunction

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	parsec "github.com/prataprc/goparsec"
)

// ErrNoSuchPath is returned when an NBT path does not resolve.
var ErrNoSuchPath = errors.New("nothing found at path")

// PathNode is one step of an NBT path: a compound key or a list index.
type PathNode struct {
	Key     string
	Index   int
	IsIndex bool
}

// Path is an NBT path such as foo.bar[0]."odd key".
type Path []PathNode

// ParsePath parses an NBT path.
func ParsePath(text string) (Path, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("empty NBT path")
	}
	s := parsec.NewScanner([]byte(text))
	node, s := pathParser()(s)
	if node == nil {
		return nil, errors.Errorf("invalid NBT path: %s", text)
	}
	_, s = s.SkipWS()
	if !s.Endof() {
		return nil, errors.Errorf("invalid NBT path: unexpected text at %d in %s", s.GetCursor(), text)
	}
	path, ok := node.(Path)
	if !ok {
		if err, isErr := node.(error); isErr {
			return nil, err
		}
		return nil, errors.Errorf("invalid NBT path: %s", text)
	}
	return path, nil
}

func pathParser() parsec.Parser {
	dot := parsec.Atom(".", "DOT")
	openB := parsec.Atom("[", "OPENB")
	closeB := parsec.Atom("]", "CLOSEB")
	index := parsec.Token(`-?[0-9]+`, "INDEX")
	key := parsec.OrdChoice(snbtKey,
		parsec.Token(tokDouble, "DQUOTE"),
		parsec.Token(tokSingle, "SQUOTE"),
		parsec.Token(`[A-Za-z0-9_+\-]+`, "UNQUOTED"))
	indexNode := parsec.And(pathIndex, openB, index, closeB)
	keyNode := parsec.And(pathKey, dot, key)
	first := parsec.OrdChoice(pathFirst, indexNode, key)
	rest := parsec.Kleene(nil, parsec.OrdChoice(pathFirst, indexNode, keyNode))
	return parsec.And(pathJoin, first, rest)
}

func pathIndex(nodes []parsec.ParsecNode) parsec.ParsecNode {
	i, err := strconv.Atoi(nodes[1].(*parsec.Terminal).Value)
	if err != nil {
		return err
	}
	return PathNode{Index: i, IsIndex: true}
}

func pathKey(nodes []parsec.ParsecNode) parsec.ParsecNode {
	return nodes[1]
}

func pathFirst(nodes []parsec.ParsecNode) parsec.ParsecNode {
	switch n := nodes[0].(type) {
	case string:
		return PathNode{Key: n}
	default:
		return n
	}
}

func pathJoin(nodes []parsec.ParsecNode) parsec.ParsecNode {
	var path Path
	for _, n := range append([]parsec.ParsecNode{nodes[0]}, children(nodes[1])...) {
		switch n := n.(type) {
		case PathNode:
			path = append(path, n)
		case error:
			return n
		}
	}
	return path
}

func (p Path) String() string {
	var b strings.Builder
	for i, n := range p {
		if n.IsIndex {
			fmt.Fprintf(&b, "[%d]", n.Index)
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(formatKey(n.Key))
	}
	return b.String()
}

func step(v Value, n PathNode) (Value, bool) {
	if n.IsIndex {
		switch v := v.(type) {
		case *List:
			i := n.Index
			if i < 0 {
				i += len(v.Elems)
			}
			if i < 0 || i >= len(v.Elems) {
				return nil, false
			}
			return v.Elems[i], true
		case *Array:
			i := n.Index
			if i < 0 {
				i += len(v.Elems)
			}
			if i < 0 || i >= len(v.Elems) {
				return nil, false
			}
			return arrayElem(v, i), true
		}
		return nil, false
	}
	c, ok := v.(*Compound)
	if !ok {
		return nil, false
	}
	return c.Get(n.Key)
}

func arrayElem(a *Array, i int) Value {
	switch a.K {
	case KindByteArray:
		return Number{K: KindByte, I: a.Elems[i]}
	case KindLongArray:
		return Number{K: KindLong, I: a.Elems[i]}
	}
	return Number{K: KindInt, I: a.Elems[i]}
}

// Get resolves p against root.
func (p Path) Get(root Value) (Value, error) {
	v := root
	for _, n := range p {
		next, ok := step(v, n)
		if !ok {
			return nil, errors.Wrap(ErrNoSuchPath, p.String())
		}
		v = next
	}
	return v, nil
}

// Set stores v at p under root, creating intermediate compounds as needed.
func (p Path) Set(root *Compound, v Value) error {
	if len(p) == 0 {
		c, ok := v.(*Compound)
		if !ok {
			return errors.Errorf("cannot replace root with %v", v.Kind())
		}
		*root = *c
		return nil
	}
	var cur Value = root
	for i, n := range p[:len(p)-1] {
		next, ok := step(cur, n)
		if !ok {
			c, isCompound := cur.(*Compound)
			if n.IsIndex || !isCompound {
				return errors.Wrap(ErrNoSuchPath, Path(p[:i+1]).String())
			}
			next = NewCompound()
			c.Set(n.Key, next)
		}
		cur = next
	}
	last := p[len(p)-1]
	if last.IsIndex {
		l, ok := cur.(*List)
		if !ok {
			return errors.Wrap(ErrNoSuchPath, p.String())
		}
		i := last.Index
		if i < 0 {
			i += len(l.Elems)
		}
		if i < 0 || i >= len(l.Elems) {
			return errors.Wrap(ErrNoSuchPath, p.String())
		}
		l.Elems[i] = v
		return nil
	}
	c, ok := cur.(*Compound)
	if !ok {
		return errors.Wrap(ErrNoSuchPath, p.String())
	}
	c.Set(last.Key, v)
	return nil
}

// Remove deletes the value at p under root.
func (p Path) Remove(root *Compound) error {
	if len(p) == 0 {
		return errors.New("cannot remove root")
	}
	parent, err := p[:len(p)-1].Get(root)
	if err != nil {
		return err
	}
	last := p[len(p)-1]
	if last.IsIndex {
		l, ok := parent.(*List)
		if !ok {
			return errors.Wrap(ErrNoSuchPath, p.String())
		}
		i := last.Index
		if i < 0 {
			i += len(l.Elems)
		}
		if i < 0 || i >= len(l.Elems) {
			return errors.Wrap(ErrNoSuchPath, p.String())
		}
		l.Elems = append(l.Elems[:i], l.Elems[i+1:]...)
		return nil
	}
	c, ok := parent.(*Compound)
	if !ok || !c.Remove(last.Key) {
		return errors.Wrap(ErrNoSuchPath, p.String())
	}
	return nil
}
