// Copyright © 2018 The ELPS authors

package debugger

import (
	"strconv"

	"github.com/luthersystems/sniffer/mcfunction"
)

// Variable is a node of a variable tree. Trees are snapshots and are not
// modified after they are built.
type Variable struct {
	ID       int
	Name     string
	Value    string
	Children []*Variable
	IsRoot   bool
}

// HasChildren reports whether v can be expanded.
func (v *Variable) HasChildren() bool {
	return len(v.Children) > 0
}

// Walk calls fn for v and every descendant, parents first.
func (v *Variable) Walk(fn func(*Variable)) {
	fn(v)
	for _, c := range v.Children {
		c.Walk(fn)
	}
}

// TreeBuilder assigns ids to variable nodes in pre-order starting at a
// given id. Building the same input from the same start always yields the
// same ids.
type TreeBuilder struct {
	next int
}

// NewTreeBuilder returns a builder whose first node gets id start.
func NewTreeBuilder(start int) *TreeBuilder {
	return &TreeBuilder{next: start}
}

// Next returns the id the next node will get.
func (b *TreeBuilder) Next() int { return b.next }

func (b *TreeBuilder) alloc(name, value string) *Variable {
	v := &Variable{ID: b.next, Name: name, Value: value}
	b.next++
	return v
}

// Value converts an NBT value into a root node named name. Compound
// children follow key order and list or array children follow index order.
func (b *TreeBuilder) Value(name string, v mcfunction.Value) *Variable {
	root := b.value(name, v)
	root.IsRoot = true
	return root
}

func (b *TreeBuilder) value(name string, v mcfunction.Value) *Variable {
	node := b.alloc(name, v.String())
	switch v := v.(type) {
	case *mcfunction.Compound:
		for _, k := range v.Keys() {
			child, _ := v.Get(k)
			node.Children = append(node.Children, b.value(k, child))
		}
	case *mcfunction.List:
		for i, e := range v.Elems {
			node.Children = append(node.Children, b.value(strconv.Itoa(i), e))
		}
	case *mcfunction.Array:
		for i := range v.Elems {
			node.Children = append(node.Children, b.value(strconv.Itoa(i), v.Elem(i)))
		}
	}
	return node
}

// Context builds the facets shown for a function scope: the executor, its
// location and, for macro calls, the arguments.
func (b *TreeBuilder) Context(src mcfunction.CommandSource, args *mcfunction.Compound) []*Variable {
	vars := []*Variable{b.executor(src), b.location(src)}
	if args != nil {
		vars = append(vars, b.Value("arguments", args))
	}
	return vars
}

func (b *TreeBuilder) executor(src mcfunction.CommandSource) *Variable {
	if src.IsServer() {
		v := b.alloc("executor", src.Name())
		v.IsRoot = true
		return v
	}
	e := src.Entity
	v := b.alloc("executor", e.DisplayName())
	v.IsRoot = true
	v.Children = []*Variable{
		b.alloc("type", e.Type.String()),
		b.alloc("name", e.DisplayName()),
		b.alloc("uuid", e.UUID.String()),
		b.position("position", e.Pos),
		b.rotation("rotation", e.Rot),
		b.alloc("world", e.World),
	}
	if e.Data != nil && e.Data.Len() > 0 {
		v.Children = append(v.Children, b.value("data", e.Data))
	}
	return v
}

func (b *TreeBuilder) location(src mcfunction.CommandSource) *Variable {
	v := b.alloc("location", src.Pos.String())
	v.IsRoot = true
	v.Children = []*Variable{
		b.position("position", src.Pos),
		b.rotation("rotation", src.Rot),
		b.alloc("world", src.World),
	}
	return v
}

func (b *TreeBuilder) position(name string, p mcfunction.Vec3) *Variable {
	v := b.alloc(name, p.String())
	v.Children = []*Variable{
		b.alloc("x", formatFloat(p.X)),
		b.alloc("y", formatFloat(p.Y)),
		b.alloc("z", formatFloat(p.Z)),
	}
	return v
}

func (b *TreeBuilder) rotation(name string, r mcfunction.Vec2) *Variable {
	v := b.alloc(name, r.String())
	v.Children = []*Variable{
		b.alloc("yaw", formatFloat(r.Yaw)),
		b.alloc("pitch", formatFloat(r.Pitch)),
	}
	return v
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
