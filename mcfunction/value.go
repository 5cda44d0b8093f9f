// Copyright © 2018 The ELPS authors

package mcfunction

import (
	"strconv"
	"strings"
)

// Kind is the NBT tag type of a Value.
type Kind uint8

// Kinds of NBT values.
const (
	KindByte Kind = iota + 1
	KindShort
	KindInt
	KindLong
	KindFloat
	KindDouble
	KindString
	KindList
	KindCompound
	KindByteArray
	KindIntArray
	KindLongArray
)

var kindStrings = []string{
	KindByte:      "byte",
	KindShort:     "short",
	KindInt:       "int",
	KindLong:      "long",
	KindFloat:     "float",
	KindDouble:    "double",
	KindString:    "string",
	KindList:      "list",
	KindCompound:  "compound",
	KindByteArray: "byte_array",
	KindIntArray:  "int_array",
	KindLongArray: "long_array",
}

func (k Kind) String() string {
	if int(k) >= len(kindStrings) || kindStrings[k] == "" {
		return "unknown"
	}
	return kindStrings[k]
}

// IsNumeric reports whether values of kind k are Numbers.
func (k Kind) IsNumeric() bool {
	return k >= KindByte && k <= KindDouble
}

// Value is an NBT value. String renders the value as SNBT.
type Value interface {
	Kind() Kind
	String() string
}

// Number is any numeric NBT value. Integral kinds use I, floating kinds use
// F.
type Number struct {
	K Kind
	I int64
	F float64
}

// Byte returns a byte number.
func Byte(v int8) Number { return Number{K: KindByte, I: int64(v)} }

// Short returns a short number.
func Short(v int16) Number { return Number{K: KindShort, I: int64(v)} }

// Int returns an int number.
func Int(v int32) Number { return Number{K: KindInt, I: int64(v)} }

// Long returns a long number.
func Long(v int64) Number { return Number{K: KindLong, I: v} }

// Float returns a float number.
func Float(v float32) Number { return Number{K: KindFloat, F: float64(v)} }

// Double returns a double number.
func Double(v float64) Number { return Number{K: KindDouble, F: v} }

// Bool returns the byte encoding of a boolean.
func Bool(b bool) Number {
	if b {
		return Byte(1)
	}
	return Byte(0)
}

func (n Number) Kind() Kind { return n.K }

// IsIntegral reports whether n holds an integral kind.
func (n Number) IsIntegral() bool {
	return n.K != KindFloat && n.K != KindDouble
}

// Int64 returns n truncated to an integer.
func (n Number) Int64() int64 {
	if n.IsIntegral() {
		return n.I
	}
	return int64(n.F)
}

// Float64 returns n as a float.
func (n Number) Float64() float64 {
	if n.IsIntegral() {
		return float64(n.I)
	}
	return n.F
}

func (n Number) String() string {
	switch n.K {
	case KindByte:
		return strconv.FormatInt(n.I, 10) + "b"
	case KindShort:
		return strconv.FormatInt(n.I, 10) + "s"
	case KindLong:
		return strconv.FormatInt(n.I, 10) + "L"
	case KindFloat:
		return strconv.FormatFloat(n.F, 'g', -1, 32) + "f"
	case KindDouble:
		return strconv.FormatFloat(n.F, 'g', -1, 64) + "d"
	default:
		return strconv.FormatInt(n.I, 10)
	}
}

// String is an NBT string.
type String string

func (s String) Kind() Kind { return KindString }

func (s String) String() string {
	return quoteSNBT(string(s))
}

func quoteSNBT(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}

// List is an NBT list.
type List struct {
	Elems []Value
}

// NewList returns a list holding elems.
func NewList(elems ...Value) *List {
	return &List{Elems: elems}
}

func (l *List) Kind() Kind { return KindList }

func (l *List) String() string {
	parts := make([]string, len(l.Elems))
	for i, v := range l.Elems {
		parts[i] = v.String()
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// Array is a typed byte, int or long array.
type Array struct {
	K     Kind
	Elems []int64
}

func (a *Array) Kind() Kind { return a.K }

// Elem returns element i as a Number of the array's element kind.
func (a *Array) Elem(i int) Value { return arrayElem(a, i) }

func (a *Array) String() string {
	var prefix, suffix string
	switch a.K {
	case KindByteArray:
		prefix, suffix = "B", "b"
	case KindLongArray:
		prefix, suffix = "L", "L"
	default:
		prefix = "I"
	}
	parts := make([]string, len(a.Elems))
	for i, v := range a.Elems {
		parts[i] = strconv.FormatInt(v, 10) + suffix
	}
	return "[" + prefix + ";" + strings.Join(parts, ",") + "]"
}

// Compound is an NBT compound. Keys keep their insertion order.
type Compound struct {
	keys []string
	m    map[string]Value
}

// NewCompound returns an empty compound.
func NewCompound() *Compound {
	return &Compound{m: make(map[string]Value)}
}

func (c *Compound) Kind() Kind { return KindCompound }

// Len returns the number of keys in c.
func (c *Compound) Len() int { return len(c.keys) }

// Keys returns the keys of c in insertion order.
func (c *Compound) Keys() []string {
	keys := make([]string, len(c.keys))
	copy(keys, c.keys)
	return keys
}

// Get returns the value stored under key.
func (c *Compound) Get(key string) (Value, bool) {
	v, ok := c.m[key]
	return v, ok
}

// Set stores v under key, appending key if it is new.
func (c *Compound) Set(key string, v Value) {
	if _, ok := c.m[key]; !ok {
		c.keys = append(c.keys, key)
	}
	c.m[key] = v
}

// Remove deletes key from c and reports whether it was present.
func (c *Compound) Remove(key string) bool {
	if _, ok := c.m[key]; !ok {
		return false
	}
	delete(c.m, key)
	for i, k := range c.keys {
		if k == key {
			c.keys = append(c.keys[:i], c.keys[i+1:]...)
			break
		}
	}
	return true
}

// Merge copies every key of other into c. Nested compounds merge
// recursively.
func (c *Compound) Merge(other *Compound) {
	for _, k := range other.keys {
		v := other.m[k]
		if sub, ok := v.(*Compound); ok {
			if cur, ok := c.m[k].(*Compound); ok {
				cur.Merge(sub)
				continue
			}
		}
		c.Set(k, Copy(v))
	}
}

func (c *Compound) String() string {
	parts := make([]string, len(c.keys))
	for i, k := range c.keys {
		parts[i] = formatKey(k) + ":" + c.m[k].String()
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func formatKey(k string) string {
	if k != "" && unquotedPattern.MatchString(k) {
		return k
	}
	return quoteSNBT(k)
}

// Copy returns a deep copy of v.
func Copy(v Value) Value {
	switch v := v.(type) {
	case *Compound:
		c := NewCompound()
		for _, k := range v.keys {
			c.Set(k, Copy(v.m[k]))
		}
		return c
	case *List:
		elems := make([]Value, len(v.Elems))
		for i, e := range v.Elems {
			elems[i] = Copy(e)
		}
		return &List{Elems: elems}
	case *Array:
		elems := make([]int64, len(v.Elems))
		copy(elems, v.Elems)
		return &Array{K: v.K, Elems: elems}
	default:
		return v
	}
}

// Equal reports whether a and b hold the same NBT data.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch a := a.(type) {
	case Number:
		return a == b.(Number)
	case String:
		return a == b.(String)
	case *List:
		bl := b.(*List)
		if len(a.Elems) != len(bl.Elems) {
			return false
		}
		for i := range a.Elems {
			if !Equal(a.Elems[i], bl.Elems[i]) {
				return false
			}
		}
		return true
	case *Array:
		ba := b.(*Array)
		if len(a.Elems) != len(ba.Elems) {
			return false
		}
		for i := range a.Elems {
			if a.Elems[i] != ba.Elems[i] {
				return false
			}
		}
		return true
	case *Compound:
		bc := b.(*Compound)
		if a.Len() != bc.Len() {
			return false
		}
		for _, k := range a.keys {
			bv, ok := bc.m[k]
			if !ok || !Equal(a.m[k], bv) {
				return false
			}
		}
		return true
	}
	return false
}

// Text renders v for chat output. Strings are shown without quotes.
func Text(v Value) string {
	if s, ok := v.(String); ok {
		return string(s)
	}
	if v == nil {
		return ""
	}
	return v.String()
}
