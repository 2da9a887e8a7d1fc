// Package value defines the typed preference values and the native cells
// they travel as between a provider and its resolvers.
package value

import (
	"fmt"
	"strconv"
)

type Kind uint8

const (
	Invalid Kind = iota
	BoolKind
	Int64Kind
	Float64Kind
	StringKind
	StringSetKind
)

func (k Kind) String() string {
	switch k {
	case BoolKind:
		return "bool"
	case Int64Kind:
		return "int64"
	case Float64Kind:
		return "float64"
	case StringKind:
		return "string"
	case StringSetKind:
		return "string-set"
	default:
		return "invalid"
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "bool":
		return BoolKind, nil
	case "int64":
		return Int64Kind, nil
	case "float64":
		return Float64Kind, nil
	case "string":
		return StringKind, nil
	case "string-set":
		return StringSetKind, nil
	}
	return Invalid, fmt.Errorf("unknown value kind %q", s)
}

// Value is one stored preference. The zero Value has kind Invalid.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	set  Set
}

func Bool(v bool) Value       { return Value{kind: BoolKind, b: v} }
func Int64(v int64) Value     { return Value{kind: Int64Kind, i: v} }
func Float64(v float64) Value { return Value{kind: Float64Kind, f: v} }
func String(v string) Value   { return Value{kind: StringKind, s: v} }

// StringSetOf copies set so later mutation by the caller is not observed.
func StringSetOf(set Set) Value {
	return Value{kind: StringSetKind, set: set.Clone()}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) Bool() (bool, bool) { return v.b, v.kind == BoolKind }

func (v Value) Int64() (int64, bool) { return v.i, v.kind == Int64Kind }

func (v Value) Float64() (float64, bool) { return v.f, v.kind == Float64Kind }

func (v Value) Str() (string, bool) { return v.s, v.kind == StringKind }

func (v Value) StringSet() (Set, bool) {
	if v.kind != StringSetKind {
		return Set{}, false
	}
	return v.set.Clone(), true
}

// Equal reports whether both values have the same kind and content.
// Sets compare without regard to order.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case BoolKind:
		return v.b == o.b
	case Int64Kind:
		return v.i == o.i
	case Float64Kind:
		return v.f == o.f
	case StringKind:
		return v.s == o.s
	case StringSetKind:
		return v.set.Equal(o.set)
	}
	return true
}

func (v Value) String() string {
	switch v.kind {
	case BoolKind:
		return strconv.FormatBool(v.b)
	case Int64Kind:
		return strconv.FormatInt(v.i, 10)
	case Float64Kind:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case StringKind:
		return v.s
	case StringSetKind:
		return MarshalSet(v.set)
	}
	return "<invalid>"
}
