package value

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrNotASet = errors.New("value is not a json string array")

// Set is a string set that remembers insertion order. Order carries no
// meaning for equality; it only makes marshalling deterministic.
type Set struct {
	items []string
	index map[string]struct{}
}

func NewSet(items ...string) Set {
	var s Set
	for _, item := range items {
		s.Add(item)
	}
	return s
}

func (s *Set) Add(item string) {
	if s.index == nil {
		s.index = make(map[string]struct{})
	}
	if _, ok := s.index[item]; ok {
		return
	}
	s.index[item] = struct{}{}
	s.items = append(s.items, item)
}

func (s Set) Contains(item string) bool {
	_, ok := s.index[item]
	return ok
}

func (s Set) Len() int { return len(s.items) }

// Items returns a copy of the members in insertion order.
func (s Set) Items() []string {
	out := make([]string, len(s.items))
	copy(out, s.items)
	return out
}

func (s Set) Clone() Set {
	return NewSet(s.items...)
}

func (s Set) Equal(o Set) bool {
	if s.Len() != o.Len() {
		return false
	}
	for _, item := range s.items {
		if !o.Contains(item) {
			return false
		}
	}
	return true
}

// MarshalSet encodes the set as a JSON array of strings.
func MarshalSet(s Set) string {
	items := s.items
	if items == nil {
		items = []string{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		// []string always marshals.
		panic(fmt.Sprintf("marshal string set: %v", err))
	}
	return string(data)
}

// UnmarshalSet strictly decodes a JSON array of strings. Anything else,
// including valid JSON of another shape, is ErrNotASet.
func UnmarshalSet(raw string) (Set, error) {
	var items []string
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return Set{}, fmt.Errorf("%w: %v", ErrNotASet, err)
	}
	if items == nil {
		// "null" decodes without error into a nil slice.
		return Set{}, ErrNotASet
	}
	return NewSet(items...), nil
}
