package models

import (
	"encoding/json"
	"sort"
)

// CoreSet is a set of core conditions that remembers insertion order, so a
// document serialises the way it was edited. Membership and toggles are O(1).
type CoreSet struct {
	seq   uint64
	items map[IndicatorCondition]uint64
}

// NewCoreSet builds a set from conds, dropping duplicates.
func NewCoreSet(conds ...IndicatorCondition) CoreSet {
	var s CoreSet
	for _, c := range conds {
		s.Add(c)
	}
	return s
}

// Add inserts c and reports whether it was absent.
func (s *CoreSet) Add(c IndicatorCondition) bool {
	if s.items == nil {
		s.items = make(map[IndicatorCondition]uint64)
	}
	if _, ok := s.items[c]; ok {
		return false
	}
	s.seq++
	s.items[c] = s.seq
	return true
}

// Remove deletes c and reports whether it was present.
func (s *CoreSet) Remove(c IndicatorCondition) bool {
	if _, ok := s.items[c]; !ok {
		return false
	}
	delete(s.items, c)
	return true
}

// Toggle flips membership of c and returns whether c is now a member.
func (s *CoreSet) Toggle(c IndicatorCondition) bool {
	if s.Remove(c) {
		return false
	}
	s.Add(c)
	return true
}

func (s CoreSet) Contains(c IndicatorCondition) bool {
	_, ok := s.items[c]
	return ok
}

func (s CoreSet) Len() int { return len(s.items) }

// Items returns the members in insertion order.
func (s CoreSet) Items() []IndicatorCondition {
	out := make([]IndicatorCondition, 0, len(s.items))
	for c := range s.items {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return s.items[out[i]] < s.items[out[j]] })
	return out
}

// Clone returns an independent copy preserving order.
func (s CoreSet) Clone() CoreSet {
	out := CoreSet{seq: s.seq}
	if s.items != nil {
		out.items = make(map[IndicatorCondition]uint64, len(s.items))
		for c, n := range s.items {
			out.items[c] = n
		}
	}
	return out
}

func (s CoreSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Items())
}

func (s *CoreSet) UnmarshalJSON(b []byte) error {
	var conds []IndicatorCondition
	if err := json.Unmarshal(b, &conds); err != nil {
		if se, ok := AsSchemaError(err); ok {
			return se.Prefix("core")
		}
		return NewSchemaError("core", "must be an array of [indicator, state] conditions")
	}
	*s = NewCoreSet(conds...)
	return nil
}
