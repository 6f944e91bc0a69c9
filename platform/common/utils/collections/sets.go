/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package collections

// Set is an unordered collection without repetitions. It is not safe for concurrent use.
type Set[V comparable] interface {
	Add(...V)
	// Remove deletes v and reports whether it was present
	Remove(V) bool
	Contains(V) bool
	// ToSlice returns the items in no particular order
	ToSlice() []V
	Length() int
}

type set[V comparable] map[V]struct{}

func NewSet[V comparable](items ...V) Set[V] {
	s := make(set[V], len(items))
	s.Add(items...)
	return s
}

func (s set[V]) Add(vs ...V) {
	for _, v := range vs {
		s[v] = struct{}{}
	}
}

func (s set[V]) Remove(v V) bool {
	if _, ok := s[v]; !ok {
		return false
	}
	delete(s, v)
	return true
}

func (s set[V]) Contains(v V) bool {
	_, ok := s[v]
	return ok
}

func (s set[V]) ToSlice() []V { return Keys(s) }

func (s set[V]) Length() int { return len(s) }
