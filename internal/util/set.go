package util

import (
	"cmp"
	"maps"
	"slices"
)

// Set holds distinct comparable values
type Set[K comparable] map[K]struct{}

// SetOf builds a set from elements
func SetOf[K comparable](elements ...K) Set[K] {
	res := make(Set[K], len(elements))
	for _, e := range elements {
		res.Add(e)
	}
	return res
}

func (s Set[K]) Add(key K) {
	s[key] = struct{}{}
}

func (s Set[K]) Contains(key K) bool {
	_, ok := s[key]
	return ok
}

func (s Set[K]) IsEmpty() bool {
	return len(s) == 0
}

// Sorted returns the members of s in ascending order
func Sorted[K cmp.Ordered](s Set[K]) []K {
	return slices.Sorted(maps.Keys(s))
}
