package rocscan

import (
	"sort"
	"strconv"
	"strings"
)

// IDSet is an unordered set of source identifiers.
type IDSet map[int]struct{}

// NewIDSet creates a set holding the given ids.
func NewIDSet(ids ...int) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}

	return s
}

// Add inserts the id and tells whether it was not present before.
func (s IDSet) Add(id int) bool {
	if _, ok := s[id]; ok {
		return false
	}

	s[id] = struct{}{}

	return true
}

// Has tells whether the id is in the set.
func (s IDSet) Has(id int) bool {
	_, ok := s[id]
	return ok
}

// Len returns the number of ids.
func (s IDSet) Len() int {
	return len(s)
}

// Sorted returns the ids in ascending order.
func (s IDSet) Sorted() []int {
	ids := make([]int, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}

	sort.Ints(ids)

	return ids
}

func (s IDSet) String() string {
	ids := s.Sorted()
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}

	return strings.Join(parts, " ")
}
