package timeslice

import (
	"fmt"
	"sort"
)

// InsertPosition selects which side of an equal element a search lands on.
type InsertPosition int

const (
	// Left lands on the first element whose timestamp is >= the target.
	Left InsertPosition = iota
	// Right lands past the last element whose timestamp is <= the target.
	Right
)

// FindInsertPos binary-searches n ascending timestamps exposed by at and
// returns the insert position of t with the requested tie bias. t must be
// finite.
func FindInsertPos(n int, at func(i int) float64, t float64, pos InsertPosition) int {
	if !IsFinite(t) {
		panic(fmt.Sprintf("timeslice: search timestamp must be finite, got %v", t))
	}
	if pos == Left {
		return sort.Search(n, func(i int) bool { return at(i) >= t })
	}
	return sort.Search(n, func(i int) bool { return at(i) > t })
}

// IndexOf is FindInsertPos over a timeslice slice.
func IndexOf(slices []*Timeslice, t float64, pos InsertPosition) int {
	return FindInsertPos(len(slices), func(i int) float64 { return slices[i].Timestamp }, t, pos)
}
