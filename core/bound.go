package core

import "strconv"

// Bound is an optional inclusive upper bound of a position or revision range.
// The zero value is unbounded.
type Bound struct {
	value   int64
	bounded bool
}

// Unbounded returns a Bound without an upper limit.
func Unbounded() Bound {
	return Bound{}
}

// UpTo returns a Bound limiting a range to values <= v.
func UpTo(v int64) Bound {
	return Bound{value: v, bounded: true}
}

// Value returns the limit and whether the bound is set.
func (b Bound) Value() (int64, bool) {
	return b.value, b.bounded
}

func (b Bound) IsBounded() bool {
	return b.bounded
}

// Below reports whether v lies before a set bound.
func (b Bound) Below(v int64) bool {
	return b.bounded && b.value < v
}

// Contains reports whether v does not exceed the bound.
func (b Bound) Contains(v int64) bool {
	return !b.bounded || v <= b.value
}

func (b Bound) String() string {
	if !b.bounded {
		return "unbounded"
	}
	return strconv.FormatInt(b.value, 10)
}
