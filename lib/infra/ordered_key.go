package infra

import (
	"cmp"
)

type Signed interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64
}

// Unsigned is a constraint that permits any unsigned integer type.
type Unsigned interface {
	~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

type Integer interface {
	Signed | Unsigned
}

type Float interface {
	~float32 | ~float64
}

// OrderedKey
// byte => ~uint8
// Complex numbers are excluded, they have no total order.
type OrderedKey interface {
	Integer | Float | ~string
}

// Comparator defines the total order of T.
// Assume i is the new element.
//  1. i == j (return 0), matched.
//  2. i > j (return 1), turn to right part.
//  3. i < j (return -1), turn to left part.
type Comparator[T any] func(i, j T) int64

// OrderedKeyComparator is the Comparator restricted to the builtin ordered types.
type OrderedKeyComparator[K OrderedKey] Comparator[K]

// AscComparator avoids the subtraction overflow of i-j.
// A NaN is less than any other float and equal to another NaN,
// so the float keys keep a total order.
func AscComparator[K OrderedKey](i, j K) int64 {
	return int64(cmp.Compare(i, j))
}

func DescComparator[K OrderedKey](i, j K) int64 {
	return -AscComparator[K](i, j)
}
