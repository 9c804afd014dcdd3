package tree

// Direction is the child slot side where a node hangs on its parent.
type Direction int8

const (
	Left Direction = -1 + iota
	Root
	Right
)

func (d Direction) String() string {
	switch d {
	case Left:
		return "left"
	case Root:
		return "root"
	case Right:
		return "right"
	default:
	}
	return "unknown"
}

// Guard grants read access to an element found in the tree.
// The element's memory will not be reclaimed and its value
// will not change until Release. Release is idempotent.
// Calling Value after Release panics.
type Guard[T any] interface {
	Value() T
	Release()
}

// XConcBSTStats is a point-in-time view of the counters of a tree.
type XConcBSTStats struct {
	Len           int64  // live elements
	Retired       uint64 // unlinked nodes handed to the reclamation ledger
	Reclaimed     uint64 // nodes recycled after all readers passed
	Pending       int64  // retired but not reclaimed yet
	ActiveReaders int64  // pinned readers right now
	CASRetries    uint64 // restarts caused by lost compare-and-swap races
	Relocated     uint64 // deleted nodes with two children replaced by a successor copy
}

// XConcBST is a lock-free ordered set backed by an unbalanced binary search tree.
// Insert, Find and Delete never block on a lock. Duplicate elements are rejected.
type XConcBST[T any] interface {
	Len() int64
	Insert(val T) error
	Find(val T) (Guard[T], error)
	Contains(val T) bool
	Delete(val T) error
	Min() (T, error)
	Max() (T, error)
	PopMin() (T, error)
	PopMax() (T, error)
	// Foreach visits the live elements in order. It is not a snapshot,
	// elements inserted or deleted concurrently may or may not be visited.
	Foreach(action func(idx int64, val T) bool)
	// Reclaim runs a reclamation pass and returns the number of recycled nodes.
	Reclaim() int64
	Stats() XConcBSTStats
	Close() error
}
