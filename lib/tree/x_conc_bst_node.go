package tree

import (
	"sync/atomic"
)

const (
	nodeTombstoned = 1 << iota
	nodeUnlinked
	nodeMoved
)

// Store the concurrent state.
type flagBits struct {
	bits uint32
}

func (f *flagBits) atomicIsSet(bit uint32) bool {
	return (atomic.LoadUint32(&f.bits) & bit) != 0
}

// atomicTrySet sets the bit from 0 to 1. Only one of the
// concurrent callers observes true.
func (f *flagBits) atomicTrySet(bit uint32) bool {
	for {
		old := atomic.LoadUint32(&f.bits)
		if old&bit != 0 {
			return false
		}
		if atomic.CompareAndSwapUint32(&f.bits, old, old|bit) {
			return true
		}
	}
}

func (f *flagBits) atomicReset() {
	atomic.StoreUint32(&f.bits, 0)
}

// link is the immutable content of a child slot.
// Every update of a slot publishes a fresh link, so a CAS on the
// slot compares the link identity and never suffers from ABA even
// if the child node has been recycled.
//
//	 +--------+        +-------------------+        +-------+
//	 | parent |--slot->| child, frozen bit |------->| child |
//	 +--------+        +-------------------+        +-------+
//
// A frozen link never changes again, except the empty left link
// frozen by a relocation proposal which lost the election.
type link[T any] struct {
	child  *xConcBSTNode[T]
	frozen bool
	reloc  *relocation[T] // claims the owner node as a successor
}

func (l *link[T]) isEmpty() bool {
	return l == nil || l.child == nil
}

func (l *link[T]) isFrozen() bool {
	return l != nil && l.frozen
}

func (l *link[T]) load() *xConcBSTNode[T] {
	if l == nil {
		return nil
	}
	return l.child
}

func (l *link[T]) relocation() *relocation[T] {
	if l == nil {
		return nil
	}
	return l.reloc
}

type childSlot[T any] struct {
	ptr atomic.Pointer[link[T]]
}

func (s *childSlot[T]) load() *link[T] {
	return s.ptr.Load()
}

func (s *childSlot[T]) cas(old, new *link[T]) bool {
	return s.ptr.CompareAndSwap(old, new)
}

// freezeEmpty freezes the slot only if it has no child.
// It reports whether the slot is frozen empty now.
func (s *childSlot[T]) freezeEmpty() bool {
	for {
		l := s.load()
		if l.isFrozen() {
			return l.child == nil
		}
		if !l.isEmpty() {
			return false
		}
		if s.cas(l, &link[T]{frozen: true}) {
			return true
		}
	}
}

// freeze freezes the slot with whatever child it holds.
func (s *childSlot[T]) freeze() *link[T] {
	for {
		l := s.load()
		if l.isFrozen() {
			return l
		}
		frozen := &link[T]{child: l.load(), frozen: true}
		if s.cas(l, frozen) {
			return frozen
		}
	}
}

// xConcBSTNode is the storage unit of the tree.
// The value is stored inline and published by the val pointer,
// the node will be recycled by the pool after reclamation, so
// a nil val means the node is not (or no longer) published.
//
// The tombstone lives in the life bits, which a relocated copy
// shares with its source node. The other flags are physical.
type xConcBSTNode[T any] struct {
	val   atomic.Pointer[T]
	left  childSlot[T]
	right childSlot[T]
	life  *flagBits
	flags flagBits
	arb   atomic.Pointer[relocArbiter[T]]
	v     T
}

func (node *xConcBSTNode[T]) init(val T) *xConcBSTNode[T] {
	node.v = val
	node.life = &flagBits{}
	node.val.Store(&node.v)
	return node
}

// initCopy makes the node an alias of src, both of them are
// tombstoned by a single flag.
func (node *xConcBSTNode[T]) initCopy(src *xConcBSTNode[T]) *xConcBSTNode[T] {
	node.v = src.loadVal()
	node.life = src.life
	node.val.Store(&node.v)
	return node
}

func (node *xConcBSTNode[T]) loadVal() T {
	ptr := node.val.Load()
	if ptr == nil {
		// impossible run to here
		panic( /* debug assertion */ "[x-conc-bst] load value from a reclaimed node")
	}
	return *ptr
}

func (node *xConcBSTNode[T]) tryTombstone() bool {
	return node.life.atomicTrySet(nodeTombstoned)
}

func (node *xConcBSTNode[T]) isTombstoned() bool {
	return node.life.atomicIsSet(nodeTombstoned)
}

func (node *xConcBSTNode[T]) isUnlinked() bool {
	return node.flags.atomicIsSet(nodeUnlinked)
}

// isMoved reports the node's value has been copied up by a relocation,
// the node itself is going to be spliced out.
func (node *xConcBSTNode[T]) isMoved() bool {
	return node.flags.atomicIsSet(nodeMoved)
}

// isDetachable reports the node is expected to leave the tree.
func (node *xConcBSTNode[T]) isDetachable() bool {
	return !node.isUnlinked() && (node.isTombstoned() || node.isMoved())
}

func (node *xConcBSTNode[T]) slot(dir Direction) *childSlot[T] {
	switch dir {
	case Left:
		return &node.left
	case Right:
		return &node.right
	default:
	}
	// impossible run to here
	panic( /* debug assertion */ "[x-conc-bst] node has no root slot")
}

func (node *xConcBSTNode[T]) hasAtMostOneChild() bool {
	return node.left.load().isEmpty() || node.right.load().isEmpty()
}

// freeze fixes both child slots of a detachable node, an empty side first.
// The frozen links are immutable, so every helper observes the same
// children and takes the same decision: splice the node if one side is
// empty, relocate its successor otherwise.
func (node *xConcBSTNode[T]) freeze() (left, right *link[T]) {
	if node.left.freezeEmpty() {
		return node.left.load(), node.right.freeze()
	}
	if node.right.freezeEmpty() {
		return node.left.freeze(), node.right.load()
	}
	return node.left.freeze(), node.right.freeze()
}

// arbiter returns the single relocation arbiter of the node.
func (node *xConcBSTNode[T]) arbiter() *relocArbiter[T] {
	if arb := node.arb.Load(); arb != nil {
		return arb
	}
	arb := &relocArbiter[T]{owner: node}
	if node.arb.CompareAndSwap(nil, arb) {
		return arb
	}
	return node.arb.Load()
}

// reset makes the node detached, the caller must guarantee that no reader
// can reach the node anymore.
func (node *xConcBSTNode[T]) reset() {
	node.val.Store(nil)
	node.left.ptr.Store(nil)
	node.right.ptr.Store(nil)
	node.arb.Store(nil)
	node.flags.atomicReset()
	node.life = nil
	node.v = *new(T)
}
