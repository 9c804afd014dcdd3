package tree

import (
	"sync/atomic"
)

// Relocation removes a detachable node D with two children.
//
//	        P                    P
//	        |                    |
//	        D (frozen)           N (copy of S)
//	      /   \                /   \
//	     L     R      =>      L     R
//	          /                    /
//	        ...                  ...
//	        /                    /
//	       S (left frozen)      S (moved, spliced next)
//	        \                    \
//	         SR                   SR
//
//  1. Freeze both slots of D, its children never change again.
//  2. Propose the minimum node S of R as the successor. The proposal
//     freezes the empty left slot of S with a marker link, so no value
//     less than S can enter R anymore. An arbiter per D elects one
//     proposal, a losing proposal thaws its marker.
//  3. CAS the parent slot of D to a fresh node N, which copies the value
//     of S, shares its tombstone and takes over L and R. D is retired.
//  4. Mark S moved and splice it out, it has no left child.
//
// S and N are the same element until S is spliced: a Delete through
// either of them tombstones both. Every step can be completed by any
// goroutine reaching D, or the marker on S.

// relocArbiter elects the single relocation of a node.
// It is never recycled with the owner, so a goroutine arriving by a
// marker can check the election without touching the owner.
type relocArbiter[T any] struct {
	owner  *xConcBSTNode[T]
	winner atomic.Pointer[relocation[T]]
	done   atomic.Bool // the owner has been replaced by the copy
}

type relocation[T any] struct {
	arb  *relocArbiter[T]
	succ *xConcBSTNode[T]
	repl *xConcBSTNode[T]
	// The successor is claimed by a marker. Otherwise it is a tombstoned
	// node being spliced on its own, and the copy is born deleted.
	claimed bool
}

func (bst *xConcBST[T]) newRelocation(
	arb *relocArbiter[T],
	succ, left, right *xConcBSTNode[T],
	claimed bool,
) *relocation[T] {
	repl := bst.pool.loadCopy(succ)
	repl.left.ptr.Store(&link[T]{child: left})
	repl.right.ptr.Store(&link[T]{child: right})
	return &relocation[T]{
		arb:     arb,
		succ:    succ,
		repl:    repl,
		claimed: claimed,
	}
}

// relocate replaces the frozen node with two children by a copy of its
// successor. It returns after the replacement is done.
func (bst *xConcBST[T]) relocate(node, left, right *xConcBSTNode[T]) {
	arb := node.arbiter()
	for arb.winner.Load() == nil {
		bst.propose(arb, left, right)
	}
	bst.finish(arb.winner.Load())
}

// propose walks down the left spine of the right subtree and claims the
// minimum node as the successor. The frozen links on the spine are still
// followed, the nodes being spliced below the frozen owner remain the
// owner's subtree until the owner itself is replaced.
func (bst *xConcBST[T]) propose(arb *relocArbiter[T], left, right *xConcBSTNode[T]) {
	aux := right
	for arb.winner.Load() == nil {
		l := aux.left.load()
		if !l.isEmpty() {
			aux = l.child
			continue
		}

		if rel := l.relocation(); rel != nil {
			if rel.arb == arb {
				// Proposed by another goroutine, vote for it.
				arb.winner.CompareAndSwap(nil, rel)
				return
			}
			// Claimed by another relocation, help it and walk again.
			bst.settle(rel, &aux.left, l)
			aux = right
			continue
		}

		if l.isFrozen() {
			// The minimum is tombstoned and being spliced, its left side
			// is fixed already.
			arb.winner.CompareAndSwap(nil, bst.newRelocation(arb, aux, left, right, false))
			return
		}
		rel := bst.newRelocation(arb, aux, left, right, true)
		marker := &link[T]{frozen: true, reloc: rel}
		if !aux.left.cas(l, marker) {
			continue
		}
		if !arb.winner.CompareAndSwap(nil, rel) && arb.winner.Load() != rel {
			aux.left.cas(marker, &link[T]{})
		}
		return
	}
}

// settle drives the relocation which owns the marker observed in the slot.
// A marker of a lost proposal is thawed.
func (bst *xConcBST[T]) settle(rel *relocation[T], slot *childSlot[T], marker *link[T]) {
	arb := rel.arb
	if arb.winner.CompareAndSwap(nil, rel) || arb.winner.Load() == rel {
		bst.finish(rel)
		return
	}
	slot.cas(marker, &link[T]{})
}

// finish completes the elected relocation.
// The owner is only dereferenced while the done flag is false, it is
// retired after the flag is set. A claimed successor is never spliced
// before the flag is set, and the copy is only touched by the goroutine
// which published it.
func (bst *xConcBST[T]) finish(rel *relocation[T]) {
	arb := rel.arb
	for !arb.done.Load() {
		slot, owner, observed, ok := bst.locate(arb.owner)
		if !ok {
			arb.done.Store(true) // Replaced by the others.
			break
		}
		if observed.isFrozen() {
			bst.unlink(owner)
			continue
		}
		if slot.cas(observed, &link[T]{child: rel.repl}) {
			arb.done.Store(true)
			if arb.owner.flags.atomicTrySet(nodeUnlinked) {
				bst.relocated.Add(1)
				bst.ledger.retire(arb.owner)
			}
			// The copy of a deleted successor leaves at once.
			bst.unlink(rel.repl)
			break
		}
	}
	if rel.claimed {
		rel.succ.flags.atomicTrySet(nodeMoved)
		bst.unlink(rel.succ)
	}
}
